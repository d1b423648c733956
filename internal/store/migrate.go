package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"qmark.app/internal/migrate"
)

//go:embed migrations
var migrationFiles embed.FS

// Migrations returns the schema files for d.
func Migrations(d Dialect) (fs.FS, error) {
	dir := "migrations/sqlite"
	if d == Postgres {
		dir = "migrations/postgres"
	}
	return fs.Sub(migrationFiles, dir)
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := Migrations(s.dialect)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	applied, err := migrate.NewManager(s.db, fsys).Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", s.dialect.mapErr(err))
	}
	for _, name := range applied {
		s.log.Info("migration applied", zap.String("name", name), zap.String("dialect", string(s.dialect)))
	}
	return nil
}
