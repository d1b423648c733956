package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Tx exposes the typed operations bound to one database transaction.
type Tx struct {
	*queries
	tx *sql.Tx
}

// InTx runs fn inside a transaction. It commits when fn returns nil and rolls
// back when fn returns an error or panics. fn's error is returned unchanged.
// The ctx handed to fn carries the operation deadline; use it for every call on tx.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.inTx(ctx, "tx", nil, fn)
}

func (s *Store) inTx(ctx context.Context, op string, opts *sql.TxOptions, fn func(ctx context.Context, tx *Tx) error) (err error) {
	started := time.Now()
	defer func() { s.observe(op, started, err) }()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		err = s.dialect.mapErr(err)
		if errors.Is(err, ErrUnavailable) && ctx.Err() == nil {
			s.reconnect(ctx)
		}
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &Tx{queries: s.queries(sqlTx), tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return s.dialect.mapErr(err)
	}
	return nil
}

// readOnly returns options for a consistent multi-statement read.
func (s *Store) readOnly() *sql.TxOptions {
	if s.dialect == Postgres {
		return &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	}
	return nil
}

// inTxValue is InTx for operations producing a value.
func inTxValue[T any](ctx context.Context, s *Store, op string, fn func(ctx context.Context, tx *Tx) (T, error)) (T, error) {
	var out T
	err := s.inTx(ctx, op, nil, func(ctx context.Context, tx *Tx) error {
		var err error
		out, err = fn(ctx, tx)
		return err
	})
	return out, err
}
