// Package store is the relational persistence layer. One Store wraps a
// database/sql pool for Postgres, SQLite or libsql and exposes typed
// per-entity operations; driver errors are mapped to the package sentinels.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"qmark.app/internal/obs"
	"qmark.app/internal/secret"
)

const (
	defaultOpTimeout = 5 * time.Second
	defaultMaxConns  = 10
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is safe for concurrent use.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	codec    *secret.Codec
	timeout  time.Duration
	maxConns int
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the codec that seals OAuth tokens. Writing a token without one fails.
func WithCodec(c *secret.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithOpTimeout bounds every operation, including whole transactions.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMaxConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	dialect, driverName, normalized, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, dialect, err)
	}
	s := New(db, dialect, opts...)
	db.SetMaxOpenConns(s.maxConns)
	db.SetMaxIdleConns(max(1, s.maxConns/2))
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	// Only reaches one connection; DeleteUser does not rely on it.
	if dialect == LibSQL {
		if _, err := db.ExecContext(ctx, `pragma foreign_keys = on`); err != nil {
			s.log.Warn("libsql foreign keys pragma failed", zap.Error(err))
		}
	}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:       db,
		dialect:  dialect,
		timeout:  defaultOpTimeout,
		maxConns: defaultMaxConns,
		now:      time.Now,
		log:      obs.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

// Ping reports whether the database answers within the operation timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return s.dialect.mapErr(err)
	}
	return nil
}

func (s *Store) queries(q queryer) *queries {
	return &queries{q: q, d: s.dialect, codec: s.codec, now: s.now}
}

// reconnect makes one attempt to get a working connection back into the pool.
func (s *Store) reconnect(ctx context.Context) bool {
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Warn("store reconnect failed", zap.Error(err))
		return false
	}
	s.log.Info("store reconnected")
	return true
}

func (s *Store) observe(op string, started time.Time, err error) {
	obs.ObserveStoreOp(op, started, kindLabel(err))
}

// call runs fn against the pool under the operation timeout. After a
// connection-class failure the pool is pinged once and reads run again.
func call[T any](ctx context.Context, s *Store, op string, retry bool, fn func(context.Context, *queries) (T, error)) (out T, err error) {
	started := time.Now()
	defer func() { s.observe(op, started, err) }()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := s.queries(s.db)
	out, err = fn(ctx, q)
	if err == nil || !errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
		return out, err
	}
	if !s.reconnect(ctx) || !retry {
		return out, err
	}
	return fn(ctx, q)
}

func read[T any](ctx context.Context, s *Store, op string, fn func(context.Context, *queries) (T, error)) (T, error) {
	return call(ctx, s, op, true, fn)
}

func write[T any](ctx context.Context, s *Store, op string, fn func(context.Context, *queries) (T, error)) (T, error) {
	return call(ctx, s, op, false, fn)
}

type found[T any] struct {
	v  T
	ok bool
}

// readOne adapts the (value, ok, error) lookup shape to call.
func readOne[T any](ctx context.Context, s *Store, op string, fn func(context.Context, *queries) (T, bool, error)) (T, bool, error) {
	r, err := read(ctx, s, op, func(ctx context.Context, q *queries) (found[T], error) {
		v, ok, err := fn(ctx, q)
		return found[T]{v, ok}, err
	})
	return r.v, r.ok, err
}
