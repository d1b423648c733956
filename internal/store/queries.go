package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qmark.app/internal/ids"
	"qmark.app/internal/secret"
)

// queries implements every typed operation against either the pool or a
// transaction. Errors leaving it are already mapped to the package sentinels.
type queries struct {
	q     queryer
	d     Dialect
	codec *secret.Codec
	now   func() time.Time
}

type scanner interface {
	Scan(dest ...any) error
}

func (q *queries) timestamp() time.Time {
	return q.now().UTC().Truncate(time.Microsecond)
}

// bump returns a modification time strictly after prev.
func (q *queries) bump(prev time.Time) time.Time {
	t := q.timestamp()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, q.d.mapErr(err)
	}
	return res, nil
}

// execAffected runs a statement and reports whether it touched any row.
func (q *queries) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, q.d.mapErr(err)
	}
	return n > 0, nil
}

// getOne scans a single row; absence is (zero, false, nil).
func getOne[T any](ctx context.Context, q *queries, scan func(scanner) (T, error), query string, args ...any) (T, bool, error) {
	v, err := scan(q.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, q.d.mapErr(err)
	}
	return v, true, nil
}

func list[T any](ctx context.Context, q *queries, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, q.d.mapErr(err)
	}
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, q.d.mapErr(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, q.d.mapErr(err)
	}
	return out, nil
}

func (q *queries) seal(plain string) (any, error) {
	if plain == "" {
		return nil, nil
	}
	if q.codec == nil {
		return nil, fmt.Errorf("%w: no codec configured for token storage", ErrInternal)
	}
	sealed, err := q.codec.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: seal token: %v", ErrInternal, err)
	}
	return sealed, nil
}

func (q *queries) open(sealed sql.NullString) (string, error) {
	if !sealed.Valid || sealed.String == "" {
		return "", nil
	}
	if q.codec == nil {
		return "", fmt.Errorf("%w: no codec configured for token storage", ErrInternal)
	}
	plain, err := q.codec.Decrypt(sealed.String)
	if err != nil {
		return "", fmt.Errorf("%w: open token: %v", ErrInternal, err)
	}
	return plain, nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return ids.New()
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// cleanOptional trims s and treats blank input as absent.
func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

func validJSON(field string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		return invalidf("%s must be valid JSON", field)
	}
	return nil
}

func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalidf("%s is required", field)
	}
	return nil
}

// offsetLimit renders a pagination clause with the next two placeholders.
func offsetLimit(n int) string {
	return fmt.Sprintf(" limit $%d offset $%d", n, n+1)
}
