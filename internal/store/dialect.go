package store

import (
	"database/sql/driver"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Dialect identifies the SQL engine behind a DSN.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	LibSQL   Dialect = "libsql"
)

// timeLayout is fixed width so stored values sort lexically in SQLite.
const timeLayout = "2006-01-02 15:04:05.000000-07:00"

var sqliteDefaults = map[string]string{
	"_foreign_keys": "1",
	"_busy_timeout": "5000",
}

// ParseDSN resolves the dialect, database/sql driver name and normalised DSN.
func ParseDSN(dsn string) (Dialect, string, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", "", invalidf("database url is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, "pgx", dsn, nil
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "https://"), strings.HasPrefix(dsn, "wss://"):
		return LibSQL, "libsql", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return SQLite, "sqlite3", sqliteDSN("file:" + strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:", !strings.Contains(dsn, "://"):
		if dsn == ":memory:" {
			dsn = "file::memory:?cache=shared"
		}
		return SQLite, "sqlite3", sqliteDSN(dsn), nil
	}
	return "", "", "", invalidf("unsupported database url scheme")
}

func sqliteDSN(dsn string) string {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		q = url.Values{}
	}
	for k, v := range sqliteDefaults {
		if q.Get(k) == "" {
			q.Set(k, v)
		}
	}
	return base + "?" + q.Encode()
}

// timeArg renders t for binding. SQLite family engines get a fixed-width UTC string.
func (d Dialect) timeArg(t time.Time) any {
	t = t.UTC()
	if d == Postgres {
		return t
	}
	return t.Format(timeLayout)
}

func (d Dialect) nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.timeArg(*t)
}

// dbTime scans timestamps whether the driver hands back time.Time or text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var scanLayouts = []string{
	timeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		t.Time, t.Valid = time.Unix(v, 0).UTC(), true
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *dbTime) parse(s string) error {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range scanLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ interface{ Scan(any) error } = (*dbTime)(nil)

// jsonArg binds an opaque JSON document; empty documents are stored as NULL.
func jsonArg(raw []byte) driver.Value {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
