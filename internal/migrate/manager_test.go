package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:migrate_"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("create table a (x text);\ninsert into a values ('x;y');\nselect 1")
	require.Len(t, stmts, 3)
	require.Contains(t, stmts[1], "'x;y'")
}

func TestUpDownStatus(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"0001_a.up.sql":   {Data: []byte("create table a (id text primary key);")},
		"0001_a.down.sql": {Data: []byte("drop table a;")},
		"0002_b.up.sql":   {Data: []byte("create table b (id text primary key); insert into b values ('1');")},
		"0002_b.down.sql": {Data: []byte("drop table b;")},
	}
	seeds := fstest.MapFS{
		"001_a.sql": {Data: []byte("insert into a values ('seed');")},
	}
	mgr := NewManager(db, fsys, WithSeeds(seeds))

	applied, err := mgr.Up(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, applied)

	applied, err = mgr.Up(ctx)
	require.NoError(t, err)
	require.Empty(t, applied)

	seeded, err := mgr.Seed(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"001_a.sql"}, seeded)
	seeded, err = mgr.Seed(ctx)
	require.NoError(t, err)
	require.Empty(t, seeded)

	require.NoError(t, mgr.Down(ctx))
	status, err := mgr.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_a.up.sql"}, status)

	_, err = db.Exec(`select count(*) from b`)
	require.Error(t, err)
}

func TestDownWithoutHistory(t *testing.T) {
	mgr := NewManager(openTestDB(t), fstest.MapFS{})
	require.EqualError(t, mgr.Down(context.Background()), "no migrations applied")
}

func TestFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mgr := NewManager(db, fstest.MapFS{
		"0001_bad.up.sql": {Data: []byte("create table c (id text); insert into missing values (1);")},
	})
	_, err := mgr.Up(ctx)
	require.Error(t, err)

	status, err := mgr.Status(ctx)
	require.NoError(t, err)
	require.Empty(t, status)
}
