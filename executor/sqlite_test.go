package executor

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bawdo/querytree/managers"
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins/softdelete"
	"github.com/bawdo/querytree/projections"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER,
		deleted_at TEXT
	)`)
	require.NoError(t, err)
	return db
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openSQLite(t)
	s := visitors.NewSerializer(templates.SQLite())
	ex := New(db, s)

	users := nodes.NewEntity("users", "")
	id, name, age := users.NumberProp("id"), users.StringProp("name"), users.NumberProp("age")

	query, params, err := managers.NewInsertManager(users).
		Columns(id, name, age).
		Values(1, "ann", 34).
		Values(2, "bob", 12).
		Values(3, "cy", 51).
		ToSQL(s)
	require.NoError(t, err)
	n, err := ex.Exec(ctx, query, params)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	query, params, err = managers.NewUpdateManager(users).
		Set(users.StringProp("deleted_at"), "2026-01-01").
		Where(id.Eq(3)).
		ToSQL(s)
	require.NoError(t, err)
	_, err = ex.Exec(ctx, query, params)
	require.NoError(t, err)

	sel := managers.NewSelectManager(users).
		Select(id, name).
		Where(age.Gt(18)).
		Order(id.Asc()).
		Use(softdelete.New())
	md, err := sel.Transformed()
	require.NoError(t, err)

	out, err := ex.Fetch(ctx, md)
	require.NoError(t, err)
	require.Len(t, out, 1)
	row := out[0].(*projections.Tuple)
	assert.Equal(t, int64(1), row.Get(0))
	got, ok := row.GetExpr(name)
	require.True(t, ok)
	assert.Equal(t, "ann", got)

	total, err := ex.Count(ctx, managers.NewSelectManager(users).Metadata())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	live, err := ex.Count(ctx, md)
	require.NoError(t, err)
	assert.Equal(t, int64(1), live)
}

func TestSQLiteDistinctCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openSQLite(t)
	s := visitors.NewSerializer(templates.SQLite())
	ex := New(db, s)

	users := nodes.NewEntity("users", "")
	age := users.NumberProp("age")
	query, params, err := managers.NewInsertManager(users).
		Columns(users.StringProp("name"), age).
		Values("ann", 30).
		Values("bob", 30).
		Values("cy", 40).
		ToSQL(s)
	require.NoError(t, err)
	_, err = ex.Exec(ctx, query, params)
	require.NoError(t, err)

	md := managers.NewSelectManager(users).Select(age).Distinct().Metadata()
	n, err := ex.Count(ctx, md)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ages, err := ex.Fetch(ctx, managers.NewSelectManager(users).Select(age).Distinct().Order(age.Desc()).Metadata())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(40), int64(30)}, ages)
}

func TestSQLiteGroupedCountAndWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openSQLite(t)
	s := visitors.NewSerializer(templates.SQLite())
	ex := New(db, s)

	users := nodes.NewEntity("users", "")
	age := users.NumberProp("age")
	query, params, err := managers.NewInsertManager(users).
		Columns(users.StringProp("name"), age).
		Values("ann", 30).
		Values("bob", 30).
		Values("cy", 40).
		ToSQL(s)
	require.NoError(t, err)
	_, err = ex.Exec(ctx, query, params)
	require.NoError(t, err)

	groups, err := ex.Count(ctx, managers.NewSelectManager(users).Group(age).Metadata())
	require.NoError(t, err)
	assert.Equal(t, int64(2), groups)

	rank := nodes.DenseRank().Over(nodes.NewWindow().OrderBy(age.Desc()))
	ranks, err := ex.Fetch(ctx, managers.NewSelectManager(users).Select(rank).Order(age.Desc()).Metadata())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(2)}, ranks)
}
