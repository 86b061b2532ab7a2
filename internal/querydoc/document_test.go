package querydoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawdo/querytree/plugins/policy"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

func pg() *visitors.Serializer { return visitors.NewSerializer(templates.Postgres()) }

func build(t *testing.T, src string) *Query {
	t.Helper()
	d, err := Parse([]byte(src))
	require.NoError(t, err)
	q, err := d.Build()
	require.NoError(t, err)
	return q
}

func TestBuildSelect(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users u
select: [u.id, u.name, "count(p.id) as posts"]
joins:
  - table: posts p
    type: left
    on: p.user_id = u.id
where: u.age > :min_age
group: [u.id, u.name]
having: count(p.id) > 1
order: u.name desc nulls last
limit: 10
params: {min_age: 18}
`)
	assert.Equal(t, KindSelect, q.Kind)

	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `SELECT "u"."id", "u"."name", COUNT("p"."id") AS "posts" FROM "users" "u" `+
		`LEFT JOIN "posts" "p" ON "p"."user_id" = "u"."id" WHERE "u"."age" > $1 `+
		`GROUP BY "u"."id", "u"."name" HAVING COUNT("p"."id") > $2 `+
		`ORDER BY "u"."name" DESC NULLS LAST LIMIT 10`, sql)
	assert.Equal(t, []any{18, 1}, params)
}

func TestBuildSelectStarAndWhereList(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users
where:
  - active = true
  - age >= 21
lock: update
`)
	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."active" = $1 AND "users"."age" >= $2 FOR UPDATE`, sql)
	assert.Equal(t, []any{true, 21}, params)
}

func TestBuildSelectCount(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users
select: name
where: age > 30
order: name
limit: 5
`)
	sql, params, err := q.ToCountSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "users" WHERE "users"."age" > $1`, sql)
	assert.Equal(t, []any{30}, params)
}

func TestBuildSelectSoftDelete(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users u
softdelete: true
`)
	sql, _, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" "u" WHERE "u"."deleted_at" IS NULL`, sql)

	q = build(t, `
from: users
softdelete:
  column: removed_at
`)
	sql, _, err = q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."removed_at" IS NULL`, sql)
}

func TestBuildPolicy(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users u
joins:
  - table: posts p
    on: p.user_id = u.id
policy:
  where:
    users: tenant_id = :tenant
    posts: [tenant_id = :tenant, published = true]
params: {tenant: 4}
softdelete:
  tables: [users]
`)
	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" "u" INNER JOIN "posts" "p" ON "p"."user_id" = "u"."id" `+
		`WHERE "u"."deleted_at" IS NULL AND "u"."tenant_id" = $1 AND "p"."tenant_id" = $2 AND "p"."published" = $3`, sql)
	assert.Equal(t, []any{4, 4, true}, params)

	q = build(t, `
delete:
  from: users
  where: id = 9
policy:
  where: {users: tenant_id = 4}
`)
	sql, _, err = q.ToSQL(visitors.NewSerializer(templates.Postgres(), visitors.WithoutParams()))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "users" WHERE "users"."id" = 9 AND "users"."tenant_id" = 4`, sql)
}

func TestBuildPolicyDeny(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users
joins: [{table: audit_log a, on: a.user_id = users.id}]
policy:
  deny: [audit_log]
`)
	_, _, err := q.ToSQL(pg())
	var denied *policy.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "audit_log", denied.Table)

	d, err := Parse([]byte("from: users\npolicy: {where: {users: 'tenant_id ='}}"))
	require.NoError(t, err)
	_, err = d.Build()
	assert.ErrorContains(t, err, "policy.users[0]")
}

func TestBuildUnion(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users
select: name
union:
  - from: admins
    select: name
`)
	sql, _, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `(SELECT "users"."name" FROM "users") UNION (SELECT "admins"."name" FROM "admins")`, sql)
}

func TestBuildUnionInheritsPluginsAndParams(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users
where: age > :min
union_all:
  - from: admins
    where: age > :min
params: {min: 3}
softdelete: true
`)
	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `(SELECT * FROM "users" WHERE "users"."age" > $1 AND "users"."deleted_at" IS NULL) UNION ALL `+
		`(SELECT * FROM "admins" WHERE "admins"."age" > $2 AND "admins"."deleted_at" IS NULL)`, sql)
	assert.Equal(t, []any{3, 3}, params)
}

func TestBuildCrossJoin(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users u
select: [u.id, c.code]
joins:
  - {table: countries c, type: cross}
`)
	sql, _, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `SELECT "u"."id", "c"."code" FROM "users" "u" CROSS JOIN "countries" "c"`, sql)
}

func TestBuildInsert(t *testing.T) {
	t.Parallel()
	q := build(t, `
insert:
  into: users
  columns: [name, age]
  values:
    - [ann, 30]
    - [bob, ~]
`)
	assert.Equal(t, KindInsert, q.Kind)
	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("name", "age") VALUES ($1, $2), ($3, NULL)`, sql)
	assert.Equal(t, []any{"ann", 30, "bob"}, params)

	_, _, err = q.ToCountSQL(pg())
	assert.ErrorIs(t, err, ErrNotSelect)
}

func TestBuildInsertSelect(t *testing.T) {
	t.Parallel()
	q := build(t, `
insert:
  into: archive
  columns: [name]
  select:
    from: users
    select: name
    where: age > 90
`)
	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "archive" ("name") SELECT "users"."name" FROM "users" WHERE "users"."age" > $1`, sql)
	assert.Equal(t, []any{90}, params)
}

func TestBuildUpdate(t *testing.T) {
	t.Parallel()
	q := build(t, `
update:
  table: users
  set:
    name: "=upper(name)"
    age: "= age + 1"
    note: plain text
  where: id = :id
params: {id: 7}
softdelete: true
`)
	assert.Equal(t, KindUpdate, q.Kind)
	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "users" SET "name" = UPPER("users"."name"), "age" = "users"."age" + $1, "note" = $2 `+
		`WHERE "users"."id" = $3 AND "users"."deleted_at" IS NULL`, sql)
	assert.Equal(t, []any{1, "plain text", 7}, params)
}

func TestBuildDelete(t *testing.T) {
	t.Parallel()
	q := build(t, `
delete:
  from: sessions
  where: [expired = true, user_id = :uid]
params: {uid: 3}
`)
	assert.Equal(t, KindDelete, q.Kind)
	sql, params, err := q.ToSQL(pg())
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "sessions" WHERE "sessions"."expired" = $1 AND "sessions"."user_id" = $2`, sql)
	assert.Equal(t, []any{true, 3}, params)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty statement", "limit: 3", "needs from, insert, update or delete"},
		{"mixed", "from: users\ndelete: {from: users}", "document mixes select and delete"},
		{"bad join type", "from: users\njoins: [{table: posts, type: sideways, on: x = 1}]", `unknown join type "sideways"`},
		{"join without on", "from: users u\njoins: [{table: posts p}]", "joins[0]: on is required"},
		{"cross join with on", "from: users u\njoins: [{table: posts p, type: cross, on: p.id = u.id}]", "cross joins take no condition"},
		{"star with items", "from: users\nselect: ['*', id]", "* cannot be combined"},
		{"bad lock", "from: users\nlock: everything", `unknown lock "everything"`},
		{"bad where", "from: users\nwhere: 'id ='", "where[0]"},
		{"insert without rows", "insert: {into: users, columns: [a]}", "insert needs values or select"},
		{"insert with both", "insert: {into: users, columns: [a], values: [[1]], select: {from: t}}", "not both"},
		{"update without set", "update: {table: users, set: {}}", "update needs set"},
		{"mapping value", "insert: {into: users, columns: [a], values: [[{x: 1}]]}", "mappings are not values"},
		{"union member", "from: users\nunion: [{select: name}]", "union member 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			_, err = d.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	_, err := Parse(nil)
	assert.ErrorContains(t, err, "empty document")

	_, err = Parse([]byte("from: users\nfilter: x = 1"))
	assert.ErrorContains(t, err, "field filter not found")

	_, err = Parse([]byte("from: users\nsoftdelete: false"))
	assert.ErrorContains(t, err, "omit the key to disable")

	_, err = Parse([]byte("from: {a: b}"))
	assert.ErrorContains(t, err, "string or list of strings expected")
}

func TestDocumentMarshal(t *testing.T) {
	t.Parallel()
	src := `
from: users
where: [a = 1, b = 2]
update:
  table: users
  set:
    b: 2
    a: 1
softdelete: true
`
	d, err := Parse([]byte(src))
	require.NoError(t, err)

	out, err := d.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "from: users\n")
	assert.Contains(t, string(out), "softdelete: true\n")

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, d, back)
	assert.Equal(t, "b", back.Update.Set[0].Column)
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "q.yaml")
	require.NoError(t, os.WriteFile(path, []byte("from: users\nlimit: 2\n"), 0o600))

	d, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Strings{"users"}, d.From)
	require.NotNil(t, d.Limit)
	assert.Equal(t, 2, *d.Limit)

	require.NoError(t, os.WriteFile(path, []byte("from: [users"), 0o600))
	_, err = ReadFile(path)
	assert.ErrorContains(t, err, path)
}

func TestQueryDot(t *testing.T) {
	t.Parallel()
	q := build(t, `
from: users
where: age > 18
softdelete: true
`)
	dot, err := q.Dot()
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph AST {")
	assert.Contains(t, dot, "subgraph cluster_0_softdelete")

	q = build(t, `
from: users
where: age > 18
softdelete: true
policy: {where: {users: tenant_id = 1}}
`)
	dot, err = q.Dot()
	require.NoError(t, err)
	assert.Contains(t, dot, "_softdelete {")
	assert.Contains(t, dot, "_policy {")
	assert.Contains(t, dot, `color="`+policy.Color+`"`)

	q = build(t, "delete: {from: users}")
	_, err = q.Dot()
	assert.ErrorIs(t, err, ErrNotSelect)
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"u.id", "coalesce(a, b)", "'x, y'", "count(*) as n"},
		SplitList(" u.id, coalesce(a, b),'x, y' , count(*) as n,"))
	assert.Empty(t, SplitList("  "))
}
