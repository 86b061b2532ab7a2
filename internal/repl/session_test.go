package repl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawdo/querytree/internal/config"
	"github.com/bawdo/querytree/internal/database"
	"github.com/bawdo/querytree/templates"
)

func newSession(t *testing.T, cfg *config.Config) (*Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := NewSession(context.Background(), Options{Config: cfg, Stdout: &out})
	t.Cleanup(func() { _ = s.Close() })
	return s, &out
}

// execSQL runs the commands and renders the query.
func execSQL(t *testing.T, commands ...string) (string, []any) {
	t.Helper()
	s, _ := newSession(t, nil)
	run(t, s, commands...)
	sql, params, err := s.GenerateSQL()
	require.NoError(t, err)
	return sql, params
}

func run(t *testing.T, s *Session, commands ...string) {
	t.Helper()
	for _, cmd := range commands {
		require.NoError(t, s.Execute(cmd), "command %q", cmd)
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()
	sql, params := execSQL(t,
		"from users u",
		"select u.id, u.name",
		"where u.age > 18",
		"order u.name desc",
		"limit 10",
	)
	assert.Equal(t, `SELECT "u"."id", "u"."name" FROM "users" "u" WHERE "u"."age" > $1 ORDER BY "u"."name" DESC LIMIT 10`, sql)
	assert.Equal(t, []any{18}, params)
}

func TestSelectClausesAccumulate(t *testing.T) {
	t.Parallel()
	sql, params := execSQL(t,
		"FROM users",
		"where age > 18",
		"where active = true",
		"group name",
		"having count(*) > 1",
		"offset 5",
		"distinct",
		"for update",
	)
	assert.Equal(t, `SELECT DISTINCT * FROM "users" WHERE "users"."age" > $1 AND "users"."active" = $2 `+
		`GROUP BY "users"."name" HAVING COUNT(*) > $3 OFFSET 5 FOR UPDATE`, sql)
	assert.Equal(t, []any{18, true, 1}, params)
}

func TestJoins(t *testing.T) {
	t.Parallel()
	sql, _ := execSQL(t,
		"from users u",
		"left join posts p on p.user_id = u.id",
		"cross join countries c",
		"select u.id, p.title, c.code",
	)
	assert.Equal(t, `SELECT "u"."id", "p"."title", "c"."code" FROM "users" "u" `+
		`LEFT JOIN "posts" "p" ON "p"."user_id" = "u"."id" CROSS JOIN "countries" "c"`, sql)
}

func TestInline(t *testing.T) {
	t.Parallel()
	sql, params := execSQL(t, "from users", "where age > 18", "inline")
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."age" > 18`, sql)
	assert.Empty(t, params)
}

func TestParam(t *testing.T) {
	t.Parallel()
	sql, params := execSQL(t, "from users", "where age > :min_age", "param min_age 21")
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."age" > $1`, sql)
	assert.Equal(t, []any{21}, params)
}

func TestUnion(t *testing.T) {
	t.Parallel()
	sql, _ := execSQL(t,
		"from users", "select name",
		"union",
		"from admins", "select name",
	)
	assert.Equal(t, `(SELECT "users"."name" FROM "users") UNION (SELECT "admins"."name" FROM "admins")`, sql)
}

func TestUnionOrder(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, nil)
	run(t, s,
		"from a", "union all",
		"from b", "union",
		"from c",
	)
	d := s.Document()
	require.Len(t, d.UnionAll, 1)
	require.Len(t, d.Union, 1)
	assert.Equal(t, "b", d.UnionAll[0].From[0])
	assert.Equal(t, "c", d.Union[0].From[0])
}

func TestSoftDeletePlugin(t *testing.T) {
	t.Parallel()
	s, out := newSession(t, nil)
	run(t, s, "from users", "plugin softdelete")
	sql, _, err := s.GenerateSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."deleted_at" IS NULL`, sql)

	run(t, s, "plugin softdelete removed_at on users posts", "plugins")
	assert.Contains(t, out.String(), "softdelete: column: removed_at, tables: users, posts")

	run(t, s, "plugin softdelete users.gone_at, posts.removed_at", "plugins")
	assert.Contains(t, out.String(), "softdelete: posts.removed_at, users.gone_at")
	sql, _, err = s.GenerateSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."gone_at" IS NULL`, sql)

	run(t, s, "plugin off softdelete")
	sql, _, err = s.GenerateSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users"`, sql)

	assert.ErrorContains(t, s.Execute("plugin off softdelete"), "not enabled")
	assert.ErrorContains(t, s.Execute("plugin opa"), "unknown plugin: opa")
	assert.ErrorContains(t, s.Execute("plugin softdelete users."), "invalid table.column pair")
}

func TestPolicyPlugin(t *testing.T) {
	t.Parallel()
	s, out := newSession(t, nil)
	run(t, s, "from users u", "plugin policy users tenant_id = 3")
	assert.Contains(t, out.String(), "Policy enabled (users: tenant_id = 3)")
	sql, params, err := s.GenerateSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" "u" WHERE "u"."tenant_id" = $1`, sql)
	assert.Equal(t, []any{3}, params)

	run(t, s, "plugin policy deny audit_log", "plugins")
	assert.Contains(t, out.String(), "policy: users: tenant_id = 3; deny: audit_log")
	run(t, s, "join audit_log a on a.user_id = u.id")
	_, _, err = s.GenerateSQL()
	assert.ErrorContains(t, err, `access to table "audit_log" denied`)

	run(t, s, "plugin off policy")
	_, _, err = s.GenerateSQL()
	require.NoError(t, err)

	assert.ErrorContains(t, s.Execute("plugin policy users"), "usage: plugin policy")
	assert.Error(t, s.Execute("plugin policy users tenant_id ="))
}

func TestInsert(t *testing.T) {
	t.Parallel()
	sql, params := execSQL(t,
		"insert into users (name, age)",
		"values ann, 30",
		"values 'bob', null",
	)
	assert.Equal(t, `INSERT INTO "users" ("name", "age") VALUES ($1, $2), ($3, NULL)`, sql)
	assert.Equal(t, []any{"ann", 30, "bob"}, params)
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	sql, params := execSQL(t,
		"update users",
		"set name = =upper(name)",
		"set note = plain text",
		"where id = 7",
	)
	assert.Equal(t, `UPDATE "users" SET "name" = UPPER("users"."name"), "note" = $1 WHERE "users"."id" = $2`, sql)
	assert.Equal(t, []any{"plain text", 7}, params)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	sql, params := execSQL(t, "delete from sessions", "where expired = true")
	assert.Equal(t, `DELETE FROM "sessions" WHERE "sessions"."expired" = $1`, sql)
	assert.Equal(t, []any{true}, params)
}

func TestDialectSwitch(t *testing.T) {
	t.Parallel()
	s, _ := newSession(t, nil)
	run(t, s, "from users", "where age > 1", "dialect sqlite")
	sql, _, err := s.GenerateSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "users"."age" > ?`, sql)

	run(t, s, "engine mysql")
	assert.Equal(t, templates.MySQLName, s.dialect)
	sql, _, err = s.GenerateSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users` WHERE `users`.`age` > ?", sql)
}

func TestSQLOutput(t *testing.T) {
	t.Parallel()
	s, out := newSession(t, nil)
	run(t, s, "from users", "where age > 18", "limit 3", "sql")
	assert.Contains(t, out.String(), `  SELECT * FROM "users" WHERE "users"."age" > $1 LIMIT 3`)
	assert.Contains(t, out.String(), "  -- $1 = 18")

	out.Reset()
	run(t, s, "count")
	assert.Contains(t, out.String(), `  SELECT COUNT(*) FROM "users" WHERE "users"."age" > $1`)

	out.Reset()
	run(t, s, "pretty", "sql")
	assert.Contains(t, out.String(), "\n  WHERE")
}

func TestExpr(t *testing.T) {
	t.Parallel()
	s, out := newSession(t, nil)
	run(t, s, "from users u", "expr lower(u.name) || 'x'")
	assert.Contains(t, out.String(), `LOWER("u"."name") || $1`)
	assert.Contains(t, out.String(), "type:")
}

func TestErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cmds []string
		want string
	}{
		{[]string{"frobnicate now"}, "unknown command: frobnicate"},
		{[]string{"sql"}, "no query defined"},
		{[]string{"select id"}, "no query defined"},
		{[]string{"where id = 1"}, "no query defined"},
		{[]string{"values 1"}, "no INSERT query"},
		{[]string{"set a = 1"}, "no UPDATE query"},
		{[]string{"from users", "limit ten"}, `invalid number: "ten"`},
		{[]string{"from users", "join posts"}, "usage: [left|right|full] join"},
		{[]string{"dialect klingon"}, "klingon"},
		{[]string{"engine oracle"}, `unknown engine "oracle"`},
		{[]string{"insert into t (a, b)", "values 1"}, "got 1 values for 2 columns"},
		{[]string{"param x"}, "usage: param"},
		{[]string{"dot"}, "usage: dot"},
		{[]string{"exec"}, "not connected"},
		{[]string{"disconnect"}, "not connected"},
		{[]string{"from users", "where id ="}, "expression expected"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.cmds, "; "), func(t *testing.T) {
			t.Parallel()
			s, _ := newSession(t, nil)
			last := len(tt.cmds) - 1
			run(t, s, tt.cmds[:last]...)
			err := s.Execute(tt.cmds[last])
			if tt.cmds[last] == "where id =" {
				// parsed on render
				require.NoError(t, err)
				_, _, err = s.GenerateSQL()
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCommentsAndBlankLines(t *testing.T) {
	t.Parallel()
	s, out := newSession(t, nil)
	require.NoError(t, s.Execute(""))
	require.NoError(t, s.Execute("-- a note"))
	assert.Empty(t, out.String())
}

func TestSaveLoadReset(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "q.yaml")
	s, _ := newSession(t, nil)
	run(t, s, "from users u", "select u.name", "where u.age > 30", "save "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "from: users u")

	run(t, s, "reset")
	_, _, err = s.GenerateSQL()
	assert.ErrorIs(t, err, errNoQuery)

	run(t, s, "load "+path)
	sql, _, err := s.GenerateSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "u"."name" FROM "users" "u" WHERE "u"."age" > $1`, sql)
}

func TestDot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "q.dot")
	s, _ := newSession(t, nil)
	run(t, s, "from users", "where age > 1", "plugin softdelete", "dot "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "digraph AST {"))
	assert.Contains(t, string(data), "cluster_0_softdelete")
}

func TestTablesWithoutConnection(t *testing.T) {
	t.Parallel()
	s, out := newSession(t, nil)
	run(t, s, "tables")
	assert.Contains(t, out.String(), "No tables")
	out.Reset()
	run(t, s, "from users u", "join posts p on p.user_id = u.id", "tables")
	assert.Equal(t, "  FROM users u\n  INNER JOIN posts p\n  users u\n  posts p\n", out.String())
}

func TestExecSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")
	conn, err := database.Open(ctx, config.EngineSQLite, path)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, age INTEGER, deleted_at TEXT)`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	cfg := &config.Config{Engine: config.EngineSQLite, Strict: true, MaxRows: 100}
	s, out := newSession(t, cfg)
	run(t, s,
		"connect "+path,
		"insert into users (name, age)",
		"values ann, 30",
		"values bob, 40",
		"exec",
	)
	assert.Contains(t, out.String(), "2 rows affected")

	out.Reset()
	run(t, s, "tables")
	assert.Equal(t, "  users\n", out.String())

	out.Reset()
	run(t, s, "from users", "select name", "where age > 35", "exec")
	assert.Contains(t, out.String(), "bob")
	assert.NotContains(t, out.String(), "ann")
	assert.Contains(t, out.String(), "(1 row)")

	out.Reset()
	run(t, s, "exec count")
	assert.Equal(t, "1\n", out.String())

	run(t, s, "disconnect")
	assert.ErrorContains(t, s.Execute("exec"), "not connected")
}

func TestParseValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want any
	}{
		{"42", 42},
		{"1.5", 1.5},
		{"true", true},
		{"null", nil},
		{"ann", "ann"},
		{"'a, b'", "a, b"},
		{"=age + 1", "=age + 1"},
	}
	for _, tt := range tests {
		v, err := parseValue(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, v, tt.in)
	}
	_, err := parseValue("[1, 2]")
	assert.ErrorContains(t, err, "scalar expected")
}

func TestRunScript(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Stdin:  strings.NewReader("from users\n\nwhere id = 1\nsql\nexit\nsql\n"),
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), `SELECT * FROM "users" WHERE "users"."id" = $1`))

	err = Run(context.Background(), Options{
		Stdin:  strings.NewReader("from users\nbogus\n"),
		Stdout: &out,
	})
	assert.ErrorContains(t, err, "line 2: unknown command: bogus")
}
