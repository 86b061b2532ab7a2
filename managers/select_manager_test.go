package managers

import (
	"errors"
	"testing"

	"github.com/bawdo/querytree/internal/testutil"
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/plugins/softdelete"
	"github.com/bawdo/querytree/projections"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

func pg() *visitors.Serializer { return visitors.NewSerializer(templates.Postgres()) }

type stmt struct{ sql string }

func (s stmt) String() string { return s.sql }

func assertSQL(t *testing.T, m interface {
	ToSQL(*visitors.Serializer) (string, []any, error)
}, want string, params ...any) {
	t.Helper()
	sql, got, err := m.ToSQL(pg())
	testutil.AssertSQL(t, stmt{sql}, err, want)
	testutil.AssertParams(t, got, params...)
}

// --- NewSelectManager ---

func TestNewSelectManagerSetsFrom(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users)

	joins := m.Metadata().Joins()
	if len(joins) != 1 {
		t.Fatalf("expected 1 source, got %d", len(joins))
	}
	if joins[0].Target != users || joins[0].Type != nodes.DefaultJoin {
		t.Error("expected users as the FROM source")
	}
	if m.Metadata().Projection() != nil {
		t.Error("expected empty projection")
	}
	if m.Metadata().Where() != nil {
		t.Error("expected empty where")
	}
	assertSQL(t, m, `SELECT * FROM "users"`)
}

func TestNewSelectManagerNilFrom(t *testing.T) {
	t.Parallel()
	m := NewSelectManager(nil)
	if n := len(m.Metadata().Joins()); n != 0 {
		t.Errorf("expected no sources, got %d", n)
	}
}

// --- Select / Project ---

func TestSelectSingleExpression(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).Select(users.Col("id"))

	if _, ok := m.Metadata().Projection().(*nodes.Path); !ok {
		t.Errorf("expected a path projection, got %T", m.Metadata().Projection())
	}
	assertSQL(t, m, `SELECT "users"."id" FROM "users"`)
}

func TestSelectSeveralExpressionsBuildsTuple(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).Select(users.Col("id"), users.Col("name"))

	f, ok := m.Metadata().Projection().(*nodes.Factory)
	if !ok {
		t.Fatalf("expected a factory projection, got %T", m.Metadata().Projection())
	}
	if f.Len() != 2 || f.Type() != nodes.TypeTuple {
		t.Errorf("expected a 2-tuple, got %d args of %s", f.Len(), f.Type())
	}
	assertSQL(t, m, `SELECT "users"."id", "users"."name" FROM "users"`)

	v, ok, err := projections.Reconstruct(f, []any{int64(1), "ann"})
	if err != nil || !ok {
		t.Fatalf("reconstruct: %v %v", ok, err)
	}
	tup := v.(*projections.Tuple)
	if name, _ := tup.GetExpr(users.Col("name")); name != "ann" {
		t.Errorf("expected ann, got %v", name)
	}
}

func TestSelectReplacesProjection(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users)

	m.Select(users.Col("id"))
	m.Project(users.Col("name"), users.Col("email"))

	assertSQL(t, m, `SELECT "users"."name", "users"."email" FROM "users"`)
}

func TestSelectEntity(t *testing.T) {
	t.Parallel()
	u := nodes.NewEntity("users", "u")
	assertSQL(t, NewSelectManager(u).Select(u), `SELECT "u".* FROM "users" "u"`)
}

// --- Where ---

func TestWhereAppendsConditions(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users)

	m.Where(users.BoolProp("active").Eq(true))
	m.Where(users.NumberProp("age").Gt(18), users.StringProp("name").StartsWith("a"))

	assertSQL(t, m,
		`SELECT * FROM "users" WHERE "users"."active" = $1 AND "users"."age" > $2 AND "users"."name" LIKE $3 ESCAPE '\'`,
		true, 18, "a%")
}

func TestWhereKeepsExplicitGrouping(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	role := users.StringProp("role")
	m := NewSelectManager(users).Where(
		users.BoolProp("active").Eq(true),
		role.Eq("admin").Or(role.Eq("owner")),
	)

	assertSQL(t, m,
		`SELECT * FROM "users" WHERE "users"."active" = $1 AND ("users"."role" = $2 OR "users"."role" = $3)`,
		true, "admin", "owner")
}

// --- From / Join ---

func TestFromAddsSource(t *testing.T) {
	t.Parallel()
	users, posts := nodes.NewEntity("users", "u"), nodes.NewEntity("posts", "p")
	m := NewSelectManager(users).From(posts)
	assertSQL(t, m, `SELECT * FROM "users" "u", "posts" "p"`)
}

func TestJoinDefaultsToInnerJoin(t *testing.T) {
	t.Parallel()
	users, posts := nodes.NewEntity("users", ""), nodes.NewEntity("posts", "")
	m := NewSelectManager(users)

	m.Join(posts).On(users.Col("id").Eq(posts.Col("user_id")))

	joins := m.Metadata().Joins()
	if len(joins) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(joins))
	}
	if joins[1].Type != nodes.InnerJoin {
		t.Errorf("expected InnerJoin, got %s", joins[1].Type)
	}
	if joins[1].On == nil {
		t.Error("expected join On to be set")
	}
	assertSQL(t, m, `SELECT * FROM "users" INNER JOIN "posts" ON "users"."id" = "posts"."user_id"`)
}

func TestJoinTypes(t *testing.T) {
	t.Parallel()
	users, posts := nodes.NewEntity("users", ""), nodes.NewEntity("posts", "")
	on := users.Col("id").Eq(posts.Col("user_id"))

	tests := []struct {
		name string
		join func(*SelectManager) *JoinContext
		want nodes.JoinType
	}{
		{"explicit", func(m *SelectManager) *JoinContext { return m.Join(posts, nodes.PlainJoin) }, nodes.PlainJoin},
		{"left", func(m *SelectManager) *JoinContext { return m.LeftJoin(posts) }, nodes.LeftJoin},
		{"outer", func(m *SelectManager) *JoinContext { return m.OuterJoin(posts) }, nodes.LeftJoin},
		{"right", func(m *SelectManager) *JoinContext { return m.RightJoin(posts) }, nodes.RightJoin},
		{"full", func(m *SelectManager) *JoinContext { return m.FullJoin(posts) }, nodes.FullJoin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewSelectManager(users)
			tt.join(m).On(on)
			if got := m.Metadata().Joins()[1].Type; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCrossJoinNoOnClause(t *testing.T) {
	t.Parallel()
	users, colors := nodes.NewEntity("users", ""), nodes.NewEntity("colors", "")
	m := NewSelectManager(users).CrossJoin(colors)

	if m.Metadata().Joins()[1].On != nil {
		t.Error("expected CrossJoin to have nil On")
	}
	assertSQL(t, m, `SELECT * FROM "users" CROSS JOIN "colors"`)
}

func TestMultipleJoinConditions(t *testing.T) {
	t.Parallel()
	users, posts := nodes.NewEntity("users", "u"), nodes.NewEntity("posts", "p")
	m := NewSelectManager(users).
		LeftJoin(posts).On(users.Col("id").Eq(posts.Col("user_id")), posts.BoolProp("published").Eq(true))

	assertSQL(t, m,
		`SELECT * FROM "users" "u" LEFT JOIN "posts" "p" ON "u"."id" = "p"."user_id" AND "p"."published" = $1`,
		true)
}

func TestLateralJoin(t *testing.T) {
	t.Parallel()
	users, posts := nodes.NewEntity("users", "u"), nodes.NewEntity("posts", "p")
	m := NewSelectManager(users).
		LateralJoin(posts, nodes.LeftJoin).On(users.Col("id").Eq(posts.Col("user_id")))

	assertSQL(t, m, `SELECT * FROM "users" "u" LEFT JOIN LATERAL "posts" "p" ON "u"."id" = "p"."user_id"`)
}

func TestJoinSubQuery(t *testing.T) {
	t.Parallel()
	users, posts := nodes.NewEntity("users", ""), nodes.NewEntity("posts", "")
	top := NewSelectManager(posts).
		Select(posts.Col("user_id")).
		Where(posts.NumberProp("score").Gt(5))

	p := nodes.Var("p", nodes.TypeEntity)
	m := NewSelectManager(users).
		JoinSubQuery(top, "p").On(users.Col("id").Eq(p.Col("user_id"))).
		Where(users.BoolProp("active").Eq(true))

	assertSQL(t, m,
		`SELECT * FROM "users" INNER JOIN (SELECT "posts"."user_id" FROM "posts" WHERE "posts"."score" > $1) AS "p" ON "users"."id" = "p"."user_id" WHERE "users"."active" = $2`,
		5, true)
}

func TestAddJoinFlag(t *testing.T) {
	t.Parallel()
	users, posts := nodes.NewEntity("users", "u"), nodes.NewEntity("posts", "p")
	m := NewSelectManager(users)
	m.Join(posts).On(users.Col("id").Eq(posts.Col("user_id")))
	m.AddJoinFlag(nodes.Raw("/* fk */"), nodes.JoinEnd)
	m.AddJoinFlag(nodes.Raw("LATERAL"))

	flags := m.Metadata().Joins()[1].Flags
	if len(flags) != 2 || flags[1].Position != nodes.BeforeTarget {
		t.Fatalf("unexpected join flags: %+v", flags)
	}
}

func TestJoinFlagWithoutJoinFails(t *testing.T) {
	t.Parallel()
	m := NewSelectManager(nil).AddJoinFlag(nodes.Raw("LATERAL"))

	if !errors.Is(m.Err(), nodes.ErrNoJoin) {
		t.Fatalf("expected ErrNoJoin, got %v", m.Err())
	}
	if _, _, err := m.ToSQL(pg()); !errors.Is(err, nodes.ErrNoJoin) {
		t.Errorf("expected ToSQL to report ErrNoJoin, got %v", err)
	}
}

// --- Group / Having / Order ---

func TestGroupAndHaving(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	status, id := users.Col("status"), users.Col("id")
	m := NewSelectManager(users).
		Select(status, id.Count()).
		Group(status).
		Having(id.Count().Gt(5))

	assertSQL(t, m,
		`SELECT "users"."status", COUNT("users"."id") FROM "users" GROUP BY "users"."status" HAVING COUNT("users"."id") > $1`,
		5)
}

func TestOrderLimitOffset(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).
		Order(users.Col("name").Asc(), users.Col("age").Desc().NullsLast()).
		Take(10).
		Offset(5)

	assertSQL(t, m,
		`SELECT * FROM "users" ORDER BY "users"."name" ASC, "users"."age" DESC NULLS LAST LIMIT 10 OFFSET 5`)
}

func TestDistinct(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).Select(users.Col("name")).Distinct()
	assertSQL(t, m, `SELECT DISTINCT "users"."name" FROM "users"`)

	m.Distinct(false)
	if m.Metadata().IsDistinct() {
		t.Error("expected Distinct(false) to clear the modifier")
	}
}

// --- Locking and flags ---

func TestForUpdateIsIdempotent(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).ForUpdate().ForUpdate()
	assertSQL(t, m, `SELECT * FROM "users" FOR UPDATE`)

	m = NewSelectManager(users).ForShare()
	assertSQL(t, m, `SELECT * FROM "users" FOR SHARE`)
}

func TestForUpdateUnsupportedDialect(t *testing.T) {
	t.Parallel()
	m := NewSelectManager(nodes.NewEntity("users", "")).ForUpdate()
	_, _, err := m.ToSQL(visitors.NewSerializer(templates.SQLite()))

	var ue *templates.UnsupportedOperationError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
	if ue.Operator != nodes.OpForUpdate {
		t.Errorf("expected FOR_UPDATE, got %s", ue.Operator)
	}
}

func TestCommentAndHint(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).Comment("nightly */ report").Hint("SeqScan(users)")
	assertSQL(t, m, `/* nightly * / report */ SELECT /*+ SeqScan(users) */ * FROM "users"`)

	m = NewSelectManager(users).Comment("{0}")
	assertSQL(t, m, `/* { 0} */ SELECT * FROM "users"`)
}

// --- CTEs ---

func TestWith(t *testing.T) {
	t.Parallel()
	orders := nodes.NewEntity("orders", "")
	recent := NewSelectManager(orders).
		Select(orders.Col("id")).
		Where(orders.NumberProp("total").Gt(100))

	m := NewSelectManager(nodes.NewEntity("recent", "")).With("recent", recent)
	assertSQL(t, m,
		`WITH "recent" AS (SELECT "orders"."id" FROM "orders" WHERE "orders"."total" > $1) SELECT * FROM "recent"`,
		100)
}

func TestWithRecursive(t *testing.T) {
	t.Parallel()
	seed := NewSelectManager(nil).Select(nodes.Literal(1))
	m := NewSelectManager(nodes.NewEntity("t", "")).
		WithRecursive("t", seed).
		WithRecursive("u", seed)

	assertSQL(t, m,
		`WITH RECURSIVE "t" AS (SELECT $1), "u" AS (SELECT $2) SELECT * FROM "t"`,
		1, 1)
}

// --- Set operations ---

func TestUnion(t *testing.T) {
	t.Parallel()
	users, admins := nodes.NewEntity("users", ""), nodes.NewEntity("admins", "")
	a := NewSelectManager(users).Select(users.StringProp("name")).Where(users.BoolProp("active").Eq(true))
	b := NewSelectManager(admins).Select(admins.StringProp("name"))

	assertSQL(t, a.Union(b),
		`(SELECT "users"."name" FROM "users" WHERE "users"."active" = $1) UNION (SELECT "admins"."name" FROM "admins")`,
		true)

	sql, _, err := a.UnionAll(b).ToSQL(visitors.NewSerializer(templates.SQLite()))
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT "users"."name" FROM "users" WHERE "users"."active" = ? UNION ALL SELECT "admins"."name" FROM "admins"`
	if sql != want {
		t.Errorf("expected:\n  %s\ngot:\n  %s", want, sql)
	}
}

func TestSetOperationChainIsLeftAssociative(t *testing.T) {
	t.Parallel()
	q := func(table string) *SelectManager {
		e := nodes.NewEntity(table, "")
		return NewSelectManager(e).Select(e.StringProp("name"))
	}
	m := q("a").Except(q("b"), q("c"))

	op, ok := m.Metadata().Union().(*nodes.Operation)
	if !ok || op.Operator() != nodes.OpExcept {
		t.Fatalf("expected an EXCEPT chain, got %T", m.Metadata().Union())
	}
	if inner, ok := op.Arg(0).(*nodes.Operation); !ok || inner.Operator() != nodes.OpExcept {
		t.Error("expected the left argument to hold the first pair")
	}
	if op.Type() != nodes.CollectionOf(nodes.KindString) {
		t.Errorf("expected collection<string>, got %s", op.Type())
	}
}

func TestSetOperationTypeMismatch(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	a := NewSelectManager(users).Select(users.StringProp("name"))
	b := NewSelectManager(users).Select(users.NumberProp("age"))

	var me *nodes.MalformedExpressionError
	if _, _, err := a.Intersect(b).ToSQL(pg()); !errors.As(err, &me) {
		t.Errorf("expected MalformedExpressionError, got %v", err)
	}
}

// --- Subqueries ---

func TestExistsSubQuery(t *testing.T) {
	t.Parallel()
	users, orders := nodes.NewEntity("users", "u"), nodes.NewEntity("orders", "o")
	exists, err := NewSelectManager(orders).
		Where(orders.Col("user_id").Eq(users.Col("id")), orders.NumberProp("total").Gt(5)).
		Exists()
	if err != nil {
		t.Fatal(err)
	}
	m := NewSelectManager(users).Where(users.StringProp("name").Eq("abc"), exists, users.NumberProp("age").Gt(10))

	assertSQL(t, m,
		`SELECT * FROM "users" "u" WHERE "u"."name" = $1 AND EXISTS (SELECT * FROM "orders" "o" WHERE "o"."user_id" = "u"."id" AND "o"."total" > $2) AND "u"."age" > $3`,
		"abc", 5, 10)
}

func TestScalarSubQuery(t *testing.T) {
	t.Parallel()
	products := nodes.NewEntity("products", "")
	price := products.NumberProp("price")
	avg, err := NewSelectManager(products).Select(price.Avg()).ScalarSubQuery()
	if err != nil {
		t.Fatal(err)
	}
	if avg.Type() != nodes.TypeNumber {
		t.Errorf("expected number, got %s", avg.Type())
	}
	m := NewSelectManager(products).Where(price.Gt(avg))
	assertSQL(t, m,
		`SELECT * FROM "products" WHERE "products"."price" > (SELECT AVG("products"."price") FROM "products")`)
}

func TestSubQueryElementType(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	tests := []struct {
		m    *SelectManager
		want nodes.Type
	}{
		{NewSelectManager(users), nodes.CollectionOf(nodes.KindAny)},
		{NewSelectManager(users).Select(users), nodes.CollectionOf(nodes.KindEntity)},
		{NewSelectManager(users).Select(users.StringProp("name")), nodes.CollectionOf(nodes.KindString)},
		{NewSelectManager(users).Select(users.Col("a"), users.Col("b")), nodes.CollectionOf(nodes.KindTuple)},
	}
	for _, tt := range tests {
		sub, err := tt.m.SubQuery()
		if err != nil {
			t.Fatal(err)
		}
		if sub.Type() != tt.want {
			t.Errorf("expected %s, got %s", tt.want, sub.Type())
		}
	}
}

// --- Params ---

func TestSetParam(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	minAge := nodes.NewParam("min_age", nodes.TypeNumber)
	m := NewSelectManager(users).Where(users.NumberProp("age").Goe(minAge))

	_, _, err := m.ToSQL(pg())
	var pe *visitors.ParamNotSetError
	if !errors.As(err, &pe) || pe.Name != "min_age" {
		t.Fatalf("expected ParamNotSetError for min_age, got %v", err)
	}

	m.Set(minAge, 21)
	assertSQL(t, m, `SELECT * FROM "users" WHERE "users"."age" >= $1`, 21)
}

// --- Count ---

func TestToCountSQL(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).
		Select(users.Col("name")).
		Where(users.NumberProp("age").Gt(18)).
		Order(users.Col("name").Asc()).
		Limit(10)

	sql, params, err := m.ToCountSQL(pg())
	testutil.AssertSQL(t, stmt{sql}, err, `SELECT COUNT(*) FROM "users" WHERE "users"."age" > $1`)
	testutil.AssertParams(t, params, 18)

	m.Distinct()
	sql, _, err = m.ToCountSQL(pg())
	testutil.AssertSQL(t, stmt{sql}, err,
		`SELECT COUNT(*) FROM (SELECT DISTINCT "users"."name" FROM "users" WHERE "users"."age" > $1) "internal"`)
}

// --- Clone / transformers ---

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).Where(users.NumberProp("age").Gt(18))
	c := m.Clone().Where(users.BoolProp("active").Eq(true)).Limit(5)

	assertSQL(t, m, `SELECT * FROM "users" WHERE "users"."age" > $1`, 18)
	assertSQL(t, c, `SELECT * FROM "users" WHERE "users"."age" > $1 AND "users"."active" = $2 LIMIT 5`, 18, true)
}

func TestUseAppliesTransformersToClone(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewSelectManager(users).Use(softdelete.New())

	assertSQL(t, m, `SELECT * FROM "users" WHERE "users"."deleted_at" IS NULL`)
	if m.Metadata().Where() != nil {
		t.Error("expected the builder's metadata to be untouched")
	}
	if len(m.Transformers()) != 1 {
		t.Errorf("expected 1 transformer, got %d", len(m.Transformers()))
	}
}

func TestTransformersApplyToSubQueries(t *testing.T) {
	t.Parallel()
	users, orders := nodes.NewEntity("users", ""), nodes.NewEntity("orders", "")
	sub, err := NewSelectManager(orders).
		Select(orders.Col("user_id")).
		Use(softdelete.New(softdelete.WithColumn("removed_at"))).
		SubQuery()
	if err != nil {
		t.Fatal(err)
	}
	m := NewSelectManager(users).Where(users.Col("id").In(sub))

	assertSQL(t, m,
		`SELECT * FROM "users" WHERE "users"."id" IN (SELECT "orders"."user_id" FROM "orders" WHERE "orders"."removed_at" IS NULL)`)
}

type failingTransformer struct {
	plugins.BaseTransformer
}

var errRejected = errors.New("rejected")

func (failingTransformer) TransformSelect(*nodes.QueryMetadata) (*nodes.QueryMetadata, error) {
	return nil, errRejected
}

func TestTransformerErrorPropagates(t *testing.T) {
	t.Parallel()
	m := NewSelectManager(nodes.NewEntity("users", "")).Use(failingTransformer{})
	if _, _, err := m.ToSQL(pg()); !errors.Is(err, errRejected) {
		t.Errorf("expected errRejected, got %v", err)
	}
	if _, err := m.SubQuery(); !errors.Is(err, errRejected) {
		t.Errorf("expected errRejected from SubQuery, got %v", err)
	}
}
