package querydoc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

func usersScope(t *testing.T) *Scope {
	t.Helper()
	s, err := NewScope(nodes.NewEntity("users", ""))
	require.NoError(t, err)
	return s
}

func render(t *testing.T, e nodes.Expression) *visitors.Statement {
	t.Helper()
	st, err := visitors.NewSerializer(templates.Postgres()).SerializeExpression(e, nil)
	require.NoError(t, err)
	return st
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	toks, err := tokenize(`u.name <> 'it''s' AND x>=:min || "Order"`)
	require.NoError(t, err)

	var texts []string
	for _, tk := range toks[:len(toks)-1] {
		texts = append(texts, tk.text)
	}
	assert.Equal(t, []string{"u", ".", "name", "<>", "it's", "AND", "x", ">=", "min", "||", "Order"}, texts)
	assert.Equal(t, tokString, toks[4].kind)
	assert.Equal(t, tokParam, toks[8].kind)
	assert.Equal(t, tokEOF, toks[len(toks)-1].kind)
}

func TestExpr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src    string
		sql    string
		params []any
	}{
		{"name = 'bob' and age >= 21", `"users"."name" = $1 AND "users"."age" >= $2`, []any{"bob", 21}},
		{"x = 1 or y = 2 and z = 3", `"users"."x" = $1 OR "users"."y" = $2 AND "users"."z" = $3`, []any{1, 2, 3}},
		{"(x = 1 or y = 2) and z = 3", `("users"."x" = $1 OR "users"."y" = $2) AND "users"."z" = $3`, []any{1, 2, 3}},
		{"not active = true", `NOT "users"."active" = $1`, []any{true}},
		{"age between 18 and 65", `"users"."age" BETWEEN $1 AND $2`, []any{18, 65}},
		{"id in (1, 2, 3)", `"users"."id" IN ($1, $2, $3)`, []any{1, 2, 3}},
		{"id not in (7)", `"users"."id" NOT IN ($1)`, []any{7}},
		{"deleted_at is null", `"users"."deleted_at" IS NULL`, nil},
		{"deleted_at IS NOT NULL", `"users"."deleted_at" IS NOT NULL`, nil},
		{"name like 'a%'", `"users"."name" LIKE $1`, []any{"a%"}},
		{"name not like 'a%'", `"users"."name" NOT LIKE $1`, []any{"a%"}},
		{"(price + 1) * 2", `("users"."price" + $1) * $2`, []any{1, 2}},
		{"price - -5", `"users"."price" - $1`, []any{-5}},
		{"lower(name) = 'bob'", `LOWER("users"."name") = $1`, []any{"bob"}},
		{"first || ' ' || last", `"users"."first" || $1 || "users"."last"`, []any{" "}},
		{"count(*)", `COUNT(*)`, nil},
		{"count(distinct email)", `COUNT(DISTINCT "users"."email")`, nil},
		{"users.id = 1", `"users"."id" = $1`, []any{1}},
		{
			"case when age >= 18 then 'adult' else 'minor' end",
			`CASE WHEN "users"."age" >= $1 THEN $2 ELSE $3 END`,
			[]any{18, "adult", "minor"},
		},
		{"case status when 1 then 'on' end", `CASE "users"."status" WHEN $1 THEN $2 END`, []any{1, "on"}},
		{
			"rank() over (partition by city order by age desc)",
			`RANK() OVER (PARTITION BY "users"."city" ORDER BY "users"."age" DESC)`,
			nil,
		},
		{"sum(amount) over w", `SUM("users"."amount") OVER "w"`, nil},
		{"row_number() over ()", `ROW_NUMBER() OVER ()`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			t.Parallel()
			e, err := usersScope(t).Expr(tt.src)
			require.NoError(t, err)
			st := render(t, e)
			assert.Equal(t, tt.sql, st.SQL)
			if len(tt.params) == 0 {
				assert.Empty(t, st.Params)
			} else {
				assert.Equal(t, tt.params, st.Params)
			}
		})
	}
}

func TestExprCaseErrors(t *testing.T) {
	t.Parallel()
	for src, want := range map[string]string{
		"case end":                     "WHEN expected",
		"case when x = 1 'a' end":      "THEN expected",
		"case when x = 1 then 'a'":     "END expected",
		"rank() over (partition city)": "BY expected",
	} {
		_, err := usersScope(t).Expr(src)
		assert.ErrorContains(t, err, want, src)
	}
}

func TestExprDecimal(t *testing.T) {
	t.Parallel()
	e, err := usersScope(t).Expr("price = 1.50")
	require.NoError(t, err)
	st := render(t, e)
	require.Len(t, st.Params, 1)
	d, ok := st.Params[0].(decimal.Decimal)
	require.True(t, ok, "got %T", st.Params[0])
	assert.True(t, d.Equal(decimal.RequireFromString("1.5")))
}

func TestExprParam(t *testing.T) {
	t.Parallel()
	e, err := usersScope(t).Expr("age > :min")
	require.NoError(t, err)

	md := nodes.NewQueryMetadata()
	md.SetParam(nodes.NewParam("min", nodes.TypeAny), 30)
	st, err := visitors.NewSerializer(templates.Postgres()).SerializeExpression(e, md)
	require.NoError(t, err)
	assert.Equal(t, `"users"."age" > $1`, st.SQL)
	assert.Equal(t, []any{30}, st.Params)

	_, err = visitors.NewSerializer(templates.Postgres()).SerializeExpression(e, nil)
	var pe *visitors.ParamNotSetError
	assert.ErrorAs(t, err, &pe)
}

func TestExprCustomFunction(t *testing.T) {
	t.Parallel()
	e, err := usersScope(t).Expr("sign(balance)")
	require.NoError(t, err)
	op, ok := e.(*nodes.Operation)
	require.True(t, ok)
	assert.Equal(t, nodes.Operator("SIGN"), op.Operator())

	_, err = visitors.NewSerializer(templates.Postgres()).SerializeExpression(e, nil)
	var ue *templates.UnsupportedOperationError
	assert.ErrorAs(t, err, &ue)
}

func TestExprFreeVariables(t *testing.T) {
	t.Parallel()
	s, err := NewScope()
	require.NoError(t, err)
	e, err := s.Expr("name = 'abc' and age > 10")
	require.NoError(t, err)

	st, err := visitors.NewSerializer(templates.ANSI()).SerializeExpression(e, nil)
	require.NoError(t, err)
	assert.Equal(t, "name = ? AND age > ?", st.SQL)
}

func TestExprErrors(t *testing.T) {
	t.Parallel()
	two, err := NewScope(nodes.NewEntity("users", "u"), nodes.NewEntity("posts", "p"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		scope *Scope
		src   string
		want  string
	}{
		{"dangling operator", usersScope(t), "name =", "expression expected"},
		{"unterminated string", usersScope(t), "name = 'abc", "unterminated string"},
		{"unknown alias", usersScope(t), "q.name = 1", `unknown table or alias "q"`},
		{"ambiguous column", two, "id = 1", `column "id" is ambiguous`},
		{"non literal in list", usersScope(t), "id in (other)", "IN lists accept literals only"},
		{"trailing tokens", usersScope(t), "id = 1 2", `unexpected "2"`},
		{"bad character", usersScope(t), "id ; 1", "unexpected character"},
		{"missing null", usersScope(t), "id is 1", "NULL expected after IS"},
		{"missing paren", usersScope(t), "(id = 1", `")" expected`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.scope.Expr(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExprTypeMismatch(t *testing.T) {
	t.Parallel()
	_, err := usersScope(t).Expr("'a' + 1")
	var me *nodes.MalformedExpressionError
	assert.ErrorAs(t, err, &me)
}

func TestSyntaxErrorPosition(t *testing.T) {
	t.Parallel()
	_, err := usersScope(t).Expr("id = 1 )")
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 7, se.Pos)
}

func TestSelectItem(t *testing.T) {
	t.Parallel()
	u := nodes.NewEntity("users", "u")
	s, err := NewScope(u)
	require.NoError(t, err)

	e, err := s.SelectItem("*")
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = s.SelectItem("u")
	require.NoError(t, err)
	assert.True(t, nodes.Equal(u, e))

	e, err = s.SelectItem("u.*")
	require.NoError(t, err)
	assert.Equal(t, `"u".*`, render(t, e).SQL)

	e, err = s.SelectItem("count(u.id) as total")
	require.NoError(t, err)
	assert.Equal(t, `COUNT("u"."id") AS "total"`, render(t, e).SQL)

	_, err = s.SelectItem("u.id as")
	assert.Error(t, err)
}

func TestOrderItem(t *testing.T) {
	t.Parallel()
	s := usersScope(t)
	tests := []struct {
		src   string
		order nodes.Order
		nulls nodes.NullHandling
	}{
		{"name", nodes.Asc, nodes.NullsDefault},
		{"name ASC", nodes.Asc, nodes.NullsDefault},
		{"name desc", nodes.Desc, nodes.NullsDefault},
		{"name desc nulls last", nodes.Desc, nodes.NullsLast},
		{"name nulls first", nodes.Asc, nodes.NullsFirst},
	}
	for _, tt := range tests {
		spec, err := s.OrderItem(tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.order, spec.Order, tt.src)
		assert.Equal(t, tt.nulls, spec.Nulls, tt.src)
		assert.True(t, nodes.Equal(nodes.NewEntity("users", "").Col("name"), spec.Target))
	}

	_, err := s.OrderItem("name nulls sometimes")
	assert.Error(t, err)
}

func TestParseEntity(t *testing.T) {
	t.Parallel()
	for ref, alias := range map[string]string{"users": "users", "users u": "u", "users AS u": "u"} {
		e, err := ParseEntity(ref)
		require.NoError(t, err)
		assert.Equal(t, "users", e.Table())
		assert.Equal(t, alias, e.Name())
	}
	_, err := ParseEntity("users as u extra")
	assert.Error(t, err)
	_, err = ParseEntity("")
	assert.Error(t, err)
}

func TestScopeDuplicateAlias(t *testing.T) {
	t.Parallel()
	_, err := NewScope(nodes.NewEntity("users", "x"), nodes.NewEntity("posts", "x"))
	assert.ErrorContains(t, err, `alias "x" used twice`)
}
