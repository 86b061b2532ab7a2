package softdelete

import (
	"testing"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

func toSQL(t *testing.T, md *nodes.QueryMetadata) string {
	t.Helper()
	st, err := visitors.NewSerializer(templates.Postgres(), visitors.WithoutParams()).Serialize(md, false)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return st.SQL
}

func from(sources ...*nodes.Path) *nodes.QueryMetadata {
	md := nodes.NewQueryMetadata()
	for i, s := range sources {
		if i == 0 {
			md.AddJoin(nodes.DefaultJoin, s)
			continue
		}
		md.AddJoin(nodes.InnerJoin, s)
		_ = md.AddJoinCondition(sources[0].Col("id").Eq(s.Col("user_id")))
	}
	return md
}

// --- Default behaviour ---

func TestDefaultColumnDeletedAt(t *testing.T) {
	t.Parallel()
	result, err := New().TransformSelect(from(nodes.NewEntity("users", "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" WHERE "users"."deleted_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

func TestCustomColumnName(t *testing.T) {
	t.Parallel()
	result, err := New(WithColumn("removed_at")).TransformSelect(from(nodes.NewEntity("users", "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" WHERE "users"."removed_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

func TestPreservesExistingWheres(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	md := from(users)
	md.AddWhere(users.BoolProp("active").Eq(true))

	result, err := New().TransformSelect(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" WHERE "users"."active" = TRUE AND "users"."deleted_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

func TestAppliedToJoinedTables(t *testing.T) {
	t.Parallel()
	md := from(nodes.NewEntity("users", ""), nodes.NewEntity("posts", ""))

	result, err := New().TransformSelect(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" INNER JOIN "posts" ON "users"."id" = "posts"."user_id" WHERE "users"."deleted_at" IS NULL AND "posts"."deleted_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

func TestWithTablesFiltersToSpecifiedTables(t *testing.T) {
	t.Parallel()
	md := from(nodes.NewEntity("users", ""), nodes.NewEntity("posts", ""))

	result, err := New(WithTables("users")).TransformSelect(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" INNER JOIN "posts" ON "users"."id" = "posts"."user_id" WHERE "users"."deleted_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

func TestAppliedToTableAlias(t *testing.T) {
	t.Parallel()
	result, err := New().TransformSelect(from(nodes.NewEntity("users", "u")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" "u" WHERE "u"."deleted_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

func TestWithTablesMatchesByUnderlyingName(t *testing.T) {
	t.Parallel()
	md := from(nodes.NewEntity("users", "u"))

	if n := len(New(WithTables("users")).Conditions(md)); n != 1 {
		t.Errorf("expected 1 condition, got %d", n)
	}
	if n := len(New(WithTables("u")).Conditions(md)); n != 0 {
		t.Errorf("expected alias not to match, got %d", n)
	}
}

func TestNoTablesIsNoOp(t *testing.T) {
	t.Parallel()
	result, err := New().TransformSelect(nodes.NewQueryMetadata())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Where() != nil {
		t.Errorf("expected no where, got %v", visitors.ToString(result.Where()))
	}
}

// --- Per-table column overrides ---

func TestWithTableColumnMultiple(t *testing.T) {
	t.Parallel()
	md := from(nodes.NewEntity("users", ""), nodes.NewEntity("posts", ""))

	sd := New(
		WithTableColumn("users", "deleted_at"),
		WithTableColumn("posts", "removed_at"),
	)
	result, err := sd.TransformSelect(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" INNER JOIN "posts" ON "users"."id" = "posts"."user_id" WHERE "users"."deleted_at" IS NULL AND "posts"."removed_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

func TestWithTableColumnFallsBackToDefault(t *testing.T) {
	t.Parallel()
	md := from(nodes.NewEntity("users", ""), nodes.NewEntity("posts", ""))

	sd := New(
		WithTableColumn("posts", "removed_at"),
		WithTables("users", "posts"),
	)
	result, err := sd.TransformSelect(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := toSQL(t, result)
	expected := `SELECT * FROM "users" INNER JOIN "posts" ON "users"."id" = "posts"."user_id" WHERE "users"."deleted_at" IS NULL AND "posts"."removed_at" IS NULL`
	if got != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, got)
	}
}

// --- UPDATE scoping ---

func TestTransformUpdate(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	stmt := &nodes.UpdateClause{
		Entity: users,
		Set:    []nodes.Assignment{{Column: users.StringProp("name"), Value: nodes.Literal("ann")}},
		Where:  users.NumberProp("id").Eq(1),
	}
	result, err := New().TransformUpdate(stmt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, err := visitors.NewSerializer(templates.Postgres()).SerializeUpdate(result, nil)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	expected := `UPDATE "users" SET "name" = $1 WHERE "users"."id" = $2 AND "users"."deleted_at" IS NULL`
	if st.SQL != expected {
		t.Errorf("expected:\n  %s\ngot:\n  %s", expected, st.SQL)
	}

	other := &nodes.UpdateClause{Entity: nodes.NewEntity("posts", "")}
	result, _ = New(WithTables("users")).TransformUpdate(other)
	if result.Where != nil {
		t.Error("expected posts update to be left unscoped")
	}
}

func TestImplementsTransformer(t *testing.T) {
	t.Parallel()
	var _ plugins.Transformer = New()
}
