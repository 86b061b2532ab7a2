package plugins

import (
	"testing"

	"github.com/bawdo/querytree/nodes"
)

// --- BaseTransformer no-op behaviour ---

func TestBaseTransformerSelect(t *testing.T) {
	t.Parallel()
	bt := BaseTransformer{}
	users := nodes.NewEntity("users", "")
	md := nodes.NewQueryMetadata()
	md.AddJoin(nodes.DefaultJoin, users)
	md.SetProjection(users.Col("id"))
	md.AddWhere(users.BoolProp("active").Eq(true))

	result, err := bt.TransformSelect(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != md {
		t.Error("expected BaseTransformer.TransformSelect to return input unchanged")
	}
}

func TestBaseTransformerInsert(t *testing.T) {
	t.Parallel()
	bt := BaseTransformer{}
	users := nodes.NewEntity("users", "")
	stmt := &nodes.InsertClause{
		Entity:  users,
		Columns: []*nodes.Path{users.StringProp("name")},
		Rows:    [][]nodes.Expression{{nodes.Literal("Alice")}},
	}

	result, err := bt.TransformInsert(stmt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != stmt {
		t.Error("expected BaseTransformer.TransformInsert to return input unchanged")
	}
}

func TestBaseTransformerUpdate(t *testing.T) {
	t.Parallel()
	bt := BaseTransformer{}
	users := nodes.NewEntity("users", "")
	stmt := &nodes.UpdateClause{
		Entity: users,
		Set:    []nodes.Assignment{{Column: users.StringProp("name"), Value: nodes.Literal("Bob")}},
		Where:  users.NumberProp("id").Eq(1),
	}

	result, err := bt.TransformUpdate(stmt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != stmt {
		t.Error("expected BaseTransformer.TransformUpdate to return input unchanged")
	}
}

func TestBaseTransformerDelete(t *testing.T) {
	t.Parallel()
	bt := BaseTransformer{}
	users := nodes.NewEntity("users", "")
	stmt := &nodes.DeleteClause{Entity: users, Where: users.NumberProp("id").Eq(1)}

	result, err := bt.TransformDelete(stmt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != stmt {
		t.Error("expected BaseTransformer.TransformDelete to return input unchanged")
	}
}

// --- BaseTransformer with nil inputs ---

func TestBaseTransformerNilInputs(t *testing.T) {
	t.Parallel()
	bt := BaseTransformer{}

	if md, err := bt.TransformSelect(nil); err != nil || md != nil {
		t.Errorf("select: got %v, %v", md, err)
	}
	if s, err := bt.TransformInsert(nil); err != nil || s != nil {
		t.Errorf("insert: got %v, %v", s, err)
	}
	if s, err := bt.TransformUpdate(nil); err != nil || s != nil {
		t.Errorf("update: got %v, %v", s, err)
	}
	if s, err := bt.TransformDelete(nil); err != nil || s != nil {
		t.Errorf("delete: got %v, %v", s, err)
	}
}
