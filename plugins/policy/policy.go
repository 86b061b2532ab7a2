// Package policy provides a Transformer that enforces row-level access
// policies by conjoining policy conditions onto every statement.
//
// A [Func] is called once per entity the statement reads or writes (the
// FROM list and join targets of a select, the target of an update or
// delete). It returns the predicates that restrict the rows of that entity,
// built on the entity passed in so aliases are preserved. Returning an
// error rejects the statement.
//
//	p := policy.New(func(ref plugins.TableRef) ([]nodes.Expression, error) {
//	    switch ref.Name {
//	    case "secrets":
//	        return nil, policy.Deny(ref.Name)
//	    case "users":
//	        return []nodes.Expression{ref.Entity.NumberProp("tenant_id").Eq(42)}, nil
//	    }
//	    return nil, nil
//	})
//	query := managers.NewSelectManager(users).Use(p)
//	// SELECT * FROM "users" WHERE "users"."tenant_id" = $1
//
// Policies compose with other transformers; they apply in Use order:
//
//	query.Use(softdelete.New()).Use(p)
package policy

import (
	"fmt"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
)

// Name identifies the plugin in registries and DOT clusters.
const Name = "policy"

// Color is the DOT cluster color for conditions added by the plugin.
const Color = "#77DD77"

// Func evaluates the policy for one entity.
type Func func(ref plugins.TableRef) ([]nodes.Expression, error)

// DeniedError rejects every statement touching Table.
type DeniedError struct {
	Table string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access to table %q denied", e.Table)
}

// Deny returns the error a Func reports for a forbidden table.
func Deny(table string) error { return &DeniedError{Table: table} }

// Policy is a Transformer that conjoins the conditions of a Func.
type Policy struct {
	plugins.BaseTransformer
	eval Func
}

// New creates a Policy evaluating fn.
func New(fn Func) *Policy {
	return &Policy{eval: fn}
}

// Conditions evaluates the policy for every source of md, in source order.
func (p *Policy) Conditions(md *nodes.QueryMetadata) ([]nodes.Expression, error) {
	var preds []nodes.Expression
	for _, ref := range plugins.CollectTables(md) {
		conds, err := p.evaluate(ref)
		if err != nil {
			return nil, err
		}
		preds = append(preds, conds...)
	}
	return preds, nil
}

func (p *Policy) evaluate(ref plugins.TableRef) ([]nodes.Expression, error) {
	conds, err := p.eval(ref)
	if err != nil {
		return nil, fmt.Errorf("policy: %s: %w", ref.Name, err)
	}
	return conds, nil
}

// TransformSelect conjoins the policy conditions onto WHERE.
func (p *Policy) TransformSelect(md *nodes.QueryMetadata) (*nodes.QueryMetadata, error) {
	preds, err := p.Conditions(md)
	if err != nil {
		return nil, err
	}
	if len(preds) > 0 {
		md.AddWhere(preds...)
	}
	return md, nil
}

// TransformUpdate restricts an UPDATE to the rows the policy allows.
func (p *Policy) TransformUpdate(stmt *nodes.UpdateClause) (*nodes.UpdateClause, error) {
	if stmt == nil || stmt.Entity == nil {
		return stmt, nil
	}
	where, err := p.restrict(stmt.Entity, stmt.Where)
	if err != nil {
		return nil, err
	}
	stmt.Where = where
	return stmt, nil
}

// TransformDelete restricts a DELETE to the rows the policy allows.
func (p *Policy) TransformDelete(stmt *nodes.DeleteClause) (*nodes.DeleteClause, error) {
	if stmt == nil || stmt.Entity == nil {
		return stmt, nil
	}
	where, err := p.restrict(stmt.Entity, stmt.Where)
	if err != nil {
		return nil, err
	}
	stmt.Where = where
	return stmt, nil
}

func (p *Policy) restrict(entity *nodes.Path, where nodes.Expression) (nodes.Expression, error) {
	conds, err := p.evaluate(plugins.TableRef{Entity: entity, Name: entity.Table()})
	if err != nil {
		return nil, err
	}
	return nodes.AllOf(append([]nodes.Expression{where}, conds...)...), nil
}
