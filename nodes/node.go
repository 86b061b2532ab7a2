// Package nodes defines the expression tree and query metadata consumed by
// the serializer and the projection reconstructor.
//
// Expressions are immutable once built. Equality and hashing are structural
// so independently built expressions can be used as map and dedup keys.
package nodes

import "fmt"

// Expression is the closed set of tree nodes: *Path, *Constant, *Null,
// *Param, *Operation, *TemplateExpr, *SubQuery and *Factory.
type Expression interface {
	// Type returns the static type of the expression.
	Type() Type
	// Hash returns the structural hash computed at construction.
	Hash() uint64
	expression()
}

// Visitor traverses expressions. R is the result type and C the context
// threaded through the walk.
type Visitor[R, C any] interface {
	VisitPath(p *Path, ctx C) R
	VisitConstant(c *Constant, ctx C) R
	VisitNull(n *Null, ctx C) R
	VisitParam(p *Param, ctx C) R
	VisitOperation(o *Operation, ctx C) R
	VisitTemplate(t *TemplateExpr, ctx C) R
	VisitSubQuery(s *SubQuery, ctx C) R
	VisitFactory(f *Factory, ctx C) R
}

// Accept dispatches e to the matching Visitor method.
func Accept[R, C any](e Expression, v Visitor[R, C], ctx C) R {
	switch x := e.(type) {
	case *Path:
		return v.VisitPath(x, ctx)
	case *Constant:
		return v.VisitConstant(x, ctx)
	case *Null:
		return v.VisitNull(x, ctx)
	case *Param:
		return v.VisitParam(x, ctx)
	case *Operation:
		return v.VisitOperation(x, ctx)
	case *TemplateExpr:
		return v.VisitTemplate(x, ctx)
	case *SubQuery:
		return v.VisitSubQuery(x, ctx)
	case *Factory:
		return v.VisitFactory(x, ctx)
	}
	panic(fmt.Sprintf("querytree: unknown expression type %T", e))
}

// Walk calls fn for e and every expression beneath it in pre-order,
// left to right. Subquery metadata is not entered. Returning false from fn
// skips the children of the current node.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *Operation:
		for _, a := range x.args {
			Walk(a, fn)
		}
	case *TemplateExpr:
		for _, a := range x.args {
			Walk(a, fn)
		}
	case *Factory:
		for _, a := range x.args {
			Walk(a, fn)
		}
	}
}
