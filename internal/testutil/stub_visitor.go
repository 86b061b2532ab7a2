// Package testutil provides shared test helpers.
package testutil

import (
	"strings"

	"github.com/bawdo/querytree/nodes"
)

// StubVisitor renders expressions as short tags for structural assertions.
type StubVisitor struct{}

var _ nodes.Visitor[string, struct{}] = StubVisitor{}

func (sv StubVisitor) VisitPath(p *nodes.Path, _ struct{}) string         { return p.String() }
func (sv StubVisitor) VisitConstant(c *nodes.Constant, _ struct{}) string { return "lit" }
func (sv StubVisitor) VisitNull(n *nodes.Null, _ struct{}) string         { return "null" }
func (sv StubVisitor) VisitParam(p *nodes.Param, _ struct{}) string       { return p.String() }
func (sv StubVisitor) VisitSubQuery(s *nodes.SubQuery, _ struct{}) string { return "subquery" }

func (sv StubVisitor) VisitOperation(o *nodes.Operation, _ struct{}) string {
	return string(o.Operator()) + "(" + sv.join(o.Args()) + ")"
}

func (sv StubVisitor) VisitTemplate(t *nodes.TemplateExpr, _ struct{}) string {
	return "template(" + sv.join(t.Args()) + ")"
}

func (sv StubVisitor) VisitFactory(f *nodes.Factory, _ struct{}) string {
	return f.Name() + "(" + sv.join(f.Args()) + ")"
}

func (sv StubVisitor) join(args []nodes.Expression) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = nodes.Accept[string, struct{}](a, sv, struct{}{})
	}
	return strings.Join(parts, ",")
}

// Render applies StubVisitor to e.
func Render(e nodes.Expression) string {
	return nodes.Accept[string, struct{}](e, StubVisitor{}, struct{}{})
}
