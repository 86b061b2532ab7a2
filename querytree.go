// Package querytree builds typed SQL expression trees and renders them for
// a target dialect.
//
// This package re-exports the commonly used types and constructors of its
// subpackages. Import the subpackages directly for the full API:
//   - github.com/bawdo/querytree/nodes (expressions and query metadata)
//   - github.com/bawdo/querytree/managers (query builders)
//   - github.com/bawdo/querytree/templates (dialects and operator templates)
//   - github.com/bawdo/querytree/visitors (SQL, DOT and text rendering)
//   - github.com/bawdo/querytree/projections (tuples and constructors)
//   - github.com/bawdo/querytree/plugins (query transformers)
package querytree

import (
	"github.com/bawdo/querytree/internal/querydoc"
	"github.com/bawdo/querytree/managers"
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

// --- Managers ---

// SelectManager builds SELECT queries.
type SelectManager = managers.SelectManager

// InsertManager builds INSERT statements.
type InsertManager = managers.InsertManager

// UpdateManager builds UPDATE statements.
type UpdateManager = managers.UpdateManager

// DeleteManager builds DELETE statements.
type DeleteManager = managers.DeleteManager

// NewSelect starts a query over from.
func NewSelect(from nodes.Expression) *SelectManager { return managers.NewSelectManager(from) }

// NewInsert starts an insert into the entity into.
func NewInsert(into *nodes.Path) *InsertManager { return managers.NewInsertManager(into) }

// NewUpdate starts an update of entity.
func NewUpdate(entity *nodes.Path) *UpdateManager { return managers.NewUpdateManager(entity) }

// NewDelete starts a delete from the entity from.
func NewDelete(from *nodes.Path) *DeleteManager { return managers.NewDeleteManager(from) }

// --- Expressions ---

// Expression is the interface every tree node implements.
type Expression = nodes.Expression

// Path is an entity, a property of one or a free variable.
type Path = nodes.Path

// Entity returns a table reference; alias may be empty.
func Entity(table, alias string) *Path { return nodes.NewEntity(table, alias) }

// Literal wraps a Go value as a constant.
func Literal(v any) *nodes.Constant { return nodes.Literal(v) }

// Param is a named parameter bound later with SetParam.
func Param(name string, t nodes.Type) *nodes.Param { return nodes.NewParam(name, t) }

// AllOf conjoins the non-nil predicates.
func AllOf(preds ...Expression) Expression { return nodes.AllOf(preds...) }

// AnyOf disjoins the non-nil predicates.
func AnyOf(preds ...Expression) Expression { return nodes.AnyOf(preds...) }

// Not negates pred.
func Not(pred Expression) *nodes.Operation { return nodes.Not(pred) }

// CountAll is COUNT(*).
func CountAll() *nodes.Operation { return nodes.CountAll() }

// --- Rendering ---

// Dialect is a named set of operator templates.
type Dialect = templates.Dialect

// Serializer renders expressions and queries for one dialect.
type Serializer = visitors.Serializer

// Built-in dialects.
var (
	ANSI     = templates.ANSI
	Postgres = templates.Postgres
	MySQL    = templates.MySQL
	SQLite   = templates.SQLite
)

// NewSerializer returns a serializer for d.
func NewSerializer(d *Dialect, opts ...visitors.Option) *Serializer {
	return visitors.NewSerializer(d, opts...)
}

// WithoutParams renders constants inline instead of binding them. Only use
// it with trusted values.
func WithoutParams() visitors.Option { return visitors.WithoutParams() }

// WithPrettyPrint starts each clause on its own line.
func WithPrettyPrint() visitors.Option { return visitors.WithPrettyPrint() }

// ToString renders e in the diagnostic dialect.
func ToString(e Expression) string { return visitors.ToString(e) }

// RenderDocument renders a YAML query document with s.
func RenderDocument(src []byte, s *Serializer) (string, []any, error) {
	d, err := querydoc.Parse(src)
	if err != nil {
		return "", nil, err
	}
	q, err := d.Build()
	if err != nil {
		return "", nil, err
	}
	return q.ToSQL(s)
}
