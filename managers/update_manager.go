package managers

import (
	"slices"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/visitors"
)

// UpdateManager provides a fluent API for building UPDATE statements.
type UpdateManager struct {
	treeManager
	stmt *nodes.UpdateClause
	md   *nodes.QueryMetadata
}

// NewUpdateManager creates a new UpdateManager targeting the given entity.
func NewUpdateManager(entity *nodes.Path) *UpdateManager {
	return &UpdateManager{
		stmt: &nodes.UpdateClause{Entity: entity},
		md:   nodes.NewQueryMetadata(),
	}
}

// Statement returns the clause being built. Transformers are not applied.
func (m *UpdateManager) Statement() *nodes.UpdateClause { return m.stmt }

// Set adds a column assignment to the SET clause. val can be a Go value or
// an expression.
func (m *UpdateManager) Set(col *nodes.Path, val any) *UpdateManager {
	m.stmt.Set = append(m.stmt.Set, nodes.Assignment{Column: col, Value: nodes.ValueOf(val, col.Type())})
	return m
}

// Where conjoins conditions onto the WHERE clause.
func (m *UpdateManager) Where(conditions ...nodes.Expression) *UpdateManager {
	m.stmt.Where = nodes.AllOf(append([]nodes.Expression{m.stmt.Where}, conditions...)...)
	return m
}

// Bind sets the value of a named parameter used in the statement.
func (m *UpdateManager) Bind(p *nodes.Param, v any) *UpdateManager {
	m.md.SetParam(p, v)
	return m
}

// Use registers a transformer plugin.
func (m *UpdateManager) Use(t plugins.Transformer) *UpdateManager {
	m.addTransformer(t)
	return m
}

// ToSQL applies transformers and generates SQL with parameters.
func (m *UpdateManager) ToSQL(s *visitors.Serializer) (string, []any, error) {
	stmt := &nodes.UpdateClause{Entity: m.stmt.Entity, Set: slices.Clone(m.stmt.Set), Where: m.stmt.Where}
	for _, t := range m.transformers {
		var err error
		stmt, err = t.TransformUpdate(stmt)
		if err != nil {
			return "", nil, err
		}
	}
	return unpack(s.SerializeUpdate(stmt, m.md))
}
