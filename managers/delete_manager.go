package managers

import (
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/visitors"
)

// DeleteManager provides a fluent API for building DELETE statements.
type DeleteManager struct {
	treeManager
	stmt *nodes.DeleteClause
	md   *nodes.QueryMetadata
}

// NewDeleteManager creates a new DeleteManager targeting the given entity.
func NewDeleteManager(from *nodes.Path) *DeleteManager {
	return &DeleteManager{
		stmt: &nodes.DeleteClause{Entity: from},
		md:   nodes.NewQueryMetadata(),
	}
}

// Statement returns the clause being built. Transformers are not applied.
func (m *DeleteManager) Statement() *nodes.DeleteClause { return m.stmt }

// Where conjoins conditions onto the WHERE clause.
func (m *DeleteManager) Where(conditions ...nodes.Expression) *DeleteManager {
	m.stmt.Where = nodes.AllOf(append([]nodes.Expression{m.stmt.Where}, conditions...)...)
	return m
}

// Bind sets the value of a named parameter used in the statement.
func (m *DeleteManager) Bind(p *nodes.Param, v any) *DeleteManager {
	m.md.SetParam(p, v)
	return m
}

// Use registers a transformer plugin.
func (m *DeleteManager) Use(t plugins.Transformer) *DeleteManager {
	m.addTransformer(t)
	return m
}

// ToSQL applies transformers and generates SQL with parameters.
func (m *DeleteManager) ToSQL(s *visitors.Serializer) (string, []any, error) {
	stmt := &nodes.DeleteClause{Entity: m.stmt.Entity, Where: m.stmt.Where}
	for _, t := range m.transformers {
		var err error
		stmt, err = t.TransformDelete(stmt)
		if err != nil {
			return "", nil, err
		}
	}
	return unpack(s.SerializeDelete(stmt, m.md))
}
