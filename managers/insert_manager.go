package managers

import (
	"fmt"
	"slices"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/visitors"
)

// InsertManager provides a fluent API for building INSERT statements.
type InsertManager struct {
	treeManager
	stmt *nodes.InsertClause
}

// NewInsertManager creates a new InsertManager targeting the given entity.
func NewInsertManager(into *nodes.Path) *InsertManager {
	return &InsertManager{stmt: &nodes.InsertClause{Entity: into}}
}

// Statement returns the clause being built. Transformers are not applied.
func (m *InsertManager) Statement() *nodes.InsertClause { return m.stmt }

// Columns sets the column list for the INSERT statement.
func (m *InsertManager) Columns(cols ...*nodes.Path) *InsertManager {
	m.stmt.Columns = cols
	return m
}

// Values appends a row of values. Each call adds one row. Go values are
// wrapped as constants; nil becomes NULL.
func (m *InsertManager) Values(vals ...any) *InsertManager {
	if len(m.stmt.Columns) > 0 && len(vals) != len(m.stmt.Columns) {
		m.fail(fmt.Errorf("insert: row %d has %d values for %d columns",
			len(m.stmt.Rows), len(vals), len(m.stmt.Columns)))
		return m
	}
	row := make([]nodes.Expression, len(vals))
	for i, v := range vals {
		hint := nodes.TypeAny
		if i < len(m.stmt.Columns) {
			hint = m.stmt.Columns[i].Type()
		}
		row[i] = nodes.ValueOf(v, hint)
	}
	m.stmt.Rows = append(m.stmt.Rows, row)
	return m
}

// FromSelect sets a SELECT as the source of rows. Values are ignored once
// a select is set.
func (m *InsertManager) FromSelect(sel *SelectManager) *InsertManager {
	sub, err := sel.SubQuery()
	if err != nil {
		m.fail(err)
		return m
	}
	m.stmt.Select = sub
	return m
}

// Use registers a transformer plugin.
func (m *InsertManager) Use(t plugins.Transformer) *InsertManager {
	m.addTransformer(t)
	return m
}

// ToSQL applies transformers and generates SQL with parameters.
func (m *InsertManager) ToSQL(s *visitors.Serializer) (string, []any, error) {
	if m.err != nil {
		return "", nil, m.err
	}
	stmt := m.cloneStatement()
	for _, t := range m.transformers {
		var err error
		stmt, err = t.TransformInsert(stmt)
		if err != nil {
			return "", nil, err
		}
	}
	return unpack(s.SerializeInsert(stmt, nil))
}

func (m *InsertManager) cloneStatement() *nodes.InsertClause {
	rows := make([][]nodes.Expression, len(m.stmt.Rows))
	for i, r := range m.stmt.Rows {
		rows[i] = slices.Clone(r)
	}
	return &nodes.InsertClause{
		Entity:  m.stmt.Entity,
		Columns: slices.Clone(m.stmt.Columns),
		Rows:    rows,
		Select:  m.stmt.Select,
	}
}
