package managers

import (
	"fmt"
	"strings"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/projections"
	"github.com/bawdo/querytree/visitors"
)

// SelectManager provides a fluent API for building SELECT queries.
// It owns a QueryMetadata and applies transformer plugins to a clone of it
// before SQL generation.
type SelectManager struct {
	treeManager
	md *nodes.QueryMetadata
}

// NewSelectManager creates a new SelectManager with from as the first FROM
// source. If from is nil, the FROM list is left empty.
func NewSelectManager(from nodes.Expression) *SelectManager {
	m := &SelectManager{md: nodes.NewQueryMetadata()}
	if from != nil {
		m.md.AddJoin(nodes.DefaultJoin, from)
	}
	return m
}

// Metadata returns the metadata being built. Transformers are not applied.
func (m *SelectManager) Metadata() *nodes.QueryMetadata { return m.md }

// Select sets the projection, replacing any existing one. Several
// expressions are wrapped in a tuple factory so rows can be reconstructed
// with projections.Reconstruct.
func (m *SelectManager) Select(exprs ...nodes.Expression) *SelectManager {
	switch len(exprs) {
	case 0:
		m.md.SetProjection(nil)
	case 1:
		m.md.SetProjection(exprs[0])
	default:
		f, err := projections.NewTuple(exprs...)
		if err != nil {
			m.fail(err)
			return m
		}
		m.md.SetProjection(f)
	}
	return m
}

// Project is an alias for Select.
func (m *SelectManager) Project(exprs ...nodes.Expression) *SelectManager {
	return m.Select(exprs...)
}

// Distinct enables or disables the DISTINCT modifier.
func (m *SelectManager) Distinct(on ...bool) *SelectManager {
	m.md.SetDistinct(len(on) == 0 || on[0])
	return m
}

// From appends a source to the FROM list.
func (m *SelectManager) From(source nodes.Expression) *SelectManager {
	m.md.AddJoin(nodes.DefaultJoin, source)
	return m
}

// Join adds a join and returns a JoinContext for the ON condition. The
// default join type is InnerJoin.
func (m *SelectManager) Join(target nodes.Expression, joinTypes ...nodes.JoinType) *JoinContext {
	jt := nodes.InnerJoin
	if len(joinTypes) > 0 {
		jt = joinTypes[0]
	}
	m.md.AddJoin(jt, target)
	return &JoinContext{manager: m}
}

func (m *SelectManager) LeftJoin(target nodes.Expression) *JoinContext {
	return m.Join(target, nodes.LeftJoin)
}

func (m *SelectManager) RightJoin(target nodes.Expression) *JoinContext {
	return m.Join(target, nodes.RightJoin)
}

func (m *SelectManager) FullJoin(target nodes.Expression) *JoinContext {
	return m.Join(target, nodes.FullJoin)
}

// OuterJoin is a convenience for Join with LeftJoin type.
func (m *SelectManager) OuterJoin(target nodes.Expression) *JoinContext {
	return m.Join(target, nodes.LeftJoin)
}

// LateralJoin adds a LATERAL join (PostgreSQL, MySQL 8). Default join type
// is InnerJoin.
func (m *SelectManager) LateralJoin(target nodes.Expression, joinTypes ...nodes.JoinType) *JoinContext {
	return m.Join(target, joinTypes...).Flag(nodes.Raw("LATERAL"), nodes.BeforeTarget)
}

// CrossJoin adds a cross join (no ON clause).
func (m *SelectManager) CrossJoin(target nodes.Expression) *SelectManager {
	m.md.AddJoin(nodes.CrossJoin, target)
	return m
}

// JoinSubQuery joins a derived table under alias.
func (m *SelectManager) JoinSubQuery(sub *SelectManager, alias string, joinTypes ...nodes.JoinType) *JoinContext {
	target, err := sub.As(alias)
	if err != nil {
		m.fail(fmt.Errorf("join %s: %w", alias, err))
		return &JoinContext{manager: m}
	}
	return m.Join(target, joinTypes...)
}

// AddJoinFlag attaches a flag to the last join, before its target unless a
// position is given.
func (m *SelectManager) AddJoinFlag(flag nodes.Expression, pos ...nodes.JoinFlagPosition) *SelectManager {
	p := nodes.BeforeTarget
	if len(pos) > 0 {
		p = pos[0]
	}
	m.fail(m.md.AddJoinFlag(flag, p))
	return m
}

// Where conjoins conditions onto the WHERE clause.
func (m *SelectManager) Where(conditions ...nodes.Expression) *SelectManager {
	m.md.AddWhere(conditions...)
	return m
}

// Group appends expressions to the GROUP BY clause.
func (m *SelectManager) Group(exprs ...nodes.Expression) *SelectManager {
	m.md.AddGroupBy(exprs...)
	return m
}

// Having conjoins conditions onto the HAVING clause.
func (m *SelectManager) Having(conditions ...nodes.Expression) *SelectManager {
	m.md.AddHaving(conditions...)
	return m
}

// Order appends ORDER BY entries, e.g. users.Col("name").Asc().
func (m *SelectManager) Order(specs ...nodes.OrderSpecifier) *SelectManager {
	m.md.AddOrderBy(specs...)
	return m
}

// Limit sets the row limit.
func (m *SelectManager) Limit(n int) *SelectManager {
	m.md.SetLimit(int64(n))
	return m
}

// Offset sets the row offset.
func (m *SelectManager) Offset(n int) *SelectManager {
	m.md.SetOffset(int64(n))
	return m
}

// Take is an alias for Limit.
func (m *SelectManager) Take(n int) *SelectManager {
	return m.Limit(n)
}

// ForUpdate appends the FOR UPDATE lock clause.
func (m *SelectManager) ForUpdate() *SelectManager {
	return m.lock(nodes.OpForUpdate)
}

// ForShare appends the FOR SHARE lock clause.
func (m *SelectManager) ForShare() *SelectManager {
	return m.lock(nodes.OpForShare)
}

func (m *SelectManager) lock(op nodes.Operator) *SelectManager {
	flag := nodes.MustTypedOperation(nodes.TypeAny, op)
	if !m.md.HasFlag(nodes.PositionEnd, flag) {
		m.md.AddFlag(nodes.PositionEnd, flag)
	}
	return m
}

// Comment prefixes the query with /* text */. Any occurrence of */ in the
// text is sanitized to prevent comment breakout.
func (m *SelectManager) Comment(text string) *SelectManager {
	m.md.AddFlag(nodes.PositionStart, nodes.Raw("/* "+sanitizeComment(text)+" */"))
	return m
}

// Hint adds an optimizer hint (rendered as /*+ ... */ after SELECT).
func (m *SelectManager) Hint(hint string) *SelectManager {
	m.md.AddFlag(nodes.PositionAfterSelect, nodes.Raw("/*+ "+sanitizeComment(hint)+" */"))
	return m
}

// sanitizeComment also breaks up "{" so the text never parses as a slot.
func sanitizeComment(s string) string {
	s = strings.ReplaceAll(s, "*/", "* /")
	return strings.ReplaceAll(s, "{", "{ ")
}

// AddFlag injects a fragment at a clause position.
func (m *SelectManager) AddFlag(pos nodes.Position, flag nodes.Expression) *SelectManager {
	m.md.AddFlag(pos, flag)
	return m
}

// With adds a common table expression.
func (m *SelectManager) With(name string, query *SelectManager) *SelectManager {
	sub, err := query.SubQuery()
	if err != nil {
		m.fail(fmt.Errorf("with %s: %w", name, err))
		return m
	}
	m.md.AddFlag(nodes.PositionWith, nodes.MustOperation(nodes.OpWithAlias, nodes.Var(name, sub.Type()), sub))
	return m
}

// WithRecursive adds a common table expression and marks the WITH clause
// recursive.
func (m *SelectManager) WithRecursive(name string, query *SelectManager) *SelectManager {
	if !m.md.HasFlag(nodes.PositionWith, nodes.RecursiveFlag) {
		m.md.AddFlag(nodes.PositionWith, nodes.RecursiveFlag)
	}
	return m.With(name, query)
}

// Union returns a new manager over this query UNION the others.
func (m *SelectManager) Union(others ...*SelectManager) *SelectManager {
	return m.setOperation(nodes.OpUnion, others)
}

// UnionAll returns a new manager over this query UNION ALL the others.
func (m *SelectManager) UnionAll(others ...*SelectManager) *SelectManager {
	return m.setOperation(nodes.OpUnionAll, others)
}

// Intersect returns a new manager over this query INTERSECT the others.
func (m *SelectManager) Intersect(others ...*SelectManager) *SelectManager {
	return m.setOperation(nodes.OpIntersect, others)
}

// Except returns a new manager over this query EXCEPT the others.
func (m *SelectManager) Except(others ...*SelectManager) *SelectManager {
	return m.setOperation(nodes.OpExcept, others)
}

// setOperation freezes each member with its own transformers applied.
func (m *SelectManager) setOperation(op nodes.Operator, others []*SelectManager) *SelectManager {
	out := NewSelectManager(nil)
	subs := make([]*nodes.SubQuery, 0, len(others)+1)
	for _, q := range append([]*SelectManager{m}, others...) {
		sub, err := q.SubQuery()
		if err != nil {
			out.fail(err)
			return out
		}
		subs = append(subs, sub)
	}
	e, err := nodes.SetOperation(op, subs...)
	if err != nil {
		out.fail(err)
		return out
	}
	out.md.SetUnion(e)
	return out
}

// Set binds a value to a named parameter.
func (m *SelectManager) Set(p *nodes.Param, v any) *SelectManager {
	m.md.SetParam(p, v)
	return m
}

// Use registers a transformer plugin to be applied before SQL generation.
func (m *SelectManager) Use(t plugins.Transformer) *SelectManager {
	m.addTransformer(t)
	return m
}

// Clone returns an independent manager. Later changes to either do not
// affect the other.
func (m *SelectManager) Clone() *SelectManager {
	c := &SelectManager{md: m.md.Clone()}
	c.transformers = append([]plugins.Transformer(nil), m.transformers...)
	c.err = m.err
	return c
}

// Transformed returns a clone of the metadata with every registered
// transformer applied in order.
func (m *SelectManager) Transformed() (*nodes.QueryMetadata, error) {
	if m.err != nil {
		return nil, m.err
	}
	md := m.md.Clone()
	for _, t := range m.transformers {
		var err error
		md, err = t.TransformSelect(md)
		if err != nil {
			return nil, err
		}
	}
	return md, nil
}

// SubQuery wraps the transformed query as a collection subquery typed by
// its projection.
func (m *SelectManager) SubQuery() (*nodes.SubQuery, error) {
	md, err := m.Transformed()
	if err != nil {
		return nil, err
	}
	return nodes.NewSubQuery(md, nodes.CollectionOf(rowKind(md.Projection()))), nil
}

// ScalarSubQuery wraps the transformed query as a single-value subquery,
// for comparisons such as price > (SELECT AVG(price) ...).
func (m *SelectManager) ScalarSubQuery() (*nodes.SubQuery, error) {
	md, err := m.Transformed()
	if err != nil {
		return nil, err
	}
	t := nodes.TypeAny
	if p := md.Projection(); p != nil {
		t = p.Type()
	}
	return nodes.NewSubQuery(md, t), nil
}

func rowKind(p nodes.Expression) nodes.Kind {
	switch {
	case p == nil:
		return nodes.KindAny
	case p.Type().Kind == nodes.KindEntity:
		return nodes.KindEntity
	}
	if _, ok := p.(*nodes.Factory); ok {
		return nodes.KindTuple
	}
	return p.Type().Kind
}

// As wraps the query as a derived table named alias, for use as a FROM or
// join source.
func (m *SelectManager) As(alias string) (nodes.Expression, error) {
	sub, err := m.SubQuery()
	if err != nil {
		return nil, err
	}
	return nodes.MustOperation(nodes.OpAlias, sub, nodes.Var(alias, sub.Type())), nil
}

// Exists returns EXISTS(query).
func (m *SelectManager) Exists() (*nodes.Operation, error) {
	sub, err := m.SubQuery()
	if err != nil {
		return nil, err
	}
	return sub.Exists(), nil
}

// ToSQL applies all registered transformers and renders SQL with its
// parameters in placeholder order.
func (m *SelectManager) ToSQL(s *visitors.Serializer) (string, []any, error) {
	return unpack(m.statement(s, false))
}

// ToCountSQL renders the row count query: the projection becomes a count
// and ordering and paging are dropped.
func (m *SelectManager) ToCountSQL(s *visitors.Serializer) (string, []any, error) {
	return unpack(m.statement(s, true))
}

func (m *SelectManager) statement(s *visitors.Serializer, count bool) (*visitors.Statement, error) {
	md, err := m.Transformed()
	if err != nil {
		return nil, err
	}
	return s.Serialize(md, count)
}
