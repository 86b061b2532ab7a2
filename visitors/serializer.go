// Package visitors renders expression trees and query metadata into
// dialect-specific SQL with ordered bind parameters.
package visitors

import (
	"strconv"
	"strings"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/projections"
	"github.com/bawdo/querytree/templates"
)

// Statement is rendered SQL and its bind parameters in placeholder order.
type Statement struct {
	SQL    string
	Params []any
}

func (s *Statement) String() string { return s.SQL }

// Option configures a Serializer at construction time.
type Option func(*Serializer)

// WithoutParams inlines constants as escaped literals instead of binding
// them. Use it for diagnostic text only.
func WithoutParams() Option {
	return func(s *Serializer) { s.strict = false }
}

// WithPrettyPrint starts each clause on its own line, indenting subqueries.
func WithPrettyPrint() Option {
	return func(s *Serializer) { s.pretty = true }
}

// Serializer renders metadata under one dialect. It holds no per-call
// state and is safe for concurrent use.
type Serializer struct {
	dialect *templates.Dialect
	strict  bool
	pretty  bool
}

// NewSerializer returns a Serializer for d. Constants are bound as
// parameters unless WithoutParams is given.
func NewSerializer(d *templates.Dialect, opts ...Option) *Serializer {
	s := &Serializer{dialect: d, strict: true}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dialect returns the dialect the serializer renders.
func (s *Serializer) Dialect() *templates.Dialect { return s.dialect }

// Serialize renders md as a SELECT. With forCountRow the projection is
// replaced by a row count and ordering and paging are dropped.
func (s *Serializer) Serialize(md *nodes.QueryMetadata, forCountRow bool) (*Statement, error) {
	st := s.newState(md)
	if err := st.query(md, forCountRow); err != nil {
		return nil, err
	}
	return st.statement(), nil
}

// SerializeExpression renders a single expression. Params are resolved
// against md, which may be nil.
func (s *Serializer) SerializeExpression(e nodes.Expression, md *nodes.QueryMetadata) (*Statement, error) {
	st := s.newState(md)
	if err := st.expr(e); err != nil {
		return nil, err
	}
	return st.statement(), nil
}

func (s *Serializer) newState(md *nodes.QueryMetadata) *state {
	st := &state{s: s, d: s.dialect, kw: s.dialect.Keywords()}
	if md != nil {
		st.scopes = []*nodes.QueryMetadata{md}
	}
	return st
}

// ToString renders e in the diagnostic dialect with literals inlined.
func ToString(e nodes.Expression) string {
	st, err := NewSerializer(templates.Default(), WithoutParams()).SerializeExpression(e, nil)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return st.SQL
}

// QueryString renders md in the diagnostic dialect with literals inlined.
func QueryString(md *nodes.QueryMetadata) string {
	st, err := NewSerializer(templates.Default(), WithoutParams()).Serialize(md, false)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return st.SQL
}

// state is the per-call rendering context. Subqueries render into a child
// state whose parameters are appended to the parent's at the point the
// subquery text is written.
type state struct {
	s      *Serializer
	d      *templates.Dialect
	kw     templates.Keywords
	sb     strings.Builder
	params []any
	base   int
	depth  int
	scopes []*nodes.QueryMetadata

	unionMember bool
}

func (st *state) statement() *Statement {
	return &Statement{SQL: st.sb.String(), Params: st.params}
}

func (st *state) child(md *nodes.QueryMetadata) *state {
	c := &state{
		s:      st.s,
		d:      st.d,
		kw:     st.kw,
		base:   st.base + len(st.params),
		depth:  st.depth + 1,
		scopes: append(append([]*nodes.QueryMetadata(nil), st.scopes...), md),
	}
	return c
}

func (st *state) splice(c *state) {
	st.sb.WriteString(c.sb.String())
	st.params = append(st.params, c.params...)
}

func (st *state) write(s string) { st.sb.WriteString(s) }

// sep writes a single space unless the output is empty or already ends in
// whitespace or an opening parenthesis.
func (st *state) sep() {
	if st.sb.Len() == 0 {
		return
	}
	s := st.sb.String()
	switch s[len(s)-1] {
	case ' ', '\n', '(':
		return
	}
	st.sb.WriteByte(' ')
}

// clause starts a top-level clause keyword.
func (st *state) clause(kw string) {
	st.line()
	st.sb.WriteString(kw)
}

// line breaks before a clause in pretty mode and separates it otherwise.
func (st *state) line() {
	if st.s.pretty && st.sb.Len() > 0 {
		st.sb.WriteByte('\n')
		st.sb.WriteString(strings.Repeat("  ", st.depth))
		return
	}
	st.sep()
}

func (st *state) ident(name string) { st.write(st.d.QuoteIdentifier(name)) }

func (st *state) placeholder(v any) {
	st.params = append(st.params, v)
	st.write(st.d.Placeholder(st.base + len(st.params)))
}

// param looks a parameter up from the innermost query outwards.
func (st *state) param(p *nodes.Param) (any, bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if v, ok := st.scopes[i].Param(p); ok {
			return v, true
		}
	}
	return nil, false
}

func (st *state) expr(e nodes.Expression) error {
	return nodes.Accept[error, *state](e, renderer{}, st)
}

// query renders a SELECT in clause order.
func (st *state) query(md *nodes.QueryMetadata, forCountRow bool) error {
	if err := st.with(md); err != nil {
		return err
	}
	if err := st.flags(md, nodes.PositionStart); err != nil {
		return err
	}
	if md.Union() != nil {
		return st.union(md, forCountRow)
	}
	if forCountRow && (md.IsDistinct() || len(md.GroupBy()) > 0) {
		return st.wrappedCount(md)
	}

	if overrides := md.FlagsAt(nodes.PositionStartOverride); len(overrides) > 0 {
		st.sep()
		for _, f := range overrides {
			if err := st.expr(f.Flag); err != nil {
				return err
			}
		}
	} else {
		st.clause(st.kw.Select)
	}
	if md.IsDistinct() {
		st.sep()
		st.write(st.kw.Distinct)
	}
	if err := st.flags(md, nodes.PositionAfterSelect); err != nil {
		return err
	}
	st.sep()
	if forCountRow {
		if err := st.operator(nodes.OpCountAll); err != nil {
			return err
		}
	} else if err := st.projection(md.Projection()); err != nil {
		return err
	}
	if err := st.flags(md, nodes.PositionAfterProjection); err != nil {
		return err
	}
	if err := st.joins(md.Joins()); err != nil {
		return err
	}
	if err := st.filters(md); err != nil {
		return err
	}
	if !forCountRow {
		if err := st.orderBy(md); err != nil {
			return err
		}
		if err := st.modifiers(md); err != nil {
			return err
		}
	}
	return st.flags(md, nodes.PositionEnd)
}

func (st *state) with(md *nodes.QueryMetadata) error {
	flags := md.FlagsAt(nodes.PositionWith)
	if len(flags) == 0 {
		return nil
	}
	kw := st.kw.With
	var ctes []nodes.Expression
	for _, f := range flags {
		if nodes.Equal(f.Flag, nodes.RecursiveFlag) {
			kw = st.kw.WithRecursive
			continue
		}
		ctes = append(ctes, f.Flag)
	}
	st.clause(kw)
	st.write(" ")
	return st.list(ctes, ", ")
}

// filters renders WHERE, GROUP BY and HAVING with their surrounding flags.
func (st *state) filters(md *nodes.QueryMetadata) error {
	steps := []func() error{
		func() error { return st.flags(md, nodes.PositionBeforeFilters) },
		func() error { return st.predicate(st.kw.Where, md.Where()) },
		func() error { return st.flags(md, nodes.PositionAfterFilters) },
		func() error { return st.flags(md, nodes.PositionBeforeGroupBy) },
		func() error {
			if groups := md.GroupBy(); len(groups) > 0 {
				st.clause(st.kw.GroupBy)
				st.write(" ")
				return st.list(groups, ", ")
			}
			return nil
		},
		func() error { return st.flags(md, nodes.PositionAfterGroupBy) },
		func() error { return st.flags(md, nodes.PositionBeforeHaving) },
		func() error { return st.predicate(st.kw.Having, md.Having()) },
		func() error { return st.flags(md, nodes.PositionAfterHaving) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) predicate(kw string, e nodes.Expression) error {
	if e == nil {
		return nil
	}
	st.clause(kw)
	st.write(" ")
	return st.expr(e)
}

func (st *state) flags(md *nodes.QueryMetadata, pos nodes.Position) error {
	for _, f := range md.FlagsAt(pos) {
		st.sep()
		if err := st.expr(f.Flag); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) list(exprs []nodes.Expression, sep string) error {
	for i, e := range exprs {
		if i > 0 {
			st.write(sep)
		}
		if err := st.expr(e); err != nil {
			return err
		}
	}
	return nil
}

// projection renders the select list. Factories render their flattened
// leaves; entity paths select all columns.
func (st *state) projection(p nodes.Expression) error {
	if p == nil {
		st.write("*")
		return nil
	}
	leaves := projections.Leaves(p)
	for i, l := range leaves {
		if i > 0 {
			st.write(", ")
		}
		if path, ok := l.(*nodes.Path); ok && path.IsEntity() {
			if err := st.operator(nodes.OpAllColumns, exprArg(path)); err != nil {
				return err
			}
			continue
		}
		if err := st.expr(l); err != nil {
			return err
		}
	}
	return nil
}

func (st *state) joins(joins []nodes.JoinExpression) error {
	for i, j := range joins {
		if err := st.joinFlags(j, nodes.JoinStart); err != nil {
			return err
		}
		overrides := joinFlagsAt(j, nodes.JoinOverride)
		switch {
		case len(overrides) > 0:
			st.sep()
			for _, f := range overrides {
				if err := st.expr(f.Flag); err != nil {
					return err
				}
			}
		case i == 0:
			st.clause(st.kw.From)
		case j.Type == nodes.DefaultJoin:
			st.write(st.kw.Joins[nodes.DefaultJoin])
		default:
			st.clause(st.kw.Joins[j.Type])
		}
		if err := st.joinFlags(j, nodes.BeforeTarget); err != nil {
			return err
		}
		st.sep()
		if err := st.source(j.Target); err != nil {
			return err
		}
		if err := st.joinFlags(j, nodes.BeforeCondition); err != nil {
			return err
		}
		if j.On != nil {
			st.sep()
			st.write(st.kw.On)
			st.write(" ")
			if err := st.expr(j.On); err != nil {
				return err
			}
		}
		if err := st.joinFlags(j, nodes.JoinEnd); err != nil {
			return err
		}
	}
	return nil
}

func joinFlagsAt(j nodes.JoinExpression, pos nodes.JoinFlagPosition) []nodes.JoinFlag {
	var out []nodes.JoinFlag
	for _, f := range j.Flags {
		if f.Position == pos {
			out = append(out, f)
		}
	}
	return out
}

func (st *state) joinFlags(j nodes.JoinExpression, pos nodes.JoinFlagPosition) error {
	for _, f := range joinFlagsAt(j, pos) {
		st.sep()
		if err := st.expr(f.Flag); err != nil {
			return err
		}
	}
	return nil
}

// source renders a FROM or join target. Entities render as "table alias".
func (st *state) source(e nodes.Expression) error {
	p, ok := e.(*nodes.Path)
	if !ok || !p.IsEntity() {
		return st.expr(e)
	}
	if p.Table() == p.Name() {
		st.ident(p.Table())
		return nil
	}
	return st.operator(nodes.OpTableAlias, identArg(p.Table()), identArg(p.Name()))
}

func (st *state) orderBy(md *nodes.QueryMetadata) error {
	if err := st.flags(md, nodes.PositionBeforeOrder); err != nil {
		return err
	}
	specs := md.OrderBy()
	if len(specs) > 0 {
		st.clause(st.kw.OrderBy)
		st.write(" ")
		for i, o := range specs {
			if i > 0 {
				st.write(", ")
			}
			if err := st.orderSpec(o); err != nil {
				return err
			}
		}
	}
	return st.flags(md, nodes.PositionAfterOrder)
}

func (st *state) orderSpec(o nodes.OrderSpecifier) error {
	dir := nodes.OpAsc
	if o.Order == nodes.Desc {
		dir = nodes.OpDesc
	}
	ordered := fragment(func(st *state) error { return st.operator(dir, exprArg(o.Target)) })
	switch o.Nulls {
	case nodes.NullsFirst:
		return st.operator(nodes.OpNullsFirst, ordered, exprArg(o.Target))
	case nodes.NullsLast:
		return st.operator(nodes.OpNullsLast, ordered, exprArg(o.Target))
	}
	return ordered.render(st)
}

func (st *state) modifiers(md *nodes.QueryMetadata) error {
	limit, hasLimit := md.Limit()
	offset, hasOffset := md.Offset()
	switch {
	case hasLimit && hasOffset:
		st.line()
		return st.operator(nodes.OpLimitOffset, textArg(itoa(limit)), textArg(itoa(offset)))
	case hasLimit:
		st.line()
		return st.operator(nodes.OpLimit, textArg(itoa(limit)))
	case hasOffset:
		st.line()
		return st.operator(nodes.OpOffset, textArg(itoa(offset)))
	}
	return nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// wrappedCount counts the rows of a distinct or grouped query:
// SELECT COUNT(*) FROM (...) internal. The outer query already rendered the
// WITH and start flags.
func (st *state) wrappedCount(md *nodes.QueryMetadata) error {
	inner := md.Clone()
	inner.ClearOrderBy()
	inner.ClearModifiers()
	inner.ClearFlags(nodes.PositionWith, nodes.PositionStart)
	if groups := md.GroupBy(); inner.Projection() == nil && len(groups) > 0 {
		p := groups[0]
		for _, g := range groups[1:] {
			p = nodes.List(p, g)
		}
		inner.SetProjection(p)
	}
	st.clause(st.kw.Select)
	st.sep()
	if err := st.operator(nodes.OpCountAll); err != nil {
		return err
	}
	st.clause(st.kw.From)
	st.write(" (")
	c := st.child(inner)
	if err := c.query(inner, false); err != nil {
		return err
	}
	st.splice(c)
	st.write(") ")
	st.ident("internal")
	return nil
}

func (st *state) union(md *nodes.QueryMetadata, forCountRow bool) error {
	if forCountRow {
		st.clause(st.kw.Select)
		st.sep()
		if err := st.operator(nodes.OpCountAll); err != nil {
			return err
		}
		st.clause(st.kw.From)
		st.write(" (")
		c := st.child(md)
		if err := c.expr(md.Union()); err != nil {
			return err
		}
		st.splice(c)
		st.write(") ")
		st.ident("internal")
		return nil
	}
	st.sep()
	if err := st.expr(md.Union()); err != nil {
		return err
	}
	if err := st.orderBy(md); err != nil {
		return err
	}
	if err := st.modifiers(md); err != nil {
		return err
	}
	return st.flags(md, nodes.PositionEnd)
}
