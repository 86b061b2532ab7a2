package nodes

import (
	"errors"
	"maps"
	"slices"
)

// JoinType identifies how a source is joined. DefaultJoin lists a source in
// the FROM clause.
type JoinType uint8

const (
	DefaultJoin JoinType = iota
	InnerJoin
	PlainJoin
	LeftJoin
	RightJoin
	FullJoin
	CrossJoin
)

var joinTypeNames = [...]string{
	DefaultJoin: "from",
	InnerJoin:   "inner join",
	PlainJoin:   "join",
	LeftJoin:    "left join",
	RightJoin:   "right join",
	FullJoin:    "full join",
	CrossJoin:   "cross join",
}

func (j JoinType) String() string { return joinTypeNames[j] }

// JoinFlagPosition places a join flag relative to the join's parts.
type JoinFlagPosition uint8

const (
	// JoinStart renders before the join keyword.
	JoinStart JoinFlagPosition = iota
	// JoinOverride replaces the join keyword.
	JoinOverride
	BeforeTarget
	BeforeCondition
	JoinEnd
)

// JoinFlag injects a fragment into a join clause.
type JoinFlag struct {
	Flag     Expression
	Position JoinFlagPosition
}

// JoinExpression is one entry of the join list.
type JoinExpression struct {
	Type   JoinType
	Target Expression
	On     Expression
	Flags  []JoinFlag
}

// Order is an ordering direction.
type Order uint8

const (
	Asc Order = iota
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// NullHandling selects where nulls sort.
type NullHandling uint8

const (
	NullsDefault NullHandling = iota
	NullsFirst
	NullsLast
)

// OrderSpecifier is one ORDER BY entry.
type OrderSpecifier struct {
	Target Expression
	Order  Order
	Nulls  NullHandling
}

func (o OrderSpecifier) NullsFirst() OrderSpecifier { o.Nulls = NullsFirst; return o }
func (o OrderSpecifier) NullsLast() OrderSpecifier  { o.Nulls = NullsLast; return o }

// Position is a clause injection point for query flags.
type Position uint8

const (
	PositionWith Position = iota
	PositionStart
	// PositionStartOverride replaces the SELECT keyword.
	PositionStartOverride
	PositionAfterSelect
	PositionAfterProjection
	PositionBeforeFilters
	PositionAfterFilters
	PositionBeforeGroupBy
	PositionAfterGroupBy
	PositionBeforeHaving
	PositionAfterHaving
	PositionBeforeOrder
	PositionAfterOrder
	PositionEnd
)

// QueryFlag injects a fragment at a clause position.
type QueryFlag struct {
	Position Position
	Flag     Expression
}

// ErrNoJoin is returned when a join condition or flag is added before any
// join.
var ErrNoJoin = errors.New("querytree: no join to attach to")

// QueryMetadata accumulates the parts of a single query. It has a single
// writer and no internal locking; clone it to derive queries.
type QueryMetadata struct {
	projection Expression
	joins      []JoinExpression
	where      Expression
	groupBy    []Expression
	having     Expression
	orderBy    []OrderSpecifier
	distinct   bool
	limit      *int64
	offset     *int64
	params     map[string]any
	flags      []QueryFlag
	union      Expression
}

// NewQueryMetadata returns empty metadata.
func NewQueryMetadata() *QueryMetadata {
	return &QueryMetadata{params: make(map[string]any)}
}

// Clone copies every list and map. Expressions are shared.
func (m *QueryMetadata) Clone() *QueryMetadata {
	c := *m
	c.joins = make([]JoinExpression, len(m.joins))
	for i, j := range m.joins {
		j.Flags = slices.Clone(j.Flags)
		c.joins[i] = j
	}
	c.groupBy = slices.Clone(m.groupBy)
	c.orderBy = slices.Clone(m.orderBy)
	c.flags = slices.Clone(m.flags)
	c.params = maps.Clone(m.params)
	if c.params == nil {
		c.params = make(map[string]any)
	}
	if m.limit != nil {
		l := *m.limit
		c.limit = &l
	}
	if m.offset != nil {
		o := *m.offset
		c.offset = &o
	}
	return &c
}

// --- Builder operations ---

func (m *QueryMetadata) SetProjection(e Expression) { m.projection = e }

// AddJoin appends a join entry.
func (m *QueryMetadata) AddJoin(t JoinType, target Expression) {
	m.joins = append(m.joins, JoinExpression{Type: t, Target: target})
}

// AddJoinCondition conjoins pred onto the ON clause of the last join.
func (m *QueryMetadata) AddJoinCondition(pred Expression) error {
	if len(m.joins) == 0 {
		return ErrNoJoin
	}
	last := &m.joins[len(m.joins)-1]
	last.On = AllOf(last.On, pred)
	return nil
}

// AddJoinFlag attaches a flag to the last join.
func (m *QueryMetadata) AddJoinFlag(flag Expression, pos JoinFlagPosition) error {
	if len(m.joins) == 0 {
		return ErrNoJoin
	}
	last := &m.joins[len(m.joins)-1]
	last.Flags = append(last.Flags, JoinFlag{Flag: flag, Position: pos})
	return nil
}

// AddWhere conjoins predicates onto the WHERE clause.
func (m *QueryMetadata) AddWhere(preds ...Expression) {
	m.where = AllOf(append([]Expression{m.where}, preds...)...)
}

func (m *QueryMetadata) AddGroupBy(exprs ...Expression) {
	m.groupBy = append(m.groupBy, exprs...)
}

// AddHaving conjoins predicates onto the HAVING clause.
func (m *QueryMetadata) AddHaving(preds ...Expression) {
	m.having = AllOf(append([]Expression{m.having}, preds...)...)
}

func (m *QueryMetadata) AddOrderBy(specs ...OrderSpecifier) {
	m.orderBy = append(m.orderBy, specs...)
}

func (m *QueryMetadata) ClearOrderBy() { m.orderBy = nil }

func (m *QueryMetadata) SetDistinct(d bool) { m.distinct = d }

func (m *QueryMetadata) SetLimit(n int64) { m.limit = &n }

func (m *QueryMetadata) SetOffset(n int64) { m.offset = &n }

// ClearModifiers removes limit and offset.
func (m *QueryMetadata) ClearModifiers() { m.limit, m.offset = nil, nil }

// SetParam binds a value to a named parameter.
func (m *QueryMetadata) SetParam(p *Param, v any) { m.params[p.name] = v }

// AddFlag appends a positioned query flag.
func (m *QueryMetadata) AddFlag(pos Position, flag Expression) {
	m.flags = append(m.flags, QueryFlag{Position: pos, Flag: flag})
}

// ClearFlags removes every flag at the given positions.
func (m *QueryMetadata) ClearFlags(pos ...Position) {
	m.flags = slices.DeleteFunc(m.flags, func(f QueryFlag) bool { return slices.Contains(pos, f.Position) })
}

// SetUnion makes the query a set operation over subqueries.
func (m *QueryMetadata) SetUnion(e Expression) { m.union = e }

// --- Accessors ---

func (m *QueryMetadata) Projection() Expression      { return m.projection }
func (m *QueryMetadata) Joins() []JoinExpression     { return slices.Clone(m.joins) }
func (m *QueryMetadata) Where() Expression           { return m.where }
func (m *QueryMetadata) GroupBy() []Expression       { return slices.Clone(m.groupBy) }
func (m *QueryMetadata) Having() Expression          { return m.having }
func (m *QueryMetadata) OrderBy() []OrderSpecifier   { return slices.Clone(m.orderBy) }
func (m *QueryMetadata) IsDistinct() bool            { return m.distinct }
func (m *QueryMetadata) Flags() []QueryFlag          { return slices.Clone(m.flags) }
func (m *QueryMetadata) Union() Expression           { return m.union }
func (m *QueryMetadata) Params() map[string]any      { return maps.Clone(m.params) }

// Limit returns the row limit, if set.
func (m *QueryMetadata) Limit() (int64, bool) {
	if m.limit == nil {
		return 0, false
	}
	return *m.limit, true
}

// Offset returns the row offset, if set.
func (m *QueryMetadata) Offset() (int64, bool) {
	if m.offset == nil {
		return 0, false
	}
	return *m.offset, true
}

// Param returns the value bound to p.
func (m *QueryMetadata) Param(p *Param) (any, bool) {
	v, ok := m.params[p.name]
	return v, ok
}

// FlagsAt returns the flags at pos in insertion order.
func (m *QueryMetadata) FlagsAt(pos Position) []QueryFlag {
	var out []QueryFlag
	for _, f := range m.flags {
		if f.Position == pos {
			out = append(out, f)
		}
	}
	return out
}

// HasFlag reports whether an equal flag is set at pos.
func (m *QueryMetadata) HasFlag(pos Position, flag Expression) bool {
	for _, f := range m.flags {
		if f.Position == pos && Equal(f.Flag, flag) {
			return true
		}
	}
	return false
}

func (m *QueryMetadata) hash() uint64 {
	h := newHasher(tagMetadata).expr(m.projection)
	for _, j := range m.joins {
		h.u64(uint64(j.Type)).expr(j.Target).expr(j.On)
		for _, f := range j.Flags {
			h.u64(uint64(f.Position)).expr(f.Flag)
		}
	}
	h.expr(m.where)
	for _, g := range m.groupBy {
		h.expr(g)
	}
	h.expr(m.having)
	for _, o := range m.orderBy {
		h.expr(o.Target).u64(uint64(o.Order)<<8 | uint64(o.Nulls))
	}
	if m.distinct {
		h.u64(1)
	}
	if m.limit != nil {
		h.str("limit").u64(uint64(*m.limit))
	}
	if m.offset != nil {
		h.str("offset").u64(uint64(*m.offset))
	}
	for _, f := range m.flags {
		h.u64(uint64(f.Position)).expr(f.Flag)
	}
	for _, k := range slices.Sorted(maps.Keys(m.params)) {
		h.str(k).str(CanonicalValue(m.params[k]))
	}
	return h.expr(m.union).sum()
}

func (m *QueryMetadata) equal(o *QueryMetadata) bool {
	if m.hash() != o.hash() || m.distinct != o.distinct || len(m.joins) != len(o.joins) {
		return false
	}
	if !Equal(m.projection, o.projection) || !Equal(m.where, o.where) ||
		!Equal(m.having, o.having) || !Equal(m.union, o.union) ||
		!equalAll(m.groupBy, o.groupBy) {
		return false
	}
	for i := range m.joins {
		a, b := m.joins[i], o.joins[i]
		if a.Type != b.Type || !Equal(a.Target, b.Target) || !Equal(a.On, b.On) {
			return false
		}
	}
	if len(m.orderBy) != len(o.orderBy) {
		return false
	}
	for i := range m.orderBy {
		a, b := m.orderBy[i], o.orderBy[i]
		if a.Order != b.Order || a.Nulls != b.Nulls || !Equal(a.Target, b.Target) {
			return false
		}
	}
	return true
}
