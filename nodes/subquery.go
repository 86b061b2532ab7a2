package nodes

import "sync"

// SubQuery embeds query metadata as an expression. The metadata must not be
// mutated once wrapped.
type SubQuery struct {
	Predications
	md   *QueryMetadata
	typ  Type
	hash uint64

	count         func() *SubQuery
	countDistinct func() *SubQuery
	exists        func() *Operation
}

func (*SubQuery) expression() {}

// NewSubQuery wraps md with its declared result type. A query returning rows
// of kind k is typed CollectionOf(k); a scalar subquery carries the scalar
// type.
func NewSubQuery(md *QueryMetadata, t Type) *SubQuery {
	s := &SubQuery{md: md, typ: t}
	s.self = s
	s.hash = newHasher(tagSubQuery).typ(t).u64(md.hash()).sum()
	s.count = sync.OnceValue(func() *SubQuery { return s.derivedCount(false) })
	s.countDistinct = sync.OnceValue(func() *SubQuery { return s.derivedCount(true) })
	s.exists = sync.OnceValue(func() *Operation { return MustOperation(OpExists, s) })
	return s
}

func (s *SubQuery) Type() Type               { return s.typ }
func (s *SubQuery) Hash() uint64             { return s.hash }
func (s *SubQuery) Metadata() *QueryMetadata { return s.md }

// ElementType returns the row type of a collection subquery.
func (s *SubQuery) ElementType() Type {
	if s.typ.Kind == KindCollection {
		return Type{Kind: s.typ.Elem}
	}
	return s.typ
}

// Exists is EXISTS(subquery). The operation is built once per subquery.
func (s *SubQuery) Exists() *Operation { return s.exists() }

// NotExists negates Exists.
func (s *SubQuery) NotExists() *Operation { return Not(s.exists()) }

// Count is a scalar subquery counting the rows of s. It is built once.
func (s *SubQuery) Count() *SubQuery { return s.count() }

// CountDistinct counts distinct projected values. It is built once.
func (s *SubQuery) CountDistinct() *SubQuery { return s.countDistinct() }

func (s *SubQuery) derivedCount(distinct bool) *SubQuery {
	md := s.md.Clone()
	proj := md.Projection()
	var count Expression
	switch {
	case proj == nil:
		count = CountAll()
	case distinct:
		if _, ok := proj.(*Factory); ok {
			md.SetDistinct(true)
			md.ClearOrderBy()
			outer := NewQueryMetadata()
			outer.AddJoin(DefaultJoin, MustOperation(OpAlias, NewSubQuery(md, s.typ), Var("internal", TypeAny)))
			outer.SetProjection(CountAll())
			return NewSubQuery(outer, TypeNumber)
		}
		count = MustOperation(OpCountDistinct, proj)
	default:
		if _, ok := proj.(*Factory); ok {
			count = CountAll()
		} else {
			count = MustOperation(OpCount, proj)
		}
	}
	md.SetProjection(count)
	md.ClearOrderBy()
	return NewSubQuery(md, TypeNumber)
}
