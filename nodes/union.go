package nodes

// SetOperation combines subqueries with a set operator into a left-nested
// chain: ((a op b) op c). The chain keeps the collection type of the first
// subquery. A single subquery is returned as a collection subquery.
func SetOperation(op Operator, subs ...*SubQuery) (Expression, error) {
	if !IsSetOperator(op) {
		return nil, malformed(op, "not a set operator")
	}
	if len(subs) == 0 {
		return nil, malformed(op, "requires at least one subquery")
	}
	for i, s := range subs {
		if s == nil {
			return nil, malformed(op, "subquery %d is nil", i)
		}
	}
	elem := subs[0].ElementType()
	var acc Expression = asCollection(subs[0], elem)
	for _, s := range subs[1:] {
		if k := s.ElementType().Kind; k != elem.Kind && k != KindAny && elem.Kind != KindAny {
			return nil, malformed(op, "subquery element type %s does not match %s", k, elem.Kind)
		}
		o, err := NewTypedOperation(CollectionOf(elem.Kind), op, acc, asCollection(s, elem))
		if err != nil {
			return nil, err
		}
		acc = o
	}
	return acc, nil
}

func asCollection(s *SubQuery, elem Type) *SubQuery {
	if s.typ.Kind == KindCollection {
		return s
	}
	return NewSubQuery(s.md, CollectionOf(elem.Kind))
}

func mustSetOperation(op Operator, subs []*SubQuery) Expression {
	e, err := SetOperation(op, subs...)
	if err != nil {
		panic(err)
	}
	return e
}

func Union(subs ...*SubQuery) Expression     { return mustSetOperation(OpUnion, subs) }
func UnionAll(subs ...*SubQuery) Expression  { return mustSetOperation(OpUnionAll, subs) }
func Intersect(subs ...*SubQuery) Expression { return mustSetOperation(OpIntersect, subs) }
func Except(subs ...*SubQuery) Expression    { return mustSetOperation(OpExcept, subs) }
