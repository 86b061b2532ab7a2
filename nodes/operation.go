package nodes

import "slices"

// Operation applies an operator to ordered argument expressions.
type Operation struct {
	Predications
	op   Operator
	args []Expression
	typ  Type
	hash uint64
}

func (*Operation) expression() {}

// NewOperation builds an operation whose return type is derived from the
// operator signature. Custom operators return TypeAny.
func NewOperation(op Operator, args ...Expression) (*Operation, error) {
	t := TypeAny
	if s, ok := signatures[op]; ok {
		t = s.returnType(args)
	}
	return NewTypedOperation(t, op, args...)
}

// NewTypedOperation builds an operation with a caller-specified return type.
// Built-in operators are checked against their signature.
func NewTypedOperation(t Type, op Operator, args ...Expression) (*Operation, error) {
	if op == "" {
		return nil, malformed("", "empty operator")
	}
	if s, ok := signatures[op]; ok {
		if err := s.check(op, args); err != nil {
			return nil, err
		}
	} else {
		for i, a := range args {
			if a == nil {
				return nil, malformed(op, "argument %d is nil", i)
			}
		}
	}
	o := &Operation{op: op, args: slices.Clone(args), typ: t}
	o.self = o
	h := newHasher(tagOperation).str(string(op)).typ(t).u64(uint64(len(args)))
	for _, a := range args {
		h.expr(a)
	}
	o.hash = h.sum()
	return o, nil
}

// MustOperation is NewOperation that panics on a malformed expression.
func MustOperation(op Operator, args ...Expression) *Operation {
	o, err := NewOperation(op, args...)
	if err != nil {
		panic(err)
	}
	return o
}

// MustTypedOperation is NewTypedOperation that panics on a malformed
// expression.
func MustTypedOperation(t Type, op Operator, args ...Expression) *Operation {
	o, err := NewTypedOperation(t, op, args...)
	if err != nil {
		panic(err)
	}
	return o
}

func (o *Operation) Type() Type         { return o.typ }
func (o *Operation) Hash() uint64       { return o.hash }
func (o *Operation) Operator() Operator { return o.op }
func (o *Operation) Len() int           { return len(o.args) }

// Args returns a copy of the arguments.
func (o *Operation) Args() []Expression { return slices.Clone(o.args) }

// Arg returns argument i and panics with *IndexOutOfRangeError past the
// arity.
func (o *Operation) Arg(i int) Expression {
	a, err := o.ArgAt(i)
	if err != nil {
		panic(err)
	}
	return a
}

// ArgAt returns argument i or an *IndexOutOfRangeError.
func (o *Operation) ArgAt(i int) (Expression, error) {
	if i < 0 || i >= len(o.args) {
		return nil, &IndexOutOfRangeError{Operator: o.op, Index: i, Len: len(o.args)}
	}
	return o.args[i], nil
}

// AllOf folds predicates into a left-nested conjunction, skipping nils.
// It returns nil when no predicate remains.
func AllOf(preds ...Expression) Expression { return fold(OpAnd, preds) }

// AnyOf folds predicates into a left-nested disjunction, skipping nils.
func AnyOf(preds ...Expression) Expression { return fold(OpOr, preds) }

func fold(op Operator, preds []Expression) Expression {
	var acc Expression
	for _, p := range preds {
		switch {
		case p == nil:
		case acc == nil:
			acc = p
		default:
			acc = MustOperation(op, acc, p)
		}
	}
	return acc
}

// Not negates a predicate.
func Not(pred Expression) *Operation { return MustOperation(OpNot, pred) }

// Coalesce returns the first non-null argument.
func Coalesce(args ...Expression) *Operation { return MustOperation(OpCoalesce, args...) }

// CountAll is count(*).
func CountAll() *Operation { return MustOperation(OpCountAll) }

// CurrentTimestamp is the database clock.
func CurrentTimestamp() *Operation { return MustOperation(OpCurrentTimestamp) }

// CurrentDate is the database date.
func CurrentDate() *Operation { return MustOperation(OpCurrentDate) }

// Cast converts e to the named SQL type.
func Cast(e Expression, sqlType string, t Type) *Operation {
	return MustTypedOperation(t, OpCast, e, Literal(sqlType))
}

// List pairs two expressions, as used by row-value comparisons.
func List(a, b Expression) *Operation { return MustOperation(OpList, a, b) }

// Func applies a custom operator. Its template must be registered on the
// dialect used for serialization.
func Func(t Type, op Operator, args ...any) *Operation {
	exprs := make([]Expression, len(args))
	for i, a := range args {
		exprs[i] = toExpr(a, TypeAny)
	}
	return MustTypedOperation(t, op, exprs...)
}
