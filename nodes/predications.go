package nodes

// Predications provides comparison, string, arithmetic, aggregate and
// logical builders to every expression type. Each node sets self to
// itself at construction. Builders panic with *MalformedExpressionError on
// type mismatches; use NewOperation to get the error instead.
type Predications struct {
	self Expression
}

// toExpr wraps a Go value as an expression. nil becomes the null of hint.
func toExpr(v any, hint Type) Expression {
	switch x := v.(type) {
	case nil:
		return NullOf(hint)
	case Expression:
		return x
	}
	return Literal(v)
}

// ValueOf wraps a Go value as an expression. Expressions pass through and
// nil becomes the null of hint.
func ValueOf(v any, hint Type) Expression { return toExpr(v, hint) }

func (p Predications) op(op Operator, args ...any) *Operation {
	exprs := make([]Expression, 0, len(args)+1)
	exprs = append(exprs, p.self)
	for _, a := range args {
		exprs = append(exprs, toExpr(a, p.self.Type()))
	}
	return MustOperation(op, exprs...)
}

// --- Comparison ---

func (p Predications) Eq(v any) *Operation  { return p.op(OpEq, v) }
func (p Predications) Ne(v any) *Operation  { return p.op(OpNe, v) }
func (p Predications) Gt(v any) *Operation  { return p.op(OpGt, v) }
func (p Predications) Goe(v any) *Operation { return p.op(OpGoe, v) }
func (p Predications) Lt(v any) *Operation  { return p.op(OpLt, v) }
func (p Predications) Loe(v any) *Operation { return p.op(OpLoe, v) }

func (p Predications) Between(lo, hi any) *Operation { return p.op(OpBetween, lo, hi) }

func (p Predications) IsNull() *Operation    { return p.op(OpIsNull) }
func (p Predications) IsNotNull() *Operation { return p.op(OpIsNotNull) }

// In tests membership in a list of values, a collection constant or a
// subquery.
func (p Predications) In(values ...any) *Operation { return p.membership(OpIn, values) }

// NotIn negates In.
func (p Predications) NotIn(values ...any) *Operation { return p.membership(OpNotIn, values) }

func (p Predications) membership(op Operator, values []any) *Operation {
	if len(values) == 1 {
		switch x := values[0].(type) {
		case Expression:
			return MustOperation(op, p.self, x)
		default:
			if xs, ok := asList(x); ok {
				return MustOperation(op, p.self, mustTypedConstant(CollectionOf(p.self.Type().Kind), xs))
			}
		}
	}
	return MustOperation(op, p.self, mustTypedConstant(CollectionOf(p.self.Type().Kind), values))
}

func mustTypedConstant(t Type, v any) *Constant {
	c, err := NewTypedConstant(t, v)
	if err != nil {
		panic(err)
	}
	return c
}

// --- String ---

func (p Predications) Like(pattern any) *Operation    { return p.op(OpLike, pattern) }
func (p Predications) NotLike(pattern any) *Operation { return p.op(OpNotLike, pattern) }

// StartsWith matches a literal prefix; wildcards in the prefix are escaped.
func (p Predications) StartsWith(prefix any) *Operation { return p.op(OpStartsWith, prefix) }
func (p Predications) EndsWith(suffix any) *Operation   { return p.op(OpEndsWith, suffix) }
func (p Predications) Contains(s any) *Operation        { return p.op(OpContains, s) }

// EqualsIgnoreCase compares strings case-insensitively.
func (p Predications) EqualsIgnoreCase(s any) *Operation { return p.op(OpEqIgnoreCase, s) }

func (p Predications) Concat(s any) *Operation { return p.op(OpConcat, s) }
func (p Predications) Lower() *Operation       { return p.op(OpLower) }
func (p Predications) Upper() *Operation       { return p.op(OpUpper) }
func (p Predications) Trim() *Operation        { return p.op(OpTrim) }
func (p Predications) Length() *Operation      { return p.op(OpLength) }

// --- Arithmetic ---

func (p Predications) Add(v any) *Operation { return p.op(OpAdd, v) }
func (p Predications) Sub(v any) *Operation { return p.op(OpSub, v) }
func (p Predications) Mul(v any) *Operation { return p.op(OpMult, v) }
func (p Predications) Div(v any) *Operation { return p.op(OpDiv, v) }
func (p Predications) Mod(v any) *Operation { return p.op(OpMod, v) }
func (p Predications) Negate() *Operation   { return p.op(OpNegate) }
func (p Predications) Abs() *Operation      { return p.op(OpAbs) }

// --- Date ---

func (p Predications) AddDays(n any) *Operation { return p.op(OpAddDays, n) }
func (p Predications) Year() *Operation         { return p.op(OpYear) }
func (p Predications) Month() *Operation        { return p.op(OpMonth) }
func (p Predications) DayOfMonth() *Operation   { return p.op(OpDayOfMonth) }

// --- Aggregates ---

func (p Predications) Count() *Operation         { return p.op(OpCount) }
func (p Predications) CountDistinct() *Operation { return p.op(OpCountDistinct) }
func (p Predications) Sum() *Operation           { return p.op(OpSum) }
func (p Predications) Avg() *Operation           { return p.op(OpAvg) }
func (p Predications) Min() *Operation           { return p.op(OpMin) }
func (p Predications) Max() *Operation           { return p.op(OpMax) }

// --- Logical ---

func (p Predications) And(other Expression) *Operation { return MustOperation(OpAnd, p.self, other) }
func (p Predications) Or(other Expression) *Operation  { return MustOperation(OpOr, p.self, other) }
func (p Predications) Not() *Operation                 { return MustOperation(OpNot, p.self) }

// --- Projection and ordering ---

// As aliases the expression in a projection.
func (p Predications) As(alias string) *Operation {
	return MustOperation(OpAlias, p.self, Var(alias, p.self.Type()))
}

func (p Predications) Asc() OrderSpecifier  { return OrderSpecifier{Target: p.self, Order: Asc} }
func (p Predications) Desc() OrderSpecifier { return OrderSpecifier{Target: p.self, Order: Desc} }
