package nodes

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// --- CASE ---

// CaseBuilder collects the WHEN branches of a CASE expression.
type CaseBuilder struct {
	operand  Expression
	branches []Expression
	typ      Type
}

// Cases starts a searched CASE: CASE WHEN pred THEN value ... END.
func Cases() *CaseBuilder { return &CaseBuilder{typ: TypeAny} }

// CaseOf starts a simple CASE comparing e with each WHEN value.
func CaseOf(e Expression) *CaseBuilder { return &CaseBuilder{operand: e, typ: TypeAny} }

// When adds a branch. cond is a predicate for a searched CASE and a value
// for a simple one. The first non-null result fixes the CASE type.
func (b *CaseBuilder) When(cond, result any) *CaseBuilder {
	hint := TypeBoolean
	if b.operand != nil {
		hint = b.operand.Type()
	}
	r := toExpr(result, b.typ)
	if _, isNull := r.(*Null); !isNull && b.typ.Kind == KindAny {
		b.typ = r.Type()
	}
	b.branches = append(b.branches, MustOperation(OpCaseWhen, toExpr(cond, hint), r))
	return b
}

// Else closes the CASE with a default result.
func (b *CaseBuilder) Else(v any) *Operation {
	return b.build(MustOperation(OpCaseElse, toExpr(v, b.typ)))
}

// End closes the CASE without a default. Unmatched rows yield NULL.
func (b *CaseBuilder) End() *Operation { return b.build(nil) }

func (b *CaseBuilder) build(otherwise Expression) *Operation {
	if len(b.branches) == 0 {
		panic(malformed(OpCase, "no WHEN branch"))
	}
	args := slices.Clone(b.branches)
	if otherwise != nil {
		args = append(args, otherwise)
	}
	if b.operand != nil {
		return MustTypedOperation(b.typ, OpCaseSimple, append([]Expression{b.operand}, args...)...)
	}
	return MustTypedOperation(b.typ, OpCase, args...)
}

// --- Windows ---

// Window describes the specification inside OVER (...).
type Window struct {
	partition []Expression
	order     []OrderSpecifier
	frame     Expression
}

// NewWindow returns an empty window, rendering OVER ().
func NewWindow() *Window { return &Window{} }

// PartitionBy sets the PARTITION BY expressions.
func (w *Window) PartitionBy(exprs ...Expression) *Window {
	w.partition = exprs
	return w
}

// OrderBy sets the window ordering.
func (w *Window) OrderBy(specs ...OrderSpecifier) *Window {
	w.order = specs
	return w
}

// Rows sets a ROWS frame. With an end bound it renders BETWEEN.
func (w *Window) Rows(start Expression, end ...Expression) *Window {
	w.frame = frame(OpRows, OpRowsBetween, start, end)
	return w
}

// Range sets a RANGE frame. With an end bound it renders BETWEEN.
func (w *Window) Range(start Expression, end ...Expression) *Window {
	w.frame = frame(OpRange, OpRangeBetween, start, end)
	return w
}

func frame(single, between Operator, start Expression, end []Expression) Expression {
	if len(end) > 0 {
		return MustOperation(between, start, end[0])
	}
	return MustOperation(single, start)
}

// clauses returns the window parts in rendering order.
func (w *Window) clauses() []Expression {
	var out []Expression
	if w == nil {
		return out
	}
	if len(w.partition) > 0 {
		out = append(out, MustOperation(OpPartitionBy, w.partition...))
	}
	if len(w.order) > 0 {
		specs := make([]Expression, len(w.order))
		for i, o := range w.order {
			specs[i] = o.Expr()
		}
		out = append(out, MustOperation(OpWindowOrder, specs...))
	}
	if w.frame != nil {
		out = append(out, w.frame)
	}
	return out
}

// Over applies e as a window function over w.
func Over(e Expression, w *Window) *Operation {
	return MustTypedOperation(e.Type(), OpOver, append([]Expression{e}, w.clauses()...)...)
}

func (p Predications) Over(w *Window) *Operation { return Over(p.self, w) }

// OverWindow applies e over a window declared by name.
func (p Predications) OverWindow(name string) *Operation {
	return MustTypedOperation(p.self.Type(), OpOverNamed, p.self, Var(name, TypeAny))
}

func UnboundedPreceding() Expression { return MustOperation(OpUnboundedPreceding) }
func CurrentRow() Expression         { return MustOperation(OpCurrentRow) }
func UnboundedFollowing() Expression { return MustOperation(OpUnboundedFollowing) }

// Preceding is the frame bound n PRECEDING.
func Preceding(n any) Expression { return MustOperation(OpPreceding, toExpr(n, TypeNumber)) }

// Following is the frame bound n FOLLOWING.
func Following(n any) Expression { return MustOperation(OpFollowing, toExpr(n, TypeNumber)) }

// Expr encodes o as an ordering expression.
func (o OrderSpecifier) Expr() Expression {
	dir := OpAsc
	if o.Order == Desc {
		dir = OpDesc
	}
	e := MustTypedOperation(o.Target.Type(), dir, o.Target)
	switch o.Nulls {
	case NullsFirst:
		return MustTypedOperation(o.Target.Type(), OpNullsFirst, e, o.Target)
	case NullsLast:
		return MustTypedOperation(o.Target.Type(), OpNullsLast, e, o.Target)
	}
	return e
}

// OrderOf decodes an ordering expression built by OrderSpecifier.Expr.
func OrderOf(e Expression) (OrderSpecifier, bool) {
	o, ok := e.(*Operation)
	if !ok {
		return OrderSpecifier{}, false
	}
	var spec OrderSpecifier
	switch o.Operator() {
	case OpNullsFirst, OpNullsLast:
		if o.Len() != 2 {
			return OrderSpecifier{}, false
		}
		inner, ok := OrderOf(o.Arg(0))
		if !ok {
			return OrderSpecifier{}, false
		}
		spec = inner
		spec.Nulls = NullsFirst
		if o.Operator() == OpNullsLast {
			spec.Nulls = NullsLast
		}
	case OpAsc, OpDesc:
		if o.Len() != 1 {
			return OrderSpecifier{}, false
		}
		spec.Target = o.Arg(0)
		if o.Operator() == OpDesc {
			spec.Order = Desc
		}
	default:
		return OrderSpecifier{}, false
	}
	return spec, true
}

// --- Window functions ---

func RowNumber() *Operation   { return MustOperation(OpRowNumber) }
func Rank() *Operation        { return MustOperation(OpRank) }
func DenseRank() *Operation   { return MustOperation(OpDenseRank) }
func PercentRank() *Operation { return MustOperation(OpPercentRank) }
func CumeDist() *Operation    { return MustOperation(OpCumeDist) }

// Ntile splits the window into n buckets.
func Ntile(n any) *Operation { return MustOperation(OpNtile, toExpr(n, TypeNumber)) }

// Lag reads e from an earlier row. The optional arguments are the offset
// and the default value.
func Lag(e Expression, rest ...any) *Operation { return offsetFunc(OpLag, e, rest) }

// Lead reads e from a later row.
func Lead(e Expression, rest ...any) *Operation { return offsetFunc(OpLead, e, rest) }

func offsetFunc(op Operator, e Expression, rest []any) *Operation {
	args := []Expression{e}
	for i, r := range rest {
		hint := e.Type()
		if i == 0 {
			hint = TypeNumber
		}
		args = append(args, toExpr(r, hint))
	}
	return MustOperation(op, args...)
}

func FirstValue(e Expression) *Operation { return MustOperation(OpFirstValue, e) }
func LastValue(e Expression) *Operation  { return MustOperation(OpLastValue, e) }

// NthValue reads e from the nth row of the frame.
func NthValue(e Expression, n any) *Operation {
	return MustOperation(OpNthValue, e, toExpr(n, TypeNumber))
}

// --- Grouping ---

// Rollup groups by every prefix of exprs.
func Rollup(exprs ...Expression) *Operation { return MustOperation(OpRollup, exprs...) }

// Cube groups by every subset of exprs.
func Cube(exprs ...Expression) *Operation { return MustOperation(OpCube, exprs...) }

// GroupingSets groups by each set. An empty set is the grand total.
func GroupingSets(sets ...[]Expression) *Operation {
	args := make([]Expression, len(sets))
	for i, s := range sets {
		if len(s) == 0 {
			args[i] = MustOperation(OpEmptyGroupingSet)
			continue
		}
		args[i] = MustOperation(OpGroupingSet, s...)
	}
	return MustOperation(OpGroupingSets, args...)
}

// --- Named functions ---

var functionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Function calls the SQL function name with args as name(a, b, ...).
func Function(t Type, name string, args ...any) *TemplateExpr {
	return namedFunction(t, name, "", args)
}

// DistinctFunction calls an aggregate over distinct values: name(DISTINCT a).
func DistinctFunction(t Type, name string, args ...any) *TemplateExpr {
	return namedFunction(t, name, "DISTINCT ", args)
}

func namedFunction(t Type, name, prefix string, args []any) *TemplateExpr {
	if !functionName.MatchString(name) {
		panic(malformed(Operator(name), "invalid function name %q", name))
	}
	slots := make([]string, len(args))
	for i := range args {
		slots[i] = "{" + strconv.Itoa(i) + "}"
	}
	return Template(t, name+"("+prefix+strings.Join(slots, ", ")+")", args...)
}
