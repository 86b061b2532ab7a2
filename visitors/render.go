package visitors

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bawdo/querytree/internal/quoting"
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/projections"
	"github.com/bawdo/querytree/templates"
)

// templateOperator names free-form templates in errors.
const templateOperator nodes.Operator = "TEMPLATE"

// arg is one template argument: an expression, or a text fragment rendered
// in place.
type arg struct {
	expr nodes.Expression
	fn   func(*state) error
}

func exprArg(e nodes.Expression) arg { return arg{expr: e} }

func fragment(fn func(*state) error) arg { return arg{fn: fn} }

func textArg(s string) arg {
	return fragment(func(st *state) error { st.write(s); return nil })
}

func identArg(name string) arg {
	return fragment(func(st *state) error { st.ident(name); return nil })
}

func (a arg) render(st *state) error {
	if a.fn != nil {
		return a.fn(st)
	}
	return st.expr(a.expr)
}

func exprArgs(es []nodes.Expression) []arg {
	out := make([]arg, len(es))
	for i, e := range es {
		out[i] = exprArg(e)
	}
	return out
}

// renderer writes each expression variant into the state.
type renderer struct{}

func (renderer) VisitPath(p *nodes.Path, st *state) error {
	switch p.Kind() {
	case nodes.PathProperty:
		return st.operator(nodes.OpPathProperty, exprArg(p.Parent()), identArg(p.Name()))
	case nodes.PathArrayIndex:
		return st.operator(nodes.OpPathIndex, exprArg(p.Parent()), textArg(strconv.Itoa(p.Metadata().Index)))
	case nodes.PathMapKey:
		return st.operator(nodes.OpPathMapKey, exprArg(p.Parent()), textArg("'"+quoting.EscapeString(p.Name())+"'"))
	case nodes.PathCollectionAny:
		return st.operator(nodes.OpPathAny, exprArg(p.Parent()))
	}
	st.ident(p.Name())
	return nil
}

func (renderer) VisitConstant(c *nodes.Constant, st *state) error {
	return st.value(c.Value(), c.Type())
}

func (renderer) VisitNull(_ *nodes.Null, st *state) error {
	st.write(st.kw.Null)
	return nil
}

func (renderer) VisitParam(p *nodes.Param, st *state) error {
	v, ok := st.param(p)
	switch {
	case ok:
		return st.value(v, p.Type())
	case st.s.strict:
		return &ParamNotSetError{Name: p.Name()}
	}
	st.write(p.String())
	return nil
}

func (renderer) VisitOperation(o *nodes.Operation, st *state) error {
	op, tmpl, args, err := st.prepare(o)
	if err != nil {
		return err
	}
	return st.apply(op, tmpl, args)
}

func (renderer) VisitTemplate(t *nodes.TemplateExpr, st *state) error {
	tmpl, err := parseTemplate(t.Pattern())
	if err != nil {
		return err
	}
	return st.apply(templateOperator, tmpl, exprArgs(t.Args()))
}

func (renderer) VisitSubQuery(s *nodes.SubQuery, st *state) error {
	md := s.Metadata()
	c := st.child(md)
	wrap := !st.unionMember || st.d.WrapUnionMembers()
	if err := c.query(md, false); err != nil {
		return err
	}
	if wrap {
		st.write("(")
	}
	st.splice(c)
	if wrap {
		st.write(")")
	}
	return nil
}

// VisitFactory renders the flattened leaves, comma separated.
func (renderer) VisitFactory(f *nodes.Factory, st *state) error {
	return st.list(projections.Leaves(f), ", ")
}

var patternCache sync.Map

// parseTemplate parses free-form template patterns once. Their precedence
// sits just below the highest level so operation arguments are wrapped.
func parseTemplate(pattern string) (templates.Template, error) {
	if t, ok := patternCache.Load(pattern); ok {
		return t.(templates.Template), nil
	}
	t, err := templates.Parse(pattern, templates.PrecedenceHighest-1)
	if err != nil {
		return templates.Template{}, err
	}
	patternCache.Store(pattern, t)
	return t, nil
}

// operator renders op from the dialect table over args.
func (st *state) operator(op nodes.Operator, args ...arg) error {
	tmpl, err := st.d.Lookup(op)
	if err != nil {
		return err
	}
	return st.apply(op, tmpl, args)
}

// prepare resolves the operator actually rendered for o, applying the
// null comparison and empty IN rewrites.
func (st *state) prepare(o *nodes.Operation) (nodes.Operator, templates.Template, []arg, error) {
	op, args := o.Operator(), o.Args()
	var rendered []arg
	switch op {
	case nodes.OpEq, nodes.OpNe:
		if _, ok := args[1].(*nodes.Null); ok {
			if op == nodes.OpEq {
				op = nodes.OpIsNull
			} else {
				op = nodes.OpIsNotNull
			}
			rendered = []arg{exprArg(args[0])}
		}
	case nodes.OpIn, nodes.OpNotIn:
		xs, isList := st.members(args[1])
		switch {
		case isList && len(xs) == 0:
			// Nothing is in the empty set.
			right := "2"
			if op == nodes.OpNotIn {
				right = "1"
			}
			op = nodes.OpEq
			rendered = []arg{textArg("1"), textArg(right)}
		case isList:
			if p, ok := args[1].(*nodes.Param); ok {
				t := p.Type()
				rendered = []arg{exprArg(args[0]), fragment(func(st *state) error { return st.value(xs, t) })}
			}
		}
	case nodes.OpCase:
		rendered = []arg{spaced(args)}
	case nodes.OpCaseSimple:
		rendered = []arg{exprArg(args[0]), spaced(args[1:])}
	case nodes.OpOver:
		rendered = []arg{exprArg(args[0]), spaced(args[1:])}
	case nodes.OpWindowOrder:
		rendered = make([]arg, len(args))
		for i, a := range args {
			spec, ok := nodes.OrderOf(a)
			if !ok {
				rendered[i] = exprArg(a)
				continue
			}
			rendered[i] = fragment(func(st *state) error { return st.orderSpec(spec) })
		}
	}
	if rendered == nil {
		rendered = exprArgs(args)
	}
	tmpl, err := st.d.Lookup(op)
	if err != nil {
		return "", templates.Template{}, nil, err
	}
	return op, tmpl, rendered, nil
}

// spaced renders exprs in one slot separated by spaces.
func spaced(exprs []nodes.Expression) arg {
	return fragment(func(st *state) error { return st.list(exprs, " ") })
}

// members returns the elements on the right of IN. A bound param holding a
// single value is a one element list.
func (st *state) members(e nodes.Expression) ([]any, bool) {
	switch x := e.(type) {
	case *nodes.Constant:
		return x.List()
	case *nodes.Param:
		v, ok := st.param(x)
		if !ok {
			return nil, false
		}
		if xs, ok := nodes.ListOf(v); ok {
			return xs, true
		}
		return []any{v}, true
	}
	return nil, false
}

// apply writes tmpl with args substituted into its slots.
func (st *state) apply(op nodes.Operator, tmpl templates.Template, args []arg) error {
	member := nodes.IsSetOperator(op)
	for _, el := range tmpl.Elements() {
		switch {
		case el.IsText():
			st.write(el.Text)
		case el.Index == templates.AllArgs:
			for i, a := range args {
				if i > 0 {
					st.write(", ")
				}
				if err := st.slot(op, tmpl, i, a, el.Transform, member, len(args)); err != nil {
					return err
				}
			}
		default:
			if el.Index >= len(args) {
				return &nodes.IndexOutOfRangeError{Operator: op, Index: el.Index, Len: len(args)}
			}
			if err := st.slot(op, tmpl, el.Index, args[el.Index], el.Transform, member, len(args)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *state) slot(op nodes.Operator, tmpl templates.Template, i int, a arg, tr templates.Transform, member bool, arity int) error {
	if a.fn != nil {
		return a.fn(st)
	}
	if tr != templates.TransformNone {
		return st.transform(a, tr)
	}
	if member {
		prev := st.unionMember
		st.unionMember = true
		defer func() { st.unionMember = prev }()
	}
	child, ok := a.expr.(*nodes.Operation)
	if !ok {
		return st.expr(a.expr)
	}
	cop, ctmpl, cargs, err := st.prepare(child)
	if err != nil {
		return err
	}
	if !needsParens(op, tmpl, i, ctmpl, arity) {
		return st.apply(cop, ctmpl, cargs)
	}
	st.write("(")
	if err := st.apply(cop, ctmpl, cargs); err != nil {
		return err
	}
	st.write(")")
	return nil
}

// needsParens reports whether a child rendered with ctmpl must be wrapped in
// slot i of parent. Equal precedence wraps the operand of a unary parent, so
// -(-a) never renders as a comment, and otherwise the operand on the side
// that the parent's associativity does not group.
func needsParens(op nodes.Operator, parent templates.Template, i int, child templates.Template, arity int) bool {
	pp, cp := parent.Precedence(), child.Precedence()
	switch {
	case pp >= templates.PrecedenceHighest:
		return false
	case cp < pp:
		return true
	case cp > pp:
		return false
	case arity <= 1:
		return true
	}
	leading := i == parent.LeadingSlot()
	assoc := nodes.LeftAssoc
	if sig, ok := nodes.SignatureOf(op); ok {
		assoc = sig.Assoc
	}
	if assoc == nodes.RightAssoc {
		return leading
	}
	return !leading
}

// transform renders a slot with a LIKE, case or raw modifier. String
// constants are rewritten in place; other expressions are wrapped in the
// matching dialect function.
func (st *state) transform(a arg, tr templates.Transform) error {
	c, isConst := a.expr.(*nodes.Constant)
	s, isString := "", false
	if isConst {
		s, isString = c.Value().(string)
	}
	switch tr {
	case templates.TransformRaw:
		if !isConst {
			return st.expr(a.expr)
		}
		raw := fmt.Sprint(c.Value())
		if err := quoting.ValidateTypeName(raw); err != nil {
			return err
		}
		st.write(raw)
		return nil
	case templates.TransformLower, templates.TransformUpper:
		fn := nodes.OpLower
		if tr == templates.TransformUpper {
			fn = nodes.OpUpper
		}
		if !isString {
			return st.operator(fn, a)
		}
		if fn == nodes.OpLower {
			return st.value(strings.ToLower(s), nodes.TypeString)
		}
		return st.value(strings.ToUpper(s), nodes.TypeString)
	}

	prefix := tr == templates.TransformLikePrefix || tr == templates.TransformLikeBoth
	suffix := tr == templates.TransformLikeSuffix || tr == templates.TransformLikeBoth
	if isString {
		s = quoting.EscapeLikePattern(s, st.d.LikeEscape())
		if prefix {
			s = "%" + s
		}
		if suffix {
			s += "%"
		}
		return st.value(s, nodes.TypeString)
	}
	wildcard := exprArg(nodes.Literal("%"))
	inner := a
	if prefix {
		inner = fragment(func(st *state) error { return st.operator(nodes.OpConcat, wildcard, a) })
	}
	if suffix {
		return st.operator(nodes.OpConcat, inner, wildcard)
	}
	return inner.render(st)
}

// value binds v, or inlines it when parameters are disabled. Lists always
// expand to a parenthesized sequence.
func (st *state) value(v any, t nodes.Type) error {
	if xs, ok := v.([]any); ok {
		st.write("(")
		for i, x := range xs {
			if i > 0 {
				st.write(", ")
			}
			if err := st.value(x, nodes.Type{Kind: t.Elem}); err != nil {
				return err
			}
		}
		st.write(")")
		return nil
	}
	if v == nil {
		st.write(st.kw.Null)
		return nil
	}
	if st.s.strict {
		st.placeholder(v)
		return nil
	}
	lit, err := st.literal(v, t)
	if err != nil {
		return err
	}
	if strings.HasPrefix(lit, "-") && strings.HasSuffix(st.sb.String(), "-") {
		st.write(" ")
	}
	st.write(lit)
	return nil
}

// literal renders v as inline SQL text.
func (st *state) literal(v any, t nodes.Type) (string, error) {
	switch x := v.(type) {
	case string:
		return "'" + quoting.EscapeString(x) + "'", nil
	case bool:
		return st.d.BoolLiteral(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case decimal.Decimal:
		return x.String(), nil
	case time.Time:
		if t.Kind == nodes.KindDate {
			return st.d.DateLiteral(x), nil
		}
		return st.d.DateTimeLiteral(x), nil
	case uuid.UUID:
		return "'" + x.String() + "'", nil
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'", nil
	case fmt.Stringer:
		return "'" + quoting.EscapeString(x.String()) + "'", nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedLiteral, v)
}
