package querydoc

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bawdo/querytree/nodes"
)

// Scope resolves table aliases while parsing expressions.
type Scope struct {
	entities map[string]*nodes.Path
	order    []string
}

// NewScope returns a scope over entities.
func NewScope(entities ...*nodes.Path) (*Scope, error) {
	s := &Scope{entities: make(map[string]*nodes.Path)}
	for _, e := range entities {
		if err := s.Add(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers an entity under its alias.
func (s *Scope) Add(e *nodes.Path) error {
	alias := e.Name()
	if _, ok := s.entities[alias]; ok {
		return fmt.Errorf("querydoc: alias %q used twice", alias)
	}
	s.entities[alias] = e
	s.order = append(s.order, alias)
	return nil
}

// Entity returns the entity registered under alias.
func (s *Scope) Entity(alias string) (*nodes.Path, bool) {
	e, ok := s.entities[alias]
	return e, ok
}

// Aliases lists registered aliases in insertion order.
func (s *Scope) Aliases() []string { return slices.Clone(s.order) }

// column resolves name, optionally qualified by alias. An unqualified name
// needs exactly one entity in scope; with none it is a free variable.
func (s *Scope) column(alias, name string) (*nodes.Path, error) {
	if alias != "" {
		e, ok := s.entities[alias]
		if !ok {
			return nil, fmt.Errorf("querydoc: unknown table or alias %q", alias)
		}
		return e.Col(name), nil
	}
	switch len(s.order) {
	case 0:
		return nodes.Var(name, nodes.TypeAny), nil
	case 1:
		return s.entities[s.order[0]].Col(name), nil
	}
	return nil, fmt.Errorf("querydoc: column %q is ambiguous, qualify it with one of %s",
		name, strings.Join(s.order, ", "))
}

// ParseEntity parses "table", "table alias" or "table AS alias".
func ParseEntity(ref string) (*nodes.Path, error) {
	f := strings.Fields(ref)
	switch {
	case len(f) == 1:
		return nodes.NewEntity(f[0], ""), nil
	case len(f) == 2:
		return nodes.NewEntity(f[0], f[1]), nil
	case len(f) == 3 && strings.EqualFold(f[1], "as"):
		return nodes.NewEntity(f[0], f[2]), nil
	}
	return nil, fmt.Errorf("querydoc: bad table reference %q, want \"table [alias]\"", ref)
}

// Expr parses a scalar or boolean expression.
func (s *Scope) Expr(src string) (nodes.Expression, error) {
	p, err := s.newParser(src)
	if err != nil {
		return nil, err
	}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	return e, p.end()
}

// SelectItem parses a projection item: an expression with an optional
// "AS alias", "*" (nil result), "alias.*" or a bare alias naming an entity.
func (s *Scope) SelectItem(src string) (nodes.Expression, error) {
	if strings.TrimSpace(src) == "*" {
		return nil, nil
	}
	p, err := s.newParser(src)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokIdent && p.at(1).punct(".") && p.at(2).punct("*") && p.at(3).kind == tokEOF {
		e, ok := s.entities[t.text]
		if !ok {
			return nil, fmt.Errorf("querydoc: unknown table or alias %q", t.text)
		}
		return e.Star(), nil
	}
	if t := p.peek(); t.kind == tokIdent && p.at(1).kind == tokEOF {
		if e, ok := s.entities[t.text]; ok {
			return e, nil
		}
	}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.accept("as") {
		name := p.next()
		if name.kind != tokIdent {
			return nil, p.errorf(name, "alias expected after AS, got %s", name)
		}
		if e, err = nodes.NewOperation(nodes.OpAlias, e, nodes.Var(name.text, e.Type())); err != nil {
			return nil, err
		}
	}
	return e, p.end()
}

// OrderItem parses "expr [ASC|DESC] [NULLS FIRST|LAST]".
func (s *Scope) OrderItem(src string) (nodes.OrderSpecifier, error) {
	p, err := s.newParser(src)
	if err != nil {
		return nodes.OrderSpecifier{}, err
	}
	spec, err := p.orderSpec()
	if err != nil {
		return spec, err
	}
	return spec, p.end()
}

type parser struct {
	src   string
	toks  []token
	pos   int
	scope *Scope
}

func (s *Scope) newParser(src string) (*parser, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return &parser{src: src, toks: toks, scope: s}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) at(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// accept consumes the keyword kw if it is next.
func (p *parser) accept(kw string) bool {
	if p.peek().is(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) acceptPunct(s string) bool {
	if p.peek().punct(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectPunct(s string) error {
	if t := p.next(); !t.punct(s) {
		return p.errorf(t, "%q expected, got %s", s, t)
	}
	return nil
}

func (p *parser) end() error {
	if t := p.peek(); t.kind != tokEOF {
		return p.errorf(t, "unexpected %s", t)
	}
	return nil
}

func (p *parser) orderSpec() (nodes.OrderSpecifier, error) {
	e, err := p.or()
	if err != nil {
		return nodes.OrderSpecifier{}, err
	}
	spec := nodes.OrderSpecifier{Target: e, Order: nodes.Asc}
	switch {
	case p.accept("asc"):
	case p.accept("desc"):
		spec.Order = nodes.Desc
	}
	if p.accept("nulls") {
		switch {
		case p.accept("first"):
			spec = spec.NullsFirst()
		case p.accept("last"):
			spec = spec.NullsLast()
		default:
			return spec, p.errorf(p.peek(), "FIRST or LAST expected after NULLS")
		}
	}
	return spec, nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Input: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) or() (nodes.Expression, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.accept("or") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		if left, err = nodes.NewOperation(nodes.OpOr, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) and() (nodes.Expression, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.accept("and") {
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		if left, err = nodes.NewOperation(nodes.OpAnd, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) not() (nodes.Expression, error) {
	if p.accept("not") {
		e, err := p.not()
		if err != nil {
			return nil, err
		}
		return nodes.NewOperation(nodes.OpNot, e)
	}
	return p.comparison()
}

var comparisonOps = map[string]nodes.Operator{
	"=":  nodes.OpEq,
	"!=": nodes.OpNe,
	"<>": nodes.OpNe,
	">":  nodes.OpGt,
	">=": nodes.OpGoe,
	"<":  nodes.OpLt,
	"<=": nodes.OpLoe,
}

func (p *parser) comparison() (nodes.Expression, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if op, ok := comparisonOps[t.text]; ok && t.kind == tokPunct {
		p.next()
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		return nodes.NewOperation(op, left, right)
	}

	if p.accept("is") {
		op := nodes.OpIsNull
		if p.accept("not") {
			op = nodes.OpIsNotNull
		}
		if !p.accept("null") {
			return nil, p.errorf(p.peek(), "NULL expected after IS")
		}
		return nodes.NewOperation(op, left)
	}

	negate := false
	if p.peek().is("not") && (p.at(1).is("like") || p.at(1).is("in") || p.at(1).is("between")) {
		p.next()
		negate = true
	}
	switch {
	case p.accept("like"):
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		op := nodes.OpLike
		if negate {
			op = nodes.OpNotLike
		}
		return nodes.NewOperation(op, left, right)

	case p.accept("in"):
		list, err := p.inList(left)
		if err != nil {
			return nil, err
		}
		op := nodes.OpIn
		if negate {
			op = nodes.OpNotIn
		}
		return nodes.NewOperation(op, left, list)

	case p.accept("between"):
		lo, err := p.additive()
		if err != nil {
			return nil, err
		}
		if !p.accept("and") {
			return nil, p.errorf(p.peek(), "AND expected in BETWEEN")
		}
		hi, err := p.additive()
		if err != nil {
			return nil, err
		}
		e, err := nodes.NewOperation(nodes.OpBetween, left, lo, hi)
		if err != nil || !negate {
			return e, err
		}
		return nodes.NewOperation(nodes.OpNot, e)
	}
	return left, nil
}

// inList parses "(v, ...)" of literals into a collection constant typed
// after the left operand.
func (p *parser) inList(left nodes.Expression) (nodes.Expression, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var values []any
	for !p.peek().punct(")") {
		if len(values) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		start := p.peek()
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		c, ok := e.(*nodes.Constant)
		if !ok {
			return nil, p.errorf(start, "IN lists accept literals only")
		}
		values = append(values, c.Value())
	}
	p.next()
	return nodes.NewTypedConstant(nodes.CollectionOf(left.Type().Kind), values)
}

func (p *parser) additive() (nodes.Expression, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op nodes.Operator
		switch {
		case p.acceptPunct("+"):
			op = nodes.OpAdd
		case p.acceptPunct("-"):
			op = nodes.OpSub
		case p.acceptPunct("||"):
			op = nodes.OpConcat
		default:
			return left, nil
		}
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		if left, err = nodes.NewOperation(op, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *parser) multiplicative() (nodes.Expression, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op nodes.Operator
		switch {
		case p.acceptPunct("*"):
			op = nodes.OpMult
		case p.acceptPunct("/"):
			op = nodes.OpDiv
		case p.acceptPunct("%"):
			op = nodes.OpMod
		default:
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		if left, err = nodes.NewOperation(op, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *parser) unary() (nodes.Expression, error) {
	if !p.acceptPunct("-") {
		return p.atom()
	}
	if t := p.peek(); t.kind == tokNumber {
		p.next()
		v, err := p.number(t, "-"+t.text)
		if err != nil {
			return nil, err
		}
		return nodes.Literal(v), nil
	}
	e, err := p.unary()
	if err != nil {
		return nil, err
	}
	return nodes.NewOperation(nodes.OpNegate, e)
}

// number parses an integer as int and anything else as a decimal.
func (p *parser) number(t token, text string) (any, error) {
	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, p.errorf(t, "bad number %q", t.text)
	}
	return d, nil
}

func (p *parser) atom() (nodes.Expression, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := p.number(t, t.text)
		if err != nil {
			return nil, err
		}
		return nodes.Literal(v), nil
	case tokString:
		return nodes.Literal(t.text), nil
	case tokParam:
		return nodes.NewParam(t.text, nodes.TypeAny), nil
	case tokPunct:
		if t.text == "(" {
			e, err := p.or()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
		return nil, p.errorf(t, "unexpected %s", t)
	case tokEOF:
		return nil, p.errorf(t, "expression expected")
	}

	switch strings.ToLower(t.text) {
	case "true":
		return nodes.Literal(true), nil
	case "false":
		return nodes.Literal(false), nil
	case "null":
		return nodes.NullOf(nodes.TypeAny), nil
	case "current_timestamp":
		if !p.peek().punct("(") {
			return nodes.CurrentTimestamp(), nil
		}
	case "current_date":
		if !p.peek().punct("(") {
			return nodes.CurrentDate(), nil
		}
	case "case":
		return p.caseExpr()
	}

	if p.acceptPunct("(") {
		e, err := p.call(t)
		if err != nil || !p.accept("over") {
			return e, err
		}
		return p.over(e)
	}
	if p.acceptPunct(".") {
		col := p.next()
		if col.kind != tokIdent {
			return nil, p.errorf(col, "column name expected after %q", t.text+".")
		}
		return p.scope.column(t.text, col.text)
	}
	return p.scope.column("", t.text)
}

var unaryFuncs = map[string]nodes.Operator{
	"lower":  nodes.OpLower,
	"upper":  nodes.OpUpper,
	"trim":   nodes.OpTrim,
	"length": nodes.OpLength,
	"abs":    nodes.OpAbs,
	"sum":    nodes.OpSum,
	"avg":    nodes.OpAvg,
	"min":    nodes.OpMin,
	"max":    nodes.OpMax,
	"year":   nodes.OpYear,
	"month":  nodes.OpMonth,
	"day":    nodes.OpDayOfMonth,
}

// analyticFuncs are checked against their operator arity.
var analyticFuncs = map[string]nodes.Operator{
	"row_number":   nodes.OpRowNumber,
	"rank":         nodes.OpRank,
	"dense_rank":   nodes.OpDenseRank,
	"percent_rank": nodes.OpPercentRank,
	"cume_dist":    nodes.OpCumeDist,
	"ntile":        nodes.OpNtile,
	"lag":          nodes.OpLag,
	"lead":         nodes.OpLead,
	"first_value":  nodes.OpFirstValue,
	"last_value":   nodes.OpLastValue,
	"nth_value":    nodes.OpNthValue,
	"rollup":       nodes.OpRollup,
	"cube":         nodes.OpCube,
}

var binaryFuncs = map[string]nodes.Operator{
	"starts_with": nodes.OpStartsWith,
	"ends_with":   nodes.OpEndsWith,
	"contains":    nodes.OpContains,
	"iequals":     nodes.OpEqIgnoreCase,
	"add_days":    nodes.OpAddDays,
	"mod":         nodes.OpMod,
	"concat":      nodes.OpConcat,
}

// call parses the arguments of name( and builds the operation. Names that
// are not built in become custom operators rendered by a registered
// template.
func (p *parser) call(name token) (nodes.Expression, error) {
	fn := strings.ToLower(name.text)
	switch fn {
	case "count":
		if p.acceptPunct("*") {
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return nodes.CountAll(), nil
		}
		op := nodes.OpCount
		if p.accept("distinct") {
			op = nodes.OpCountDistinct
		}
		arg, err := p.or()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return nodes.NewOperation(op, arg)

	case "cast":
		arg, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.accept("as") {
			return nil, p.errorf(p.peek(), "AS expected in CAST")
		}
		var typ []string
		for !p.peek().punct(")") {
			t := p.next()
			if t.kind == tokEOF {
				return nil, p.errorf(t, "\")\" expected")
			}
			typ = append(typ, t.text)
		}
		p.next()
		if len(typ) == 0 {
			return nil, p.errorf(name, "type expected in CAST")
		}
		return nodes.NewTypedOperation(nodes.TypeAny, nodes.OpCast, arg, nodes.Literal(strings.Join(typ, " ")))
	}

	args, err := p.args()
	if err != nil {
		return nil, err
	}
	switch fn {
	case "now", "current_timestamp":
		return nodes.NewOperation(nodes.OpCurrentTimestamp, args...)
	case "current_date":
		return nodes.NewOperation(nodes.OpCurrentDate, args...)
	case "coalesce":
		return nodes.NewOperation(nodes.OpCoalesce, args...)
	}
	if op, ok := unaryFuncs[fn]; ok {
		return nodes.NewOperation(op, args...)
	}
	if op, ok := binaryFuncs[fn]; ok {
		return nodes.NewOperation(op, args...)
	}
	if op, ok := analyticFuncs[fn]; ok {
		return nodes.NewOperation(op, args...)
	}
	return nodes.NewOperation(nodes.Operator(strings.ToUpper(name.text)), args...)
}

// caseExpr parses the rest of CASE [operand] WHEN a THEN b ... [ELSE c] END.
func (p *parser) caseExpr() (nodes.Expression, error) {
	b := nodes.Cases()
	if !p.accept("when") {
		operand, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.accept("when") {
			return nil, p.errorf(p.peek(), "WHEN expected in CASE")
		}
		b = nodes.CaseOf(operand)
	}
	for {
		cond, err := p.or()
		if err != nil {
			return nil, err
		}
		if !p.accept("then") {
			return nil, p.errorf(p.peek(), "THEN expected in CASE")
		}
		result, err := p.or()
		if err != nil {
			return nil, err
		}
		b.When(cond, result)
		if !p.accept("when") {
			break
		}
	}
	var otherwise nodes.Expression
	if p.accept("else") {
		v, err := p.or()
		if err != nil {
			return nil, err
		}
		otherwise = v
	}
	if !p.accept("end") {
		return nil, p.errorf(p.peek(), "END expected in CASE")
	}
	if otherwise == nil {
		return b.End(), nil
	}
	return b.Else(otherwise), nil
}

// over parses the window after fn OVER: a window name or
// ( [PARTITION BY expr, ...] [ORDER BY spec, ...] ).
func (p *parser) over(fn nodes.Expression) (nodes.Expression, error) {
	if t := p.peek(); t.kind == tokIdent {
		p.next()
		return nodes.NewTypedOperation(fn.Type(), nodes.OpOverNamed, fn, nodes.Var(t.text, nodes.TypeAny))
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	w := nodes.NewWindow()
	if p.accept("partition") {
		if !p.accept("by") {
			return nil, p.errorf(p.peek(), "BY expected after PARTITION")
		}
		var parts []nodes.Expression
		for {
			e, err := p.or()
			if err != nil {
				return nil, err
			}
			parts = append(parts, e)
			if !p.acceptPunct(",") {
				break
			}
		}
		w.PartitionBy(parts...)
	}
	if p.accept("order") {
		if !p.accept("by") {
			return nil, p.errorf(p.peek(), "BY expected after ORDER")
		}
		var specs []nodes.OrderSpecifier
		for {
			spec, err := p.orderSpec()
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
			if !p.acceptPunct(",") {
				break
			}
		}
		w.OrderBy(specs...)
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return nodes.Over(fn, w), nil
}

func (p *parser) args() ([]nodes.Expression, error) {
	var args []nodes.Expression
	for !p.acceptPunct(")") {
		if len(args) > 0 {
			if err := p.expectPunct(","); err != nil {
				return nil, err
			}
		}
		a, err := p.or()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}
