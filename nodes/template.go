package nodes

import "slices"

// TemplateExpr renders a caller-supplied pattern such as "sign({0})" with
// its own arguments. The pattern is parsed at serialization time.
type TemplateExpr struct {
	Predications
	pattern string
	args    []Expression
	typ     Type
	hash    uint64
}

func (*TemplateExpr) expression() {}

// Template builds a template expression. Arguments that are not expressions
// are wrapped as constants.
func Template(t Type, pattern string, args ...any) *TemplateExpr {
	exprs := make([]Expression, len(args))
	for i, a := range args {
		exprs[i] = toExpr(a, TypeAny)
	}
	te := &TemplateExpr{pattern: pattern, args: exprs, typ: t}
	te.self = te
	h := newHasher(tagTemplate).str(pattern).typ(t)
	for _, a := range exprs {
		h.expr(a)
	}
	te.hash = h.sum()
	return te
}

// Raw is an argument-free template, used for query flags and fragments.
func Raw(sql string) *TemplateExpr { return Template(TypeAny, sql) }

// BoolTemplate is a boolean template expression usable as a predicate.
func BoolTemplate(pattern string, args ...any) *TemplateExpr {
	return Template(TypeBoolean, pattern, args...)
}

func (t *TemplateExpr) Type() Type         { return t.typ }
func (t *TemplateExpr) Hash() uint64       { return t.hash }
func (t *TemplateExpr) Pattern() string    { return t.pattern }
func (t *TemplateExpr) Args() []Expression { return slices.Clone(t.args) }
