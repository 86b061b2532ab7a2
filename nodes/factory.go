package nodes

import "slices"

// BuildFunc reconstructs a composite value from component values, one per
// factory argument. Nested factories contribute their reconstructed value.
type BuildFunc func(values []any) (any, error)

// Factory is a projection that reconstructs a composite result from an
// ordered list of component expressions. Components may be factories.
type Factory struct {
	Predications
	name      string
	args      []Expression
	build     BuildFunc
	typ       Type
	skipNulls bool
	hash      uint64
}

func (*Factory) expression() {}

// NewFactory builds a factory projection. name identifies the
// reconstruction rule for equality and diagnostics.
func NewFactory(name string, t Type, build BuildFunc, args ...Expression) (*Factory, error) {
	if build == nil {
		return nil, malformed("", "factory %q has no build function", name)
	}
	if len(args) == 0 {
		return nil, malformed("", "factory %q has no arguments", name)
	}
	for i, a := range args {
		if a == nil {
			return nil, malformed("", "factory %q argument %d is nil", name, i)
		}
	}
	return newFactory(name, t, build, slices.Clone(args), false), nil
}

func newFactory(name string, t Type, build BuildFunc, args []Expression, skipNulls bool) *Factory {
	f := &Factory{name: name, args: args, build: build, typ: t, skipNulls: skipNulls}
	f.self = f
	h := newHasher(tagFactory).str(name).typ(t)
	if skipNulls {
		h.u64(1)
	} else {
		h.u64(0)
	}
	for _, a := range args {
		h.expr(a)
	}
	f.hash = h.sum()
	return f
}

// SkipNulls returns a copy that reconstructs to no result when every
// consumed value is null.
func (f *Factory) SkipNulls() *Factory {
	if f.skipNulls {
		return f
	}
	return newFactory(f.name, f.typ, f.build, f.args, true)
}

func (f *Factory) Type() Type         { return f.typ }
func (f *Factory) Hash() uint64       { return f.hash }
func (f *Factory) Name() string       { return f.name }
func (f *Factory) IsSkipNulls() bool  { return f.skipNulls }
func (f *Factory) Len() int           { return len(f.args) }
func (f *Factory) Args() []Expression { return slices.Clone(f.args) }

// Arg returns argument i and panics with *IndexOutOfRangeError past the end.
func (f *Factory) Arg(i int) Expression {
	if i < 0 || i >= len(f.args) {
		panic(&IndexOutOfRangeError{Operator: Operator(f.name), Index: i, Len: len(f.args)})
	}
	return f.args[i]
}

// Build applies the reconstruction rule.
func (f *Factory) Build(values []any) (any, error) { return f.build(values) }
