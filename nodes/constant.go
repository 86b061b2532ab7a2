package nodes

import (
	"reflect"

	"github.com/google/uuid"
)

// Constant is a typed literal value. Null is never a constant; see NullOf.
type Constant struct {
	Predications
	value any
	typ   Type
	canon string
	hash  uint64
}

func (*Constant) expression() {}

// NewConstant wraps v with its inferred type.
func NewConstant(v any) (*Constant, error) {
	return NewTypedConstant(TypeOfValue(v), v)
}

// NewTypedConstant wraps v with an explicit static type.
func NewTypedConstant(t Type, v any) (*Constant, error) {
	if v == nil {
		return nil, malformed("", "nil constant, use NullOf")
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, malformed("", "nil %T constant, use NullOf", v)
	}
	if xs, ok := asList(v); ok {
		v = xs
	}
	c := &Constant{value: v, typ: t, canon: CanonicalValue(v)}
	c.self = c
	c.hash = newHasher(tagConstant).str(c.canon).typ(t).sum()
	return c, nil
}

// Literal wraps v, panicking on nil. It is the DSL form of NewConstant.
func Literal(v any) *Constant {
	c, err := NewConstant(v)
	if err != nil {
		panic(err)
	}
	return c
}

// ListOf returns the elements of a slice or array value. Byte slices are
// scalars and report false.
func ListOf(v any) ([]any, bool) { return asList(v) }

// asList normalizes slices other than []byte into []any.
func asList(v any) ([]any, bool) {
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	if xs, ok := v.([]any); ok {
		return xs, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Array && rv.Type().Elem() == reflect.TypeFor[byte]() {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func (c *Constant) Type() Type   { return c.typ }
func (c *Constant) Hash() uint64 { return c.hash }

// Value returns the wrapped value. Slices are returned as []any.
func (c *Constant) Value() any { return c.value }

// List returns the elements of a collection constant.
func (c *Constant) List() ([]any, bool) {
	xs, ok := c.value.([]any)
	return xs, ok
}

// Null is the typed null expression. There is one instance per kind.
type Null struct {
	Predications
	typ  Type
	hash uint64
}

func (*Null) expression() {}

var nulls = func() map[Kind]*Null {
	m := make(map[Kind]*Null, len(kindNames))
	for k := range kindNames {
		t := Type{Kind: Kind(k)}
		n := &Null{typ: t, hash: newHasher(tagNull).typ(t).sum()}
		n.self = n
		m[Kind(k)] = n
	}
	return m
}()

// NullOf returns the null singleton for the kind of t.
func NullOf(t Type) *Null {
	if n, ok := nulls[t.Kind]; ok {
		return n
	}
	return nulls[KindAny]
}

func (n *Null) Type() Type   { return n.typ }
func (n *Null) Hash() uint64 { return n.hash }

// Param is a named placeholder whose value is bound on the query metadata.
type Param struct {
	Predications
	name string
	typ  Type
	hash uint64
}

func (*Param) expression() {}

// NewParam returns a named parameter. An empty name receives a random one.
func NewParam(name string, t Type) *Param {
	if name == "" {
		name = "param" + uuid.NewString()
	}
	p := &Param{name: name, typ: t, hash: newHasher(tagParam).str(name).typ(t).sum()}
	p.self = p
	return p
}

func (p *Param) Type() Type     { return p.typ }
func (p *Param) Hash() uint64   { return p.hash }
func (p *Param) Name() string   { return p.name }
func (p *Param) String() string { return ":" + p.name }
