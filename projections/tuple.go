// Package projections reconstructs composite results from the flat rows a
// serialized projection returns.
package projections

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bawdo/querytree/nodes"
)

// Tuple is a reconstructed row. Its components line up with the arguments
// of the factory that produced it.
type Tuple struct {
	exprs  []nodes.Expression
	values []any
}

// Get returns the value at position i.
func (t *Tuple) Get(i int) any { return t.values[i] }

// GetExpr returns the value of the component structurally equal to e. An
// aliased component also matches its alias path.
func (t *Tuple) GetExpr(e nodes.Expression) (any, bool) {
	for i, c := range t.exprs {
		if nodes.Equal(c, e) {
			return t.values[i], true
		}
		if o, ok := c.(*nodes.Operation); ok && o.Operator() == nodes.OpAlias {
			if nodes.Equal(o.Arg(0), e) || nodes.Equal(o.Arg(1), e) {
				return t.values[i], true
			}
		}
	}
	return nil, false
}

func (t *Tuple) Size() int { return len(t.values) }

// Values returns a copy of the component values.
func (t *Tuple) Values() []any { return slices.Clone(t.values) }

// Equal compares component values only; the producing factory is ignored.
func (t *Tuple) Equal(o *Tuple) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.values) != len(o.values) {
		return false
	}
	for i := range t.values {
		if canonical(t.values[i]) != canonical(o.values[i]) {
			return false
		}
	}
	return true
}

// Hash is consistent with Equal.
func (t *Tuple) Hash() uint64 { return xxhash.Sum64String(t.Key()) }

// Key returns a comparable representation usable as a map key. Equal
// tuples have equal keys.
func (t *Tuple) Key() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range t.values {
		if i > 0 {
			sb.WriteByte('|')
		}
		c := canonical(v)
		fmt.Fprintf(&sb, "%d:%s", len(c), c)
	}
	sb.WriteByte(')')
	return sb.String()
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.values))
	for i, v := range t.values {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func canonical(v any) string {
	if t, ok := v.(*Tuple); ok {
		if t == nil {
			return "nil"
		}
		return "T:" + t.Key()
	}
	return nodes.CanonicalValue(v)
}

// NewTuple returns a factory reconstructing a *Tuple over exprs.
func NewTuple(exprs ...nodes.Expression) (*nodes.Factory, error) {
	args := slices.Clone(exprs)
	return nodes.NewFactory("tuple", nodes.TypeTuple, func(values []any) (any, error) {
		return &Tuple{exprs: args, values: slices.Clone(values)}, nil
	}, args...)
}

// Constructor returns a factory reconstructing a T with build. name
// identifies the rule for equality between factories.
func Constructor[T any](name string, build func(values []any) (T, error), exprs ...nodes.Expression) (*nodes.Factory, error) {
	if build == nil {
		return nodes.NewFactory(name, nodes.TypeAny, nil, exprs...)
	}
	return nodes.NewFactory(name, nodes.TypeAny, func(values []any) (any, error) {
		return build(values)
	}, exprs...)
}

// Concat returns a string factory joining its component values.
func Concat(exprs ...nodes.Expression) (*nodes.Factory, error) {
	return nodes.NewFactory("concat", nodes.TypeString, func(values []any) (any, error) {
		var sb strings.Builder
		for _, v := range values {
			if v != nil {
				fmt.Fprint(&sb, v)
			}
		}
		return sb.String(), nil
	}, exprs...)
}
