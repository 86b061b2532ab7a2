package projections

import (
	"errors"
	"fmt"

	"github.com/bawdo/querytree/nodes"
)

// RowSizeError reports a raw row whose width differs from the leaf count of
// the projection.
type RowSizeError struct {
	Factory string
	Want    int
	Got     int
}

func (e *RowSizeError) Error() string {
	return fmt.Sprintf("projections: %s expects %d values, got %d", e.Factory, e.Want, e.Got)
}

// ErrNotFlattenable is returned by Flatten for values that are not tuples.
var ErrNotFlattenable = errors.New("projections: value cannot be flattened")

// Leaves returns the leaf expressions of e in rendering order. Nested
// factories are expanded; any other expression is its own leaf. Duplicate
// leaves keep their own positions.
func Leaves(e nodes.Expression) []nodes.Expression {
	f, ok := e.(*nodes.Factory)
	if !ok {
		return []nodes.Expression{e}
	}
	var out []nodes.Expression
	for _, a := range f.Args() {
		out = append(out, Leaves(a)...)
	}
	return out
}

// LeafCount is len(Leaves(e)) without allocating the slice.
func LeafCount(e nodes.Expression) int {
	f, ok := e.(*nodes.Factory)
	if !ok {
		return 1
	}
	n := 0
	for i := range f.Len() {
		n += LeafCount(f.Arg(i))
	}
	return n
}

// Reconstruct builds the composite result of f from one flat row. The
// boolean is false when f skips nulls and every value it consumed was null.
func Reconstruct(f *nodes.Factory, raw []any) (any, bool, error) {
	if want := LeafCount(f); want != len(raw) {
		return nil, false, &RowSizeError{Factory: f.Name(), Want: want, Got: len(raw)}
	}
	r := nodes.Accept[result, *cursor](f, reconstructor{}, &cursor{raw: raw})
	return r.value, r.present, r.err
}

// ReconstructAll applies Reconstruct to each row, dropping absent results.
func ReconstructAll(f *nodes.Factory, rows [][]any) ([]any, error) {
	out := make([]any, 0, len(rows))
	for i, row := range rows {
		v, ok, err := Reconstruct(f, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Flatten is the inverse of Reconstruct for tuples: it returns the flat row
// a tuple was built from. An absent nested tuple flattens to nulls.
func Flatten(f *nodes.Factory, v any) ([]any, error) {
	t, ok := v.(*Tuple)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotFlattenable, v)
	}
	if t.Size() != f.Len() {
		return nil, &RowSizeError{Factory: f.Name(), Want: f.Len(), Got: t.Size()}
	}
	out := make([]any, 0, LeafCount(f))
	for i := range f.Len() {
		nested, ok := f.Arg(i).(*nodes.Factory)
		if !ok {
			out = append(out, t.Get(i))
			continue
		}
		if t.Get(i) == nil {
			out = append(out, make([]any, LeafCount(nested))...)
			continue
		}
		vals, err := Flatten(nested, t.Get(i))
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

type cursor struct {
	raw []any
	pos int
}

func (c *cursor) next() any {
	v := c.raw[c.pos]
	c.pos++
	return v
}

type result struct {
	value   any
	present bool
	err     error
}

// reconstructor consumes one raw value per leaf and one nested run per
// factory.
type reconstructor struct{}

func (reconstructor) leaf(c *cursor) result { return result{value: c.next(), present: true} }

func (r reconstructor) VisitPath(_ *nodes.Path, c *cursor) result         { return r.leaf(c) }
func (r reconstructor) VisitConstant(_ *nodes.Constant, c *cursor) result { return r.leaf(c) }
func (r reconstructor) VisitNull(_ *nodes.Null, c *cursor) result         { return r.leaf(c) }
func (r reconstructor) VisitParam(_ *nodes.Param, c *cursor) result       { return r.leaf(c) }
func (r reconstructor) VisitOperation(_ *nodes.Operation, c *cursor) result {
	return r.leaf(c)
}
func (r reconstructor) VisitTemplate(_ *nodes.TemplateExpr, c *cursor) result { return r.leaf(c) }
func (r reconstructor) VisitSubQuery(_ *nodes.SubQuery, c *cursor) result     { return r.leaf(c) }

func (r reconstructor) VisitFactory(f *nodes.Factory, c *cursor) result {
	start := c.pos
	values := make([]any, f.Len())
	for i := range f.Len() {
		res := nodes.Accept[result, *cursor](f.Arg(i), r, c)
		if res.err != nil {
			return res
		}
		values[i] = res.value
	}
	if f.IsSkipNulls() && allNull(c.raw[start:c.pos]) {
		return result{}
	}
	v, err := f.Build(values)
	if err != nil {
		return result{err: fmt.Errorf("projections: build %s: %w", f.Name(), err)}
	}
	return result{value: v, present: true}
}

func allNull(vs []any) bool {
	for _, v := range vs {
		if v != nil {
			return false
		}
	}
	return true
}
