package projections

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawdo/querytree/nodes"
)

var (
	str1 = nodes.StringVar("str1")
	str2 = nodes.StringVar("str2")
	str3 = nodes.StringVar("str3")
	str4 = nodes.StringVar("str4")
)

func mustTuple(t *testing.T, exprs ...nodes.Expression) *nodes.Factory {
	t.Helper()
	f, err := NewTuple(exprs...)
	require.NoError(t, err)
	return f
}

func mustConcat(t *testing.T, exprs ...nodes.Expression) *nodes.Factory {
	t.Helper()
	f, err := Concat(exprs...)
	require.NoError(t, err)
	return f
}

func reconstructTuple(t *testing.T, f *nodes.Factory, raw ...any) *Tuple {
	t.Helper()
	v, ok, err := Reconstruct(f, raw)
	require.NoError(t, err)
	require.True(t, ok)
	tup, isTuple := v.(*Tuple)
	require.True(t, isTuple, "got %T", v)
	return tup
}

func TestTupleGet(t *testing.T) {
	t.Parallel()
	tup := reconstructTuple(t, mustTuple(t, str1, str2), "a", "b")

	assert.Equal(t, 2, tup.Size())
	assert.Equal(t, "a", tup.Get(0))
	assert.Equal(t, "b", tup.Get(1))
	assert.Equal(t, []any{"a", "b"}, tup.Values())
	assert.Equal(t, "[a, b]", tup.String())

	v, ok := tup.GetExpr(nodes.StringVar("str2"))
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	v, ok = tup.GetExpr(nodes.Var("str2", nodes.TypeAny))
	assert.True(t, ok, "untyped reference")
	assert.Equal(t, "b", v)

	_, ok = tup.GetExpr(str3)
	assert.False(t, ok)
}

func TestTupleGetThroughAlias(t *testing.T) {
	t.Parallel()
	aliased := str1.As("s")
	tup := reconstructTuple(t, mustTuple(t, aliased), "arg")

	for _, e := range []nodes.Expression{aliased, str1, nodes.StringVar("s"), nodes.Var("s", nodes.TypeAny)} {
		v, ok := tup.GetExpr(e)
		assert.True(t, ok, "lookup %v", e)
		assert.Equal(t, "arg", v)
	}
}

func TestTupleEquality(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1, str2)
	a := reconstructTuple(t, f, "str1", "str2")
	b := reconstructTuple(t, f, "str1", "str2")
	c := reconstructTuple(t, f, "str1", "other")

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(c))

	other := reconstructTuple(t, mustTuple(t, str3, str4), "str1", "str2")
	assert.True(t, a.Equal(other), "equality ignores the producing factory")
	assert.Equal(t, a.Key(), other.Key())
}

func TestTupleAsMapKey(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1, nodes.NumberVar("n"))
	seen := make(map[string]*Tuple)
	for _, row := range [][]any{{"a", 1}, {"b", 2}, {"a", 1}, {"a|1", nil}, {"a", nil}} {
		tup := reconstructTuple(t, f, row...)
		seen[tup.Key()] = tup
	}
	assert.Len(t, seen, 4)
}

func TestTupleKeyIsUnambiguous(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1, str2)
	a := reconstructTuple(t, f, "a|", "b")
	b := reconstructTuple(t, f, "a", "|b")
	assert.NotEqual(t, a.Key(), b.Key())
	assert.False(t, a.Equal(b))
}

func TestNestedProjectionLeaves(t *testing.T) {
	t.Parallel()
	concat := mustConcat(t, str1, str2)

	assert.Equal(t, []nodes.Expression{str1, str2}, Leaves(mustTuple(t, concat)))
	assert.Equal(t, []nodes.Expression{str1, str2, str3}, Leaves(mustTuple(t, concat, str3)))
	assert.Equal(t, 3, LeafCount(mustTuple(t, concat, str3)))
	assert.Equal(t, 1, LeafCount(str1))
}

func TestNestedProjectionReconstruct(t *testing.T) {
	t.Parallel()
	concat := mustConcat(t, str1, str2)

	tup := reconstructTuple(t, mustTuple(t, concat), "12", "34")
	v, ok := tup.GetExpr(concat)
	require.True(t, ok)
	assert.Equal(t, "1234", v)

	tup = reconstructTuple(t, mustTuple(t, str1, str2, concat), "1", "2", "12", "34")
	v, _ = tup.GetExpr(concat)
	assert.Equal(t, "1234", v)
	assert.Equal(t, "1", tup.Get(0))
}

func TestDuplicateLeavesAreIndependent(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1, str1)
	assert.Equal(t, 2, LeafCount(f))

	tup := reconstructTuple(t, f, "x", "y")
	assert.Equal(t, "x", tup.Get(0))
	assert.Equal(t, "y", tup.Get(1))
}

func TestSkipNulls(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1, str1)

	v, ok, err := Reconstruct(f, []any{nil, nil})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, v)

	v, ok, err = Reconstruct(f.SkipNulls(), []any{nil, nil})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	_, ok, err = Reconstruct(f.SkipNulls(), []any{nil, "x"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSkipNullsNested(t *testing.T) {
	t.Parallel()
	address := mustTuple(t, str3, str4).SkipNulls()
	f := mustTuple(t, str1, address)

	tup := reconstructTuple(t, f, "alice", nil, nil)
	assert.Equal(t, "alice", tup.Get(0))
	assert.Nil(t, tup.Get(1), "absent nested tuple instead of a tuple of nulls")

	tup = reconstructTuple(t, f, "bob", "street", nil)
	nested, ok := tup.Get(1).(*Tuple)
	require.True(t, ok)
	assert.Equal(t, []any{"street", nil}, nested.Values())
}

func TestConstructor(t *testing.T) {
	t.Parallel()
	type user struct {
		Name string
		Age  int64
	}
	f, err := Constructor("user", func(values []any) (user, error) {
		name, _ := values[0].(string)
		age, _ := values[1].(int64)
		return user{Name: name, Age: age}, nil
	}, str1, nodes.NumberVar("age"))
	require.NoError(t, err)

	v, ok, err := Reconstruct(f, []any{"ada", int64(36)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, user{Name: "ada", Age: 36}, v)

	_, err = Constructor[user]("user", nil, str1)
	var me *nodes.MalformedExpressionError
	assert.ErrorAs(t, err, &me)
}

func TestConstructorBuildError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	f, err := Constructor("broken", func([]any) (int, error) { return 0, boom }, str1)
	require.NoError(t, err)

	_, _, err = Reconstruct(f, []any{"x"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestReconstructRowSize(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1, mustConcat(t, str2, str3))
	_, _, err := Reconstruct(f, []any{"a", "b"})

	var rse *RowSizeError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, 3, rse.Want)
	assert.Equal(t, 2, rse.Got)
}

func TestReconstructAll(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1).SkipNulls()
	out, err := ReconstructAll(f, [][]any{{"a"}, {nil}, {"b"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1].(*Tuple).Get(0))

	_, err = ReconstructAll(f, [][]any{{"a"}, {"b", "c"}})
	assert.ErrorContains(t, err, "row 1")
}

func TestFlattenRoundTrip(t *testing.T) {
	t.Parallel()
	inner := mustTuple(t, str3, str4)
	f := mustTuple(t, str1, inner, str2)
	rows := [][]any{
		{"a", "b", "c", "d"},
		{nil, "b", nil, "d"},
		{"a", nil, nil, "d"},
	}
	for _, row := range rows {
		t.Run(fmt.Sprint(row), func(t *testing.T) {
			v, ok, err := Reconstruct(f, row)
			require.NoError(t, err)
			require.True(t, ok)
			flat, err := Flatten(f, v)
			require.NoError(t, err)
			assert.Equal(t, row, flat)
		})
	}
}

func TestFlattenRejectsNonTuples(t *testing.T) {
	t.Parallel()
	f := mustTuple(t, str1, mustConcat(t, str2, str3))
	v, _, err := Reconstruct(f, []any{"a", "b", "c"})
	require.NoError(t, err)

	_, err = Flatten(f, v)
	assert.ErrorIs(t, err, ErrNotFlattenable)

	_, err = Flatten(f, "not a tuple")
	assert.True(t, strings.Contains(err.Error(), "string"))
}
