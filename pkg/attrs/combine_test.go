package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkovacs/molnet/pkg/direction"
)

func TestCombineAbsent(t *testing.T) {
	v, err := Combine(None, NumberOf(3))
	require.NoError(t, err)
	assert.True(t, Equal(NumberOf(3), v))

	v, err = Combine(TextOf("x"), None)
	require.NoError(t, err)
	assert.True(t, Equal(TextOf("x"), v))

	v, err = Combine(None, None)
	require.NoError(t, err)
	assert.True(t, v.IsAbsent())
}

func TestCombineNumbersTakesMax(t *testing.T) {
	v, err := Combine(NumberOf(5), NumberOf(3))
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Num())

	v, err = Combine(NumberOf(3), NumberOf(5))
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Num())
}

func TestCombineCollectionsUnion(t *testing.T) {
	v, err := Combine(CollectionOf(TextOf("a")), CollectionOf(TextOf("b"), TextOf("a")))
	require.NoError(t, err)
	require.Equal(t, Collection, v.Kind())
	assert.Len(t, v.Elems(), 2)
	assert.True(t, Equal(CollectionOf(TextOf("a"), TextOf("b")), v))
}

func TestCombineMappingsIncomingWins(t *testing.T) {
	a := MappingOf(map[string]Value{"x": NumberOf(1), "y": TextOf("old")})
	b := MappingOf(map[string]Value{"y": TextOf("new"), "z": NumberOf(2)})

	v, err := Combine(a, b)
	require.NoError(t, err)
	require.Equal(t, Mapping, v.Kind())
	assert.True(t, Equal(NumberOf(1), v.Map()["x"]))
	assert.True(t, Equal(TextOf("new"), v.Map()["y"]))
	assert.True(t, Equal(NumberOf(2), v.Map()["z"]))
}

func TestCombineText(t *testing.T) {
	// Empty text loses.
	v, err := Combine(TextOf(""), TextOf("x"))
	require.NoError(t, err)
	assert.True(t, Equal(TextOf("x"), v))

	v, err = Combine(TextOf("x"), TextOf(""))
	require.NoError(t, err)
	assert.True(t, Equal(TextOf("x"), v))

	// Conflicting non-empty text keeps both.
	v, err = Combine(TextOf("kinase"), TextOf("phosphatase"))
	require.NoError(t, err)
	assert.True(t, Equal(CollectionOf(TextOf("kinase"), TextOf("phosphatase")), v))
}

func TestCombineScalarIntoCollection(t *testing.T) {
	v, err := Combine(CollectionOf(TextOf("a")), TextOf("b"))
	require.NoError(t, err)
	assert.True(t, Equal(CollectionOf(TextOf("a"), TextOf("b")), v))

	// Order swapped.
	v, err = Combine(NumberOf(7), CollectionOf(NumberOf(1)))
	require.NoError(t, err)
	assert.True(t, Equal(CollectionOf(NumberOf(1), NumberOf(7)), v))

	// Empty scalar is dropped.
	v, err = Combine(CollectionOf(TextOf("a")), TextOf(""))
	require.NoError(t, err)
	assert.True(t, Equal(CollectionOf(TextOf("a")), v))

	// Already present scalar does not duplicate.
	v, err = Combine(CollectionOf(TextOf("a")), TextOf("a"))
	require.NoError(t, err)
	assert.True(t, Equal(CollectionOf(TextOf("a")), v))
}

func TestCombineLedgers(t *testing.T) {
	d1 := direction.New("A", "B")
	require.NoError(t, d1.SetDir(direction.Key{From: "A", To: "B"}, "S1"))
	d2 := direction.New("A", "B")
	require.NoError(t, d2.SetDir(direction.Undirected, "S2"))

	v, err := Combine(LedgerOf(d1), LedgerOf(d2))
	require.NoError(t, err)
	require.Equal(t, Ledger, v.Kind())
	assert.True(t, v.Dirs().Dir(direction.Key{From: "A", To: "B"}))
	assert.True(t, v.Dirs().Dir(direction.Undirected))

	// Inputs remain untouched.
	assert.False(t, d1.Dir(direction.Undirected))
	assert.False(t, d2.Dir(direction.Key{From: "A", To: "B"}))
}

func TestCombineLedgerPairMismatch(t *testing.T) {
	d1 := direction.New("A", "B")
	d2 := direction.New("A", "C")
	require.NoError(t, d2.SetDir(direction.Undirected, "S"))

	v, err := Combine(LedgerOf(d1), LedgerOf(d2))
	assert.ErrorIs(t, err, ErrIncompatible)
	// Existing side is preserved on failure.
	assert.Equal(t, Ledger, v.Kind())
	assert.False(t, v.Dirs().Dir(direction.Undirected))
}

func TestCombineIncompatibleKinds(t *testing.T) {
	d := direction.New("A", "B")

	_, err := Combine(NumberOf(1), LedgerOf(d))
	assert.ErrorIs(t, err, ErrIncompatible)

	v, err := Combine(MappingOf(map[string]Value{"k": NumberOf(1)}), TextOf("x"))
	assert.ErrorIs(t, err, ErrIncompatible)
	assert.Equal(t, Mapping, v.Kind(), "existing value is kept")
}

func TestCombineIdempotent(t *testing.T) {
	d := direction.New("A", "B")
	require.NoError(t, d.SetSign(direction.Key{From: "A", To: "B"}, direction.Positive, "S1"))

	values := []Value{
		None,
		NumberOf(3.5),
		TextOf("hello"),
		TextOf(""),
		CollectionOf(TextOf("a"), NumberOf(2)),
		MappingOf(map[string]Value{"k": TextOf("v")}),
		LedgerOf(d),
	}
	for _, v := range values {
		got, err := Combine(v, v)
		require.NoError(t, err)
		assert.True(t, Equal(v, got), "combine(x, x) must be x for %s", v)
	}
}

func TestCombineOrderInsensitiveForCommutativeKinds(t *testing.T) {
	// Numeric fold: max of any permutation.
	perms := [][]Value{
		{NumberOf(1), NumberOf(9), NumberOf(4)},
		{NumberOf(9), NumberOf(4), NumberOf(1)},
		{NumberOf(4), NumberOf(1), NumberOf(9)},
	}
	for _, p := range perms {
		v, err := Fold(p...)
		require.NoError(t, err)
		assert.Equal(t, 9.0, v.Num())
	}

	// Collection fold: same element set regardless of order.
	a := CollectionOf(TextOf("x"))
	b := CollectionOf(TextOf("y"))
	c := CollectionOf(TextOf("x"), TextOf("z"))

	v1, err := Fold(a, b, c)
	require.NoError(t, err)
	v2, err := Fold(c, a, b)
	require.NoError(t, err)
	assert.ElementsMatch(t, v1.Elems(), v2.Elems())
	assert.Len(t, v1.Elems(), 3)
}

func TestFromAnyToAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
	}{
		{"float", 3.14, Number},
		{"int", 42, Number},
		{"string", "abc", Text},
		{"string slice", []string{"a", "b"}, Collection},
		{"any slice", []any{"a", 1.0}, Collection},
		{"map", map[string]any{"k": "v"}, Mapping},
		{"nil", nil, Absent},
		{"ledger", direction.New("A", "B"), Ledger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := FromAny(tt.in)
			assert.Equal(t, tt.kind, v.Kind())
			round := FromAny(v.ToAny())
			assert.True(t, Equal(v, round), "ToAny/FromAny round trip")
		})
	}
}

func TestZero(t *testing.T) {
	assert.Equal(t, 0.0, Zero(Number).Num())
	assert.Equal(t, "", Zero(Text).Str())
	assert.Equal(t, Collection, Zero(Collection).Kind())
	assert.Empty(t, Zero(Collection).Elems())
	assert.True(t, Zero(Ledger).IsAbsent())
}
