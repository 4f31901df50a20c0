package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", Null, false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero int", Int(0), false},
		{"nonzero int", Int(1), true},
		{"zero float", Float(0), false},
		{"empty string", String(""), false},
		{"nonempty string", String("x"), true},
		{"empty list", List(nil), false},
		{"nonempty list", List([]Value{Int(1)}), true},
		{"empty dict", Dict(), false},
		{"nonempty dict", Dict(DictPair{Key: "a", Value: Int(1)}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Truthy())
		})
	}
}

func TestEqualCrossesNumericKinds(t *testing.T) {
	assert.True(t, Equal(Int(1), Float(1.0)))
	assert.True(t, Equal(Bool(true), Int(1)))
	assert.True(t, Equal(Bool(false), Float(0)))
	assert.False(t, Equal(Int(1), String("1")))
	assert.False(t, Equal(Int(2), Int(3)))
}

func TestEqualListsAndDictsAreStructural(t *testing.T) {
	a := List([]Value{Int(1), String("x")})
	b := List([]Value{Int(1), String("x")})
	c := List([]Value{Int(1), String("y")})
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))

	d1 := Dict(DictPair{Key: "k", Value: Int(1)})
	d2 := Dict(DictPair{Key: "k", Value: Int(1)})
	d3 := Dict(DictPair{Key: "k", Value: Int(2)})
	assert.True(t, Equal(d1, d2))
	assert.False(t, Equal(d1, d3))
}

func TestCompareNumericAndString(t *testing.T) {
	c, err := Compare(Int(1), Int(2))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(String("a"), String("b"))
	require.NoError(t, err)
	assert.Negative(t, c)

	_, err = Compare(List(nil), Int(1))
	assert.Error(t, err)
}

func TestDictGetSetPreservesInsertionOrder(t *testing.T) {
	d := Dict(DictPair{Key: "b", Value: Int(2)}, DictPair{Key: "a", Value: Int(1)})
	assert.Equal(t, []string{"b", "a"}, d.DictKeys())

	v, ok := d.DictGet("a")
	require.True(t, ok)
	i, _ := v.AsInt()
	assert.Equal(t, int64(1), i)

	_, ok = d.DictGet("missing")
	assert.False(t, ok)
}

func TestWithDictSetReturnsNewValueWithoutMutatingOriginal(t *testing.T) {
	d := Dict(DictPair{Key: "a", Value: Int(1)})
	d2 := d.WithDictSet("b", Int(2))

	assert.Equal(t, 1, d.DictLen())
	assert.Equal(t, 2, d2.DictLen())

	_, ok := d.DictGet("b")
	assert.False(t, ok)
	_, ok = d2.DictGet("b")
	assert.True(t, ok)
}

func TestReprMatchesPythonConventions(t *testing.T) {
	assert.Equal(t, "None", Null.Repr())
	assert.Equal(t, "True", Bool(true).Repr())
	assert.Equal(t, "False", Bool(false).Repr())
	assert.Equal(t, `"hi"`, String("hi").Repr())
	assert.Equal(t, "[1, 2]", List([]Value{Int(1), Int(2)}).Repr())
	assert.Equal(t, "(1,)", Tuple([]Value{Int(1)}).Repr())
}

func TestStrRendersWithoutQuoting(t *testing.T) {
	assert.Equal(t, "hi", String("hi").Str())
	assert.Equal(t, "True", Bool(true).Str())
	assert.Equal(t, "3", Int(3).Str())
}

func TestLen(t *testing.T) {
	n, err := String("hello").Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = List([]Value{Int(1), Int(2)}).Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Int(1).Len()
	assert.Error(t, err)
}

func TestAsConversionsRejectMismatchedKind(t *testing.T) {
	_, ok := String("x").AsInt()
	assert.False(t, ok)
	_, ok = Int(1).AsString()
	assert.False(t, ok)

	f, ok := Int(3).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)
}
