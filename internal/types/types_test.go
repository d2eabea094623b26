package types

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int
	Y int
}

type fakeCallable struct {
	arity int
}

func (f fakeCallable) Arity() int { return f.arity }

func (f fakeCallable) MakeFunc(t reflect.Type) (reflect.Value, error) {
	return reflect.MakeFunc(t, func(_ []reflect.Value) []reflect.Value {
		out := make([]reflect.Value, t.NumOut())
		for i := range out {
			out[i] = reflect.Zero(t.Out(i))
		}

		return out
	}), nil
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		typ   Type
		value any
		ok    bool
	}{
		{"any accepts nil", Any, nil, true},
		{"any accepts struct", Any, point{}, true},
		{"int accepts int", Int, 3, true},
		{"int accepts int64", Int, int64(3), true},
		{"int accepts uint8", Int, uint8(3), true},
		{"int rejects float", Int, 3.0, false},
		{"int rejects string", Int, "3", false},
		{"int rejects bool", Int, true, false},
		{"int rejects nil", Int, nil, false},
		{"float accepts float64", Float, 1.5, true},
		{"float rejects int", Float, 1, false},
		{"string accepts string", String, "x", true},
		{"bool accepts bool", Bool, false, true},
		{"none accepts nil", None, nil, true},
		{"none accepts nil map", None, map[string]any(nil), true},
		{"none rejects zero int", None, 0, false},
		{"sequence accepts []any of ints", SequenceOf(Int), []any{1, 2, 3}, true},
		{"sequence accepts typed slice", SequenceOf(Int), []int{1, 2}, true},
		{"sequence accepts array", SequenceOf(String), [2]string{"a", "b"}, true},
		{"sequence rejects mixed", SequenceOf(Int), []any{1, "two"}, false},
		{"sequence rejects string", SequenceOf(Int), "abc", false},
		{"sequence accepts empty", SequenceOf(Int), []any{}, true},
		{"mapping accepts", MappingOf(String, Float), map[string]any{"a": 1.0}, true},
		{"mapping rejects value", MappingOf(String, Float), map[string]any{"a": 1}, false},
		{"mapping rejects key", MappingOf(Int, Any), map[string]any{"a": 1}, false},
		{"tuple accepts", TupleOf(String, Int), []any{"a", 1}, true},
		{"tuple rejects length", TupleOf(String, Int), []any{"a"}, false},
		{"tuple rejects position", TupleOf(String, Int), []any{1, "a"}, false},
		{"union accepts member", UnionOf(Int, String), "x", true},
		{"union rejects non-member", UnionOf(Int, String), 1.5, false},
		{"optional accepts nil", Optional(Int), nil, true},
		{"optional accepts pointer", Optional(Int), func() *int { v := 1; return &v }(), true},
		{"optional accepts value", Optional(Int), 4, true},
		{"named by go type", Named{Name: "point", GoType: reflect.TypeOf(point{})}, point{}, true},
		{"named by go type pointer", Named{Name: "point", GoType: reflect.TypeOf(point{})}, &point{}, true},
		{"named by go type rejects map", Named{Name: "point", GoType: reflect.TypeOf(point{})}, map[string]any{}, false},
		{"named by name", NamedType("point"), point{}, true},
		{"named by qualified name", NamedType("types.point"), point{}, true},
		{"named rejects other", NamedType("Pipeline"), point{}, false},
		{"func accepts go func", FuncOf(Int, String), func(string) int { return 0 }, true},
		{"func rejects arity", FuncOf(Int, String), func() int { return 0 }, false},
		{"func accepts callable", FuncOf(None, Any), fakeCallable{arity: 1}, true},
		{"func rejects callable arity", FuncOf(None, Any), fakeCallable{arity: 2}, false},
		{"func rejects value", FuncOf(None), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.typ, tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.Equal(t, tt.ok, Matches(tt.typ, tt.value))
		})
	}
}

func TestCheck_MismatchPath(t *testing.T) {
	typ := MappingOf(String, SequenceOf(Int))
	err := Check(typ, map[string]any{"ok": []any{1}, "bad": []any{1, 2, "x"}})
	require.Error(t, err)

	var mm *Mismatch
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, `["bad"][2]`, mm.Path)
	assert.Equal(t, "int", mm.Declared.String())
	assert.Equal(t, "string", mm.Actual)
	assert.Contains(t, err.Error(), "expected int, got string")
}

func TestString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Int, "int"},
		{Float, "float"},
		{SequenceOf(String), "[]string"},
		{MappingOf(String, Any), "map[string]any"},
		{Optional(Int), "int | none"},
		{SequenceOf(UnionOf(Int, String)), "[](int | string)"},
		{TupleOf(String, Float), "tuple[string, float]"},
		{FuncOf(None, MappingOf(String, Any)), "func(map[string]any)"},
		{FuncOf(Bool, Int, Int), "func(int, int) bool"},
		{NamedType("time.Duration"), "time.Duration"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())

			parsed, err := Parse(tt.want)
			require.NoError(t, err)
			assert.True(t, Equal(tt.typ, parsed), "round trip of %s gave %s", tt.want, parsed)
		})
	}
}

func TestUnionOf(t *testing.T) {
	assert.Equal(t, Int, UnionOf(Int, Int))
	assert.Equal(t, Any, UnionOf(Int, Any))
	assert.Equal(t, "int | string | none", UnionOf(UnionOf(Int, String), None, Int).String())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "none", Describe(nil))
	assert.Equal(t, "[]any", Describe([]any{}))
	assert.Equal(t, "map[string]any", Describe(map[string]any{}))
	assert.Equal(t, "callable/2", Describe(fakeCallable{arity: 2}))
}
