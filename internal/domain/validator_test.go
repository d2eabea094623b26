package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_Call(t *testing.T) {
	r := newMathRegistry(t, RegistryOptions{})
	ctx := context.Background()

	tests := []struct {
		name   string
		module string
		args   Args
		want   any
	}{
		{"keyword", "add", kw("a", 2, "b", 3), 5},
		{"positional", "add", Args{Positional: []any{2, 3}}, 5},
		{"mixed", "add", Args{Positional: []any{2}, Keyword: map[string]any{"b": 5}}, 7},
		{"default", "add", kw("a", 2), 3},
		{"int64 accepted as int", "add", kw("a", int64(2)), 3},
		{"decoded sequence coerced", "join", kw("items", []any{"a", "b"}), "a,b"},
		{"float", "scale", kw("x", 1.5, "factor", 2.0), 3.0},
		{"any passes through", "echo", kw("value", map[string]any{"k": 1}), map[string]any{"k": 1}},
		{"tuple result", "pair", kw("x", 1, "y", "a"), []any{1, "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := r.Get(ctx, tt.module)
			require.NoError(t, err)

			got, err := mod.Call(ctx, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModule_Call_PassesContext(t *testing.T) {
	r := newMathRegistry(t, RegistryOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mod, err := r.Get(ctx, "deadline")
	require.NoError(t, err)

	got, err := mod.Call(ctx, kw("n", 1))
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestValidate_Order(t *testing.T) {
	r := newMathRegistry(t, RegistryOptions{})
	ctx := context.Background()

	add, err := r.Get(ctx, "add")
	require.NoError(t, err)

	t.Run("unexpected arguments come first and are complete", func(t *testing.T) {
		// "a" is supplied twice, "zzz" is unknown and the third positional
		// value has no parameter. "b" would also fail its type check.
		_, err := Validate(add, Args{
			Positional: []any{1, "x", 3},
			Keyword:    map[string]any{"a": 2, "zzz": 1},
		})

		var unexpected *UnexpectedArguments
		require.True(t, errors.As(err, &unexpected), "got %v", err)
		assert.Equal(t, []string{"#2", "a", "zzz"}, unexpected.Names)
	})

	t.Run("missing before mismatch", func(t *testing.T) {
		join, err := r.Get(ctx, "join")
		require.NoError(t, err)

		_, err = Validate(join, kw("sep", 1))

		var missing *MissingRequiredArgument
		require.True(t, errors.As(err, &missing), "got %v", err)
		assert.Equal(t, []string{"items"}, missing.Params)
	})

	t.Run("first mismatch in declaration order", func(t *testing.T) {
		_, err := Validate(add, kw("b", "y", "a", "x"))

		var mismatch *TypeMismatch
		require.True(t, errors.As(err, &mismatch), "got %v", err)
		assert.Equal(t, "a", mismatch.Param)
		assert.Equal(t, "int", mismatch.Declared.String())
		assert.Equal(t, "string", mismatch.Actual)
		assert.False(t, mismatch.Return)
	})

	t.Run("nested mismatch carries a path", func(t *testing.T) {
		join, err := r.Get(ctx, "join")
		require.NoError(t, err)

		_, err = Validate(join, kw("items", []any{"a", 2}))

		var mismatch *TypeMismatch
		require.True(t, errors.As(err, &mismatch), "got %v", err)
		assert.Equal(t, "items", mismatch.Param)
		assert.Equal(t, "[1]", mismatch.Path)
	})

	t.Run("float is not an int", func(t *testing.T) {
		_, err := Validate(add, kw("a", 1.0))

		var mismatch *TypeMismatch
		assert.True(t, errors.As(err, &mismatch), "got %v", err)
	})

	t.Run("int is not a float", func(t *testing.T) {
		scale, err := r.Get(ctx, "scale")
		require.NoError(t, err)

		_, err = Validate(scale, kw("x", 1, "factor", 2.0))

		var mismatch *TypeMismatch
		assert.True(t, errors.As(err, &mismatch), "got %v", err)
	})
}

func TestModule_Call_Failures(t *testing.T) {
	r := newMathRegistry(t, RegistryOptions{})
	ctx := context.Background()

	t.Run("returned error", func(t *testing.T) {
		mod, err := r.Get(ctx, "fail")
		require.NoError(t, err)

		_, err = mod.Call(ctx, Args{})

		var invocation *InvocationError
		require.True(t, errors.As(err, &invocation), "got %v", err)
		assert.EqualError(t, invocation.Err, "boom")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		mod, err := r.Get(ctx, "explode")
		require.NoError(t, err)

		_, err = mod.Call(ctx, Args{})

		var invocation *InvocationError
		require.True(t, errors.As(err, &invocation), "got %v", err)
		assert.Equal(t, "kaboom", invocation.Panic)
	})

	t.Run("return value checked after the call", func(t *testing.T) {
		mod, err := r.Get(ctx, "liar")
		require.NoError(t, err)

		_, err = mod.Call(ctx, Args{})

		var mismatch *TypeMismatch
		require.True(t, errors.As(err, &mismatch), "got %v", err)
		assert.True(t, mismatch.Return)
		assert.Contains(t, err.Error(), "checked after the call completed")
	})

	narrow := []Spec{
		{
			Name:   "small",
			Params: []ParamSpec{{Name: "x", Type: "int8"}},
			Result: "int8",
			Func:   func(x int8) int8 { return x },
		},
		{
			Name:   "count",
			Params: []ParamSpec{{Name: "n", Type: "uint"}},
			Result: "uint",
			Func:   func(n uint) uint { return n },
		},
	}
	require.NoError(t, r.RegisterFrozen(ctx, "narrow", narrow))

	rangeTests := []struct {
		name   string
		module string
		args   map[string]any
		param  string
	}{
		{"int8 overflow", "narrow.small", map[string]any{"x": 300}, "x"},
		{"negative unsigned", "narrow.count", map[string]any{"n": -1}, "n"},
	}

	for _, tt := range rangeTests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := r.Get(ctx, tt.module)
			require.NoError(t, err)

			_, err = mod.Call(ctx, Args{Keyword: tt.args})

			var mismatch *TypeMismatch
			require.True(t, errors.As(err, &mismatch), "got %v", err)
			assert.Equal(t, tt.param, mismatch.Param)
			assert.False(t, mismatch.Return)
		})
	}

	t.Run("in range", func(t *testing.T) {
		mod, err := r.Get(ctx, "narrow.small")
		require.NoError(t, err)

		got, err := mod.Call(ctx, Args{Keyword: map[string]any{"x": -128}})
		require.NoError(t, err)
		assert.Equal(t, int8(-128), got)
	})
}
