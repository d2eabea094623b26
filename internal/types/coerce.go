package types

import (
	"fmt"
	"math"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// Coerce converts a value that already passed Check into the concrete Go type
// expected by an implementation. Composite values decoded from documents
// ([]any, map[string]any) are rebuilt by mapstructure; callables are adapted
// with MakeFunc.
func Coerce(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		return v, nil
	}

	switch {
	case target.Kind() == reflect.Pointer:
		inner, err := Coerce(value, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}

		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(inner)

		return ptr, nil

	case target.Kind() == reflect.Func:
		if c, ok := value.(Callable); ok {
			return c.MakeFunc(target)
		}

	case sameNumericFamily(v.Kind(), target.Kind()) && v.CanConvert(target):
		if overflows(v, target) {
			return reflect.Value{}, fmt.Errorf("%v out of range for %s", value, target)
		}

		return v.Convert(target), nil
	}

	out := reflect.New(target)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out.Interface(),
		TagName:    "nest",
		DecodeHook: callableHook,
	})
	if err != nil {
		return reflect.Value{}, fmt.Errorf("coerce to %s: %w", target, err)
	}

	if err := decoder.Decode(value); err != nil {
		return reflect.Value{}, fmt.Errorf("coerce %s to %s: %w", Describe(value), target, err)
	}

	return out.Elem(), nil
}

// callableHook turns callables nested inside composite values into funcs of
// the destination type.
func callableHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Func {
		return data, nil
	}

	c, ok := data.(Callable)
	if !ok {
		return data, nil
	}

	fn, err := c.MakeFunc(to)
	if err != nil {
		return nil, err
	}

	return fn.Interface(), nil
}

func sameNumericFamily(a, b reflect.Kind) bool {
	return (isIntKind(a) && isIntKind(b)) || (isFloatKind(a) && isFloatKind(b))
}

// overflows reports whether converting v to target would change its value.
func overflows(v reflect.Value, target reflect.Type) bool {
	zero := reflect.Zero(target)
	unsigned := zero.CanUint()

	switch {
	case v.CanInt() && unsigned:
		return v.Int() < 0 || zero.OverflowUint(uint64(v.Int()))
	case v.CanInt():
		return zero.OverflowInt(v.Int())
	case v.CanUint() && unsigned:
		return zero.OverflowUint(v.Uint())
	case v.CanUint():
		return v.Uint() > math.MaxInt64 || zero.OverflowInt(int64(v.Uint()))
	case v.CanFloat():
		return zero.OverflowFloat(v.Float())
	}

	return false
}
