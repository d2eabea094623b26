package types

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Mismatch describes why a value does not satisfy a descriptor. Path locates
// the offending element inside a composite value ("" for the value itself).
type Mismatch struct {
	Path     string
	Declared Type
	Actual   string
}

func (m *Mismatch) Error() string {
	msg := fmt.Sprintf("expected %s, got %s", m.Declared, m.Actual)
	if m.Path != "" {
		msg += " at " + m.Path
	}

	return msg
}

// Check reports whether value satisfies t. The returned error is a *Mismatch.
func Check(t Type, value any) error {
	if mm := t.match(reflect.ValueOf(value), ""); mm != nil {
		return mm
	}

	return nil
}

// Matches is Check without the explanation.
func Matches(t Type, value any) bool {
	return Check(t, value) == nil
}

// Describe renders the runtime type of value for error messages.
func Describe(value any) string {
	return describe(reflect.ValueOf(value))
}

func describe(v reflect.Value) string {
	v, isNil := unwrapInterface(v)
	if isNil {
		return "none"
	}

	if c, ok := asCallable(v); ok {
		return fmt.Sprintf("callable/%d", c.Arity())
	}

	return strings.ReplaceAll(v.Type().String(), "interface {}", "any")
}

func mismatch(t Type, v reflect.Value, path string) *Mismatch {
	return &Mismatch{Path: path, Declared: t, Actual: describe(v)}
}

// unwrapInterface strips interface wrappers; the bool reports a nil value.
func unwrapInterface(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, true
		}

		v = v.Elem()
	}

	return v, !v.IsValid()
}

// indirect strips interfaces and pointers; the bool reports a nil value.
func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}, true
		}

		v = v.Elem()
	}

	return v, !v.IsValid()
}

func asCallable(v reflect.Value) (Callable, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return nil, false
	}

	c, ok := v.Interface().(Callable)

	return c, ok
}

func isNil(v reflect.Value) bool {
	v, null := unwrapInterface(v)
	if null {
		return true
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func (anyType) match(reflect.Value, string) *Mismatch { return nil }

func (t noneType) match(v reflect.Value, path string) *Mismatch {
	if isNil(v) {
		return nil
	}

	return mismatch(t, v, path)
}

func (p Primitive) match(v reflect.Value, path string) *Mismatch {
	rv, null := indirect(v)
	if null {
		return mismatch(p, v, path)
	}

	var ok bool

	switch p.kind {
	case KindInt:
		ok = isIntKind(rv.Kind())
	case KindFloat:
		ok = isFloatKind(rv.Kind())
	case KindString:
		ok = rv.Kind() == reflect.String
	case KindBool:
		ok = rv.Kind() == reflect.Bool
	}

	if ok {
		return nil
	}

	return mismatch(p, v, path)
}

func (s Sequence) match(v reflect.Value, path string) *Mismatch {
	rv, null := indirect(v)
	if null || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return mismatch(s, v, path)
	}

	for i := 0; i < rv.Len(); i++ {
		if mm := s.Elem.match(rv.Index(i), fmt.Sprintf("%s[%d]", path, i)); mm != nil {
			return mm
		}
	}

	return nil
}

func (m Mapping) match(v reflect.Value, path string) *Mismatch {
	rv, null := indirect(v)
	if null || rv.Kind() != reflect.Map {
		return mismatch(m, v, path)
	}

	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})

	for _, key := range keys {
		label := fmt.Sprint(key.Interface())
		if mm := m.Key.match(key, fmt.Sprintf("%s{%s}", path, label)); mm != nil {
			return mm
		}

		if mm := m.Elem.match(rv.MapIndex(key), fmt.Sprintf("%s[%q]", path, label)); mm != nil {
			return mm
		}
	}

	return nil
}

func (t Tuple) match(v reflect.Value, path string) *Mismatch {
	rv, null := indirect(v)
	if null || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return mismatch(t, v, path)
	}

	if rv.Len() != len(t.Elems) {
		return &Mismatch{
			Path:     path,
			Declared: t,
			Actual:   fmt.Sprintf("%s of length %d", describe(v), rv.Len()),
		}
	}

	for i, elem := range t.Elems {
		if mm := elem.match(rv.Index(i), fmt.Sprintf("%s[%d]", path, i)); mm != nil {
			return mm
		}
	}

	return nil
}

func (u Union) match(v reflect.Value, path string) *Mismatch {
	for _, member := range u.Members {
		if member.match(v, path) == nil {
			return nil
		}
	}

	return mismatch(u, v, path)
}

func (n Named) match(v reflect.Value, path string) *Mismatch {
	rv, null := unwrapInterface(v)
	if null {
		return mismatch(n, v, path)
	}

	if n.GoType != nil {
		if rv.Type().AssignableTo(n.GoType) {
			return nil
		}

		if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type().AssignableTo(n.GoType) {
			return nil
		}

		return mismatch(n, v, path)
	}

	for {
		t := rv.Type()
		if t.String() == n.Name || (t.Name() != "" && t.Name() == n.Name) {
			return nil
		}

		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			break
		}

		rv = rv.Elem()
	}

	return mismatch(n, v, path)
}

func (f Func) match(v reflect.Value, path string) *Mismatch {
	rv, null := unwrapInterface(v)
	if null {
		return mismatch(f, v, path)
	}

	if c, ok := asCallable(rv); ok {
		if c.Arity() == len(f.Params) {
			return nil
		}

		return mismatch(f, v, path)
	}

	if rv.Kind() != reflect.Func {
		return mismatch(f, v, path)
	}

	ft := rv.Type()
	if ft.NumIn() == len(f.Params) || (ft.IsVariadic() && ft.NumIn()-1 <= len(f.Params)) {
		return nil
	}

	return mismatch(f, v, path)
}
