// Package types defines the declared-type descriptors attached to module
// parameters and results.
//
// A descriptor is a small sum type (primitive, sequence-of, mapping, tuple,
// union, named structure, callable). Values produced at runtime are checked
// against a descriptor with structural predicates over reflect.Value rather
// than by comparing Go types, so a []any decoded from a configuration document
// satisfies a declared []int when every element is an integer.
package types

import (
	"reflect"
	"strings"
)

// Kind enumerates the descriptor variants.
type Kind int

// Descriptor kinds.
const (
	KindAny Kind = iota
	KindNone
	KindInt
	KindFloat
	KindString
	KindBool
	KindSequence
	KindMapping
	KindTuple
	KindUnion
	KindNamed
	KindFunc
)

// Type is a declared type descriptor.
type Type interface {
	Kind() Kind
	String() string

	match(v reflect.Value, path string) *Mismatch
}

// Callable is implemented by values that stand in for functions, such as a
// partially applied module. A declared func type accepts a Callable whose
// arity equals the number of declared parameters.
type Callable interface {
	// Arity reports how many arguments the callable still needs.
	Arity() int
	// MakeFunc adapts the callable to a concrete Go func type.
	MakeFunc(t reflect.Type) (reflect.Value, error)
}

type anyType struct{}

func (anyType) Kind() Kind     { return KindAny }
func (anyType) String() string { return "any" }

type noneType struct{}

func (noneType) Kind() Kind     { return KindNone }
func (noneType) String() string { return "none" }

// Primitive is one of the scalar descriptors.
type Primitive struct {
	kind Kind
}

// Kind implements Type.
func (p Primitive) Kind() Kind { return p.kind }

func (p Primitive) String() string {
	switch p.kind {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Predefined descriptors.
var (
	Any    Type = anyType{}
	None   Type = noneType{}
	Int    Type = Primitive{kind: KindInt}
	Float  Type = Primitive{kind: KindFloat}
	String Type = Primitive{kind: KindString}
	Bool   Type = Primitive{kind: KindBool}
)

// Sequence describes an ordered sequence whose elements satisfy Elem.
type Sequence struct {
	Elem Type
}

// Kind implements Type.
func (s Sequence) Kind() Kind { return KindSequence }

func (s Sequence) String() string { return "[]" + operand(s.Elem) }

// Mapping describes a map with keys satisfying Key and values satisfying Elem.
type Mapping struct {
	Key  Type
	Elem Type
}

// Kind implements Type.
func (m Mapping) Kind() Kind { return KindMapping }

func (m Mapping) String() string { return "map[" + m.Key.String() + "]" + operand(m.Elem) }

// Tuple describes a fixed-length sequence with a descriptor per position.
type Tuple struct {
	Elems []Type
}

// Kind implements Type.
func (t Tuple) Kind() Kind { return KindTuple }

func (t Tuple) String() string { return "tuple[" + joinTypes(t.Elems, ", ") + "]" }

// Union accepts any value satisfying at least one member.
type Union struct {
	Members []Type
}

// Kind implements Type.
func (u Union) Kind() Kind { return KindUnion }

func (u Union) String() string { return joinTypes(u.Members, " | ") }

// Named describes a named structure. When GoType is known the check is Go
// assignability, otherwise the runtime type name is compared with Name.
type Named struct {
	Name   string
	GoType reflect.Type
}

// Kind implements Type.
func (n Named) Kind() Kind { return KindNamed }

func (n Named) String() string { return n.Name }

// Func describes a callable taking Params and producing Result.
type Func struct {
	Params []Type
	Result Type
}

// Kind implements Type.
func (f Func) Kind() Kind { return KindFunc }

func (f Func) String() string {
	s := "func(" + joinTypes(f.Params, ", ") + ")"
	if f.Result != nil && f.Result.Kind() != KindNone {
		s += " " + operand(f.Result)
	}

	return s
}

// SequenceOf returns a Sequence descriptor.
func SequenceOf(elem Type) Type { return Sequence{Elem: elem} }

// MappingOf returns a Mapping descriptor.
func MappingOf(key, elem Type) Type { return Mapping{Key: key, Elem: elem} }

// TupleOf returns a Tuple descriptor.
func TupleOf(elems ...Type) Type { return Tuple{Elems: elems} }

// NamedType returns a Named descriptor without a resolved Go type.
func NamedType(name string) Type { return Named{Name: name} }

// FuncOf returns a Func descriptor.
func FuncOf(result Type, params ...Type) Type {
	if result == nil {
		result = None
	}

	return Func{Params: params, Result: result}
}

// Optional returns a union of t and none.
func Optional(t Type) Type { return UnionOf(t, None) }

// UnionOf flattens nested unions and drops duplicate members. A union with a
// single distinct member collapses to that member; any member absorbs the rest.
func UnionOf(members ...Type) Type {
	seen := make(map[string]struct{}, len(members))
	flat := make([]Type, 0, len(members))

	var add func(t Type)
	add = func(t Type) {
		if u, ok := t.(Union); ok {
			for _, m := range u.Members {
				add(m)
			}

			return
		}

		key := t.String()
		if _, ok := seen[key]; ok {
			return
		}

		seen[key] = struct{}{}
		flat = append(flat, t)
	}

	for _, m := range members {
		add(m)
	}

	for _, m := range flat {
		if m.Kind() == KindAny {
			return Any
		}
	}

	if len(flat) == 1 {
		return flat[0]
	}

	return Union{Members: flat}
}

// Equal reports whether two descriptors are structurally identical.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a.String() == b.String()
}

// operand parenthesizes unions used inside a composite descriptor.
func operand(t Type) string {
	if t.Kind() == KindUnion {
		return "(" + t.String() + ")"
	}

	return t.String()
}

func joinTypes(ts []Type, sep string) string {
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		parts = append(parts, t.String())
	}

	return strings.Join(parts, sep)
}
