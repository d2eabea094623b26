package types

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	gotypes "go/types"
)

// UnsupportedError reports a type expression that has no descriptor.
type UnsupportedError struct {
	Expr   string
	Reason string
}

func (e *UnsupportedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unsupported type expression %q", e.Expr)
	}

	return fmt.Sprintf("unsupported type expression %q: %s", e.Expr, e.Reason)
}

// Parse reads a descriptor written in Go type syntax, extended with unions
// (`int | string`), `none`, and the generic-looking forms `tuple[A, B]`,
// `optional[T]` and `union[A, B]`.
func Parse(expr string) (Type, error) {
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, fmt.Errorf("parse type %q: %w", expr, err)
	}

	return FromExpr(e)
}

// MustParse is Parse for descriptors known at compile time.
func MustParse(expr string) Type {
	t, err := Parse(expr)
	if err != nil {
		panic(err)
	}

	return t
}

// FromExpr converts a Go type expression taken from a parsed source file.
//
//nolint:cyclop // One case per AST node kind.
func FromExpr(e ast.Expr) (Type, error) {
	switch x := e.(type) {
	case *ast.Ident:
		return fromIdent(x.Name), nil

	case *ast.ParenExpr:
		return FromExpr(x.X)

	case *ast.StarExpr:
		elem, err := FromExpr(x.X)
		if err != nil {
			return nil, err
		}

		return Optional(elem), nil

	case *ast.ArrayType:
		if _, ok := x.Elt.(*ast.Ellipsis); ok {
			return nil, unsupported(e, "variadic element")
		}

		elem, err := FromExpr(x.Elt)
		if err != nil {
			return nil, err
		}

		return SequenceOf(elem), nil

	case *ast.MapType:
		key, err := FromExpr(x.Key)
		if err != nil {
			return nil, err
		}

		val, err := FromExpr(x.Value)
		if err != nil {
			return nil, err
		}

		return MappingOf(key, val), nil

	case *ast.BinaryExpr:
		if x.Op != token.OR {
			return nil, unsupported(e, "only | combines types")
		}

		left, err := FromExpr(x.X)
		if err != nil {
			return nil, err
		}

		right, err := FromExpr(x.Y)
		if err != nil {
			return nil, err
		}

		return UnionOf(left, right), nil

	case *ast.SelectorExpr:
		return NamedType(gotypes.ExprString(x)), nil

	case *ast.InterfaceType:
		if x.Methods == nil || len(x.Methods.List) == 0 {
			return Any, nil
		}

		return nil, unsupported(e, "interfaces with methods")

	case *ast.FuncType:
		return fromFuncType(x)

	case *ast.IndexExpr:
		return fromGeneric(e, x.X, []ast.Expr{x.Index})

	case *ast.IndexListExpr:
		return fromGeneric(e, x.X, x.Indices)

	default:
		return nil, unsupported(e, "")
	}
}

func fromIdent(name string) Type {
	switch name {
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr", "byte", "rune":
		return Int
	case "float", "float32", "float64":
		return Float
	case "string":
		return String
	case "bool":
		return Bool
	case "any":
		return Any
	case "none", "nil":
		return None
	default:
		return NamedType(name)
	}
}

func fromFuncType(ft *ast.FuncType) (Type, error) {
	var params []Type

	if ft.Params != nil {
		for _, field := range ft.Params.List {
			if _, ok := field.Type.(*ast.Ellipsis); ok {
				return nil, unsupported(ft, "variadic parameter")
			}

			t, err := FromExpr(field.Type)
			if err != nil {
				return nil, err
			}

			n := len(field.Names)
			if n == 0 {
				n = 1
			}

			for i := 0; i < n; i++ {
				params = append(params, t)
			}
		}
	}

	result, err := ResultFromFields(ft.Results)
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = None
	}

	return FuncOf(result, params...), nil
}

// ResultFromFields converts a result list of the form `T` or `(T, error)`.
// It returns nil when the list is empty.
func ResultFromFields(results *ast.FieldList) (Type, error) {
	if results == nil || len(results.List) == 0 {
		return nil, nil
	}

	var exprs []ast.Expr

	for _, field := range results.List {
		n := len(field.Names)
		if n == 0 {
			n = 1
		}

		for i := 0; i < n; i++ {
			exprs = append(exprs, field.Type)
		}
	}

	switch {
	case len(exprs) == 1:
		return FromExpr(exprs[0])
	case len(exprs) == 2 && IsErrorExpr(exprs[1]):
		return FromExpr(exprs[0])
	default:
		return nil, unsupported(results.List[0].Type, "results must be T or (T, error)")
	}
}

// IsErrorExpr reports whether e is the predeclared error type.
func IsErrorExpr(e ast.Expr) bool {
	ident, ok := e.(*ast.Ident)

	return ok && ident.Name == "error"
}

func fromGeneric(whole, head ast.Expr, args []ast.Expr) (Type, error) {
	ident, ok := head.(*ast.Ident)
	if !ok {
		return nil, unsupported(whole, "")
	}

	elems := make([]Type, 0, len(args))

	for _, arg := range args {
		t, err := FromExpr(arg)
		if err != nil {
			return nil, err
		}

		elems = append(elems, t)
	}

	switch ident.Name {
	case "tuple":
		return TupleOf(elems...), nil
	case "union":
		return UnionOf(elems...), nil
	case "optional":
		if len(elems) != 1 {
			return nil, unsupported(whole, "optional takes one type")
		}

		return Optional(elems[0]), nil
	default:
		return nil, unsupported(whole, "generic types")
	}
}

func unsupported(e ast.Node, reason string) error {
	expr, _ := e.(ast.Expr)
	s := "?"

	if expr != nil {
		s = gotypes.ExprString(expr)
	}

	return &UnsupportedError{Expr: s, Reason: reason}
}
