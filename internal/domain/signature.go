package domain

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"reflect"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"nest.dev/pkg/nest/internal/adapter"
	m "nest.dev/pkg/nest/internal/model"
	"nest.dev/pkg/nest/internal/types"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ExtractDeclaration derives the declaration of a module function found in a
// source unit of namespace ns. Impl is left unset.
//
//nolint:cyclop,funlen // Directive handling is a flat sequence of checks.
func ExtractDeclaration(ns string, naming m.Naming, fn adapter.ModuleFunc) (m.Declaration, error) {
	decl := fn.Decl
	ident := fn.Name

	if ident == "" {
		ident = snakeCase(decl.Name.Name)
	}

	name := m.QualifiedName{Namespace: ns, Identifier: ident}
	label := naming.Format(name)

	invalid := func(format string, args ...any) error {
		return &InvalidSignature{Module: label, Reason: fmt.Sprintf(format, args...)}
	}

	if !decl.Name.IsExported() {
		return m.Declaration{}, invalid("function %s must be exported", decl.Name.Name)
	}

	if decl.Type.TypeParams != nil && len(decl.Type.TypeParams.List) > 0 {
		return m.Declaration{}, invalid("generic functions are not supported")
	}

	out := m.Declaration{
		Name: name,
		Func: decl.Name.Name,
		Doc:  fn.Doc,
	}

	overrides := map[string]string{}
	defaults := map[string]string{}

	for _, d := range fn.Directives {
		switch d.Key {
		case "author":
			out.Metadata.Author = d.Value
		case "version":
			out.Metadata.Version = d.Value
		case "requires":
			out.Metadata.Requirements = append(out.Metadata.Requirements, strings.Fields(d.Value)...)
		case "default", "type":
			param, value, ok := strings.Cut(d.Value, "=")
			param = strings.TrimSpace(param)

			if !ok || param == "" {
				return m.Declaration{}, invalid("line %d: //nest:%s expects <param>=<value>", d.Pos.Line, d.Key)
			}

			if d.Key == "default" {
				defaults[param] = value
			} else {
				overrides[param] = strings.TrimSpace(value)
			}
		default:
			return m.Declaration{}, invalid("line %d: unknown directive //nest:%s", d.Pos.Line, d.Key)
		}
	}

	fields := decl.Type.Params.List
	if len(fields) > 0 && isContextExpr(fields[0].Type) && len(fields[0].Names) <= 1 {
		out.Signature.TakesContext = true
		fields = fields[1:]
	}

	for _, field := range fields {
		if len(field.Names) == 0 {
			return m.Declaration{}, invalid("parameters must be named")
		}

		if _, ok := field.Type.(*ast.Ellipsis); ok {
			return m.Declaration{}, invalid("variadic parameter %s", field.Names[0].Name)
		}

		if field.Type == nil {
			return m.Declaration{}, &MissingTypeAnnotation{Module: label, Param: field.Names[0].Name}
		}

		declared, err := types.FromExpr(field.Type)
		if err != nil {
			return m.Declaration{}, invalid("parameter %s: %v", field.Names[0].Name, err)
		}

		for _, n := range field.Names {
			out.Signature.Params = append(out.Signature.Params, m.Param{Name: n.Name, Type: declared})
		}
	}

	result, err := types.ResultFromFields(decl.Type.Results)
	if err != nil {
		return m.Declaration{}, invalid("%v", err)
	}

	if result == nil {
		return m.Declaration{}, &MissingTypeAnnotation{Module: label, Param: returnParam}
	}

	out.Signature.Result = result

	if err := applyOverrides(&out.Signature, overrides, invalid); err != nil {
		return m.Declaration{}, err
	}

	if err := applyDefaults(&out.Signature, defaults, invalid); err != nil {
		return m.Declaration{}, err
	}

	return out, nil
}

func applyOverrides(sig *m.Signature, overrides map[string]string, invalid func(string, ...any) error) error {
	for param, expr := range overrides {
		t, err := types.Parse(expr)
		if err != nil {
			return invalid("//nest:type %s: %v", param, err)
		}

		if param == returnParam {
			if sig.Result.Kind() != types.KindAny {
				return invalid("//nest:type return applies only to an any result")
			}

			sig.Result = t

			continue
		}

		idx := paramIndex(*sig, param)
		if idx < 0 {
			return invalid("//nest:type names unknown parameter %s", param)
		}

		if sig.Params[idx].Type.Kind() != types.KindAny {
			return invalid("//nest:type %s applies only to an any parameter", param)
		}

		sig.Params[idx].Type = t
	}

	return nil
}

func applyDefaults(sig *m.Signature, defaults map[string]string, invalid func(string, ...any) error) error {
	for param, raw := range defaults {
		idx := paramIndex(*sig, param)
		if idx < 0 {
			return invalid("//nest:default names unknown parameter %s", param)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return invalid("default for %s: %v", param, err)
		}

		if err := types.Check(sig.Params[idx].Type, value); err != nil {
			return invalid("default for %s: %v", param, err)
		}

		sig.Params[idx].HasDefault = true
		sig.Params[idx].Default = value
	}

	return nil
}

func paramIndex(sig m.Signature, name string) int {
	for i, p := range sig.Params {
		if p.Name == name {
			return i
		}
	}

	return -1
}

func isContextExpr(e ast.Expr) bool {
	sel, ok := e.(*ast.SelectorExpr)
	if !ok {
		return false
	}

	pkg, ok := sel.X.(*ast.Ident)

	return ok && pkg.Name == "context" && sel.Sel.Name == "Context"
}

// snakeCase converts a Go identifier such as LoadCSV into load_csv.
func snakeCase(s string) string {
	runes := []rune(s)

	var b strings.Builder

	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// bindImpl attaches a Go func to a declaration after checking that its shape
// agrees with the extracted signature. Named descriptors of top-level
// parameters and of the result learn their concrete Go type from it.
func bindImpl(decl *m.Declaration, impl reflect.Value, naming m.Naming) error {
	label := naming.Format(decl.Name)

	if !impl.IsValid() || impl.Kind() != reflect.Func {
		return &InvalidSignature{Module: label, Reason: "implementation is not a function"}
	}

	ft := impl.Type()
	offset := 0

	if decl.Signature.TakesContext {
		offset = 1
	}

	if ft.IsVariadic() {
		return &InvalidSignature{Module: label, Reason: "variadic implementation"}
	}

	if ft.NumIn() != len(decl.Signature.Params)+offset {
		return &InvalidSignature{
			Module: label,
			Reason: fmt.Sprintf("implementation takes %d arguments, signature declares %d", ft.NumIn()-offset, len(decl.Signature.Params)),
		}
	}

	if offset == 1 && ft.In(0) != contextType {
		return &InvalidSignature{Module: label, Reason: "first argument must be context.Context"}
	}

	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return &InvalidSignature{Module: label, Reason: "results must be T or (T, error)"}
	}

	for i := range decl.Signature.Params {
		decl.Signature.Params[i].Type = resolveNamed(decl.Signature.Params[i].Type, ft.In(i+offset))
	}

	decl.Signature.Result = resolveNamed(decl.Signature.Result, ft.Out(0))
	decl.Impl = impl

	return nil
}

func resolveNamed(t types.Type, goType reflect.Type) types.Type {
	named, ok := t.(types.Named)
	if !ok || named.GoType != nil {
		return t
	}

	named.GoType = goType

	return named
}

// Spec declares a module implemented in Go and compiled into the binary.
type Spec struct {
	Name     string
	Doc      string
	Metadata m.Metadata
	Params   []ParamSpec
	// Result is the declared result type in the syntax accepted by types.Parse.
	Result string
	// Func is a Go func whose parameters follow Params, optionally preceded by
	// a context.Context.
	Func any
}

// ParamSpec declares one parameter of a Spec.
type ParamSpec struct {
	Name       string
	Type       string
	HasDefault bool
	Default    any
}

// Declaration converts the spec into a frozen declaration of namespace ns.
func (s Spec) Declaration(ns string, naming m.Naming) (m.Declaration, error) {
	name := m.QualifiedName{Namespace: ns, Identifier: s.Name}
	label := naming.Format(name)

	decl := m.Declaration{
		Name:     name,
		Func:     s.Name,
		Doc:      s.Doc,
		Metadata: s.Metadata,
		Source:   m.Source{Namespace: ns, Frozen: true},
	}

	for _, p := range s.Params {
		if strings.TrimSpace(p.Type) == "" {
			return m.Declaration{}, &MissingTypeAnnotation{Module: label, Param: p.Name}
		}

		t, err := types.Parse(p.Type)
		if err != nil {
			return m.Declaration{}, &InvalidSignature{Module: label, Reason: fmt.Sprintf("parameter %s: %v", p.Name, err)}
		}

		if p.HasDefault {
			if err := types.Check(t, p.Default); err != nil {
				return m.Declaration{}, &InvalidSignature{Module: label, Reason: fmt.Sprintf("default for %s: %v", p.Name, err)}
			}
		}

		decl.Signature.Params = append(decl.Signature.Params, m.Param{
			Name:       p.Name,
			Type:       t,
			HasDefault: p.HasDefault,
			Default:    p.Default,
		})
	}

	if strings.TrimSpace(s.Result) == "" {
		return m.Declaration{}, &MissingTypeAnnotation{Module: label, Param: returnParam}
	}

	result, err := types.Parse(s.Result)
	if err != nil {
		return m.Declaration{}, &InvalidSignature{Module: label, Reason: fmt.Sprintf("result: %v", err)}
	}

	decl.Signature.Result = result

	impl := reflect.ValueOf(s.Func)
	if impl.IsValid() && impl.Kind() == reflect.Func && impl.Type().NumIn() > 0 && impl.Type().In(0) == contextType {
		decl.Signature.TakesContext = true
	}

	if err := bindImpl(&decl, impl, naming); err != nil {
		return m.Declaration{}, err
	}

	return decl, nil
}

// Unit is a source unit with its extracted declarations.
type Unit struct {
	Source m.Source
	Decls  []m.Declaration
}

// UnitLoader turns source units into declarations.
type UnitLoader interface {
	// LoadUnit extracts and interprets a source unit.
	LoadUnit(ctx context.Context, source m.Source) (*Unit, error)
	// CheckUnit extracts a source unit without interpreting it.
	CheckUnit(ctx context.Context, source m.Source) (*Unit, error)
}

type unitLoader struct {
	adapter.SourceFSAdapter
	adapter.GoFileAdapter
	adapter.InterpreterAdapter

	naming m.Naming
}

// NewUnitLoader constructs a UnitLoader from its adapters.
func NewUnitLoader(
	fsAdapter adapter.SourceFSAdapter,
	goFileAdapter adapter.GoFileAdapter,
	interpreter adapter.InterpreterAdapter,
	naming m.Naming,
) UnitLoader {
	return &unitLoader{
		SourceFSAdapter:    fsAdapter,
		GoFileAdapter:      goFileAdapter,
		InterpreterAdapter: interpreter,
		naming:             naming,
	}
}

func (l *unitLoader) CheckUnit(ctx context.Context, source m.Source) (*Unit, error) {
	unit, _, _, err := l.extract(ctx, source)

	return unit, err
}

func (l *unitLoader) LoadUnit(ctx context.Context, source m.Source) (*Unit, error) {
	unit, pkg, data, err := l.extract(ctx, source)
	if err != nil {
		return nil, err
	}

	if len(unit.Decls) == 0 {
		return unit, nil
	}

	names := make([]string, 0, len(unit.Decls))
	for _, d := range unit.Decls {
		names = append(names, d.Func)
	}

	impls, err := l.Load(ctx, source.Path, pkg, data, names)
	if err != nil {
		return nil, err
	}

	for i := range unit.Decls {
		if err := bindImpl(&unit.Decls[i], impls[unit.Decls[i].Func], l.naming); err != nil {
			return nil, err
		}
	}

	return unit, nil
}

func (l *unitLoader) extract(ctx context.Context, source m.Source) (*Unit, string, []byte, error) {
	info, err := l.FileInfo(source.Path)
	if err != nil {
		return nil, "", nil, err
	}

	data, err := l.ReadFile(source.Path)
	if err != nil {
		return nil, "", nil, err
	}

	hash, err := l.HashFile(source.Path)
	if err != nil {
		return nil, "", nil, err
	}

	source.ModTime = info.ModTime()
	source.Hash = hash

	fset := token.NewFileSet()

	file, err := l.Parse(ctx, fset, string(source.Path), data)
	if err != nil {
		return nil, "", nil, fmt.Errorf("parse %s: %w", source.Path, err)
	}

	unit := &Unit{Source: source}
	seen := map[m.QualifiedName]bool{}

	var errs []error

	for _, fn := range l.ModuleFuncs(fset, file) {
		decl, err := ExtractDeclaration(source.Namespace, l.naming, fn)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if seen[decl.Name] {
			errs = append(errs, &DuplicateIdentifier{
				Name:     l.naming.Format(decl.Name),
				Existing: source.Path,
				Incoming: source.Path,
				Reason:   "declared twice in " + string(source.Path),
			})

			continue
		}

		seen[decl.Name] = true
		decl.Source = source
		unit.Decls = append(unit.Decls, decl)
	}

	if len(errs) > 0 {
		return nil, "", nil, errors.Join(errs...)
	}

	return unit, file.Name.Name, data, nil
}
