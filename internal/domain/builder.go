package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	m "nest.dev/pkg/nest/internal/model"
)

// Reserved mapping keys.
const (
	NameKey    = "_name"
	VarKey     = "_var"
	PartialKey = "_partial"
)

// DefaultVariablePrefix marks a string scalar as a variable reference.
const DefaultVariablePrefix = "@"

// Resolver finds modules by name.
type Resolver interface {
	Get(ctx context.Context, name string) (*Module, error)
}

// BuilderOptions tunes document resolution.
type BuilderOptions struct {
	// Strict turns missing required arguments into errors instead of
	// partials.
	Strict         bool
	VariablePrefix string
	LookupEnv      func(string) (string, bool)
}

// Builder resolves document trees into values by invoking modules.
type Builder struct {
	resolver Resolver
	opts     BuilderOptions
	vars     map[string]any
}

// NewBuilder returns a builder seeded with global variables.
func NewBuilder(resolver Resolver, opts BuilderOptions, vars map[string]any) *Builder {
	if opts.VariablePrefix == "" {
		opts.VariablePrefix = DefaultVariablePrefix
	}

	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	global := make(map[string]any, len(vars))
	for k, v := range vars {
		global[k] = v
	}

	return &Builder{resolver: resolver, opts: opts, vars: global}
}

// Vars returns a copy of the global variables, including _var additions.
func (b *Builder) Vars() map[string]any {
	out := make(map[string]any, len(b.vars))
	for k, v := range b.vars {
		out[k] = v
	}

	return out
}

// Build resolves node depth-first. Children are built before the module
// that consumes them. Any failure is a *ResolutionError naming the node.
func (b *Builder) Build(ctx context.Context, node m.Node) (any, error) {
	return b.build(ctx, node, []string{"root"})
}

func (b *Builder) build(ctx context.Context, node m.Node, path []string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, b.wrap(path, node, err)
	}

	switch n := node.(type) {
	case nil:
		return nil, nil
	case *m.Scalar:
		return b.scalar(n, path)
	case *m.Sequence:
		out := make([]any, 0, len(n.Items))

		for i, item := range n.Items {
			v, err := b.build(ctx, item, child(path, fmt.Sprintf("[%d]", i)))
			if err != nil {
				return nil, err
			}

			out = append(out, v)
		}

		return out, nil
	case *m.Mapping:
		return b.mapping(ctx, n, path)
	default:
		return nil, b.wrap(path, node, fmt.Errorf("unsupported node %T", node))
	}
}

func (b *Builder) scalar(n *m.Scalar, path []string) (any, error) {
	s, ok := n.Value.(string)
	if !ok || !strings.HasPrefix(s, b.opts.VariablePrefix) {
		return n.Value, nil
	}

	name := strings.TrimPrefix(s, b.opts.VariablePrefix)

	// A doubled prefix escapes a literal.
	if strings.HasPrefix(name, b.opts.VariablePrefix) {
		return name, nil
	}

	if v, ok := b.vars[name]; ok {
		return v, nil
	}

	if v, ok := b.opts.LookupEnv(name); ok {
		return v, nil
	}

	return nil, b.wrap(path, n, &VariableNotFound{Name: name})
}

func (b *Builder) mapping(ctx context.Context, n *m.Mapping, path []string) (any, error) {
	if varNode, ok := n.Get(VarKey); ok {
		if err := b.defineVars(ctx, varNode, child(path, VarKey)); err != nil {
			return nil, err
		}
	}

	nameNode, isModule := n.Get(NameKey)

	if _, ok := n.Get(PartialKey); ok && !isModule {
		return nil, b.wrap(path, n, fmt.Errorf("%s requires %s", PartialKey, NameKey))
	}

	values := make(map[string]any, len(n.Pairs))

	for _, pair := range n.Pairs {
		if isReserved(pair.Key) {
			continue
		}

		v, err := b.build(ctx, pair.Value, child(path, pair.Key))
		if err != nil {
			return nil, err
		}

		values[pair.Key] = v
	}

	if !isModule {
		return values, nil
	}

	return b.invoke(ctx, n, nameNode, values, path)
}

func (b *Builder) defineVars(ctx context.Context, node m.Node, path []string) error {
	vars, ok := node.(*m.Mapping)
	if !ok {
		return b.wrap(path, node, fmt.Errorf("%s must be a mapping", VarKey))
	}

	// Later entries may reference earlier ones.
	for _, pair := range vars.Pairs {
		v, err := b.build(ctx, pair.Value, child(path, pair.Key))
		if err != nil {
			return err
		}

		b.vars[pair.Key] = v
	}

	return nil
}

func (b *Builder) invoke(ctx context.Context, n *m.Mapping, nameNode m.Node, kwargs map[string]any, path []string) (any, error) {
	nameValue, err := b.build(ctx, nameNode, child(path, NameKey))
	if err != nil {
		return nil, err
	}

	name, ok := nameValue.(string)
	if !ok || name == "" {
		return nil, b.wrap(path, nameNode, fmt.Errorf("%s must be a non-empty string", NameKey))
	}

	partial := false

	if partialNode, ok := n.Get(PartialKey); ok {
		v, err := b.build(ctx, partialNode, child(path, PartialKey))
		if err != nil {
			return nil, err
		}

		if partial, ok = v.(bool); !ok {
			return nil, b.wrap(path, partialNode, fmt.Errorf("%s must be a boolean", PartialKey))
		}
	}

	mod, err := b.resolver.Get(ctx, name)
	if err != nil {
		return nil, b.wrap(path, n, err)
	}

	if partial {
		p, err := NewPartial(mod, kwargs)
		if err != nil {
			return nil, b.wrap(path, n, err)
		}

		return p, nil
	}

	result, err := mod.Call(ctx, Args{Keyword: kwargs})
	if err != nil {
		var missing *MissingRequiredArgument
		if !b.opts.Strict && errors.As(err, &missing) {
			slog.Debug("deferring module with missing arguments", "module", mod.String(), "missing", missing.Params)

			p, perr := NewPartial(mod, kwargs)
			if perr == nil {
				return p, nil
			}
		}

		return nil, b.wrap(path, n, err)
	}

	slog.Debug("module resolved", "module", mod.String(), "path", strings.Join(path, pathSeparator))

	return result, nil
}

// wrap annotates err with the failing node unless a deeper node already did.
func (b *Builder) wrap(path []string, node m.Node, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return err
	}

	var pos m.Position
	if node != nil {
		pos = node.Pos()
	}

	return &ResolutionError{Path: path, Position: pos, Err: err}
}

// RequireResolved fails when a partial is left anywhere in value.
func RequireResolved(value any) error {
	return requireResolved(value, []string{"root"})
}

func requireResolved(value any, path []string) error {
	switch v := value.(type) {
	case *Partial:
		return &UnresolvedModule{Path: strings.Join(path, pathSeparator), Module: v.module.String()}
	case []any:
		for i, item := range v {
			if err := requireResolved(item, child(path, fmt.Sprintf("[%d]", i))); err != nil {
				return err
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			if err := requireResolved(v[k], child(path, k)); err != nil {
				return err
			}
		}
	}

	return nil
}

func isReserved(key string) bool {
	return key == NameKey || key == VarKey || key == PartialKey
}

func child(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)

	return append(out, elem)
}
