package domain

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	m "nest.dev/pkg/nest/internal/model"
	"nest.dev/pkg/nest/internal/types"
)

// Partial is a module with some arguments bound. It satisfies declared func
// parameters whose arity matches the number of still-required parameters.
type Partial struct {
	module *Module
	bound  Bound
}

var _ types.Callable = (*Partial)(nil)

// NewPartial binds kwargs to mod without invoking it. Supplied values are
// checked now; missing ones are left for the final call.
func NewPartial(mod *Module, kwargs map[string]any) (*Partial, error) {
	bound, err := bindArgs(mod.String(), mod.signature, Args{Keyword: kwargs}, false)
	if err != nil {
		return nil, err
	}

	return &Partial{module: mod, bound: bound}, nil
}

// Module returns the wrapped record.
func (p *Partial) Module() *Module { return p.module }

// Bound returns a copy of the bound arguments.
func (p *Partial) Bound() Bound {
	out := make(Bound, len(p.bound))
	for k, v := range p.bound {
		out[k] = v
	}

	return out
}

func (p *Partial) String() string {
	keys := make([]string, 0, len(p.bound))
	for k := range p.bound {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return fmt.Sprintf("partial(%s; %s)", p.module.String(), strings.Join(keys, ", "))
}

// remaining lists the unbound parameters in declaration order.
func (p *Partial) remaining() []m.Param {
	var out []m.Param

	for _, param := range p.module.signature.Params {
		if _, ok := p.bound[param.Name]; !ok {
			out = append(out, param)
		}
	}

	return out
}

// Arity counts the unbound parameters without a default.
func (p *Partial) Arity() int {
	n := 0

	for _, param := range p.remaining() {
		if !param.HasDefault {
			n++
		}
	}

	return n
}

// Call completes the bound arguments with args and calls the module.
// Positional values fill unbound parameters in order; keywords may replace
// bound values.
func (p *Partial) Call(ctx context.Context, args Args) (any, error) {
	kwargs := map[string]any(p.Bound())
	rest := p.remaining()

	var extra []any

	for i, v := range args.Positional {
		if i < len(rest) {
			kwargs[rest[i].Name] = v
			continue
		}

		extra = append(extra, v)
	}

	for k, v := range args.Keyword {
		kwargs[k] = v
	}

	if len(extra) > 0 {
		names := make([]string, 0, len(extra))
		for i := range extra {
			names = append(names, fmt.Sprintf("#%d", len(rest)+i))
		}

		return nil, &UnexpectedArguments{Module: p.module.String(), Names: names}
	}

	return p.module.Call(ctx, Args{Keyword: kwargs})
}

// MakeFunc adapts the partial to the func type t. Calls made through the
// returned func run without a deadline; failures surface through an error
// result when t has one and are logged otherwise.
func (p *Partial) MakeFunc(t reflect.Type) (reflect.Value, error) {
	if t.Kind() != reflect.Func || t.IsVariadic() {
		return reflect.Value{}, fmt.Errorf("cannot adapt %s to %s", p, t)
	}

	if t.NumIn() > len(p.remaining()) {
		return reflect.Value{}, fmt.Errorf("%s accepts %d arguments, %s passes %d", p, len(p.remaining()), t, t.NumIn())
	}

	errIdx := -1

	switch {
	case t.NumOut() == 0:
	case t.NumOut() == 1 && t.Out(0) == errorType:
		errIdx = 0
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == errorType:
		errIdx = 1
	default:
		return reflect.Value{}, fmt.Errorf("cannot adapt %s to %s: results must be T, error or (T, error)", p, t)
	}

	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		args := make([]any, len(in))
		for i, v := range in {
			args[i] = v.Interface()
		}

		result, err := p.Call(context.Background(), Args{Positional: args})

		out := make([]reflect.Value, t.NumOut())
		for i := range out {
			out[i] = reflect.Zero(t.Out(i))
		}

		if err == nil && t.NumOut() > 0 && errIdx != 0 {
			v, cerr := types.Coerce(result, t.Out(0))
			if cerr == nil {
				out[0] = v
			}

			err = cerr
		}

		if err != nil {
			if errIdx < 0 {
				slog.Error("partial call failed", "module", p.module.String(), "error", err)
				return out
			}

			out[errIdx] = reflect.ValueOf(&err).Elem()
		}

		return out
	}), nil
}
