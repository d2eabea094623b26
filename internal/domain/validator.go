package domain

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	m "nest.dev/pkg/nest/internal/model"
	"nest.dev/pkg/nest/internal/types"
)

// Args are the arguments of one call.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Bound maps parameter names to their values after binding.
type Bound map[string]any

// Validate binds args to the parameters of mod, fills defaults and checks
// every value against its declared type.
func Validate(mod *Module, args Args) (Bound, error) {
	return bindArgs(mod.String(), mod.signature, args, true)
}

// bindArgs reports, in order, unexpected arguments, missing required
// parameters and the first type mismatch. With complete unset, missing
// parameters are left unbound.
func bindArgs(label string, sig m.Signature, args Args, complete bool) (Bound, error) {
	bound := make(Bound, len(sig.Params))

	var unexpected []string

	for i, v := range args.Positional {
		if i >= len(sig.Params) {
			unexpected = append(unexpected, fmt.Sprintf("#%d", i))
			continue
		}

		bound[sig.Params[i].Name] = v
	}

	for k, v := range args.Keyword {
		if _, ok := sig.Param(k); !ok {
			unexpected = append(unexpected, k)
			continue
		}

		if _, dup := bound[k]; dup {
			unexpected = append(unexpected, k)
			continue
		}

		bound[k] = v
	}

	if len(unexpected) > 0 {
		sort.Strings(unexpected)

		return nil, &UnexpectedArguments{Module: label, Names: unexpected}
	}

	if complete {
		var missing []string

		for _, p := range sig.Params {
			if _, ok := bound[p.Name]; ok {
				continue
			}

			if p.HasDefault {
				bound[p.Name] = p.Default
				continue
			}

			missing = append(missing, p.Name)
		}

		if len(missing) > 0 {
			return nil, &MissingRequiredArgument{Module: label, Params: missing}
		}
	}

	for _, p := range sig.Params {
		v, ok := bound[p.Name]
		if !ok {
			continue
		}

		if err := types.Check(p.Type, v); err != nil {
			return nil, mismatch(label, p.Name, p.Type, v, err, false)
		}
	}

	return bound, nil
}

func mismatch(label, param string, declared types.Type, value any, err error, ret bool) error {
	out := &TypeMismatch{
		Module:   label,
		Param:    param,
		Declared: declared,
		Actual:   types.Describe(value),
		Return:   ret,
	}

	var mm *types.Mismatch
	if errors.As(err, &mm) && mm.Path != "" {
		out.Declared = mm.Declared
		out.Actual = mm.Actual
		out.Path = mm.Path
	}

	return out
}

// invoke calls the implementation with bound arguments converted to its Go
// parameter types. Panics and returned errors become *InvocationError.
func (mod *Module) invoke(ctx context.Context, bound Bound) (result any, err error) {
	label := mod.String()
	sig := mod.signature
	impl := mod.impl

	if !impl.IsValid() {
		return nil, &InvocationError{Module: label, Err: errors.New("no implementation bound")}
	}

	ft := impl.Type()
	in := make([]reflect.Value, 0, ft.NumIn())

	if sig.TakesContext {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}

	for _, p := range sig.Params {
		v, err := types.Coerce(bound[p.Name], ft.In(len(in)))
		if err != nil {
			return nil, mismatch(label, p.Name, p.Type, bound[p.Name], err, false)
		}

		in = append(in, v)
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &InvocationError{Module: label, Panic: rec}
		}
	}()

	out := impl.Call(in)

	if len(out) == 2 && !out[1].IsNil() {
		callErr, _ := out[1].Interface().(error)

		return nil, &InvocationError{Module: label, Err: callErr}
	}

	result = out[0].Interface()

	if err := types.Check(sig.Result, result); err != nil {
		return nil, mismatch(label, returnParam, sig.Result, result, err, true)
	}

	return result, nil
}
