// Package builtin holds the modules compiled into the nest binary.
package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"nest.dev/pkg/nest/internal/domain"
	m "nest.dev/pkg/nest/internal/model"
)

// Namespace is where the standard bundle is registered.
const Namespace = "std"

// Specs returns the standard bundle. print writes to out.
func Specs(out io.Writer) []domain.Spec {
	if out == nil {
		out = os.Stdout
	}

	meta := m.Metadata{Author: "nest", Version: "1.0.0"}

	return []domain.Spec{
		{
			Name:     "print",
			Doc:      "Print writes value on its own line and passes it through.",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "value", Type: "any"}},
			Result:   "any",
			Func: func(value any) any {
				fmt.Fprintln(out, value)
				return value
			},
		},
		{
			Name:     "identity",
			Doc:      "Identity returns value unchanged.",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "value", Type: "any"}},
			Result:   "any",
			Func:     func(value any) any { return value },
		},
		{
			Name:     "env",
			Doc:      "Env reads an environment variable, falling back to fallback when unset.",
			Metadata: meta,
			Params: []domain.ParamSpec{
				{Name: "name", Type: "string"},
				{Name: "fallback", Type: "string", HasDefault: true, Default: ""},
			},
			Result: "string",
			Func: func(name, fallback string) string {
				if v, ok := os.LookupEnv(name); ok {
					return v
				}

				return fallback
			},
		},
		{
			Name:     "join",
			Metadata: meta,
			Params: []domain.ParamSpec{
				{Name: "items", Type: "[]string"},
				{Name: "sep", Type: "string", HasDefault: true, Default: ""},
			},
			Result: "string",
			Func:   func(items []string, sep string) string { return strings.Join(items, sep) },
		},
		{
			Name:     "sum",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "values", Type: "[]int"}},
			Result:   "int",
			Func: func(values []int) int {
				total := 0
				for _, v := range values {
					total += v
				}

				return total
			},
		},
		{
			Name:     "range",
			Doc:      "Range lists the integers from start up to, not including, stop.",
			Metadata: meta,
			Params: []domain.ParamSpec{
				{Name: "stop", Type: "int"},
				{Name: "start", Type: "int", HasDefault: true, Default: 0},
				{Name: "step", Type: "int", HasDefault: true, Default: 1},
			},
			Result: "[]int",
			Func:   intRange,
		},
		{
			Name:     "merge",
			Doc:      "Merge combines mappings; later keys win.",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "mappings", Type: "[]map[string]any"}},
			Result:   "map[string]any",
			Func: func(mappings []map[string]any) map[string]any {
				out := map[string]any{}
				for _, mapping := range mappings {
					for k, v := range mapping {
						out[k] = v
					}
				}

				return out
			},
		},
		{
			Name:     "keys",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "mapping", Type: "map[string]any"}},
			Result:   "[]string",
			Func: func(mapping map[string]any) []string {
				keys := make([]string, 0, len(mapping))
				for k := range mapping {
					keys = append(keys, k)
				}

				sort.Strings(keys)

				return keys
			},
		},
		{
			Name:     "invoke",
			Doc:      "Invoke calls a fully bound partial module.",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "fn", Type: "func() any"}},
			Result:   "any",
			Func:     func(fn func() (any, error)) (any, error) { return fn() },
		},
		{
			Name:     "sleep",
			Doc:      "Sleep pauses for the given number of seconds unless the run is cancelled.",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "seconds", Type: "float"}},
			Result:   "bool",
			Func:     sleep,
		},
		{
			Name:     "now",
			Metadata: meta,
			Params:   []domain.ParamSpec{{Name: "layout", Type: "string", HasDefault: true, Default: time.RFC3339}},
			Result:   "string",
			Func:     func(layout string) string { return time.Now().Format(layout) },
		},
	}
}

func intRange(stop, start, step int) ([]int, error) {
	if step == 0 {
		return nil, fmt.Errorf("range step must not be zero")
	}

	out := []int{}

	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}

	return out, nil
}

func sleep(ctx context.Context, seconds float64) (bool, error) {
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}
