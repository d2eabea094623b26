package domain

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nest.dev/pkg/nest/internal/adapter"
	m "nest.dev/pkg/nest/internal/model"
)

func newTestRegistry(t *testing.T, namespaces []m.Namespace, opts RegistryOptions) *Registry {
	t.Helper()

	fs := adapter.NewLocalSourceFSAdapter()
	loader := NewUnitLoader(fs, adapter.NewLocalGoFileAdapter(), adapter.NewYaegiInterpreter(io.Discard, io.Discard), opts.Naming)

	return NewRegistry(StaticSearchPaths(namespaces), loader, fs, adapter.NewYAMLMetadataStore(), opts)
}

// newMathRegistry returns a registry holding the frozen "math" bundle.
func newMathRegistry(t *testing.T, opts RegistryOptions) *Registry {
	t.Helper()

	r := newTestRegistry(t, nil, opts)
	require.NoError(t, r.RegisterFrozen(context.Background(), "math", mathSpecs()))

	return r
}

func mathSpecs() []Spec {
	return []Spec{
		{
			Name:   "add",
			Doc:    "Add returns a + b.",
			Params: []ParamSpec{{Name: "a", Type: "int"}, {Name: "b", Type: "int", HasDefault: true, Default: 1}},
			Result: "int",
			Func:   func(a, b int) int { return a + b },
		},
		{
			Name:   "join",
			Params: []ParamSpec{{Name: "items", Type: "[]string"}, {Name: "sep", Type: "string", HasDefault: true, Default: ","}},
			Result: "string",
			Func:   func(items []string, sep string) string { return strings.Join(items, sep) },
		},
		{
			Name:   "scale",
			Params: []ParamSpec{{Name: "x", Type: "float"}, {Name: "factor", Type: "float"}},
			Result: "float",
			Func:   func(x, factor float64) float64 { return x * factor },
		},
		{
			Name:   "fail",
			Result: "int",
			Func:   func() (int, error) { return 0, errors.New("boom") },
		},
		{
			Name:   "explode",
			Result: "int",
			Func:   func() int { panic("kaboom") },
		},
		{
			Name:   "liar",
			Result: "int",
			Func:   func() any { return "nope" },
		},
		{
			Name:   "apply",
			Params: []ParamSpec{{Name: "fn", Type: "func(int) int"}, {Name: "x", Type: "int"}},
			Result: "int",
			Func:   func(fn func(int) int, x int) int { return fn(x) },
		},
		{
			Name:   "echo",
			Params: []ParamSpec{{Name: "value", Type: "any"}},
			Result: "any",
			Func:   func(v any) any { return v },
		},
		{
			Name:   "pair",
			Params: []ParamSpec{{Name: "x", Type: "int"}, {Name: "y", Type: "string"}},
			Result: "tuple[int, string]",
			Func:   func(x int, y string) []any { return []any{x, y} },
		},
		{
			Name:   "deadline",
			Params: []ParamSpec{{Name: "n", Type: "int"}},
			Result: "bool",
			Func: func(ctx context.Context, n int) bool {
				_, ok := ctx.Deadline()
				return ok && n > 0
			},
		},
	}
}

func writeUnit(t *testing.T, dir, name, src string) m.Path {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	return m.Path(path)
}

// rewriteUnit replaces the content of path and moves its modification time
// forward, so the change is visible even on coarse-grained filesystems.
func rewriteUnit(t *testing.T, path m.Path, src string) {
	t.Helper()

	info, err := os.Stat(string(path))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(string(path), []byte(src), 0o644))

	next := info.ModTime().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(string(path), next, next))
}

func kw(pairs ...any) Args {
	out := Args{Keyword: map[string]any{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		out.Keyword[pairs[i].(string)] = pairs[i+1]
	}

	return out
}
