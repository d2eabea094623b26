package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	m "nest.dev/pkg/nest/internal/model"
)

// InterpreterAdapter evaluates a source unit and hands back its functions as
// callable Go values.
type InterpreterAdapter interface {
	// Load evaluates src, which declares package pkg, and returns the named
	// top-level functions.
	Load(ctx context.Context, path m.Path, pkg string, src []byte, funcs []string) (map[string]reflect.Value, error)
}

// YaegiInterpreter runs every source unit in its own yaegi interpreter, so a
// reload never sees stale declarations from the previous version.
type YaegiInterpreter struct {
	stdout io.Writer
	stderr io.Writer
}

// NewYaegiInterpreter constructs a YaegiInterpreter. Nil writers default to
// the process stdout and stderr.
func NewYaegiInterpreter(stdout, stderr io.Writer) *YaegiInterpreter {
	if stdout == nil {
		stdout = os.Stdout
	}

	if stderr == nil {
		stderr = os.Stderr
	}

	return &YaegiInterpreter{stdout: stdout, stderr: stderr}
}

// Load implements InterpreterAdapter.
func (y *YaegiInterpreter) Load(ctx context.Context, path m.Path, pkg string, src []byte, funcs []string) (map[string]reflect.Value, error) {
	i := interp.New(interp.Options{Stdout: y.stdout, Stderr: y.stderr})

	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, string(src)); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", path, err)
	}

	out := make(map[string]reflect.Value, len(funcs))

	for _, name := range funcs {
		v, err := i.Eval(pkg + "." + name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s in %s: %w", name, path, err)
		}

		if v.Kind() != reflect.Func {
			return nil, fmt.Errorf("%s in %s is not a function", name, path)
		}

		out[name] = v
	}

	return out, nil
}
