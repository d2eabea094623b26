package controller

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "nest.dev/pkg/nest/internal/model"
	"nest.dev/pkg/nest/internal/types"
)

func newBufferedUI() (*SimpleUI, *bytes.Buffer) {
	var buf bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	return NewSimpleUI(cmd), &buf
}

func sampleModules() []m.ModuleInfo {
	return []m.ModuleInfo{
		{
			Name:     "vision.scale",
			Metadata: m.Metadata{Author: "ana", Version: "1.0.0"},
			Signature: m.Signature{
				Params: []m.Param{{Name: "x", Type: types.Int}},
				Result: types.Int,
			},
			Path: "/ns/vision/image.go",
		},
		{
			Name:      "std.print",
			Signature: m.Signature{Result: types.None},
			Frozen:    true,
		},
		{
			Name:      "audio.gain",
			Signature: m.Signature{Result: types.Float},
			Path:      "/ns/audio/audio.go",
			Broken:    "syntax error",
		},
	}
}

func TestSimpleUI_DisplayModules(t *testing.T) {
	ui, buf := newBufferedUI()

	require.NoError(t, ui.DisplayModules(context.Background(), sampleModules()))

	got := buf.String()
	for _, want := range []string{
		"vision.scale", "(x int) int", "1.0.0", "ana", "/ns/vision/image.go",
		"(built in)", "broken: /ns/audio/audio.go",
	} {
		assert.Contains(t, got, want)
	}

	// Footers are upper-cased by the table renderer.
	assert.Contains(t, strings.ToLower(got), "3 module(s), 1 broken")
}

func TestSimpleUI_DisplayModules_CanceledContext(t *testing.T) {
	ui, buf := newBufferedUI()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, ui.DisplayModules(ctx, sampleModules()), context.Canceled)
	assert.Empty(t, buf.String())
}

func TestSimpleUI_DisplayCheck(t *testing.T) {
	ui, buf := newBufferedUI()

	reports := []m.UnitReport{
		{Namespace: "vision", Path: "/ns/vision/image.go", Modules: []string{"vision.scale", "vision.offset"}},
		{Namespace: "vision", Path: "/ns/vision/bad.go", Err: errors.New("missing type annotation")},
	}

	require.NoError(t, ui.DisplayCheck(context.Background(), reports))

	got := buf.String()
	assert.Contains(t, got, "vision.scale, vision.offset")
	assert.Contains(t, got, "missing type annotation")
	assert.Contains(t, got, "failed")
	assert.Contains(t, strings.ToLower(got), "total units 2")
}

func TestSimpleUI_Messages(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		display func(ui *SimpleUI)
		want    []string
	}{
		{
			name: "problems",
			display: func(ui *SimpleUI) {
				ui.DisplayProblems(ctx, []m.UnitReport{{Namespace: "audio", Path: "/a/b.go", Err: errors.New("duplicate")}})
			},
			want: []string{"skipped /a/b.go (audio): duplicate"},
		},
		{
			name: "namespace installed",
			display: func(ui *SimpleUI) {
				ui.DisplayNamespace(ctx, ActionInstalled, m.Namespace{Name: "audio", Path: "/a", Frozen: true}, 2)
			},
			want: []string{`installed frozen namespace "audio" at /a (2 module(s))`},
		},
		{
			name: "namespace removed",
			display: func(ui *SimpleUI) {
				ui.DisplayNamespace(ctx, ActionRemoved, m.Namespace{Name: "audio", Path: "/a"}, 0)
			},
			want: []string{`removed namespace "audio"`},
		},
		{
			name: "run success",
			display: func(ui *SimpleUI) {
				ui.DisplayRunResult(ctx, m.RunResult{Config: "task.yaml", Value: 42, Elapsed: 1500 * time.Millisecond})
			},
			want: []string{"task.yaml finished in 1.5s", "42"},
		},
		{
			name: "run sweep failure",
			display: func(ui *SimpleUI) {
				ui.DisplayRunResult(ctx, m.RunResult{
					Config: "task.yaml",
					Sweep:  1,
					Params: map[string]any{"x": 1},
					Err:    errors.New("boom"),
				})
			},
			want: []string{"task.yaml sweep #1 failed after 0s: boom"},
		},
		{
			name: "watch",
			display: func(ui *SimpleUI) {
				ui.DisplayWatch(ctx, []m.Path{"a.yaml", "b.go"})
			},
			want: []string{"changed: a.yaml, b.go, rebuilding"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui, buf := newBufferedUI()
			tt.display(ui)

			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
