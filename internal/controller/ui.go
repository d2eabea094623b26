// Package controller provides output adapters for module listings, checks
// and task runs.
package controller

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	m "nest.dev/pkg/nest/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeList StartMode = iota
	ModeRun
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithListMode sets the UI to module listing mode.
func WithListMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeList
	}
}

// WithRunMode sets the UI to task run mode.
func WithRunMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeRun
	}
}

// NamespaceAction names what happened to a Search-Path Table entry.
type NamespaceAction string

// Namespace actions.
const (
	ActionInstalled NamespaceAction = "installed"
	ActionRemoved   NamespaceAction = "removed"
)

// UI defines the interface for presenting registry contents and run results.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayModules(ctx context.Context, modules []m.ModuleInfo) error
	DisplayProblems(ctx context.Context, problems []m.UnitReport)
	DisplayCheck(ctx context.Context, reports []m.UnitReport) error
	DisplayNamespace(ctx context.Context, action NamespaceAction, ns m.Namespace, modules int)
	DisplayRunResult(ctx context.Context, result m.RunResult)
	DisplayWatch(ctx context.Context, changed []m.Path)
}

// NewUI returns the interactive TUI when interactive is set and SimpleUI
// otherwise.
func NewUI(cmd *cobra.Command, interactive bool) UI {
	if interactive {
		return NewTUI(cmd)
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether f is attached to a terminal.
func IsTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
