package controller

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "nest.dev/pkg/nest/internal/model"
)

// SimpleUI implements UI by printing to the cobra command output.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// DisplayModules prints one table row per module record.
func (s *SimpleUI) DisplayModules(ctx context.Context, modules []m.ModuleInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderModuleTable(modules))

	return nil
}

func renderModuleTable(modules []m.ModuleInfo) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Module", "Signature", "Version", "Author", "Source"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	broken := 0

	for _, mod := range modules {
		table.Append([]string{
			mod.Name,
			mod.Signature.String(),
			mod.Metadata.Version,
			mod.Metadata.Author,
			sourceLabel(mod),
		})

		if mod.Broken != "" {
			broken++
		}
	}

	footer := fmt.Sprintf("%d module(s)", len(modules))
	if broken > 0 {
		footer += fmt.Sprintf(", %d broken", broken)
	}

	table.SetFooter([]string{footer, "", "", "", ""})
	table.Render()

	return tableBuffer.String()
}

func sourceLabel(mod m.ModuleInfo) string {
	switch {
	case mod.Broken != "":
		return "broken: " + string(mod.Path)
	case mod.Path == "":
		return "(built in)"
	case mod.Frozen:
		return string(mod.Path) + " (frozen)"
	default:
		return string(mod.Path)
	}
}

// DisplayProblems prints the source units skipped during discovery.
func (s *SimpleUI) DisplayProblems(ctx context.Context, problems []m.UnitReport) {
	if err := ctx.Err(); err != nil {
		return
	}

	for _, p := range problems {
		s.printf("skipped %s (%s): %v\n", p.Path, p.Namespace, p.Err)
	}
}

// DisplayCheck prints one table row per checked source unit.
func (s *SimpleUI) DisplayCheck(ctx context.Context, reports []m.UnitReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Status", "Modules"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT})

	failed := 0

	for _, r := range reports {
		status, detail := "ok", strings.Join(r.Modules, ", ")
		if r.Err != nil {
			status, detail = "failed", r.Err.Error()
			failed++
		}

		table.Append([]string{string(r.Path), status, detail})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Units %d", len(reports)),
		fmt.Sprintf("%d failed", failed),
		"",
	})
	table.Render()

	s.printf("\n%s", tableBuffer.String())

	return nil
}

// DisplayNamespace reports an install or removal.
func (s *SimpleUI) DisplayNamespace(ctx context.Context, action NamespaceAction, ns m.Namespace, modules int) {
	if err := ctx.Err(); err != nil {
		return
	}

	frozen := ""
	if ns.Frozen {
		frozen = " frozen"
	}

	s.printf("%s%s namespace %q at %s (%d module(s))\n", action, frozen, ns.Name, ns.Path, modules)
}

// DisplayRunResult prints the outcome of one build.
func (s *SimpleUI) DisplayRunResult(ctx context.Context, result m.RunResult) {
	if err := ctx.Err(); err != nil {
		return
	}

	label := string(result.Config)
	if len(result.Params) > 0 {
		label += fmt.Sprintf(" sweep #%d", result.Sweep)
	}

	if result.Err != nil {
		s.printf("%s failed after %s: %v\n", label, formatElapsed(result), result.Err)
		return
	}

	s.printf("%s finished in %s\n%v\n", label, formatElapsed(result), result.Value)
}

func formatElapsed(result m.RunResult) string {
	return humanize.FtoaWithDigits(result.Elapsed.Seconds(), 3) + "s"
}

// DisplayWatch reports the files whose change triggered a rebuild.
func (s *SimpleUI) DisplayWatch(ctx context.Context, changed []m.Path) {
	if err := ctx.Err(); err != nil {
		return
	}

	names := make([]string, 0, len(changed))
	for _, p := range changed {
		names = append(names, string(p))
	}

	s.printf("changed: %s, rebuilding\n", strings.Join(names, ", "))
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
