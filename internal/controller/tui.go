package controller

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	m "nest.dev/pkg/nest/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)
	nameStyle   = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	brokenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// TUI implements UI with an interactive module browser. Plain messages are
// printed the same way SimpleUI prints them.
type TUI struct {
	*SimpleUI
	cmd *cobra.Command
}

// NewTUI creates a new TUI.
func NewTUI(cmd *cobra.Command) *TUI {
	return &TUI{SimpleUI: NewSimpleUI(cmd), cmd: cmd}
}

// DisplayModules opens a scrollable list of module records.
func (t *TUI) DisplayModules(ctx context.Context, modules []m.ModuleInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	model := newModuleBrowserModel(modules)

	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(t.cmd.InOrStdin()),
		tea.WithOutput(t.cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("module browser: %w", err)
	}

	return nil
}

// moduleBrowserModel is the Bubble Tea model for the module listing.
type moduleBrowserModel struct {
	lines    []string
	modules  int
	broken   int
	height   int
	width    int
	offset   int
	quitting bool
}

func newModuleBrowserModel(modules []m.ModuleInfo) moduleBrowserModel {
	model := moduleBrowserModel{modules: len(modules)}

	for _, mod := range modules {
		model.lines = append(model.lines, moduleLines(mod)...)

		if mod.Broken != "" {
			model.broken++
		}
	}

	return model
}

func moduleLines(mod m.ModuleInfo) []string {
	header := "  " + nameStyle.Render(mod.Name) + " " + mod.Signature.String()

	var meta []string
	if mod.Metadata.Version != "" {
		meta = append(meta, "v"+mod.Metadata.Version)
	}

	if mod.Metadata.Author != "" {
		meta = append(meta, "by "+mod.Metadata.Author)
	}

	if len(mod.Metadata.Requirements) > 0 {
		meta = append(meta, "needs "+strings.Join(mod.Metadata.Requirements, ", "))
	}

	switch {
	case mod.Path == "":
		meta = append(meta, "built in")
	case mod.Frozen:
		meta = append(meta, string(mod.Path)+" (frozen)")
	default:
		meta = append(meta, string(mod.Path))
	}

	lines := []string{header, "    " + faintStyle.Render(strings.Join(meta, " | "))}

	if doc, _, _ := strings.Cut(mod.Doc, "\n"); doc != "" {
		lines = append(lines, "    "+doc)
	}

	if mod.Broken != "" {
		lines = append(lines, "    "+brokenStyle.Render("broken: "+mod.Broken))
	}

	return lines
}

func (mbm moduleBrowserModel) Init() tea.Cmd {
	return nil
}

func (mbm moduleBrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		mbm.height = msg.Height
		mbm.width = msg.Width
		mbm.offset = mbm.clamp(mbm.offset)

		return mbm, nil

	case tea.KeyMsg:
		return mbm.handleKeyPress(msg)
	}

	return mbm, nil
}

func (mbm moduleBrowserModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	//nolint:exhaustive // only navigation keys are handled
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		mbm.quitting = true
		return mbm, tea.Quit
	}

	switch msg.String() {
	case "q":
		mbm.quitting = true
		return mbm, tea.Quit
	case "down", "j":
		mbm.offset = mbm.clamp(mbm.offset + 1)
	case "up", "k":
		mbm.offset = mbm.clamp(mbm.offset - 1)
	case "g", "home":
		mbm.offset = 0
	case "G", "end":
		mbm.offset = mbm.maxOffset()
	case "d", "pgdown":
		mbm.offset = mbm.clamp(mbm.offset + mbm.linesPerPage())
	case "u", "pgup":
		mbm.offset = mbm.clamp(mbm.offset - mbm.linesPerPage())
	}

	return mbm, nil
}

// linesPerPage is the room left for module lines after the header and footer.
func (mbm moduleBrowserModel) linesPerPage() int {
	if mbm.height == 0 {
		return 10
	}

	// title box (3) + blank + blank + summary + blank + page + help
	const reserved = 9

	if available := mbm.height - reserved; available > 1 {
		return available
	}

	return 1
}

func (mbm moduleBrowserModel) maxOffset() int {
	if over := len(mbm.lines) - mbm.linesPerPage(); over > 0 {
		return over
	}

	return 0
}

func (mbm moduleBrowserModel) clamp(offset int) int {
	return max(0, min(offset, mbm.maxOffset()))
}

func (mbm moduleBrowserModel) View() string {
	if mbm.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("nest modules"))
	b.WriteString("\n\n")

	if len(mbm.lines) == 0 {
		b.WriteString("  No modules found\n")
		return b.String()
	}

	end := min(mbm.offset+mbm.linesPerPage(), len(mbm.lines))
	for _, line := range mbm.lines[mbm.offset:end] {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  %d module(s)", mbm.modules)

	if mbm.broken > 0 {
		b.WriteString(brokenStyle.Render(fmt.Sprintf(", %d broken", mbm.broken)))
	}

	b.WriteString("\n\n")
	fmt.Fprintf(&b, "  Lines %d-%d of %d\n", mbm.offset+1, end, len(mbm.lines))
	b.WriteString(faintStyle.Render("  ↑/k: up | ↓/j: down | d/u: page | g: top | G: bottom | q: quit"))
	b.WriteString("\n")

	return b.String()
}
