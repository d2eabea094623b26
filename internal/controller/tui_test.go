package controller

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "nest.dev/pkg/nest/internal/model"
	"nest.dev/pkg/nest/internal/types"
)

func manyModules(n int) []m.ModuleInfo {
	mods := make([]m.ModuleInfo, 0, n)
	for i := range n {
		mods = append(mods, m.ModuleInfo{
			Name:      fmt.Sprintf("ns.mod%02d", i),
			Signature: m.Signature{Result: types.Int},
			Path:      "/ns/unit.go",
		})
	}

	return mods
}

func press(t *testing.T, model moduleBrowserModel, keys ...string) moduleBrowserModel {
	t.Helper()

	for _, key := range keys {
		next, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
		model = next.(moduleBrowserModel)
	}

	return model
}

func TestModuleBrowserModel_View(t *testing.T) {
	model := newModuleBrowserModel(sampleModules())
	view := model.View()

	assert.Contains(t, view, "nest modules")
	assert.Contains(t, view, "vision.scale")
	assert.Contains(t, view, "v1.0.0 | by ana | /ns/vision/image.go")
	assert.Contains(t, view, "built in")
	assert.Contains(t, view, "broken: syntax error")
	assert.Contains(t, view, "3 module(s)")
}

func TestModuleBrowserModel_Empty(t *testing.T) {
	view := newModuleBrowserModel(nil).View()
	assert.Contains(t, view, "No modules found")
}

func TestModuleBrowserModel_Navigation(t *testing.T) {
	// Each module takes two lines: header and metadata.
	model := newModuleBrowserModel(manyModules(20))
	require.Len(t, model.lines, 40)

	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 19})
	model = next.(moduleBrowserModel)
	require.Equal(t, 10, model.linesPerPage())

	tests := []struct {
		name   string
		keys   []string
		offset int
	}{
		{"down", []string{"j", "j"}, 2},
		{"up stops at top", []string{"k"}, 0},
		{"page down", []string{"d"}, 10},
		{"bottom", []string{"G"}, 30},
		{"down stops at bottom", []string{"G", "j"}, 30},
		{"page up from bottom", []string{"G", "u"}, 20},
		{"top", []string{"G", "g"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := press(t, model, tt.keys...)
			assert.Equal(t, tt.offset, got.offset)
		})
	}

	bottom := press(t, model, "G")
	view := bottom.View()
	assert.Contains(t, view, "ns.mod19")
	assert.NotContains(t, view, "ns.mod00")
	assert.Contains(t, view, "Lines 31-40 of 40")
}

func TestModuleBrowserModel_Quit(t *testing.T) {
	model := newModuleBrowserModel(manyModules(1))

	next, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, next.(moduleBrowserModel).quitting)
	assert.Empty(t, strings.TrimSpace(next.View()))

	next, cmd = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.True(t, next.(moduleBrowserModel).quitting)
}

func TestNewUI(t *testing.T) {
	ui, _ := newBufferedUI()

	assert.IsType(t, &TUI{}, NewUI(ui.cmd, true))
	assert.IsType(t, &SimpleUI{}, NewUI(ui.cmd, false))
}
