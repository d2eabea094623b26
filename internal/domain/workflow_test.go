package domain

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nest.dev/pkg/nest/internal/adapter"
	"nest.dev/pkg/nest/internal/controller"
	m "nest.dev/pkg/nest/internal/model"
)

type mockUI struct {
	mock.Mock
}

func (u *mockUI) Start(ctx context.Context, _ ...controller.StartOption) error {
	return u.Called(ctx).Error(0)
}

func (u *mockUI) Close(ctx context.Context) { u.Called(ctx) }

func (u *mockUI) Wait(ctx context.Context) { u.Called(ctx) }

func (u *mockUI) DisplayModules(ctx context.Context, modules []m.ModuleInfo) error {
	return u.Called(ctx, modules).Error(0)
}

func (u *mockUI) DisplayProblems(ctx context.Context, problems []m.UnitReport) {
	u.Called(ctx, problems)
}

func (u *mockUI) DisplayCheck(ctx context.Context, reports []m.UnitReport) error {
	return u.Called(ctx, reports).Error(0)
}

func (u *mockUI) DisplayNamespace(ctx context.Context, action controller.NamespaceAction, ns m.Namespace, modules int) {
	u.Called(ctx, action, ns, modules)
}

func (u *mockUI) DisplayRunResult(ctx context.Context, result m.RunResult) {
	u.Called(ctx, result)
}

func (u *mockUI) DisplayWatch(ctx context.Context, changed []m.Path) {
	u.Called(ctx, changed)
}

type mockWatcher struct {
	mock.Mock
}

func (w *mockWatcher) Watch(ctx context.Context, paths []m.Path) (<-chan []m.Path, error) {
	args := w.Called(ctx, paths)

	ch, _ := args.Get(0).(<-chan []m.Path)

	return ch, args.Error(1)
}

func expectLifecycle(ui *mockUI) {
	ui.On("Start", mock.Anything).Return(nil).Once()
	ui.On("Close", mock.Anything).Return().Once()
}

func newTestWorkflow(t *testing.T, ui controller.UI, watcher adapter.Watcher) (Workflow, *Registry, m.Path) {
	t.Helper()

	table := m.Path(filepath.Join(t.TempDir(), "search_paths.yaml"))
	store := adapter.NewYAMLSearchPathStore()
	fs := adapter.NewLocalSourceFSAdapter()
	loader := NewUnitLoader(fs, adapter.NewLocalGoFileAdapter(), adapter.NewYaegiInterpreter(io.Discard, io.Discard), m.DefaultNaming)

	r := NewRegistry(NewStoredSearchPaths(store, table), loader, fs, adapter.NewYAMLMetadataStore(), RegistryOptions{})
	require.NoError(t, r.RegisterFrozen(context.Background(), "math", mathSpecs()))

	wf := NewWorkflow(r, store, fs, adapter.NewLocalDocumentLoader(), watcher, loader, ui, WorkflowOptions{
		SearchPaths: table,
		Builder:     BuilderOptions{Strict: true, LookupEnv: noEnv},
	})

	return wf, r, table
}

func TestWorkflow_List(t *testing.T) {
	ctx := context.Background()
	ui := new(mockUI)
	wf, _, _ := newTestWorkflow(t, ui, nil)

	expectLifecycle(ui)
	ui.On("Wait", mock.Anything).Return().Once()
	ui.On("DisplayModules", mock.Anything, mock.MatchedBy(func(mods []m.ModuleInfo) bool {
		return len(mods) == 2 && mods[0].Name == "math.add" && mods[1].Name == "math.apply"
	})).Return(nil).Once()

	require.NoError(t, wf.List(ctx, ListArgs{Query: "a*"}))
	ui.AssertExpectations(t)
}

func TestWorkflow_List_BadQuery(t *testing.T) {
	ui := new(mockUI)
	wf, _, _ := newTestWorkflow(t, ui, nil)

	expectLifecycle(ui)

	err := wf.List(context.Background(), ListArgs{Query: "math.nothing"})
	require.Error(t, err)

	var notFound *ModuleNotFound
	assert.ErrorAs(t, err, &notFound)
	ui.AssertExpectations(t)
}

func TestWorkflow_InstallAndRemove(t *testing.T) {
	ctx := context.Background()
	ui := new(mockUI)
	wf, r, table := newTestWorkflow(t, ui, nil)

	dir := filepath.Join(t.TempDir(), "audio")
	writeUnit(t, dir, "audio.go", audioUnit)

	expectLifecycle(ui)
	ui.On("DisplayNamespace", mock.Anything, controller.ActionInstalled, mock.MatchedBy(func(ns m.Namespace) bool {
		return ns.Name == "audio" && ns.Path == m.Path(dir)
	}), 1).Return().Once()

	require.NoError(t, wf.Install(ctx, InstallArgs{Path: m.Path(dir)}))

	namespaces, err := adapter.NewYAMLSearchPathStore().LoadNamespaces(table)
	require.NoError(t, err)
	require.Len(t, namespaces, 1)
	assert.Equal(t, "audio", namespaces[0].Name)

	mod, err := r.Get(ctx, "audio.scale")
	require.NoError(t, err)

	// Installing the same name again needs force.
	expectLifecycle(ui)
	assert.Error(t, wf.Install(ctx, InstallArgs{Path: m.Path(dir)}))

	expectLifecycle(ui)
	ui.On("DisplayNamespace", mock.Anything, controller.ActionRemoved, mock.Anything, 1).Return().Once()

	require.NoError(t, wf.Remove(ctx, RemoveArgs{Name: "audio", Delete: true}))
	assert.True(t, mod.Removed())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "namespace directory deleted")

	expectLifecycle(ui)
	assert.Error(t, wf.Remove(ctx, RemoveArgs{Name: "audio"}))

	ui.AssertExpectations(t)
}

func TestWorkflow_Install_InvalidName(t *testing.T) {
	ui := new(mockUI)
	wf, _, _ := newTestWorkflow(t, ui, nil)

	expectLifecycle(ui)

	err := wf.Install(context.Background(), InstallArgs{Path: m.Path(t.TempDir()), Name: "a.b"})
	assert.ErrorContains(t, err, "invalid namespace name")
}

func TestWorkflow_Check(t *testing.T) {
	ctx := context.Background()
	ui := new(mockUI)
	wf, r, _ := newTestWorkflow(t, ui, nil)

	dir := filepath.Join(t.TempDir(), "mixed")
	writeUnit(t, dir, "good.go", visionUnit)
	writeUnit(t, dir, "bad.go", "package mixed\n\n//nest:module\nfunc Nothing(a int) {}\n")

	var reports []m.UnitReport

	expectLifecycle(ui)
	ui.On("DisplayCheck", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		reports = args.Get(1).([]m.UnitReport)
	}).Return(nil).Once()

	err := wf.Check(ctx, CheckArgs{Targets: []string{dir}})
	assert.ErrorContains(t, err, "1 of 2 source units failed")

	require.Len(t, reports, 2)
	assert.Equal(t, "mixed", reports[0].Namespace)
	assert.Error(t, reports[0].Err)
	assert.Equal(t, []string{"mixed.scale", "mixed.offset"}, reports[1].Modules)
	assert.NoError(t, reports[1].Err)

	// Checking registers nothing.
	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(mathSpecs()), count)

	ui.AssertExpectations(t)
}

func TestWorkflow_Run_ParamSweeps(t *testing.T) {
	ctx := context.Background()
	ui := new(mockUI)
	wf, _, _ := newTestWorkflow(t, ui, nil)

	dir := t.TempDir()
	config := writeUnit(t, dir, "task.yaml", "total:\n  _name: add\n  a: \"@x\"\n  b: \"@y\"\n")
	params := writeUnit(t, dir, "params.yaml", "- {x: 1, y: 10}\n- {x: 2}\n")

	var results []m.RunResult

	expectLifecycle(ui)
	ui.On("DisplayRunResult", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		results = append(results, args.Get(1).(m.RunResult))
	}).Return()

	require.NoError(t, wf.Run(ctx, RunArgs{Config: config, Params: params}))

	require.Len(t, results, 2)
	assert.Equal(t, map[string]any{"total": 11}, results[0].Value)
	// y carries over from the first sweep.
	assert.Equal(t, map[string]any{"total": 12}, results[1].Value)
	assert.Equal(t, results[0].RunID, results[1].RunID)
	assert.NotEmpty(t, results[0].RunID)
	assert.Equal(t, 1, results[1].Sweep)

	ui.AssertExpectations(t)
}

func TestWorkflow_Run_RunVariables(t *testing.T) {
	ctx := context.Background()
	ui := new(mockUI)
	wf, _, _ := newTestWorkflow(t, ui, nil)

	dir := t.TempDir()
	doc := "opts:\n  _name: echo\n  value: \"@opts\"\n" +
		"raw:\n  _name: echo\n  value: \"@CONFIG\"\n" +
		"params:\n  _name: echo\n  value: \"@PARAMS\"\n"
	config := writeUnit(t, dir, "task.yaml", doc)
	params := writeUnit(t, dir, "params.yaml", "- {opts: {a: 1, b: 2}}\n- {opts: {b: 3}}\n")

	var results []m.RunResult

	expectLifecycle(ui)
	ui.On("DisplayRunResult", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		results = append(results, args.Get(1).(m.RunResult))
	}).Return()

	require.NoError(t, wf.Run(ctx, RunArgs{Config: config, Params: params}))
	require.Len(t, results, 2)

	second, ok := results[1].Value.(map[string]any)
	require.True(t, ok, "got %#v", results[1].Value)

	// Nested mappings merge across sweeps instead of being replaced.
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, second["opts"])
	assert.Equal(t, doc, second["raw"])
	assert.Contains(t, second["params"], "a: 1")
	assert.Contains(t, second["params"], "b: 3")

	ui.AssertExpectations(t)
}

func TestMergeVars(t *testing.T) {
	tests := []struct {
		name string
		dst  map[string]any
		src  map[string]any
		want map[string]any
	}{
		{"new key", map[string]any{"a": 1}, map[string]any{"b": 2}, map[string]any{"a": 1, "b": 2}},
		{"scalar replaced", map[string]any{"a": 1}, map[string]any{"a": 2}, map[string]any{"a": 2}},
		{
			"nested merged",
			map[string]any{"m": map[string]any{"x": 1, "y": 1}},
			map[string]any{"m": map[string]any{"y": 2, "z": 3}},
			map[string]any{"m": map[string]any{"x": 1, "y": 2, "z": 3}},
		},
		{"mapping replaces scalar", map[string]any{"m": 1}, map[string]any{"m": map[string]any{"x": 1}}, map[string]any{"m": map[string]any{"x": 1}}},
		{"scalar replaces mapping", map[string]any{"m": map[string]any{"x": 1}}, map[string]any{"m": 1}, map[string]any{"m": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mergeVars(tt.dst, tt.src)
			assert.Equal(t, tt.want, tt.dst)
		})
	}

	t.Run("no aliasing", func(t *testing.T) {
		src := map[string]any{"m": map[string]any{"x": 1}}
		dst := map[string]any{}

		mergeVars(dst, src)
		dst["m"].(map[string]any)["x"] = 2

		assert.Equal(t, 1, src["m"].(map[string]any)["x"])
	})
}

func TestWorkflow_Run_Failure(t *testing.T) {
	ctx := context.Background()
	ui := new(mockUI)
	wf, _, _ := newTestWorkflow(t, ui, nil)

	config := writeUnit(t, t.TempDir(), "task.yaml", "step:\n  _name: join\n")

	expectLifecycle(ui)
	ui.On("DisplayRunResult", mock.Anything, mock.MatchedBy(func(r m.RunResult) bool {
		return r.Err != nil && r.Value == nil
	})).Return().Once()

	err := wf.Run(ctx, RunArgs{Config: config})

	var missing *MissingRequiredArgument
	assert.ErrorAs(t, err, &missing)
	ui.AssertExpectations(t)
}

func TestWorkflow_Run_Watch(t *testing.T) {
	ctx := context.Background()
	ui := new(mockUI)
	watcher := new(mockWatcher)
	wf, _, _ := newTestWorkflow(t, ui, watcher)

	config := writeUnit(t, t.TempDir(), "task.yaml", "_name: add\na: 1\n")

	events := make(chan []m.Path, 1)
	events <- []m.Path{config}
	close(events)

	watcher.On("Watch", mock.Anything, []m.Path{config}).Return((<-chan []m.Path)(events), nil).Once()

	expectLifecycle(ui)
	ui.On("DisplayWatch", mock.Anything, []m.Path{config}).Return().Once()
	ui.On("DisplayRunResult", mock.Anything, mock.MatchedBy(func(r m.RunResult) bool {
		return r.Err == nil && r.Value == 2
	})).Return().Twice()

	require.NoError(t, wf.Run(ctx, RunArgs{Config: config, Watch: true}))

	ui.AssertExpectations(t)
	watcher.AssertExpectations(t)
}

func TestParamSweeps(t *testing.T) {
	tests := []struct {
		name    string
		node    m.Node
		want    []map[string]any
		wantErr bool
	}{
		{"single mapping", m.FromValue(map[string]any{"a": 1}), []map[string]any{{"a": 1}}, false},
		{"list", m.FromValue([]any{map[string]any{"a": 1}, map[string]any{"b": 2}}), []map[string]any{{"a": 1}, {"b": 2}}, false},
		{"empty list", m.FromValue([]any{}), []map[string]any{{}}, false},
		{"scalar entry", m.FromValue([]any{1}), nil, true},
		{"scalar document", m.FromValue("x"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := paramSweeps(tt.node)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
