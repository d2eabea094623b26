package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"nest.dev/pkg/nest/internal/adapter"
	"nest.dev/pkg/nest/internal/controller"
	m "nest.dev/pkg/nest/internal/model"
)

// ListArgs contains the arguments for listing modules.
type ListArgs struct {
	// Query is a Lookup query; empty lists everything.
	Query string
}

// InstallArgs contains the arguments for installing a namespace.
type InstallArgs struct {
	Path m.Path
	// Name defaults to the base name of Path.
	Name   string
	Frozen bool
	// Force replaces an existing entry with the same name.
	Force bool
}

// RemoveArgs contains the arguments for removing a namespace.
type RemoveArgs struct {
	Name string
	// Delete also removes the namespace directory.
	Delete bool
}

// CheckArgs contains the arguments for checking source units.
type CheckArgs struct {
	// Targets are namespace names or paths. Empty checks every installed
	// namespace.
	Targets []string
}

// RunArgs contains the arguments for running a task document.
type RunArgs struct {
	Config m.Path
	// Params is an optional document holding one mapping or a list of
	// mappings, each one a sweep over the global variables.
	Params m.Path
	Vars   map[string]any
	Watch  bool
}

// Workflow defines the user-facing operations.
type Workflow interface {
	List(ctx context.Context, args ListArgs) error
	Install(ctx context.Context, args InstallArgs) error
	Remove(ctx context.Context, args RemoveArgs) error
	Check(ctx context.Context, args CheckArgs) error
	Run(ctx context.Context, args RunArgs) error
}

// WorkflowOptions holds settings the workflow needs besides its adapters.
type WorkflowOptions struct {
	SearchPaths m.Path
	Builder     BuilderOptions
}

type workflow struct {
	adapter.SearchPathStore
	adapter.SourceFSAdapter
	adapter.DocumentLoader
	adapter.Watcher
	controller.UI
	UnitLoader

	registry *Registry
	opts     WorkflowOptions
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	registry *Registry,
	searchPathStore adapter.SearchPathStore,
	fsAdapter adapter.SourceFSAdapter,
	documentLoader adapter.DocumentLoader,
	watcher adapter.Watcher,
	unitLoader UnitLoader,
	ui controller.UI,
	opts WorkflowOptions,
) Workflow {
	return &workflow{
		SearchPathStore: searchPathStore,
		SourceFSAdapter: fsAdapter,
		DocumentLoader:  documentLoader,
		Watcher:         watcher,
		UI:              ui,
		UnitLoader:      unitLoader,
		registry:        registry,
		opts:            opts,
	}
}

func (w *workflow) List(ctx context.Context, args ListArgs) error {
	if err := w.Start(ctx, controller.WithListMode()); err != nil {
		slog.Error("Failed to start UI", "error", err)
		return err
	}

	defer w.Close(ctx)

	var (
		mods []*Module
		err  error
	)

	if args.Query == "" {
		mods, err = w.registry.All(ctx)
	} else {
		mods, err = w.registry.Lookup(ctx, args.Query)
	}

	if err != nil {
		slog.Error("Failed to look up modules", "query", args.Query, "error", err)
		return fmt.Errorf("list modules: %w", err)
	}

	if problems := w.registry.Problems(); len(problems) > 0 {
		w.DisplayProblems(ctx, problems)
	}

	infos := make([]m.ModuleInfo, 0, len(mods))
	for _, mod := range mods {
		infos = append(infos, mod.Info())
	}

	if err := w.DisplayModules(ctx, infos); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	w.Wait(ctx)

	return nil
}

func (w *workflow) Install(ctx context.Context, args InstallArgs) error {
	if err := w.Start(ctx, controller.WithListMode()); err != nil {
		return err
	}

	defer w.Close(ctx)

	path, err := w.AbsPath(args.Path)
	if err != nil {
		return fmt.Errorf("install %s: %w", args.Path, err)
	}

	info, err := w.FileInfo(path)
	if err != nil {
		return fmt.Errorf("install %s: %w", args.Path, err)
	}

	name := args.Name
	if name == "" {
		name = filepath.Base(string(path))
		if !info.IsDir() {
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
	}

	if sep := w.registry.Naming().Separator; name == "" || strings.Contains(name, sep) {
		return fmt.Errorf("invalid namespace name %q: must be non-empty and must not contain %q", name, sep)
	}

	table, err := w.LoadNamespaces(w.opts.SearchPaths)
	if err != nil {
		return err
	}

	if i := indexNamespace(table, name); i >= 0 {
		if !args.Force {
			return fmt.Errorf("namespace %s is already installed at %s", name, table[i].Path)
		}

		table = slices.Delete(table, i, i+1)
	}

	ns := m.Namespace{Name: name, Path: path, Frozen: args.Frozen}

	if err := w.SaveNamespaces(w.opts.SearchPaths, append(table, ns)); err != nil {
		return err
	}

	slog.Info("installed namespace", "namespace", name, "path", path)

	w.registry.Unload(name)

	all, err := w.registry.All(ctx)
	if err != nil {
		return err
	}

	count := 0

	for _, mod := range all {
		if mod.name.Namespace == name {
			count++
		}
	}

	var problems []m.UnitReport

	for _, p := range w.registry.Problems() {
		if p.Namespace == name {
			problems = append(problems, p)
		}
	}

	if len(problems) > 0 {
		w.DisplayProblems(ctx, problems)
	}

	w.DisplayNamespace(ctx, controller.ActionInstalled, ns, count)

	return nil
}

func (w *workflow) Remove(ctx context.Context, args RemoveArgs) error {
	if err := w.Start(ctx, controller.WithListMode()); err != nil {
		return err
	}

	defer w.Close(ctx)

	table, err := w.LoadNamespaces(w.opts.SearchPaths)
	if err != nil {
		return err
	}

	i := indexNamespace(table, args.Name)
	if i < 0 {
		return fmt.Errorf("namespace %s is not installed", args.Name)
	}

	ns := table[i]

	if err := w.SaveNamespaces(w.opts.SearchPaths, slices.Delete(table, i, i+1)); err != nil {
		return err
	}

	n := w.registry.Unload(ns.Name)

	if args.Delete {
		if err := w.RemoveAll(ns.Path); err != nil {
			slog.Error("Failed to delete namespace directory", "path", ns.Path, "error", err)
			return fmt.Errorf("delete %s: %w", ns.Path, err)
		}
	}

	slog.Info("removed namespace", "namespace", ns.Name, "deleted", args.Delete)

	w.DisplayNamespace(ctx, controller.ActionRemoved, ns, n)

	return nil
}

func (w *workflow) Check(ctx context.Context, args CheckArgs) error {
	if err := w.Start(ctx, controller.WithListMode()); err != nil {
		return err
	}

	defer w.Close(ctx)

	targets, err := w.checkTargets(args.Targets)
	if err != nil {
		return err
	}

	var reports []m.UnitReport

	for _, ns := range targets {
		units, err := w.SourceUnits(ns.Path)
		if err != nil {
			reports = append(reports, m.UnitReport{Namespace: ns.Name, Path: ns.Path, Err: err})
			continue
		}

		for _, path := range units {
			report := m.UnitReport{Namespace: ns.Name, Path: path}

			unit, err := w.CheckUnit(ctx, m.Source{Path: path, Namespace: ns.Name})
			if err != nil {
				report.Err = err
			} else {
				for _, decl := range unit.Decls {
					report.Modules = append(report.Modules, w.registry.Naming().Format(decl.Name))
				}
			}

			reports = append(reports, report)
		}
	}

	if err := w.DisplayCheck(ctx, reports); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	failed := 0

	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d source units failed the check", failed, len(reports))
	}

	return nil
}

// checkTargets maps each target to a namespace. Installed names win over
// paths.
func (w *workflow) checkTargets(targets []string) ([]m.Namespace, error) {
	table, err := w.LoadNamespaces(w.opts.SearchPaths)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		return table, nil
	}

	out := make([]m.Namespace, 0, len(targets))

	for _, target := range targets {
		if i := indexNamespace(table, target); i >= 0 {
			out = append(out, table[i])
			continue
		}

		path, err := w.AbsPath(m.Path(target))
		if err != nil {
			return nil, err
		}

		name := strings.TrimSuffix(filepath.Base(string(path)), ".go")
		out = append(out, m.Namespace{Name: name, Path: path})
	}

	return out, nil
}

func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	if err := w.Start(ctx, controller.WithRunMode()); err != nil {
		return err
	}

	defer w.Close(ctx)

	runID := uuid.NewString()
	logger := slog.With("run_id", runID)

	err := w.runOnce(ctx, logger, runID, args)
	if !args.Watch {
		return err
	}

	paths := []m.Path{args.Config}
	if args.Params != "" {
		paths = append(paths, args.Params)
	}

	table, err := w.LoadNamespaces(w.opts.SearchPaths)
	if err != nil {
		return err
	}

	for _, ns := range table {
		if !ns.Frozen {
			paths = append(paths, ns.Path)
		}
	}

	events, err := w.Watch(ctx, paths)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	logger.Info("watching for changes", "paths", len(paths))

	for changed := range events {
		w.DisplayWatch(ctx, changed)

		// Failures are displayed; watching continues until ctx is done.
		_ = w.runOnce(ctx, logger, runID, args)
	}

	return nil
}

func (w *workflow) runOnce(ctx context.Context, logger *slog.Logger, runID string, args RunArgs) error {
	doc, err := w.Load(ctx, args.Config)
	if err != nil {
		logger.Error("Failed to load task document", "config", args.Config, "error", err)
		w.DisplayRunResult(ctx, m.RunResult{RunID: runID, Config: args.Config, Err: err})

		return fmt.Errorf("load %s: %w", args.Config, err)
	}

	raw, err := w.ReadFile(args.Config)
	if err != nil {
		w.DisplayRunResult(ctx, m.RunResult{RunID: runID, Config: args.Config, Err: err})
		return fmt.Errorf("read %s: %w", args.Config, err)
	}

	sweeps := []map[string]any{{}}

	if args.Params != "" {
		params, err := w.Load(ctx, args.Params)
		if err == nil {
			sweeps, err = paramSweeps(params)
		}

		if err != nil {
			w.DisplayRunResult(ctx, m.RunResult{RunID: runID, Config: args.Config, Err: err})
			return fmt.Errorf("load params %s: %w", args.Params, err)
		}
	}

	vars := make(map[string]any, len(args.Vars)+2)
	for k, v := range args.Vars {
		vars[k] = v
	}

	params := map[string]any{}

	var errs []error

	for i, sweep := range sweeps {
		// Sweeps accumulate: later entries see earlier assignments.
		mergeVars(vars, sweep)
		mergeVars(params, sweep)

		if _, ok := args.Vars[configVar]; !ok {
			vars[configVar] = string(raw)
		}

		if _, ok := args.Vars[paramsVar]; !ok {
			vars[paramsVar] = paramsText(args.Params, params)
		}

		builder := NewBuilder(w.registry, w.opts.Builder, vars)
		start := time.Now()

		value, err := builder.Build(ctx, m.Clone(doc))
		if err == nil {
			err = RequireResolved(value)
		}

		vars = builder.Vars()

		result := m.RunResult{
			RunID:   runID,
			Config:  args.Config,
			Sweep:   i,
			Params:  sweep,
			Value:   value,
			Elapsed: time.Since(start),
			Err:     err,
		}

		if err != nil {
			result.Value = nil

			logger.Error("task failed", "config", args.Config, "sweep", i, "error", err)
			errs = append(errs, err)
		} else {
			logger.Info("task finished", "config", args.Config, "sweep", i, "elapsed", result.Elapsed)
		}

		w.DisplayRunResult(ctx, result)
	}

	return errors.Join(errs...)
}

// Variables describing the run itself, unless set with --var.
const (
	configVar = "CONFIG"
	paramsVar = "PARAMS"
)

// mergeVars merges src into dst. Nested mappings are merged key by key and
// copied, so dst never aliases a mapping of src.
func mergeVars(dst, src map[string]any) {
	for k, v := range src {
		incoming, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}

		merged := map[string]any{}
		if existing, ok := dst[k].(map[string]any); ok {
			mergeVars(merged, existing)
		}

		mergeVars(merged, incoming)
		dst[k] = merged
	}
}

// paramsText renders the accumulated sweep parameters as YAML. It is empty
// when the run has no params document.
func paramsText(file m.Path, params map[string]any) string {
	if file == "" {
		return ""
	}

	out, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Sprint(params)
	}

	return string(out)
}

func paramSweeps(node m.Node) ([]map[string]any, error) {
	switch v := m.ToValue(node).(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		if len(v) == 0 {
			return []map[string]any{{}}, nil
		}

		out := make([]map[string]any, 0, len(v))

		for i, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("params entry %d must be a mapping", i)
			}

			out = append(out, entry)
		}

		return out, nil
	default:
		return nil, errors.New("params document must be a mapping or a list of mappings")
	}
}

func indexNamespace(table []m.Namespace, name string) int {
	return slices.IndexFunc(table, func(ns m.Namespace) bool { return ns.Name == name })
}
