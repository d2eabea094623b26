package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"nest.dev/pkg/nest/internal/adapter"
	m "nest.dev/pkg/nest/internal/model"
)

// DefaultParallel bounds concurrent source unit parsing during discovery.
const DefaultParallel = 8

// SearchPathTable lists the installed namespaces.
type SearchPathTable interface {
	Namespaces(ctx context.Context) ([]m.Namespace, error)
}

type storedSearchPaths struct {
	adapter.SearchPathStore

	path m.Path
}

// NewStoredSearchPaths reads the table from a search-path file on every call,
// so installs made by another process are picked up.
func NewStoredSearchPaths(store adapter.SearchPathStore, path m.Path) SearchPathTable {
	return &storedSearchPaths{SearchPathStore: store, path: path}
}

func (s *storedSearchPaths) Namespaces(ctx context.Context) ([]m.Namespace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.LoadNamespaces(s.path)
}

// StaticSearchPaths is a fixed in-memory table.
type StaticSearchPaths []m.Namespace

// Namespaces implements SearchPathTable.
func (s StaticSearchPaths) Namespaces(context.Context) ([]m.Namespace, error) {
	return s, nil
}

// RegistryOptions tunes naming, discovery and reload behaviour.
type RegistryOptions struct {
	Naming m.Naming
	// Order settles unqualified names present in several namespaces.
	Order []string
	// ConfigFile is the namespace metadata file name, nest.yml by default.
	ConfigFile string
	Parallel   int
	// Raise makes a failing source unit abort discovery.
	Raise          bool
	ReloadInterval time.Duration
	// ServeStale lets calls proceed on the last good implementation of a
	// broken unit.
	ServeStale bool
	Clock      func() time.Time
}

// Module is a registered record. Callers hold the pointer as a handle; reload
// and override update it in place.
type Module struct {
	registry *Registry

	name      m.QualifiedName
	doc       string
	metadata  m.Metadata
	signature m.Signature
	impl      reflect.Value
	source    m.Source
	unit      *unitState
	removed   bool
}

// Name returns the qualified name.
func (mod *Module) Name() m.QualifiedName { return mod.name }

// String formats the qualified name with the registry's naming settings.
func (mod *Module) String() string { return mod.registry.opts.Naming.Format(mod.name) }

// Doc returns the docstring.
func (mod *Module) Doc() string { return mod.doc }

// Metadata returns the effective metadata, inheritance applied.
func (mod *Module) Metadata() m.Metadata { return mod.metadata }

// Signature returns the current signature.
func (mod *Module) Signature() m.Signature { return mod.signature }

// Source returns the source unit the record was loaded from.
func (mod *Module) Source() m.Source { return mod.source }

// Removed reports whether the record was unloaded.
func (mod *Module) Removed() bool { return mod.removed }

// Broken returns the failure that keeps the source unit from reloading.
func (mod *Module) Broken() error {
	if mod.unit == nil {
		return nil
	}

	return mod.unit.broken
}

// Info returns a display snapshot of the record.
func (mod *Module) Info() m.ModuleInfo {
	info := m.ModuleInfo{
		Name:      mod.String(),
		Doc:       mod.doc,
		Metadata:  mod.metadata,
		Signature: mod.signature,
		Path:      mod.source.Path,
		Frozen:    mod.source.Frozen,
	}

	if err := mod.Broken(); err != nil {
		info.Broken = err.Error()
	}

	return info
}

// Call refreshes the record, validates args against its signature and
// invokes the implementation.
func (mod *Module) Call(ctx context.Context, args Args) (any, error) {
	if err := mod.registry.Refresh(ctx, mod); err != nil {
		if !mod.registry.opts.ServeStale {
			return nil, err
		}

		slog.Warn("serving last good implementation", "module", mod.String(), "error", err)
	}

	if mod.removed {
		return nil, &ModuleNotFound{Name: mod.String()}
	}

	bound, err := Validate(mod, args)
	if err != nil {
		return nil, err
	}

	return mod.invoke(ctx, bound)
}

type unitState struct {
	source m.Source
	names  []m.QualifiedName
	// last is the effective metadata of the previous declaration in the unit.
	last    m.Metadata
	broken  error
	checked time.Time
}

type namespaceState struct {
	ns       m.Namespace
	defaults m.Metadata
}

// pass tracks which source unit claimed each name during one registration
// pass.
type pass struct {
	owners map[m.QualifiedName]m.Path
}

func newPass() *pass {
	return &pass{owners: map[m.QualifiedName]m.Path{}}
}

// Registry owns every module record. It assumes a single writer.
type Registry struct {
	opts     RegistryOptions
	table    SearchPathTable
	loader   UnitLoader
	fs       adapter.SourceFSAdapter
	metadata adapter.MetadataStore

	records    map[m.QualifiedName]*Module
	units      map[m.Path]*unitState
	namespaces map[string]*namespaceState
	problems   []m.UnitReport
}

// NewRegistry constructs an empty registry that discovers namespaces from
// table on first access.
func NewRegistry(
	table SearchPathTable,
	loader UnitLoader,
	fsAdapter adapter.SourceFSAdapter,
	metadataStore adapter.MetadataStore,
	opts RegistryOptions,
) *Registry {
	if opts.Naming.Separator == "" {
		opts.Naming = m.DefaultNaming
	}

	if opts.ConfigFile == "" {
		opts.ConfigFile = "nest.yml"
	}

	if opts.Parallel <= 0 {
		opts.Parallel = DefaultParallel
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Registry{
		opts:       opts,
		table:      table,
		loader:     loader,
		fs:         fsAdapter,
		metadata:   metadataStore,
		records:    map[m.QualifiedName]*Module{},
		units:      map[m.Path]*unitState{},
		namespaces: map[string]*namespaceState{},
	}
}

// Naming returns the naming settings.
func (r *Registry) Naming() m.Naming { return r.opts.Naming }

// Register inserts decl or overrides the record with the same name in place.
func (r *Registry) Register(ctx context.Context, decl m.Declaration) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r.register(decl, nil)
}

// RegisterFrozen registers modules compiled into the binary under namespace
// ns. Their records never reload.
func (r *Registry) RegisterFrozen(ctx context.Context, ns string, specs []Spec) error {
	if _, ok := r.namespaces[ns]; !ok {
		r.namespaces[ns] = &namespaceState{ns: m.Namespace{Name: ns, Frozen: true}}
	}

	p := newPass()

	for _, spec := range specs {
		decl, err := spec.Declaration(ns, r.opts.Naming)
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := r.register(decl, p); err != nil {
			return err
		}
	}

	return nil
}

// Count returns the number of records after discovery.
func (r *Registry) Count(ctx context.Context) (int, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	return len(r.records), nil
}

// All returns every record sorted by qualified name.
func (r *Registry) All(ctx context.Context) ([]*Module, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	return r.filter(func(*Module) bool { return true }), nil
}

// Unload drops every record of namespace ns and marks the handles removed.
// The namespace is discovered again on next access if it is still installed.
func (r *Registry) Unload(ns string) int {
	n := 0

	for name := range r.records {
		if name.Namespace == ns {
			r.remove(name)
			n++
		}
	}

	for path, unit := range r.units {
		if unit.source.Namespace == ns {
			delete(r.units, path)
		}
	}

	delete(r.namespaces, ns)

	kept := r.problems[:0]

	for _, p := range r.problems {
		if p.Namespace != ns {
			kept = append(kept, p)
		}
	}

	r.problems = kept

	slog.Debug("unloaded namespace", "namespace", ns, "modules", n)

	return n
}

// Problems returns the source units that failed during discovery.
func (r *Registry) Problems() []m.UnitReport {
	out := make([]m.UnitReport, len(r.problems))
	copy(out, r.problems)

	return out
}

func (r *Registry) filter(keep func(*Module) bool) []*Module {
	out := make([]*Module, 0, len(r.records))

	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].name.Less(out[j].name) })

	return out
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	namespaces, err := r.table.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("read search paths: %w", err)
	}

	for _, ns := range namespaces {
		if _, ok := r.namespaces[ns.Name]; ok {
			continue
		}

		if err := r.loadNamespace(ctx, ns); err != nil {
			return err
		}
	}

	return nil
}

type unitResult struct {
	unit *Unit
	err  error
}

// loadNamespace discovers the units of ns. A failed or cancelled pass forgets
// the namespace so the next access retries it.
func (r *Registry) loadNamespace(ctx context.Context, ns m.Namespace) (err error) {
	state := &namespaceState{ns: ns}
	r.namespaces[ns.Name] = state

	defer func() {
		if err != nil {
			delete(r.namespaces, ns.Name)
		}
	}()

	slog.Debug("discovering namespace", "namespace", ns.Name, "path", ns.Path)

	if err := r.loadDefaults(state); err != nil {
		if fatal := r.problem(ns.Name, ns.Path, nil, err); fatal != nil {
			return fatal
		}
	}

	paths, err := r.fs.SourceUnits(ns.Path)
	if err != nil {
		return r.problem(ns.Name, ns.Path, nil, err)
	}

	results := make([]unitResult, len(paths))

	var g errgroup.Group

	g.SetLimit(r.opts.Parallel)

	for i, path := range paths {
		g.Go(func() error {
			unit, err := r.loader.LoadUnit(ctx, m.Source{Path: path, Namespace: ns.Name, Frozen: ns.Frozen})
			results[i] = unitResult{unit: unit, err: err}

			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	p := newPass()

	for i, res := range results {
		err := res.err
		if err == nil {
			err = r.registerUnit(res.unit, p)
		}

		if err == nil {
			continue
		}

		if fatal := r.problem(ns.Name, paths[i], nil, err); fatal != nil {
			return fatal
		}
	}

	return nil
}

func (r *Registry) loadDefaults(state *namespaceState) error {
	dir := state.ns.Path

	info, err := r.fs.FileInfo(dir)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		dir = m.Path(filepath.Dir(string(dir)))
	}

	defaults, err := r.metadata.LoadMetadata(dir, r.opts.ConfigFile)
	if err != nil {
		return err
	}

	state.defaults = defaults

	return nil
}

// problem records a discovery failure. It returns a non-nil error when the
// failure must abort discovery.
func (r *Registry) problem(ns string, path m.Path, modules []string, err error) error {
	slog.Error("source unit failed", "namespace", ns, "path", path, "error", err)

	r.problems = append(r.problems, m.UnitReport{Namespace: ns, Path: path, Modules: modules, Err: err})

	if r.opts.Raise {
		return fmt.Errorf("namespace %s: %w", ns, err)
	}

	return nil
}

// registerUnit registers every declaration of unit, or none of them. Names the
// unit used to declare and no longer does are unloaded.
func (r *Registry) registerUnit(unit *Unit, p *pass) error {
	path := unit.Source.Path

	for _, decl := range unit.Decls {
		if err := r.conflict(decl, p); err != nil {
			return err
		}

		if rec, ok := r.records[decl.Name]; ok && rec.unit != nil && rec.source.Path != path && !rec.removed {
			return &DuplicateIdentifier{
				Name:     r.opts.Naming.Format(decl.Name),
				Existing: rec.source.Path,
				Incoming: path,
			}
		}
	}

	state, ok := r.units[path]
	if !ok {
		state = &unitState{}
		r.units[path] = state
	}

	previous := state.names
	state.source = unit.Source
	state.names = nil
	state.last = m.Metadata{}
	state.broken = nil

	for _, decl := range unit.Decls {
		if _, err := r.register(decl, p); err != nil {
			return err
		}
	}

	current := make(map[m.QualifiedName]bool, len(state.names))
	for _, name := range state.names {
		current[name] = true
	}

	for _, name := range previous {
		if current[name] {
			continue
		}

		if rec, ok := r.records[name]; ok && rec.unit == state {
			slog.Info("module vanished from source", "module", r.opts.Naming.Format(name), "path", path)
			r.remove(name)
		}
	}

	slog.Debug("registered source unit", "path", path, "modules", len(unit.Decls))

	return nil
}

func (r *Registry) conflict(decl m.Declaration, p *pass) error {
	label := r.opts.Naming.Format(decl.Name)

	if decl.Source.Namespace != "" && decl.Source.Namespace != decl.Name.Namespace {
		return &DuplicateIdentifier{
			Name:     label,
			Incoming: decl.Source.Path,
			Reason: fmt.Sprintf("declared in namespace %s but its source unit belongs to %s",
				decl.Name.Namespace, decl.Source.Namespace),
		}
	}

	if p == nil {
		return nil
	}

	if owner, ok := p.owners[decl.Name]; ok && owner != decl.Source.Path {
		return &DuplicateIdentifier{Name: label, Existing: owner, Incoming: decl.Source.Path}
	}

	return nil
}

func (r *Registry) register(decl m.Declaration, p *pass) (*Module, error) {
	if err := r.conflict(decl, p); err != nil {
		return nil, err
	}

	if p != nil {
		p.owners[decl.Name] = decl.Source.Path
	}

	effective := decl.Metadata

	var unit *unitState

	if decl.Source.Path != "" {
		unit = r.units[decl.Source.Path]
		if unit == nil {
			unit = &unitState{source: decl.Source}
			r.units[decl.Source.Path] = unit
		}

		effective = effective.Merge(unit.last)
		unit.last = effective
		unit.names = appendName(unit.names, decl.Name)
	}

	if ns, ok := r.namespaces[decl.Name.Namespace]; ok {
		effective = effective.Merge(ns.defaults)
	}

	rec, ok := r.records[decl.Name]
	if !ok {
		rec = &Module{registry: r, name: decl.Name}
		r.records[decl.Name] = rec
	} else {
		if rec.unit != nil && rec.unit != unit {
			rec.unit.names = dropName(rec.unit.names, decl.Name)
		}

		logSignatureChange(r.opts.Naming.Format(decl.Name), rec.signature, decl.Signature)
	}

	rec.doc = decl.Doc
	rec.metadata = effective
	rec.signature = decl.Signature
	rec.impl = decl.Impl
	rec.source = decl.Source
	rec.unit = unit
	rec.removed = false

	return rec, nil
}

func (r *Registry) remove(name m.QualifiedName) {
	rec, ok := r.records[name]
	if !ok {
		return
	}

	rec.removed = true
	delete(r.records, name)
}

func appendName(names []m.QualifiedName, name m.QualifiedName) []m.QualifiedName {
	for _, n := range names {
		if n == name {
			return names
		}
	}

	return append(names, name)
}

func dropName(names []m.QualifiedName, name m.QualifiedName) []m.QualifiedName {
	out := names[:0]

	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}

	return out
}
