// Package nest embeds the module registry and the configuration builder in
// other Go programs.
//
// A Nest discovers source units from its search paths on first use,
// reloads them when they change and builds YAML, TOML or HCL documents whose
// `_name` mappings call registered modules.
package nest

import (
	"context"
	"io"
	"os"
	"time"

	"nest.dev/pkg/nest/internal/adapter"
	"nest.dev/pkg/nest/internal/builtin"
	"nest.dev/pkg/nest/internal/domain"
	m "nest.dev/pkg/nest/internal/model"
)

// Re-exported record and declaration types.
type (
	Module     = domain.Module
	Partial    = domain.Partial
	Args       = domain.Args
	Spec       = domain.Spec
	ParamSpec  = domain.ParamSpec
	Metadata   = m.Metadata
	Namespace  = m.Namespace
	UnitReport = m.UnitReport
	Path       = m.Path
)

// Re-exported errors, for use with errors.As.
type (
	MissingTypeAnnotation   = domain.MissingTypeAnnotation
	InvalidSignature        = domain.InvalidSignature
	DuplicateIdentifier     = domain.DuplicateIdentifier
	ModuleNotFound          = domain.ModuleNotFound
	AmbiguousName           = domain.AmbiguousName
	UnexpectedArguments     = domain.UnexpectedArguments
	MissingRequiredArgument = domain.MissingRequiredArgument
	TypeMismatch            = domain.TypeMismatch
	ReloadError             = domain.ReloadError
	InvocationError         = domain.InvocationError
	VariableNotFound        = domain.VariableNotFound
	UnresolvedModule        = domain.UnresolvedModule
	ResolutionError         = domain.ResolutionError
)

// Options configures a Nest. The zero value is usable: no search paths,
// default naming and a strict builder.
type Options struct {
	// SearchPaths is a search-path table file. Namespaces is used when it is
	// empty.
	SearchPaths string
	Namespaces  []Namespace

	Separator string
	Reverse   bool
	Order     []string
	// ConfigFile names the per-namespace metadata file.
	ConfigFile string
	Parallel   int
	Raise      bool

	ReloadInterval time.Duration
	ServeStale     bool

	// Lenient makes the builder return partials for modules missing
	// required arguments.
	Lenient        bool
	VariablePrefix string

	// Output receives interpreter output and std.print lines.
	Output io.Writer
	// NoStd skips registering the std bundle.
	NoStd bool
}

// Nest is a registry plus the document loader feeding its builder.
type Nest struct {
	registry *domain.Registry
	docs     adapter.DocumentLoader
	builder  domain.BuilderOptions
}

// New constructs a Nest. Discovery is deferred until the first lookup.
func New(ctx context.Context, opts Options) (*Nest, error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	naming := m.Naming{Separator: opts.Separator, Reverse: opts.Reverse}
	if naming.Separator == "" {
		naming.Separator = m.DefaultNaming.Separator
	}

	var table domain.SearchPathTable = domain.StaticSearchPaths(opts.Namespaces)
	if opts.SearchPaths != "" {
		table = domain.NewStoredSearchPaths(adapter.NewYAMLSearchPathStore(), m.Path(opts.SearchPaths))
	}

	fs := adapter.NewLocalSourceFSAdapter()
	loader := domain.NewUnitLoader(fs, adapter.NewLocalGoFileAdapter(), adapter.NewYaegiInterpreter(out, out), naming)

	registry := domain.NewRegistry(table, loader, fs, adapter.NewYAMLMetadataStore(), domain.RegistryOptions{
		Naming:         naming,
		Order:          opts.Order,
		ConfigFile:     opts.ConfigFile,
		Parallel:       opts.Parallel,
		Raise:          opts.Raise,
		ReloadInterval: opts.ReloadInterval,
		ServeStale:     opts.ServeStale,
	})

	if !opts.NoStd {
		if err := registry.RegisterFrozen(ctx, builtin.Namespace, builtin.Specs(out)); err != nil {
			return nil, err
		}
	}

	return &Nest{
		registry: registry,
		docs:     adapter.NewLocalDocumentLoader(),
		builder: domain.BuilderOptions{
			Strict:         !opts.Lenient,
			VariablePrefix: opts.VariablePrefix,
		},
	}, nil
}

// Register adds compiled-in modules under namespace. They never reload.
func (n *Nest) Register(ctx context.Context, namespace string, specs ...Spec) error {
	return n.registry.RegisterFrozen(ctx, namespace, specs)
}

// Get returns the module called name, qualified or not.
func (n *Nest) Get(ctx context.Context, name string) (*Module, error) {
	return n.registry.Get(ctx, name)
}

// Lookup returns the modules matching a name, a glob or a `re:` pattern.
func (n *Nest) Lookup(ctx context.Context, query string) ([]*Module, error) {
	return n.registry.Lookup(ctx, query)
}

// Call invokes the module called name with keyword arguments.
func (n *Nest) Call(ctx context.Context, name string, kwargs map[string]any) (any, error) {
	mod, err := n.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return mod.Call(ctx, Args{Keyword: kwargs})
}

// Count returns the number of registered modules.
func (n *Nest) Count(ctx context.Context) (int, error) {
	return n.registry.Count(ctx)
}

// Problems lists the source units skipped during discovery.
func (n *Nest) Problems() []UnitReport {
	return n.registry.Problems()
}

// BuildFile loads the document at path and builds it with vars as the
// global variables.
func (n *Nest) BuildFile(ctx context.Context, path string, vars map[string]any) (any, error) {
	doc, err := n.docs.Load(ctx, m.Path(path))
	if err != nil {
		return nil, err
	}

	return n.build(ctx, doc, vars)
}

// Build decodes data as the format implied by name's extension and builds it.
func (n *Nest) Build(ctx context.Context, name string, data []byte, vars map[string]any) (any, error) {
	doc, err := n.docs.Decode(name, data)
	if err != nil {
		return nil, err
	}

	return n.build(ctx, doc, vars)
}

func (n *Nest) build(ctx context.Context, doc m.Node, vars map[string]any) (any, error) {
	value, err := domain.NewBuilder(n.registry, n.builder, vars).Build(ctx, doc)
	if err != nil {
		return nil, err
	}

	if n.builder.Strict {
		if err := domain.RequireResolved(value); err != nil {
			return nil, err
		}
	}

	return value, nil
}
