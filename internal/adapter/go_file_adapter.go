package adapter

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// DirectivePrefix starts every nest directive comment.
const DirectivePrefix = "//nest:"

// Directive is one `//nest:<key> <value>` line of a doc comment.
type Directive struct {
	Key   string
	Value string
	Pos   token.Position
}

// ModuleFunc is a top-level function marked with `//nest:module`.
type ModuleFunc struct {
	Decl *ast.FuncDecl
	// Name is the explicit identifier given to the module directive, if any.
	Name       string
	Doc        string
	Directives []Directive
	Pos        token.Position
}

// Lookup returns the directives with the given key in source order.
func (f ModuleFunc) Lookup(key string) []Directive {
	var out []Directive

	for _, d := range f.Directives {
		if d.Key == key {
			out = append(out, d)
		}
	}

	return out
}

// GoFileAdapter encapsulates Go parsing so the domain layer deals with module
// declarations instead of raw syntax.
type GoFileAdapter interface {
	// Parse builds an AST using the provided file set and source bytes.
	Parse(ctx context.Context, fileSet *token.FileSet, filename string, src []byte) (*ast.File, error)

	// ModuleFuncs returns the functions of file carrying a module directive.
	ModuleFuncs(fileSet *token.FileSet, file *ast.File) []ModuleFunc
}

// LocalGoFileAdapter provides a concrete GoFileAdapter backed by go/parser.
type LocalGoFileAdapter struct{}

// NewLocalGoFileAdapter constructs a LocalGoFileAdapter.
func NewLocalGoFileAdapter() *LocalGoFileAdapter {
	return &LocalGoFileAdapter{}
}

// Parse builds an AST for the provided filename/source pair.
func (a *LocalGoFileAdapter) Parse(ctx context.Context, fileSet *token.FileSet, filename string, src []byte) (*ast.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return parser.ParseFile(fileSet, filename, src, parser.ParseComments)
}

// ModuleFuncs collects package-level functions whose doc comment holds
// `//nest:module`. Methods are ignored.
func (a *LocalGoFileAdapter) ModuleFuncs(fileSet *token.FileSet, file *ast.File) []ModuleFunc {
	var funcs []ModuleFunc

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv != nil || fd.Doc == nil {
			continue
		}

		directives := parseDirectives(fileSet, fd.Doc)

		var (
			marked bool
			name   string
			rest   []Directive
		)

		for _, d := range directives {
			if d.Key == "module" {
				marked = true
				name = d.Value

				continue
			}

			rest = append(rest, d)
		}

		if !marked {
			continue
		}

		funcs = append(funcs, ModuleFunc{
			Decl:       fd,
			Name:       name,
			Doc:        strings.TrimSpace(fd.Doc.Text()),
			Directives: rest,
			Pos:        fileSet.Position(fd.Pos()),
		})
	}

	return funcs
}

func parseDirectives(fileSet *token.FileSet, doc *ast.CommentGroup) []Directive {
	var out []Directive

	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, DirectivePrefix) {
			continue
		}

		body := strings.TrimPrefix(c.Text, DirectivePrefix)
		key, value, _ := strings.Cut(body, " ")

		out = append(out, Directive{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
			Pos:   fileSet.Position(c.Pos()),
		})
	}

	return out
}
