package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	m "nest.dev/pkg/nest/internal/model"
)

// RegexPrefix marks a Lookup query as a regular expression.
const RegexPrefix = "re:"

// Get returns the record for name after refreshing it. An unqualified name is
// resolved through the namespace order, then by uniqueness.
func (r *Registry) Get(ctx context.Context, name string) (*Module, error) {
	mod, err := r.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	// A broken unit still yields its handle; Call reports the failure.
	if err := r.Refresh(ctx, mod); err != nil {
		slog.Warn("module source is broken", "module", mod.String(), "error", err)
	}

	if mod.removed {
		return nil, &ModuleNotFound{Name: name}
	}

	return mod, nil
}

func (r *Registry) resolve(ctx context.Context, name string) (*Module, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	q, qualified := r.opts.Naming.Parse(name)
	if qualified {
		if rec, ok := r.records[q]; ok {
			return rec, nil
		}

		return nil, &ModuleNotFound{Name: name}
	}

	for _, ns := range r.opts.Order {
		if rec, ok := r.records[m.QualifiedName{Namespace: ns, Identifier: name}]; ok {
			return rec, nil
		}
	}

	matches := r.filter(func(rec *Module) bool { return rec.name.Identifier == name })

	switch len(matches) {
	case 0:
		return nil, &ModuleNotFound{Name: name}
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, 0, len(matches))
		for _, rec := range matches {
			candidates = append(candidates, rec.String())
		}

		return nil, &AmbiguousName{Name: name, Candidates: candidates}
	}
}

// Lookup returns the records matching query, sorted by qualified name.
//
// A query prefixed with "re:" is a regular expression over qualified names.
// A glob containing the separator matches qualified names; any other glob
// matches identifiers in every namespace. Anything else is an exact Get.
func (r *Registry) Lookup(ctx context.Context, query string) ([]*Module, error) {
	if pattern, ok := strings.CutPrefix(query, RegexPrefix); ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid query %q: %w", query, err)
		}

		if err := r.ensureLoaded(ctx); err != nil {
			return nil, err
		}

		return r.filter(func(rec *Module) bool { return re.MatchString(rec.String()) }), nil
	}

	if isGlob(query) {
		if _, err := path.Match(query, ""); err != nil {
			return nil, fmt.Errorf("invalid query %q: %w", query, err)
		}

		if err := r.ensureLoaded(ctx); err != nil {
			return nil, err
		}

		qualified := strings.Contains(query, r.opts.Naming.Separator)

		return r.filter(func(rec *Module) bool {
			target := rec.name.Identifier
			if qualified {
				target = rec.String()
			}

			ok, _ := path.Match(query, target)

			return ok
		}), nil
	}

	mod, err := r.Get(ctx, query)
	if err != nil {
		return nil, err
	}

	return []*Module{mod}, nil
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
