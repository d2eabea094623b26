package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	m "nest.dev/pkg/nest/internal/model"
)

// SearchPathStore persists the namespace to location table.
type SearchPathStore interface {
	// LoadNamespaces reads the table. A missing file yields an empty table.
	LoadNamespaces(path m.Path) ([]m.Namespace, error)
	// SaveNamespaces replaces the table with namespaces.
	SaveNamespaces(path m.Path, namespaces []m.Namespace) error
}

// YAMLSearchPathStore stores the table as a YAML mapping keyed by namespace.
type YAMLSearchPathStore struct{}

// NewYAMLSearchPathStore constructs a YAMLSearchPathStore.
func NewYAMLSearchPathStore() *YAMLSearchPathStore {
	return &YAMLSearchPathStore{}
}

// LoadNamespaces implements SearchPathStore. Entries are sorted by name.
func (s *YAMLSearchPathStore) LoadNamespaces(path m.Path) ([]m.Namespace, error) {
	// #nosec G304 - settings file chosen by the user
	data, err := os.ReadFile(string(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read search paths: %w", err)
	}

	table := map[string]m.Namespace{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode search paths %s: %w", path, err)
	}

	namespaces := make([]m.Namespace, 0, len(table))

	for name, ns := range table {
		if ns.Path == "" {
			return nil, fmt.Errorf("search path entry %q in %s has no path", name, path)
		}

		ns.Name = name
		namespaces = append(namespaces, ns)
	}

	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].Name < namespaces[j].Name })

	return namespaces, nil
}

// SaveNamespaces implements SearchPathStore.
func (s *YAMLSearchPathStore) SaveNamespaces(path m.Path, namespaces []m.Namespace) error {
	table := make(map[string]m.Namespace, len(namespaces))

	for _, ns := range namespaces {
		if _, dup := table[ns.Name]; dup {
			return fmt.Errorf("namespace %q listed twice", ns.Name)
		}

		table[ns.Name] = ns
	}

	data, err := yaml.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode search paths: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return err
	}

	return os.WriteFile(string(path), data, 0o600)
}
