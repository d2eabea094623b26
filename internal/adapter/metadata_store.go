package adapter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	m "nest.dev/pkg/nest/internal/model"
)

// MetadataStore reads the optional per-namespace metadata file.
type MetadataStore interface {
	LoadMetadata(dir m.Path, filename string) (m.Metadata, error)
}

// YAMLMetadataStore reads `author`, `version` and `requirements` from a YAML
// file at the namespace root.
type YAMLMetadataStore struct{}

// NewYAMLMetadataStore constructs a YAMLMetadataStore.
func NewYAMLMetadataStore() *YAMLMetadataStore {
	return &YAMLMetadataStore{}
}

// LoadMetadata returns zero metadata when the file does not exist.
func (s *YAMLMetadataStore) LoadMetadata(dir m.Path, filename string) (m.Metadata, error) {
	path := filepath.Join(string(dir), filename)

	// #nosec G304 - path is inside an installed namespace
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m.Metadata{}, nil
	}

	if err != nil {
		return m.Metadata{}, err
	}

	var md m.Metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return m.Metadata{}, fmt.Errorf("decode %s: %w", path, err)
	}

	return md, nil
}
