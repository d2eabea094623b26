// Package model defines the data structures shared by the registry, the
// reload loader and the configuration builder.
package model

import "time"

// Path represents a file system path.
type Path string

// Source describes the source unit backing a group of module records.
type Source struct {
	Path      Path
	Namespace string
	ModTime   time.Time
	Hash      string
	Frozen    bool
}

// Namespace is one entry of the search-path table.
type Namespace struct {
	Name   string `yaml:"-"`
	Path   Path   `yaml:"path"`
	Frozen bool   `yaml:"frozen,omitempty"`
}
