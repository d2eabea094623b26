package model

import (
	"fmt"
	"reflect"
	"strings"

	"nest.dev/pkg/nest/internal/types"
)

// Metadata is the descriptive part of a module record.
type Metadata struct {
	Author       string   `yaml:"author,omitempty"`
	Version      string   `yaml:"version,omitempty"`
	Requirements []string `yaml:"requirements,omitempty"`
}

// Merge fills the empty fields of m from fallback.
func (m Metadata) Merge(fallback Metadata) Metadata {
	if m.Author == "" {
		m.Author = fallback.Author
	}

	if m.Version == "" {
		m.Version = fallback.Version
	}

	if len(m.Requirements) == 0 {
		m.Requirements = fallback.Requirements
	}

	return m
}

// Param is one formal parameter.
type Param struct {
	Name       string
	Type       types.Type
	HasDefault bool
	Default    any
}

func (p Param) String() string {
	s := p.Name + " " + p.Type.String()
	if p.HasDefault {
		s += fmt.Sprintf(" = %v", p.Default)
	}

	return s
}

// Signature is the formal contract of a module.
type Signature struct {
	Params []Param
	Result types.Type
	// TakesContext is set when the implementation expects a context.Context
	// ahead of the declared parameters.
	TakesContext bool
}

// Param returns the parameter called name.
func (s Signature) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}

	return Param{}, false
}

// Required lists the parameters without defaults.
func (s Signature) Required() []string {
	var names []string

	for _, p := range s.Params {
		if !p.HasDefault {
			names = append(names, p.Name)
		}
	}

	return names
}

func (s Signature) String() string {
	parts := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		parts = append(parts, p.String())
	}

	return "(" + strings.Join(parts, ", ") + ") " + s.Result.String()
}

// Lines renders one parameter per line, then the result.
func (s Signature) Lines() []string {
	lines := make([]string, 0, len(s.Params)+1)
	for _, p := range s.Params {
		lines = append(lines, p.String()+"\n")
	}

	return append(lines, "-> "+s.Result.String()+"\n")
}

// Declaration is everything needed to register one module record.
type Declaration struct {
	Name      QualifiedName
	Func      string
	Doc       string
	Metadata  Metadata
	Signature Signature
	Source    Source
	// Impl is the Go func value backing the module.
	Impl reflect.Value
}
