package model

import "time"

// ModuleInfo is the read-only view of a module record shown to users.
type ModuleInfo struct {
	Name      string
	Doc       string
	Metadata  Metadata
	Signature Signature
	Path      Path
	Frozen    bool
	// Broken holds the last reload failure, if any.
	Broken string
}

// UnitReport summarizes one source unit after discovery or a check.
type UnitReport struct {
	Namespace string
	Path      Path
	Modules   []string
	Err       error
}

// RunResult is the outcome of building one configuration document.
type RunResult struct {
	RunID   string
	Config  Path
	Sweep   int
	Params  map[string]any
	Value   any
	Elapsed time.Duration
	Err     error
}

// ToValue converts a node tree back into plain maps, slices and scalars.
func ToValue(n Node) any {
	switch x := n.(type) {
	case *Scalar:
		return x.Value
	case *Sequence:
		out := make([]any, 0, len(x.Items))
		for _, item := range x.Items {
			out = append(out, ToValue(item))
		}

		return out
	case *Mapping:
		out := make(map[string]any, len(x.Pairs))
		for _, p := range x.Pairs {
			out[p.Key] = ToValue(p.Value)
		}

		return out
	default:
		return nil
	}
}
