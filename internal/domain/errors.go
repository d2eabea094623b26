package domain

import (
	"fmt"
	"strings"

	m "nest.dev/pkg/nest/internal/model"
	"nest.dev/pkg/nest/internal/types"
)

// MissingTypeAnnotation is returned when a parameter or the result of a
// module has no declared type. Param is "return" for the result.
type MissingTypeAnnotation struct {
	Module string
	Param  string
}

func (e *MissingTypeAnnotation) Error() string {
	if e.Param == returnParam {
		return fmt.Sprintf("module %s: missing declared return type", e.Module)
	}

	return fmt.Sprintf("module %s: parameter %q has no declared type", e.Module, e.Param)
}

// InvalidSignature is returned for declarations the registry cannot model.
type InvalidSignature struct {
	Module string
	Reason string
}

func (e *InvalidSignature) Error() string {
	return fmt.Sprintf("module %s: invalid signature: %s", e.Module, e.Reason)
}

// DuplicateIdentifier is returned when two source units claim the same
// qualified name in one registration pass, or when a declaration's namespace
// does not match its source unit.
type DuplicateIdentifier struct {
	Name     string
	Existing m.Path
	Incoming m.Path
	Reason   string
}

func (e *DuplicateIdentifier) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("duplicate identifier %s: %s", e.Name, e.Reason)
	}

	return fmt.Sprintf("duplicate identifier %s: declared in %s and %s", e.Name, e.Existing, e.Incoming)
}

// ModuleNotFound is returned by exact lookups that match nothing.
type ModuleNotFound struct {
	Name string
}

func (e *ModuleNotFound) Error() string {
	return fmt.Sprintf("module %s not found", e.Name)
}

// AmbiguousName is returned when an unqualified name exists in several
// namespaces and the namespace order does not settle it.
type AmbiguousName struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousName) Error() string {
	return fmt.Sprintf("module name %s is ambiguous: %s", e.Name, strings.Join(e.Candidates, ", "))
}

// UnexpectedArguments lists every argument the signature does not accept.
type UnexpectedArguments struct {
	Module string
	Names  []string
}

func (e *UnexpectedArguments) Error() string {
	return fmt.Sprintf("module %s: unexpected arguments: %s", e.Module, strings.Join(e.Names, ", "))
}

// MissingRequiredArgument lists the parameters without defaults that were not
// supplied.
type MissingRequiredArgument struct {
	Module string
	Params []string
}

func (e *MissingRequiredArgument) Error() string {
	return fmt.Sprintf("module %s: missing required arguments: %s", e.Module, strings.Join(e.Params, ", "))
}

// TypeMismatch reports a value that does not satisfy its declared type.
// Return is set when the check ran on the result of a completed call.
type TypeMismatch struct {
	Module   string
	Param    string
	Declared types.Type
	Actual   string
	Path     string
	Return   bool
}

func (e *TypeMismatch) Error() string {
	where := ""
	if e.Path != "" {
		where = " at " + e.Path
	}

	if e.Return {
		return fmt.Sprintf("module %s: return value expected %s, got %s%s (checked after the call completed)",
			e.Module, e.Declared, e.Actual, where)
	}

	return fmt.Sprintf("module %s: argument %q expected %s, got %s%s", e.Module, e.Param, e.Declared, e.Actual, where)
}

// ReloadError is returned when a module's source unit could not be reloaded.
// The module keeps its last good implementation.
type ReloadError struct {
	Module string
	Path   m.Path
	Err    error
}

func (e *ReloadError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("reload %s: %v", e.Path, e.Err)
	}

	return fmt.Sprintf("module %s: reload %s: %v", e.Module, e.Path, e.Err)
}

func (e *ReloadError) Unwrap() error { return e.Err }

// InvocationError wraps an error returned or a panic raised by an
// implementation.
type InvocationError struct {
	Module string
	Err    error
	Panic  any
}

func (e *InvocationError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("module %s panicked: %v", e.Module, e.Panic)
	}

	return fmt.Sprintf("module %s failed: %v", e.Module, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// VariableNotFound is returned for a variable reference that neither the
// global variables nor the environment define.
type VariableNotFound struct {
	Name string
}

func (e *VariableNotFound) Error() string {
	return fmt.Sprintf("variable %s is not defined", e.Name)
}

// UnresolvedModule is returned when a partially applied module is left in a
// build result.
type UnresolvedModule struct {
	Path   string
	Module string
}

func (e *UnresolvedModule) Error() string {
	return fmt.Sprintf("module %s at %s was never resolved", e.Module, e.Path)
}

// ResolutionError annotates a build failure with the node where it happened.
type ResolutionError struct {
	Path     []string
	Position m.Position
	Err      error
}

// PathString renders the node path, e.g. "root → data_loaders → transform".
func (e *ResolutionError) PathString() string {
	return strings.Join(e.Path, pathSeparator)
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s (%s): %v", e.PathString(), e.Position, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

const (
	returnParam   = "return"
	pathSeparator = " → "
)
