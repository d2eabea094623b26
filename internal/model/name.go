package model

import "strings"

// QualifiedName identifies a module record across all namespaces.
type QualifiedName struct {
	Namespace  string
	Identifier string
}

// String renders the name with the default naming scheme.
func (q QualifiedName) String() string {
	return DefaultNaming.Format(q)
}

// Less orders names by namespace, then identifier.
func (q QualifiedName) Less(other QualifiedName) bool {
	if q.Namespace != other.Namespace {
		return q.Namespace < other.Namespace
	}

	return q.Identifier < other.Identifier
}

// Naming controls how qualified names are written and read back.
type Naming struct {
	Separator string
	// Reverse writes the identifier before the namespace.
	Reverse bool
}

// DefaultNaming is `namespace.identifier`.
var DefaultNaming = Naming{Separator: "."}

// Format renders q.
func (n Naming) Format(q QualifiedName) string {
	if q.Namespace == "" {
		return q.Identifier
	}

	if n.Reverse {
		return q.Identifier + n.sep() + q.Namespace
	}

	return q.Namespace + n.sep() + q.Identifier
}

// Parse splits s into a qualified name. The boolean is false when s carries
// no separator, in which case only Identifier is set.
func (n Naming) Parse(s string) (QualifiedName, bool) {
	sep := n.sep()

	if n.Reverse {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			return QualifiedName{Identifier: s}, false
		}

		return QualifiedName{Namespace: s[i+len(sep):], Identifier: s[:i]}, true
	}

	ns, ident, ok := strings.Cut(s, sep)
	if !ok {
		return QualifiedName{Identifier: s}, false
	}

	return QualifiedName{Namespace: ns, Identifier: ident}, true
}

func (n Naming) sep() string {
	if n.Separator == "" {
		return DefaultNaming.Separator
	}

	return n.Separator
}
