package model

import (
	"fmt"
	"sort"
)

// Position locates a node inside a configuration document.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	switch {
	case p.File == "" && p.Line == 0:
		return "-"
	case p.Line == 0:
		return p.File
	default:
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
}

// Node is a configuration document node: a *Scalar, a *Sequence or a *Mapping.
type Node interface {
	Pos() Position
	node()
}

// Scalar holds a leaf value (string, int, float, bool or nil).
type Scalar struct {
	Value    any
	Position Position
}

// Sequence holds an ordered list of nodes.
type Sequence struct {
	Items    []Node
	Position Position
}

// Pair is one key of a Mapping.
type Pair struct {
	Key   string
	Value Node
}

// Mapping holds string keys in document order.
type Mapping struct {
	Pairs    []Pair
	Position Position
}

// Pos implements Node.
func (s *Scalar) Pos() Position { return s.Position }

// Pos implements Node.
func (s *Sequence) Pos() Position { return s.Position }

// Pos implements Node.
func (m *Mapping) Pos() Position { return m.Position }

func (*Scalar) node()   {}
func (*Sequence) node() {}
func (*Mapping) node()  {}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Node, bool) {
	for _, p := range m.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}

	return nil, false
}

// Set replaces the value under key or appends a new pair.
func (m *Mapping) Set(key string, value Node) {
	for i := range m.Pairs {
		if m.Pairs[i].Key == key {
			m.Pairs[i].Value = value
			return
		}
	}

	m.Pairs = append(m.Pairs, Pair{Key: key, Value: value})
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	switch x := n.(type) {
	case *Scalar:
		c := *x
		return &c
	case *Sequence:
		c := &Sequence{Position: x.Position, Items: make([]Node, len(x.Items))}
		for i, item := range x.Items {
			c.Items[i] = Clone(item)
		}

		return c
	case *Mapping:
		c := &Mapping{Position: x.Position, Pairs: make([]Pair, len(x.Pairs))}
		for i, p := range x.Pairs {
			c.Pairs[i] = Pair{Key: p.Key, Value: Clone(p.Value)}
		}

		return c
	default:
		return n
	}
}

// FromValue wraps a plain decoded value (maps, slices, scalars) as a node tree
// without positions. Map keys are sorted.
func FromValue(v any) Node {
	switch x := v.(type) {
	case Node:
		return x
	case []any:
		seq := &Sequence{Items: make([]Node, len(x))}
		for i, item := range x {
			seq.Items[i] = FromValue(item)
		}

		return seq
	case map[string]any:
		m := &Mapping{}
		for _, k := range sortedKeys(x) {
			m.Pairs = append(m.Pairs, Pair{Key: k, Value: FromValue(x[k])})
		}

		return m
	default:
		return &Scalar{Value: v}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
