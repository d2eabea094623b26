package adapter

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	m "nest.dev/pkg/nest/internal/model"
)

// DocumentLoader turns configuration documents into node trees.
type DocumentLoader interface {
	// Load reads path and decodes it according to its extension.
	Load(ctx context.Context, path m.Path) (m.Node, error)
	// Decode decodes data; name selects the format and labels positions.
	Decode(name string, data []byte) (m.Node, error)
}

// LocalDocumentLoader decodes YAML, TOML and HCL documents from disk.
type LocalDocumentLoader struct{}

// NewLocalDocumentLoader constructs a LocalDocumentLoader.
func NewLocalDocumentLoader() *LocalDocumentLoader {
	return &LocalDocumentLoader{}
}

// Load implements DocumentLoader.
func (l *LocalDocumentLoader) Load(ctx context.Context, path m.Path) (m.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// #nosec G304 - configuration path supplied by the user
	data, err := os.ReadFile(string(path))
	if err != nil {
		return nil, err
	}

	return l.Decode(string(path), data)
}

// Decode implements DocumentLoader.
func (l *LocalDocumentLoader) Decode(name string, data []byte) (m.Node, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", "":
		return decodeYAML(name, data)
	case ".toml":
		return decodeTOML(name, data)
	case ".hcl":
		return decodeHCL(name, data)
	default:
		return nil, fmt.Errorf("unsupported document format %q", filepath.Ext(name))
	}
}

func decodeYAML(name string, data []byte) (m.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &m.Mapping{Position: m.Position{File: name}}, nil
	}

	return fromYAML(name, doc.Content[0])
}

func fromYAML(name string, n *yaml.Node) (m.Node, error) {
	pos := m.Position{File: name, Line: n.Line, Column: n.Column}

	switch n.Kind {
	case yaml.AliasNode:
		return fromYAML(name, n.Alias)

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%s: %w", pos, err)
		}

		return &m.Scalar{Value: v, Position: pos}, nil

	case yaml.SequenceNode:
		seq := &m.Sequence{Position: pos, Items: make([]m.Node, 0, len(n.Content))}

		for _, item := range n.Content {
			child, err := fromYAML(name, item)
			if err != nil {
				return nil, err
			}

			seq.Items = append(seq.Items, child)
		}

		return seq, nil

	case yaml.MappingNode:
		return fromYAMLMapping(name, n, pos)

	default:
		return nil, fmt.Errorf("%s: unsupported YAML node", pos)
	}
}

func fromYAMLMapping(name string, n *yaml.Node, pos m.Position) (m.Node, error) {
	mapping := &m.Mapping{Position: pos}

	var merged []m.Pair

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]

		child, err := fromYAML(name, value)
		if err != nil {
			return nil, err
		}

		if key.Tag == "!!merge" {
			pairs, err := mergePairs(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pos, err)
			}

			merged = append(merged, pairs...)

			continue
		}

		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%s:%d:%d: mapping keys must be scalars", name, key.Line, key.Column)
		}

		if _, dup := mapping.Get(key.Value); dup {
			return nil, fmt.Errorf("%s:%d:%d: duplicate key %q", name, key.Line, key.Column, key.Value)
		}

		mapping.Pairs = append(mapping.Pairs, m.Pair{Key: key.Value, Value: child})
	}

	for _, p := range merged {
		if _, exists := mapping.Get(p.Key); !exists {
			mapping.Pairs = append(mapping.Pairs, p)
		}
	}

	return mapping, nil
}

func mergePairs(n m.Node) ([]m.Pair, error) {
	switch x := n.(type) {
	case *m.Mapping:
		return x.Pairs, nil
	case *m.Sequence:
		var pairs []m.Pair

		for _, item := range x.Items {
			mp, ok := item.(*m.Mapping)
			if !ok {
				return nil, fmt.Errorf("merge key expects mappings")
			}

			pairs = append(pairs, mp.Pairs...)
		}

		return pairs, nil
	default:
		return nil, fmt.Errorf("merge key expects a mapping")
	}
}

func decodeTOML(name string, data []byte) (m.Node, error) {
	var raw map[string]any

	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	order := map[string]int{}
	for i, key := range md.Keys() {
		if _, seen := order[key.String()]; !seen {
			order[key.String()] = i
		}
	}

	return fromTOML(name, raw, nil, order), nil
}

func fromTOML(name string, v any, prefix toml.Key, order map[string]int) m.Node {
	pos := m.Position{File: name}

	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}

		rank := func(k string) int {
			if i, ok := order[append(prefix[:len(prefix):len(prefix)], k).String()]; ok {
				return i
			}

			return len(order)
		}

		sort.SliceStable(keys, func(i, j int) bool {
			ri, rj := rank(keys[i]), rank(keys[j])
			if ri != rj {
				return ri < rj
			}

			return keys[i] < keys[j]
		})

		mapping := &m.Mapping{Position: pos}
		for _, k := range keys {
			child := fromTOML(name, x[k], append(prefix[:len(prefix):len(prefix)], k), order)
			mapping.Pairs = append(mapping.Pairs, m.Pair{Key: k, Value: child})
		}

		return mapping

	case []map[string]any:
		seq := &m.Sequence{Position: pos}
		for _, item := range x {
			seq.Items = append(seq.Items, fromTOML(name, item, prefix, order))
		}

		return seq

	case []any:
		seq := &m.Sequence{Position: pos}
		for _, item := range x {
			seq.Items = append(seq.Items, fromTOML(name, item, prefix, order))
		}

		return seq

	default:
		return &m.Scalar{Value: v, Position: pos}
	}
}

func decodeHCL(name string, data []byte) (m.Node, error) {
	file, diags := hclsyntax.ParseConfig(data, name, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %s", name, diags.Error())
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse HCL file %s: unexpected body", name)
	}

	return fromHCLBody(body)
}

type hclItem struct {
	start int
	key   string
	value func() (m.Node, error)
}

// fromHCLBody keeps attributes and blocks in source order. A block becomes a
// mapping under its type, nested once more per label.
func fromHCLBody(body *hclsyntax.Body) (*m.Mapping, error) {
	items := make([]hclItem, 0, len(body.Attributes)+len(body.Blocks))

	for _, attr := range body.Attributes {
		items = append(items, hclItem{
			start: attr.SrcRange.Start.Byte,
			key:   attr.Name,
			value: func() (m.Node, error) { return fromHCLExpr(attr.Expr) },
		})
	}

	for _, block := range body.Blocks {
		items = append(items, hclItem{
			start: block.TypeRange.Start.Byte,
			key:   block.Type,
			value: func() (m.Node, error) { return fromHCLBlock(block) },
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].start < items[j].start })

	mapping := &m.Mapping{Position: hclPos(body.SrcRange)}

	for _, item := range items {
		value, err := item.value()
		if err != nil {
			return nil, err
		}

		existing, dup := mapping.Get(item.key)
		if !dup {
			mapping.Pairs = append(mapping.Pairs, m.Pair{Key: item.key, Value: value})
			continue
		}

		if err := mergeMappings(existing, value); err != nil {
			return nil, fmt.Errorf("%s: key %q: %w", value.Pos(), item.key, err)
		}
	}

	return mapping, nil
}

func fromHCLBlock(block *hclsyntax.Block) (m.Node, error) {
	inner, err := fromHCLBody(block.Body)
	if err != nil {
		return nil, err
	}

	var node m.Node = inner

	for i := len(block.Labels) - 1; i >= 0; i-- {
		node = &m.Mapping{
			Position: hclPos(block.LabelRanges[i]),
			Pairs:    []m.Pair{{Key: block.Labels[i], Value: node}},
		}
	}

	return node, nil
}

func mergeMappings(dst, src m.Node) error {
	d, ok1 := dst.(*m.Mapping)
	s, ok2 := src.(*m.Mapping)

	if !ok1 || !ok2 {
		return fmt.Errorf("duplicate key")
	}

	for _, p := range s.Pairs {
		existing, dup := d.Get(p.Key)
		if !dup {
			d.Pairs = append(d.Pairs, p)
			continue
		}

		if err := mergeMappings(existing, p.Value); err != nil {
			return err
		}
	}

	return nil
}

func fromHCLExpr(expr hclsyntax.Expression) (m.Node, error) {
	pos := hclPos(expr.Range())

	switch x := expr.(type) {
	case *hclsyntax.ObjectConsExpr:
		mapping := &m.Mapping{Position: pos}

		for _, item := range x.Items {
			key, diags := item.KeyExpr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("%s: %s", pos, diags.Error())
			}

			if key.Type() != cty.String {
				return nil, fmt.Errorf("%s: object keys must be strings", hclPos(item.KeyExpr.Range()))
			}

			value, err := fromHCLExpr(item.ValueExpr)
			if err != nil {
				return nil, err
			}

			mapping.Pairs = append(mapping.Pairs, m.Pair{Key: key.AsString(), Value: value})
		}

		return mapping, nil

	case *hclsyntax.TupleConsExpr:
		seq := &m.Sequence{Position: pos}

		for _, e := range x.Exprs {
			item, err := fromHCLExpr(e)
			if err != nil {
				return nil, err
			}

			seq.Items = append(seq.Items, item)
		}

		return seq, nil

	default:
		v, diags := expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: %s", pos, diags.Error())
		}

		return fromCty(v, pos)
	}
}

// fromCty converts a cty value into a node tree.
func fromCty(v cty.Value, pos m.Position) (m.Node, error) {
	if v.IsNull() || !v.IsKnown() {
		return &m.Scalar{Position: pos}, nil
	}

	ty := v.Type()

	switch {
	case ty == cty.String:
		return &m.Scalar{Value: v.AsString(), Position: pos}, nil

	case ty == cty.Number:
		return &m.Scalar{Value: ctyNumber(v.AsBigFloat()), Position: pos}, nil

	case ty == cty.Bool:
		return &m.Scalar{Value: v.True(), Position: pos}, nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		seq := &m.Sequence{Position: pos}

		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()

			item, err := fromCty(elem, pos)
			if err != nil {
				return nil, err
			}

			seq.Items = append(seq.Items, item)
		}

		return seq, nil

	case ty.IsObjectType() || ty.IsMapType():
		mapping := &m.Mapping{Position: pos}

		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()

			item, err := fromCty(elem, pos)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}

			mapping.Pairs = append(mapping.Pairs, m.Pair{Key: key.AsString(), Value: item})
		}

		return mapping, nil

	default:
		return nil, fmt.Errorf("%s: unsupported value of type %s", pos, ty.FriendlyName())
	}
}

// ctyNumber prefers int64 for whole numbers.
func ctyNumber(f *big.Float) any {
	if f.IsInt() {
		if i, acc := f.Int64(); acc == big.Exact {
			return i
		}
	}

	out, _ := f.Float64()

	return out
}

func hclPos(r hcl.Range) m.Position {
	return m.Position{File: r.Filename, Line: r.Start.Line, Column: r.Start.Column}
}
