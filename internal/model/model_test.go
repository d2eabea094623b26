package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nest.dev/pkg/nest/internal/types"
)

func TestNaming(t *testing.T) {
	tests := []struct {
		name   string
		naming Naming
		qn     QualifiedName
		want   string
	}{
		{"default", DefaultNaming, QualifiedName{"ns", "bar_foo"}, "ns.bar_foo"},
		{"custom separator", Naming{Separator: "/"}, QualifiedName{"ns", "bar"}, "ns/bar"},
		{"reverse", Naming{Separator: "@", Reverse: true}, QualifiedName{"ns", "bar"}, "bar@ns"},
		{"empty separator falls back", Naming{}, QualifiedName{"ns", "bar"}, "ns.bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.naming.Format(tt.qn))

			back, ok := tt.naming.Parse(tt.want)
			assert.True(t, ok)
			assert.Equal(t, tt.qn, back)
		})
	}

	q, ok := DefaultNaming.Parse("bar")
	assert.False(t, ok)
	assert.Equal(t, QualifiedName{Identifier: "bar"}, q)
}

func TestQualifiedName_Less(t *testing.T) {
	assert.True(t, QualifiedName{"a", "z"}.Less(QualifiedName{"b", "a"}))
	assert.True(t, QualifiedName{"a", "a"}.Less(QualifiedName{"a", "b"}))
	assert.False(t, QualifiedName{"a", "b"}.Less(QualifiedName{"a", "b"}))
}

func TestMetadata_Merge(t *testing.T) {
	got := Metadata{Version: "2.0.0"}.Merge(Metadata{Author: "ana", Version: "1.0.0", Requirements: []string{"x"}})
	assert.Equal(t, Metadata{Author: "ana", Version: "2.0.0", Requirements: []string{"x"}}, got)
}

func TestSignature(t *testing.T) {
	sig := Signature{
		Params: []Param{
			{Name: "a", Type: types.Int},
			{Name: "b", Type: types.SequenceOf(types.String), HasDefault: true, Default: []any{"x"}},
		},
		Result: types.Int,
	}

	assert.Equal(t, "(a int, b []string = [x]) int", sig.String())
	assert.Equal(t, []string{"a"}, sig.Required())
	assert.Equal(t, []string{"a int\n", "b []string = [x]\n", "-> int\n"}, sig.Lines())

	p, ok := sig.Param("b")
	assert.True(t, ok)
	assert.True(t, p.HasDefault)

	_, ok = sig.Param("c")
	assert.False(t, ok)
}

func TestMapping_GetSet(t *testing.T) {
	m := &Mapping{}
	m.Set("a", &Scalar{Value: 1})
	m.Set("b", &Scalar{Value: 2})
	m.Set("a", &Scalar{Value: 3})

	assert.Len(t, m.Pairs, 2)

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v.(*Scalar).Value)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestClone(t *testing.T) {
	orig := FromValue(map[string]any{"list": []any{1, "x"}, "k": true})
	cp := Clone(orig)

	assert.Equal(t, orig, cp)

	cp.(*Mapping).Set("k", &Scalar{Value: false})
	v, _ := orig.(*Mapping).Get("k")
	assert.Equal(t, true, v.(*Scalar).Value)
}

func TestFromValue_SortsKeys(t *testing.T) {
	m := FromValue(map[string]any{"b": 1, "a": 2}).(*Mapping)
	assert.Equal(t, "a", m.Pairs[0].Key)
	assert.Equal(t, "b", m.Pairs[1].Key)
}

func TestPosition_String(t *testing.T) {
	assert.Equal(t, "-", Position{}.String())
	assert.Equal(t, "a.yaml", Position{File: "a.yaml"}.String())
	assert.Equal(t, "a.yaml:3:5", Position{File: "a.yaml", Line: 3, Column: 5}.String())
}

func TestToValue(t *testing.T) {
	in := map[string]any{"a": []any{1, map[string]any{"b": "c"}}, "n": nil}
	assert.Equal(t, in, ToValue(FromValue(in)))
	assert.Nil(t, ToValue(nil))
}
