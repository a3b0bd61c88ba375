package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/clrmeta/internal/exports"
	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/rowstore"
)

const acmeFixture = `{
  "tables": {
    "Module": [{"Name": "acme.dll", "Mvid": "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}],
    "TypeRef": [
      {"ResolutionScope": "AssemblyRef:1", "Namespace": "System", "Name": "Object"},
      {"ResolutionScope": "AssemblyRef:1", "Namespace": "System", "Name": "ObsoleteAttribute"}
    ],
    "TypeDef": [
      {"Name": "<Module>", "FieldList": 1, "MethodList": 1},
      {"Flags": 1, "Namespace": "Acme", "Name": "Widget", "Extends": "TypeRef:1", "FieldList": 1, "MethodList": 1},
      {"Flags": 2, "Name": "Inner", "Extends": "TypeRef:1", "FieldList": 2, "MethodList": 3}
    ],
    "Field": [
      {"Flags": 1, "Name": "count", "Signature": "06 08"},
      {"Flags": 1, "Name": "secret", "Signature": "06 0E"}
    ],
    "Method": [
      {"Flags": 134, "Name": "Resize", "Signature": "20 01 01 08", "ParamList": 1},
      {"Flags": 134, "Name": "Resize", "Signature": "20 02 01 08 08", "ParamList": 2},
      {"Flags": 22, "Name": "Run", "Signature": "00 00 01", "ParamList": 2}
    ],
    "Param": [{"Sequence": 1, "Name": "width"}],
    "MemberRef": [{"Parent": "TypeRef:2", "Name": ".ctor", "Signature": "20 01 01 0E"}],
    "CustomAttribute": [{"Parent": "TypeDef:2", "Type": "MemberRef:1", "Value": "01 00 03 6f 6c 64 00 00"}],
    "Assembly": [{"MajorVersion": 1, "MinorVersion": 2, "Name": "Acme"}],
    "AssemblyRef": [{"MajorVersion": 4, "Name": "mscorlib", "PublicKeyOrToken": "b7 7a 5c 56 19 34 e0 89"}],
    "ExportedType": [{"Flags": 2097152, "Namespace": "Acme", "Name": "Gadget", "Implementation": "AssemblyRef:1"}],
    "NestedClass": [{"NestedClass": 3, "EnclosingClass": 2}]
  }
}`

func openAcme(t *testing.T) *member.Module {
	t.Helper()
	s, err := rowstore.LoadFixture([]byte(acmeFixture))
	require.NoError(t, err)
	m, err := member.Open(s)
	require.NoError(t, err)
	return m
}

type exportMap map[metadata.Token]exports.ExportInfo

func (e exportMap) ExportInfo(tok metadata.Token) (exports.ExportInfo, bool) {
	info, ok := e[tok]
	return info, ok
}

func read(t *testing.T, g Graph, id string) string {
	t.Helper()
	n, err := g.GetNode(id)
	require.NoError(t, err)
	require.False(t, n.Mode.IsDir(), "%s is a directory", id)
	return string(n.Data)
}

func TestProjectionRoot(t *testing.T) {
	p := NewProjection(openAcme(t))

	root, err := p.GetNode("/")
	require.NoError(t, err)
	assert.True(t, root.Mode.IsDir())

	children, err := p.ListChildren("")
	require.NoError(t, err)
	assert.Equal(t, []string{"module", "assembly", "types", "references", "exported"}, children)
	assert.Equal(t, children, root.Children)

	mod := read(t, p, "module")
	assert.Contains(t, mod, "name: acme.dll\n")
	assert.Contains(t, mod, "mvid: 6ba7b810-9dad-11d1-80b4-00c04fd430c8\n")
	assert.Contains(t, mod, "corlib: mscorlib, Version=4.0.0.0")
	assert.Contains(t, read(t, p, "assembly"), "full_name: Acme, Version=1.2.0.0, Culture=neutral, PublicKeyToken=null\n")
}

func TestProjectionTypes(t *testing.T) {
	p := NewProjection(openAcme(t))

	types, err := p.ListChildren("/types")
	require.NoError(t, err)
	assert.Equal(t, []string{"types/<Module>", "types/Acme.Widget"}, types)

	dir, err := p.ListChildren("types/Acme.Widget/")
	require.NoError(t, err)
	assert.Len(t, dir, 7)
	assert.Contains(t, dir, "types/Acme.Widget/nested")

	info := read(t, p, "types/Acme.Widget/info")
	assert.Contains(t, info, "full_name: Acme.Widget\n")
	assert.Contains(t, info, "base: System.Object\n")
	assert.Contains(t, info, "methods: 2\n")
	assert.Contains(t, info, "nested_types: 1\n")

	n, err := p.GetNode("types/Acme.Widget/info")
	require.NoError(t, err)
	assert.Equal(t, "TypeDef:0x0002", string(n.Properties["token"]))
}

func TestProjectionOverloadsGetSuffixes(t *testing.T) {
	p := NewProjection(openAcme(t))

	methods, err := p.ListChildren("types/Acme.Widget/methods")
	require.NoError(t, err)
	assert.Equal(t, []string{"types/Acme.Widget/methods/Resize", "types/Acme.Widget/methods/Resize~2"}, methods)

	first := read(t, p, "types/Acme.Widget/methods/Resize")
	assert.Contains(t, first, "signature: instance System.Void(System.Int32)\n")
	assert.Contains(t, first, "parameters:\n  1 width\n")
	second := read(t, p, "types/Acme.Widget/methods/Resize~2")
	assert.Contains(t, second, "signature: instance System.Void(System.Int32, System.Int32)\n")
	assert.NotContains(t, second, "parameters:")
}

func TestProjectionNestedTypes(t *testing.T) {
	p := NewProjection(openAcme(t))

	nested, err := p.ListChildren("types/Acme.Widget/nested")
	require.NoError(t, err)
	assert.Equal(t, []string{"types/Acme.Widget/nested/Inner"}, nested)

	field := read(t, p, "types/Acme.Widget/nested/Inner/fields/secret")
	assert.Contains(t, field, "full_name: Acme.Widget+Inner::secret\n")
	assert.Contains(t, field, "type: System.String\n")

	info := read(t, p, "types/Acme.Widget/nested/Inner/info")
	assert.Contains(t, info, "declaring_type: Acme.Widget\n")
}

func TestProjectionAttributes(t *testing.T) {
	p := NewProjection(openAcme(t))

	attrs, err := p.ListChildren("types/Acme.Widget/attributes")
	require.NoError(t, err)
	require.Equal(t, []string{"types/Acme.Widget/attributes/System.ObsoleteAttribute"}, attrs)

	body := read(t, p, attrs[0])
	assert.Contains(t, body, "constructor: System.ObsoleteAttribute::.ctor\n")
	assert.Contains(t, body, "parent: Acme.Widget\n")
	assert.Contains(t, body, "fixed:\n  \"old\"\n")
}

func TestProjectionReferencesAndForwarders(t *testing.T) {
	p := NewProjection(openAcme(t))

	ref := read(t, p, "references/mscorlib")
	assert.Contains(t, ref, "full_name: mscorlib, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b77a5c561934e089\n")
	assert.Contains(t, ref, "public_key_token: b77a5c561934e089\n")

	fwd := read(t, p, "exported/Acme.Gadget")
	assert.Contains(t, fwd, "forwarder: true\n")
	assert.Contains(t, fwd, "resolution_scope: mscorlib, Version=4.0.0.0")
}

func TestProjectionExports(t *testing.T) {
	m := openAcme(t)
	p := NewProjection(m, WithExports(exportMap{
		metadata.NewToken(metadata.TableMethod, 3): {Name: "RunNative", Ordinal: 1},
	}))

	assert.Contains(t, read(t, p, "types/Acme.Widget/nested/Inner/methods/Run"), "export: RunNative\n")
	assert.NotContains(t, read(t, p, "types/Acme.Widget/methods/Resize"), "export:")
}

func TestDescribeMatchesTree(t *testing.T) {
	m := openAcme(t)
	p := NewProjection(m)

	widget, err := m.Require(metadata.NewToken(metadata.TableTypeDef, 2))
	require.NoError(t, err)
	body, ok := p.Describe(widget)
	require.True(t, ok)
	assert.Equal(t, read(t, p, "types/Acme.Widget/info"), string(body))

	param, err := m.Require(metadata.NewToken(metadata.TableParam, 1))
	require.NoError(t, err)
	_, ok = p.Describe(param)
	assert.False(t, ok)
}

func TestProjectionNotFound(t *testing.T) {
	p := NewProjection(openAcme(t))

	for _, id := range []string{"nope", "types/Acme.Gizmo", "module/child", "types/Acme.Widget/fields/missing"} {
		_, err := p.GetNode(id)
		assert.ErrorIs(t, err, ErrNotFound, id)
		_, err = p.ListChildren(id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	_, err := p.ReadContent("types/Acme.Gizmo/info", make([]byte, 8), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectionReadContent(t *testing.T) {
	p := NewProjection(openAcme(t))
	whole := read(t, p, "types/Acme.Widget/fields/count")

	buf := make([]byte, 6)
	n, err := p.ReadContent("types/Acme.Widget/fields/count", buf, 7)
	require.NoError(t, err)
	assert.Equal(t, whole[7:13], string(buf[:n]))

	n, err = p.ReadContent("types/Acme.Widget/fields/count", buf, int64(len(whole)))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.ReadContent("types", buf, 0)
	require.NoError(t, err)
	assert.Zero(t, n, "directories have no content")
}

func TestProjectionCaching(t *testing.T) {
	p := NewProjection(openAcme(t), WithCacheSize(2))

	read(t, p, "module")
	read(t, p, "types/Acme.Widget/info")
	assert.Equal(t, 2, p.content.len())

	p.Invalidate("/module")
	_, ok := p.content.get("module")
	assert.False(t, ok)
	_, ok = p.content.get("types/Acme.Widget/info")
	assert.True(t, ok)

	read(t, p, "types/Acme.Widget/fields/count")
	read(t, p, "module")
	assert.Equal(t, 2, p.content.len())
	_, ok = p.content.get("types/Acme.Widget/info")
	assert.False(t, ok, "oldest entry evicted")
}

func TestFIFO(t *testing.T) {
	c := newFIFO[int](2)
	c.put("a", 1)
	c.put("b", 2)
	c.put("a", 10)
	v, _ := c.get("a")
	assert.Equal(t, 10, v)

	c.put("c", 3)
	_, ok := c.get("a")
	assert.False(t, ok)

	c.evict("b")
	c.evict("missing")
	assert.Equal(t, 1, c.len())
	c.put("d", 4)
	c.put("e", 5)
	_, ok = c.get("c")
	assert.False(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestEntriesSanitize(t *testing.T) {
	es := entries([]string{"a/b", "", "x", "x", "x"}, func(int) target { return target{} })
	names := make([]string, len(es))
	for i, e := range es {
		names[i] = e.name
	}
	assert.Equal(t, []string{"a_b", "_", "x", "x~2", "x~3"}, names)
}

func TestHotSwapGraph(t *testing.T) {
	first := NewProjection(openAcme(t))
	h := NewHotSwapGraph(first)
	assert.Contains(t, read(t, h, "module"), "name: acme.dll\n")

	s, err := rowstore.LoadFixture([]byte(`{"tables": {"Module": [{"Name": "other.dll"}]}}`))
	require.NoError(t, err)
	m, err := member.Open(s)
	require.NoError(t, err)

	prev := h.Swap(NewProjection(m))
	assert.Same(t, first, prev)
	assert.Contains(t, read(t, h, "module"), "name: other.dll\n")

	_, err = h.GetNode("types/Acme.Widget")
	assert.ErrorIs(t, err, ErrNotFound)
}
