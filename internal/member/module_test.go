package member

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/recursion"
	"github.com/agentic-research/clrmeta/internal/rowstore"
)

func TestOpenRequiresModuleRow(t *testing.T) {
	_, err := Open(nil)
	assert.Error(t, err)

	s, err := rowstore.NewBuilder().Build()
	require.NoError(t, err)
	_, err = Open(s)
	assert.Error(t, err)
}

func TestOpenReadsModuleRow(t *testing.T) {
	m := newImage().open(t)
	assert.Equal(t, "test.dll", m.Name())
	assert.Equal(t, testMvid, m.Mvid())

	self, ok := m.Lookup(tok(metadata.TableModule, 1))
	require.True(t, ok)
	assert.Same(t, m, self)
}

func TestLookupIdentity(t *testing.T) {
	im := newImage()
	td := im.typeDef("Acme", "Widget", metadata.Token{}, 1, 1)
	im.field("a", 0x06, 0x08)
	m := im.open(t)

	first, ok := m.Lookup(td)
	require.True(t, ok)
	for range 5 {
		again, ok := m.Lookup(td)
		require.True(t, ok)
		assert.Same(t, first, again)
	}

	f := first.(*TypeDefinition).Fields().Items()
	require.Len(t, f, 1)
	direct, ok := m.Lookup(tok(metadata.TableField, 1))
	require.True(t, ok)
	assert.Same(t, direct, f[0])
}

func TestConcurrentRequireBuildsOnce(t *testing.T) {
	im := newImage()
	td := im.typeDef("Acme", "Widget", metadata.Token{}, 1, 1)
	s, err := im.Build()
	require.NoError(t, err)
	m, err := Open(slowStore{RowStore: s, delay: 5 * time.Millisecond})
	require.NoError(t, err)

	const callers = 32
	got := make([]Member, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			mem, err := m.Require(td)
			got[i] = mem
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, mem := range got[1:] {
		assert.Same(t, got[0], mem)
	}
	assert.True(t, m.factory.Cached(td))
}

func TestOutOfRangeTokens(t *testing.T) {
	im := newImage()
	im.typeDef("", "<Module>", metadata.Token{}, 1, 1)
	m := im.open(t)

	beyond := tok(metadata.TableTypeDef, 2)
	_, ok := m.Lookup(beyond)
	assert.False(t, ok)

	_, err := m.Require(beyond)
	assert.True(t, errors.Is(err, ErrUnresolvedToken))

	_, ok = m.Lookup(tok(metadata.TableTypeDef, 0))
	assert.False(t, ok)
	_, ok = m.Lookup(tok(metadata.TableFieldPtr, 1))
	assert.False(t, ok, "pointer tables have no member kind")
	_, ok = m.Lookup(tok(metadata.TableUserString, 1))
	assert.False(t, ok)
}

func TestFieldRangesEndToEnd(t *testing.T) {
	im := newImage()
	a := im.typeDef("Acme", "A", metadata.Token{}, 1, 1)
	b := im.typeDef("Acme", "B", metadata.Token{}, 3, 1)
	c := im.typeDef("Acme", "C", metadata.Token{}, 5, 1)
	for _, n := range []string{"a1", "a2", "b1", "b2"} {
		im.field(n, 0x06, 0x08)
	}
	m := im.open(t)

	assert.Equal(t, metadata.RidRange{Start: 1, End: 3}, m.FieldRange(a.Rid))
	assert.Equal(t, metadata.RidRange{Start: 3, End: 5}, m.FieldRange(b.Rid))
	assert.True(t, m.FieldRange(c.Rid).Empty())

	owner, ok := m.FieldOwner(2)
	require.True(t, ok)
	assert.Equal(t, a.Rid, owner)
	owner, ok = m.FieldOwner(4)
	require.True(t, ok)
	assert.Equal(t, b.Rid, owner)

	ta, err := m.Require(a)
	require.NoError(t, err)
	fields := ta.(*TypeDefinition).Fields().Items()
	require.Len(t, fields, 2)
	assert.Equal(t, "Acme.A::a2", fields[1].FullName())

	decl, ok := fields[1].DeclaringType()
	require.True(t, ok)
	assert.Same(t, ta, decl)

	fieldOwner, ok := fields[0].Owner()
	require.True(t, ok)
	assert.Equal(t, a, fieldOwner)
}

func TestOwnedListRejectsSecondOwner(t *testing.T) {
	im := newImage()
	a := im.typeDef("", "A", metadata.Token{}, 1, 1)
	b := im.typeDef("", "B", metadata.Token{}, 2, 1)
	im.field("x", 0x06, 0x08)
	m := im.open(t)

	f, ok := lookupAs[*FieldDefinition](m, a, tok(metadata.TableField, 1))
	require.True(t, ok)

	first := newOwnedList[*FieldDefinition](a)
	require.NoError(t, first.Add(f))
	assert.NoError(t, newOwnedList[*FieldDefinition](a).Add(f), "same owner may claim again")
	assert.True(t, errors.Is(first.Add(f), ErrAlreadyOwned), "duplicate in one list")

	second := newOwnedList[*FieldDefinition](b)
	assert.True(t, errors.Is(second.Add(f), ErrAlreadyOwned))
	assert.Zero(t, second.Len())
	assert.True(t, first.Contains(f))
}

func TestStrictModeLatches(t *testing.T) {
	im := newImage()
	// Extends names TypeRef 9, which does not exist
	td := im.Add(metadata.TypeDefRow{Name: im.String("Broken"), Extends: (9 << 2) | 1, FieldList: 1, MethodList: 1})
	im.typeDef("", "Fine", metadata.Token{}, 1, 1)
	strict := diag.NewStrict(nil)
	m := im.open(t, WithListener(strict))

	broken, err := m.Require(td)
	require.NoError(t, err)
	assert.Nil(t, broken.(*TypeDefinition).BaseType())

	var bad *diag.BadImageError
	require.True(t, errors.As(m.Err(), &bad))
	assert.Equal(t, td, bad.Token)

	_, ok := m.Lookup(tok(metadata.TableTypeDef, 2))
	assert.False(t, ok, "lookups stop once the latch trips")
	_, err = m.Require(tok(metadata.TableTypeDef, 2))
	assert.True(t, errors.As(err, &bad))
}

func TestCollectModeContinues(t *testing.T) {
	im := newImage()
	td := im.Add(metadata.TypeDefRow{Name: im.String("Broken"), Extends: (9 << 2) | 1, FieldList: 1, MethodList: 1})
	m, c := im.openCollecting(t)

	broken, err := m.Require(td)
	require.NoError(t, err)
	assert.Nil(t, broken.(*TypeDefinition).BaseType())
	assert.Equal(t, 1, c.Len())
	assert.NoError(t, m.Err())

	_, ok := m.Lookup(td)
	assert.True(t, ok)
}

func TestNestedFullName(t *testing.T) {
	im := newImage()
	outer := im.typeDef("Acme", "Outer", metadata.Token{}, 1, 1)
	inner := im.typeDef("", "Inner", metadata.Token{}, 1, 1)
	im.Add(metadata.NestedClassRow{NestedClass: inner.Rid, EnclosingClass: outer.Rid})
	m := im.open(t)

	ti, err := m.Require(inner)
	require.NoError(t, err)
	assert.Equal(t, "Acme.Outer+Inner", ti.(*TypeDefinition).FullName())
	assert.True(t, ti.(*TypeDefinition).IsNested())

	top := m.TopLevelTypes()
	require.Len(t, top, 1)
	assert.Equal(t, outer, top[0].Token())

	nested := top[0].NestedTypes().Items()
	require.Len(t, nested, 1)
	assert.Same(t, ti, nested[0])

	found, ok := m.FindType("Acme.Outer+Inner")
	require.True(t, ok)
	assert.Same(t, ti, found)
}

func TestNestingCycleTerminates(t *testing.T) {
	im := newImage()
	a := im.typeDef("", "A", metadata.Token{}, 1, 1)
	b := im.typeDef("", "B", metadata.Token{}, 1, 1)
	im.Add(metadata.NestedClassRow{NestedClass: a.Rid, EnclosingClass: b.Rid})
	im.Add(metadata.NestedClassRow{NestedClass: b.Rid, EnclosingClass: a.Rid})
	m, c := im.openCollecting(t)

	ta, err := m.Require(a)
	require.NoError(t, err)
	assert.Equal(t, "A+B+A", ta.(*TypeDefinition).FullName())

	var cycles int
	for _, e := range c.Errors() {
		if errors.Is(e, recursion.ErrCycle) {
			cycles++
		}
	}
	assert.Equal(t, 1, cycles)
}

func TestExportedTypeChainCycle(t *testing.T) {
	im := newImage()
	im.Add(metadata.ExportedTypeRow{
		Name:           im.String("Loop1"),
		Implementation: im.Coded(metadata.Implementation, tok(metadata.TableExportedType, 2)),
	})
	im.Add(metadata.ExportedTypeRow{
		Name:           im.String("Loop2"),
		Implementation: im.Coded(metadata.Implementation, tok(metadata.TableExportedType, 1)),
	})
	ref := im.Add(metadata.AssemblyRefRow{MajorVersion: 1, Name: im.String("Lib")})
	im.Add(metadata.ExportedTypeRow{
		Flags:          TypeForwarder,
		Namespace:      im.String("Lib"),
		Name:           im.String("Moved"),
		Implementation: im.Coded(metadata.Implementation, ref),
	})
	m, c := im.openCollecting(t)

	loop, err := m.Require(tok(metadata.TableExportedType, 1))
	require.NoError(t, err)
	assert.Nil(t, loop.(*ExportedType).ResolutionScope())
	assert.NotZero(t, c.Len())

	moved, err := m.Require(tok(metadata.TableExportedType, 3))
	require.NoError(t, err)
	et := moved.(*ExportedType)
	assert.True(t, et.IsForwarder())
	assert.Equal(t, "Lib.Moved", et.FullName())
	scope := et.ResolutionScope()
	require.NotNil(t, scope)
	assert.Equal(t, ref, scope.Token())
}

func TestCorLibPicksNewestReference(t *testing.T) {
	im := newImage()
	im.Add(metadata.AssemblyRefRow{MajorVersion: 2, Name: im.String("mscorlib")})
	newest := im.Add(metadata.AssemblyRefRow{MajorVersion: 4, Name: im.String("mscorlib")})
	im.Add(metadata.AssemblyRefRow{MajorVersion: 9, Name: im.String("Other")})
	m := im.open(t)

	lib, ok := m.CorLib()
	require.True(t, ok)
	assert.Equal(t, newest, lib.Token())
	assert.False(t, m.IsCorLib())
	assert.Equal(t, "mscorlib, Version=4.0.0.0, Culture=neutral, PublicKeyToken=null",
		lib.(*AssemblyReference).FullName())
}

func TestCorLibIsSelf(t *testing.T) {
	im := newImage()
	im.Add(metadata.AssemblyRow{MajorVersion: 8, Name: im.String("System.Private.CoreLib")})
	m := im.open(t)

	lib, ok := m.CorLib()
	require.True(t, ok)
	a, ok := m.Assembly()
	require.True(t, ok)
	assert.Same(t, a, lib)
	assert.True(t, m.IsCorLib())
	assert.Contains(t, m.String(), "System.Private.CoreLib, Version=8.0.0.0")
}

func TestResolveAll(t *testing.T) {
	im := newImage()
	obj := im.typeRef(metadata.Token{}, "System", "Object")
	im.typeDef("", "<Module>", metadata.Token{}, 1, 1)
	im.typeDef("Acme", "Widget", obj, 1, 1)
	im.field("count", 0x06, 0x08)
	im.method("Run", 1, 0x20, 0x00, 0x01)
	im.Add(metadata.RawRow{Kind: metadata.TableFieldPtr, Cols: []uint32{1}})
	m, c := im.openCollecting(t)

	// module, typeref, two typedefs, field, method
	n, err := m.ResolveAll(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Zero(t, c.Len())

	w, ok := m.FindType("Acme.Widget")
	require.True(t, ok)
	assert.Equal(t, "System.Object", NameOf(w.BaseType()))
	assert.True(t, m.factory.Cached(tok(metadata.TableMethod, 1)))
}

func TestResolveAllCancelled(t *testing.T) {
	im := newImage()
	for i := range 50 {
		im.typeDef("", string(rune('A'+i%26)), metadata.Token{}, 1, 1)
	}
	m := im.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ResolveAll(ctx, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
