package member

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

func TestSelfReferentialTypeSpecModifier(t *testing.T) {
	im := newImage()
	im.typeDef("", "<Module>", metadata.Token{}, 1, 1)
	list := im.typeDef("Acme", "List`1", metadata.Token{}, 1, 1)
	self := tok(metadata.TableTypeSpec, 1)
	im.Add(metadata.TypeSpecRow{Signature: im.Blob([]byte{
		byte(ElementGenericInst), byte(ElementClass), im.codedByte(t, list), 0x01,
		byte(ElementCModOpt), im.codedByte(t, self), byte(ElementI4),
	})})
	m, c := im.openCollecting(t)

	ts, err := m.Require(self)
	require.NoError(t, err)
	sig, ok := ts.(*TypeSpecification).Signature().(*GenericInstSig)
	require.True(t, ok)
	require.Len(t, sig.Args, 1)

	mod, ok := sig.Args[0].(*CustomModifierSig)
	require.True(t, ok)
	assert.Nil(t, mod.Modifier, "the modifier refers back to the TypeSpec being decoded")
	assert.Equal(t, &CorLibTypeSig{Type: ElementI4}, mod.Elem)
	assert.Equal(t, "Acme.List`1<System.Int32 modopt(<nil>)>", sig.String())
	assert.Zero(t, c.Len())
}

func TestSelfReferentialTypeSpecArgument(t *testing.T) {
	im := newImage()
	list := im.typeDef("Acme", "List`1", metadata.Token{}, 1, 1)
	self := tok(metadata.TableTypeSpec, 1)
	im.Add(metadata.TypeSpecRow{Signature: im.Blob([]byte{
		byte(ElementGenericInst), byte(ElementClass), im.codedByte(t, list), 0x01,
		byte(ElementClass), im.codedByte(t, self),
	})})
	m := im.open(t)

	ts, err := m.Require(self)
	require.NoError(t, err)
	sig, ok := ts.(*TypeSpecification).Signature().(*GenericInstSig)
	require.True(t, ok)
	require.Len(t, sig.Args, 1)
	assert.Nil(t, sig.Args[0])
}

func TestTypeSpecExpandsNestedSpec(t *testing.T) {
	im := newImage()
	list := im.typeDef("Acme", "List`1", metadata.Token{}, 1, 1)
	arr := im.Add(metadata.TypeSpecRow{Signature: im.Blob([]byte{byte(ElementSzArray), byte(ElementI4)})})
	inst := im.Add(metadata.TypeSpecRow{Signature: im.Blob([]byte{
		byte(ElementGenericInst), byte(ElementClass), im.codedByte(t, list), 0x01,
		byte(ElementClass), im.codedByte(t, arr),
	})})
	m := im.open(t)

	ts, err := m.Require(inst)
	require.NoError(t, err)
	assert.Equal(t, "Acme.List`1<System.Int32[]>", ts.(*TypeSpecification).FullName())
}

func TestMethodSignatureAndParameters(t *testing.T) {
	im := newImage()
	obj := im.typeRef(metadata.Token{}, "System", "Object")
	td := im.typeDef("Acme", "Widget", obj, 1, 1)
	// instance void Resize(int32, string[])
	im.method("Resize", 1, 0x20, 0x02, byte(ElementVoid), byte(ElementI4), byte(ElementSzArray), byte(ElementString))
	im.Add(metadata.ParamRow{Sequence: 1, Name: im.String("width")})
	im.Add(metadata.ParamRow{Sequence: 2, Name: im.String("labels")})
	m, c := im.openCollecting(t)

	w, err := m.Require(td)
	require.NoError(t, err)
	methods := w.(*TypeDefinition).Methods().Items()
	require.Len(t, methods, 1)
	md := methods[0]

	sig := md.Signature()
	require.NotNil(t, sig)
	assert.True(t, sig.HasThis())
	assert.Equal(t, "instance System.Void(System.Int32, System.String[])", sig.String())
	assert.Equal(t, -1, sig.SentinelIndex)
	assert.Equal(t, "Acme.Widget::Resize", md.FullName())

	params := md.Parameters().Items()
	require.Len(t, params, 2)
	assert.Equal(t, "labels", params[1].Name())
	owner, ok := params[1].Method()
	require.True(t, ok)
	assert.Same(t, md, owner)
	assert.Zero(t, c.Len())
}

func TestVarArgSentinel(t *testing.T) {
	im := newImage()
	sig := im.Blob([]byte{CallConvVarArg, 0x02, byte(ElementVoid), byte(ElementI4), byte(ElementSentinel), byte(ElementString)})
	im.Add(metadata.StandAloneSigRow{Signature: sig})
	m := im.open(t)

	sa, err := m.Require(tok(metadata.TableStandAloneSig, 1))
	require.NoError(t, err)
	ms, ok := sa.(*StandAloneSignature).Signature().(*MethodSignature)
	require.True(t, ok)
	assert.Len(t, ms.Params, 2)
	assert.Equal(t, 1, ms.SentinelIndex)
	assert.Equal(t, "System.Void(System.Int32, ..., System.String)", ms.String())
}

func TestLocalsSignature(t *testing.T) {
	im := newImage()
	im.Add(metadata.StandAloneSigRow{Signature: im.Blob([]byte{
		CallConvLocalSig, 0x02, byte(ElementI4), byte(ElementPinned), byte(ElementByRef), byte(ElementU1),
	})})
	m := im.open(t)

	sa, err := m.Require(tok(metadata.TableStandAloneSig, 1))
	require.NoError(t, err)
	locals, ok := sa.(*StandAloneSignature).Signature().([]TypeSignature)
	require.True(t, ok)
	require.Len(t, locals, 2)
	assert.Equal(t, "System.Byte& pinned", locals[1].String())
}

func TestTruncatedSignatureIsReported(t *testing.T) {
	im := newImage()
	td := im.typeDef("", "T", metadata.Token{}, 1, 1)
	// claims three parameters, carries one
	im.method("Broken", 1, 0x00, 0x03, byte(ElementVoid), byte(ElementI4))
	m, c := im.openCollecting(t)

	w, err := m.Require(td)
	require.NoError(t, err)
	md := w.(*TypeDefinition).Methods().Items()[0]
	assert.Nil(t, md.Signature())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, md.Token(), c.Errors()[0].Token)
	assert.Equal(t, "T::Broken", md.FullName())
}

func TestMemberReferenceSignatureKinds(t *testing.T) {
	im := newImage()
	obj := im.typeRef(metadata.Token{}, "System", "Console")
	parent := im.Coded(metadata.MemberRefParent, obj)
	im.Add(metadata.MemberRefRow{Parent: parent, Name: im.String("Out"), Signature: im.Blob([]byte{CallConvField, byte(ElementObject)})})
	im.Add(metadata.MemberRefRow{Parent: parent, Name: im.String("WriteLine"), Signature: im.Blob([]byte{0x00, 0x01, byte(ElementVoid), byte(ElementString)})})
	m := im.open(t)

	field, err := m.Require(tok(metadata.TableMemberRef, 1))
	require.NoError(t, err)
	assert.True(t, field.(*MemberReference).IsField())

	call, err := m.Require(tok(metadata.TableMemberRef, 2))
	require.NoError(t, err)
	mr := call.(*MemberReference)
	assert.False(t, mr.IsField())
	assert.Equal(t, "System.Console", NameOf(mr.Parent()))
	assert.Equal(t, "System.Console::WriteLine", mr.FullName())
}

func TestMethodSpecInstantiation(t *testing.T) {
	im := newImage()
	im.typeDef("", "T", metadata.Token{}, 1, 1)
	im.method("Make", 1, CallConvGeneric, 0x01, 0x00, byte(ElementMVar), 0x00)
	im.Add(metadata.MethodSpecRow{
		Method:        im.Coded(metadata.MethodDefOrRef, tok(metadata.TableMethod, 1)),
		Instantiation: im.Blob([]byte{CallConvGenericInst, 0x01, byte(ElementString)}),
	})
	m := im.open(t)

	ms, err := m.Require(tok(metadata.TableMethodSpec, 1))
	require.NoError(t, err)
	spec := ms.(*MethodSpecification)
	require.Len(t, spec.Instantiation(), 1)
	assert.Equal(t, "System.String", spec.Instantiation()[0].String())
	assert.Equal(t, "T::Make", spec.Name())

	target := spec.Method().(*MethodDefinition)
	assert.Equal(t, "!!0<1>()", target.Signature().String())
}
