package member

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/agentic-research/clrmeta/internal/blob"
	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/recursion"
)

// ElementType is the leading byte of a type in a signature blob
// (ECMA-335 II.23.1.16).
type ElementType byte

const (
	ElementEnd         ElementType = 0x00
	ElementVoid        ElementType = 0x01
	ElementBoolean     ElementType = 0x02
	ElementChar        ElementType = 0x03
	ElementI1          ElementType = 0x04
	ElementU1          ElementType = 0x05
	ElementI2          ElementType = 0x06
	ElementU2          ElementType = 0x07
	ElementI4          ElementType = 0x08
	ElementU4          ElementType = 0x09
	ElementI8          ElementType = 0x0A
	ElementU8          ElementType = 0x0B
	ElementR4          ElementType = 0x0C
	ElementR8          ElementType = 0x0D
	ElementString      ElementType = 0x0E
	ElementPtr         ElementType = 0x0F
	ElementByRef       ElementType = 0x10
	ElementValueType   ElementType = 0x11
	ElementClass       ElementType = 0x12
	ElementVar         ElementType = 0x13
	ElementArray       ElementType = 0x14
	ElementGenericInst ElementType = 0x15
	ElementTypedByRef  ElementType = 0x16
	ElementI           ElementType = 0x18
	ElementU           ElementType = 0x19
	ElementFnPtr       ElementType = 0x1B
	ElementObject      ElementType = 0x1C
	ElementSzArray     ElementType = 0x1D
	ElementMVar        ElementType = 0x1E
	ElementCModReqd    ElementType = 0x1F
	ElementCModOpt     ElementType = 0x20
	ElementInternal    ElementType = 0x21
	ElementSentinel    ElementType = 0x41
	ElementPinned      ElementType = 0x45

	// Only inside custom attribute blobs.
	ElementSystemType ElementType = 0x50
	ElementBoxed      ElementType = 0x51
	ElementEnum       ElementType = 0x55
)

var corLibTypeNames = map[ElementType]string{
	ElementVoid:       "Void",
	ElementBoolean:    "Boolean",
	ElementChar:       "Char",
	ElementI1:         "SByte",
	ElementU1:         "Byte",
	ElementI2:         "Int16",
	ElementU2:         "UInt16",
	ElementI4:         "Int32",
	ElementU4:         "UInt32",
	ElementI8:         "Int64",
	ElementU8:         "UInt64",
	ElementR4:         "Single",
	ElementR8:         "Double",
	ElementString:     "String",
	ElementTypedByRef: "TypedReference",
	ElementI:          "IntPtr",
	ElementU:          "UIntPtr",
	ElementObject:     "Object",
}

// TypeSignature is a decoded type inside a signature blob.
type TypeSignature interface {
	ElementType() ElementType
	String() string
}

// CorLibTypeSig is a primitive type defined by the core library.
type CorLibTypeSig struct {
	Type ElementType
}

func (s *CorLibTypeSig) ElementType() ElementType { return s.Type }
func (s *CorLibTypeSig) String() string         { return "System." + corLibTypeNames[s.Type] }

// TypeDefOrRefSig names a class or value type by TypeDef or TypeRef.
type TypeDefOrRefSig struct {
	Type        Member
	IsValueType bool
}

func (s *TypeDefOrRefSig) ElementType() ElementType {
	if s.IsValueType {
		return ElementValueType
	}
	return ElementClass
}

func (s *TypeDefOrRefSig) String() string { return NameOf(s.Type) }

// ElementSig wraps one element type: pointers, by-refs, single-dimension
// arrays and pinned locals.
type ElementSig struct {
	Kind ElementType
	Elem TypeSignature
}

func (s *ElementSig) ElementType() ElementType { return s.Kind }

func (s *ElementSig) String() string {
	inner := sigString(s.Elem)
	switch s.Kind {
	case ElementPtr:
		return inner + "*"
	case ElementByRef:
		return inner + "&"
	case ElementSzArray:
		return inner + "[]"
	case ElementPinned:
		return inner + " pinned"
	}
	return inner
}

// ArraySig is a general array with rank, sizes and lower bounds.
type ArraySig struct {
	Elem        TypeSignature
	Rank        uint32
	Sizes       []uint32
	LowerBounds []int32
}

func (s *ArraySig) ElementType() ElementType { return ElementArray }

func (s *ArraySig) String() string {
	dims := make([]string, s.Rank)
	for i := range dims {
		var lo int32
		if i < len(s.LowerBounds) {
			lo = s.LowerBounds[i]
		}
		switch {
		case i < len(s.Sizes):
			dims[i] = fmt.Sprintf("%d...%d", lo, lo+int32(s.Sizes[i])-1)
		case lo != 0:
			dims[i] = fmt.Sprintf("%d...", lo)
		}
	}
	return sigString(s.Elem) + "[" + strings.Join(dims, ",") + "]"
}

// GenericInstSig is a generic type applied to type arguments. Arguments
// that could not be resolved are nil.
type GenericInstSig struct {
	Generic     TypeSignature
	IsValueType bool
	Args        []TypeSignature
}

func (s *GenericInstSig) ElementType() ElementType { return ElementGenericInst }

func (s *GenericInstSig) String() string {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = sigString(a)
	}
	return sigString(s.Generic) + "<" + strings.Join(args, ", ") + ">"
}

// GenericParamSig refers to a type (!n) or method (!!n) generic parameter.
type GenericParamSig struct {
	Method bool
	Index  uint32
}

func (s *GenericParamSig) ElementType() ElementType {
	if s.Method {
		return ElementMVar
	}
	return ElementVar
}

func (s *GenericParamSig) String() string {
	if s.Method {
		return fmt.Sprintf("!!%d", s.Index)
	}
	return fmt.Sprintf("!%d", s.Index)
}

// CustomModifierSig is modreq/modopt applied to Elem. Modifier is nil when
// it could not be resolved.
type CustomModifierSig struct {
	Required bool
	Modifier Member
	Elem     TypeSignature
}

func (s *CustomModifierSig) ElementType() ElementType {
	if s.Required {
		return ElementCModReqd
	}
	return ElementCModOpt
}

func (s *CustomModifierSig) String() string {
	kw := "modopt"
	if s.Required {
		kw = "modreq"
	}
	return fmt.Sprintf("%s %s(%s)", sigString(s.Elem), kw, NameOf(s.Modifier))
}

// FnPtrSig is a function pointer type.
type FnPtrSig struct {
	Method *MethodSignature
}

func (s *FnPtrSig) ElementType() ElementType { return ElementFnPtr }
func (s *FnPtrSig) String() string           { return "method " + s.Method.String() }

// SentinelSig marks the start of the variable part of a vararg call site.
type SentinelSig struct{}

func (SentinelSig) ElementType() ElementType { return ElementSentinel }
func (SentinelSig) String() string           { return "..." }

func sigString(s TypeSignature) string {
	if s == nil {
		return "<?>"
	}
	return s.String()
}

// Calling convention bits of the first signature byte.
const (
	CallConvMask        = 0x0F
	CallConvDefault     = 0x00
	CallConvVarArg      = 0x05
	CallConvField       = 0x06
	CallConvLocalSig    = 0x07
	CallConvProperty    = 0x08
	CallConvGenericInst = 0x0A
	CallConvGeneric     = 0x10
	CallConvHasThis     = 0x20
	CallConvExplicit    = 0x40
)

// MethodSignature is a method definition, reference or function pointer
// signature. SentinelIndex is the position of the first vararg parameter
// or -1.
type MethodSignature struct {
	CallingConvention byte
	GenericParamCount uint32
	Return            TypeSignature
	Params            []TypeSignature
	SentinelIndex     int
}

func (s *MethodSignature) HasThis() bool { return s.CallingConvention&CallConvHasThis != 0 }

func (s *MethodSignature) String() string {
	params := make([]string, 0, len(s.Params)+1)
	for i, p := range s.Params {
		if i == s.SentinelIndex {
			params = append(params, "...")
		}
		params = append(params, sigString(p))
	}
	prefix := ""
	if s.HasThis() {
		prefix = "instance "
	}
	generic := ""
	if s.GenericParamCount > 0 {
		generic = fmt.Sprintf("<%d>", s.GenericParamCount)
	}
	return fmt.Sprintf("%s%s%s(%s)", prefix, sigString(s.Return), generic, strings.Join(params, ", "))
}

// FieldSignature is the type of a field.
type FieldSignature struct {
	Type TypeSignature
}

func (s *FieldSignature) String() string { return sigString(s.Type) }

// PropertySignature is the type and index parameters of a property.
type PropertySignature struct {
	HasThis bool
	Type    TypeSignature
	Params  []TypeSignature
}

func (s *PropertySignature) String() string {
	if len(s.Params) == 0 {
		return sigString(s.Type)
	}
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = sigString(p)
	}
	return sigString(s.Type) + " [" + strings.Join(params, ", ") + "]"
}

// sigReader decodes one blob. Its guard is shared with the TypeSpec
// expansions it triggers so a TypeSpec that refers to itself terminates.
type sigReader struct {
	m     *Module
	r     *blob.Reader
	guard *recursion.Guard
}

func newSigReader(m *Module, data []byte, guard *recursion.Guard) *sigReader {
	if guard == nil {
		guard = recursion.New()
	}
	return &sigReader{m: m, r: blob.NewReader(data), guard: guard}
}

func (s *sigReader) typeDefOrRef() (metadata.Token, error) {
	raw, err := s.r.ReadCompressedUint()
	if err != nil {
		return metadata.Token{}, err
	}
	tok, ok := s.m.store.DecodeIndex(metadata.TypeDefOrRef, raw)
	if !ok {
		return metadata.Token{}, errors.Newf("invalid TypeDefOrRef 0x%X in signature", raw)
	}
	return tok, nil
}

// typeRef resolves a TypeDefOrRef inside a signature. TypeSpecs are
// expanded in place; one that is already being expanded yields nil.
func (s *sigReader) typeRef(tok metadata.Token, valueType bool) (TypeSignature, error) {
	if tok.Table == metadata.TableTypeSpec {
		return s.expandTypeSpec(tok)
	}
	mem, ok := s.m.Lookup(tok)
	if !ok {
		return nil, errors.Newf("signature refers to unresolved %s", tok)
	}
	return &TypeDefOrRefSig{Type: mem, IsValueType: valueType}, nil
}

func (s *sigReader) expandTypeSpec(tok metadata.Token) (TypeSignature, error) {
	release, err := s.guard.Enter(tok)
	if err != nil {
		return nil, nil
	}
	defer release()
	row, err := metadata.RowAs[metadata.TypeSpecRow](s.m.store, tok.Table, tok.Rid)
	if err != nil {
		return nil, err
	}
	data, err := s.m.store.Blob(row.Signature)
	if err != nil {
		return nil, err
	}
	return newSigReader(s.m, data, s.guard).typeSig()
}

// modifierType resolves the type of a custom modifier. A TypeSpec that is
// already being expanded yields nil.
func (s *sigReader) modifierType(tok metadata.Token) Member {
	if tok.Table == metadata.TableTypeSpec && s.guard.Active(tok) {
		return nil
	}
	mem, _ := s.m.Lookup(tok)
	return mem
}

func (s *sigReader) typeSig() (TypeSignature, error) {
	b, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	et := ElementType(b)
	if _, ok := corLibTypeNames[et]; ok {
		return &CorLibTypeSig{Type: et}, nil
	}
	switch et {
	case ElementClass, ElementValueType:
		tok, err := s.typeDefOrRef()
		if err != nil {
			return nil, err
		}
		return s.typeRef(tok, et == ElementValueType)
	case ElementPtr, ElementByRef, ElementSzArray, ElementPinned:
		elem, err := s.typeSig()
		if err != nil {
			return nil, err
		}
		return &ElementSig{Kind: et, Elem: elem}, nil
	case ElementCModReqd, ElementCModOpt:
		tok, err := s.typeDefOrRef()
		if err != nil {
			return nil, err
		}
		mod := s.modifierType(tok)
		elem, err := s.typeSig()
		if err != nil {
			return nil, err
		}
		return &CustomModifierSig{Required: et == ElementCModReqd, Modifier: mod, Elem: elem}, nil
	case ElementVar, ElementMVar:
		idx, err := s.r.ReadCompressedUint()
		if err != nil {
			return nil, err
		}
		return &GenericParamSig{Method: et == ElementMVar, Index: idx}, nil
	case ElementGenericInst:
		return s.genericInst()
	case ElementArray:
		return s.array()
	case ElementFnPtr:
		ms, err := s.methodSig()
		if err != nil {
			return nil, err
		}
		return &FnPtrSig{Method: ms}, nil
	case ElementSentinel:
		return SentinelSig{}, nil
	}
	return nil, errors.Newf("unexpected element type 0x%02X at offset %d", b, s.r.Offset()-1)
}

func (s *sigReader) genericInst() (TypeSignature, error) {
	kind, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if ElementType(kind) != ElementClass && ElementType(kind) != ElementValueType {
		return nil, errors.Newf("generic instance of element type 0x%02X", kind)
	}
	tok, err := s.typeDefOrRef()
	if err != nil {
		return nil, err
	}
	generic, err := s.typeRef(tok, ElementType(kind) == ElementValueType)
	if err != nil {
		return nil, err
	}
	n, err := s.r.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	if int(n) > s.r.Remaining() {
		return nil, errors.Newf("generic instance claims %d arguments, %d bytes left", n, s.r.Remaining())
	}
	inst := &GenericInstSig{Generic: generic, IsValueType: ElementType(kind) == ElementValueType}
	for range n {
		arg, err := s.typeSig()
		if err != nil {
			return nil, err
		}
		inst.Args = append(inst.Args, arg)
	}
	return inst, nil
}

func (s *sigReader) array() (TypeSignature, error) {
	elem, err := s.typeSig()
	if err != nil {
		return nil, err
	}
	a := &ArraySig{Elem: elem}
	if a.Rank, err = s.r.ReadCompressedUint(); err != nil {
		return nil, err
	}
	nSizes, err := s.r.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	if int(nSizes) > s.r.Remaining() {
		return nil, errors.Newf("array claims %d sizes, %d bytes left", nSizes, s.r.Remaining())
	}
	for range nSizes {
		v, err := s.r.ReadCompressedUint()
		if err != nil {
			return nil, err
		}
		a.Sizes = append(a.Sizes, v)
	}
	nBounds, err := s.r.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	if int(nBounds) > s.r.Remaining() {
		return nil, errors.Newf("array claims %d lower bounds, %d bytes left", nBounds, s.r.Remaining())
	}
	for range nBounds {
		v, err := s.r.ReadCompressedInt()
		if err != nil {
			return nil, err
		}
		a.LowerBounds = append(a.LowerBounds, v)
	}
	return a, nil
}

// typeList reads n types. A sentinel is not a type; its position is
// returned instead, or -1.
func (s *sigReader) typeList(n uint32) ([]TypeSignature, int, error) {
	if int(n) > s.r.Remaining() {
		return nil, -1, errors.Newf("signature claims %d entries, %d bytes left", n, s.r.Remaining())
	}
	sentinel := -1
	out := make([]TypeSignature, 0, n)
	for uint32(len(out)) < n {
		t, err := s.typeSig()
		if err != nil {
			return nil, -1, err
		}
		if _, ok := t.(SentinelSig); ok {
			sentinel = len(out)
			continue
		}
		out = append(out, t)
	}
	return out, sentinel, nil
}

func (s *sigReader) methodSig() (*MethodSignature, error) {
	cc, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	ms := &MethodSignature{CallingConvention: cc, SentinelIndex: -1}
	if cc&CallConvGeneric != 0 {
		if ms.GenericParamCount, err = s.r.ReadCompressedUint(); err != nil {
			return nil, err
		}
	}
	n, err := s.r.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	if ms.Return, err = s.typeSig(); err != nil {
		return nil, err
	}
	if ms.Params, ms.SentinelIndex, err = s.typeList(n); err != nil {
		return nil, err
	}
	return ms, nil
}

func (s *sigReader) fieldSig() (*FieldSignature, error) {
	cc, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if cc&CallConvMask != CallConvField {
		return nil, errors.Newf("field signature starts with 0x%02X", cc)
	}
	t, err := s.typeSig()
	if err != nil {
		return nil, err
	}
	return &FieldSignature{Type: t}, nil
}

func (s *sigReader) propertySig() (*PropertySignature, error) {
	cc, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if cc&CallConvMask != CallConvProperty {
		return nil, errors.Newf("property signature starts with 0x%02X", cc)
	}
	n, err := s.r.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	ps := &PropertySignature{HasThis: cc&CallConvHasThis != 0}
	if ps.Type, err = s.typeSig(); err != nil {
		return nil, err
	}
	if ps.Params, _, err = s.typeList(n); err != nil {
		return nil, err
	}
	return ps, nil
}

// prefixedList reads a calling-convention byte that must equal want, a
// count and that many types: local variable and method instantiation
// signatures.
func (s *sigReader) prefixedList(want byte) ([]TypeSignature, error) {
	cc, err := s.r.ReadByte()
	if err != nil {
		return nil, err
	}
	if cc != want {
		return nil, errors.Newf("signature starts with 0x%02X, want 0x%02X", cc, want)
	}
	n, err := s.r.ReadCompressedUint()
	if err != nil {
		return nil, err
	}
	types, _, err := s.typeList(n)
	return types, err
}

// decodeSig reads blob idx of from and runs fn over it. Failures are
// reported against from and yield the zero value.
func decodeSig[T any](m *Module, from metadata.Token, idx uint32, guard *recursion.Guard, fn func(*sigReader) (T, error)) T {
	var zero T
	data := m.blob(from, idx)
	if data == nil {
		return zero
	}
	v, err := fn(newSigReader(m, data, guard))
	if err != nil {
		m.report(diag.Wrap(from, errors.Wrap(err, "decode signature")))
		return zero
	}
	return v
}
