package member

import (
	"github.com/cockroachdb/errors"

	"github.com/agentic-research/clrmeta/internal/blob"
	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// CustomAttribute is one attribute instance applied to a member.
type CustomAttribute struct {
	base
	parentRaw uint32
	ctorRaw   uint32
	valueIdx  uint32

	parent    relation.Lazy[Member]
	ctor      relation.Lazy[Member]
	arguments relation.Lazy[*AttributeArguments]
}

func newCustomAttribute(m *Module, tok metadata.Token, row metadata.CustomAttributeRow) *CustomAttribute {
	ca := &CustomAttribute{parentRaw: row.Parent, ctorRaw: row.Type, valueIdx: row.Value}
	ca.base.init(m, tok)
	return ca
}

// Parent is the member the attribute is applied to, found through the
// module's custom attribute index.
func (ca *CustomAttribute) Parent() Member {
	return ca.parent.Get(func() Member {
		owner, ok := ca.mod.CustomAttributeOwner(ca.tok.Rid)
		if !ok {
			return nil
		}
		mem, _ := lookupAs[Member](ca.mod, ca.tok, owner)
		return mem
	})
}

// Constructor is the MethodDef or MemberRef of the attribute's .ctor.
func (ca *CustomAttribute) Constructor() Member {
	return ca.ctor.Get(func() Member {
		return ca.mod.resolveCoded(metadata.CustomAttributeType, ca.ctorRaw, ca.tok)
	})
}

// AttributeType is the type declaring the constructor.
func (ca *CustomAttribute) AttributeType() Member {
	switch c := ca.Constructor().(type) {
	case *MethodDefinition:
		if t, ok := c.DeclaringType(); ok {
			return t
		}
	case *MemberReference:
		return c.Parent()
	}
	return nil
}

func (ca *CustomAttribute) String() string { return NameOf(ca.AttributeType()) }

// Value is the raw argument blob.
func (ca *CustomAttribute) Value() []byte { return ca.mod.blob(ca.tok, ca.valueIdx) }

// NamedArgument is a field or property assignment in an attribute blob.
type NamedArgument struct {
	IsField bool
	Name    string
	Value   any
}

// AttributeArguments are the decoded constructor arguments and named
// assignments of an attribute.
type AttributeArguments struct {
	Fixed []any
	Named []NamedArgument
}

// Arguments decodes the value blob against the constructor signature.
// Values are bool, integers, float32/64, string, nil, []any for arrays and
// the type name string for System.Type arguments.
func (ca *CustomAttribute) Arguments() (*AttributeArguments, bool) {
	args := ca.arguments.Get(func() *AttributeArguments {
		sig := ctorSignature(ca.Constructor())
		if sig == nil {
			return nil
		}
		data := ca.Value()
		if len(data) == 0 {
			return &AttributeArguments{}
		}
		args, err := decodeAttributeArgs(ca.mod, data, sig)
		if err != nil {
			ca.mod.report(diag.Wrap(ca.tok, errors.Wrap(err, "decode attribute arguments")))
			return nil
		}
		return args
	})
	return args, args != nil
}

func ctorSignature(ctor Member) *MethodSignature {
	switch c := ctor.(type) {
	case *MethodDefinition:
		return c.Signature()
	case *MemberReference:
		ms, _ := c.Signature().(*MethodSignature)
		return ms
	}
	return nil
}

type attrReader struct {
	m *Module
	r *blob.Reader
}

func decodeAttributeArgs(m *Module, data []byte, sig *MethodSignature) (*AttributeArguments, error) {
	ar := &attrReader{m: m, r: blob.NewReader(data)}
	prolog, err := ar.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if prolog != 0x0001 {
		return nil, errors.Newf("attribute prolog 0x%04X", prolog)
	}
	out := &AttributeArguments{}
	for _, p := range sig.Params {
		v, err := ar.fixedArg(p)
		if err != nil {
			return nil, err
		}
		out.Fixed = append(out.Fixed, v)
	}
	if ar.r.EOF() {
		return out, nil
	}
	n, err := ar.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	for range n {
		kind, err := ar.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if kind != 0x53 && kind != 0x54 {
			return nil, errors.Newf("named argument kind 0x%02X", kind)
		}
		et, err := ar.fieldOrPropType()
		if err != nil {
			return nil, err
		}
		name, _, err := ar.r.ReadSerString()
		if err != nil {
			return nil, err
		}
		v, err := ar.elem(et)
		if err != nil {
			return nil, err
		}
		out.Named = append(out.Named, NamedArgument{IsField: kind == 0x53, Name: name, Value: v})
	}
	return out, nil
}

// argType is the shape of a serialized value: an element type plus the
// element of an array.
type argType struct {
	et   ElementType
	elem *argType
}

func (ar *attrReader) fieldOrPropType() (argType, error) {
	b, err := ar.r.ReadByte()
	if err != nil {
		return argType{}, err
	}
	et := ElementType(b)
	switch et {
	case ElementSzArray:
		elem, err := ar.fieldOrPropType()
		if err != nil {
			return argType{}, err
		}
		return argType{et: et, elem: &elem}, nil
	case ElementEnum:
		// the enum's type name; its underlying type is not recorded, so
		// assume int32
		if _, _, err := ar.r.ReadSerString(); err != nil {
			return argType{}, err
		}
		return argType{et: ElementI4}, nil
	}
	return argType{et: et}, nil
}

// typeOf maps a constructor parameter type to its serialized shape.
func (ar *attrReader) typeOf(sig TypeSignature) (argType, error) {
	switch s := sig.(type) {
	case *CorLibTypeSig:
		if s.Type == ElementObject {
			return argType{et: ElementBoxed}, nil
		}
		return argType{et: s.Type}, nil
	case *ElementSig:
		if s.Kind == ElementSzArray {
			elem, err := ar.typeOf(s.Elem)
			if err != nil {
				return argType{}, err
			}
			return argType{et: ElementSzArray, elem: &elem}, nil
		}
	case *TypeDefOrRefSig:
		if NameOf(s.Type) == "System.Type" {
			return argType{et: ElementSystemType}, nil
		}
		if s.IsValueType {
			return argType{et: enumUnderlying(s.Type)}, nil
		}
	}
	return argType{}, errors.Newf("unsupported attribute parameter type %s", sigString(sig))
}

// enumUnderlying reads value__ of an enum defined in this module. Enums
// from other assemblies are taken as int32.
func enumUnderlying(t Member) ElementType {
	td, ok := t.(*TypeDefinition)
	if !ok {
		return ElementI4
	}
	for _, f := range td.Fields().Items() {
		if f.IsStatic() {
			continue
		}
		if s := f.Signature(); s != nil {
			if c, ok := s.Type.(*CorLibTypeSig); ok {
				return c.Type
			}
		}
	}
	return ElementI4
}

func (ar *attrReader) fixedArg(sig TypeSignature) (any, error) {
	t, err := ar.typeOf(sig)
	if err != nil {
		return nil, err
	}
	return ar.elem(t)
}

func (ar *attrReader) elem(t argType) (any, error) {
	r := ar.r
	switch t.et {
	case ElementBoolean:
		b, err := r.ReadByte()
		return b != 0, err
	case ElementChar:
		v, err := r.ReadUint16()
		return rune(v), err
	case ElementI1:
		b, err := r.ReadByte()
		return int8(b), err
	case ElementU1:
		return r.ReadByte()
	case ElementI2:
		v, err := r.ReadUint16()
		return int16(v), err
	case ElementU2:
		return r.ReadUint16()
	case ElementI4:
		v, err := r.ReadUint32()
		return int32(v), err
	case ElementU4:
		return r.ReadUint32()
	case ElementI8:
		v, err := r.ReadUint64()
		return int64(v), err
	case ElementU8:
		return r.ReadUint64()
	case ElementR4:
		return r.ReadFloat32()
	case ElementR8:
		return r.ReadFloat64()
	case ElementString, ElementSystemType:
		s, ok, err := r.ReadSerString()
		if err != nil || !ok {
			return nil, err
		}
		return s, nil
	case ElementBoxed:
		inner, err := ar.fieldOrPropType()
		if err != nil {
			return nil, err
		}
		return ar.elem(inner)
	case ElementSzArray:
		if t.elem == nil {
			return nil, errors.New("array without element type")
		}
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		if n == 0xFFFFFFFF {
			return nil, nil
		}
		if int(n) > r.Remaining() {
			return nil, errors.Newf("array of %d elements, %d bytes left", n, r.Remaining())
		}
		out := make([]any, 0, n)
		for range n {
			v, err := ar.elem(*t.elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, errors.Newf("unsupported attribute element type 0x%02X", byte(t.et))
}

// SecurityDeclaration is a declarative security permission set.
type SecurityDeclaration struct {
	base
	action    uint16
	parentRaw uint32
	permIdx   uint32

	parent relation.Lazy[Member]
}

func newSecurityDeclaration(m *Module, tok metadata.Token, row metadata.DeclSecurityRow) *SecurityDeclaration {
	s := &SecurityDeclaration{action: uint16(row.Action), parentRaw: row.Parent, permIdx: row.PermissionSet}
	s.base.init(m, tok)
	return s
}

func (s *SecurityDeclaration) Action() uint16 { return s.action }

func (s *SecurityDeclaration) Parent() Member {
	return s.parent.Get(func() Member {
		owner, ok := s.mod.SecurityDeclarationOwner(s.tok.Rid)
		if !ok {
			return nil
		}
		mem, _ := lookupAs[Member](s.mod, s.tok, owner)
		return mem
	})
}

func (s *SecurityDeclaration) PermissionSet() []byte { return s.mod.blob(s.tok, s.permIdx) }

// Constant is the default value of a field, parameter or property.
type Constant struct {
	base
	typ       ElementType
	parentRaw uint32
	valueIdx  uint32

	parent relation.Lazy[Member]
}

func newConstant(m *Module, tok metadata.Token, row metadata.ConstantRow) *Constant {
	c := &Constant{typ: ElementType(row.Type), parentRaw: row.Parent, valueIdx: row.Value}
	c.base.init(m, tok)
	return c
}

func (c *Constant) Type() ElementType { return c.typ }
func (c *Constant) Raw() []byte       { return c.mod.blob(c.tok, c.valueIdx) }

func (c *Constant) Parent() Member {
	return c.parent.Get(func() Member {
		owner, ok := c.mod.ConstantOwner(c.tok.Rid)
		if !ok {
			return nil
		}
		mem, _ := lookupAs[Member](c.mod, c.tok, owner)
		return mem
	})
}

// Value interprets the blob according to the constant's element type. A
// class-typed constant is the null reference and yields nil. Element types
// outside the constant set are an error.
func (c *Constant) Value() (any, error) {
	data := c.Raw()
	switch c.typ {
	case ElementString:
		if len(data)%2 != 0 {
			return nil, errors.Newf("constant %s: odd-length string blob", c.tok)
		}
		return blob.DecodeUTF16(data), nil
	case ElementClass:
		return nil, nil
	case ElementBoolean, ElementChar, ElementI1, ElementU1, ElementI2, ElementU2,
		ElementI4, ElementU4, ElementI8, ElementU8, ElementR4, ElementR8:
	default:
		return nil, errors.Newf("constant %s: element type 0x%02X", c.tok, byte(c.typ))
	}
	ar := &attrReader{m: c.mod, r: blob.NewReader(data)}
	v, err := ar.elem(argType{et: c.typ})
	if err != nil {
		return nil, errors.Wrapf(err, "constant %s", c.tok)
	}
	return v, nil
}

func constantOf(m *Module, owner metadata.Token) *Constant {
	rid, ok := m.Constant(owner)
	if !ok {
		return nil
	}
	c, _ := lookupAs[*Constant](m, owner, metadata.NewToken(metadata.TableConstant, rid))
	return c
}

func marshalOf(m *Module, owner metadata.Token) []byte {
	rid, ok := m.FieldMarshal(owner)
	if !ok {
		return nil
	}
	tok := metadata.NewToken(metadata.TableFieldMarshal, rid)
	row, err := metadata.RowAs[metadata.FieldMarshalRow](m.store, metadata.TableFieldMarshal, rid)
	if err != nil {
		m.report(diag.Wrap(tok, err))
		return nil
	}
	return m.blob(tok, row.NativeType)
}

func implMapOf(m *Module, owner metadata.Token) *ImplementationMap {
	rid, ok := m.ImplementationMap(owner)
	if !ok {
		return nil
	}
	im, _ := lookupAs[*ImplementationMap](m, owner, metadata.NewToken(metadata.TableImplMap, rid))
	return im
}
