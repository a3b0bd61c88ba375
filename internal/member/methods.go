package member

import (
	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// Field and method attribute bits used by accessors.
const (
	FieldStatic       = 0x0010
	FieldLiteral      = 0x0040
	FieldHasFieldRVA  = 0x0100
	MethodStatic      = 0x0010
	MethodVirtual     = 0x0040
	MethodAbstract    = 0x0400
	MethodPInvokeImpl = 0x2000
	MemberAccessMask  = 0x0007
	MemberPublic      = 0x0006
)

// FieldDefinition is a field declared by a type in this module.
type FieldDefinition struct {
	base
	flags  uint16
	name   string
	sigIdx uint32

	signature relation.Lazy[*FieldSignature]
	constant  relation.Lazy[*Constant]
	implMap   relation.Lazy[*ImplementationMap]
	marshal   relation.Lazy[[]byte]
}

func newFieldDefinition(m *Module, tok metadata.Token, row metadata.FieldRow) *FieldDefinition {
	f := &FieldDefinition{flags: uint16(row.Flags), name: m.str(tok, row.Name), sigIdx: row.Signature}
	f.base.init(m, tok)
	return f
}

func (f *FieldDefinition) Name() string   { return f.name }
func (f *FieldDefinition) Flags() uint16  { return f.flags }
func (f *FieldDefinition) IsStatic() bool { return f.flags&FieldStatic != 0 }
func (f *FieldDefinition) IsLiteral() bool {
	return f.flags&FieldLiteral != 0
}

func (f *FieldDefinition) FullName() string {
	if t, ok := f.DeclaringType(); ok {
		return t.FullName() + "::" + f.name
	}
	return f.name
}

func (f *FieldDefinition) String() string {
	return sigString(f.typeOrNil()) + " " + f.FullName()
}

func (f *FieldDefinition) typeOrNil() TypeSignature {
	if s := f.Signature(); s != nil {
		return s.Type
	}
	return nil
}

func (f *FieldDefinition) Signature() *FieldSignature {
	return f.signature.Get(func() *FieldSignature {
		return decodeSig(f.mod, f.tok, f.sigIdx, nil, (*sigReader).fieldSig)
	})
}

// DeclaringType is found through the owning type's field range.
func (f *FieldDefinition) DeclaringType() (*TypeDefinition, bool) {
	rid, ok := f.mod.FieldOwner(f.tok.Rid)
	if !ok {
		return nil, false
	}
	return lookupAs[*TypeDefinition](f.mod, f.tok, metadata.NewToken(metadata.TableTypeDef, rid))
}

func (f *FieldDefinition) Constant() (*Constant, bool) {
	c := f.constant.Get(func() *Constant { return constantOf(f.mod, f.tok) })
	return c, c != nil
}

// RVA of the field's initial data, for fields with HasFieldRVA.
func (f *FieldDefinition) RVA() (uint32, bool) {
	rid, ok := f.mod.FieldRva(f.tok.Rid)
	if !ok {
		return 0, false
	}
	row, err := metadata.RowAs[metadata.FieldRvaRow](f.mod.store, metadata.TableFieldRva, rid)
	if err != nil {
		f.mod.report(diag.Wrap(metadata.NewToken(metadata.TableFieldRva, rid), err))
		return 0, false
	}
	return row.RVA, true
}

// Offset is the explicit layout offset of the field.
func (f *FieldDefinition) Offset() (uint32, bool) {
	rid, ok := f.mod.FieldLayout(f.tok.Rid)
	if !ok {
		return 0, false
	}
	row, err := metadata.RowAs[metadata.FieldLayoutRow](f.mod.store, metadata.TableFieldLayout, rid)
	if err != nil {
		f.mod.report(diag.Wrap(metadata.NewToken(metadata.TableFieldLayout, rid), err))
		return 0, false
	}
	return row.Offset, true
}

// MarshalDescriptor returns the raw native type blob, or nil.
func (f *FieldDefinition) MarshalDescriptor() []byte {
	return f.marshal.Get(func() []byte { return marshalOf(f.mod, f.tok) })
}

func (f *FieldDefinition) ImplementationMap() (*ImplementationMap, bool) {
	im := f.implMap.Get(func() *ImplementationMap { return implMapOf(f.mod, f.tok) })
	return im, im != nil
}

// MethodDefinition is a method declared by a type in this module.
type MethodDefinition struct {
	base
	rva       uint32
	implFlags uint16
	flags     uint16
	name      string
	sigIdx    uint32

	signature     relation.Lazy[*MethodSignature]
	params        relation.Lazy[*OwnedList[*ParameterDefinition]]
	genericParams relation.Lazy[*OwnedList[*GenericParameter]]
	securityDecls relation.Lazy[*OwnedList[*SecurityDeclaration]]
	implMap       relation.Lazy[*ImplementationMap]
	semantics     relation.Lazy[*MethodSemantics]
}

func newMethodDefinition(m *Module, tok metadata.Token, row metadata.MethodRow) *MethodDefinition {
	md := &MethodDefinition{
		rva:       row.RVA,
		implFlags: uint16(row.ImplFlags),
		flags:     uint16(row.Flags),
		name:      m.str(tok, row.Name),
		sigIdx:    row.Signature,
	}
	md.base.init(m, tok)
	return md
}

func (md *MethodDefinition) Name() string       { return md.name }
func (md *MethodDefinition) RVA() uint32        { return md.rva }
func (md *MethodDefinition) Flags() uint16      { return md.flags }
func (md *MethodDefinition) ImplFlags() uint16  { return md.implFlags }
func (md *MethodDefinition) IsStatic() bool     { return md.flags&MethodStatic != 0 }
func (md *MethodDefinition) IsVirtual() bool    { return md.flags&MethodVirtual != 0 }
func (md *MethodDefinition) IsAbstract() bool   { return md.flags&MethodAbstract != 0 }
func (md *MethodDefinition) IsPInvoke() bool    { return md.flags&MethodPInvokeImpl != 0 }
func (md *MethodDefinition) IsConstructor() bool {
	return md.name == ".ctor" || md.name == ".cctor"
}

func (md *MethodDefinition) FullName() string {
	if t, ok := md.DeclaringType(); ok {
		return t.FullName() + "::" + md.name
	}
	return md.name
}

func (md *MethodDefinition) String() string {
	sig := md.Signature()
	if sig == nil {
		return md.FullName()
	}
	return md.FullName() + " " + sig.String()
}

func (md *MethodDefinition) Signature() *MethodSignature {
	return md.signature.Get(func() *MethodSignature {
		return decodeSig(md.mod, md.tok, md.sigIdx, nil, (*sigReader).methodSig)
	})
}

func (md *MethodDefinition) DeclaringType() (*TypeDefinition, bool) {
	rid, ok := md.mod.MethodOwner(md.tok.Rid)
	if !ok {
		return nil, false
	}
	return lookupAs[*TypeDefinition](md.mod, md.tok, metadata.NewToken(metadata.TableTypeDef, rid))
}

func (md *MethodDefinition) Parameters() *OwnedList[*ParameterDefinition] {
	return md.params.Get(func() *OwnedList[*ParameterDefinition] {
		return ownedRange(md.mod, md.tok, metadata.TableParam, md.mod.ParamRange(md.tok.Rid), as[*ParameterDefinition])
	})
}

func (md *MethodDefinition) GenericParameters() *OwnedList[*GenericParameter] {
	return md.genericParams.Get(func() *OwnedList[*GenericParameter] {
		return ownedFrom(md.mod, md.tok, metadata.TableGenericParam, md.mod.GenericParameters(md.tok), as[*GenericParameter])
	})
}

func (md *MethodDefinition) SecurityDeclarations() []*SecurityDeclaration {
	return md.securityDecls.Get(func() *OwnedList[*SecurityDeclaration] {
		return ownedFrom(md.mod, md.tok, metadata.TableDeclSecurity, md.mod.SecurityDeclarations(md.tok), as[*SecurityDeclaration])
	}).Items()
}

func (md *MethodDefinition) ImplementationMap() (*ImplementationMap, bool) {
	im := md.implMap.Get(func() *ImplementationMap { return implMapOf(md.mod, md.tok) })
	return im, im != nil
}

// Semantics returns the property or event accessor record this method is
// part of.
func (md *MethodDefinition) Semantics() (*MethodSemantics, bool) {
	s := md.semantics.Get(func() *MethodSemantics {
		tok, ok := md.mod.MethodSemantics(md.tok.Rid)
		if !ok {
			return nil
		}
		s, _ := lookupAs[*MethodSemantics](md.mod, md.tok, tok)
		return s
	})
	return s, s != nil
}

// ParameterDefinition carries the name and attributes of one parameter.
// Sequence 0 is the return value.
type ParameterDefinition struct {
	base
	flags    uint16
	sequence uint16
	name     string

	constant relation.Lazy[*Constant]
	marshal  relation.Lazy[[]byte]
}

func newParameterDefinition(m *Module, tok metadata.Token, row metadata.ParamRow) *ParameterDefinition {
	p := &ParameterDefinition{flags: uint16(row.Flags), sequence: uint16(row.Sequence), name: m.str(tok, row.Name)}
	p.base.init(m, tok)
	return p
}

func (p *ParameterDefinition) Name() string     { return p.name }
func (p *ParameterDefinition) Flags() uint16    { return p.flags }
func (p *ParameterDefinition) Sequence() uint16 { return p.sequence }

// Method is the method whose parameter range holds this row.
func (p *ParameterDefinition) Method() (*MethodDefinition, bool) {
	rid, ok := p.mod.ParamOwner(p.tok.Rid)
	if !ok {
		return nil, false
	}
	return lookupAs[*MethodDefinition](p.mod, p.tok, metadata.NewToken(metadata.TableMethod, rid))
}

func (p *ParameterDefinition) Constant() (*Constant, bool) {
	c := p.constant.Get(func() *Constant { return constantOf(p.mod, p.tok) })
	return c, c != nil
}

func (p *ParameterDefinition) MarshalDescriptor() []byte {
	return p.marshal.Get(func() []byte { return marshalOf(p.mod, p.tok) })
}

// MemberReference refers to a field or method of another type.
type MemberReference struct {
	base
	parentRaw uint32
	name      string
	sigIdx    uint32

	parent    relation.Lazy[Member]
	signature relation.Lazy[any]
}

func newMemberReference(m *Module, tok metadata.Token, row metadata.MemberRefRow) *MemberReference {
	r := &MemberReference{parentRaw: row.Parent, name: m.str(tok, row.Name), sigIdx: row.Signature}
	r.base.init(m, tok)
	return r
}

func (r *MemberReference) Name() string { return r.name }

// Parent is the TypeDef, TypeRef, TypeSpec, ModuleRef or MethodDef the
// member is looked up in.
func (r *MemberReference) Parent() Member {
	return r.parent.Get(func() Member {
		return r.mod.resolveCoded(metadata.MemberRefParent, r.parentRaw, r.tok)
	})
}

func (r *MemberReference) FullName() string {
	return NameOf(r.Parent()) + "::" + r.name
}

func (r *MemberReference) String() string { return r.FullName() }

// Signature is a *FieldSignature or a *MethodSignature, or nil.
func (r *MemberReference) Signature() any {
	return r.signature.Get(func() any {
		data := r.mod.blob(r.tok, r.sigIdx)
		if len(data) == 0 {
			return nil
		}
		if data[0]&CallConvMask == CallConvField {
			if s := decodeSig(r.mod, r.tok, r.sigIdx, nil, (*sigReader).fieldSig); s != nil {
				return s
			}
			return nil
		}
		if s := decodeSig(r.mod, r.tok, r.sigIdx, nil, (*sigReader).methodSig); s != nil {
			return s
		}
		return nil
	})
}

// IsField reports whether the reference names a field.
func (r *MemberReference) IsField() bool {
	_, ok := r.Signature().(*FieldSignature)
	return ok
}

// StandAloneSignature is a local variable list or a call-site signature.
type StandAloneSignature struct {
	base
	sigIdx uint32

	signature relation.Lazy[any]
}

func newStandAloneSignature(m *Module, tok metadata.Token, row metadata.StandAloneSigRow) *StandAloneSignature {
	s := &StandAloneSignature{sigIdx: row.Signature}
	s.base.init(m, tok)
	return s
}

// Signature is a []TypeSignature for locals, a *MethodSignature for call
// sites, or nil.
func (s *StandAloneSignature) Signature() any {
	return s.signature.Get(func() any {
		data := s.mod.blob(s.tok, s.sigIdx)
		if len(data) == 0 {
			return nil
		}
		if data[0] == CallConvLocalSig {
			locals := decodeSig(s.mod, s.tok, s.sigIdx, nil, func(r *sigReader) ([]TypeSignature, error) {
				return r.prefixedList(CallConvLocalSig)
			})
			if locals == nil {
				return nil
			}
			return locals
		}
		if ms := decodeSig(s.mod, s.tok, s.sigIdx, nil, (*sigReader).methodSig); ms != nil {
			return ms
		}
		return nil
	})
}

// MethodSpecification instantiates a generic method.
type MethodSpecification struct {
	base
	methodRaw uint32
	instIdx   uint32

	method        relation.Lazy[Member]
	instantiation relation.Lazy[[]TypeSignature]
}

func newMethodSpecification(m *Module, tok metadata.Token, row metadata.MethodSpecRow) *MethodSpecification {
	s := &MethodSpecification{methodRaw: row.Method, instIdx: row.Instantiation}
	s.base.init(m, tok)
	return s
}

func (s *MethodSpecification) Method() Member {
	return s.method.Get(func() Member {
		return s.mod.resolveCoded(metadata.MethodDefOrRef, s.methodRaw, s.tok)
	})
}

func (s *MethodSpecification) Instantiation() []TypeSignature {
	return s.instantiation.Get(func() []TypeSignature {
		return decodeSig(s.mod, s.tok, s.instIdx, nil, func(r *sigReader) ([]TypeSignature, error) {
			return r.prefixedList(CallConvGenericInst)
		})
	})
}

func (s *MethodSpecification) Name() string { return NameOf(s.Method()) }
