package member

import (
	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/recursion"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// TypeAttributes bits (ECMA-335 II.23.1.15).
const (
	TypeVisibilityMask    = 0x00000007
	TypeNotPublic         = 0x00000000
	TypePublic            = 0x00000001
	TypeNestedPublic      = 0x00000002
	TypeInterface         = 0x00000020
	TypeAbstract          = 0x00000080
	TypeSealed            = 0x00000100
	TypeSpecialName       = 0x00000400
	TypeImport            = 0x00001000
	TypeSerializable      = 0x00002000
	TypeBeforeFieldInit   = 0x00100000
	TypeForwarder         = 0x00200000
	TypeLayoutMask        = 0x00000018
	TypeSequentialLayout  = 0x00000008
	TypeExplicitLayout    = 0x00000010
	TypeStringFormatMask  = 0x00030000
	TypeClassSemanticMask = 0x00000020
)

func joinName(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// TypeReference is a type defined in another scope.
type TypeReference struct {
	base
	name      string
	namespace string
	scopeRaw  uint32

	scope    relation.Lazy[Member]
	fullName relation.Lazy[string]
}

func newTypeReference(m *Module, tok metadata.Token, row metadata.TypeRefRow) *TypeReference {
	t := &TypeReference{
		name:      m.str(tok, row.Name),
		namespace: m.str(tok, row.Namespace),
		scopeRaw:  row.ResolutionScope,
	}
	t.base.init(m, tok)
	return t
}

func (t *TypeReference) Name() string      { return t.name }
func (t *TypeReference) Namespace() string { return t.namespace }

// ResolutionScope is the module, module reference, assembly reference or
// enclosing type reference the type lives in.
func (t *TypeReference) ResolutionScope() Member {
	return t.scope.Get(func() Member {
		return t.mod.resolveCoded(metadata.ResolutionScope, t.scopeRaw, t.tok)
	})
}

func (t *TypeReference) FullName() string {
	return t.fullName.Get(func() string { return t.fullNameGuarded(recursion.New()) })
}

func (t *TypeReference) fullNameGuarded(g *recursion.Guard) string {
	release, err := g.Enter(t.tok)
	if err != nil {
		t.mod.report(diag.Wrap(t.tok, err))
		return t.name
	}
	defer release()
	if outer, ok := t.ResolutionScope().(*TypeReference); ok {
		return outer.fullNameGuarded(g) + "+" + t.name
	}
	return joinName(t.namespace, t.name)
}

func (t *TypeReference) String() string { return t.FullName() }

// TypeDefinition is a type declared in this module.
type TypeDefinition struct {
	base
	flags     uint32
	name      string
	namespace string
	extends   uint32

	baseType      relation.Lazy[Member]
	fullName      relation.Lazy[string]
	fields        relation.Lazy[*OwnedList[*FieldDefinition]]
	methods       relation.Lazy[*OwnedList[*MethodDefinition]]
	properties    relation.Lazy[*OwnedList[*PropertyDefinition]]
	events        relation.Lazy[*OwnedList[*EventDefinition]]
	nested        relation.Lazy[*OwnedList[*TypeDefinition]]
	genericParams relation.Lazy[*OwnedList[*GenericParameter]]
	interfaces    relation.Lazy[*OwnedList[*InterfaceImplementation]]
	securityDecls relation.Lazy[*OwnedList[*SecurityDeclaration]]
	methodImpls   relation.Lazy[[]MethodImplementation]
	classLayout   relation.Lazy[*ClassLayout]
}

func newTypeDefinition(m *Module, tok metadata.Token, row metadata.TypeDefRow) *TypeDefinition {
	t := &TypeDefinition{
		flags:     row.Flags,
		name:      m.str(tok, row.Name),
		namespace: m.str(tok, row.Namespace),
		extends:   row.Extends,
	}
	t.base.init(m, tok)
	return t
}

func (t *TypeDefinition) Name() string      { return t.name }
func (t *TypeDefinition) Namespace() string { return t.namespace }
func (t *TypeDefinition) Flags() uint32     { return t.flags }

func (t *TypeDefinition) IsInterface() bool { return t.flags&TypeClassSemanticMask == TypeInterface }
func (t *TypeDefinition) IsAbstract() bool  { return t.flags&TypeAbstract != 0 }
func (t *TypeDefinition) IsSealed() bool    { return t.flags&TypeSealed != 0 }
func (t *TypeDefinition) IsPublic() bool {
	v := t.flags & TypeVisibilityMask
	return v == TypePublic || v == TypeNestedPublic
}

// IsNested reports whether the type has an enclosing type.
func (t *TypeDefinition) IsNested() bool {
	_, ok := t.mod.EnclosingType(t.tok.Rid)
	return ok
}

// IsEnum and IsValueType look at the base type's name only.
func (t *TypeDefinition) IsEnum() bool { return NameOf(t.BaseType()) == "System.Enum" }

func (t *TypeDefinition) IsValueType() bool {
	n := NameOf(t.BaseType())
	return n == "System.ValueType" || n == "System.Enum"
}

// BaseType is nil for System.Object, interfaces and <Module>.
func (t *TypeDefinition) BaseType() Member {
	return t.baseType.Get(func() Member {
		return t.mod.resolveCoded(metadata.TypeDefOrRef, t.extends, t.tok)
	})
}

// DeclaringType is the enclosing type of a nested type.
func (t *TypeDefinition) DeclaringType() (*TypeDefinition, bool) {
	rid, ok := t.mod.EnclosingType(t.tok.Rid)
	if !ok {
		return nil, false
	}
	return lookupAs[*TypeDefinition](t.mod, t.tok, metadata.NewToken(metadata.TableTypeDef, rid))
}

// FullName is "Namespace.Name", with "+Name" appended per nesting level.
// A nesting cycle is reported and cut at the type that closes it.
func (t *TypeDefinition) FullName() string {
	return t.fullName.Get(func() string { return t.fullNameGuarded(recursion.New()) })
}

func (t *TypeDefinition) fullNameGuarded(g *recursion.Guard) string {
	release, err := g.Enter(t.tok)
	if err != nil {
		t.mod.report(diag.Wrap(t.tok, err))
		return t.name
	}
	defer release()
	if outer, ok := t.DeclaringType(); ok {
		return outer.fullNameGuarded(g) + "+" + t.name
	}
	return joinName(t.namespace, t.name)
}

func (t *TypeDefinition) String() string { return t.FullName() }

func (t *TypeDefinition) Fields() *OwnedList[*FieldDefinition] {
	return t.fields.Get(func() *OwnedList[*FieldDefinition] {
		return ownedRange(t.mod, t.tok, metadata.TableField, t.mod.FieldRange(t.tok.Rid), as[*FieldDefinition])
	})
}

func (t *TypeDefinition) Methods() *OwnedList[*MethodDefinition] {
	return t.methods.Get(func() *OwnedList[*MethodDefinition] {
		return ownedRange(t.mod, t.tok, metadata.TableMethod, t.mod.MethodRange(t.tok.Rid), as[*MethodDefinition])
	})
}

func (t *TypeDefinition) Properties() *OwnedList[*PropertyDefinition] {
	return t.properties.Get(func() *OwnedList[*PropertyDefinition] {
		return ownedRange(t.mod, t.tok, metadata.TableProperty, t.mod.PropertyRange(t.tok.Rid), as[*PropertyDefinition])
	})
}

func (t *TypeDefinition) Events() *OwnedList[*EventDefinition] {
	return t.events.Get(func() *OwnedList[*EventDefinition] {
		return ownedRange(t.mod, t.tok, metadata.TableEvent, t.mod.EventRange(t.tok.Rid), as[*EventDefinition])
	})
}

func (t *TypeDefinition) NestedTypes() *OwnedList[*TypeDefinition] {
	return t.nested.Get(func() *OwnedList[*TypeDefinition] {
		return ownedFrom(t.mod, t.tok, metadata.TableTypeDef, t.mod.NestedTypes(t.tok.Rid), as[*TypeDefinition])
	})
}

func (t *TypeDefinition) GenericParameters() *OwnedList[*GenericParameter] {
	return t.genericParams.Get(func() *OwnedList[*GenericParameter] {
		return ownedFrom(t.mod, t.tok, metadata.TableGenericParam, t.mod.GenericParameters(t.tok), as[*GenericParameter])
	})
}

func (t *TypeDefinition) Interfaces() *OwnedList[*InterfaceImplementation] {
	return t.interfaces.Get(func() *OwnedList[*InterfaceImplementation] {
		return ownedFrom(t.mod, t.tok, metadata.TableInterfaceImpl, t.mod.InterfaceImplementations(t.tok.Rid), as[*InterfaceImplementation])
	})
}

func (t *TypeDefinition) SecurityDeclarations() []*SecurityDeclaration {
	return t.securityDecls.Get(func() *OwnedList[*SecurityDeclaration] {
		return ownedFrom(t.mod, t.tok, metadata.TableDeclSecurity, t.mod.SecurityDeclarations(t.tok), as[*SecurityDeclaration])
	}).Items()
}

// ClassLayout returns the explicit packing and size of the type, if any.
func (t *TypeDefinition) ClassLayout() (*ClassLayout, bool) {
	l := t.classLayout.Get(func() *ClassLayout {
		rid, ok := t.mod.ClassLayout(t.tok.Rid)
		if !ok {
			return nil
		}
		l, _ := lookupAs[*ClassLayout](t.mod, t.tok, metadata.NewToken(metadata.TableClassLayout, rid))
		return l
	})
	return l, l != nil
}

// MethodImplementation pairs an interface or base method with the body
// that overrides it.
type MethodImplementation struct {
	Declaration Member
	Body        Member
}

func (t *TypeDefinition) MethodImplementations() []MethodImplementation {
	return t.methodImpls.Get(func() []MethodImplementation {
		var out []MethodImplementation
		for _, rid := range t.mod.MethodImplementations(t.tok.Rid) {
			tok := metadata.NewToken(metadata.TableMethodImpl, rid)
			row, err := metadata.RowAs[metadata.MethodImplRow](t.mod.store, metadata.TableMethodImpl, rid)
			if err != nil {
				t.mod.report(diag.Wrap(tok, err))
				continue
			}
			out = append(out, MethodImplementation{
				Declaration: t.mod.resolveCoded(metadata.MethodDefOrRef, row.MethodDeclaration, tok),
				Body:        t.mod.resolveCoded(metadata.MethodDefOrRef, row.MethodBody, tok),
			})
		}
		return out
	})
}

// TypeSpecification is a constructed type described by a signature blob.
type TypeSpecification struct {
	base
	sigIdx uint32

	signature relation.Lazy[TypeSignature]
}

func newTypeSpecification(m *Module, tok metadata.Token, row metadata.TypeSpecRow) *TypeSpecification {
	t := &TypeSpecification{sigIdx: row.Signature}
	t.base.init(m, tok)
	return t
}

// Signature decodes the type. References back to this TypeSpec from
// inside its own signature decode to nil.
func (t *TypeSpecification) Signature() TypeSignature {
	return t.signature.Get(func() TypeSignature {
		g := recursion.New()
		release, _ := g.Enter(t.tok)
		defer release()
		return decodeSig(t.mod, t.tok, t.sigIdx, g, (*sigReader).typeSig)
	})
}

func (t *TypeSpecification) Name() string     { return sigString(t.Signature()) }
func (t *TypeSpecification) FullName() string { return sigString(t.Signature()) }
func (t *TypeSpecification) String() string   { return t.FullName() }

// ExportedType is a type this assembly forwards to or exports from
// another file or assembly.
type ExportedType struct {
	base
	flags     uint32
	typeDefID uint32
	name      string
	namespace string
	implRaw   uint32

	impl     relation.Lazy[Member]
	scope    relation.Lazy[Member]
	fullName relation.Lazy[string]
}

func newExportedType(m *Module, tok metadata.Token, row metadata.ExportedTypeRow) *ExportedType {
	e := &ExportedType{
		flags:     row.Flags,
		typeDefID: row.TypeDefId,
		name:      m.str(tok, row.Name),
		namespace: m.str(tok, row.Namespace),
		implRaw:   row.Implementation,
	}
	e.base.init(m, tok)
	return e
}

func (e *ExportedType) Name() string      { return e.name }
func (e *ExportedType) Namespace() string { return e.namespace }
func (e *ExportedType) Flags() uint32     { return e.flags }
func (e *ExportedType) TypeDefID() uint32 { return e.typeDefID }
func (e *ExportedType) IsForwarder() bool { return e.flags&TypeForwarder != 0 }
func (e *ExportedType) String() string    { return e.FullName() }

// Implementation is the File, AssemblyRef or enclosing ExportedType.
func (e *ExportedType) Implementation() Member {
	return e.impl.Get(func() Member {
		return e.mod.resolveCoded(metadata.Implementation, e.implRaw, e.tok)
	})
}

// ResolutionScope follows the implementation chain through enclosing
// exported types to the File or AssemblyRef at its end. A chain that
// loops back on itself yields nil.
func (e *ExportedType) ResolutionScope() Member {
	return e.scope.Get(func() Member {
		g := recursion.New()
		var cur Member = e
		for {
			et, ok := cur.(*ExportedType)
			if !ok {
				return cur
			}
			if _, err := g.Enter(et.tok); err != nil {
				e.mod.report(diag.Wrap(e.tok, err))
				return nil
			}
			cur = et.Implementation()
		}
	})
}

func (e *ExportedType) FullName() string {
	return e.fullName.Get(func() string { return e.fullNameGuarded(recursion.New()) })
}

func (e *ExportedType) fullNameGuarded(g *recursion.Guard) string {
	release, err := g.Enter(e.tok)
	if err != nil {
		return e.name
	}
	defer release()
	if outer, ok := e.Implementation().(*ExportedType); ok {
		return outer.fullNameGuarded(g) + "+" + e.name
	}
	return joinName(e.namespace, e.name)
}

// ClassLayout is the explicit packing size and instance size of a type.
type ClassLayout struct {
	base
	packingSize uint16
	classSize   uint32
	parent      uint32
}

func newClassLayout(m *Module, tok metadata.Token, row metadata.ClassLayoutRow) *ClassLayout {
	l := &ClassLayout{packingSize: uint16(row.PackingSize), classSize: row.ClassSize, parent: row.Parent}
	l.base.init(m, tok)
	return l
}

func (l *ClassLayout) PackingSize() uint16 { return l.packingSize }
func (l *ClassLayout) ClassSize() uint32   { return l.classSize }

func (l *ClassLayout) Parent() (*TypeDefinition, bool) {
	return lookupAs[*TypeDefinition](l.mod, l.tok, metadata.NewToken(metadata.TableTypeDef, l.parent))
}

// InterfaceImplementation records that a type implements an interface.
type InterfaceImplementation struct {
	base
	class        uint32
	interfaceRaw uint32

	iface relation.Lazy[Member]
}

func newInterfaceImplementation(m *Module, tok metadata.Token, row metadata.InterfaceImplRow) *InterfaceImplementation {
	i := &InterfaceImplementation{class: row.Class, interfaceRaw: row.Interface}
	i.base.init(m, tok)
	return i
}

func (i *InterfaceImplementation) Class() (*TypeDefinition, bool) {
	return lookupAs[*TypeDefinition](i.mod, i.tok, metadata.NewToken(metadata.TableTypeDef, i.class))
}

func (i *InterfaceImplementation) Interface() Member {
	return i.iface.Get(func() Member {
		return i.mod.resolveCoded(metadata.TypeDefOrRef, i.interfaceRaw, i.tok)
	})
}
