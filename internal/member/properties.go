package member

import (
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// MethodSemanticsAttributes bits.
const (
	SemanticsSetter   = 0x0001
	SemanticsGetter   = 0x0002
	SemanticsOther    = 0x0004
	SemanticsAddOn    = 0x0008
	SemanticsRemoveOn = 0x0010
	SemanticsFire     = 0x0020
)

// PropertyDefinition is a property declared by a type.
type PropertyDefinition struct {
	base
	flags  uint16
	name   string
	sigIdx uint32

	signature relation.Lazy[*PropertySignature]
	semantics relation.Lazy[*OwnedList[*MethodSemantics]]
	constant  relation.Lazy[*Constant]
}

func newPropertyDefinition(m *Module, tok metadata.Token, row metadata.PropertyRow) *PropertyDefinition {
	p := &PropertyDefinition{flags: uint16(row.Flags), name: m.str(tok, row.Name), sigIdx: row.Type}
	p.base.init(m, tok)
	return p
}

func (p *PropertyDefinition) Name() string  { return p.name }
func (p *PropertyDefinition) Flags() uint16 { return p.flags }

func (p *PropertyDefinition) Signature() *PropertySignature {
	return p.signature.Get(func() *PropertySignature {
		return decodeSig(p.mod, p.tok, p.sigIdx, nil, (*sigReader).propertySig)
	})
}

// DeclaringType is found through the PropertyMap range of the parent.
func (p *PropertyDefinition) DeclaringType() (*TypeDefinition, bool) {
	rid, ok := p.mod.PropertyOwner(p.tok.Rid)
	if !ok {
		return nil, false
	}
	return lookupAs[*TypeDefinition](p.mod, p.tok, metadata.NewToken(metadata.TableTypeDef, rid))
}

func (p *PropertyDefinition) FullName() string {
	if t, ok := p.DeclaringType(); ok {
		return t.FullName() + "::" + p.name
	}
	return p.name
}

func (p *PropertyDefinition) Semantics() *OwnedList[*MethodSemantics] {
	return p.semantics.Get(func() *OwnedList[*MethodSemantics] {
		return ownedFrom(p.mod, p.tok, metadata.TableMethodSemantics, p.mod.Semantics(p.tok), as[*MethodSemantics])
	})
}

func (p *PropertyDefinition) GetMethod() (*MethodDefinition, bool) {
	return accessor(p.Semantics(), SemanticsGetter)
}

func (p *PropertyDefinition) SetMethod() (*MethodDefinition, bool) {
	return accessor(p.Semantics(), SemanticsSetter)
}

func (p *PropertyDefinition) Constant() (*Constant, bool) {
	c := p.constant.Get(func() *Constant { return constantOf(p.mod, p.tok) })
	return c, c != nil
}

// EventDefinition is an event declared by a type.
type EventDefinition struct {
	base
	flags   uint16
	name    string
	typeRaw uint32

	eventType relation.Lazy[Member]
	semantics relation.Lazy[*OwnedList[*MethodSemantics]]
}

func newEventDefinition(m *Module, tok metadata.Token, row metadata.EventRow) *EventDefinition {
	e := &EventDefinition{flags: uint16(row.Flags), name: m.str(tok, row.Name), typeRaw: row.EventType}
	e.base.init(m, tok)
	return e
}

func (e *EventDefinition) Name() string  { return e.name }
func (e *EventDefinition) Flags() uint16 { return e.flags }

// EventType is the delegate type of the event.
func (e *EventDefinition) EventType() Member {
	return e.eventType.Get(func() Member {
		return e.mod.resolveCoded(metadata.TypeDefOrRef, e.typeRaw, e.tok)
	})
}

func (e *EventDefinition) DeclaringType() (*TypeDefinition, bool) {
	rid, ok := e.mod.EventOwner(e.tok.Rid)
	if !ok {
		return nil, false
	}
	return lookupAs[*TypeDefinition](e.mod, e.tok, metadata.NewToken(metadata.TableTypeDef, rid))
}

func (e *EventDefinition) FullName() string {
	if t, ok := e.DeclaringType(); ok {
		return t.FullName() + "::" + e.name
	}
	return e.name
}

func (e *EventDefinition) Semantics() *OwnedList[*MethodSemantics] {
	return e.semantics.Get(func() *OwnedList[*MethodSemantics] {
		return ownedFrom(e.mod, e.tok, metadata.TableMethodSemantics, e.mod.Semantics(e.tok), as[*MethodSemantics])
	})
}

func (e *EventDefinition) AddMethod() (*MethodDefinition, bool) {
	return accessor(e.Semantics(), SemanticsAddOn)
}

func (e *EventDefinition) RemoveMethod() (*MethodDefinition, bool) {
	return accessor(e.Semantics(), SemanticsRemoveOn)
}

func (e *EventDefinition) FireMethod() (*MethodDefinition, bool) {
	return accessor(e.Semantics(), SemanticsFire)
}

func accessor(list *OwnedList[*MethodSemantics], kind uint16) (*MethodDefinition, bool) {
	for _, s := range list.Items() {
		if s.Attributes()&kind != 0 {
			return s.Method()
		}
	}
	return nil, false
}

// MethodSemantics binds a method to a property or event as one of its
// accessors.
type MethodSemantics struct {
	base
	attributes     uint16
	method         uint32
	associationRaw uint32

	association relation.Lazy[Member]
}

func newMethodSemantics(m *Module, tok metadata.Token, row metadata.MethodSemanticsRow) *MethodSemantics {
	s := &MethodSemantics{attributes: uint16(row.Semantics), method: row.Method, associationRaw: row.Association}
	s.base.init(m, tok)
	return s
}

func (s *MethodSemantics) Attributes() uint16 { return s.attributes }

func (s *MethodSemantics) Method() (*MethodDefinition, bool) {
	return lookupAs[*MethodDefinition](s.mod, s.tok, metadata.NewToken(metadata.TableMethod, s.method))
}

// Association is the property or event owning this record.
func (s *MethodSemantics) Association() Member {
	return s.association.Get(func() Member {
		return s.mod.resolveCoded(metadata.HasSemantics, s.associationRaw, s.tok)
	})
}
