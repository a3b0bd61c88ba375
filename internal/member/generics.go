package member

import (
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// GenericParamAttributes bits.
const (
	GenericVarianceMask                 = 0x0003
	GenericCovariant                    = 0x0001
	GenericContravariant                = 0x0002
	GenericReferenceConstraint          = 0x0004
	GenericValueTypeConstraint          = 0x0008
	GenericDefaultConstructorConstraint = 0x0010
)

// GenericParameter is a type or method generic parameter.
type GenericParameter struct {
	base
	number   uint16
	flags    uint16
	ownerRaw uint32
	name     string

	ownerMember relation.Lazy[Member]
	constraints relation.Lazy[*OwnedList[*GenericParameterConstraint]]
}

func newGenericParameter(m *Module, tok metadata.Token, row metadata.GenericParamRow) *GenericParameter {
	g := &GenericParameter{
		number:   uint16(row.Number),
		flags:    uint16(row.Flags),
		ownerRaw: row.Owner,
		name:     m.str(tok, row.Name),
	}
	g.base.init(m, tok)
	return g
}

func (g *GenericParameter) Name() string   { return g.name }
func (g *GenericParameter) Number() uint16 { return g.number }
func (g *GenericParameter) Flags() uint16  { return g.flags }

// DeclaringMember is the TypeDef or MethodDef declaring the parameter.
func (g *GenericParameter) DeclaringMember() Member {
	return g.ownerMember.Get(func() Member {
		owner, ok := g.mod.GenericParameterOwner(g.tok.Rid)
		if !ok {
			return g.mod.resolveCoded(metadata.TypeOrMethodDef, g.ownerRaw, g.tok)
		}
		mem, _ := lookupAs[Member](g.mod, g.tok, owner)
		return mem
	})
}

func (g *GenericParameter) Constraints() *OwnedList[*GenericParameterConstraint] {
	return g.constraints.Get(func() *OwnedList[*GenericParameterConstraint] {
		return ownedFrom(g.mod, g.tok, metadata.TableGenericParamConstraint,
			g.mod.GenericParameterConstraints(g.tok.Rid), as[*GenericParameterConstraint])
	})
}

func (g *GenericParameter) String() string { return g.name }

// GenericParameterConstraint limits a generic parameter to a type.
type GenericParameterConstraint struct {
	base
	param         uint32
	constraintRaw uint32

	constraint relation.Lazy[Member]
}

func newGenericParameterConstraint(m *Module, tok metadata.Token, row metadata.GenericParamConstraintRow) *GenericParameterConstraint {
	c := &GenericParameterConstraint{param: row.Owner, constraintRaw: row.Constraint}
	c.base.init(m, tok)
	return c
}

func (c *GenericParameterConstraint) Parameter() (*GenericParameter, bool) {
	return lookupAs[*GenericParameter](c.mod, c.tok, metadata.NewToken(metadata.TableGenericParam, c.param))
}

func (c *GenericParameterConstraint) Constraint() Member {
	return c.constraint.Get(func() Member {
		return c.mod.resolveCoded(metadata.TypeDefOrRef, c.constraintRaw, c.tok)
	})
}
