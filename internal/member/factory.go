package member

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
)

// cell boxes a published member so it can live in an atomic.Pointer.
type cell struct {
	m Member
}

type slots []atomic.Pointer[cell]

// Factory is the identity cache: one slot per row, per table. A slot is
// written once by compare-and-swap; a builder that loses the race drops
// its object and returns the winner's.
type Factory struct {
	module *Module
	tables [int(metadata.TableGenericParamConstraint) + 1]atomic.Pointer[slots]
}

func newFactory(m *Module) *Factory {
	return &Factory{module: m}
}

// slotsFor returns the slot array of table, allocating it on first use
// with one slot per row.
func (f *Factory) slotsFor(table metadata.TableKind) slots {
	p := &f.tables[table]
	if s := p.Load(); s != nil {
		return *s
	}
	fresh := make(slots, f.module.store.RowCount(table))
	if p.CompareAndSwap(nil, &fresh) {
		return fresh
	}
	return *p.Load()
}

// Lookup returns the canonical member for token.
func (f *Factory) Lookup(token metadata.Token) (Member, bool) {
	if !token.Table.IsTable() || token.Rid == 0 || !hasMemberKind(token.Table) {
		return nil, false
	}
	s := f.slotsFor(token.Table)
	if int(token.Rid) > len(s) {
		return nil, false
	}
	slot := &s[token.Rid-1]
	if c := slot.Load(); c != nil {
		return c.m, true
	}

	m, err := f.construct(token)
	if err != nil {
		f.module.report(diag.Wrap(token, err))
		return nil, false
	}
	if m == nil {
		return nil, false
	}
	if slot.CompareAndSwap(nil, &cell{m: m}) {
		return m, true
	}
	return slot.Load().m, true
}

// Cached reports whether token already has a published member.
func (f *Factory) Cached(token metadata.Token) bool {
	if !token.Table.IsTable() || token.Rid == 0 {
		return false
	}
	p := f.tables[token.Table].Load()
	if p == nil || int(token.Rid) > len(*p) {
		return false
	}
	return (*p)[token.Rid-1].Load() != nil
}

func hasMemberKind(table metadata.TableKind) bool {
	switch table {
	case metadata.TableModule, metadata.TableTypeRef, metadata.TableTypeDef,
		metadata.TableField, metadata.TableMethod, metadata.TableParam,
		metadata.TableInterfaceImpl, metadata.TableMemberRef, metadata.TableConstant,
		metadata.TableCustomAttribute, metadata.TableDeclSecurity, metadata.TableClassLayout,
		metadata.TableStandAloneSig, metadata.TableEvent, metadata.TableProperty,
		metadata.TableMethodSemantics, metadata.TableModuleRef, metadata.TableTypeSpec,
		metadata.TableImplMap, metadata.TableAssembly, metadata.TableAssemblyRef,
		metadata.TableFile, metadata.TableExportedType, metadata.TableManifestResource,
		metadata.TableGenericParam, metadata.TableMethodSpec, metadata.TableGenericParamConstraint:
		return true
	}
	return false
}

// construct reads the row of token and builds its member. The result is
// not yet published.
func (f *Factory) construct(token metadata.Token) (Member, error) {
	m := f.module
	switch token.Table {
	case metadata.TableModule:
		if token.Rid == 1 {
			return m, nil
		}
		return nil, errors.New("module table has more than one row")
	case metadata.TableTypeRef:
		return build(m, token, newTypeReference)
	case metadata.TableTypeDef:
		return build(m, token, newTypeDefinition)
	case metadata.TableField:
		return build(m, token, newFieldDefinition)
	case metadata.TableMethod:
		return build(m, token, newMethodDefinition)
	case metadata.TableParam:
		return build(m, token, newParameterDefinition)
	case metadata.TableInterfaceImpl:
		return build(m, token, newInterfaceImplementation)
	case metadata.TableMemberRef:
		return build(m, token, newMemberReference)
	case metadata.TableConstant:
		return build(m, token, newConstant)
	case metadata.TableCustomAttribute:
		return build(m, token, newCustomAttribute)
	case metadata.TableDeclSecurity:
		return build(m, token, newSecurityDeclaration)
	case metadata.TableClassLayout:
		return build(m, token, newClassLayout)
	case metadata.TableStandAloneSig:
		return build(m, token, newStandAloneSignature)
	case metadata.TableEvent:
		return build(m, token, newEventDefinition)
	case metadata.TableProperty:
		return build(m, token, newPropertyDefinition)
	case metadata.TableMethodSemantics:
		return build(m, token, newMethodSemantics)
	case metadata.TableModuleRef:
		return build(m, token, newModuleReference)
	case metadata.TableTypeSpec:
		return build(m, token, newTypeSpecification)
	case metadata.TableImplMap:
		return build(m, token, newImplementationMap)
	case metadata.TableAssembly:
		return build(m, token, newAssemblyDefinition)
	case metadata.TableAssemblyRef:
		return build(m, token, newAssemblyReference)
	case metadata.TableFile:
		return build(m, token, newFileReference)
	case metadata.TableExportedType:
		return build(m, token, newExportedType)
	case metadata.TableManifestResource:
		return build(m, token, newManifestResource)
	case metadata.TableGenericParam:
		return build(m, token, newGenericParameter)
	case metadata.TableMethodSpec:
		return build(m, token, newMethodSpecification)
	case metadata.TableGenericParamConstraint:
		return build(m, token, newGenericParameterConstraint)
	}
	return nil, nil
}

func build[R metadata.Row, M Member](m *Module, token metadata.Token, ctor func(*Module, metadata.Token, R) M) (Member, error) {
	row, err := metadata.RowAs[R](m.store, token.Table, token.Rid)
	if err != nil {
		return nil, err
	}
	return ctor(m, token, row), nil
}
