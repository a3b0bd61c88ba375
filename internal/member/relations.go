package member

import (
	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

type tokenMany = relation.OneToMany[metadata.Token]
type tokenOne = relation.OneToOne[metadata.Token]

// relations holds every index of a module. Each one is built by a single
// scan of its source table on first use and never changes afterwards.
type relations struct {
	fields     relation.Lazy[*relation.RangeRelation]
	methods    relation.Lazy[*relation.RangeRelation]
	params     relation.Lazy[*relation.RangeRelation]
	properties relation.Lazy[*relation.RangeRelation]
	events     relation.Lazy[*relation.RangeRelation]

	nested relation.Lazy[*relation.OneToMany[uint32]]

	customAttributes        relation.Lazy[*tokenMany]
	securityDeclarations    relation.Lazy[*tokenMany]
	genericParams           relation.Lazy[*tokenMany]
	genericParamConstraints relation.Lazy[*tokenMany]
	interfaces              relation.Lazy[*tokenMany]
	methodImpls             relation.Lazy[*tokenMany]
	semantics               relation.Lazy[*semanticsIndex]

	constants     relation.Lazy[*tokenOne]
	classLayouts  relation.Lazy[*tokenOne]
	fieldRvas     relation.Lazy[*tokenOne]
	fieldMarshals relation.Lazy[*tokenOne]
	fieldLayouts  relation.Lazy[*tokenOne]
	implMaps      relation.Lazy[*tokenOne]
}

// semanticsIndex is the MethodSemantics table seen from both ends: the
// property or event that owns each row, and the row each method belongs
// to.
type semanticsIndex struct {
	byAssociation *tokenMany
	byMethod      *relation.OneToOne[uint32]
}

// scan calls fn for every row of table. Rows that fail to decode are
// reported and skipped.
func scan[R metadata.Row](m *Module, table metadata.TableKind, fn func(tok metadata.Token, row R)) {
	n := m.store.RowCount(table)
	for rid := uint32(1); rid <= n; rid++ {
		tok := metadata.NewToken(table, rid)
		row, err := metadata.RowAs[R](m.store, table, rid)
		if err != nil {
			m.report(diag.Wrap(tok, err))
			continue
		}
		fn(tok, row)
	}
}

func (m *Module) built(name string, pairs int) {
	m.log.Debug("relation built", zap.String("relation", name), zap.Int("pairs", pairs))
}

func rangeRelation[R metadata.Row](m *Module, cell *relation.Lazy[*relation.RangeRelation], name string, ownerTable, childTable metadata.TableKind, owner func(rid uint32, row R) relation.RangeOwner) *relation.RangeRelation {
	return cell.Get(func() *relation.RangeRelation {
		var owners []relation.RangeOwner
		scan(m, ownerTable, func(tok metadata.Token, row R) {
			owners = append(owners, owner(tok.Rid, row))
		})
		r := relation.NewRangeRelation(owners, m.store.RowCount(childTable))
		m.built(name, r.Len())
		return r
	})
}

func (m *Module) fieldLists() *relation.RangeRelation {
	return rangeRelation(m, &m.rel.fields, "field_list", metadata.TableTypeDef, metadata.TableField,
		func(rid uint32, row metadata.TypeDefRow) relation.RangeOwner {
			return relation.RangeOwner{Key: rid, First: row.FieldList}
		})
}

func (m *Module) methodLists() *relation.RangeRelation {
	return rangeRelation(m, &m.rel.methods, "method_list", metadata.TableTypeDef, metadata.TableMethod,
		func(rid uint32, row metadata.TypeDefRow) relation.RangeOwner {
			return relation.RangeOwner{Key: rid, First: row.MethodList}
		})
}

func (m *Module) paramLists() *relation.RangeRelation {
	return rangeRelation(m, &m.rel.params, "param_list", metadata.TableMethod, metadata.TableParam,
		func(rid uint32, row metadata.MethodRow) relation.RangeOwner {
			return relation.RangeOwner{Key: rid, First: row.ParamList}
		})
}

func (m *Module) propertyLists() *relation.RangeRelation {
	return rangeRelation(m, &m.rel.properties, "property_list", metadata.TablePropertyMap, metadata.TableProperty,
		func(_ uint32, row metadata.PropertyMapRow) relation.RangeOwner {
			return relation.RangeOwner{Key: row.Parent, First: row.PropertyList}
		})
}

func (m *Module) eventLists() *relation.RangeRelation {
	return rangeRelation(m, &m.rel.events, "event_list", metadata.TableEventMap, metadata.TableEvent,
		func(_ uint32, row metadata.EventMapRow) relation.RangeOwner {
			return relation.RangeOwner{Key: row.Parent, First: row.EventList}
		})
}

func (m *Module) nestedClasses() *relation.OneToMany[uint32] {
	return m.rel.nested.Get(func() *relation.OneToMany[uint32] {
		idx := relation.NewOneToMany[uint32]()
		scan(m, metadata.TableNestedClass, func(tok metadata.Token, row metadata.NestedClassRow) {
			if row.NestedClass == row.EnclosingClass {
				m.report(diag.BadImage(tok, "type %d is nested in itself", row.NestedClass))
				return
			}
			if !idx.Add(row.EnclosingClass, row.NestedClass) {
				m.report(diag.BadImage(tok, "type %d has more than one enclosing type", row.NestedClass))
			}
		})
		m.built("nested_class", idx.Len())
		return idx
	})
}

// explicitMany builds a one-to-many index keyed by the owner column that
// owner extracts from each row.
func explicitMany[R metadata.Row](m *Module, cell *relation.Lazy[*tokenMany], name string, table metadata.TableKind, owner func(tok metadata.Token, row R) (metadata.Token, bool)) *tokenMany {
	return cell.Get(func() *tokenMany {
		idx := relation.NewOneToMany[metadata.Token]()
		scan(m, table, func(tok metadata.Token, row R) {
			if o, ok := owner(tok, row); ok {
				idx.Add(o, tok.Rid)
			}
		})
		m.built(name, idx.Len())
		return idx
	})
}

// explicitOne is explicitMany with at most one child per owner. Extra
// children are reported and dropped.
func explicitOne[R metadata.Row](m *Module, cell *relation.Lazy[*tokenOne], name string, table metadata.TableKind, owner func(tok metadata.Token, row R) (metadata.Token, bool)) *tokenOne {
	return cell.Get(func() *tokenOne {
		idx := relation.NewOneToOne[metadata.Token]()
		scan(m, table, func(tok metadata.Token, row R) {
			o, ok := owner(tok, row)
			if !ok {
				return
			}
			if !idx.Add(o, tok.Rid) {
				m.report(diag.BadImage(tok, "%s already has a %s row", o, table))
			}
		})
		m.built(name, idx.Len())
		return idx
	})
}

// simple turns a plain rid column into an owner token.
func simple(table metadata.TableKind, rid uint32) (metadata.Token, bool) {
	return metadata.NewToken(table, rid), rid != 0
}

func (m *Module) customAttributeIndex() *tokenMany {
	return explicitMany(m, &m.rel.customAttributes, "custom_attribute", metadata.TableCustomAttribute,
		func(tok metadata.Token, row metadata.CustomAttributeRow) (metadata.Token, bool) {
			return m.decode(metadata.HasCustomAttribute, row.Parent, tok)
		})
}

func (m *Module) securityDeclarationIndex() *tokenMany {
	return explicitMany(m, &m.rel.securityDeclarations, "decl_security", metadata.TableDeclSecurity,
		func(tok metadata.Token, row metadata.DeclSecurityRow) (metadata.Token, bool) {
			return m.decode(metadata.HasDeclSecurity, row.Parent, tok)
		})
}

func (m *Module) genericParamIndex() *tokenMany {
	return explicitMany(m, &m.rel.genericParams, "generic_param", metadata.TableGenericParam,
		func(tok metadata.Token, row metadata.GenericParamRow) (metadata.Token, bool) {
			return m.decode(metadata.TypeOrMethodDef, row.Owner, tok)
		})
}

func (m *Module) genericParamConstraintIndex() *tokenMany {
	return explicitMany(m, &m.rel.genericParamConstraints, "generic_param_constraint", metadata.TableGenericParamConstraint,
		func(_ metadata.Token, row metadata.GenericParamConstraintRow) (metadata.Token, bool) {
			return simple(metadata.TableGenericParam, row.Owner)
		})
}

func (m *Module) interfaceIndex() *tokenMany {
	return explicitMany(m, &m.rel.interfaces, "interface_impl", metadata.TableInterfaceImpl,
		func(_ metadata.Token, row metadata.InterfaceImplRow) (metadata.Token, bool) {
			return simple(metadata.TableTypeDef, row.Class)
		})
}

func (m *Module) methodImplIndex() *tokenMany {
	return explicitMany(m, &m.rel.methodImpls, "method_impl", metadata.TableMethodImpl,
		func(_ metadata.Token, row metadata.MethodImplRow) (metadata.Token, bool) {
			return simple(metadata.TableTypeDef, row.Class)
		})
}

func (m *Module) semanticsIndex() *semanticsIndex {
	return m.rel.semantics.Get(func() *semanticsIndex {
		idx := &semanticsIndex{
			byAssociation: relation.NewOneToMany[metadata.Token](),
			byMethod:      relation.NewOneToOne[uint32](),
		}
		scan(m, metadata.TableMethodSemantics, func(tok metadata.Token, row metadata.MethodSemanticsRow) {
			if assoc, ok := m.decode(metadata.HasSemantics, row.Association, tok); ok {
				idx.byAssociation.Add(assoc, tok.Rid)
			}
			if row.Method != 0 && !idx.byMethod.Add(row.Method, tok.Rid) {
				m.report(diag.BadImage(tok, "method %d already has semantics", row.Method))
			}
		})
		m.built("method_semantics", idx.byAssociation.Len())
		return idx
	})
}

func (m *Module) constantIndex() *tokenOne {
	return explicitOne(m, &m.rel.constants, "constant", metadata.TableConstant,
		func(tok metadata.Token, row metadata.ConstantRow) (metadata.Token, bool) {
			return m.decode(metadata.HasConstant, row.Parent, tok)
		})
}

func (m *Module) classLayoutIndex() *tokenOne {
	return explicitOne(m, &m.rel.classLayouts, "class_layout", metadata.TableClassLayout,
		func(_ metadata.Token, row metadata.ClassLayoutRow) (metadata.Token, bool) {
			return simple(metadata.TableTypeDef, row.Parent)
		})
}

func (m *Module) fieldRvaIndex() *tokenOne {
	return explicitOne(m, &m.rel.fieldRvas, "field_rva", metadata.TableFieldRva,
		func(_ metadata.Token, row metadata.FieldRvaRow) (metadata.Token, bool) {
			return simple(metadata.TableField, row.Field)
		})
}

func (m *Module) fieldMarshalIndex() *tokenOne {
	return explicitOne(m, &m.rel.fieldMarshals, "field_marshal", metadata.TableFieldMarshal,
		func(tok metadata.Token, row metadata.FieldMarshalRow) (metadata.Token, bool) {
			return m.decode(metadata.HasFieldMarshal, row.Parent, tok)
		})
}

func (m *Module) fieldLayoutIndex() *tokenOne {
	return explicitOne(m, &m.rel.fieldLayouts, "field_layout", metadata.TableFieldLayout,
		func(_ metadata.Token, row metadata.FieldLayoutRow) (metadata.Token, bool) {
			return simple(metadata.TableField, row.Field)
		})
}

func (m *Module) implMapIndex() *tokenOne {
	return explicitOne(m, &m.rel.implMaps, "impl_map", metadata.TableImplMap,
		func(tok metadata.Token, row metadata.ImplMapRow) (metadata.Token, bool) {
			return m.decode(metadata.MemberForwarded, row.MemberForwarded, tok)
		})
}

// FieldRange returns the Field rids declared by TypeDef typeRid.
func (m *Module) FieldRange(typeRid uint32) metadata.RidRange { return m.fieldLists().Range(typeRid) }

// FieldOwner returns the TypeDef rid declaring fieldRid.
func (m *Module) FieldOwner(fieldRid uint32) (uint32, bool) { return m.fieldLists().Owner(fieldRid) }

func (m *Module) MethodRange(typeRid uint32) metadata.RidRange { return m.methodLists().Range(typeRid) }
func (m *Module) MethodOwner(methodRid uint32) (uint32, bool) {
	return m.methodLists().Owner(methodRid)
}

func (m *Module) ParamRange(methodRid uint32) metadata.RidRange { return m.paramLists().Range(methodRid) }
func (m *Module) ParamOwner(paramRid uint32) (uint32, bool)     { return m.paramLists().Owner(paramRid) }

// PropertyRange and EventRange are keyed by the declaring TypeDef rid, not
// the map row.
func (m *Module) PropertyRange(typeRid uint32) metadata.RidRange {
	return m.propertyLists().Range(typeRid)
}

func (m *Module) PropertyOwner(propertyRid uint32) (uint32, bool) {
	return m.propertyLists().Owner(propertyRid)
}

func (m *Module) EventRange(typeRid uint32) metadata.RidRange { return m.eventLists().Range(typeRid) }
func (m *Module) EventOwner(eventRid uint32) (uint32, bool)  { return m.eventLists().Owner(eventRid) }

// NestedTypes returns the TypeDef rids nested directly in enclosingRid.
func (m *Module) NestedTypes(enclosingRid uint32) []uint32 {
	return m.nestedClasses().Values(enclosingRid)
}

// EnclosingType returns the TypeDef rid that nestedRid is nested in.
func (m *Module) EnclosingType(nestedRid uint32) (uint32, bool) {
	return m.nestedClasses().Owner(nestedRid)
}

func (m *Module) CustomAttributeRids(owner metadata.Token) []uint32 {
	return m.customAttributeIndex().Values(owner)
}

func (m *Module) CustomAttributeOwner(rid uint32) (metadata.Token, bool) {
	return m.customAttributeIndex().Owner(rid)
}

func (m *Module) SecurityDeclarations(owner metadata.Token) []uint32 {
	return m.securityDeclarationIndex().Values(owner)
}

func (m *Module) SecurityDeclarationOwner(rid uint32) (metadata.Token, bool) {
	return m.securityDeclarationIndex().Owner(rid)
}

func (m *Module) GenericParameters(owner metadata.Token) []uint32 {
	return m.genericParamIndex().Values(owner)
}

func (m *Module) GenericParameterOwner(rid uint32) (metadata.Token, bool) {
	return m.genericParamIndex().Owner(rid)
}

func (m *Module) GenericParameterConstraints(paramRid uint32) []uint32 {
	return m.genericParamConstraintIndex().Values(metadata.NewToken(metadata.TableGenericParam, paramRid))
}

func (m *Module) InterfaceImplementations(typeRid uint32) []uint32 {
	return m.interfaceIndex().Values(metadata.NewToken(metadata.TableTypeDef, typeRid))
}

func (m *Module) MethodImplementations(typeRid uint32) []uint32 {
	return m.methodImplIndex().Values(metadata.NewToken(metadata.TableTypeDef, typeRid))
}

func (m *Module) Constant(owner metadata.Token) (uint32, bool) { return m.constantIndex().Value(owner) }

func (m *Module) ConstantOwner(rid uint32) (metadata.Token, bool) {
	return m.constantIndex().Owner(rid)
}

func (m *Module) ClassLayout(typeRid uint32) (uint32, bool) {
	return m.classLayoutIndex().Value(metadata.NewToken(metadata.TableTypeDef, typeRid))
}

func (m *Module) FieldRva(fieldRid uint32) (uint32, bool) {
	return m.fieldRvaIndex().Value(metadata.NewToken(metadata.TableField, fieldRid))
}

func (m *Module) FieldMarshal(owner metadata.Token) (uint32, bool) {
	return m.fieldMarshalIndex().Value(owner)
}

func (m *Module) FieldLayout(fieldRid uint32) (uint32, bool) {
	return m.fieldLayoutIndex().Value(metadata.NewToken(metadata.TableField, fieldRid))
}

func (m *Module) ImplementationMap(owner metadata.Token) (uint32, bool) {
	return m.implMapIndex().Value(owner)
}

func (m *Module) ImplementationMapOwner(rid uint32) (metadata.Token, bool) {
	return m.implMapIndex().Owner(rid)
}

// Semantics returns the MethodSemantics rids attached to a property or
// event.
func (m *Module) Semantics(association metadata.Token) []uint32 {
	return m.semanticsIndex().byAssociation.Values(association)
}

func (m *Module) SemanticsOwner(rid uint32) (metadata.Token, bool) {
	return m.semanticsIndex().byAssociation.Owner(rid)
}

// MethodSemantics returns the MethodSemantics row that methodRid takes
// part in.
func (m *Module) MethodSemantics(methodRid uint32) (metadata.Token, bool) {
	rid, ok := m.semanticsIndex().byMethod.Value(methodRid)
	return metadata.NewToken(metadata.TableMethodSemantics, rid), ok
}

// EachRelation walks every one-to-many index, building any that are not
// built yet. Used to export the indices for inspection.
func (m *Module) EachRelation(fn func(relation string, owner metadata.Token, children *roaring.Bitmap)) {
	many := []struct {
		name string
		idx  *tokenMany
	}{
		{"custom_attribute", m.customAttributeIndex()},
		{"decl_security", m.securityDeclarationIndex()},
		{"generic_param", m.genericParamIndex()},
		{"generic_param_constraint", m.genericParamConstraintIndex()},
		{"interface_impl", m.interfaceIndex()},
		{"method_impl", m.methodImplIndex()},
		{"method_semantics", m.semanticsIndex().byAssociation},
	}
	for _, r := range many {
		r.idx.Each(func(owner metadata.Token, children *roaring.Bitmap) {
			fn(r.name, owner, children)
		})
	}
	m.nestedClasses().Each(func(owner uint32, children *roaring.Bitmap) {
		fn("nested_class", metadata.NewToken(metadata.TableTypeDef, owner), children)
	})
}
