package metadata

import "github.com/cockroachdb/errors"

// Row is one decoded table row. Column values are raw: heap offsets,
// simple rids and undecoded coded indices.
type Row interface {
	Table() TableKind
	Columns() []uint32
}

type ModuleRow struct {
	Generation uint32
	Name       uint32
	Mvid       uint32
	EncId      uint32
	EncBaseId  uint32
}

func (ModuleRow) Table() TableKind { return TableModule }
func (r ModuleRow) Columns() []uint32 {
	return []uint32{r.Generation, r.Name, r.Mvid, r.EncId, r.EncBaseId}
}

type TypeRefRow struct {
	ResolutionScope uint32
	Name            uint32
	Namespace       uint32
}

func (TypeRefRow) Table() TableKind { return TableTypeRef }
func (r TypeRefRow) Columns() []uint32 {
	return []uint32{r.ResolutionScope, r.Name, r.Namespace}
}

type TypeDefRow struct {
	Flags      uint32
	Name       uint32
	Namespace  uint32
	Extends    uint32
	FieldList  uint32
	MethodList uint32
}

func (TypeDefRow) Table() TableKind { return TableTypeDef }
func (r TypeDefRow) Columns() []uint32 {
	return []uint32{r.Flags, r.Name, r.Namespace, r.Extends, r.FieldList, r.MethodList}
}

type FieldRow struct {
	Flags     uint32
	Name      uint32
	Signature uint32
}

func (FieldRow) Table() TableKind    { return TableField }
func (r FieldRow) Columns() []uint32 { return []uint32{r.Flags, r.Name, r.Signature} }

type MethodRow struct {
	RVA       uint32
	ImplFlags uint32
	Flags     uint32
	Name      uint32
	Signature uint32
	ParamList uint32
}

func (MethodRow) Table() TableKind { return TableMethod }
func (r MethodRow) Columns() []uint32 {
	return []uint32{r.RVA, r.ImplFlags, r.Flags, r.Name, r.Signature, r.ParamList}
}

type ParamRow struct {
	Flags    uint32
	Sequence uint32
	Name     uint32
}

func (ParamRow) Table() TableKind    { return TableParam }
func (r ParamRow) Columns() []uint32 { return []uint32{r.Flags, r.Sequence, r.Name} }

type InterfaceImplRow struct {
	Class     uint32
	Interface uint32
}

func (InterfaceImplRow) Table() TableKind    { return TableInterfaceImpl }
func (r InterfaceImplRow) Columns() []uint32 { return []uint32{r.Class, r.Interface} }

type MemberRefRow struct {
	Parent    uint32
	Name      uint32
	Signature uint32
}

func (MemberRefRow) Table() TableKind    { return TableMemberRef }
func (r MemberRefRow) Columns() []uint32 { return []uint32{r.Parent, r.Name, r.Signature} }

type ConstantRow struct {
	Type   uint32
	Parent uint32
	Value  uint32
}

func (ConstantRow) Table() TableKind    { return TableConstant }
func (r ConstantRow) Columns() []uint32 { return []uint32{r.Type, r.Parent, r.Value} }

type CustomAttributeRow struct {
	Parent uint32
	Type   uint32
	Value  uint32
}

func (CustomAttributeRow) Table() TableKind    { return TableCustomAttribute }
func (r CustomAttributeRow) Columns() []uint32 { return []uint32{r.Parent, r.Type, r.Value} }

type FieldMarshalRow struct {
	Parent     uint32
	NativeType uint32
}

func (FieldMarshalRow) Table() TableKind    { return TableFieldMarshal }
func (r FieldMarshalRow) Columns() []uint32 { return []uint32{r.Parent, r.NativeType} }

type DeclSecurityRow struct {
	Action        uint32
	Parent        uint32
	PermissionSet uint32
}

func (DeclSecurityRow) Table() TableKind    { return TableDeclSecurity }
func (r DeclSecurityRow) Columns() []uint32 { return []uint32{r.Action, r.Parent, r.PermissionSet} }

type ClassLayoutRow struct {
	PackingSize uint32
	ClassSize   uint32
	Parent      uint32
}

func (ClassLayoutRow) Table() TableKind    { return TableClassLayout }
func (r ClassLayoutRow) Columns() []uint32 { return []uint32{r.PackingSize, r.ClassSize, r.Parent} }

type FieldLayoutRow struct {
	Offset uint32
	Field  uint32
}

func (FieldLayoutRow) Table() TableKind    { return TableFieldLayout }
func (r FieldLayoutRow) Columns() []uint32 { return []uint32{r.Offset, r.Field} }

type StandAloneSigRow struct {
	Signature uint32
}

func (StandAloneSigRow) Table() TableKind    { return TableStandAloneSig }
func (r StandAloneSigRow) Columns() []uint32 { return []uint32{r.Signature} }

type EventMapRow struct {
	Parent    uint32
	EventList uint32
}

func (EventMapRow) Table() TableKind    { return TableEventMap }
func (r EventMapRow) Columns() []uint32 { return []uint32{r.Parent, r.EventList} }

type EventRow struct {
	Flags     uint32
	Name      uint32
	EventType uint32
}

func (EventRow) Table() TableKind    { return TableEvent }
func (r EventRow) Columns() []uint32 { return []uint32{r.Flags, r.Name, r.EventType} }

type PropertyMapRow struct {
	Parent       uint32
	PropertyList uint32
}

func (PropertyMapRow) Table() TableKind    { return TablePropertyMap }
func (r PropertyMapRow) Columns() []uint32 { return []uint32{r.Parent, r.PropertyList} }

type PropertyRow struct {
	Flags uint32
	Name  uint32
	Type  uint32
}

func (PropertyRow) Table() TableKind    { return TableProperty }
func (r PropertyRow) Columns() []uint32 { return []uint32{r.Flags, r.Name, r.Type} }

type MethodSemanticsRow struct {
	Semantics   uint32
	Method      uint32
	Association uint32
}

func (MethodSemanticsRow) Table() TableKind { return TableMethodSemantics }
func (r MethodSemanticsRow) Columns() []uint32 {
	return []uint32{r.Semantics, r.Method, r.Association}
}

type MethodImplRow struct {
	Class             uint32
	MethodBody        uint32
	MethodDeclaration uint32
}

func (MethodImplRow) Table() TableKind { return TableMethodImpl }
func (r MethodImplRow) Columns() []uint32 {
	return []uint32{r.Class, r.MethodBody, r.MethodDeclaration}
}

type ModuleRefRow struct {
	Name uint32
}

func (ModuleRefRow) Table() TableKind    { return TableModuleRef }
func (r ModuleRefRow) Columns() []uint32 { return []uint32{r.Name} }

type TypeSpecRow struct {
	Signature uint32
}

func (TypeSpecRow) Table() TableKind    { return TableTypeSpec }
func (r TypeSpecRow) Columns() []uint32 { return []uint32{r.Signature} }

type ImplMapRow struct {
	MappingFlags    uint32
	MemberForwarded uint32
	ImportName      uint32
	ImportScope     uint32
}

func (ImplMapRow) Table() TableKind { return TableImplMap }
func (r ImplMapRow) Columns() []uint32 {
	return []uint32{r.MappingFlags, r.MemberForwarded, r.ImportName, r.ImportScope}
}

type FieldRvaRow struct {
	RVA   uint32
	Field uint32
}

func (FieldRvaRow) Table() TableKind    { return TableFieldRva }
func (r FieldRvaRow) Columns() []uint32 { return []uint32{r.RVA, r.Field} }

type AssemblyRow struct {
	HashAlgId      uint32
	MajorVersion   uint32
	MinorVersion   uint32
	BuildNumber    uint32
	RevisionNumber uint32
	Flags          uint32
	PublicKey      uint32
	Name           uint32
	Culture        uint32
}

func (AssemblyRow) Table() TableKind { return TableAssembly }
func (r AssemblyRow) Columns() []uint32 {
	return []uint32{
		r.HashAlgId, r.MajorVersion, r.MinorVersion, r.BuildNumber, r.RevisionNumber,
		r.Flags, r.PublicKey, r.Name, r.Culture,
	}
}

type AssemblyRefRow struct {
	MajorVersion     uint32
	MinorVersion     uint32
	BuildNumber      uint32
	RevisionNumber   uint32
	Flags            uint32
	PublicKeyOrToken uint32
	Name             uint32
	Culture          uint32
	HashValue        uint32
}

func (AssemblyRefRow) Table() TableKind { return TableAssemblyRef }
func (r AssemblyRefRow) Columns() []uint32 {
	return []uint32{
		r.MajorVersion, r.MinorVersion, r.BuildNumber, r.RevisionNumber, r.Flags,
		r.PublicKeyOrToken, r.Name, r.Culture, r.HashValue,
	}
}

type FileRow struct {
	Flags     uint32
	Name      uint32
	HashValue uint32
}

func (FileRow) Table() TableKind    { return TableFile }
func (r FileRow) Columns() []uint32 { return []uint32{r.Flags, r.Name, r.HashValue} }

type ExportedTypeRow struct {
	Flags          uint32
	TypeDefId      uint32
	Name           uint32
	Namespace      uint32
	Implementation uint32
}

func (ExportedTypeRow) Table() TableKind { return TableExportedType }
func (r ExportedTypeRow) Columns() []uint32 {
	return []uint32{r.Flags, r.TypeDefId, r.Name, r.Namespace, r.Implementation}
}

type ManifestResourceRow struct {
	Offset         uint32
	Flags          uint32
	Name           uint32
	Implementation uint32
}

func (ManifestResourceRow) Table() TableKind { return TableManifestResource }
func (r ManifestResourceRow) Columns() []uint32 {
	return []uint32{r.Offset, r.Flags, r.Name, r.Implementation}
}

type NestedClassRow struct {
	NestedClass    uint32
	EnclosingClass uint32
}

func (NestedClassRow) Table() TableKind    { return TableNestedClass }
func (r NestedClassRow) Columns() []uint32 { return []uint32{r.NestedClass, r.EnclosingClass} }

type GenericParamRow struct {
	Number uint32
	Flags  uint32
	Owner  uint32
	Name   uint32
}

func (GenericParamRow) Table() TableKind { return TableGenericParam }
func (r GenericParamRow) Columns() []uint32 {
	return []uint32{r.Number, r.Flags, r.Owner, r.Name}
}

type MethodSpecRow struct {
	Method        uint32
	Instantiation uint32
}

func (MethodSpecRow) Table() TableKind    { return TableMethodSpec }
func (r MethodSpecRow) Columns() []uint32 { return []uint32{r.Method, r.Instantiation} }

type GenericParamConstraintRow struct {
	Owner      uint32
	Constraint uint32
}

func (GenericParamConstraintRow) Table() TableKind    { return TableGenericParamConstraint }
func (r GenericParamConstraintRow) Columns() []uint32 { return []uint32{r.Owner, r.Constraint} }

// RawRow carries tables without a dedicated row struct (pointer, EnC and
// OS/processor tables).
type RawRow struct {
	Kind TableKind
	Cols []uint32
}

func (r RawRow) Table() TableKind    { return r.Kind }
func (r RawRow) Columns() []uint32 { return r.Cols }

// DecodeRow builds the tagged row struct of table from raw column values.
func DecodeRow(table TableKind, c []uint32) (Row, error) {
	schema, ok := schemas[table]
	if !ok {
		if !table.IsTable() {
			return nil, errors.Newf("decode row: %s is not a table", table)
		}
		return RawRow{Kind: table, Cols: append([]uint32(nil), c...)}, nil
	}
	if len(c) != len(schema) {
		return nil, errors.Newf("decode row: %s has %d columns, got %d", table, len(schema), len(c))
	}
	switch table {
	case TableModule:
		return ModuleRow{c[0], c[1], c[2], c[3], c[4]}, nil
	case TableTypeRef:
		return TypeRefRow{c[0], c[1], c[2]}, nil
	case TableTypeDef:
		return TypeDefRow{c[0], c[1], c[2], c[3], c[4], c[5]}, nil
	case TableField:
		return FieldRow{c[0], c[1], c[2]}, nil
	case TableMethod:
		return MethodRow{c[0], c[1], c[2], c[3], c[4], c[5]}, nil
	case TableParam:
		return ParamRow{c[0], c[1], c[2]}, nil
	case TableInterfaceImpl:
		return InterfaceImplRow{c[0], c[1]}, nil
	case TableMemberRef:
		return MemberRefRow{c[0], c[1], c[2]}, nil
	case TableConstant:
		return ConstantRow{c[0], c[1], c[2]}, nil
	case TableCustomAttribute:
		return CustomAttributeRow{c[0], c[1], c[2]}, nil
	case TableFieldMarshal:
		return FieldMarshalRow{c[0], c[1]}, nil
	case TableDeclSecurity:
		return DeclSecurityRow{c[0], c[1], c[2]}, nil
	case TableClassLayout:
		return ClassLayoutRow{c[0], c[1], c[2]}, nil
	case TableFieldLayout:
		return FieldLayoutRow{c[0], c[1]}, nil
	case TableStandAloneSig:
		return StandAloneSigRow{c[0]}, nil
	case TableEventMap:
		return EventMapRow{c[0], c[1]}, nil
	case TableEvent:
		return EventRow{c[0], c[1], c[2]}, nil
	case TablePropertyMap:
		return PropertyMapRow{c[0], c[1]}, nil
	case TableProperty:
		return PropertyRow{c[0], c[1], c[2]}, nil
	case TableMethodSemantics:
		return MethodSemanticsRow{c[0], c[1], c[2]}, nil
	case TableMethodImpl:
		return MethodImplRow{c[0], c[1], c[2]}, nil
	case TableModuleRef:
		return ModuleRefRow{c[0]}, nil
	case TableTypeSpec:
		return TypeSpecRow{c[0]}, nil
	case TableImplMap:
		return ImplMapRow{c[0], c[1], c[2], c[3]}, nil
	case TableFieldRva:
		return FieldRvaRow{c[0], c[1]}, nil
	case TableAssembly:
		return AssemblyRow{c[0], c[1], c[2], c[3], c[4], c[5], c[6], c[7], c[8]}, nil
	case TableAssemblyRef:
		return AssemblyRefRow{c[0], c[1], c[2], c[3], c[4], c[5], c[6], c[7], c[8]}, nil
	case TableFile:
		return FileRow{c[0], c[1], c[2]}, nil
	case TableExportedType:
		return ExportedTypeRow{c[0], c[1], c[2], c[3], c[4]}, nil
	case TableManifestResource:
		return ManifestResourceRow{c[0], c[1], c[2], c[3]}, nil
	case TableNestedClass:
		return NestedClassRow{c[0], c[1]}, nil
	case TableGenericParam:
		return GenericParamRow{c[0], c[1], c[2], c[3]}, nil
	case TableMethodSpec:
		return MethodSpecRow{c[0], c[1]}, nil
	case TableGenericParamConstraint:
		return GenericParamConstraintRow{c[0], c[1]}, nil
	}
	return nil, errors.Newf("decode row: no row struct for %s", table)
}
