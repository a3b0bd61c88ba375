package metadata

// ColumnKind says how a raw column value is interpreted.
type ColumnKind uint8

const (
	ColFixed8 ColumnKind = iota
	ColFixed16
	ColFixed32
	ColString
	ColBlob
	ColGUID
	ColIndex
	ColCoded
)

// Column describes one column of a table.
type Column struct {
	Name   string
	Kind   ColumnKind
	Target TableKind  // ColIndex only
	Coded  CodedIndex // ColCoded only
}

func fixed8(name string) Column  { return Column{Name: name, Kind: ColFixed8} }
func fixed16(name string) Column { return Column{Name: name, Kind: ColFixed16} }
func fixed32(name string) Column { return Column{Name: name, Kind: ColFixed32} }
func str(name string) Column     { return Column{Name: name, Kind: ColString} }
func blob(name string) Column    { return Column{Name: name, Kind: ColBlob} }
func guid(name string) Column    { return Column{Name: name, Kind: ColGUID} }

func index(name string, target TableKind) Column {
	return Column{Name: name, Kind: ColIndex, Target: target}
}

func coded(name string, kind CodedIndex) Column {
	return Column{Name: name, Kind: ColCoded, Coded: kind}
}

var schemas = map[TableKind][]Column{
	TableModule: {fixed16("Generation"), str("Name"), guid("Mvid"), guid("EncId"), guid("EncBaseId")},
	TableTypeRef: {coded("ResolutionScope", ResolutionScope), str("Name"), str("Namespace")},
	TableTypeDef: {
		fixed32("Flags"), str("Name"), str("Namespace"), coded("Extends", TypeDefOrRef),
		index("FieldList", TableField), index("MethodList", TableMethod),
	},
	TableField: {fixed16("Flags"), str("Name"), blob("Signature")},
	TableMethod: {
		fixed32("RVA"), fixed16("ImplFlags"), fixed16("Flags"), str("Name"),
		blob("Signature"), index("ParamList", TableParam),
	},
	TableParam:           {fixed16("Flags"), fixed16("Sequence"), str("Name")},
	TableInterfaceImpl:   {index("Class", TableTypeDef), coded("Interface", TypeDefOrRef)},
	TableMemberRef:       {coded("Parent", MemberRefParent), str("Name"), blob("Signature")},
	TableConstant:        {fixed8("Type"), coded("Parent", HasConstant), blob("Value")},
	TableCustomAttribute: {coded("Parent", HasCustomAttribute), coded("Type", CustomAttributeType), blob("Value")},
	TableFieldMarshal:    {coded("Parent", HasFieldMarshal), blob("NativeType")},
	TableDeclSecurity:    {fixed16("Action"), coded("Parent", HasDeclSecurity), blob("PermissionSet")},
	TableClassLayout:     {fixed16("PackingSize"), fixed32("ClassSize"), index("Parent", TableTypeDef)},
	TableFieldLayout:     {fixed32("Offset"), index("Field", TableField)},
	TableStandAloneSig:   {blob("Signature")},
	TableEventMap:        {index("Parent", TableTypeDef), index("EventList", TableEvent)},
	TableEvent:           {fixed16("Flags"), str("Name"), coded("EventType", TypeDefOrRef)},
	TablePropertyMap:     {index("Parent", TableTypeDef), index("PropertyList", TableProperty)},
	TableProperty:        {fixed16("Flags"), str("Name"), blob("Type")},
	TableMethodSemantics: {fixed16("Semantics"), index("Method", TableMethod), coded("Association", HasSemantics)},
	TableMethodImpl: {
		index("Class", TableTypeDef), coded("MethodBody", MethodDefOrRef),
		coded("MethodDeclaration", MethodDefOrRef),
	},
	TableModuleRef: {str("Name")},
	TableTypeSpec:  {blob("Signature")},
	TableImplMap: {
		fixed16("MappingFlags"), coded("MemberForwarded", MemberForwarded),
		str("ImportName"), index("ImportScope", TableModuleRef),
	},
	TableFieldRva: {fixed32("RVA"), index("Field", TableField)},
	TableAssembly: {
		fixed32("HashAlgId"), fixed16("MajorVersion"), fixed16("MinorVersion"),
		fixed16("BuildNumber"), fixed16("RevisionNumber"), fixed32("Flags"),
		blob("PublicKey"), str("Name"), str("Culture"),
	},
	TableAssemblyRef: {
		fixed16("MajorVersion"), fixed16("MinorVersion"), fixed16("BuildNumber"),
		fixed16("RevisionNumber"), fixed32("Flags"), blob("PublicKeyOrToken"),
		str("Name"), str("Culture"), blob("HashValue"),
	},
	TableFile: {fixed32("Flags"), str("Name"), blob("HashValue")},
	TableExportedType: {
		fixed32("Flags"), fixed32("TypeDefId"), str("Name"), str("Namespace"),
		coded("Implementation", Implementation),
	},
	TableManifestResource: {
		fixed32("Offset"), fixed32("Flags"), str("Name"), coded("Implementation", Implementation),
	},
	TableNestedClass: {index("NestedClass", TableTypeDef), index("EnclosingClass", TableTypeDef)},
	TableGenericParam: {
		fixed16("Number"), fixed16("Flags"), coded("Owner", TypeOrMethodDef), str("Name"),
	},
	TableMethodSpec:             {coded("Method", MethodDefOrRef), blob("Instantiation")},
	TableGenericParamConstraint: {index("Owner", TableGenericParam), coded("Constraint", TypeDefOrRef)},
}

// Schema returns the column layout of table, or nil for tables this
// package keeps as RawRow.
func Schema(table TableKind) []Column {
	return schemas[table]
}

// ColumnIndex returns the position of the named column in table's schema.
func ColumnIndex(table TableKind, name string) (int, bool) {
	for i, c := range schemas[table] {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}
