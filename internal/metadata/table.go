// Package metadata defines the addressing model of a CLI metadata image:
// table kinds, tokens, coded indices, tagged row structs and the RowStore
// collaborator every higher layer reads through.
package metadata

import "fmt"

// TableKind identifies one metadata table (ECMA-335 II.22).
type TableKind uint8

const (
	TableModule                 TableKind = 0x00
	TableTypeRef                TableKind = 0x01
	TableTypeDef                TableKind = 0x02
	TableFieldPtr               TableKind = 0x03
	TableField                  TableKind = 0x04
	TableMethodPtr              TableKind = 0x05
	TableMethod                 TableKind = 0x06
	TableParamPtr               TableKind = 0x07
	TableParam                  TableKind = 0x08
	TableInterfaceImpl          TableKind = 0x09
	TableMemberRef              TableKind = 0x0A
	TableConstant               TableKind = 0x0B
	TableCustomAttribute        TableKind = 0x0C
	TableFieldMarshal           TableKind = 0x0D
	TableDeclSecurity           TableKind = 0x0E
	TableClassLayout            TableKind = 0x0F
	TableFieldLayout            TableKind = 0x10
	TableStandAloneSig          TableKind = 0x11
	TableEventMap               TableKind = 0x12
	TableEventPtr               TableKind = 0x13
	TableEvent                  TableKind = 0x14
	TablePropertyMap            TableKind = 0x15
	TablePropertyPtr            TableKind = 0x16
	TableProperty               TableKind = 0x17
	TableMethodSemantics        TableKind = 0x18
	TableMethodImpl             TableKind = 0x19
	TableModuleRef              TableKind = 0x1A
	TableTypeSpec               TableKind = 0x1B
	TableImplMap                TableKind = 0x1C
	TableFieldRva               TableKind = 0x1D
	TableEncLog                 TableKind = 0x1E
	TableEncMap                 TableKind = 0x1F
	TableAssembly               TableKind = 0x20
	TableAssemblyProcessor      TableKind = 0x21
	TableAssemblyOS             TableKind = 0x22
	TableAssemblyRef            TableKind = 0x23
	TableAssemblyRefProcessor   TableKind = 0x24
	TableAssemblyRefOS          TableKind = 0x25
	TableFile                   TableKind = 0x26
	TableExportedType           TableKind = 0x27
	TableManifestResource       TableKind = 0x28
	TableNestedClass            TableKind = 0x29
	TableGenericParam           TableKind = 0x2A
	TableMethodSpec             TableKind = 0x2B
	TableGenericParamConstraint TableKind = 0x2C

	// TableUserString is not a table; user-string tokens (ldstr operands)
	// carry this value in their high byte.
	TableUserString TableKind = 0x70

	// TableInvalid never addresses a row. Coded indices with a reserved tag
	// decode to it.
	TableInvalid TableKind = 0xFF
)

var tableNames = map[TableKind]string{
	TableModule:                 "Module",
	TableTypeRef:                "TypeRef",
	TableTypeDef:                "TypeDef",
	TableFieldPtr:               "FieldPtr",
	TableField:                  "Field",
	TableMethodPtr:              "MethodPtr",
	TableMethod:                 "Method",
	TableParamPtr:               "ParamPtr",
	TableParam:                  "Param",
	TableInterfaceImpl:          "InterfaceImpl",
	TableMemberRef:              "MemberRef",
	TableConstant:               "Constant",
	TableCustomAttribute:        "CustomAttribute",
	TableFieldMarshal:           "FieldMarshal",
	TableDeclSecurity:           "DeclSecurity",
	TableClassLayout:            "ClassLayout",
	TableFieldLayout:            "FieldLayout",
	TableStandAloneSig:          "StandAloneSig",
	TableEventMap:               "EventMap",
	TableEventPtr:               "EventPtr",
	TableEvent:                  "Event",
	TablePropertyMap:            "PropertyMap",
	TablePropertyPtr:            "PropertyPtr",
	TableProperty:               "Property",
	TableMethodSemantics:        "MethodSemantics",
	TableMethodImpl:             "MethodImpl",
	TableModuleRef:              "ModuleRef",
	TableTypeSpec:               "TypeSpec",
	TableImplMap:                "ImplMap",
	TableFieldRva:               "FieldRva",
	TableEncLog:                 "EncLog",
	TableEncMap:                 "EncMap",
	TableAssembly:               "Assembly",
	TableAssemblyProcessor:      "AssemblyProcessor",
	TableAssemblyOS:             "AssemblyOS",
	TableAssemblyRef:            "AssemblyRef",
	TableAssemblyRefProcessor:   "AssemblyRefProcessor",
	TableAssemblyRefOS:          "AssemblyRefOS",
	TableFile:                   "File",
	TableExportedType:           "ExportedType",
	TableManifestResource:       "ManifestResource",
	TableNestedClass:            "NestedClass",
	TableGenericParam:           "GenericParam",
	TableMethodSpec:             "MethodSpec",
	TableGenericParamConstraint: "GenericParamConstraint",
	TableUserString:             "UserString",
}

var tablesByName map[string]TableKind

func init() {
	tablesByName = make(map[string]TableKind, len(tableNames))
	for k, name := range tableNames {
		tablesByName[name] = k
	}
}

func (t TableKind) String() string {
	if name, ok := tableNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Table(0x%02X)", uint8(t))
}

// IsTable reports whether t addresses a real metadata table.
func (t TableKind) IsTable() bool {
	return t <= TableGenericParamConstraint
}

// TableByName maps a table name such as "TypeDef" back to its kind.
func TableByName(name string) (TableKind, bool) {
	t, ok := tablesByName[name]
	return t, ok
}

// Tables returns every real table kind in id order.
func Tables() []TableKind {
	out := make([]TableKind, 0, int(TableGenericParamConstraint)+1)
	for t := TableModule; t <= TableGenericParamConstraint; t++ {
		out = append(out, t)
	}
	return out
}
