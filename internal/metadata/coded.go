package metadata

import (
	"math/bits"

	"github.com/cockroachdb/errors"
)

// CodedIndex names a polymorphic foreign-key column kind (ECMA-335 II.24.2.6).
// The low bits of a coded value select the target table, the rest is the rid.
type CodedIndex uint8

const (
	TypeDefOrRef CodedIndex = iota
	HasConstant
	HasCustomAttribute
	HasFieldMarshal
	HasDeclSecurity
	MemberRefParent
	HasSemantics
	MethodDefOrRef
	MemberForwarded
	Implementation
	CustomAttributeType
	ResolutionScope
	TypeOrMethodDef
)

// codedTables lists the target table for every tag value, in tag order.
// TableInvalid marks reserved tags.
var codedTables = [...][]TableKind{
	TypeDefOrRef:    {TableTypeDef, TableTypeRef, TableTypeSpec},
	HasConstant:     {TableField, TableParam, TableProperty},
	HasFieldMarshal: {TableField, TableParam},
	HasDeclSecurity: {TableTypeDef, TableMethod, TableAssembly},
	MemberRefParent: {TableTypeDef, TableTypeRef, TableModuleRef, TableMethod, TableTypeSpec},
	HasSemantics:    {TableEvent, TableProperty},
	MethodDefOrRef:  {TableMethod, TableMemberRef},
	MemberForwarded: {TableField, TableMethod},
	Implementation:  {TableFile, TableAssemblyRef, TableExportedType},
	CustomAttributeType: {
		TableInvalid, TableInvalid, TableMethod, TableMemberRef, TableInvalid,
	},
	ResolutionScope: {TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef},
	TypeOrMethodDef: {TableTypeDef, TableMethod},
	HasCustomAttribute: {
		TableMethod, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	},
}

var codedNames = [...]string{
	TypeDefOrRef:        "TypeDefOrRef",
	HasConstant:         "HasConstant",
	HasCustomAttribute:  "HasCustomAttribute",
	HasFieldMarshal:     "HasFieldMarshal",
	HasDeclSecurity:     "HasDeclSecurity",
	MemberRefParent:     "MemberRefParent",
	HasSemantics:        "HasSemantics",
	MethodDefOrRef:      "MethodDefOrRef",
	MemberForwarded:     "MemberForwarded",
	Implementation:      "Implementation",
	CustomAttributeType: "CustomAttributeType",
	ResolutionScope:     "ResolutionScope",
	TypeOrMethodDef:     "TypeOrMethodDef",
}

func (c CodedIndex) String() string {
	if int(c) < len(codedNames) {
		return codedNames[c]
	}
	return "CodedIndex(?)"
}

// Tables returns the candidate target tables in tag order.
func (c CodedIndex) Tables() []TableKind {
	if int(c) >= len(codedTables) {
		return nil
	}
	return codedTables[c]
}

// TagBits is the number of low bits holding the tag.
func (c CodedIndex) TagBits() uint {
	n := len(c.Tables())
	if n <= 1 {
		return 0
	}
	return uint(bits.Len(uint(n - 1)))
}

// Decode splits a raw coded value into a token. ok is false when the tag is
// out of range or reserved; such values must be treated as malformed.
func (c CodedIndex) Decode(raw uint32) (Token, bool) {
	tables := c.Tables()
	if len(tables) == 0 {
		return Token{Table: TableInvalid}, false
	}
	tagBits := c.TagBits()
	tag := raw & (1<<tagBits - 1)
	if int(tag) >= len(tables) || tables[tag] == TableInvalid {
		return Token{Table: TableInvalid, Rid: raw >> tagBits}, false
	}
	return Token{Table: tables[tag], Rid: raw >> tagBits}, true
}

// Encode packs token into a coded value of kind c. The null token of any
// candidate table encodes to 0.
func (c CodedIndex) Encode(token Token) (uint32, error) {
	tagBits := c.TagBits()
	for tag, table := range c.Tables() {
		if table == token.Table && table != TableInvalid {
			return token.Rid<<tagBits | uint32(tag), nil
		}
	}
	if token.Rid == 0 {
		return 0, nil
	}
	return 0, errors.Newf("table %s cannot be encoded as %s", token.Table, c)
}

// CodedIndexByName maps "TypeDefOrRef" and friends back to a CodedIndex.
func CodedIndexByName(name string) (CodedIndex, bool) {
	for i, n := range codedNames {
		if n == name {
			return CodedIndex(i), true
		}
	}
	return 0, false
}
