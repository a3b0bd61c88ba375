package member

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// AssemblyFlags bits.
const (
	AssemblyPublicKey           = 0x0001
	AssemblyRetargetable        = 0x0100
	AssemblyContentTypeMask     = 0x0E00
	AssemblyDisableJITOptimizer = 0x4000
	AssemblyEnableJITTracking   = 0x8000
)

// Version is a four part assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

func versionOf(major, minor, build, revision uint32) Version {
	return Version{uint16(major), uint16(minor), uint16(build), uint16(revision)}
}

// Less orders versions component by component.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	if v.Build != o.Build {
		return v.Build < o.Build
	}
	return v.Revision < o.Revision
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// displayName formats the Name, Version, Culture, PublicKeyToken form.
func displayName(name string, v Version, culture string, keyToken []byte) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString(", Version=")
	sb.WriteString(v.String())
	sb.WriteString(", Culture=")
	if culture == "" {
		sb.WriteString("neutral")
	} else {
		sb.WriteString(culture)
	}
	sb.WriteString(", PublicKeyToken=")
	if len(keyToken) == 0 {
		sb.WriteString("null")
	} else {
		sb.WriteString(hex.EncodeToString(keyToken))
	}
	return sb.String()
}

// AssemblyDefinition is the manifest of the assembly this module belongs to.
type AssemblyDefinition struct {
	base
	hashAlg uint32
	version Version
	flags   uint32
	keyIdx  uint32
	name    string
	culture string

	security relation.Lazy[*OwnedList[*SecurityDeclaration]]
}

func newAssemblyDefinition(m *Module, tok metadata.Token, row metadata.AssemblyRow) *AssemblyDefinition {
	a := &AssemblyDefinition{
		hashAlg: row.HashAlgId,
		version: versionOf(row.MajorVersion, row.MinorVersion, row.BuildNumber, row.RevisionNumber),
		flags:   row.Flags,
		keyIdx:  row.PublicKey,
		name:    m.str(tok, row.Name),
		culture: m.str(tok, row.Culture),
	}
	a.base.init(m, tok)
	return a
}

func (a *AssemblyDefinition) Name() string      { return a.name }
func (a *AssemblyDefinition) Culture() string   { return a.culture }
func (a *AssemblyDefinition) Version() Version  { return a.version }
func (a *AssemblyDefinition) Flags() uint32     { return a.flags }
func (a *AssemblyDefinition) HashAlgId() uint32 { return a.hashAlg }
func (a *AssemblyDefinition) PublicKey() []byte { return a.mod.blob(a.tok, a.keyIdx) }

// FullName shows the public key in full; computing its token needs SHA-1
// over the key and is left to callers.
func (a *AssemblyDefinition) FullName() string {
	return displayName(a.name, a.version, a.culture, a.PublicKey())
}

func (a *AssemblyDefinition) SecurityDeclarations() *OwnedList[*SecurityDeclaration] {
	return a.security.Get(func() *OwnedList[*SecurityDeclaration] {
		return ownedFrom(a.mod, a.tok, metadata.TableDeclSecurity, a.mod.SecurityDeclarations(a.tok), as[*SecurityDeclaration])
	})
}

// AssemblyReference is a dependency on another assembly.
type AssemblyReference struct {
	base
	version Version
	flags   uint32
	keyIdx  uint32
	name    string
	culture string
	hashIdx uint32
}

func newAssemblyReference(m *Module, tok metadata.Token, row metadata.AssemblyRefRow) *AssemblyReference {
	r := &AssemblyReference{
		version: versionOf(row.MajorVersion, row.MinorVersion, row.BuildNumber, row.RevisionNumber),
		flags:   row.Flags,
		keyIdx:  row.PublicKeyOrToken,
		name:    m.str(tok, row.Name),
		culture: m.str(tok, row.Culture),
		hashIdx: row.HashValue,
	}
	r.base.init(m, tok)
	return r
}

func (r *AssemblyReference) Name() string             { return r.name }
func (r *AssemblyReference) Culture() string          { return r.culture }
func (r *AssemblyReference) Version() Version         { return r.version }
func (r *AssemblyReference) Flags() uint32            { return r.flags }
func (r *AssemblyReference) PublicKeyOrToken() []byte { return r.mod.blob(r.tok, r.keyIdx) }
func (r *AssemblyReference) HashValue() []byte        { return r.mod.blob(r.tok, r.hashIdx) }
func (r *AssemblyReference) HasPublicKey() bool       { return r.flags&AssemblyPublicKey != 0 }
func (r *AssemblyReference) FullName() string {
	return displayName(r.name, r.version, r.culture, r.PublicKeyOrToken())
}
func (r *AssemblyReference) String() string { return r.FullName() }

// ModuleReference names another module, typically a native library.
type ModuleReference struct {
	base
	name string
}

func newModuleReference(m *Module, tok metadata.Token, row metadata.ModuleRefRow) *ModuleReference {
	r := &ModuleReference{name: m.str(tok, row.Name)}
	r.base.init(m, tok)
	return r
}

func (r *ModuleReference) Name() string   { return r.name }
func (r *ModuleReference) String() string { return r.name }

// FileReference is a file of a multi-file assembly.
type FileReference struct {
	base
	flags   uint32
	name    string
	hashIdx uint32
}

const fileContainsNoMetadata = 0x0001

func newFileReference(m *Module, tok metadata.Token, row metadata.FileRow) *FileReference {
	f := &FileReference{flags: row.Flags, name: m.str(tok, row.Name), hashIdx: row.HashValue}
	f.base.init(m, tok)
	return f
}

func (f *FileReference) Name() string           { return f.name }
func (f *FileReference) Flags() uint32          { return f.flags }
func (f *FileReference) HashValue() []byte      { return f.mod.blob(f.tok, f.hashIdx) }
func (f *FileReference) ContainsMetadata() bool { return f.flags&fileContainsNoMetadata == 0 }

// ManifestResource is a resource embedded in or linked from the assembly.
type ManifestResource struct {
	base
	offset  uint32
	flags   uint32
	name    string
	implRaw uint32

	impl relation.Lazy[Member]
}

func newManifestResource(m *Module, tok metadata.Token, row metadata.ManifestResourceRow) *ManifestResource {
	r := &ManifestResource{offset: row.Offset, flags: row.Flags, name: m.str(tok, row.Name), implRaw: row.Implementation}
	r.base.init(m, tok)
	return r
}

func (r *ManifestResource) Name() string   { return r.name }
func (r *ManifestResource) Offset() uint32 { return r.offset }
func (r *ManifestResource) Flags() uint32  { return r.flags }
func (r *ManifestResource) IsPublic() bool { return r.flags&0x7 == 0x1 }

// Implementation is nil for resources embedded in this module.
func (r *ManifestResource) Implementation() Member {
	return r.impl.Get(func() Member {
		return r.mod.resolveCoded(metadata.Implementation, r.implRaw, r.tok)
	})
}

// ImplementationMap describes a P/Invoke import.
type ImplementationMap struct {
	base
	flags     uint16
	memberRaw uint32
	name      string
	scope     uint32

	member relation.Lazy[Member]
}

func newImplementationMap(m *Module, tok metadata.Token, row metadata.ImplMapRow) *ImplementationMap {
	im := &ImplementationMap{
		flags:     uint16(row.MappingFlags),
		memberRaw: row.MemberForwarded,
		name:      m.str(tok, row.ImportName),
		scope:     row.ImportScope,
	}
	im.base.init(m, tok)
	return im
}

func (im *ImplementationMap) MappingFlags() uint16 { return im.flags }
func (im *ImplementationMap) ImportName() string   { return im.name }

func (im *ImplementationMap) Scope() (*ModuleReference, bool) {
	return lookupAs[*ModuleReference](im.mod, im.tok, metadata.NewToken(metadata.TableModuleRef, im.scope))
}

// Member is the forwarded field or method.
func (im *ImplementationMap) Member() Member {
	return im.member.Get(func() Member {
		owner, ok := im.mod.ImplementationMapOwner(im.tok.Rid)
		if !ok {
			return im.mod.resolveCoded(metadata.MemberForwarded, im.memberRaw, im.tok)
		}
		mem, _ := lookupAs[Member](im.mod, im.tok, owner)
		return mem
	})
}

func (im *ImplementationMap) String() string {
	if s, ok := im.Scope(); ok {
		return s.Name() + "!" + im.name
	}
	return im.name
}
