package graph

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agentic-research/clrmeta/internal/member"
)

// sheet accumulates "key: value" lines.
type sheet struct {
	strings.Builder
}

func (s *sheet) kv(key string, value any) {
	fmt.Fprintf(&s.Builder, "%s: %v\n", key, value)
}

func (s *sheet) hex(key string, b []byte) {
	if len(b) > 0 {
		s.kv(key, hex.EncodeToString(b))
	}
}

func (s *sheet) list(key string, items []string) {
	if len(items) == 0 {
		return
	}
	s.WriteString(key + ":\n")
	for _, it := range items {
		s.WriteString("  " + it + "\n")
	}
}

func (s *sheet) bytes() []byte { return []byte(s.String()) }

func (p *Projection) renderModule() []byte {
	var s sheet
	m := p.mod
	s.kv("token", m.Token())
	s.kv("name", m.Name())
	s.kv("mvid", m.Mvid())
	s.kv("generation", m.Generation())
	if a, ok := m.Assembly(); ok {
		s.kv("assembly", a.FullName())
	}
	if c, ok := m.CorLib(); ok {
		s.kv("corlib", member.NameOf(c))
	}
	s.kv("is_corlib", m.IsCorLib())
	var mrefs []string
	for _, r := range m.ModuleReferences() {
		mrefs = append(mrefs, r.Name())
	}
	s.list("module_references", mrefs)
	var res []string
	for _, r := range m.ManifestResources() {
		res = append(res, fmt.Sprintf("%s offset=0x%X public=%t", r.Name(), r.Offset(), r.IsPublic()))
	}
	s.list("resources", res)
	return s.bytes()
}

func renderAssembly(a *member.AssemblyDefinition) []byte {
	var s sheet
	s.kv("token", a.Token())
	s.kv("full_name", a.FullName())
	s.kv("version", a.Version())
	s.kv("flags", fmt.Sprintf("0x%08X", a.Flags()))
	s.kv("hash_algorithm", fmt.Sprintf("0x%X", a.HashAlgId()))
	s.hex("public_key", a.PublicKey())
	s.list("attributes", attributeLines(a.CustomAttributes()))
	return s.bytes()
}

func renderAssemblyRef(r *member.AssemblyReference) []byte {
	var s sheet
	s.kv("token", r.Token())
	s.kv("full_name", r.FullName())
	s.kv("flags", fmt.Sprintf("0x%08X", r.Flags()))
	if r.HasPublicKey() {
		s.hex("public_key", r.PublicKeyOrToken())
	} else {
		s.hex("public_key_token", r.PublicKeyOrToken())
	}
	return s.bytes()
}

func renderExportedType(e *member.ExportedType) []byte {
	var s sheet
	s.kv("token", e.Token())
	s.kv("full_name", e.FullName())
	s.kv("forwarder", e.IsForwarder())
	s.kv("implementation", member.NameOf(e.Implementation()))
	s.kv("resolution_scope", member.NameOf(e.ResolutionScope()))
	return s.bytes()
}

func renderType(t *member.TypeDefinition) []byte {
	var s sheet
	s.kv("token", t.Token())
	s.kv("full_name", t.FullName())
	s.kv("namespace", t.Namespace())
	s.kv("name", t.Name())
	s.kv("flags", fmt.Sprintf("0x%08X", t.Flags()))
	if base := t.BaseType(); base != nil {
		s.kv("base", member.NameOf(base))
	}
	if d, ok := t.DeclaringType(); ok {
		s.kv("declaring_type", d.FullName())
	}
	if l, ok := t.ClassLayout(); ok {
		s.kv("packing_size", l.PackingSize())
		s.kv("class_size", l.ClassSize())
	}
	s.list("generic_parameters", genericLines(t.GenericParameters().Items()))

	var ifaces []string
	for _, i := range t.Interfaces().Items() {
		ifaces = append(ifaces, member.NameOf(i.Interface()))
	}
	s.list("interfaces", ifaces)

	var impls []string
	for _, mi := range t.MethodImplementations() {
		impls = append(impls, member.NameOf(mi.Body)+" overrides "+member.NameOf(mi.Declaration))
	}
	s.list("method_implementations", impls)

	s.kv("fields", t.Fields().Len())
	s.kv("methods", t.Methods().Len())
	s.kv("properties", t.Properties().Len())
	s.kv("events", t.Events().Len())
	s.kv("nested_types", t.NestedTypes().Len())
	s.kv("security_declarations", len(t.SecurityDeclarations()))
	return s.bytes()
}

func renderField(f *member.FieldDefinition) []byte {
	var s sheet
	s.kv("token", f.Token())
	s.kv("full_name", f.FullName())
	s.kv("flags", fmt.Sprintf("0x%04X", f.Flags()))
	if sig := f.Signature(); sig != nil {
		s.kv("type", sig)
	} else {
		s.kv("type", "<malformed>")
	}
	if c, ok := f.Constant(); ok {
		s.kv("constant", constantText(c))
	}
	if rva, ok := f.RVA(); ok {
		s.kv("rva", fmt.Sprintf("0x%08X", rva))
	}
	if off, ok := f.Offset(); ok {
		s.kv("offset", off)
	}
	s.hex("marshal", f.MarshalDescriptor())
	if im, ok := f.ImplementationMap(); ok {
		s.kv("pinvoke", im)
	}
	s.list("attributes", attributeLines(f.CustomAttributes()))
	return s.bytes()
}

func (p *Projection) renderMethod(md *member.MethodDefinition) []byte {
	var s sheet
	s.kv("token", md.Token())
	s.kv("full_name", md.FullName())
	if sig := md.Signature(); sig != nil {
		s.kv("signature", sig)
	} else {
		s.kv("signature", "<malformed>")
	}
	s.kv("flags", fmt.Sprintf("0x%04X", md.Flags()))
	s.kv("impl_flags", fmt.Sprintf("0x%04X", md.ImplFlags()))
	s.kv("rva", fmt.Sprintf("0x%08X", md.RVA()))
	s.kv("static", md.IsStatic())
	s.kv("virtual", md.IsVirtual())
	s.list("generic_parameters", genericLines(md.GenericParameters().Items()))

	var params []string
	for _, pd := range md.Parameters().Items() {
		line := fmt.Sprintf("%d %s", pd.Sequence(), pd.Name())
		if c, ok := pd.Constant(); ok {
			line += " = " + constantText(c)
		}
		params = append(params, line)
	}
	s.list("parameters", params)

	if sem, ok := md.Semantics(); ok {
		s.kv("semantics", fmt.Sprintf("0x%04X %s", sem.Attributes(), member.NameOf(sem.Association())))
	}
	if im, ok := md.ImplementationMap(); ok {
		s.kv("pinvoke", im)
	}
	if p.exports != nil {
		if info, ok := p.exports.ExportInfo(md.Token()); ok {
			s.kv("export", info)
		}
	}
	s.kv("security_declarations", len(md.SecurityDeclarations()))
	s.list("attributes", attributeLines(md.CustomAttributes()))
	return s.bytes()
}

func renderProperty(pd *member.PropertyDefinition) []byte {
	var s sheet
	s.kv("token", pd.Token())
	s.kv("full_name", pd.FullName())
	if sig := pd.Signature(); sig != nil {
		s.kv("signature", sig)
	}
	if g, ok := pd.GetMethod(); ok {
		s.kv("get", g.Name())
	}
	if set, ok := pd.SetMethod(); ok {
		s.kv("set", set.Name())
	}
	if c, ok := pd.Constant(); ok {
		s.kv("constant", constantText(c))
	}
	s.list("attributes", attributeLines(pd.CustomAttributes()))
	return s.bytes()
}

func renderEvent(e *member.EventDefinition) []byte {
	var s sheet
	s.kv("token", e.Token())
	s.kv("full_name", e.FullName())
	s.kv("type", member.NameOf(e.EventType()))
	if m, ok := e.AddMethod(); ok {
		s.kv("add", m.Name())
	}
	if m, ok := e.RemoveMethod(); ok {
		s.kv("remove", m.Name())
	}
	if m, ok := e.FireMethod(); ok {
		s.kv("fire", m.Name())
	}
	s.list("attributes", attributeLines(e.CustomAttributes()))
	return s.bytes()
}

func renderAttribute(ca *member.CustomAttribute) []byte {
	var s sheet
	s.kv("token", ca.Token())
	s.kv("type", ca.String())
	s.kv("constructor", member.NameOf(ca.Constructor()))
	s.kv("parent", member.NameOf(ca.Parent()))
	if args, ok := ca.Arguments(); ok {
		var fixed []string
		for _, v := range args.Fixed {
			fixed = append(fixed, FormatValue(v))
		}
		s.list("fixed", fixed)
		var named []string
		for _, n := range args.Named {
			kind := "property"
			if n.IsField {
				kind = "field"
			}
			named = append(named, fmt.Sprintf("%s %s = %s", kind, n.Name, FormatValue(n.Value)))
		}
		s.list("named", named)
	} else {
		s.kv("arguments", "<malformed>")
	}
	s.hex("blob", ca.Value())
	return s.bytes()
}

func attributeLines(attrs []*member.CustomAttribute) []string {
	out := make([]string, 0, len(attrs))
	for _, ca := range attrs {
		out = append(out, ca.String())
	}
	return out
}

func genericLines(params []*member.GenericParameter) []string {
	out := make([]string, 0, len(params))
	for _, g := range params {
		line := fmt.Sprintf("%d %s", g.Number(), g.Name())
		var cs []string
		for _, c := range g.Constraints().Items() {
			cs = append(cs, member.NameOf(c.Constraint()))
		}
		if len(cs) > 0 {
			line += " : " + strings.Join(cs, ", ")
		}
		out = append(out, line)
	}
	return out
}

func constantText(c *member.Constant) string {
	v, err := c.Value()
	if err != nil {
		return "<malformed>"
	}
	return FormatValue(v)
}

// FormatValue renders a decoded constant or attribute argument.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

// Describe renders mem as its file in the tree reads. It reports false for
// kinds the tree does not show.
func (p *Projection) Describe(mem member.Member) ([]byte, bool) {
	switch v := mem.(type) {
	case *member.Module:
		return p.renderModule(), true
	case *member.AssemblyDefinition:
		return renderAssembly(v), true
	case *member.AssemblyReference:
		return renderAssemblyRef(v), true
	case *member.ExportedType:
		return renderExportedType(v), true
	case *member.TypeDefinition:
		return renderType(v), true
	case *member.FieldDefinition:
		return renderField(v), true
	case *member.MethodDefinition:
		return p.renderMethod(v), true
	case *member.PropertyDefinition:
		return renderProperty(v), true
	case *member.EventDefinition:
		return renderEvent(v), true
	case *member.CustomAttribute:
		return renderAttribute(v), true
	}
	return nil, false
}
