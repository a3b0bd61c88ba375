package graph

import (
	"io/fs"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentic-research/clrmeta/internal/exports"
	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/metadata"
)

// ExportLookup reports the native export backed by a method token.
type ExportLookup interface {
	ExportInfo(token metadata.Token) (exports.ExportInfo, bool)
}

// Projection is a Graph over a Module:
//
//	module
//	assembly
//	types/<full name>/{info, fields/, methods/, properties/, events/, nested/, attributes/}
//	references/<assembly name>
//	exported/<full name>
//
// Nothing is materialized until a path is visited. Rendered files and
// directory listings are kept in bounded FIFO caches.
type Projection struct {
	mod     *member.Module
	exports ExportLookup
	log     *zap.Logger
	modTime time.Time

	content *fifo[[]byte]
	dirs    *fifo[[]entry]
}

type Option func(*Projection)

func WithExports(e ExportLookup) Option { return func(p *Projection) { p.exports = e } }

func WithLogger(l *zap.Logger) Option { return func(p *Projection) { p.log = l } }

// WithCacheSize bounds each of the content and listing caches.
func WithCacheSize(n int) Option {
	return func(p *Projection) {
		p.content = newFIFO[[]byte](n)
		p.dirs = newFIFO[[]entry](n)
	}
}

func NewProjection(m *member.Module, opts ...Option) *Projection {
	p := &Projection{
		mod:     m,
		log:     zap.NewNop(),
		modTime: time.Now(),
		content: newFIFO[[]byte](1024),
		dirs:    newFIFO[[]entry](1024),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// target is a resolved path: a directory with a listing function or a
// file with a renderer.
type target struct {
	member member.Member
	list   func() []entry
	render func() []byte
}

func (t target) isDir() bool { return t.list != nil }

type entry struct {
	name   string
	target target
}

// GetNode implements Graph.
func (p *Projection) GetNode(id string) (*Node, error) {
	id = normalize(id)
	t, err := p.resolve(id)
	if err != nil {
		return nil, err
	}

	n := &Node{ID: id, ModTime: p.modTime}
	if t.member != nil {
		n.Properties = map[string][]byte{"token": []byte(t.member.Token().String())}
	}
	if t.isDir() {
		n.Mode = fs.ModeDir
		n.Children = childIDs(id, p.listing(id, t))
		return n, nil
	}
	n.Data = p.contentOf(id, t)
	return n, nil
}

// ListChildren implements Graph.
func (p *Projection) ListChildren(id string) ([]string, error) {
	id = normalize(id)
	t, err := p.resolve(id)
	if err != nil {
		return nil, err
	}
	if !t.isDir() {
		return nil, nil
	}
	return childIDs(id, p.listing(id, t)), nil
}

// ReadContent implements Graph.
func (p *Projection) ReadContent(id string, buf []byte, offset int64) (int, error) {
	id = normalize(id)
	t, err := p.resolve(id)
	if err != nil {
		return 0, err
	}
	if t.isDir() {
		return 0, nil
	}

	data := p.contentOf(id, t)
	if offset >= int64(len(data)) {
		return 0, nil
	}
	end := offset + int64(len(buf))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return copy(buf, data[offset:end]), nil
}

// Invalidate implements Graph.
func (p *Projection) Invalidate(id string) {
	id = normalize(id)
	p.content.evict(id)
	p.dirs.evict(id)
}

func (p *Projection) contentOf(id string, t target) []byte {
	if data, ok := p.content.get(id); ok {
		return data
	}
	data := t.render()
	p.content.put(id, data)
	return data
}

func (p *Projection) listing(id string, t target) []entry {
	if es, ok := p.dirs.get(id); ok {
		return es
	}
	es := t.list()
	p.dirs.put(id, es)
	return es
}

// resolve walks id one segment at a time from the root.
func (p *Projection) resolve(id string) (target, error) {
	cur := target{list: p.rootEntries}
	if id == "" {
		return cur, nil
	}
	walked := ""
	for _, seg := range strings.Split(id, "/") {
		if !cur.isDir() {
			return target{}, ErrNotFound
		}
		next, ok := find(p.listing(walked, cur), seg)
		if !ok {
			return target{}, ErrNotFound
		}
		cur = next
		walked = join(walked, seg)
	}
	return cur, nil
}

func (p *Projection) rootEntries() []entry {
	es := []entry{{name: "module", target: target{member: p.mod, render: p.renderModule}}}
	if a, ok := p.mod.Assembly(); ok {
		es = append(es, entry{name: "assembly", target: target{member: a, render: func() []byte { return renderAssembly(a) }}})
	}
	return append(es,
		entry{name: "types", target: target{list: p.typeEntries}},
		entry{name: "references", target: target{list: p.referenceEntries}},
		entry{name: "exported", target: target{list: p.exportedEntries}},
	)
}

func (p *Projection) typeEntries() []entry {
	types := p.mod.TopLevelTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.FullName()
	}
	return entries(names, func(i int) target { return p.typeDir(types[i]) })
}

func (p *Projection) typeDir(t *member.TypeDefinition) target {
	return target{member: t, list: func() []entry {
		return []entry{
			{name: "info", target: target{member: t, render: func() []byte { return renderType(t) }}},
			{name: "fields", target: target{member: t, list: func() []entry { return p.fieldEntries(t) }}},
			{name: "methods", target: target{member: t, list: func() []entry { return p.methodEntries(t) }}},
			{name: "properties", target: target{member: t, list: func() []entry { return propertyEntries(t) }}},
			{name: "events", target: target{member: t, list: func() []entry { return eventEntries(t) }}},
			{name: "nested", target: target{member: t, list: func() []entry { return p.nestedEntries(t) }}},
			{name: "attributes", target: target{member: t, list: func() []entry { return attributeEntries(t) }}},
		}
	}}
}

func (p *Projection) fieldEntries(t *member.TypeDefinition) []entry {
	fields := t.Fields().Items()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return entries(names, func(i int) target {
		f := fields[i]
		return target{member: f, render: func() []byte { return renderField(f) }}
	})
}

func (p *Projection) methodEntries(t *member.TypeDefinition) []entry {
	methods := t.Methods().Items()
	names := make([]string, len(methods))
	for i, md := range methods {
		names[i] = md.Name()
	}
	return entries(names, func(i int) target {
		md := methods[i]
		return target{member: md, render: func() []byte { return p.renderMethod(md) }}
	})
}

func propertyEntries(t *member.TypeDefinition) []entry {
	props := t.Properties().Items()
	names := make([]string, len(props))
	for i, pd := range props {
		names[i] = pd.Name()
	}
	return entries(names, func(i int) target {
		pd := props[i]
		return target{member: pd, render: func() []byte { return renderProperty(pd) }}
	})
}

func eventEntries(t *member.TypeDefinition) []entry {
	events := t.Events().Items()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name()
	}
	return entries(names, func(i int) target {
		e := events[i]
		return target{member: e, render: func() []byte { return renderEvent(e) }}
	})
}

func (p *Projection) nestedEntries(t *member.TypeDefinition) []entry {
	nested := t.NestedTypes().Items()
	names := make([]string, len(nested))
	for i, n := range nested {
		names[i] = n.Name()
	}
	return entries(names, func(i int) target { return p.typeDir(nested[i]) })
}

func attributeEntries(owner member.HasCustomAttributes) []entry {
	attrs := owner.CustomAttributes()
	names := make([]string, len(attrs))
	for i, ca := range attrs {
		names[i] = ca.String()
	}
	return entries(names, func(i int) target {
		ca := attrs[i]
		return target{member: ca, render: func() []byte { return renderAttribute(ca) }}
	})
}

func (p *Projection) referenceEntries() []entry {
	refs := p.mod.AssemblyReferences()
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name()
	}
	return entries(names, func(i int) target {
		r := refs[i]
		return target{member: r, render: func() []byte { return renderAssemblyRef(r) }}
	})
}

func (p *Projection) exportedEntries() []entry {
	types := p.mod.ExportedTypes()
	names := make([]string, len(types))
	for i, e := range types {
		names[i] = e.FullName()
	}
	return entries(names, func(i int) target {
		e := types[i]
		return target{member: e, render: func() []byte { return renderExportedType(e) }}
	})
}

// entries pairs names with targets, making names path-safe and unique.
// Later duplicates get a "~N" suffix in rid order.
func entries(names []string, at func(i int) target) []entry {
	seen := make(map[string]int, len(names))
	out := make([]entry, len(names))
	for i, name := range names {
		name = sanitize(name)
		seen[name]++
		if n := seen[name]; n > 1 {
			name += "~" + strconv.Itoa(n)
		}
		out[i] = entry{name: name, target: at(i)}
	}
	return out
}

func sanitize(name string) string {
	switch name {
	case "", ".", "..":
		return "_" + name
	}
	return strings.ReplaceAll(name, "/", "_")
}

func find(es []entry, name string) (target, bool) {
	for _, e := range es {
		if e.name == name {
			return e.target, true
		}
	}
	return target{}, false
}

func childIDs(parent string, es []entry) []string {
	ids := make([]string, len(es))
	for i, e := range es {
		ids[i] = join(parent, e.name)
	}
	return ids
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func normalize(id string) string {
	return strings.Trim(id, "/")
}
