package member

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// Module is the entry point into one loaded image and also the member for
// Module row 1. It owns the factory and every relation index; all of them
// live as long as the Module.
type Module struct {
	base

	store    metadata.RowStore
	listener diag.Listener
	log      *zap.Logger
	factory  *Factory
	rel      relations

	name       string
	generation uint16
	mvid       uuid.UUID

	topLevel relation.Lazy[*OwnedList[*TypeDefinition]]
	assembly relation.Lazy[*AssemblyDefinition]
	corlib   relation.Lazy[Member]
}

type Option func(*Module)

// WithListener sets the diagnostic sink. The default collects and logs.
func WithListener(l diag.Listener) Option {
	return func(m *Module) { m.listener = l }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Module) { m.log = log }
}

// Open reads the module row of store and prepares the factory. An absent
// store or an image without a module row is fatal.
func Open(store metadata.RowStore, opts ...Option) (*Module, error) {
	if store == nil {
		return nil, errors.New("open module: nil row store")
	}
	m := &Module{store: store}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.listener == nil {
		m.listener = diag.NewCollector(m.log)
	}

	tok := metadata.NewToken(metadata.TableModule, 1)
	if store.RowCount(metadata.TableModule) == 0 {
		return nil, errors.New("open module: image has no module row")
	}
	row, err := metadata.RowAs[metadata.ModuleRow](store, metadata.TableModule, 1)
	if err != nil {
		return nil, errors.Wrap(err, "open module: read module row")
	}
	m.base.init(m, tok)
	m.generation = uint16(row.Generation)
	if m.name, err = store.String(row.Name); err != nil {
		return nil, errors.Wrap(err, "open module: read module name")
	}
	if m.mvid, err = store.GUID(row.Mvid); err != nil {
		return nil, errors.Wrap(err, "open module: read module mvid")
	}
	m.factory = newFactory(m)
	m.log.Debug("module opened", zap.String("name", m.name), zap.Stringer("mvid", m.mvid))
	return m, nil
}

func (m *Module) Name() string      { return m.name }
func (m *Module) Generation() uint16 { return m.generation }
func (m *Module) Mvid() uuid.UUID    { return m.mvid }

// Store returns the row store the module reads from.
func (m *Module) Store() metadata.RowStore { return m.store }

// Listener returns the diagnostic sink.
func (m *Module) Listener() diag.Listener { return m.listener }

// Logger returns the module's logger.
func (m *Module) Logger() *zap.Logger { return m.log }

// Err returns the latched bad-image error when the module runs with a
// fail-fast listener that has tripped.
func (m *Module) Err() error {
	if l, ok := m.listener.(diag.Latch); ok {
		return l.Err()
	}
	return nil
}

// Lookup returns the member for token, or false when the token is null,
// dangling, names a table without a member kind, or the module has halted.
func (m *Module) Lookup(token metadata.Token) (Member, bool) {
	if m.Err() != nil {
		return nil, false
	}
	return m.factory.Lookup(token)
}

// Require is Lookup for references that must exist.
func (m *Module) Require(token metadata.Token) (Member, error) {
	if err := m.Err(); err != nil {
		return nil, err
	}
	mem, ok := m.factory.Lookup(token)
	if !ok {
		if err := m.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(ErrUnresolvedToken, "%s", token)
	}
	return mem, nil
}

// lookupAs resolves token and asserts its kind. A null token is quietly
// absent; a dangling one or one of the wrong kind is reported against
// from.
func lookupAs[T Member](m *Module, from, token metadata.Token) (T, bool) {
	var zero T
	if token.IsNull() {
		return zero, false
	}
	mem, ok := m.Lookup(token)
	if !ok {
		if m.Err() == nil {
			m.report(diag.BadImage(from, "reference to %s does not resolve", token))
		}
		return zero, false
	}
	v, ok := mem.(T)
	if !ok {
		m.report(diag.BadImage(from, "reference %s has kind %T, want %T", token, mem, zero))
	}
	return v, ok
}

func (m *Module) report(err *diag.BadImageError) {
	m.listener.BadImage(err)
}

// decode splits a coded column value. A zero value is absent without a
// report; an invalid tag is reported against from.
func (m *Module) decode(kind metadata.CodedIndex, raw uint32, from metadata.Token) (metadata.Token, bool) {
	if raw == 0 {
		return metadata.Token{Table: metadata.TableInvalid}, false
	}
	tok, ok := m.store.DecodeIndex(kind, raw)
	if !ok {
		m.report(diag.BadImage(from, "invalid %s value 0x%X", kind, raw))
		return tok, false
	}
	if tok.IsNull() {
		return tok, false
	}
	return tok, true
}

// resolveCoded decodes raw and looks the result up.
func (m *Module) resolveCoded(kind metadata.CodedIndex, raw uint32, from metadata.Token) Member {
	tok, ok := m.decode(kind, raw, from)
	if !ok {
		return nil
	}
	mem, _ := lookupAs[Member](m, from, tok)
	return mem
}

func (m *Module) str(from metadata.Token, idx uint32) string {
	s, err := m.store.String(idx)
	if err != nil {
		m.report(diag.Wrap(from, err))
		return ""
	}
	return s
}

func (m *Module) blob(from metadata.Token, idx uint32) []byte {
	b, err := m.store.Blob(idx)
	if err != nil {
		m.report(diag.Wrap(from, err))
		return nil
	}
	return b
}

// UserString reads a #US heap entry, addressed by a UserString token.
func (m *Module) UserString(token metadata.Token) (string, error) {
	if token.Table != metadata.TableUserString {
		return "", errors.Newf("%s is not a user string token", token)
	}
	return m.store.UserString(token.Rid)
}

// Assembly returns the manifest of this module, if it has one.
func (m *Module) Assembly() (*AssemblyDefinition, bool) {
	a := m.assembly.Get(func() *AssemblyDefinition {
		if m.store.RowCount(metadata.TableAssembly) == 0 {
			return nil
		}
		a, _ := lookupAs[*AssemblyDefinition](m, m.tok, metadata.NewToken(metadata.TableAssembly, 1))
		return a
	})
	return a, a != nil
}

// TopLevelTypes returns the type definitions that have no enclosing type,
// owned by the module, in rid order.
func (m *Module) TopLevelTypes() []*TypeDefinition {
	return m.topLevel.Get(func() *OwnedList[*TypeDefinition] {
		n := m.store.RowCount(metadata.TableTypeDef)
		rids := make([]uint32, 0, n)
		for rid := uint32(1); rid <= n; rid++ {
			if _, nested := m.EnclosingType(rid); !nested {
				rids = append(rids, rid)
			}
		}
		return ownedFrom(m, m.tok, metadata.TableTypeDef, rids, as[*TypeDefinition])
	}).Items()
}

// AllTypes returns every type definition in rid order, nested ones
// included.
func (m *Module) AllTypes() []*TypeDefinition {
	return membersOf[*TypeDefinition](m, metadata.TableTypeDef)
}

func (m *Module) AssemblyReferences() []*AssemblyReference {
	return membersOf[*AssemblyReference](m, metadata.TableAssemblyRef)
}

func (m *Module) ModuleReferences() []*ModuleReference {
	return membersOf[*ModuleReference](m, metadata.TableModuleRef)
}

func (m *Module) ExportedTypes() []*ExportedType {
	return membersOf[*ExportedType](m, metadata.TableExportedType)
}

func (m *Module) ManifestResources() []*ManifestResource {
	return membersOf[*ManifestResource](m, metadata.TableManifestResource)
}

// membersOf materializes every row of table that resolves to a T.
func membersOf[T Member](m *Module, table metadata.TableKind) []T {
	n := m.store.RowCount(table)
	out := make([]T, 0, n)
	for rid := uint32(1); rid <= n; rid++ {
		if v, ok := lookupAs[T](m, m.tok, metadata.NewToken(table, rid)); ok {
			out = append(out, v)
		}
	}
	return out
}

// FindType returns the type definition with the given full name, using
// '+' between nested type names.
func (m *Module) FindType(fullName string) (*TypeDefinition, bool) {
	for _, t := range m.AllTypes() {
		if t.FullName() == fullName {
			return t, true
		}
	}
	return nil, false
}

var corLibNames = map[string]bool{
	"mscorlib":               true,
	"System.Runtime":         true,
	"System.Private.CoreLib": true,
	"netstandard":            true,
}

// CorLib returns the assembly that defines the primitive types this module
// refers to: the newest reference to a known core library, or the module's
// own assembly when it is the core library.
func (m *Module) CorLib() (Member, bool) {
	c := m.corlib.Get(func() Member {
		var best *AssemblyReference
		n := m.store.RowCount(metadata.TableAssemblyRef)
		for rid := uint32(1); rid <= n; rid++ {
			ref, ok := lookupAs[*AssemblyReference](m, m.tok, metadata.NewToken(metadata.TableAssemblyRef, rid))
			if !ok || !corLibNames[ref.Name()] {
				continue
			}
			if best == nil || best.Version().Less(ref.Version()) {
				best = ref
			}
		}
		if best != nil {
			return best
		}
		if a, ok := m.Assembly(); ok && corLibNames[a.Name()] {
			return a
		}
		return nil
	})
	return c, c != nil
}

// IsCorLib reports whether this module is itself a core library.
func (m *Module) IsCorLib() bool {
	a, ok := m.Assembly()
	return ok && corLibNames[a.Name()]
}

// ResolveAll materializes every member of every table using up to workers
// goroutines. It stops early when ctx is cancelled or the module halts.
func (m *Module) ResolveAll(ctx context.Context, workers int) (int, error) {
	if workers < 1 {
		workers = 1
	}
	tokens := make(chan metadata.Token)
	counts := make([]int, workers)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(tokens)
		for _, table := range metadata.Tables() {
			if !hasMemberKind(table) {
				continue
			}
			n := m.store.RowCount(table)
			for rid := uint32(1); rid <= n; rid++ {
				select {
				case tokens <- metadata.NewToken(table, rid):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for tok := range tokens {
				if err := m.Err(); err != nil {
					return err
				}
				if mem, ok := m.Lookup(tok); ok {
					counts[w]++
					warm(mem)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	total := 0
	for _, c := range counts {
		total += c
	}
	m.log.Debug("resolve all finished", zap.Int("members", total), zap.Int("workers", workers))
	return total, err
}

// warm forces the lazy getters that decode blobs, so malformed signatures
// surface during ResolveAll instead of later.
func warm(mem Member) {
	switch v := mem.(type) {
	case *TypeSpecification:
		v.Signature()
	case *FieldDefinition:
		v.Signature()
	case *MethodDefinition:
		v.Signature()
	case *PropertyDefinition:
		v.Signature()
	case *MemberReference:
		v.Signature()
	case *TypeDefinition:
		v.FullName()
		v.BaseType()
	case *ExportedType:
		v.ResolutionScope()
	}
}

func (m *Module) String() string {
	var sb strings.Builder
	sb.WriteString(m.name)
	if a, ok := m.Assembly(); ok {
		sb.WriteString(" (")
		sb.WriteString(a.FullName())
		sb.WriteString(")")
	}
	return sb.String()
}
