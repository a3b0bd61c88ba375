// Package relvtab exposes the relation index written by
// rowstore.FlushRelations as the SQLite virtual table clr_relations, one
// (relation, owner, child) row per bitmap member.
package relvtab

import (
	"database/sql"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/cockroachdb/errors"
	"modernc.org/sqlite/vtab"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

// ModuleName is the name passed to CREATE VIRTUAL TABLE ... USING.
const ModuleName = "clr_relations"

const (
	colRelation = iota
	colOwner
	colChild
)

const (
	scanAll = iota
	byOwner
	byRelation
)

// childTables maps a relation to the table its bitmap rids index.
var childTables = map[string]metadata.TableKind{
	"custom_attribute":         metadata.TableCustomAttribute,
	"decl_security":            metadata.TableDeclSecurity,
	"generic_param":            metadata.TableGenericParam,
	"generic_param_constraint": metadata.TableGenericParamConstraint,
	"interface_impl":           metadata.TableInterfaceImpl,
	"method_impl":              metadata.TableMethodImpl,
	"method_semantics":         metadata.TableMethodSemantics,
	"nested_class":             metadata.TableTypeDef,
}

var (
	once      sync.Once
	singleton *Module
	initErr   error
)

// Module implements vtab.Module. modernc.org/sqlite registers modules per
// driver, so there is one Module per process and tables find their source
// database by the id given in USING clr_relations(id).
type Module struct {
	mu  sync.RWMutex
	dbs map[string]*sql.DB
}

// Register installs the module with the SQLite driver on first use and
// returns it.
func Register() (*Module, error) {
	once.Do(func() {
		singleton = &Module{dbs: make(map[string]*sql.DB)}
		if err := vtab.RegisterModule(nil, ModuleName, singleton); err != nil {
			initErr = errors.Wrap(err, "relvtab: register module")
			singleton = nil
		}
	})
	return singleton, initErr
}

// RegisterDB makes db, which must hold a relation_index table, available
// under id.
func (m *Module) RegisterDB(id string, db *sql.DB) {
	m.mu.Lock()
	m.dbs[id] = db
	m.mu.Unlock()
}

func (m *Module) UnregisterDB(id string) {
	m.mu.Lock()
	delete(m.dbs, id)
	m.mu.Unlock()
}

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	// args: module, database, table, then the USING arguments
	if len(args) < 4 {
		return nil, errors.Newf("%s: expected USING %s(id)", ModuleName, ModuleName)
	}
	id := strings.TrimSpace(args[3])

	m.mu.RLock()
	db, ok := m.dbs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.Newf("%s: unknown database id %q", ModuleName, id)
	}

	if err := ctx.Declare("CREATE TABLE x(relation TEXT, owner TEXT, child TEXT)"); err != nil {
		return nil, err
	}
	return &table{db: db}, nil
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

type table struct {
	db *sql.DB
}

// BestIndex pushes down one equality: on owner when present, else on
// relation. Both map onto the relation_index primary key.
func (t *table) BestIndex(info *vtab.IndexInfo) error {
	var rel *vtab.Constraint
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Op != vtab.OpEQ {
			continue
		}
		switch c.Column {
		case colOwner:
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = byOwner
			info.EstimatedCost = 10
			info.EstimatedRows = 10
			return nil
		case colRelation:
			rel = c
		}
	}
	if rel != nil {
		rel.ArgIndex = 0
		rel.Omit = true
		info.IdxNum = byRelation
		info.EstimatedCost = 1000
		info.EstimatedRows = 1000
		return nil
	}
	info.IdxNum = scanAll
	info.EstimatedCost = 1e6
	info.EstimatedRows = 1e6
	return nil
}

func (t *table) Open() (vtab.Cursor, error) {
	return &cursor{table: t}, nil
}

func (t *table) Disconnect() error { return nil }
func (t *table) Destroy() error    { return nil }

type row struct {
	relation string
	owner    metadata.Token
	child    string
}

type cursor struct {
	table *table
	rows  []row
	pos   int
}

func (c *cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = c.rows[:0]
	c.pos = 0
	if len(vals) == 0 {
		idxNum = scanAll
	}

	switch idxNum {
	case byOwner:
		owner, ok := ownerArg(vals[0])
		if !ok {
			return nil
		}
		return c.load("SELECT relation, owner, bitmap FROM relation_index WHERE owner = ?", int64(owner.Uint32()))
	case byRelation:
		rel, ok := vals[0].(string)
		if !ok {
			return nil
		}
		return c.load("SELECT relation, owner, bitmap FROM relation_index WHERE relation = ?", rel)
	default:
		return c.load("SELECT relation, owner, bitmap FROM relation_index")
	}
}

// ownerArg accepts a token in any form ParseToken does, or a raw integer.
func ownerArg(v vtab.Value) (metadata.Token, bool) {
	switch x := v.(type) {
	case int64:
		return metadata.TokenFromUint32(uint32(x)), true
	case string:
		tok, err := metadata.ParseToken(x)
		return tok, err == nil
	}
	return metadata.Token{}, false
}

// load reads every matching bitmap before expanding them so the outer
// rows are closed and the connection is free again.
func (c *cursor) load(query string, args ...any) error {
	type entry struct {
		relation string
		owner    int64
		data     []byte
	}

	rows, err := c.table.db.Query(query, args...)
	if err != nil {
		return errors.Wrap(err, "relvtab: query relation_index")
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.relation, &e.owner, &e.data); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "relvtab: scan relation_index")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return errors.Wrap(err, "relvtab: scan relation_index")
	}
	_ = rows.Close()

	for _, e := range entries {
		if err := c.expand(e.relation, metadata.TokenFromUint32(uint32(e.owner)), e.data); err != nil {
			return err
		}
	}
	return nil
}

func (c *cursor) expand(relation string, owner metadata.Token, data []byte) error {
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return errors.Wrapf(err, "relvtab: decode %s of %s", relation, owner)
	}
	table, ok := childTables[relation]
	if !ok {
		table = metadata.TableInvalid
	}
	it := bm.Iterator()
	for it.HasNext() {
		child := metadata.NewToken(table, it.Next()).String()
		c.rows = append(c.rows, row{relation: relation, owner: owner, child: child})
	}
	return nil
}

func (c *cursor) Next() error {
	c.pos++
	return nil
}

func (c *cursor) Eof() bool {
	return c.pos >= len(c.rows)
}

func (c *cursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	r := c.rows[c.pos]
	switch col {
	case colRelation:
		return r.relation, nil
	case colOwner:
		return r.owner.String(), nil
	case colChild:
		return r.child, nil
	}
	return nil, nil
}

func (c *cursor) Rowid() (int64, error) {
	return int64(c.pos), nil
}

func (c *cursor) Close() error {
	c.rows = nil
	return nil
}
