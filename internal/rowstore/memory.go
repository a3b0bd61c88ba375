// Package rowstore provides metadata.RowStore implementations: an
// in-memory store assembled with a Builder or loaded from a JSON fixture,
// and a SQLite snapshot of the same data.
package rowstore

import (
	"bytes"
	"unicode/utf16"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/agentic-research/clrmeta/internal/blob"
	"github.com/agentic-research/clrmeta/internal/metadata"
)

const numTables = int(metadata.TableGenericParamConstraint) + 1

// Heaps holds the four metadata heaps in their on-disk layouts: #Strings
// is NUL-terminated UTF-8, #Blob and #US are length-prefixed, #GUID is a
// flat run of 16 byte values addressed from 1.
type Heaps struct {
	Strings    []byte
	Blobs      []byte
	GUIDs      []byte
	UserString []byte
}

// MemoryStore is an immutable RowStore over decoded rows. It is safe for
// concurrent readers.
type MemoryStore struct {
	metadata.StandardCodec
	rows  [numTables][]metadata.Row
	heaps Heaps
}

var _ metadata.RowStore = (*MemoryStore)(nil)

func (s *MemoryStore) RowCount(table metadata.TableKind) uint32 {
	if int(table) >= numTables {
		return 0
	}
	return uint32(len(s.rows[table]))
}

func (s *MemoryStore) Row(table metadata.TableKind, rid uint32) (metadata.Row, error) {
	if rid == 0 || rid > s.RowCount(table) {
		return nil, errors.Wrapf(metadata.ErrRowOutOfRange, "%s rid %d", table, rid)
	}
	return s.rows[table][rid-1], nil
}

func (s *MemoryStore) String(idx uint32) (string, error) {
	if idx == 0 {
		return "", nil
	}
	if int(idx) >= len(s.heaps.Strings) {
		return "", errors.Newf("string index 0x%X past heap end 0x%X", idx, len(s.heaps.Strings))
	}
	rest := s.heaps.Strings[idx:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", errors.Newf("string at 0x%X is not terminated", idx)
	}
	return string(rest[:end]), nil
}

func (s *MemoryStore) Blob(idx uint32) ([]byte, error) {
	return lengthPrefixed(s.heaps.Blobs, idx, "blob")
}

func (s *MemoryStore) GUID(idx uint32) (uuid.UUID, error) {
	if idx == 0 {
		return uuid.Nil, nil
	}
	off := int(idx-1) * 16
	if off+16 > len(s.heaps.GUIDs) {
		return uuid.Nil, errors.Newf("guid index %d past heap end", idx)
	}
	return uuid.FromBytes(s.heaps.GUIDs[off : off+16])
}

// UserString decodes a #US entry. The trailing flag byte is dropped.
func (s *MemoryStore) UserString(idx uint32) (string, error) {
	raw, err := lengthPrefixed(s.heaps.UserString, idx, "user string")
	if err != nil {
		return "", err
	}
	if len(raw)%2 == 1 {
		raw = raw[:len(raw)-1]
	}
	return blob.DecodeUTF16(raw), nil
}

// Heaps returns the raw heap bytes. Callers must not modify them.
func (s *MemoryStore) Heaps() Heaps { return s.heaps }

func lengthPrefixed(heap []byte, idx uint32, what string) ([]byte, error) {
	if idx == 0 {
		return nil, nil
	}
	if int(idx) >= len(heap) {
		return nil, errors.Newf("%s index 0x%X past heap end 0x%X", what, idx, len(heap))
	}
	r := blob.NewReader(heap[idx:])
	n, err := r.ReadCompressedUint()
	if err != nil {
		return nil, errors.Wrapf(err, "%s at 0x%X", what, idx)
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, errors.Wrapf(err, "%s at 0x%X", what, idx)
	}
	return b, nil
}

// Builder assembles a MemoryStore. Heap entries are interned; rows are
// appended in rid order. A Builder is not safe for concurrent use.
type Builder struct {
	rows  [numTables][]metadata.Row
	heaps Heaps

	strings map[string]uint32
	blobs   map[string]uint32
	guids   map[uuid.UUID]uint32
	us      map[string]uint32
	err     error
}

func NewBuilder() *Builder {
	return &Builder{
		heaps: Heaps{
			Strings:    []byte{0},
			Blobs:      []byte{0},
			UserString: []byte{0},
		},
		strings: map[string]uint32{},
		blobs:   map[string]uint32{},
		guids:   map[uuid.UUID]uint32{},
		us:      map[string]uint32{},
	}
}

// String interns s in #Strings. The empty string is index 0.
func (b *Builder) String(s string) uint32 {
	if s == "" {
		return 0
	}
	if idx, ok := b.strings[s]; ok {
		return idx
	}
	idx := uint32(len(b.heaps.Strings))
	b.heaps.Strings = append(append(b.heaps.Strings, s...), 0)
	b.strings[s] = idx
	return idx
}

// Blob interns data in #Blob. An empty blob is index 0.
func (b *Builder) Blob(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	if idx, ok := b.blobs[string(data)]; ok {
		return idx
	}
	idx, heap := b.appendPrefixed(b.heaps.Blobs, data)
	b.heaps.Blobs = heap
	b.blobs[string(data)] = idx
	return idx
}

func (b *Builder) GUID(u uuid.UUID) uint32 {
	if idx, ok := b.guids[u]; ok {
		return idx
	}
	b.heaps.GUIDs = append(b.heaps.GUIDs, u[:]...)
	idx := uint32(len(b.heaps.GUIDs) / 16)
	b.guids[u] = idx
	return idx
}

// UserString interns s in #US as UTF-16 plus the trailing flag byte.
func (b *Builder) UserString(s string) uint32 {
	if idx, ok := b.us[s]; ok {
		return idx
	}
	units := utf16.Encode([]rune(s))
	data := make([]byte, 0, 2*len(units)+1)
	var flag byte
	for _, u := range units {
		data = append(data, byte(u), byte(u>>8))
		if u >= 0x80 {
			flag = 1
		}
	}
	data = append(data, flag)
	idx, heap := b.appendPrefixed(b.heaps.UserString, data)
	b.heaps.UserString = heap
	b.us[s] = idx
	return idx
}

func (b *Builder) appendPrefixed(heap, data []byte) (uint32, []byte) {
	idx := uint32(len(heap))
	heap, err := blob.AppendCompressedUint(heap, uint32(len(data)))
	if err != nil && b.err == nil {
		b.err = err
	}
	return idx, append(heap, data...)
}

// Add appends row to its table and returns the token of the new row.
func (b *Builder) Add(row metadata.Row) metadata.Token {
	t := row.Table()
	if int(t) >= numTables {
		if b.err == nil {
			b.err = errors.Newf("add row: %s is not a table", t)
		}
		return metadata.Token{}
	}
	b.rows[t] = append(b.rows[t], row)
	return metadata.NewToken(t, uint32(len(b.rows[t])))
}

// Set replaces an existing row, for fixing up forward list pointers.
func (b *Builder) Set(tok metadata.Token, row metadata.Row) error {
	if row.Table() != tok.Table || int(tok.Table) >= numTables ||
		tok.Rid == 0 || int(tok.Rid) > len(b.rows[tok.Table]) {
		return errors.Newf("set row: %s does not address a %s row", tok, row.Table())
	}
	b.rows[tok.Table][tok.Rid-1] = row
	return nil
}

// Coded encodes tok as a coded index of kind, or returns 0 for the null
// token.
func (b *Builder) Coded(kind metadata.CodedIndex, tok metadata.Token) uint32 {
	if tok.IsNull() {
		return 0
	}
	raw, err := kind.Encode(tok)
	if err != nil && b.err == nil {
		b.err = err
	}
	return raw
}

// Build returns the store. The Builder must not be used afterwards.
func (b *Builder) Build() (*MemoryStore, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &MemoryStore{rows: b.rows, heaps: b.heaps}, nil
}

// newStore wraps already decoded rows and heaps.
func newStore(rows [numTables][]metadata.Row, heaps Heaps) *MemoryStore {
	return &MemoryStore{rows: rows, heaps: heaps}
}
