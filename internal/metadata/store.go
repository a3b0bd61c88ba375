package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrRowOutOfRange is returned by RowStore.Row for rid 0 or rid past the
// end of the table.
var ErrRowOutOfRange = errors.New("row out of range")

// RowStore is the raw table and heap access every higher layer reads
// through. Implementations must be safe for concurrent readers.
type RowStore interface {
	RowCount(table TableKind) uint32
	Row(table TableKind, rid uint32) (Row, error)

	DecodeIndex(kind CodedIndex, raw uint32) (Token, bool)
	EncodeIndex(kind CodedIndex, token Token) (uint32, error)

	String(idx uint32) (string, error)
	Blob(idx uint32) ([]byte, error)
	GUID(idx uint32) (uuid.UUID, error)
	UserString(idx uint32) (string, error)
}

// StandardCodec implements the coded-index half of RowStore with the
// ECMA-335 tag tables. Stores embed it.
type StandardCodec struct{}

func (StandardCodec) DecodeIndex(kind CodedIndex, raw uint32) (Token, bool) {
	return kind.Decode(raw)
}

func (StandardCodec) EncodeIndex(kind CodedIndex, token Token) (uint32, error) {
	return kind.Encode(token)
}

// InRange reports whether token addresses an existing row of store.
func InRange(store RowStore, token Token) bool {
	return token.Table.IsTable() && token.Rid != 0 && token.Rid <= store.RowCount(token.Table)
}

// RowAs fetches row rid of table and asserts its concrete type.
func RowAs[R Row](store RowStore, table TableKind, rid uint32) (R, error) {
	var zero R
	row, err := store.Row(table, rid)
	if err != nil {
		return zero, err
	}
	r, ok := row.(R)
	if !ok {
		return zero, errors.Newf("%s row %d has type %T, want %T", table, rid, row, zero)
	}
	return r, nil
}
