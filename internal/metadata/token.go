package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Token addresses one logical record: a table plus a 1-based row id.
// Rid 0 is the null reference. Tokens are plain values and compare with ==.
type Token struct {
	Table TableKind
	Rid   uint32
}

// NewToken returns the token for row rid of table.
func NewToken(table TableKind, rid uint32) Token {
	return Token{Table: table, Rid: rid}
}

// TokenFromUint32 splits a raw 32-bit token (table in the high byte).
func TokenFromUint32(raw uint32) Token {
	return Token{Table: TableKind(raw >> 24), Rid: raw & 0x00FFFFFF}
}

// Uint32 packs the token into its raw 32-bit form.
func (t Token) Uint32() uint32 {
	return uint32(t.Table)<<24 | (t.Rid & 0x00FFFFFF)
}

// IsNull reports whether the token is the null reference of its table.
func (t Token) IsNull() bool {
	return t.Rid == 0
}

func (t Token) String() string {
	return fmt.Sprintf("%s:0x%04X", t.Table, t.Rid)
}

// ParseToken accepts either a raw hex token ("0x02000003") or the
// "Table:rid" form produced by String ("TypeDef:3", "TypeDef:0x0003").
func ParseToken(s string) (Token, error) {
	s = strings.TrimSpace(s)
	if name, rid, ok := strings.Cut(s, ":"); ok {
		table, known := TableByName(name)
		if !known {
			return Token{}, errors.Newf("unknown table %q in token %q", name, s)
		}
		n, err := strconv.ParseUint(rid, 0, 24)
		if err != nil {
			return Token{}, errors.Wrapf(err, "parse rid of token %q", s)
		}
		return NewToken(table, uint32(n)), nil
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return Token{}, errors.Wrapf(err, "parse token %q", s)
	}
	return TokenFromUint32(uint32(n)), nil
}

// RidRange is a half-open interval [Start, End) of row ids.
type RidRange struct {
	Start uint32
	End   uint32
}

// Len returns the number of rids in the range.
func (r RidRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Empty reports whether the range holds no rids.
func (r RidRange) Empty() bool { return r.Len() == 0 }

// Contains reports whether rid falls inside the range.
func (r RidRange) Contains(rid uint32) bool {
	return rid >= r.Start && rid < r.End
}

// Rids expands the range into a slice.
func (r RidRange) Rids() []uint32 {
	out := make([]uint32, 0, r.Len())
	for rid := r.Start; rid < r.End; rid++ {
		out = append(out, rid)
	}
	return out
}

func (r RidRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}
