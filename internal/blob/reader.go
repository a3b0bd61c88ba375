// Package blob reads the compressed encodings used inside #Blob heap
// entries: signatures, constant values, marshal descriptors and custom
// attribute arguments (ECMA-335 II.23.2).
package blob

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"github.com/cockroachdb/errors"
)

// ErrTruncated is returned when a read runs past the end of the blob.
var ErrTruncated = errors.New("blob truncated")

// ErrBadEncoding is returned for a compressed integer with an invalid
// leading byte.
var ErrBadEncoding = errors.New("invalid compressed integer")

type Reader struct {
	data []byte
	pos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Offset() int    { return r.pos }
func (r *Reader) Remaining() int { return len(r.data) - r.pos }
func (r *Reader) EOF() bool      { return r.pos >= len(r.data) }

func (r *Reader) need(n int) error {
	if n < 0 || r.Remaining() < n {
		return errors.Wrapf(ErrTruncated, "need %d bytes at offset %d, have %d", n, r.pos, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	return r.data[r.pos], nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadCompressedUint reads an unsigned 1, 2 or 4 byte compressed integer.
func (r *Reader) ReadCompressedUint() (uint32, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), nil
	case b0&0xE0 == 0xC0:
		rest, err := r.ReadBytes(3)
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]), nil
	}
	return 0, errors.Wrapf(ErrBadEncoding, "leading byte 0x%02X at offset %d", b0, r.pos-1)
}

// ReadCompressedInt reads a signed compressed integer (rotated sign bit).
func (r *Reader) ReadCompressedInt() (int32, error) {
	start := r.pos
	u, err := r.ReadCompressedUint()
	if err != nil {
		return 0, err
	}
	var width uint
	switch r.pos - start {
	case 1:
		width = 7
	case 2:
		width = 14
	default:
		width = 29
	}
	v := int32(u >> 1)
	if u&1 != 0 {
		v -= 1 << (width - 1)
	}
	return v, nil
}

// ReadSerString reads a length-prefixed UTF-8 string. A 0xFF length byte
// encodes the null string, reported as ok == false.
func (r *Reader) ReadSerString() (s string, ok bool, err error) {
	b, err := r.PeekByte()
	if err != nil {
		return "", false, err
	}
	if b == 0xFF {
		r.pos++
		return "", false, nil
	}
	n, err := r.ReadCompressedUint()
	if err != nil {
		return "", false, err
	}
	raw, err := r.ReadBytes(int(n))
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// DecodeUTF16 decodes a little-endian UTF-16 byte slice, dropping a
// trailing odd byte.
func DecodeUTF16(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units))
}

// AppendCompressedUint encodes v as a compressed unsigned integer.
func AppendCompressedUint(dst []byte, v uint32) ([]byte, error) {
	switch {
	case v <= 0x7F:
		return append(dst, byte(v)), nil
	case v <= 0x3FFF:
		return append(dst, byte(v>>8)|0x80, byte(v)), nil
	case v <= 0x1FFFFFFF:
		return append(dst, byte(v>>24)|0xC0, byte(v>>16), byte(v>>8), byte(v)), nil
	}
	return dst, errors.Newf("value 0x%X too large for a compressed integer", v)
}
