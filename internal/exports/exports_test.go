package exports

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

func le32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func i386Stub(imageBase uint64, slot uint32) []byte {
	return append([]byte{0xFF, 0x25}, le32(uint32(imageBase)+slot)...)
}

func amd64Stub(imageBase uint64, slot uint32) []byte {
	b := []byte{0x48, 0xA1}
	b = binary.LittleEndian.AppendUint64(b, imageBase+uint64(slot))
	return append(b, 0xFF, 0xE0)
}

func arm64Stub(imageBase uint64, rva, slot uint32) []byte {
	pc := (imageBase + uint64(rva)) &^ 0xFFF
	target := imageBase + uint64(slot)
	delta := uint32((int64(target&^0xFFF) - int64(pc)) >> 12)
	immlo := delta & 0x3
	immhi := (delta >> 2) & 0x7FFFF
	adrp := uint32(adrpX16) | immlo<<29 | immhi<<5
	ldr := uint32(ldrX16X16) | uint32(((target&0xFFF)>>3)&0xFFF)<<10
	b := le32(adrp)
	b = append(b, le32(ldr)...)
	return append(b, le32(brX16)...)
}

// flat builds an image with stubs at the given RVAs and token slots.
func flat(size int, stubs map[uint32][]byte, slots map[uint32]metadata.Token) MemoryImage {
	img := make(MemoryImage, size)
	for rva, b := range stubs {
		copy(img[rva:], b)
	}
	for rva, tok := range slots {
		binary.LittleEndian.PutUint32(img[rva:], tok.Uint32())
	}
	return img
}

func TestPlatformFor(t *testing.T) {
	for _, m := range []uint16{MachineI386, MachineAMD64, MachineARM64} {
		p, ok := PlatformFor(m)
		require.True(t, ok)
		assert.Equal(t, m, p.Machine())
	}
	_, ok := PlatformFor(0x01C4)
	assert.False(t, ok)
}

func TestThunkTargets(t *testing.T) {
	const base = 0x180000000
	tests := map[string]struct {
		machine uint16
		stub    []byte
	}{
		"i386":  {MachineI386, i386Stub(0x400000, 0x3008)},
		"amd64": {MachineAMD64, amd64Stub(base, 0x3008)},
		"arm64": {MachineARM64, arm64Stub(base, 0x1000, 0x3008)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			imageBase := uint64(base)
			if tc.machine == MachineI386 {
				imageBase = 0x400000
			}
			img := flat(0x4000, map[uint32][]byte{0x1000: tc.stub}, nil)
			p, _ := PlatformFor(tc.machine)
			rva, ok := p.ExtractThunkTarget(img, 0x1000, imageBase)
			require.True(t, ok)
			assert.Equal(t, uint32(0x3008), rva)
		})
	}
}

func TestArm64BackwardPage(t *testing.T) {
	const base = 0x140000000
	img := flat(0x8000, map[uint32][]byte{0x6000: arm64Stub(base, 0x6000, 0x2010)}, nil)
	rva, ok := arm64{}.ExtractThunkTarget(img, 0x6000, base)
	require.True(t, ok)
	assert.Equal(t, uint32(0x2010), rva)
}

func TestUnrecognisedStubs(t *testing.T) {
	img := flat(0x100, map[uint32][]byte{
		0x00: {0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90},
		0x20: {0x48, 0xA1, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xE1},
	}, nil)
	for _, m := range []uint16{MachineI386, MachineAMD64, MachineARM64} {
		p, _ := PlatformFor(m)
		_, ok := p.ExtractThunkTarget(img, 0x00, 0x10000)
		assert.False(t, ok)
		_, ok = p.ExtractThunkTarget(img, 0xFC, 0x10000)
		assert.False(t, ok, "stub runs off the end")
	}
	_, ok := amd64{}.ExtractThunkTarget(img, 0x20, 0)
	assert.False(t, ok, "jmp rcx is not the expected tail")
}

func TestReconstructorMatchesSlots(t *testing.T) {
	const base = 0x180000000
	add := metadata.NewToken(metadata.TableMethod, 4)
	sub := metadata.NewToken(metadata.TableMethod, 7)
	img := flat(0x4000,
		map[uint32][]byte{
			0x1000: amd64Stub(base, 0x3000),
			0x1010: amd64Stub(base, 0x3008),
			0x1020: amd64Stub(base, 0x3800), // no fixup covers this slot
			0x1030: {0xCC, 0xCC},
		},
		map[uint32]metadata.Token{0x3000: add, 0x3008: sub},
	)

	r, err := NewReconstructor(Image{
		Reader:    img,
		ImageBase: base,
		Machine:   MachineAMD64,
		Exports: []Export{
			{Name: "Add", Ordinal: 1, ThunkRVA: 0x1000},
			{Ordinal: 2, ThunkRVA: 0x1010},
			{Name: "Orphan", Ordinal: 3, ThunkRVA: 0x1020},
			{Name: "Junk", Ordinal: 4, ThunkRVA: 0x1030},
		},
		Fixups: []VTableFixup{{RVA: 0x3000, Count: 2, Flags: FixupSlot64 | FixupFromUnmanaged}},
	}, nil)
	require.NoError(t, err)

	infos := r.Infos()
	assert.Len(t, infos, 2)
	info, ok := r.ExportInfo(add)
	require.True(t, ok)
	assert.Equal(t, ExportInfo{Name: "Add", Ordinal: 1}, info)

	info, ok = r.ExportInfo(sub)
	require.True(t, ok)
	assert.False(t, info.IsByName())
	assert.Equal(t, "#2", info.String())

	_, ok = r.ExportInfo(metadata.NewToken(metadata.TableMethod, 1))
	assert.False(t, ok)
}

func TestReconstructor32BitSlots(t *testing.T) {
	tok := metadata.NewToken(metadata.TableMethod, 2)
	img := flat(0x2000,
		map[uint32][]byte{0x1000: i386Stub(0x400000, 0x1804)},
		map[uint32]metadata.Token{0x1800: metadata.NewToken(metadata.TableMethod, 1), 0x1804: tok},
	)
	r, err := NewReconstructor(Image{
		Reader:    img,
		ImageBase: 0x400000,
		Machine:   MachineI386,
		Exports:   []Export{{Name: "Second", Ordinal: 1, ThunkRVA: 0x1000}},
		Fixups:    []VTableFixup{{RVA: 0x1800, Count: 2, Flags: FixupSlot32}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[metadata.Token]ExportInfo{tok: {Name: "Second", Ordinal: 1}}, r.Infos())
}

func TestNewReconstructorRejects(t *testing.T) {
	_, err := NewReconstructor(Image{Reader: MemoryImage{}, Machine: 0x0200}, nil)
	assert.Error(t, err)
	_, err = NewReconstructor(Image{Machine: MachineAMD64}, nil)
	assert.Error(t, err)
}

func TestMappedImage(t *testing.T) {
	const base = 0x180000000
	tok := metadata.NewToken(metadata.TableMethod, 3)
	data := flat(0x2000, map[uint32][]byte{0x100: amd64Stub(base, 0x1000)}, map[uint32]metadata.Token{0x1000: tok})
	path := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m, err := OpenMapped(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Close()) }()
	assert.Equal(t, 0x2000, m.Len())

	_, err = m.ReadAt(0x1FFE, 4)
	assert.ErrorIs(t, err, ErrOutOfImage)

	r, err := NewReconstructor(Image{
		Reader:    m,
		ImageBase: base,
		Machine:   MachineAMD64,
		Exports:   []Export{{Name: "Run", Ordinal: 1, ThunkRVA: 0x100}},
		Fixups:    []VTableFixup{{RVA: 0x1000, Count: 1, Flags: FixupSlot64}},
	}, nil)
	require.NoError(t, err)
	info, ok := r.ExportInfo(tok)
	require.True(t, ok)
	assert.Equal(t, "Run", info.Name)
}

func TestOpenMappedEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := OpenMapped(path)
	assert.Error(t, err)
}

func TestParseLayout(t *testing.T) {
	img, err := ParseLayout([]byte(`{
		"machine": "arm64",
		"imageBase": "0x140000000",
		"exports": [{"name": "Add", "ordinal": 1, "rva": "0x1000"}, {"ordinal": 2, "rva": 4112}],
		"fixups": [{"rva": "0x3000", "count": 2, "flags": 2}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, MachineARM64, img.Machine)
	assert.Equal(t, uint64(0x140000000), img.ImageBase)
	assert.Equal(t, []Export{{Name: "Add", Ordinal: 1, ThunkRVA: 0x1000}, {Ordinal: 2, ThunkRVA: 0x1010}}, img.Exports)
	assert.Equal(t, []VTableFixup{{RVA: 0x3000, Count: 2, Flags: FixupSlot64}}, img.Fixups)

	bad := map[string]string{
		"syntax":        `{`,
		"no machine":    `{"imageBase": 0}`,
		"bad machine":   `{"machine": "sparc"}`,
		"negative rva":  `{"machine": "x86", "exports": [{"rva": -1}]}`,
		"wide count":    `{"machine": "x86", "fixups": [{"rva": 0, "count": 70000}]}`,
		"export string": `{"machine": "x86", "exports": ["Add"]}`,
	}
	for name, doc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLayout([]byte(doc))
			assert.Error(t, err)
		})
	}
}

// Every stub encoded for a slot anywhere in a 4GB image decodes back to
// that slot.
func TestArm64StubRoundTrip(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 500
	properties := gopter.NewProperties(params)

	const base = 0x7FF600000000
	properties.Property("decoded slot equals encoded slot", prop.ForAll(
		func(stubPage, slot uint32) bool {
			rva := stubPage &^ 0xFFF
			slot &^= 0x7
			img := fakeReader{rva: rva, stub: arm64Stub(base, rva, slot)}
			got, ok := arm64{}.ExtractThunkTarget(img, rva, base)
			return ok && got == slot
		},
		gen.UInt32Range(0, 0x7FFFFFFF),
		gen.UInt32Range(0, 0x7FFFFFFF),
	))
	properties.TestingRun(t)
}

// fakeReader serves one stub without allocating a full image.
type fakeReader struct {
	rva  uint32
	stub []byte
}

func (f fakeReader) ReadAt(rva uint32, n int) ([]byte, error) {
	if rva != f.rva || n > len(f.stub) {
		return nil, ErrOutOfImage
	}
	return f.stub[:n], nil
}
