// Package exports recovers which managed methods back the native exports
// of a mixed-mode image. Each export points at a small stub that jumps
// through a vtable fixup slot; matching the stub's target against the slot
// addresses links the export to the token stored in that slot.
//
// The match is a pattern heuristic. A stub of an unexpected shape yields
// no entry rather than an error.
package exports

import (
	"encoding/binary"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

// ExportInfo names a native export by name, ordinal, or both.
type ExportInfo struct {
	Name    string
	Ordinal uint32
}

func (e ExportInfo) IsByName() bool { return e.Name != "" }

func (e ExportInfo) String() string {
	if e.Name != "" {
		return e.Name
	}
	return "#" + strconv.FormatUint(uint64(e.Ordinal), 10)
}

// Export is one entry of the native export table.
type Export struct {
	Name     string
	Ordinal  uint32
	ThunkRVA uint32
}

// VTableFixup flags.
const (
	FixupSlot32              = 0x01
	FixupSlot64              = 0x02
	FixupFromUnmanaged       = 0x04
	FixupFromUnmanagedRetain = 0x08
	FixupCallMostDerived     = 0x10
)

// VTableFixup is a run of Count slots at RVA, each holding a method token
// until the loader patches it.
type VTableFixup struct {
	RVA   uint32
	Count uint16
	Flags uint16
}

func (f VTableFixup) slotSize() uint32 {
	if f.Flags&FixupSlot64 != 0 {
		return 8
	}
	return 4
}

// ImageReader reads n bytes at a relative virtual address.
type ImageReader interface {
	ReadAt(rva uint32, n int) ([]byte, error)
}

// Image is everything the reconstruction reads from a loaded image.
type Image struct {
	Reader    ImageReader
	ImageBase uint64
	Machine   uint16
	Exports   []Export
	Fixups    []VTableFixup
}

// Reconstructor maps method tokens to the exports that call them. The map
// is computed on first use and then shared.
type Reconstructor struct {
	img      Image
	platform Platform
	log      *zap.Logger

	infos relation.Lazy[map[metadata.Token]ExportInfo]
}

func NewReconstructor(img Image, log *zap.Logger) (*Reconstructor, error) {
	p, ok := PlatformFor(img.Machine)
	if !ok {
		return nil, errors.Newf("exports: unsupported machine 0x%04X", img.Machine)
	}
	if img.Reader == nil {
		return nil, errors.New("exports: nil image reader")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconstructor{img: img, platform: p, log: log}, nil
}

// Infos returns every token with a recovered export.
func (r *Reconstructor) Infos() map[metadata.Token]ExportInfo {
	return r.infos.Get(r.build)
}

// ExportInfo returns the export backed by token, if one was recovered.
func (r *Reconstructor) ExportInfo(token metadata.Token) (ExportInfo, bool) {
	info, ok := r.Infos()[token]
	return info, ok
}

func (r *Reconstructor) build() map[metadata.Token]ExportInfo {
	targets := make(map[uint32]ExportInfo, len(r.img.Exports))
	for _, e := range r.img.Exports {
		rva, ok := r.platform.ExtractThunkTarget(r.img.Reader, e.ThunkRVA, r.img.ImageBase)
		if !ok {
			r.log.Debug("export stub not recognised",
				zap.String("export", e.Name), zap.Uint32("thunk", e.ThunkRVA))
			continue
		}
		targets[rva] = ExportInfo{Name: e.Name, Ordinal: e.Ordinal}
	}

	out := make(map[metadata.Token]ExportInfo)
	for _, f := range r.img.Fixups {
		size := f.slotSize()
		for i := uint32(0); i < uint32(f.Count); i++ {
			slot := f.RVA + i*size
			info, ok := targets[slot]
			if !ok {
				continue
			}
			raw, err := r.img.Reader.ReadAt(slot, 4)
			if err != nil {
				r.log.Debug("vtable slot unreadable", zap.Uint32("rva", slot), zap.Error(err))
				continue
			}
			out[metadata.TokenFromUint32(binary.LittleEndian.Uint32(raw))] = info
		}
	}
	r.log.Debug("exports reconstructed", zap.Int("exports", len(r.img.Exports)), zap.Int("matched", len(out)))
	return out
}
