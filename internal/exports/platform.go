package exports

import "encoding/binary"

// Machine types from the file header.
const (
	MachineI386  uint16 = 0x014C
	MachineAMD64 uint16 = 0x8664
	MachineARM64 uint16 = 0xAA64
)

// Platform decodes the export stubs of one instruction set.
type Platform interface {
	Machine() uint16
	// ExtractThunkTarget returns the RVA of the slot the stub at rva jumps
	// through, or false when the bytes are not a recognised stub.
	ExtractThunkTarget(r ImageReader, rva uint32, imageBase uint64) (uint32, bool)
}

// PlatformFor selects the stub decoder for a machine type.
func PlatformFor(machine uint16) (Platform, bool) {
	switch machine {
	case MachineI386:
		return i386{}, true
	case MachineAMD64:
		return amd64{}, true
	case MachineARM64:
		return arm64{}, true
	}
	return nil, false
}

// toRVA converts an absolute address to an RVA when it lies in the image.
func toRVA(va, imageBase uint64) (uint32, bool) {
	if va < imageBase || va-imageBase > 0xFFFFFFFF {
		return 0, false
	}
	return uint32(va - imageBase), true
}

// i386 stubs are a single indirect jump: jmp dword ptr [abs32].
type i386 struct{}

func (i386) Machine() uint16 { return MachineI386 }

func (i386) ExtractThunkTarget(r ImageReader, rva uint32, imageBase uint64) (uint32, bool) {
	b, err := r.ReadAt(rva, 6)
	if err != nil || b[0] != 0xFF || b[1] != 0x25 {
		return 0, false
	}
	return toRVA(uint64(binary.LittleEndian.Uint32(b[2:])), imageBase)
}

// amd64 stubs load the slot into rax and jump to it:
// mov rax, [abs64]; jmp rax.
type amd64 struct{}

func (amd64) Machine() uint16 { return MachineAMD64 }

func (amd64) ExtractThunkTarget(r ImageReader, rva uint32, imageBase uint64) (uint32, bool) {
	b, err := r.ReadAt(rva, 12)
	if err != nil || b[0] != 0x48 || b[1] != 0xA1 || b[10] != 0xFF || b[11] != 0xE0 {
		return 0, false
	}
	return toRVA(binary.LittleEndian.Uint64(b[2:10]), imageBase)
}

// arm64 stubs address the slot page-relative:
//
//	adrp x16, page
//	ldr  x16, [x16, #off]
//	br   x16
type arm64 struct{}

const (
	adrpMask  = 0x9F00001F
	adrpX16   = 0x90000010
	ldrMask   = 0xFFC003FF
	ldrX16X16 = 0xF9400210
	brX16     = 0xD61F0200
)

func (arm64) Machine() uint16 { return MachineARM64 }

func (arm64) ExtractThunkTarget(r ImageReader, rva uint32, imageBase uint64) (uint32, bool) {
	b, err := r.ReadAt(rva, 12)
	if err != nil {
		return 0, false
	}
	adrp := binary.LittleEndian.Uint32(b[0:])
	ldr := binary.LittleEndian.Uint32(b[4:])
	br := binary.LittleEndian.Uint32(b[8:])
	if adrp&adrpMask != adrpX16 || ldr&ldrMask != ldrX16X16 || br != brX16 {
		return 0, false
	}

	immhi := (adrp >> 5) & 0x7FFFF
	immlo := (adrp >> 29) & 0x3
	// 21-bit signed page delta
	delta := int64(int32((immhi<<2|immlo)<<11)) >> 11
	page := int64((imageBase+uint64(rva))&^0xFFF) + delta<<12
	off := int64((ldr>>10)&0xFFF) << 3
	if page+off < 0 {
		return 0, false
	}
	return toRVA(uint64(page+off), imageBase)
}
