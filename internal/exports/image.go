package exports

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// ErrOutOfImage is returned for reads past the end of an image.
var ErrOutOfImage = errors.New("exports: read outside image")

// MemoryImage is a flat image held in memory; offsets are RVAs.
type MemoryImage []byte

func (m MemoryImage) ReadAt(rva uint32, n int) ([]byte, error) {
	return readFlat(m, rva, n)
}

func readFlat(data []byte, rva uint32, n int) ([]byte, error) {
	end := uint64(rva) + uint64(n)
	if n < 0 || end > uint64(len(data)) {
		return nil, errors.Wrapf(ErrOutOfImage, "rva 0x%X+%d", rva, n)
	}
	return data[rva:end:end], nil
}

// MappedImage is a flat image file mapped read-only.
type MappedImage struct {
	path string
	file *os.File
	data []byte
}

// OpenMapped maps the file at path. The file must already be laid out as
// loaded, so that file offsets equal RVAs.
func OpenMapped(path string) (*MappedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "stat")
	}
	if info.Size() == 0 {
		_ = f.Close()
		return nil, errors.Newf("image %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "mmap")
	}

	return &MappedImage{path: path, file: f, data: data}, nil
}

func (m *MappedImage) ReadAt(rva uint32, n int) ([]byte, error) {
	return readFlat(m.data, rva, n)
}

func (m *MappedImage) Len() int { return len(m.data) }

// Close unmaps and closes the image file.
func (m *MappedImage) Close() error {
	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	return m.file.Close()
}
