package nfsmount

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/agentic-research/clrmeta/internal/graph"
)

// sheetFile is an open, read-only handle on a rendered member sheet or the
// manifest. Sheets are immutable once rendered, so the handle only keeps a
// cursor over src.
type sheetFile struct {
	name string
	src  io.ReaderAt
	size int64
	pos  int64
}

// openSheet opens the graph node at path. size is the node's rendered
// length as reported by GetNode.
func openSheet(g graph.Graph, path string, size int64) *sheetFile {
	return &sheetFile{name: path, src: nodeReader{g: g, path: path}, size: size}
}

func openManifest(data []byte) *sheetFile {
	return &sheetFile{name: manifestName, src: bytes.NewReader(data), size: int64(len(data))}
}

// nodeReader adapts Graph.ReadContent to io.ReaderAt. A short read is
// io.EOF, as the interface requires.
type nodeReader struct {
	g    graph.Graph
	path string
}

func (r nodeReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.g.ReadContent(r.path, p, off)
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *sheetFile) Name() string { return f.name }

func (f *sheetFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	return f.src.ReadAt(p, off)
}

func (f *sheetFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	if err == nil && f.pos >= f.size {
		err = io.EOF
	}
	return n, err
}

func (f *sheetFile) Seek(offset int64, whence int) (int64, error) {
	base := int64(0)
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = f.size
	default:
		return f.pos, errors.Newf("seek %s: whence %d", f.name, whence)
	}
	if base+offset < 0 {
		return f.pos, errors.Newf("seek %s: negative offset", f.name)
	}
	f.pos = base + offset
	return f.pos, nil
}

func (f *sheetFile) Write([]byte) (int, error) { return 0, errReadOnly }
func (f *sheetFile) Truncate(int64) error      { return errReadOnly }
func (f *sheetFile) Lock() error               { return nil }
func (f *sheetFile) Unlock() error             { return nil }
func (f *sheetFile) Close() error              { return nil }
