package nfsmount

import (
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/clrmeta/internal/graph"
	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/rowstore"
)

const fixture = `{
  "tables": {
    "Module": [{"Name": "tiny.dll"}],
    "TypeDef": [
      {"Name": "<Module>", "FieldList": 1, "MethodList": 1},
      {"Flags": 1, "Namespace": "Tiny", "Name": "Box", "FieldList": 1, "MethodList": 1}
    ],
    "Field": [{"Flags": 6, "Name": "value", "Signature": "06 08"}]
  }
}`

func newTestFS(t *testing.T) *GraphFS {
	t.Helper()
	s, err := rowstore.LoadFixture([]byte(fixture))
	require.NoError(t, err)
	m, err := member.Open(s)
	require.NoError(t, err)
	return NewGraphFS(graph.NewProjection(m), map[string]any{"module": m.Name(), "types": 2})
}

const valuePath = "/types/Tiny.Box/fields/value"

func TestStatRoot(t *testing.T) {
	gfs := newTestFS(t)

	info, err := gfs.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "/", info.Name())
}

func TestStatManifest(t *testing.T) {
	gfs := newTestFS(t)

	info, err := gfs.Stat("/_manifest.json")
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, "_manifest.json", info.Name())
	assert.True(t, info.Size() > 0)
}

func TestStatFile(t *testing.T) {
	gfs := newTestFS(t)

	info, err := gfs.Stat(valuePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.Equal(t, "value", info.Name())
	assert.Equal(t, os.FileMode(0o444), info.Mode())
	assert.True(t, info.Size() > 0)
}

func TestStatDir(t *testing.T) {
	gfs := newTestFS(t)

	info, err := gfs.Stat("/types/Tiny.Box")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "Tiny.Box", info.Name())
}

func TestStatNotFound(t *testing.T) {
	gfs := newTestFS(t)

	_, err := gfs.Stat("/nonexistent")
	assert.True(t, os.IsNotExist(err))
}

func TestReadDirRoot(t *testing.T) {
	gfs := newTestFS(t)

	entries, err := gfs.ReadDir("/")
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.Equal(t, []string{"_manifest.json", "module", "types", "references", "exported"}, names)
}

func TestReadDirSubdir(t *testing.T) {
	gfs := newTestFS(t)

	entries, err := gfs.ReadDir("/types")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "<Module>", entries[0].Name())
	assert.Equal(t, "Tiny.Box", entries[1].Name())
	assert.True(t, entries[1].IsDir())
}

func TestReadDirOnFile(t *testing.T) {
	gfs := newTestFS(t)

	_, err := gfs.ReadDir(valuePath)
	assert.Error(t, err)
}

func TestOpenAndRead(t *testing.T) {
	gfs := newTestFS(t)

	f, err := gfs.Open(valuePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 1024)
	n, _ := f.Read(buf)
	// Read may return io.EOF with n > 0, that's fine
	require.True(t, n > 0)
	assert.Contains(t, string(buf[:n]), "full_name: Tiny.Box::value\n")
}

func TestOpenManifest(t *testing.T) {
	gfs := newTestFS(t)

	f, err := gfs.Open("/_manifest.json")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 4096)
	n, _ := f.Read(buf)
	require.True(t, n > 0)
	assert.Contains(t, string(buf[:n]), `"tiny.dll"`)
}

func TestReadAt(t *testing.T) {
	gfs := newTestFS(t)

	f, err := gfs.Open(valuePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 5)
	n, _ := f.ReadAt(buf, 0)
	require.True(t, n > 0)
	assert.Equal(t, "token", string(buf[:n]))
}

func TestSeek(t *testing.T) {
	gfs := newTestFS(t)

	f, err := gfs.Open(valuePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	pos, err := f.Seek(7, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)

	buf := make([]byte, 5)
	n, _ := f.Read(buf)
	require.True(t, n > 0)
	assert.Equal(t, "Field", string(buf[:n]))
}

func TestReadAllMatchesNode(t *testing.T) {
	gfs := newTestFS(t)

	info, err := gfs.Stat(valuePath)
	require.NoError(t, err)

	f, err := gfs.Open(valuePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, data, int(info.Size()))
	assert.True(t, len(data) > 0)

	// cursor at the end: further reads are EOF
	n, err := f.Read(make([]byte, 8))
	assert.Zero(t, n)
	assert.Equal(t, io.EOF, err)
}

func TestSeekBounds(t *testing.T) {
	gfs := newTestFS(t)

	f, err := gfs.Open("/_manifest.json")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	end, err := f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), end)

	pos, err := f.Seek(-1, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, end-1, pos)

	buf := make([]byte, 4)
	n, _ := f.Read(buf)
	assert.Equal(t, data[len(data)-1:], buf[:n])

	_, err = f.Seek(-1, io.SeekStart)
	assert.Error(t, err)
	_, err = f.Seek(0, 42)
	assert.Error(t, err)
}

func TestOpenDirectory(t *testing.T) {
	gfs := newTestFS(t)

	_, err := gfs.Open("/types")
	assert.Error(t, err)
}

func TestOpenNotFound(t *testing.T) {
	gfs := newTestFS(t)

	_, err := gfs.Open("/nonexistent")
	assert.Error(t, err)
}

func TestReadOnly(t *testing.T) {
	gfs := newTestFS(t)

	_, err := gfs.Create("newfile.txt")
	assert.Equal(t, errReadOnly, err)

	_, err = gfs.OpenFile(valuePath, os.O_RDWR, 0)
	assert.Equal(t, errReadOnly, err)

	err = gfs.MkdirAll("/newdir", 0o755)
	assert.Equal(t, errReadOnly, err)

	err = gfs.Remove(valuePath)
	assert.Equal(t, errReadOnly, err)

	err = gfs.Rename("/types", "/renamed")
	assert.Equal(t, errReadOnly, err)
}

func TestCapabilities(t *testing.T) {
	gfs := newTestFS(t)

	caps := gfs.Capabilities()
	assert.NotZero(t, caps&2) // ReadCapability (1 << 1)
	assert.NotZero(t, caps&8) // SeekCapability (1 << 3)
	assert.Zero(t, caps&1)    // WriteCapability (1 << 0) should NOT be set
}

func TestRootAndJoin(t *testing.T) {
	gfs := newTestFS(t)
	assert.Equal(t, "/", gfs.Root())
	assert.Equal(t, "a/b/c", gfs.Join("a", "b", "c"))
}

func TestMountOptions(t *testing.T) {
	opts, err := MountOptions("linux", 2049, []string{" actimeo=1 ", ""})
	require.NoError(t, err)
	assert.Equal(t, "port=2049,mountport=2049,vers=3,tcp,local_lock=all,nolock,ro,actimeo=1", opts)

	opts, err = MountOptions("darwin", 10, nil)
	require.NoError(t, err)
	assert.Contains(t, opts, ",rdonly")

	_, err = MountOptions("plan9", 10, nil)
	assert.Error(t, err)
}

func TestNFSServerStarts(t *testing.T) {
	gfs := newTestFS(t)

	srv, err := NewServer(gfs)
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	assert.True(t, srv.Port() > 0, "server should be on a valid port")

	// Verify TCP connectivity
	conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", srv.Port()))
	require.NoError(t, err)
	_ = conn.Close()
}
