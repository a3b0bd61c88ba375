package member

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/rowstore"
)

var testMvid = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// image is a store under construction plus the tokens tests refer to.
type image struct {
	*rowstore.Builder
}

func newImage() *image {
	b := rowstore.NewBuilder()
	b.Add(metadata.ModuleRow{Name: b.String("test.dll"), Mvid: b.GUID(testMvid)})
	return &image{Builder: b}
}

func (im *image) typeDef(ns, name string, extends metadata.Token, fieldList, methodList uint32) metadata.Token {
	return im.Add(metadata.TypeDefRow{
		Flags:      TypePublic,
		Name:       im.String(name),
		Namespace:  im.String(ns),
		Extends:    im.Coded(metadata.TypeDefOrRef, extends),
		FieldList:  fieldList,
		MethodList: methodList,
	})
}

func (im *image) typeRef(scope metadata.Token, ns, name string) metadata.Token {
	return im.Add(metadata.TypeRefRow{
		ResolutionScope: im.Coded(metadata.ResolutionScope, scope),
		Name:            im.String(name),
		Namespace:       im.String(ns),
	})
}

func (im *image) field(name string, sig ...byte) metadata.Token {
	return im.Add(metadata.FieldRow{Name: im.String(name), Signature: im.Blob(sig)})
}

func (im *image) method(name string, paramList uint32, sig ...byte) metadata.Token {
	return im.Add(metadata.MethodRow{Name: im.String(name), Signature: im.Blob(sig), ParamList: paramList})
}

// codedByte returns the single byte compressed form of a TypeDefOrRef
// coded index, for hand-built signature blobs.
func (im *image) codedByte(t *testing.T, tok metadata.Token) byte {
	raw := im.Coded(metadata.TypeDefOrRef, tok)
	require.Less(t, raw, uint32(0x80))
	return byte(raw)
}

func (im *image) open(t *testing.T, opts ...Option) *Module {
	t.Helper()
	s, err := im.Build()
	require.NoError(t, err)
	m, err := Open(s, opts...)
	require.NoError(t, err)
	return m
}

// openCollecting opens the image with a Collector and returns both.
func (im *image) openCollecting(t *testing.T) (*Module, *diag.Collector) {
	t.Helper()
	c := diag.NewCollector(nil)
	return im.open(t, WithListener(c)), c
}

// slowStore delays every row read so concurrent lookups overlap inside
// construction.
type slowStore struct {
	metadata.RowStore
	delay time.Duration
}

func (s slowStore) Row(table metadata.TableKind, rid uint32) (metadata.Row, error) {
	time.Sleep(s.delay)
	return s.RowStore.Row(table, rid)
}

func tok(table metadata.TableKind, rid uint32) metadata.Token {
	return metadata.NewToken(table, rid)
}
