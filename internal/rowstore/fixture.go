package rowstore

import (
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

var (
	tablesPath      = jp.MustParseString("$.tables")
	userStringsPath = jp.MustParseString("$.userStrings[*]")
)

// LoadFixture builds a MemoryStore from a JSON document of the form
//
//	{"tables": {"TypeDef": [{"Name": "Foo", "Extends": "TypeRef:1", ...}]},
//	 "userStrings": ["hello"]}
//
// Columns are addressed by schema name and default to 0. String columns
// take text, blob columns hex, GUID columns the textual form and coded
// columns either a raw number or a "Table:rid" token.
func LoadFixture(data []byte) (*MemoryStore, error) {
	root, err := oj.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	b := NewBuilder()

	tables, _ := tablesPath.First(root).(map[string]any)
	for name := range tables {
		if t, ok := metadata.TableByName(name); !ok || !t.IsTable() {
			return nil, errors.Newf("fixture: unknown table %q", name)
		}
	}
	for _, t := range metadata.Tables() {
		rows, ok := tables[t.String()]
		if !ok {
			continue
		}
		list, ok := rows.([]any)
		if !ok {
			return nil, errors.Newf("fixture: %s must be a list of rows", t)
		}
		for i, r := range list {
			obj, ok := r.(map[string]any)
			if !ok {
				return nil, errors.Newf("fixture: %s row %d is not an object", t, i+1)
			}
			row, err := fixtureRow(b, t, obj)
			if err != nil {
				return nil, errors.Wrapf(err, "fixture: %s row %d", t, i+1)
			}
			b.Add(row)
		}
	}

	for _, s := range userStringsPath.Get(root) {
		str, ok := s.(string)
		if !ok {
			return nil, errors.Newf("fixture: user string %v is not text", s)
		}
		b.UserString(str)
	}
	return b.Build()
}

func fixtureRow(b *Builder, t metadata.TableKind, obj map[string]any) (metadata.Row, error) {
	schema := metadata.Schema(t)
	if schema == nil {
		return nil, errors.Newf("no schema for %s", t)
	}
	for k := range obj {
		if _, ok := metadata.ColumnIndex(t, k); !ok {
			return nil, errors.Newf("unknown column %q", k)
		}
	}
	cols := make([]uint32, len(schema))
	for i, c := range schema {
		v, ok := obj[c.Name]
		if !ok || v == nil {
			continue
		}
		raw, err := fixtureValue(b, c, v)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", c.Name)
		}
		cols[i] = raw
	}
	return metadata.DecodeRow(t, cols)
}

func fixtureValue(b *Builder, c metadata.Column, v any) (uint32, error) {
	switch c.Kind {
	case metadata.ColString:
		s, ok := v.(string)
		if !ok {
			return 0, errors.Newf("want text, got %T", v)
		}
		return b.String(s), nil
	case metadata.ColBlob:
		s, ok := v.(string)
		if !ok {
			return 0, errors.Newf("want hex text, got %T", v)
		}
		data, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		if err != nil {
			return 0, err
		}
		return b.Blob(data), nil
	case metadata.ColGUID:
		s, ok := v.(string)
		if !ok {
			return 0, errors.Newf("want guid text, got %T", v)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return 0, err
		}
		return b.GUID(u), nil
	case metadata.ColCoded:
		if s, ok := v.(string); ok {
			tok, err := metadata.ParseToken(s)
			if err != nil {
				return 0, err
			}
			if tok.IsNull() {
				return 0, nil
			}
			return c.Coded.Encode(tok)
		}
	}
	return fixtureNumber(c, v)
}

func fixtureNumber(c metadata.Column, v any) (uint32, error) {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case float64:
		n = int64(x)
		if float64(n) != x {
			return 0, errors.Newf("%v is not an integer", x)
		}
	case bool:
		if x {
			n = 1
		}
	default:
		return 0, errors.Newf("want a number, got %T", v)
	}
	limit := int64(0xFFFFFFFF)
	switch c.Kind {
	case metadata.ColFixed8:
		limit = 0xFF
	case metadata.ColFixed16:
		limit = 0xFFFF
	}
	if n < 0 || n > limit {
		return 0, errors.Newf("%d out of range for column", n)
	}
	return uint32(n), nil
}
