package exports

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

var (
	layoutBase    = jp.MustParseString("$.imageBase")
	layoutMachine = jp.MustParseString("$.machine")
	layoutExports = jp.MustParseString("$.exports[*]")
	layoutFixups  = jp.MustParseString("$.fixups[*]")
)

// ParseLayout reads the export directory and vtable fixups of an image from
// a JSON sidecar:
//
//	{
//	  "machine": "amd64",
//	  "imageBase": "0x180000000",
//	  "exports": [{"name": "Add", "ordinal": 1, "rva": "0x1000"}],
//	  "fixups": [{"rva": "0x3000", "count": 2, "flags": 2}]
//	}
//
// The returned Image has no Reader; callers attach the mapped image.
func ParseLayout(data []byte) (Image, error) {
	doc, err := oj.Parse(data)
	if err != nil {
		return Image{}, errors.Wrap(err, "parse layout")
	}

	var img Image
	if img.Machine, err = machineOf(layoutMachine.First(doc)); err != nil {
		return Image{}, err
	}
	if img.ImageBase, err = number(layoutBase.First(doc), 64); err != nil {
		return Image{}, errors.Wrap(err, "imageBase")
	}

	for i, v := range layoutExports.Get(doc) {
		e, ok := v.(map[string]any)
		if !ok {
			return Image{}, errors.Newf("exports[%d]: not an object", i)
		}
		var exp Export
		exp.Name, _ = e["name"].(string)
		ord, err := number(e["ordinal"], 32)
		if err != nil {
			return Image{}, errors.Wrapf(err, "exports[%d].ordinal", i)
		}
		rva, err := number(e["rva"], 32)
		if err != nil {
			return Image{}, errors.Wrapf(err, "exports[%d].rva", i)
		}
		exp.Ordinal, exp.ThunkRVA = uint32(ord), uint32(rva)
		img.Exports = append(img.Exports, exp)
	}

	for i, v := range layoutFixups.Get(doc) {
		f, ok := v.(map[string]any)
		if !ok {
			return Image{}, errors.Newf("fixups[%d]: not an object", i)
		}
		rva, err := number(f["rva"], 32)
		if err != nil {
			return Image{}, errors.Wrapf(err, "fixups[%d].rva", i)
		}
		count, err := number(f["count"], 16)
		if err != nil {
			return Image{}, errors.Wrapf(err, "fixups[%d].count", i)
		}
		flags, err := number(f["flags"], 16)
		if err != nil {
			return Image{}, errors.Wrapf(err, "fixups[%d].flags", i)
		}
		img.Fixups = append(img.Fixups, VTableFixup{RVA: uint32(rva), Count: uint16(count), Flags: uint16(flags)})
	}
	return img, nil
}

func machineOf(v any) (uint16, error) {
	switch s := v.(type) {
	case string:
		switch strings.ToLower(s) {
		case "i386", "x86":
			return MachineI386, nil
		case "amd64", "x64":
			return MachineAMD64, nil
		case "arm64":
			return MachineARM64, nil
		}
	case nil:
		return 0, errors.New("layout: missing machine")
	}
	n, err := number(v, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "machine %v", v)
	}
	return uint16(n), nil
}

// number accepts JSON integers and "0x" prefixed hex strings.
func number(v any, bits int) (uint64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		if n < 0 || (bits < 64 && uint64(n)>>bits != 0) {
			return 0, errors.Newf("%d out of range", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, errors.Newf("%v is not an unsigned integer", n)
		}
		return number(int64(n), bits)
	case string:
		return strconv.ParseUint(n, 0, bits)
	}
	return 0, errors.Newf("unexpected %T", v)
}
