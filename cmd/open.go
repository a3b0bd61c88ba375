package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/exports"
	"github.com/agentic-research/clrmeta/internal/member"
	"github.com/agentic-research/clrmeta/internal/rowstore"
)

func isFixture(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// openStore loads a JSON fixture or a SQLite snapshot.
func openStore(path string) (*rowstore.MemoryStore, error) {
	if isFixture(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return rowstore.LoadFixture(data)
	}
	return rowstore.OpenSQLite(path)
}

// openModule opens path with the listener selected by the diagnostics
// mode.
func openModule(path string) (*member.Module, diag.Listener, error) {
	store, err := openStore(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	listener, err := diag.ForMode(cfg.Diagnostics.Mode, logger)
	if err != nil {
		return nil, nil, err
	}
	m, err := member.Open(store, member.WithListener(listener), member.WithLogger(logger))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}
	return m, listener, nil
}

// imageFlags names the native image and its layout sidecar for commands
// that map export thunks back to methods.
type imageFlags struct {
	image  string
	layout string
}

// open returns nil when no image was given.
func (f *imageFlags) open() (*exports.Reconstructor, func() error, error) {
	if f.image == "" && f.layout == "" {
		return nil, func() error { return nil }, nil
	}
	if f.image == "" || f.layout == "" {
		return nil, nil, errors.New("--image and --layout must be given together")
	}
	data, err := os.ReadFile(f.layout)
	if err != nil {
		return nil, nil, err
	}
	img, err := exports.ParseLayout(data)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "layout %s", f.layout)
	}
	mapped, err := exports.OpenMapped(f.image)
	if err != nil {
		return nil, nil, err
	}
	img.Reader = mapped
	r, err := exports.NewReconstructor(img, logger)
	if err != nil {
		_ = mapped.Close()
		return nil, nil, err
	}
	return r, mapped.Close, nil
}

// finish prints collected diagnostics and returns the latched error of a
// strict module.
func finish(w io.Writer, m *member.Module, listener diag.Listener) error {
	if c, ok := listener.(*diag.Collector); ok && c.Len() > 0 {
		warn := color.New(color.FgYellow)
		warn.Fprintf(w, "%d diagnostics:\n", c.Len())
		for _, err := range c.Errors() {
			fmt.Fprintf(w, "  %v\n", err)
		}
	}
	return m.Err()
}
