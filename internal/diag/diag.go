// Package diag receives reports about malformed metadata. Lazy getters
// report here and degrade to an absent value instead of failing.
package diag

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

// BadImageError describes a structurally invalid part of the image.
type BadImageError struct {
	Token metadata.Token
	Cause error
}

func (e *BadImageError) Error() string {
	return fmt.Sprintf("bad image at %s: %v", e.Token, e.Cause)
}

func (e *BadImageError) Unwrap() error { return e.Cause }

// BadImage builds a BadImageError for token.
func BadImage(token metadata.Token, format string, args ...any) *BadImageError {
	return &BadImageError{Token: token, Cause: errors.Newf(format, args...)}
}

// Wrap attaches token to an existing error.
func Wrap(token metadata.Token, err error) *BadImageError {
	return &BadImageError{Token: token, Cause: err}
}

// Listener receives bad-image reports. Implementations must be safe for
// concurrent use.
type Listener interface {
	BadImage(err *BadImageError)
}

// Latch is implemented by listeners that stop a module after a report.
// Err returns the first report, or nil.
type Latch interface {
	Err() error
}

// Collector records every report and keeps going.
type Collector struct {
	log *zap.Logger

	mu   sync.Mutex
	errs []*BadImageError
}

func NewCollector(log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{log: log}
}

func (c *Collector) BadImage(err *BadImageError) {
	c.log.Warn("bad image", zap.Stringer("token", err.Token), zap.Error(err.Cause))
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

// Errors returns a copy of the recorded reports in arrival order.
func (c *Collector) Errors() []*BadImageError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*BadImageError(nil), c.errs...)
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Strict latches the first report. Once latched, a module built with it
// refuses further lookups and Require returns the latched error.
type Strict struct {
	log   *zap.Logger
	first atomic.Pointer[BadImageError]
}

func NewStrict(log *zap.Logger) *Strict {
	if log == nil {
		log = zap.NewNop()
	}
	return &Strict{log: log}
}

func (s *Strict) BadImage(err *BadImageError) {
	if s.first.CompareAndSwap(nil, err) {
		s.log.Error("bad image, halting", zap.Stringer("token", err.Token), zap.Error(err.Cause))
	}
}

func (s *Strict) Err() error {
	if e := s.first.Load(); e != nil {
		return e
	}
	return nil
}

// Discard drops every report.
type Discard struct{}

func (Discard) BadImage(*BadImageError) {}

// ForMode returns the listener for a configured mode name: "strict" or
// "collect".
func ForMode(mode string, log *zap.Logger) (Listener, error) {
	switch mode {
	case "", "collect":
		return NewCollector(log), nil
	case "strict":
		return NewStrict(log), nil
	case "discard":
		return Discard{}, nil
	}
	return nil, errors.Newf("unknown diagnostics mode %q", mode)
}
