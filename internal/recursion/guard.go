// Package recursion breaks cycles in self-referential metadata walks.
package recursion

import (
	"github.com/cockroachdb/errors"

	"github.com/agentic-research/clrmeta/internal/metadata"
)

// ErrCycle is returned by Enter when the token is already being resolved
// further up the same walk.
var ErrCycle = errors.New("recursive metadata reference")

// Guard is the visited set of one resolution walk. It is not shared
// between goroutines; every top-level resolution starts its own.
type Guard struct {
	active map[metadata.Token]struct{}
}

func New() *Guard {
	return &Guard{active: make(map[metadata.Token]struct{})}
}

// Enter marks token as in progress. The returned release must be called
// once the token's resolution finishes. Re-entering an in-progress token
// fails with ErrCycle.
func (g *Guard) Enter(token metadata.Token) (release func(), err error) {
	if _, busy := g.active[token]; busy {
		return nil, errors.Wrapf(ErrCycle, "%s", token)
	}
	g.active[token] = struct{}{}
	return func() { delete(g.active, token) }, nil
}

// Active reports whether token is currently in progress.
func (g *Guard) Active(token metadata.Token) bool {
	_, busy := g.active[token]
	return busy
}
