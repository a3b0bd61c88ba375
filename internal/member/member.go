// Package member materializes metadata rows into an identity-preserving
// object graph. Every token resolves to at most one Member instance per
// Module, built on first request and shared by all later callers.
package member

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/agentic-research/clrmeta/internal/metadata"
	"github.com/agentic-research/clrmeta/internal/relation"
)

var (
	// ErrUnresolvedToken is returned by Require when a token resolves to
	// nothing.
	ErrUnresolvedToken = errors.New("unresolved metadata token")

	// ErrAlreadyOwned is returned when adding a child to an owned
	// collection while another owner holds it.
	ErrAlreadyOwned = errors.New("member already has an owner")
)

// Member is any materialized metadata record.
type Member interface {
	Token() metadata.Token
	Module() *Module
}

// Named members expose their simple name.
type Named interface {
	Member
	Name() string
}

// FullNamed members expose a namespace-qualified name.
type FullNamed interface {
	Named
	FullName() string
}

// HasCustomAttributes is implemented by every member that can be the
// parent of a CustomAttribute row.
type HasCustomAttributes interface {
	Member
	CustomAttributes() []*CustomAttribute
}

// base carries what every member has: its permanent token, a non-owning
// reference to the module, its custom attributes and its owner claim.
type base struct {
	mod *Module
	tok metadata.Token

	customAttributes relation.Lazy[*OwnedList[*CustomAttribute]]

	ownerMu sync.Mutex
	owner   metadata.Token
}

func (b *base) init(m *Module, tok metadata.Token) {
	b.mod, b.tok = m, tok
}

func (b *base) Token() metadata.Token { return b.tok }
func (b *base) Module() *Module       { return b.mod }

func (b *base) CustomAttributes() []*CustomAttribute {
	return b.customAttributes.Get(func() *OwnedList[*CustomAttribute] {
		return ownedFrom(b.mod, b.tok, metadata.TableCustomAttribute, b.mod.CustomAttributeRids(b.tok),
			as[*CustomAttribute])
	}).Items()
}

// claim records owner as the single owner of b. Claiming again for the
// same owner is allowed; a different owner gets ErrAlreadyOwned.
func (b *base) claim(owner metadata.Token) error {
	b.ownerMu.Lock()
	defer b.ownerMu.Unlock()
	if b.owner == (metadata.Token{}) || b.owner == owner {
		b.owner = owner
		return nil
	}
	return errors.Wrapf(ErrAlreadyOwned, "%s is owned by %s, not %s", b.tok, b.owner, owner)
}

// Owner returns the token of the collection owner that claimed b, if any.
func (b *base) Owner() (metadata.Token, bool) {
	b.ownerMu.Lock()
	defer b.ownerMu.Unlock()
	return b.owner, b.owner != (metadata.Token{})
}

// NameOf returns the most qualified name m has, "<nil>" for nil, or its
// token when it has no name.
func NameOf(m Member) string {
	switch v := m.(type) {
	case FullNamed:
		return v.FullName()
	case Named:
		return v.Name()
	case nil:
		return "<nil>"
	}
	return m.Token().String()
}
