package member

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/agentic-research/clrmeta/internal/diag"
	"github.com/agentic-research/clrmeta/internal/metadata"
)

// ownable is a member that can sit in exactly one OwnedList.
type ownable interface {
	comparable
	Member
	claim(owner metadata.Token) error
}

// OwnedList is a collection of children held by a single owner. A child
// can belong to one owner only; Add enforces that at the point of
// mutation.
type OwnedList[T ownable] struct {
	owner metadata.Token

	mu    sync.RWMutex
	items []T
	index map[T]struct{}
}

func newOwnedList[T ownable](owner metadata.Token) *OwnedList[T] {
	return &OwnedList[T]{owner: owner, index: make(map[T]struct{})}
}

// Owner is the token of the member holding the list.
func (l *OwnedList[T]) Owner() metadata.Token { return l.owner }

// Add appends item. It fails with ErrAlreadyOwned when item belongs to a
// different owner or is already in this list.
func (l *OwnedList[T]) Add(item T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.index[item]; dup {
		return errors.Wrapf(ErrAlreadyOwned, "%s is already in the list of %s", item.Token(), l.owner)
	}
	if err := item.claim(l.owner); err != nil {
		return err
	}
	l.items = append(l.items, item)
	l.index[item] = struct{}{}
	return nil
}

// Items returns a snapshot of the list.
func (l *OwnedList[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]T(nil), l.items...)
}

func (l *OwnedList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// ownedFrom resolves rids of table and collects them into a list owned by
// owner. Rows that do not resolve, or resolve to the wrong kind, are
// reported and skipped.
func ownedFrom[T ownable](m *Module, owner metadata.Token, table metadata.TableKind, rids []uint32, cast func(Member) (T, bool)) *OwnedList[T] {
	list := newOwnedList[T](owner)
	for _, rid := range rids {
		tok := metadata.NewToken(table, rid)
		mem, ok := m.Lookup(tok)
		if !ok {
			m.report(diag.BadImage(owner, "child %s does not resolve", tok))
			continue
		}
		item, ok := cast(mem)
		if !ok {
			m.report(diag.BadImage(owner, "child %s has unexpected kind %T", tok, mem))
			continue
		}
		if err := list.Add(item); err != nil {
			m.report(diag.Wrap(owner, err))
		}
	}
	return list
}

// ownedRange is ownedFrom over a contiguous rid range.
func ownedRange[T ownable](m *Module, owner metadata.Token, table metadata.TableKind, r metadata.RidRange, cast func(Member) (T, bool)) *OwnedList[T] {
	return ownedFrom(m, owner, table, r.Rids(), cast)
}

// as is the usual cast for ownedFrom.
func as[T Member](mem Member) (T, bool) {
	v, ok := mem.(T)
	return v, ok
}
