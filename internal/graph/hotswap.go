package graph

import (
	"sync"
)

// HotSwapGraph serves whichever Graph was swapped in last. A mount keeps
// one for its lifetime and swaps in a fresh Projection when the snapshot
// is reloaded.
type HotSwapGraph struct {
	mu      sync.RWMutex
	current Graph
}

func NewHotSwapGraph(initial Graph) *HotSwapGraph {
	return &HotSwapGraph{current: initial}
}

// Swap replaces the current graph and returns the previous one. Calls
// already inside the old graph finish against it.
func (h *HotSwapGraph) Swap(next Graph) Graph {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = next
	return prev
}

func (h *HotSwapGraph) load() Graph {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *HotSwapGraph) GetNode(id string) (*Node, error) {
	return h.load().GetNode(id)
}

func (h *HotSwapGraph) ListChildren(id string) ([]string, error) {
	return h.load().ListChildren(id)
}

func (h *HotSwapGraph) ReadContent(id string, buf []byte, offset int64) (int, error) {
	return h.load().ReadContent(id, buf, offset)
}

func (h *HotSwapGraph) Invalidate(id string) {
	h.load().Invalidate(id)
}
