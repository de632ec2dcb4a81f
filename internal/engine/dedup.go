package engine

// idWindow remembers the last N trade ids. A reconnect replays recent
// trades, a forced handover may too.
type idWindow struct {
	ring []string
	next int
	seen map[string]struct{}
}

func newIDWindow(size int) *idWindow {
	return &idWindow{
		ring: make([]string, size),
		seen: make(map[string]struct{}, size),
	}
}

// add returns false when id is already in the window. Empty ids are
// always new.
func (w *idWindow) add(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := w.seen[id]; ok {
		return false
	}
	if old := w.ring[w.next]; old != "" {
		delete(w.seen, old)
	}
	w.ring[w.next] = id
	w.seen[id] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	return true
}

func (w *idWindow) len() int { return len(w.seen) }
