package ws

// history remembers the most recently emitted frames so a cutover can
// locate its boundary in the standby buffer and skip replays.
type history struct {
	ring  []string
	next  int
	full  bool
	count map[string]int
}

func newHistory(size int) *history {
	return &history{
		ring:  make([]string, size),
		count: make(map[string]int, size),
	}
}

func (h *history) add(text string) {
	if h.full {
		old := h.ring[h.next]
		if h.count[old]--; h.count[old] <= 0 {
			delete(h.count, old)
		}
	}
	h.ring[h.next] = text
	h.count[text]++
	h.next++
	if h.next == len(h.ring) {
		h.next = 0
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.ring)
	}
	return h.next
}

func (h *history) contains(text string) bool {
	return h.count[text] > 0
}

// tail returns the last n frames, oldest first.
func (h *history) tail(n int) []string {
	n = min(n, h.len())
	out := make([]string, n)
	for i := 0; i < n; i++ {
		idx := (h.next - n + i + len(h.ring)) % len(h.ring)
		out[i] = h.ring[idx]
	}
	return out
}

// boundary returns the index in buf of the last emitted frame, matched
// together with up to depth frames before it. -1 when not found.
func boundary(buf, tail []string) int {
	if len(tail) == 0 {
		return -1
	}
	last := tail[len(tail)-1]
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] != last {
			continue
		}
		ok := true
		for k := 1; k < len(tail) && ok; k++ {
			j := i - k
			if j < 0 {
				break // matched as far as the buffer reaches
			}
			ok = buf[j] == tail[len(tail)-1-k]
		}
		if ok {
			return i
		}
	}
	return -1
}
