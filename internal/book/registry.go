package book

import (
	"slices"
	"sync"
)

// Key builds the registry key for a market.
func Key(exchange, category, symbol string) string {
	return exchange + "/" + category + "/" + symbol
}

// Registry holds the live books of a process, one per market.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*OrderBook)}
}

// Register returns the existing book for market or creates it.
func (r *Registry) Register(market string, maxDepth int) *OrderBook {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ob, ok := r.books[market]; ok {
		return ob
	}
	ob := NewOrderBook(market, maxDepth)
	r.books[market] = ob
	return ob
}

func (r *Registry) Get(market string) (*OrderBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ob, ok := r.books[market]
	return ob, ok
}

func (r *Registry) Unregister(market string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.books, market)
}

// Keys returns the registered markets sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.books))
	for k := range r.books {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
