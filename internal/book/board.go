// Package book maintains depth-bounded local order books fed by normalized diffs.
package book

import (
	"slices"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
)

// Board is one side of a book: price levels keyed by canonical price.
// Not safe for concurrent use; OrderBook serializes access.
type Board struct {
	asc      bool
	maxDepth int
	levels   map[string]domain.BoardItem
}

// NewBoard creates an empty side. asc is true for asks.
// maxDepth 0 keeps every level.
func NewBoard(asc bool, maxDepth int) *Board {
	return &Board{
		asc:      asc,
		maxDepth: maxDepth,
		levels:   make(map[string]domain.BoardItem),
	}
}

func key(price decimal.Decimal) string {
	return price.String()
}

// Set overwrites a level. A zero or negative size deletes it.
func (b *Board) Set(price, size decimal.Decimal) {
	k := key(price)
	if !size.IsPositive() {
		delete(b.levels, k)
		return
	}
	b.levels[k] = domain.BoardItem{Price: price, Size: size}
}

// Len returns the number of price levels.
func (b *Board) Len() int {
	return len(b.levels)
}

// Clear drops all levels.
func (b *Board) Clear() {
	clear(b.levels)
}

// Get returns the levels sorted best first.
func (b *Board) Get() []domain.BoardItem {
	items := make([]domain.BoardItem, 0, len(b.levels))
	for _, item := range b.levels {
		items = append(items, item)
	}
	slices.SortFunc(items, b.compare)
	return items
}

func (b *Board) compare(x, y domain.BoardItem) int {
	if b.asc {
		return x.Price.Cmp(y.Price)
	}
	return y.Price.Cmp(x.Price)
}

// Best returns the top level.
func (b *Board) Best() (domain.BoardItem, bool) {
	var best domain.BoardItem
	found := false
	for _, item := range b.levels {
		if !found || b.compare(item, best) < 0 {
			best = item
			found = true
		}
	}
	return best, found
}

// ClipDepth removes the levels beyond maxDepth. Returns how many were dropped.
func (b *Board) ClipDepth() int {
	if b.maxDepth <= 0 || len(b.levels) <= b.maxDepth {
		return 0
	}
	items := b.Get()
	for _, item := range items[b.maxDepth:] {
		delete(b.levels, key(item.Price))
	}
	return len(items) - b.maxDepth
}
