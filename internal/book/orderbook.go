package book

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

// ApplyResult describes how a BoardTransfer related to the previous one.
type ApplyResult int

const (
	Applied ApplyResult = iota
	// Stale transfers are older than the book and were ignored.
	Stale
	// Gap means update ids were skipped; the transfer was still applied.
	Gap
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

// OrderBook is a bids/asks pair for one market.
// All mutation and multi-field reads happen under one mutex; reads return copies.
type OrderBook struct {
	mu sync.RWMutex

	market string
	bids   *Board
	asks   *Board

	lastUpdateID   int64
	lastUpdateTime quant.MicroSec

	logger *slog.Logger
}

// NewOrderBook creates an empty book. maxDepth 0 is unbounded.
func NewOrderBook(market string, maxDepth int) *OrderBook {
	return &OrderBook{
		market: market,
		bids:   NewBoard(false, maxDepth),
		asks:   NewBoard(true, maxDepth),
		logger: slog.Default().With("module", "book", "market", market),
	}
}

// Market returns the book's registry key.
func (ob *OrderBook) Market() string {
	return ob.market
}

// Update applies level diffs. force clears both sides first.
// Depth is clipped after every update.
func (ob *OrderBook) Update(bids, asks []domain.BoardItem, force bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.update(bids, asks, force)
}

func (ob *OrderBook) update(bids, asks []domain.BoardItem, force bool) {
	if force {
		ob.bids.Clear()
		ob.asks.Clear()
	}
	for _, item := range bids {
		ob.bids.Set(item.Price, item.Size)
	}
	for _, item := range asks {
		ob.asks.Set(item.Price, item.Size)
	}
	ob.clip()
}

func (ob *OrderBook) clip() {
	if n := ob.bids.ClipDepth() + ob.asks.ClipDepth(); n > 0 {
		ob.logger.Debug("board depth over, levels removed", slog.Int("removed", n))
	}
}

// Apply applies a normalized transfer and tracks update ids.
// A snapshot always resets state. Diffs older than the book are skipped.
func (ob *OrderBook) Apply(t *domain.BoardTransfer) ApplyResult {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	result := Applied
	if !t.Snapshot && ob.lastUpdateID != 0 {
		switch {
		case t.LastUpdateID != 0 && t.LastUpdateID <= ob.lastUpdateID:
			return Stale
		case t.FirstUpdateID != 0 && t.FirstUpdateID > ob.lastUpdateID+1:
			ob.logger.Warn("update id gap",
				slog.Int64("expected", ob.lastUpdateID+1),
				slog.Int64("got", t.FirstUpdateID))
			result = Gap
		}
	}

	ob.update(t.Bids, t.Asks, t.Snapshot)

	if t.LastUpdateID != 0 {
		ob.lastUpdateID = t.LastUpdateID
	}
	if t.LastUpdateTime > ob.lastUpdateTime {
		ob.lastUpdateTime = t.LastUpdateTime
	}
	return result
}

// Bids returns the bid levels, highest price first.
func (ob *OrderBook) Bids() []domain.BoardItem {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bids.Get()
}

// Asks returns the ask levels, lowest price first.
func (ob *OrderBook) Asks() []domain.BoardItem {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.asks.Get()
}

// EdgePrice returns the best bid and best ask.
// Fails with domain.ErrBoardEmpty when either side has no levels.
func (ob *OrderBook) EdgePrice() (bid, ask decimal.Decimal, err error) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	b, ok := ob.bids.Best()
	if !ok {
		return bid, ask, fmt.Errorf("%s bids: %w", ob.market, domain.ErrBoardEmpty)
	}
	a, ok := ob.asks.Best()
	if !ok {
		return bid, ask, fmt.Errorf("%s asks: %w", ob.market, domain.ErrBoardEmpty)
	}
	return b.Price, a.Price, nil
}

// ClipDepth truncates both sides to the configured depth.
func (ob *OrderBook) ClipDepth() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.clip()
}

// Depth returns the number of levels on each side.
func (ob *OrderBook) Depth() (bids, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bids.Len(), ob.asks.Len()
}

// Clear empties the book and forgets update ids.
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.Clear()
	ob.asks.Clear()
	ob.lastUpdateID = 0
	ob.lastUpdateTime = 0
}

// Transfer returns the whole book as a snapshot transfer.
func (ob *OrderBook) Transfer() domain.BoardTransfer {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return domain.BoardTransfer{
		LastUpdateTime: ob.lastUpdateTime,
		FirstUpdateID:  ob.lastUpdateID,
		LastUpdateID:   ob.lastUpdateID,
		Bids:           ob.bids.Get(),
		Asks:           ob.asks.Get(),
		Snapshot:       true,
	}
}

// Snapshot is the JSON document served for a book.
type Snapshot struct {
	Market         string             `json:"market"`
	LastUpdateTime quant.MicroSec     `json:"last_update_time"`
	LastUpdateID   int64              `json:"last_update_id"`
	Bids           []domain.BoardItem `json:"bids"`
	Asks           []domain.BoardItem `json:"asks"`
}

// SnapshotDepth returns up to depth levels per side. depth 0 returns all.
func (ob *OrderBook) SnapshotDepth(depth int) Snapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bids := ob.bids.Get()
	asks := ob.asks.Get()
	if depth > 0 {
		bids = bids[:min(depth, len(bids))]
		asks = asks[:min(depth, len(asks))]
	}
	return Snapshot{
		Market:         ob.market,
		LastUpdateTime: ob.lastUpdateTime,
		LastUpdateID:   ob.lastUpdateID,
		Bids:           bids,
		Asks:           asks,
	}
}

// JSON renders SnapshotDepth(depth).
func (ob *OrderBook) JSON(depth int) ([]byte, error) {
	return json.Marshal(ob.SnapshotDepth(depth))
}

// DryMarketOrder sweeps the opposite side for size without mutating the book.
// One taker order is returned per level touched, priced at that level.
// When the book is thinner than size the last order stays PartiallyFilled.
func (ob *OrderBook) DryMarketOrder(id string, side domain.Side, size decimal.Decimal, now quant.MicroSec) ([]domain.Order, error) {
	if !size.IsPositive() {
		return nil, domain.ErrInvalidOrder
	}

	var levels []domain.BoardItem
	if side == domain.SideBuy {
		levels = ob.Asks()
	} else {
		levels = ob.Bids()
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("%s dry market %s: %w", ob.market, side, domain.ErrBoardEmpty)
	}

	remain := size
	orders := make([]domain.Order, 0, 4)
	for i, level := range levels {
		if !remain.IsPositive() {
			break
		}
		exec := decimal.Min(remain, level.Size)
		remain = remain.Sub(exec)

		status := domain.OrderStatusPartiallyFilled
		if remain.IsZero() {
			status = domain.OrderStatusFilled
		}
		orders = append(orders, domain.Order{
			ID:           fmt.Sprintf("%s-%d", id, i+1),
			Symbol:       ob.market,
			Side:         side,
			Type:         domain.OrderTypeMarket,
			Size:         size,
			RemainSize:   remain,
			ExecuteSize:  exec,
			ExecutePrice: level.Price,
			FilledSize:   size.Sub(remain),
			QuoteVolume:  exec.Mul(level.Price),
			Status:       status,
			CreateTime:   now,
			UpdateTime:   now,
		})
	}
	return orders, nil
}
