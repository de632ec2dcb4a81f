package domain

import "context"

// MessageStream is a single logical stream of exchange text frames.
type MessageStream interface {
	Connect(ctx context.Context) error
	Subscribe(topics ...string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}

// MessageParser converts one exchange frame into normalized updates.
// A frame may carry zero or more trades and at most one board update.
type MessageParser interface {
	Parse(text string) (ParsedMessage, error)
}

// ParsedMessage is what a parser extracts from one frame.
type ParsedMessage struct {
	Trades []Trade
	Board  *BoardTransfer
}

// Empty reports whether nothing actionable was extracted.
func (p ParsedMessage) Empty() bool {
	return len(p.Trades) == 0 && p.Board == nil
}

// TradeArchive persists normalized trades and simulated fills.
type TradeArchive interface {
	InsertTrades(ctx context.Context, market string, trades []Trade) (int64, error)
	RecordFills(ctx context.Context, market string, fills []Order) error
}

// BoardSource fetches a full book snapshot for streams that only carry
// diffs. The result must have Snapshot set.
type BoardSource interface {
	Snapshot(ctx context.Context) (*BoardTransfer, error)
}

// MarketPublisher fans normalized market data out to external consumers.
// Board updates carry the clipped top of book with Snapshot set.
type MarketPublisher interface {
	PublishTrades(ctx context.Context, market string, trades []Trade) error
	PublishBoard(ctx context.Context, market string, board *BoardTransfer) error
}
