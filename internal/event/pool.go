package event

import (
	"sync"
)

// Pools for high-frequency event allocation on the frame pump hotpath.
//
// Usage:
//
//	ev := AcquireTradeEvent()
//	ev.Market = "bybit/linear/BTCUSDT"
//	// ... use event ...
//	ReleaseTradeEvent(ev)  // Return to pool after processing
var tradePool = sync.Pool{
	New: func() interface{} {
		return &TradeEvent{}
	},
}

// AcquireTradeEvent gets a TradeEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireTradeEvent() *TradeEvent {
	return tradePool.Get().(*TradeEvent)
}

// ReleaseTradeEvent returns a TradeEvent to the pool.
// The trade slice is kept for reuse with its length reset.
func ReleaseTradeEvent(ev *TradeEvent) {
	if ev == nil {
		return
	}
	ev.Header = Header{}
	clear(ev.Trades)
	ev.Trades = ev.Trades[:0]

	tradePool.Put(ev)
}

var boardPool = sync.Pool{
	New: func() interface{} {
		return &BoardEvent{}
	},
}

// AcquireBoardEvent gets a BoardEvent from the pool.
func AcquireBoardEvent() *BoardEvent {
	return boardPool.Get().(*BoardEvent)
}

// ReleaseBoardEvent returns a BoardEvent to the pool.
func ReleaseBoardEvent(ev *BoardEvent) {
	if ev == nil {
		return
	}
	ev.Header = Header{}
	ev.Transfer.Bids = ev.Transfer.Bids[:0]
	ev.Transfer.Asks = ev.Transfer.Asks[:0]
	ev.Transfer.FirstUpdateID = 0
	ev.Transfer.LastUpdateID = 0
	ev.Transfer.LastUpdateTime = 0
	ev.Transfer.Snapshot = false

	boardPool.Put(ev)
}

// Release returns any pooled event to its pool.
func Release(ev Event) {
	switch e := ev.(type) {
	case *TradeEvent:
		ReleaseTradeEvent(e)
	case *BoardEvent:
		ReleaseBoardEvent(e)
	}
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 256

	trades := make([]*TradeEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		trades = append(trades, AcquireTradeEvent())
	}
	for _, ev := range trades {
		ReleaseTradeEvent(ev)
	}

	boards := make([]*BoardEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		boards = append(boards, AcquireBoardEvent())
	}
	for _, ev := range boards {
		ReleaseBoardEvent(ev)
	}
}
