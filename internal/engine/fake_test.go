package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/internal/event"
)

const testMarket = "test/spot/BTCUSDT"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(id string, side domain.Side, price, size string) domain.Trade {
	return domain.Trade{Time: 1, Side: side, Price: d(price), Size: d(size), ID: id}
}

func tradeEvent(seq uint64, trades ...domain.Trade) *event.TradeEvent {
	ev := event.AcquireTradeEvent()
	ev.Header = event.Header{Seq: seq, Market: testMarket}
	ev.Trades = append(ev.Trades, trades...)
	return ev
}

func boardEvent(seq uint64, first, last int64, bids ...domain.BoardItem) *event.BoardEvent {
	ev := event.AcquireBoardEvent()
	ev.Header = event.Header{Seq: seq, Market: testMarket}
	ev.Transfer.FirstUpdateID = first
	ev.Transfer.LastUpdateID = last
	ev.Transfer.Bids = append(ev.Transfer.Bids, bids...)
	return ev
}

type fakeArchive struct {
	mu     sync.Mutex
	trades []domain.Trade
	fills  []domain.Order
}

func (a *fakeArchive) InsertTrades(_ context.Context, _ string, trades []domain.Trade) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, trades...)
	return int64(len(trades)), nil
}

func (a *fakeArchive) RecordFills(_ context.Context, _ string, fills []domain.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fills = append(a.fills, fills...)
	return nil
}

func (a *fakeArchive) counts() (trades, fills int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.trades), len(a.fills)
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	id    int64
}

func (s *fakeSource) Snapshot(context.Context) (*domain.BoardTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &domain.BoardTransfer{
		LastUpdateID: s.id,
		Bids:         []domain.BoardItem{{Price: d("100"), Size: d("1")}},
		Asks:         []domain.BoardItem{{Price: d("101"), Size: d("1")}},
		Snapshot:     true,
	}, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingRecorder struct {
	mu     sync.Mutex
	errors map[string]int
	boards map[string]int
	fills  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{errors: map[string]int{}, boards: map[string]int{}}
}

func (r *countingRecorder) RecordEvent(string, string, time.Duration) {}
func (r *countingRecorder) RecordDuplicateTrades(string, int)         {}
func (r *countingRecorder) RecordArchived(string, int64)              {}

func (r *countingRecorder) RecordError(_, kind string) {
	r.mu.Lock()
	r.errors[kind]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordBoardUpdate(_, result string) {
	r.mu.Lock()
	r.boards[result]++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordOrdersFilled(_ string, n int) {
	r.mu.Lock()
	r.fills += n
	r.mu.Unlock()
}

func (r *countingRecorder) errorCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors[kind]
}

// chanStream replays frames and then reports end.
type chanStream struct {
	frames chan string
	end    error
}

func (s *chanStream) Connect(context.Context) error { return nil }
func (s *chanStream) Subscribe(...string) error     { return nil }
func (s *chanStream) Close() error                  { return nil }

func (s *chanStream) Receive(ctx context.Context) (string, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return "", s.end
		}
		return f, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakePublisher struct {
	mu     sync.Mutex
	trades []domain.Trade
	boards []*domain.BoardTransfer
	err    error
}

func (p *fakePublisher) PublishTrades(_ context.Context, _ string, trades []domain.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, trades...)
	return p.err
}

func (p *fakePublisher) PublishBoard(_ context.Context, _ string, board *domain.BoardTransfer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.boards = append(p.boards, board)
	return p.err
}

func (p *fakePublisher) counts() (trades, boards int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trades), len(p.boards)
}
