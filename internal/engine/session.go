package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rbot_go/internal/book"
	"rbot_go/internal/domain"
	"rbot_go/internal/event"
	"rbot_go/internal/execution"
	"rbot_go/internal/strategy"
	"rbot_go/pkg/quant"
)

// ErrSimulationDisabled is returned by order calls on a live-only session.
var ErrSimulationDisabled = errors.New("order simulation disabled")

const (
	archiveTimeout = 5 * time.Second
	resyncTimeout  = 10 * time.Second
	publishTimeout = 2 * time.Second
)

// SessionConfig sizes a session.
type SessionConfig struct {
	Market      string // exchange/category/symbol
	BookDepth   int
	InboxSize   int
	DedupWindow int

	// DumpPath receives the state dump when the loop panics; empty disables it.
	DumpPath string
}

// Stats is a point-in-time view for the query surface.
type Stats struct {
	Market     string          `json:"market"`
	NextSeq    uint64          `json:"next_seq"`
	Trades     uint64          `json:"trades"`
	Duplicates uint64          `json:"duplicates"`
	Fills      uint64          `json:"fills"`
	LastPrice  decimal.Decimal `json:"last_price"`
	LastTrade  quant.MicroSec  `json:"last_trade_time"`
	Resyncs    uint64          `json:"resyncs"`
}

type SessionOption func(*Session)

// WithSimulator enables dry-run order matching against public trades.
func WithSimulator(sim *execution.Simulator) SessionOption {
	return func(s *Session) { s.sim = sim }
}

func WithArchive(a domain.TradeArchive) SessionOption {
	return func(s *Session) { s.archive = a }
}

// WithBoardSource seeds the book on start and again after a gap.
func WithBoardSource(src domain.BoardSource) SessionOption {
	return func(s *Session) { s.source = src }
}

// WithPublisher sends fresh trades and the top depth levels of the book
// after every applied update.
func WithPublisher(p domain.MarketPublisher, depth int) SessionOption {
	return func(s *Session) {
		s.pub = p
		s.pubDepth = depth
	}
}

func WithStrategy(strat any) SessionOption {
	return func(s *Session) { s.hooks = strategy.ResolveHooks(strat) }
}

func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.rec = r }
}

// Session is the single-threaded event processor for one market. Only the
// Run goroutine touches the book writer side, the simulator and the hooks.
type Session struct {
	cfg     SessionConfig
	inbox   chan event.Event
	book    *book.OrderBook
	sim     *execution.Simulator
	archive domain.TradeArchive
	source  domain.BoardSource
	hooks   strategy.Hooks
	rec     Recorder
	logger  *slog.Logger

	pub      domain.MarketPublisher
	pubDepth int

	ctx     context.Context
	nextSeq uint64
	dedup   *idWindow

	mu    sync.RWMutex // guards stats for external reads
	stats Stats
}

// NewSession creates a session around ob. Use book.Registry to share the
// book with the query surface.
func NewSession(cfg SessionConfig, ob *book.OrderBook, opts ...SessionOption) *Session {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 4096
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 4096
	}
	if ob == nil {
		ob = book.NewOrderBook(cfg.Market, cfg.BookDepth)
	}
	s := &Session{
		cfg:     cfg,
		inbox:   make(chan event.Event, cfg.InboxSize),
		book:    ob,
		rec:     nopRecorder{},
		logger:  slog.Default().With("module", "session", "market", cfg.Market),
		ctx:     context.Background(),
		nextSeq: 1,
		dedup:   newIDWindow(cfg.DedupWindow),
		stats:   Stats{Market: cfg.Market},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inbox returns the event channel. The pump sends events here.
func (s *Session) Inbox() chan<- event.Event {
	return s.inbox
}

// Run starts the event loop. It returns when ctx is done. This MUST be run
// in a single goroutine.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	s.logger.Info("Session started", "dry_run", s.sim != nil, "archive", s.archive != nil)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			if s.cfg.DumpPath != "" {
				s.DumpState(s.cfg.DumpPath)
			}
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	if s.source != nil {
		s.resync()
	}
	if s.hooks.OnStart != nil {
		if err := s.hooks.OnStart(s); err != nil {
			return fmt.Errorf("strategy start: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session stopping...")
			if s.hooks.OnStop != nil {
				s.hooks.OnStop(s)
			}
			return nil
		case ev := <-s.inbox:
			s.processEvent(ev)
			event.Release(ev)
		}
	}
}

func (s *Session) processEvent(ev event.Event) {
	// Events come from exactly one pump, so a gap is a bug
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	var received quant.MicroSec
	switch e := ev.(type) {
	case *event.TradeEvent:
		received = e.Ts
		s.handleTrades(e.Trades)
	case *event.BoardEvent:
		received = e.Ts
		s.handleBoard(&e.Transfer)
	default:
		s.logger.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}

	s.nextSeq++
	s.mu.Lock()
	s.stats.NextSeq = s.nextSeq
	s.mu.Unlock()

	if received > 0 {
		s.rec.RecordEvent(s.cfg.Market, string(ev.GetType()), (quant.Now() - received).Duration())
	}
}

func (s *Session) handleTrades(trades []domain.Trade) {
	fresh := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if s.dedup.add(t.ID) {
			fresh = append(fresh, t)
		}
	}
	if dup := len(trades) - len(fresh); dup > 0 {
		s.rec.RecordDuplicateTrades(s.cfg.Market, dup)
		s.logger.Debug("Duplicate trades dropped", "count", dup)
		s.mu.Lock()
		s.stats.Duplicates += uint64(dup)
		s.mu.Unlock()
	}
	if len(fresh) == 0 {
		return
	}

	if s.archive != nil {
		ctx, cancel := context.WithTimeout(s.ctx, archiveTimeout)
		n, err := s.archive.InsertTrades(ctx, s.cfg.Market, fresh)
		cancel()
		if err != nil {
			s.rec.RecordError(s.cfg.Market, "archive")
			s.logger.Error("Failed to archive trades", "count", len(fresh), "error", err)
		} else {
			s.rec.RecordArchived(s.cfg.Market, n)
		}
	}

	// Resting orders fill before the strategy reacts to the trade
	var fills []domain.Order
	if s.sim != nil {
		for _, t := range fresh {
			fills = append(fills, s.sim.ConsumeTrade(t)...)
		}
	}
	if len(fills) > 0 {
		s.rec.RecordOrdersFilled(s.cfg.Market, len(fills))
		if s.archive != nil {
			ctx, cancel := context.WithTimeout(s.ctx, archiveTimeout)
			if err := s.archive.RecordFills(ctx, s.cfg.Market, fills); err != nil {
				s.rec.RecordError(s.cfg.Market, "archive")
				s.logger.Error("Failed to record fills", "count", len(fills), "error", err)
			}
			cancel()
		}
		if s.hooks.OnFill != nil {
			s.hooks.OnFill(s, fills)
		}
	}

	last := fresh[len(fresh)-1]
	s.mu.Lock()
	s.stats.Trades += uint64(len(fresh))
	s.stats.Fills += uint64(len(fills))
	s.stats.LastPrice = last.Price
	s.stats.LastTrade = last.Time
	s.mu.Unlock()

	if s.pub != nil {
		ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
		if err := s.pub.PublishTrades(ctx, s.cfg.Market, fresh); err != nil {
			s.rec.RecordError(s.cfg.Market, "publish")
			s.logger.Warn("Failed to publish trades", "count", len(fresh), "error", err)
		}
		cancel()
	}

	if s.hooks.OnTrade != nil {
		s.hooks.OnTrade(s, fresh)
	}
}

func (s *Session) handleBoard(t *domain.BoardTransfer) {
	res := s.book.Apply(t)
	s.rec.RecordBoardUpdate(s.cfg.Market, res.String())

	switch res {
	case book.Stale:
		return
	case book.Gap:
		if s.source != nil {
			s.resync()
		}
	}

	s.publishBoard()
	if s.hooks.OnBoard != nil {
		s.hooks.OnBoard(s)
	}
}

func (s *Session) publishBoard() {
	if s.pub == nil {
		return
	}
	snap := s.book.SnapshotDepth(s.pubDepth)
	top := &domain.BoardTransfer{
		LastUpdateTime: snap.LastUpdateTime,
		LastUpdateID:   snap.LastUpdateID,
		Bids:           snap.Bids,
		Asks:           snap.Asks,
		Snapshot:       true,
	}
	ctx, cancel := context.WithTimeout(s.ctx, publishTimeout)
	defer cancel()
	if err := s.pub.PublishBoard(ctx, s.cfg.Market, top); err != nil {
		s.rec.RecordError(s.cfg.Market, "publish")
		s.logger.Warn("Failed to publish book", "error", err)
	}
}

// resync replaces the book with a fresh snapshot. Diffs already queued
// behind it are dropped as stale by their update ids.
func (s *Session) resync() {
	ctx, cancel := context.WithTimeout(s.ctx, resyncTimeout)
	defer cancel()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.rec.RecordError(s.cfg.Market, "resync")
		s.logger.Error("Book resync failed", "error", err)
		return
	}
	snap.Snapshot = true
	s.book.Apply(snap)

	s.mu.Lock()
	s.stats.Resyncs++
	s.mu.Unlock()
	s.logger.Info("Book resynced", "last_update_id", snap.LastUpdateID)
}

// Stats returns a copy of the counters (external read).
func (s *Session) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Key implements strategy.Market.
func (s *Session) Key() string { return s.cfg.Market }

func (s *Session) Book() *book.OrderBook { return s.book }

func (s *Session) Simulator() *execution.Simulator { return s.sim }

func (s *Session) PlaceLimit(side domain.Side, price, size decimal.Decimal) (domain.Order, error) {
	if s.sim == nil {
		return domain.Order{}, ErrSimulationDisabled
	}
	return s.sim.PlaceLimit(side, price, size)
}

func (s *Session) Cancel(id string) (domain.Order, error) {
	if s.sim == nil {
		return domain.Order{}, ErrSimulationDisabled
	}
	return s.sim.Cancel(id)
}

func (s *Session) OpenOrders(side domain.Side) []domain.Order {
	if s.sim == nil {
		return nil
	}
	return s.sim.OpenOrders(side)
}

// DumpState writes the internal state to a file (for post-mortem).
func (s *Session) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Stats Stats          `json:"stats"`
		Book  book.Snapshot  `json:"book"`
		Buys  []domain.Order `json:"buys,omitempty"`
		Sells []domain.Order `json:"sells,omitempty"`
	}{
		Stats: s.Stats(),
		Book:  s.book.SnapshotDepth(50),
		Buys:  s.OpenOrders(domain.SideBuy),
		Sells: s.OpenOrders(domain.SideSell),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}

var _ strategy.Market = (*Session)(nil)
