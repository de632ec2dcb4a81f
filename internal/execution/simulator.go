package execution

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

// Simulator is a dry-run execution venue for one market.
// Resting orders fill against public trades at their own limit price.
type Simulator struct {
	mu sync.Mutex

	symbol string
	buys   *OrderList
	sells  *OrderList
	wallet Wallet
	fills  int

	now    func() quant.MicroSec
	newID  func() string
	logger *slog.Logger
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithClock overrides the time source used to stamp orders.
func WithClock(now func() quant.MicroSec) SimulatorOption {
	return func(s *Simulator) { s.now = now }
}

// WithIDGenerator overrides uuid order ids.
func WithIDGenerator(f func() string) SimulatorOption {
	return func(s *Simulator) { s.newID = f }
}

// NewSimulator creates a simulator with an initial wallet.
func NewSimulator(symbol string, wallet Wallet, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		symbol: symbol,
		buys:   NewOrderList(domain.SideBuy),
		sells:  NewOrderList(domain.SideSell),
		wallet: wallet,
		now:    quant.Now,
		newID:  uuid.NewString,
		logger: slog.Default().With("module", "simulator", "symbol", symbol),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) list(side domain.Side) *OrderList {
	if side == domain.SideBuy {
		return s.buys
	}
	return s.sells
}

// PlaceLimit rests a new limit order and locks its funds.
func (s *Simulator) PlaceLimit(side domain.Side, price, size decimal.Decimal) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := domain.NewLimitOrder(s.newID(), s.symbol, side, price, size, s.now())
	if err := order.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("place %s %s@%s: %w", side, size, price, err)
	}
	if err := s.wallet.Lock(side, price, size); err != nil {
		return domain.Order{}, fmt.Errorf("place %s %s@%s: %w", side, size, price, err)
	}

	s.list(side).Append(order)
	s.logger.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("side", string(side)),
		slog.String("price", price.String()),
		slog.String("size", size.String()))
	return order, nil
}

// Cancel removes an open order and releases its remaining funds.
func (s *Simulator) Cancel(id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range []*OrderList{s.buys, s.sells} {
		order, ok := l.Remove(id)
		if !ok {
			continue
		}
		s.wallet.Unlock(order.Side, order.Price, order.RemainSize)
		order.Cancel(s.now())
		return order, nil
	}
	return domain.Order{}, fmt.Errorf("cancel %s: %w", id, domain.ErrOrderNotFound)
}

// ConsumeTrade routes a taker sell to the buy list and a taker buy to the
// sell list, then settles every fill in the wallet.
func (s *Simulator) ConsumeTrade(trade domain.Trade) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fills []domain.Order
	switch trade.Side {
	case domain.SideSell:
		fills = s.buys.ConsumeTrade(trade)
	case domain.SideBuy:
		fills = s.sells.ConsumeTrade(trade)
	default:
		s.logger.Warn("trade without side", slog.String("trade_id", trade.ID))
		return nil
	}

	for _, f := range fills {
		s.wallet.ApplyFill(f)
	}
	s.fills += len(fills)
	return fills
}

// OpenOrders returns the resting orders of side in priority order.
func (s *Simulator) OpenOrders(side domain.Side) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(side).Orders()
}

// Wallet returns a copy of the balances.
func (s *Simulator) Wallet() Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet
}

// FillCount returns the number of executions since creation.
func (s *Simulator) FillCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fills
}

// Reset cancels everything at session end. The wallet regains locked funds.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range []*OrderList{s.buys, s.sells} {
		for _, o := range l.Orders() {
			s.wallet.Unlock(o.Side, o.Price, o.RemainSize)
		}
		l.Clear()
	}
}
