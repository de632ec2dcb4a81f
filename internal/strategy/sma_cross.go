package strategy

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
)

// SMACross places a limit order at the last trade price whenever the short
// moving average of trade prices crosses the long one. Each trade is one
// sample.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	size        decimal.Decimal

	// Ring buffer of the last longPeriod prices
	prices []decimal.Decimal
	head   int
	count  int
	sum    decimal.Decimal

	prevShort decimal.Decimal
	prevLong  decimal.Decimal
	primed    bool

	logger *slog.Logger
}

// NewSMACross creates a crossover strategy ordering size per signal.
func NewSMACross(shortPeriod, longPeriod int, size decimal.Decimal) *SMACross {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		panic("SMACross: shortPeriod must be positive and less than longPeriod")
	}
	return &SMACross{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		size:        size,
		prices:      make([]decimal.Decimal, longPeriod),
		logger:      slog.Default().With("module", "strategy", "strategy", "sma_cross"),
	}
}

func (s *SMACross) OnStart(m Market) error {
	s.logger.Info("Strategy started", "market", m.Key(), "short", s.shortPeriod, "long", s.longPeriod)
	return nil
}

func (s *SMACross) OnTrade(m Market, trades []domain.Trade) {
	for _, t := range trades {
		side, ok := s.push(t.Price)
		if !ok {
			continue
		}
		o, err := m.PlaceLimit(side, t.Price, s.size)
		if err != nil {
			s.logger.Warn("Order rejected", "market", m.Key(), "side", side, "price", t.Price, "error", err)
			continue
		}
		s.logger.Info("Signal", "market", m.Key(), "side", side, "price", t.Price, "order_id", o.ID)
	}
}

func (s *SMACross) OnFill(m Market, fills []domain.Order) {
	for _, o := range fills {
		s.logger.Info("Filled", "market", m.Key(), "order_id", o.ID, "side", o.Side,
			"size", o.ExecuteSize, "status", o.Status)
	}
}

// push adds one price and reports a signal when the averages cross.
func (s *SMACross) push(price decimal.Decimal) (domain.Side, bool) {
	// If full, subtract the oldest value from sum before overwriting
	if s.count == s.longPeriod {
		s.sum = s.sum.Sub(s.prices[s.head])
	}
	s.prices[s.head] = price
	s.sum = s.sum.Add(price)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}
	if s.count < s.longPeriod {
		return "", false
	}

	currLong := s.sum.Div(decimal.NewFromInt(int64(s.longPeriod)))
	currShort := s.shortSMA()
	defer func() {
		s.prevShort, s.prevLong, s.primed = currShort, currLong, true
	}()

	if !s.primed {
		return "", false
	}
	// Golden cross
	if s.prevShort.LessThanOrEqual(s.prevLong) && currShort.GreaterThan(currLong) {
		return domain.SideBuy, true
	}
	// Dead cross
	if s.prevShort.GreaterThanOrEqual(s.prevLong) && currShort.LessThan(currLong) {
		return domain.SideSell, true
	}
	return "", false
}

// shortSMA walks back from the newest price.
func (s *SMACross) shortSMA() decimal.Decimal {
	sum := decimal.Zero
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = sum.Add(s.prices[idx])
	}
	return sum.Div(decimal.NewFromInt(int64(s.shortPeriod)))
}
