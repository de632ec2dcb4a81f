package strategy_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"rbot_go/internal/book"
	"rbot_go/internal/domain"
	"rbot_go/internal/strategy"
)

// fakeMarket records placed orders.
type fakeMarket struct {
	placed []domain.Order
	reject error
}

func (m *fakeMarket) Key() string           { return "test/spot/BTC" }
func (m *fakeMarket) Book() *book.OrderBook { return book.NewOrderBook(m.Key(), 10) }

func (m *fakeMarket) PlaceLimit(side domain.Side, price, size decimal.Decimal) (domain.Order, error) {
	if m.reject != nil {
		return domain.Order{}, m.reject
	}
	o := domain.NewLimitOrder("o", "BTC", side, price, size, 0)
	m.placed = append(m.placed, o)
	return o, nil
}

func (m *fakeMarket) Cancel(id string) (domain.Order, error) {
	return domain.Order{}, domain.ErrOrderNotFound
}

func (m *fakeMarket) OpenOrders(domain.Side) []domain.Order { return m.placed }

func priceTrade(p int64) domain.Trade {
	return domain.Trade{Price: decimal.NewFromInt(p), Size: decimal.NewFromInt(1), Side: domain.SideBuy}
}

func TestSMACross(t *testing.T) {
	// Setup: Short=3, Long=5
	strat := strategy.NewSMACross(3, 5, decimal.NewFromInt(1))
	m := &fakeMarket{}

	push := func(price int64) int {
		before := len(m.placed)
		strat.OnTrade(m, []domain.Trade{priceTrade(price)})
		return len(m.placed) - before
	}

	// T1-T5: all 100, not enough history then primed
	for i := 0; i < 5; i++ {
		if n := push(100); n != 0 {
			t.Fatalf("T%d: expected no orders, got %d", i+1, n)
		}
	}

	// T6: Short(3)=133.3 > Long(5)=120 => golden cross
	if n := push(200); n != 1 {
		t.Fatalf("T6: expected 1 order, got %d", n)
	}
	if got := m.placed[0]; got.Side != domain.SideBuy || !got.Price.Equal(decimal.NewFromInt(200)) {
		t.Errorf("T6: order = %s@%s", got.Side, got.Price)
	}

	// T7: Short=116.7 > Long=110, still above
	if n := push(50); n != 0 {
		t.Errorf("T7: expected no orders, got %d", n)
	}

	// T8: Short=83.3 < Long=90 => dead cross
	if n := push(0); n != 1 {
		t.Fatalf("T8: expected 1 order, got %d", n)
	}
	if m.placed[1].Side != domain.SideSell {
		t.Errorf("T8: expected SELL, got %s", m.placed[1].Side)
	}
}

func TestSMACross_RejectedOrderKeepsState(t *testing.T) {
	strat := strategy.NewSMACross(1, 2, decimal.NewFromInt(1))
	m := &fakeMarket{reject: domain.ErrInsufficientBalance}

	strat.OnTrade(m, []domain.Trade{priceTrade(100), priceTrade(100), priceTrade(200)})
	if len(m.placed) != 0 {
		t.Fatalf("placed = %d, want 0", len(m.placed))
	}

	m.reject = nil
	strat.OnTrade(m, []domain.Trade{priceTrade(50)})
	if len(m.placed) != 1 || m.placed[0].Side != domain.SideSell {
		t.Errorf("placed = %+v, want one sell", m.placed)
	}
}

func TestNewSMACross_InvalidPeriods(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	strategy.NewSMACross(5, 5, decimal.NewFromInt(1))
}

func BenchmarkSMACross_OnTrade(b *testing.B) {
	strat := strategy.NewSMACross(20, 50, decimal.NewFromInt(1))
	m := &fakeMarket{reject: errors.New("discard")}
	trades := []domain.Trade{priceTrade(50000)}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		trades[0].Price = decimal.NewFromInt(50000 + int64(i%100))
		strat.OnTrade(m, trades)
	}
}
