// Package execution simulates resting limit orders against the public trade stream.
package execution

import (
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

// OrderList holds the resting orders of one side sorted by execution priority:
// best price first, then oldest first.
// Not safe for concurrent use; Simulator serializes access.
type OrderList struct {
	asc    bool // true for sell orders
	side   domain.Side
	orders []domain.Order
	logger *slog.Logger
}

// NewOrderList creates an empty list for resting orders of side.
func NewOrderList(side domain.Side) *OrderList {
	return &OrderList{
		asc:    side == domain.SideSell,
		side:   side,
		logger: slog.Default().With("module", "orderlist", "side", string(side)),
	}
}

func (l *OrderList) Side() domain.Side { return l.side }

func (l *OrderList) Len() int { return len(l.orders) }

func (l *OrderList) compare(a, b domain.Order) int {
	c := a.Price.Cmp(b.Price)
	if !l.asc {
		c = -c
	}
	if c != 0 {
		return c
	}
	switch {
	case a.CreateTime < b.CreateTime:
		return -1
	case a.CreateTime > b.CreateTime:
		return 1
	}
	return 0
}

func (l *OrderList) sort() {
	slices.SortStableFunc(l.orders, l.compare)
}

func (l *OrderList) index(id string) int {
	return slices.IndexFunc(l.orders, func(o domain.Order) bool { return o.ID == id })
}

// Append inserts an order. A duplicate id is a programming error: it panics
// in debug builds and replaces the existing entry otherwise.
func (l *OrderList) Append(order domain.Order) {
	if i := l.index(order.ID); i >= 0 {
		if strictInvariants {
			panic("orderlist: duplicate order id " + order.ID)
		}
		l.logger.Error("duplicate order id, replacing", slog.String("order_id", order.ID))
		l.orders[i] = order
	} else {
		l.orders = append(l.orders, order)
	}
	l.sort()
}

// Update replaces the order with the same id and re-sorts.
// Returns false when no such order exists.
func (l *OrderList) Update(order domain.Order) bool {
	i := l.index(order.ID)
	if i < 0 {
		return false
	}
	l.orders[i] = order
	l.sort()
	return true
}

// UpdateOrInsert updates a known order or appends a new one.
func (l *OrderList) UpdateOrInsert(order domain.Order) {
	if !l.Update(order) {
		l.Append(order)
	}
}

// Remove deletes the order by id and returns it.
func (l *OrderList) Remove(id string) (domain.Order, bool) {
	i := l.index(id)
	if i < 0 {
		return domain.Order{}, false
	}
	o := l.orders[i]
	l.orders = slices.Delete(l.orders, i, i+1)
	return o, true
}

// Get returns a copy of the order by id.
func (l *OrderList) Get(id string) (domain.Order, bool) {
	i := l.index(id)
	if i < 0 {
		return domain.Order{}, false
	}
	return l.orders[i], true
}

// Orders returns a copy of the list in priority order.
func (l *OrderList) Orders() []domain.Order {
	return slices.Clone(l.orders)
}

// RemainSize sums the unfilled size across the list.
func (l *OrderList) RemainSize() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.RemainSize)
	}
	return total
}

// OldOrders returns orders created strictly before t.
func (l *OrderList) OldOrders(t quant.MicroSec) []domain.Order {
	var out []domain.Order
	for _, o := range l.orders {
		if o.CreateTime < t {
			out = append(out, o)
		}
	}
	return out
}

func (l *OrderList) Clear() {
	l.orders = l.orders[:0]
}

// ConsumeTrade matches an opposite-side trade against the head of the list.
// A buy order fills only on trades strictly below its price, a sell order
// only on trades strictly above. Filled orders leave the list; a partially
// filled head ends the sweep. Returns copies of every order touched.
func (l *OrderList) ConsumeTrade(trade domain.Trade) []domain.Order {
	if len(l.orders) == 0 {
		return nil
	}
	if trade.Side == l.side {
		l.logger.Error("trade and order side are the same",
			slog.String("trade_id", trade.ID),
			slog.String("trade_side", string(trade.Side)))
		return nil
	}

	var touched []domain.Order
	leftover := trade.Size

	for len(l.orders) > 0 && leftover.IsPositive() {
		head := &l.orders[0]
		if !l.crosses(trade.Price, head.Price) {
			break
		}

		if leftover.LessThan(head.RemainSize) {
			head.Fill(leftover, trade.Time)
			touched = append(touched, *head)
			break
		}

		executed := head.RemainSize
		head.Fill(executed, trade.Time)
		leftover = leftover.Sub(executed)
		touched = append(touched, *head)
		l.orders = slices.Delete(l.orders, 0, 1)
	}
	return touched
}

func (l *OrderList) crosses(tradePrice, orderPrice decimal.Decimal) bool {
	if l.side == domain.SideBuy {
		return tradePrice.LessThan(orderPrice)
	}
	return tradePrice.GreaterThan(orderPrice)
}
