package domain

import (
	"github.com/shopspring/decimal"

	"rbot_go/pkg/quant"
)

// Side is the taker side of a trade or the side of a resting order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus follows New -> PartiallyFilled* -> Filled, or any open state -> Canceled.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled
}

// Order represents a simulated resting order.
// ExecuteSize and ExecutePrice describe the most recent fill only;
// FilledSize and QuoteVolume accumulate over the order's lifetime.
type Order struct {
	ID           string
	Symbol       string
	Side         Side
	Type         OrderType
	Price        decimal.Decimal
	Size         decimal.Decimal
	RemainSize   decimal.Decimal
	ExecuteSize  decimal.Decimal
	ExecutePrice decimal.Decimal
	FilledSize   decimal.Decimal
	QuoteVolume  decimal.Decimal
	Status       OrderStatus
	CreateTime   quant.MicroSec
	UpdateTime   quant.MicroSec
}

// NewLimitOrder builds a fresh limit order with RemainSize == Size.
func NewLimitOrder(id, symbol string, side Side, price, size decimal.Decimal, created quant.MicroSec) Order {
	return Order{
		ID:         id,
		Symbol:     symbol,
		Side:       side,
		Type:       OrderTypeLimit,
		Price:      price,
		Size:       size,
		RemainSize: size,
		Status:     OrderStatusNew,
		CreateTime: created,
		UpdateTime: created,
	}
}

// Validate checks the static order invariants.
func (o *Order) Validate() error {
	switch {
	case o.ID == "":
		return ErrInvalidOrder
	case !o.Side.Valid():
		return ErrInvalidOrder
	case !o.Size.IsPositive():
		return ErrInvalidOrder
	case o.Type == OrderTypeLimit && !o.Price.IsPositive():
		return ErrInvalidOrder
	case o.RemainSize.IsNegative() || o.RemainSize.GreaterThan(o.Size):
		return ErrInvalidOrder
	}
	return nil
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// Fill executes size at the order's own limit price.
// Returns false without mutating when the order is terminal or size is not positive.
// size is clamped to RemainSize.
func (o *Order) Fill(size decimal.Decimal, at quant.MicroSec) bool {
	if !o.IsOpen() || !size.IsPositive() {
		return false
	}
	if size.GreaterThan(o.RemainSize) {
		size = o.RemainSize
	}

	o.RemainSize = o.RemainSize.Sub(size)
	o.ExecuteSize = size
	o.ExecutePrice = o.Price
	o.FilledSize = o.FilledSize.Add(size)
	o.QuoteVolume = o.QuoteVolume.Add(size.Mul(o.Price))
	o.UpdateTime = at

	if o.RemainSize.IsZero() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	return true
}

// Cancel moves an open order to Canceled. Terminal orders are left untouched.
func (o *Order) Cancel(at quant.MicroSec) bool {
	if !o.IsOpen() {
		return false
	}
	o.Status = OrderStatusCanceled
	o.ExecuteSize = decimal.Zero
	o.UpdateTime = at
	return true
}
