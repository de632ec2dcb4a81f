package domain

import (
	"github.com/shopspring/decimal"

	"rbot_go/pkg/quant"
)

// Trade is an executed public trade as reported by an exchange.
// Side is the taker side.
type Trade struct {
	Time  quant.MicroSec
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
	ID    string
}

// Notional returns Price * Size.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}
