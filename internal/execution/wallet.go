package execution

import (
	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
)

// Balance of one asset. Locked funds back resting orders.
type Balance struct {
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// Wallet tracks the home (quote) and foreign (base) balances of one market.
// Not safe for concurrent use; Simulator serializes access.
type Wallet struct {
	Home    Balance `json:"home"`
	Foreign Balance `json:"foreign"`
}

// lockFor returns the asset amount an order of side needs to rest.
func lockFor(side domain.Side, price, size decimal.Decimal) decimal.Decimal {
	if side == domain.SideBuy {
		return price.Mul(size)
	}
	return size
}

func (w *Wallet) balance(side domain.Side) *Balance {
	if side == domain.SideBuy {
		return &w.Home
	}
	return &w.Foreign
}

// Lock reserves the funds for a new resting order.
func (w *Wallet) Lock(side domain.Side, price, size decimal.Decimal) error {
	b := w.balance(side)
	amount := lockFor(side, price, size)
	if b.Free.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}
	b.Free = b.Free.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	return nil
}

// Unlock releases the funds of the unfilled part of a canceled order.
func (w *Wallet) Unlock(side domain.Side, price, size decimal.Decimal) {
	b := w.balance(side)
	amount := decimal.Min(lockFor(side, price, size), b.Locked)
	b.Locked = b.Locked.Sub(amount)
	b.Free = b.Free.Add(amount)
}

// ApplyFill settles the last execution of an order.
func (w *Wallet) ApplyFill(o domain.Order) {
	quote := o.ExecuteSize.Mul(o.ExecutePrice)
	if o.Side == domain.SideBuy {
		spent := decimal.Min(lockFor(domain.SideBuy, o.Price, o.ExecuteSize), w.Home.Locked)
		w.Home.Locked = w.Home.Locked.Sub(spent)
		w.Home.Free = w.Home.Free.Add(spent.Sub(quote))
		w.Foreign.Free = w.Foreign.Free.Add(o.ExecuteSize)
		return
	}
	sold := decimal.Min(o.ExecuteSize, w.Foreign.Locked)
	w.Foreign.Locked = w.Foreign.Locked.Sub(sold)
	w.Home.Free = w.Home.Free.Add(quote)
}
