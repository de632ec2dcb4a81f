package strategy

import (
	"github.com/shopspring/decimal"

	"rbot_go/internal/book"
	"rbot_go/internal/domain"
)

// Market is what a strategy sees of its session. Calls are only valid
// from inside a hook; the session loop is single threaded.
type Market interface {
	Key() string
	Book() *book.OrderBook
	PlaceLimit(side domain.Side, price, size decimal.Decimal) (domain.Order, error)
	Cancel(id string) (domain.Order, error)
	OpenOrders(side domain.Side) []domain.Order
}

// A strategy implements any subset of the handler interfaces below.

type Starter interface {
	OnStart(m Market) error
}

type Stopper interface {
	OnStop(m Market)
}

type TradeHandler interface {
	OnTrade(m Market, trades []domain.Trade)
}

// BoardHandler is called after a book update has been applied.
type BoardHandler interface {
	OnBoard(m Market)
}

// FillHandler receives orders filled by the simulator, in fill order.
type FillHandler interface {
	OnFill(m Market, fills []domain.Order)
}

// Hooks is the resolved set of callbacks. Nil fields are skipped.
type Hooks struct {
	OnStart func(Market) error
	OnStop  func(Market)
	OnTrade func(Market, []domain.Trade)
	OnBoard func(Market)
	OnFill  func(Market, []domain.Order)
}

// ResolveHooks type-asserts s once so the hot path does not.
func ResolveHooks(s any) Hooks {
	var h Hooks
	if s == nil {
		return h
	}
	if v, ok := s.(Starter); ok {
		h.OnStart = v.OnStart
	}
	if v, ok := s.(Stopper); ok {
		h.OnStop = v.OnStop
	}
	if v, ok := s.(TradeHandler); ok {
		h.OnTrade = v.OnTrade
	}
	if v, ok := s.(BoardHandler); ok {
		h.OnBoard = v.OnBoard
	}
	if v, ok := s.(FillHandler); ok {
		h.OnFill = v.OnFill
	}
	return h
}

// Empty reports whether no hook is set.
func (h Hooks) Empty() bool {
	return h.OnStart == nil && h.OnStop == nil && h.OnTrade == nil && h.OnBoard == nil && h.OnFill == nil
}
