package event

import (
	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

type Type string

const (
	TypeTrade Type = "TRADE"
	TypeBoard Type = "BOARD"
)

// Event is the unit pushed into a session inbox.
type Event interface {
	GetSeq() uint64
	GetType() Type
	GetMarket() string
}

// Header carries the fields shared by all events.
type Header struct {
	Seq    uint64
	Ts     quant.MicroSec // receive time
	Market string         // exchange/category/symbol
}

func (h *Header) GetSeq() uint64    { return h.Seq }
func (h *Header) GetMarket() string { return h.Market }

// TradeEvent carries the trades decoded from one frame.
type TradeEvent struct {
	Header
	Trades []domain.Trade
}

func (e *TradeEvent) GetType() Type { return TypeTrade }

// BoardEvent carries one snapshot or diff.
type BoardEvent struct {
	Header
	Transfer domain.BoardTransfer
}

func (e *BoardEvent) GetType() Type { return TypeBoard }
