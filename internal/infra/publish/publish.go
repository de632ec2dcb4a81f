// Package publish sends normalized trades and top-of-book snapshots to
// Redis and Kafka.
package publish

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

// TradeMessage is the wire form of one trade.
type TradeMessage struct {
	Market string          `json:"market"`
	ID     string          `json:"id"`
	Time   quant.MicroSec  `json:"time"`
	Side   domain.Side     `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
}

// BookMessage is the wire form of a top-of-book snapshot.
type BookMessage struct {
	Market         string             `json:"market"`
	LastUpdateTime quant.MicroSec     `json:"last_update_time"`
	LastUpdateID   int64              `json:"last_update_id"`
	Bids           []domain.BoardItem `json:"bids"`
	Asks           []domain.BoardItem `json:"asks"`
}

func tradeMessages(market string, trades []domain.Trade) []TradeMessage {
	out := make([]TradeMessage, len(trades))
	for i, t := range trades {
		out[i] = TradeMessage{Market: market, ID: t.ID, Time: t.Time, Side: t.Side, Price: t.Price, Size: t.Size}
	}
	return out
}

func bookMessage(market string, b *domain.BoardTransfer) BookMessage {
	return BookMessage{
		Market:         market,
		LastUpdateTime: b.LastUpdateTime,
		LastUpdateID:   b.LastUpdateID,
		Bids:           b.Bids,
		Asks:           b.Asks,
	}
}

// Multi publishes to every sink and joins their errors.
type Multi []domain.MarketPublisher

func (m Multi) PublishTrades(ctx context.Context, market string, trades []domain.Trade) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishTrades(ctx, market, trades))
	}
	return errors.Join(errs...)
}

func (m Multi) PublishBoard(ctx context.Context, market string, board *domain.BoardTransfer) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.PublishBoard(ctx, market, board))
	}
	return errors.Join(errs...)
}
