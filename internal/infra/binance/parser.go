package binance

import (
	"encoding/json"
	"fmt"
	"strconv"

	gbinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

type envelope struct {
	Event     string          `json:"e"`
	EventTime int64           `json:"E"`
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	// Partial depth streams carry no event type.
	LastUpdateID int64 `json:"lastUpdateId"`
}

type depthUpdate struct {
	Event         string               `json:"e"`
	Time          int64                `json:"E"`
	FirstUpdateID int64                `json:"U"`
	LastUpdateID  int64                `json:"u"`
	Bids          [][2]decimal.Decimal `json:"b"`
	Asks          [][2]decimal.Decimal `json:"a"`
}

type partialDepth struct {
	LastUpdateID int64                `json:"lastUpdateId"`
	Bids         [][2]decimal.Decimal `json:"bids"`
	Asks         [][2]decimal.Decimal `json:"asks"`
}

// Parser converts trade, depthUpdate and partial depth frames, raw or
// wrapped in a combined stream envelope.
type Parser struct {
	now func() quant.MicroSec
}

func NewParser() *Parser { return &Parser{now: quant.Now} }

func (p *Parser) Parse(text string) (domain.ParsedMessage, error) {
	data := []byte(text)
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.ParsedMessage{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if env.Stream != "" {
		data = env.Data
		env = envelope{}
		if err := json.Unmarshal(data, &env); err != nil {
			return domain.ParsedMessage{}, fmt.Errorf("%w: stream data: %v", domain.ErrMalformedMessage, err)
		}
	}

	switch {
	case env.Event == "trade":
		t, err := parseTrade(data)
		if err != nil {
			return domain.ParsedMessage{}, err
		}
		return domain.ParsedMessage{Trades: []domain.Trade{t}}, nil

	case env.Event == "depthUpdate":
		var d depthUpdate
		if err := json.Unmarshal(data, &d); err != nil {
			return domain.ParsedMessage{}, fmt.Errorf("%w: depth: %v", domain.ErrMalformedMessage, err)
		}
		return domain.ParsedMessage{Board: &domain.BoardTransfer{
			LastUpdateTime: quant.FromMillis(d.Time),
			FirstUpdateID:  d.FirstUpdateID,
			LastUpdateID:   d.LastUpdateID,
			Bids:           levels(d.Bids),
			Asks:           levels(d.Asks),
		}}, nil

	case env.Event == "" && env.LastUpdateID > 0:
		var d partialDepth
		if err := json.Unmarshal(data, &d); err != nil {
			return domain.ParsedMessage{}, fmt.Errorf("%w: partial depth: %v", domain.ErrMalformedMessage, err)
		}
		return domain.ParsedMessage{Board: &domain.BoardTransfer{
			LastUpdateTime: p.now(),
			FirstUpdateID:  d.LastUpdateID,
			LastUpdateID:   d.LastUpdateID,
			Bids:           levels(d.Bids),
			Asks:           levels(d.Asks),
			Snapshot:       true,
		}}, nil
	}
	return domain.ParsedMessage{}, nil
}

func parseTrade(data []byte) (domain.Trade, error) {
	var ev gbinance.WsTradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.Trade{}, fmt.Errorf("%w: trade: %v", domain.ErrMalformedMessage, err)
	}
	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("%w: trade price: %v", domain.ErrMalformedMessage, err)
	}
	size, err := decimal.NewFromString(ev.Quantity)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("%w: trade size: %v", domain.ErrMalformedMessage, err)
	}

	// The buyer is the maker when the seller took liquidity.
	side := domain.SideBuy
	if ev.IsBuyerMaker {
		side = domain.SideSell
	}
	return domain.Trade{
		Time:  quant.FromMillis(ev.TradeTime),
		Side:  side,
		Price: price,
		Size:  size,
		ID:    strconv.FormatInt(ev.TradeID, 10),
	}, nil
}

func levels(raw [][2]decimal.Decimal) []domain.BoardItem {
	out := make([]domain.BoardItem, len(raw))
	for i, l := range raw {
		out[i] = domain.BoardItem{Price: l[0], Size: l[1]}
	}
	return out
}
