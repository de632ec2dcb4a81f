package bybit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

type wsMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Ts    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type wsTrade struct {
	ID     string          `json:"i"`
	Time   int64           `json:"T"`
	Symbol string          `json:"s"`
	Price  decimal.Decimal `json:"p"`
	Size   decimal.Decimal `json:"v"`
	Side   string          `json:"S"`
}

type wsOrderbook struct {
	Symbol   string               `json:"s"`
	Bids     [][2]decimal.Decimal `json:"b"`
	Asks     [][2]decimal.Decimal `json:"a"`
	UpdateID int64                `json:"u"`
	Seq      int64                `json:"seq"`
}

// Parser converts publicTrade and orderbook frames. Other topics parse to
// an empty message.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Parse(text string) (domain.ParsedMessage, error) {
	var msg wsMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return domain.ParsedMessage{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	switch {
	case strings.HasPrefix(msg.Topic, "publicTrade."):
		trades, err := parseTrades(msg.Data)
		if err != nil {
			return domain.ParsedMessage{}, err
		}
		return domain.ParsedMessage{Trades: trades}, nil

	case strings.HasPrefix(msg.Topic, "orderbook."):
		board, err := parseBoard(msg)
		if err != nil {
			return domain.ParsedMessage{}, err
		}
		return domain.ParsedMessage{Board: board}, nil
	}
	return domain.ParsedMessage{}, nil
}

func parseTrades(data json.RawMessage) ([]domain.Trade, error) {
	var raw []wsTrade
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: trade data: %v", domain.ErrMalformedMessage, err)
	}

	trades := make([]domain.Trade, 0, len(raw))
	for _, r := range raw {
		side, err := parseSide(r.Side)
		if err != nil {
			return nil, err
		}
		trades = append(trades, domain.Trade{
			Time:  quant.FromMillis(r.Time),
			Side:  side,
			Price: r.Price,
			Size:  r.Size,
			ID:    r.ID,
		})
	}
	return trades, nil
}

func parseBoard(msg wsMessage) (*domain.BoardTransfer, error) {
	var ob wsOrderbook
	if err := json.Unmarshal(msg.Data, &ob); err != nil {
		return nil, fmt.Errorf("%w: orderbook data: %v", domain.ErrMalformedMessage, err)
	}

	// Update ids are consecutive, so a diff covers exactly one id.
	return &domain.BoardTransfer{
		LastUpdateTime: quant.FromMillis(msg.Ts),
		FirstUpdateID:  ob.UpdateID,
		LastUpdateID:   ob.UpdateID,
		Bids:           levels(ob.Bids),
		Asks:           levels(ob.Asks),
		Snapshot:       msg.Type == "snapshot",
	}, nil
}

func levels(raw [][2]decimal.Decimal) []domain.BoardItem {
	out := make([]domain.BoardItem, len(raw))
	for i, l := range raw {
		out[i] = domain.BoardItem{Price: l[0], Size: l[1]}
	}
	return out
}

func parseSide(s string) (domain.Side, error) {
	switch s {
	case "Buy":
		return domain.SideBuy, nil
	case "Sell":
		return domain.SideSell, nil
	}
	return "", fmt.Errorf("%w: unknown side %q", domain.ErrMalformedMessage, s)
}
