package bitget

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

type pushMessage struct {
	Action string          `json:"action"` // snapshot, update
	Arg    subscribeArg    `json:"arg"`
	Data   json.RawMessage `json:"data"`
	Ts     int64           `json:"ts"`
}

type wsTrade struct {
	Ts      string          `json:"ts"`
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
	Side    string          `json:"side"`
	TradeID string          `json:"tradeId"`
}

type wsBook struct {
	Asks     [][2]decimal.Decimal `json:"asks"`
	Bids     [][2]decimal.Decimal `json:"bids"`
	Checksum int64                `json:"checksum"`
	Ts       string               `json:"ts"`
	Seq      int64                `json:"seq"`
}

// Parser converts trade and books* pushes. The first trade push replays
// recent trades; the session drops the repeats by id.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Parse(text string) (domain.ParsedMessage, error) {
	var msg pushMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return domain.ParsedMessage{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	switch {
	case msg.Arg.Channel == "trade":
		trades, err := parseTrades(msg.Data)
		if err != nil {
			return domain.ParsedMessage{}, err
		}
		return domain.ParsedMessage{Trades: trades}, nil
	case strings.HasPrefix(msg.Arg.Channel, "books"):
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
		ms, err := strconv.ParseInt(r.Ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: trade ts %q", domain.ErrMalformedMessage, r.Ts)
		}
		var side domain.Side
		switch r.Side {
		case "buy":
			side = domain.SideBuy
		case "sell":
			side = domain.SideSell
		default:
			return nil, fmt.Errorf("%w: trade side %q", domain.ErrMalformedMessage, r.Side)
		}
		trades = append(trades, domain.Trade{
			Time:  quant.FromMillis(ms),
			Side:  side,
			Price: r.Price,
			Size:  r.Size,
			ID:    r.TradeID,
		})
	}
	return trades, nil
}

// parseBoard maps one books push. Only the last update id is carried since
// seq is not guaranteed to step by one; stale pushes are still dropped.
func parseBoard(msg pushMessage) (*domain.BoardTransfer, error) {
	var raw []wsBook
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		return nil, fmt.Errorf("%w: books data: %v", domain.ErrMalformedMessage, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty books data", domain.ErrMalformedMessage)
	}
	b := raw[0]
	ts := msg.Ts
	if b.Ts != "" {
		if ms, err := strconv.ParseInt(b.Ts, 10, 64); err == nil {
			ts = ms
		}
	}
	return &domain.BoardTransfer{
		LastUpdateTime: quant.FromMillis(ts),
		LastUpdateID:   b.Seq,
		Bids:           levels(b.Bids),
		Asks:           levels(b.Asks),
		Snapshot:       msg.Action == "snapshot",
	}, nil
}

func levels(raw [][2]decimal.Decimal) []domain.BoardItem {
	out := make([]domain.BoardItem, len(raw))
	for i, l := range raw {
		out[i] = domain.BoardItem{Price: l[0], Size: l[1]}
	}
	return out
}
