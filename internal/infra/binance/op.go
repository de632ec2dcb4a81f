// Package binance adapts the Binance spot public stream. Depth diffs carry
// no snapshot, so DepthSource seeds the book over REST.
package binance

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
)

// TradeTopic returns the stream name for raw trades.
func TradeTopic(symbol string) string {
	return strings.ToLower(symbol) + "@trade"
}

// DepthTopic returns the 100ms diff depth stream.
func DepthTopic(symbol string) string {
	return strings.ToLower(symbol) + "@depth@100ms"
}

func DefaultTopics(symbol string) []string {
	return []string{TradeTopic(symbol), DepthTopic(symbol)}
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Op renders SUBSCRIBE requests. Binance answers protocol pings itself, so
// there is no text ping.
type Op struct {
	seq    atomic.Int64
	logger *slog.Logger
}

func NewOp() *Op {
	return &Op{logger: slog.Default().With("module", "binance")}
}

func (o *Op) Frames(topics []string) []string {
	if len(topics) == 0 {
		return nil
	}
	b, _ := json.Marshal(subscribeMessage{
		Method: "SUBSCRIBE",
		Params: topics,
		ID:     o.seq.Add(1),
	})
	return []string{string(b)}
}

func (o *Op) PingFrame() string { return "" }

type responseMessage struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// IsControl reports request responses such as {"result":null,"id":1}.
func (o *Op) IsControl(text string) bool {
	if !strings.Contains(text, `"id"`) {
		return false
	}
	var m responseMessage
	if err := json.Unmarshal([]byte(text), &m); err != nil || m.ID == nil {
		return false
	}
	if m.Error != nil {
		o.logger.Warn("Request rejected", "id", *m.ID, "code", m.Error.Code, "msg", m.Error.Msg)
	}
	return true
}
