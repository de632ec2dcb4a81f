// Package bybit adapts the Bybit v5 public stream to the stream client and
// the normalized trade and board types.
package bybit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
)

// Book depths the public orderbook topic accepts.
var bookDepths = []int{1, 50, 200, 500}

// TradeTopic returns the public trade topic for symbol.
func TradeTopic(symbol string) string {
	return "publicTrade." + symbol
}

// BookTopic returns the orderbook topic with the smallest supported depth
// covering depth, or the deepest one when depth is 0. Spot stops at 200
// levels.
func BookTopic(category string, depth int, symbol string) string {
	chosen := bookDepths[len(bookDepths)-1]
	if category == "spot" {
		chosen = 200
	}
	for _, d := range bookDepths {
		if depth > 0 && depth <= d {
			chosen = min(chosen, d)
			break
		}
	}
	return fmt.Sprintf("orderbook.%d.%s", chosen, symbol)
}

// DefaultTopics subscribes trades and the book for one symbol.
func DefaultTopics(category, symbol string, depth int) []string {
	return []string{TradeTopic(symbol), BookTopic(category, depth, symbol)}
}

type opMessage struct {
	Op    string   `json:"op"`
	Args  []string `json:"args,omitempty"`
	ReqID string   `json:"req_id,omitempty"`
}

// Op renders Bybit subscribe and ping frames.
type Op struct {
	seq    atomic.Int64
	logger *slog.Logger
}

func NewOp() *Op {
	return &Op{logger: slog.Default().With("module", "bybit")}
}

// Frames sends one subscribe per topic so a rejected topic does not take
// the others with it.
func (o *Op) Frames(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		b, _ := json.Marshal(opMessage{
			Op:    "subscribe",
			Args:  []string{t},
			ReqID: strconv.FormatInt(o.seq.Add(1), 10),
		})
		out = append(out, string(b))
	}
	return out
}

func (o *Op) PingFrame() string {
	return `{"op":"ping"}`
}

type controlMessage struct {
	Op      string `json:"op"`
	Topic   string `json:"topic"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
	ReqID   string `json:"req_id"`
}

// IsControl reports op responses (pong, subscribe ack). Rejected requests
// are logged.
func (o *Op) IsControl(text string) bool {
	var m controlMessage
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return false
	}
	if m.Topic != "" || m.Op == "" {
		return false
	}
	if m.Success != nil && !*m.Success {
		o.logger.Warn("Request rejected", "op", m.Op, "req_id", m.ReqID, "msg", m.RetMsg)
	}
	return true
}
