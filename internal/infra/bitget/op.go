// Package bitget adapts the Bitget v2 public stream. Topics are written as
// "<channel>.<instId>", e.g. "trade.BTCUSDT"; the instrument type comes from
// the market category.
package bitget

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Snapshot-only book channels by depth; "books" is the full incremental one.
var bookChannels = []struct {
	depth   int
	channel string
}{{1, "books1"}, {5, "books5"}, {15, "books15"}}

// InstType maps a market category to the Bitget instrument type.
func InstType(category string) string {
	switch category {
	case "linear":
		return "USDT-FUTURES"
	case "inverse":
		return "COIN-FUTURES"
	default:
		return "SPOT"
	}
}

func TradeTopic(symbol string) string {
	return "trade." + symbol
}

// BookTopic picks the smallest snapshot channel covering depth, falling
// back to the incremental full book.
func BookTopic(depth int, symbol string) string {
	for _, c := range bookChannels {
		if depth > 0 && depth <= c.depth {
			return c.channel + "." + symbol
		}
	}
	return "books." + symbol
}

func DefaultTopics(symbol string, depth int) []string {
	return []string{TradeTopic(symbol), BookTopic(depth, symbol)}
}

type subscribeRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

// Op renders subscribe and ping frames for one instrument type.
type Op struct {
	instType string
	logger   *slog.Logger
}

func NewOp(category string) *Op {
	return &Op{
		instType: InstType(category),
		logger:   slog.Default().With("module", "bitget"),
	}
}

// Frames batches every topic into a single subscribe request.
// Topics without a "." separator are skipped.
func (o *Op) Frames(topics []string) []string {
	req := subscribeRequest{Op: "subscribe"}
	for _, t := range topics {
		channel, inst, ok := strings.Cut(t, ".")
		if !ok {
			o.logger.Warn("Skipping malformed topic", "topic", t)
			continue
		}
		req.Args = append(req.Args, subscribeArg{InstType: o.instType, Channel: channel, InstID: inst})
	}
	if len(req.Args) == 0 {
		return nil
	}
	b, _ := json.Marshal(req)
	return []string{string(b)}
}

// PingFrame is the plain text keep-alive; the server answers "pong".
func (o *Op) PingFrame() string { return "ping" }

type eventMessage struct {
	Event string `json:"event"`
	Code  any    `json:"code"`
	Msg   string `json:"msg"`
}

// IsControl filters pongs and event responses. Errors are logged.
func (o *Op) IsControl(text string) bool {
	if text == "pong" {
		return true
	}
	var m eventMessage
	if err := json.Unmarshal([]byte(text), &m); err != nil || m.Event == "" {
		return false
	}
	if m.Event == "error" {
		o.logger.Warn("Request rejected", "code", fmt.Sprint(m.Code), "msg", m.Msg)
	}
	return true
}
