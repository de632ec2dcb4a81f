package bybit

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"rbot_go/internal/domain"
	"rbot_go/pkg/quant"
)

func TestParser_Trades(t *testing.T) {
	text := `{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1672304486868,"data":[
		{"T":1672304486865,"s":"BTCUSDT","S":"Buy","v":"0.001","p":"16578.50","L":"PlusTick","i":"20f43950-d8dd-5b31-9112-a178eb6023af","BT":false},
		{"T":1672304486866,"s":"BTCUSDT","S":"Sell","v":"0.25","p":"16578.00","L":"MinusTick","i":"20f43950-d8dd-5b31-9112-a178eb6023b0","BT":false}]}`

	msg, err := NewParser().Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if msg.Board != nil || len(msg.Trades) != 2 {
		t.Fatalf("Parse() = %+v", msg)
	}

	tr := msg.Trades[0]
	if tr.Side != domain.SideBuy || !tr.Price.Equal(decimal.RequireFromString("16578.5")) {
		t.Errorf("trade = %+v", tr)
	}
	if tr.Time != quant.FromMillis(1672304486865) || tr.ID != "20f43950-d8dd-5b31-9112-a178eb6023af" {
		t.Errorf("trade time/id = %d %s", tr.Time, tr.ID)
	}
	if msg.Trades[1].Side != domain.SideSell {
		t.Errorf("second side = %s", msg.Trades[1].Side)
	}
}

func TestParser_Orderbook(t *testing.T) {
	snapshot := `{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1672304484978,"data":{
		"s":"BTCUSDT","b":[["16493.50","0.006"],["16493.00","0.100"]],"a":[["16611.00","0.029"]],"u":18521288,"seq":7961638724}}`
	delta := `{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1687940967466,"data":{
		"s":"BTCUSDT","b":[["16493.50","0"]],"a":[],"u":18521289,"seq":7961638725},"cts":1687940967464}`

	p := NewParser()
	msg, err := p.Parse(snapshot)
	if err != nil {
		t.Fatalf("Parse(snapshot) error = %v", err)
	}
	b := msg.Board
	if b == nil || !b.Snapshot || len(b.Bids) != 2 || len(b.Asks) != 1 {
		t.Fatalf("snapshot board = %+v", b)
	}
	if b.LastUpdateID != 18521288 || b.LastUpdateTime != quant.FromMillis(1672304484978) {
		t.Errorf("snapshot ids = %d %d", b.LastUpdateID, b.LastUpdateTime)
	}

	msg, err = p.Parse(delta)
	if err != nil {
		t.Fatalf("Parse(delta) error = %v", err)
	}
	b = msg.Board
	if b == nil || b.Snapshot || b.FirstUpdateID != 18521289 || b.LastUpdateID != 18521289 {
		t.Fatalf("delta board = %+v", b)
	}
	if !b.Bids[0].Size.IsZero() {
		t.Errorf("delete level size = %s", b.Bids[0].Size)
	}
}

func TestParser_IgnoresOtherTopics(t *testing.T) {
	msg, err := NewParser().Parse(`{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1,"data":{"symbol":"BTCUSDT"}}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !msg.Empty() {
		t.Errorf("Parse() = %+v, want empty", msg)
	}
}

func TestParser_Malformed(t *testing.T) {
	tests := []string{
		`not json`,
		`{"topic":"publicTrade.BTCUSDT","data":{"oops":1}}`,
		`{"topic":"publicTrade.BTCUSDT","data":[{"S":"Hold","p":"1","v":"1","i":"x","T":1}]}`,
		`{"topic":"orderbook.1.BTCUSDT","data":{"b":[["x","1"]]}}`,
	}
	for _, text := range tests {
		if _, err := NewParser().Parse(text); !errors.Is(err, domain.ErrMalformedMessage) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformedMessage", text, err)
		}
	}
}
