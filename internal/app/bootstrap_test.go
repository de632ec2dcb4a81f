package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rbot_go/internal/infra"
)

const (
	bookFrame = `{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1672304484978,"data":{
		"s":"BTCUSDT","b":[["16493.50","0.006"],["16493.00","0.100"]],"a":[["16611.00","0.029"]],"u":18521288,"seq":7961638724}}`
	tradeFrame = `{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1672304486868,"data":[
		{"T":1672304486865,"s":"BTCUSDT","S":"Buy","v":"0.001","p":"16578.50","L":"PlusTick","i":"t-1","BT":false}]}`
)

// newBybitServer answers every subscribe frame, then replays one book
// snapshot and the same trade twice.
func newBybitServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sent := false
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if !strings.Contains(string(data), `"subscribe"`) {
				continue
			}
			ack := `{"success":true,"ret_msg":"","conn_id":"c1","op":"subscribe"}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
				return
			}
			if sent {
				continue
			}
			sent = true
			for _, f := range []string{bookFrame, tradeFrame, tradeFrame} {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(t *testing.T, wsURL string) *infra.Config {
	t.Helper()
	yml := fmt.Sprintf(`
app:
  name: rbot-test
logging:
  level: debug
  dir: %s
storage:
  db_root: %s
markets:
  - exchange: bybit
    symbol: BTCUSDT
    ws_url: %s
    board_depth: 50
    archive: true
    dry_run: true
    wallet:
      home: "10000"
`, t.TempDir(), t.TempDir(), wsURL)

	cfg, err := infra.ParseConfig([]byte(yml))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	return cfg
}

func TestBootstrap_Run(t *testing.T) {
	cfg := testConfig(t, newBybitServer(t))

	b := NewBootstrap(cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer b.Close()

	key := cfg.Markets[0].Key()
	ob, ok := b.Books.Get(key)
	if !ok {
		t.Fatalf("book %s not registered", key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		bids, asks := ob.Depth()
		n, err := b.Archive.CountTrades(context.Background(), key)
		if err != nil {
			t.Fatalf("CountTrades() error = %v", err)
		}
		if bids == 2 && asks == 1 && n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("depth = %d/%d, archived = %d", bids, asks, n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	stats := b.markets[0].session.Stats()
	if stats.Trades != 1 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v, want 1 trade and 1 duplicate", stats)
	}
}

func TestBootstrap_ConnectFailure(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1/none")
	cfg.Retry.MaxTries = 1

	b := NewBootstrap(cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer b.Close()

	if err := b.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when the market cannot connect")
	}
}

func TestBootstrap_KafkaPublisher(t *testing.T) {
	cfg := testConfig(t, "ws://127.0.0.1:1/none")
	cfg.Markets[0].Publish = true
	cfg.Publish.KafkaBrokers = []string{"127.0.0.1:1"}

	b := NewBootstrap(cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if len(b.publisher) != 1 || len(b.closers) != 1 {
		t.Errorf("publishers = %d, closers = %d", len(b.publisher), len(b.closers))
	}
	b.Close()
	if len(b.closers) != 0 {
		t.Error("Close() should release publishers")
	}
}

func TestBootstrap_InitializeWithoutConfig(t *testing.T) {
	if err := NewBootstrap(nil).Initialize(); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewAdapter(t *testing.T) {
	bybitMarket := &infra.Market{Exchange: "bybit", Category: "spot", Symbol: "BTCUSDT", BoardDepth: 50}
	ad, err := newAdapter(bybitMarket)
	if err != nil {
		t.Fatal(err)
	}
	if len(ad.topics) != 2 || ad.source != nil {
		t.Errorf("bybit adapter = %+v", ad)
	}

	binanceMarket := &infra.Market{Exchange: "binance", Category: "spot", Symbol: "BTCUSDT", RESTURL: "https://api.binance.com"}
	ad, err = newAdapter(binanceMarket)
	if err != nil {
		t.Fatal(err)
	}
	if ad.source == nil {
		t.Error("binance adapter with rest_url should seed from a snapshot")
	}

	binanceMarket.Topics = []string{"btcusdt@trade"}
	if ad, _ = newAdapter(binanceMarket); len(ad.topics) != 1 || ad.topics[0] != "btcusdt@trade" {
		t.Errorf("topics = %v, want configured override", ad.topics)
	}

	ad, err = newAdapter(&infra.Market{Exchange: "bitget", Category: "linear", Symbol: "BTCUSDT", BoardDepth: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(ad.topics) != 2 || ad.topics[1] != "books5.BTCUSDT" {
		t.Errorf("bitget topics = %v", ad.topics)
	}

	if _, err := newAdapter(&infra.Market{Exchange: "kraken"}); err == nil {
		t.Error("unsupported exchange should fail")
	}
}
