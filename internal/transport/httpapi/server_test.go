package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"rbot_go/internal/book"
	"rbot_go/internal/domain"
	"rbot_go/internal/engine"
	"rbot_go/internal/execution"
	"rbot_go/internal/infra"
)

const market = "bybit/spot/BTCUSDT"

func lv(price, size string) domain.BoardItem {
	return domain.BoardItem{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := book.NewRegistry()
	ob := reg.Register(market, 50)
	ob.Update(
		[]domain.BoardItem{lv("100", "1"), lv("99", "2"), lv("98", "3")},
		[]domain.BoardItem{lv("101", "1"), lv("102", "2")},
		false,
	)
	reg.Register("binance/spot/ethusdt", 50)

	sim := execution.NewSimulator("BTCUSDT", execution.Wallet{
		Home: execution.Balance{Free: decimal.NewFromInt(1000)},
	})
	sess := engine.NewSession(engine.SessionConfig{Market: market}, ob, engine.WithSimulator(sim))
	if _, err := sess.PlaceLimit(domain.SideBuy, decimal.NewFromInt(90), decimal.NewFromInt(1)); err != nil {
		t.Fatal(err)
	}

	metrics := infra.NewMetrics()
	metrics.RecordBoardUpdate(market, "applied")

	s := New(":0", reg, map[string]*engine.Session{market: sess}, metrics.Handler(), nil)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestHealthAndBooks(t *testing.T) {
	srv := newTestServer(t)

	var health map[string]any
	getJSON(t, srv.URL+"/healthz", http.StatusOK, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	var books struct{ Markets []string }
	getJSON(t, srv.URL+"/books", http.StatusOK, &books)
	if len(books.Markets) != 2 || books.Markets[0] != "binance/spot/ethusdt" {
		t.Errorf("markets = %v", books.Markets)
	}
}

func TestBookSnapshot(t *testing.T) {
	srv := newTestServer(t)

	var snap book.Snapshot
	getJSON(t, srv.URL+"/books/bybit/spot/BTCUSDT?depth=2", http.StatusOK, &snap)
	if snap.Market != market || len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.Bids[0].Price.Equal(decimal.NewFromInt(100)) || !snap.Asks[0].Price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("best levels = %s / %s", snap.Bids[0].Price, snap.Asks[0].Price)
	}

	getJSON(t, srv.URL+"/books/bybit/spot/BTCUSDT?depth=x", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/books/bybit/spot/NOPE", http.StatusNotFound, nil)
}

func TestDryMarketOrder(t *testing.T) {
	srv := newTestServer(t)

	var resp struct {
		Orders       []domain.Order
		Filled       decimal.Decimal
		Quote        decimal.Decimal
		AveragePrice decimal.Decimal `json:"average_price"`
	}
	getJSON(t, srv.URL+"/books/bybit/spot/BTCUSDT/dry?side=BUY&size=2", http.StatusOK, &resp)
	if len(resp.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(resp.Orders))
	}
	// 1@101 + 1@102
	if !resp.Filled.Equal(decimal.NewFromInt(2)) || !resp.Quote.Equal(decimal.NewFromInt(203)) {
		t.Errorf("filled/quote = %s/%s", resp.Filled, resp.Quote)
	}
	if !resp.AveragePrice.Equal(decimal.RequireFromString("101.5")) {
		t.Errorf("average = %s", resp.AveragePrice)
	}

	getJSON(t, srv.URL+"/books/bybit/spot/BTCUSDT/dry?side=HOLD&size=1", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/books/binance/spot/ethusdt/dry?side=SELL&size=1", http.StatusConflict, nil)
}

func TestSessionView(t *testing.T) {
	srv := newTestServer(t)

	var view struct {
		Market string
		Wallet execution.Wallet
		Buys   []domain.Order
	}
	getJSON(t, srv.URL+"/sessions/bybit/spot/BTCUSDT", http.StatusOK, &view)
	if view.Market != market || len(view.Buys) != 1 {
		t.Errorf("view = %+v", view)
	}
	if !view.Wallet.Home.Locked.Equal(decimal.NewFromInt(90)) {
		t.Errorf("locked = %s", view.Wallet.Home.Locked)
	}
	getJSON(t, srv.URL+"/sessions/binance/spot/ethusdt", http.StatusNotFound, nil)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
