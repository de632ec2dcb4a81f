package infra

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordEvent(t *testing.T) {
	m := NewMetrics()

	m.RecordEvent("bybit/spot/BTCUSDT", "trade", time.Millisecond)
	m.RecordEvent("bybit/spot/BTCUSDT", "trade", 2*time.Millisecond)
	m.RecordEvent("bybit/spot/BTCUSDT", "board", 3*time.Millisecond)

	if got := testutil.ToFloat64(m.eventsProcessed.WithLabelValues("bybit/spot/BTCUSDT", "trade")); got != 2 {
		t.Errorf("trade events = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.eventLatency); got != 1 {
		t.Errorf("latency collectors = %d, want 1", got)
	}
}

func TestStreamMetrics(t *testing.T) {
	m := NewMetrics()
	s := m.Stream("binance/spot/btcusdt")

	s.ConnectionOpened()
	s.ConnectionOpened()
	s.ConnectionClosed()
	s.Handover(false)
	s.Handover(true)
	s.Handover(true)
	s.Reconnect()
	s.DuplicatesSkipped(7)
	s.MessageEmitted()

	label := "binance/spot/btcusdt"
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"connections", testutil.ToFloat64(m.activeConnections.WithLabelValues(label)), 1},
		{"scheduled handovers", testutil.ToFloat64(m.handovers.WithLabelValues(label, "false")), 1},
		{"forced handovers", testutil.ToFloat64(m.handovers.WithLabelValues(label, "true")), 2},
		{"reconnects", testutil.ToFloat64(m.reconnects.WithLabelValues(label)), 1},
		{"duplicates", testutil.ToFloat64(m.duplicatesSkipped.WithLabelValues(label)), 7},
		{"messages", testutil.ToFloat64(m.messagesEmitted.WithLabelValues(label)), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestMetrics_Isolated(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordOrdersFilled("m", 3)

	if got := testutil.ToFloat64(b.ordersFilled.WithLabelValues("m")); got != 0 {
		t.Errorf("second registry saw %v fills", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordBoardUpdate("bybit/linear/BTCUSDT", "gap")
	m.RecordError("bybit/linear/BTCUSDT", "parse")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"rbot_board_updates_total", `result="gap"`, "rbot_errors_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
