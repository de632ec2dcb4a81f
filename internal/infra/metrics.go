package infra

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors on a private registry so tests and
// multiple sessions never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed *prometheus.CounterVec
	eventLatency    prometheus.Histogram
	errorsTotal     *prometheus.CounterVec

	messagesEmitted   *prometheus.CounterVec
	handovers         *prometheus.CounterVec
	reconnects        *prometheus.CounterVec
	duplicatesSkipped *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec

	boardUpdates   *prometheus.CounterVec
	tradesDeduped  *prometheus.CounterVec
	ordersFilled   *prometheus.CounterVec
	tradesArchived *prometheus.CounterVec
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_events_processed_total",
			Help: "Events handled by the session loop.",
		}, []string{"market", "type"}),
		eventLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rbot_event_latency_seconds",
			Help:    "Time from frame receipt to the end of event processing.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_errors_total",
			Help: "Errors by kind.",
		}, []string{"market", "kind"}),
		messagesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_ws_messages_total",
			Help: "Application messages delivered by the stream client.",
		}, []string{"market"}),
		handovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_ws_handovers_total",
			Help: "Connection handovers, split by forced cutover.",
		}, []string{"market", "forced"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_ws_reconnects_total",
			Help: "Reactive reconnects after a connection failure.",
		}, []string{"market"}),
		duplicatesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_ws_duplicates_skipped_total",
			Help: "Frames dropped because they were already delivered.",
		}, []string{"market"}),
		activeConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rbot_ws_active_connections",
			Help: "Open sockets, including a handover standby.",
		}, []string{"market"}),
		boardUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_board_updates_total",
			Help: "Order book updates by apply result.",
		}, []string{"market", "result"}),
		tradesDeduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_trades_deduplicated_total",
			Help: "Trades dropped by id deduplication.",
		}, []string{"market"}),
		ordersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_orders_filled_total",
			Help: "Simulated order fills.",
		}, []string{"market"}),
		tradesArchived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rbot_trades_archived_total",
			Help: "Trades written to the archive.",
		}, []string{"market"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsProcessed, m.eventLatency, m.errorsTotal,
		m.messagesEmitted, m.handovers, m.reconnects, m.duplicatesSkipped, m.activeConnections,
		m.boardUpdates, m.tradesDeduped, m.ordersFilled, m.tradesArchived,
	)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(market, typ string, latency time.Duration) {
	m.eventsProcessed.WithLabelValues(market, typ).Inc()
	m.eventLatency.Observe(latency.Seconds())
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(market, kind string) {
	m.errorsTotal.WithLabelValues(market, kind).Inc()
}

func (m *Metrics) RecordBoardUpdate(market, result string) {
	m.boardUpdates.WithLabelValues(market, result).Inc()
}

func (m *Metrics) RecordDuplicateTrades(market string, n int) {
	m.tradesDeduped.WithLabelValues(market).Add(float64(n))
}

// RecordOrdersFilled records simulated fills.
func (m *Metrics) RecordOrdersFilled(market string, n int) {
	m.ordersFilled.WithLabelValues(market).Add(float64(n))
}

func (m *Metrics) RecordArchived(market string, n int64) {
	m.tradesArchived.WithLabelValues(market).Add(float64(n))
}

// Stream returns the connection observer for one market.
func (m *Metrics) Stream(market string) *StreamMetrics {
	return &StreamMetrics{m: m, market: market}
}

// StreamMetrics reports stream client lifecycle events for a market.
type StreamMetrics struct {
	m      *Metrics
	market string
}

func (s *StreamMetrics) MessageEmitted() {
	s.m.messagesEmitted.WithLabelValues(s.market).Inc()
}

func (s *StreamMetrics) ConnectionOpened() {
	s.m.activeConnections.WithLabelValues(s.market).Inc()
}

func (s *StreamMetrics) ConnectionClosed() {
	s.m.activeConnections.WithLabelValues(s.market).Dec()
}

func (s *StreamMetrics) Handover(forced bool) {
	s.m.handovers.WithLabelValues(s.market, strconv.FormatBool(forced)).Inc()
}

func (s *StreamMetrics) Reconnect() {
	s.m.reconnects.WithLabelValues(s.market).Inc()
}

func (s *StreamMetrics) DuplicatesSkipped(n int) {
	s.m.duplicatesSkipped.WithLabelValues(s.market).Add(float64(n))
}
