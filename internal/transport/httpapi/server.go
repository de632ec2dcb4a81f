// Package httpapi serves read-only views of the running sessions: book
// snapshots, session counters, dry market orders and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"rbot_go/internal/book"
	"rbot_go/internal/domain"
	"rbot_go/internal/engine"
	"rbot_go/internal/execution"
	"rbot_go/pkg/quant"
)

const defaultDepth = 20

// Server exposes the query surface. Sessions must not change after New.
type Server struct {
	addr     string
	books    *book.Registry
	sessions map[string]*engine.Session
	metrics  http.Handler
	logger   *slog.Logger
	server   *http.Server
}

func New(addr string, books *book.Registry, sessions map[string]*engine.Session, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     addr,
		books:    books,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger.With("module", "httpapi"),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Routes builds the router; exported for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Get("/books", s.handleBooks)
	r.Get("/books/{exchange}/{category}/{symbol}", s.handleBook)
	r.Get("/books/{exchange}/{category}/{symbol}/dry", s.handleDryMarketOrder)
	r.Get("/sessions/{exchange}/{category}/{symbol}", s.handleSession)
	return r
}

// Start blocks serving until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func marketKey(r *http.Request) string {
	return book.Key(chi.URLParam(r, "exchange"), chi.URLParam(r, "category"), chi.URLParam(r, "symbol"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "markets": len(s.books.Keys())})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"markets": s.books.Keys()})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	ob, ok := s.books.Get(marketKey(r))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}

	depth := defaultDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "depth must be a non-negative integer")
			return
		}
		depth = n
	}
	writeJSON(w, http.StatusOK, ob.SnapshotDepth(depth))
}

// handleDryMarketOrder sweeps the book without touching it:
// /books/{market}/dry?side=BUY&size=0.5
func (s *Server) handleDryMarketOrder(w http.ResponseWriter, r *http.Request) {
	ob, ok := s.books.Get(marketKey(r))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}

	side := domain.Side(r.URL.Query().Get("side"))
	size, err := decimal.NewFromString(r.URL.Query().Get("size"))
	if !side.Valid() || err != nil {
		writeError(w, http.StatusBadRequest, "side must be BUY or SELL and size a decimal")
		return
	}

	orders, err := ob.DryMarketOrder("dry", side, size, quant.Now())
	switch {
	case errors.Is(err, domain.ErrBoardEmpty):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filled, quote := decimal.Zero, decimal.Zero
	for _, o := range orders {
		filled = filled.Add(o.ExecuteSize)
		quote = quote.Add(o.QuoteVolume)
	}
	resp := map[string]any{"orders": orders, "filled": filled, "quote": quote}
	if filled.IsPositive() {
		resp["average_price"] = quote.Div(filled)
	}
	writeJSON(w, http.StatusOK, resp)
}

type sessionView struct {
	engine.Stats
	Wallet *execution.Wallet `json:"wallet,omitempty"`
	Buys   []domain.Order    `json:"buys,omitempty"`
	Sells  []domain.Order    `json:"sells,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions[marketKey(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}

	view := sessionView{Stats: sess.Stats()}
	if sim := sess.Simulator(); sim != nil {
		wallet := sim.Wallet()
		view.Wallet = &wallet
		view.Buys = sim.OpenOrders(domain.SideBuy)
		view.Sells = sim.OpenOrders(domain.SideSell)
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
