package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rbot_go/internal/book"
	"rbot_go/internal/domain"
	"rbot_go/internal/engine"
	"rbot_go/internal/execution"
	"rbot_go/internal/infra"
	"rbot_go/internal/infra/binance"
	"rbot_go/internal/infra/bitget"
	"rbot_go/internal/infra/bybit"
	"rbot_go/internal/infra/publish"
	"rbot_go/internal/infra/storage"
	"rbot_go/internal/infra/ws"
	"rbot_go/internal/strategy"
	"rbot_go/internal/transport/httpapi"
)

const shutdownTimeout = 5 * time.Second

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Logger  *slog.Logger
	Metrics *infra.Metrics
	Books   *book.Registry
	Archive *storage.Archive

	publisher publish.Multi
	closers   []io.Closer
	markets   []*marketRuntime
	server    *httpapi.Server
}

// marketRuntime is the stream, session and pump of one configured market.
type marketRuntime struct {
	key     string
	client  *ws.AutoClient
	session *engine.Session
	pump    *engine.Pump
}

// adapter is the exchange specific part of a market pipeline.
type adapter struct {
	op     ws.SubscribeOp
	parser domain.MessageParser
	topics []string
	source domain.BoardSource
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(cfg *infra.Config) *Bootstrap {
	return &Bootstrap{Config: cfg}
}

// Initialize builds the logger, metrics, archive, publishers and every
// market pipeline. Market streams connect in Run.
func (b *Bootstrap) Initialize() error {
	cfg := b.Config
	if cfg == nil {
		return &domain.ConfigError{Field: "config", Err: errors.New("not loaded")}
	}

	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Logger.Info("Bootstrapping", "version", cfg.App.Version, "markets", len(cfg.Markets))

	b.Metrics = infra.NewMetrics()
	b.Books = book.NewRegistry()

	for _, m := range cfg.Markets {
		if !m.Archive || b.Archive != nil {
			continue
		}
		archive, err := storage.NewArchive(cfg.Storage.DBRoot)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		b.Archive = archive
		b.Logger.Info("Trade archive ready", "path", filepath.Join(cfg.Storage.DBRoot, storage.DBFile))
	}

	if cfg.Publishing() {
		if err := b.openPublishers(); err != nil {
			b.Close()
			return err
		}
	}

	for i := range cfg.Markets {
		rt, err := b.buildMarket(&cfg.Markets[i])
		if err != nil {
			b.Close()
			return err
		}
		b.markets = append(b.markets, rt)
	}

	if cfg.HTTP.Listen != "" {
		sessions := make(map[string]*engine.Session, len(b.markets))
		for _, rt := range b.markets {
			sessions[rt.key] = rt.session
		}
		b.server = httpapi.New(cfg.HTTP.Listen, b.Books, sessions, b.Metrics.Handler(), b.Logger)
	}
	return nil
}

func (b *Bootstrap) openPublishers() error {
	cfg := b.Config
	if cfg.Publish.RedisURL != "" {
		p, err := publish.NewRedisPublisher(context.Background(), cfg.Publish.RedisURL, cfg.BookTTL(), cfg.BookInterval())
		if err != nil {
			return fmt.Errorf("open redis publisher: %w", err)
		}
		b.publisher = append(b.publisher, p)
		b.closers = append(b.closers, p)
		b.Logger.Info("Redis publisher ready")
	}
	if len(cfg.Publish.KafkaBrokers) > 0 {
		p := publish.NewKafkaPublisher(cfg.Publish.KafkaBrokers, cfg.Publish.KafkaTopic)
		b.publisher = append(b.publisher, p)
		b.closers = append(b.closers, p)
		b.Logger.Info("Kafka publisher ready", "brokers", cfg.Publish.KafkaBrokers, "topic", cfg.Publish.KafkaTopic)
	}
	return nil
}

func (b *Bootstrap) buildMarket(m *infra.Market) (*marketRuntime, error) {
	key := m.Key()
	ad, err := newAdapter(m)
	if err != nil {
		return nil, err
	}

	initial, maxInterval := b.Config.RetryInterval()
	wsCfg := ws.Config{
		URL:             m.WSURL,
		PingInterval:    m.PingInterval(),
		SwitchInterval:  m.SwitchInterval(),
		OverlapRecords:  m.OverlapRecords,
		HandoverTimeout: m.HandoverTimeout(),
		Retry: ws.RetryPolicy{
			InitialInterval: initial,
			MaxInterval:     maxInterval,
			MaxTries:        b.Config.Retry.MaxTries,
			MaxElapsed:      b.Config.RetryMaxElapsed(),
		},
	}
	client := ws.NewAutoClient(wsCfg, ad.op,
		ws.WithDialer(&ws.GorillaDialer{ReadTimeout: m.ReadTimeout()}),
		ws.WithObserver(b.Metrics.Stream(key)),
		ws.WithLogger(b.Logger.With("market", key)),
	)
	if err := client.Subscribe(ad.topics...); err != nil {
		return nil, fmt.Errorf("%s: subscribe: %w", key, err)
	}

	ob := b.Books.Register(key, m.BoardDepth)
	opts := []engine.SessionOption{engine.WithRecorder(b.Metrics)}
	if ad.source != nil {
		opts = append(opts, engine.WithBoardSource(ad.source))
	}
	if m.Archive {
		opts = append(opts, engine.WithArchive(b.Archive))
	}
	if m.Publish && len(b.publisher) > 0 {
		opts = append(opts, engine.WithPublisher(b.publisher, b.Config.Publish.BookDepth))
	}
	if m.DryRun {
		wallet := execution.Wallet{
			Home:    execution.Balance{Free: m.Wallet.Home},
			Foreign: execution.Balance{Free: m.Wallet.Foreign},
		}
		opts = append(opts, engine.WithSimulator(execution.NewSimulator(m.Symbol, wallet)))
	}
	if strat := newStrategy(m); strat != nil {
		opts = append(opts, engine.WithStrategy(strat))
	}

	session := engine.NewSession(engine.SessionConfig{
		Market:      key,
		BookDepth:   m.BoardDepth,
		InboxSize:   b.Config.Engine.InboxSize,
		DedupWindow: b.Config.Engine.DedupWindow,
		DumpPath:    filepath.Join(b.Config.Logging.Dir, "crash_"+strings.ReplaceAll(key, "/", "_")+".json"),
	}, ob, opts...)

	return &marketRuntime{
		key:     key,
		client:  client,
		session: session,
		pump:    engine.NewPump(key, client, ad.parser, session.Inbox(), b.Metrics),
	}, nil
}

// newAdapter picks the op, parser and topics for the market's exchange.
// Configured topics replace the defaults.
func newAdapter(m *infra.Market) (adapter, error) {
	var ad adapter
	switch m.Exchange {
	case "bybit":
		ad = adapter{
			op:     bybit.NewOp(),
			parser: bybit.NewParser(),
			topics: bybit.DefaultTopics(m.Category, m.Symbol, m.BoardDepth),
		}
	case "bitget":
		ad = adapter{
			op:     bitget.NewOp(m.Category),
			parser: bitget.NewParser(),
			topics: bitget.DefaultTopics(m.Symbol, m.BoardDepth),
		}
	case "binance":
		ad = adapter{
			op:     binance.NewOp(),
			parser: binance.NewParser(),
			topics: binance.DefaultTopics(m.Symbol),
		}
		if m.RESTURL != "" {
			ad.source = binance.NewDepthSource(m.RESTURL, m.Symbol, m.BoardDepth)
		}
	default:
		return adapter{}, &domain.ConfigError{Field: "exchange", Err: fmt.Errorf("unsupported exchange: %q", m.Exchange)}
	}
	if len(m.Topics) > 0 {
		ad.topics = m.Topics
	}
	return ad, nil
}

func newStrategy(m *infra.Market) any {
	switch m.Strategy.Name {
	case "sma_cross":
		return strategy.NewSMACross(m.Strategy.Short, m.Strategy.Long, m.Strategy.Size)
	default:
		return nil
	}
}

// Run connects every market and blocks until ctx is done or a market
// stream fails for good. The first such error is returned.
func (b *Bootstrap) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		cancel()
	}

	for _, rt := range b.markets {
		if err := rt.client.Connect(ctx); err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("%s: connect: %w", rt.key, err)
		}
		b.Logger.Info("Market connected", "market", rt.key, "topics", rt.client.Topics())

		wg.Add(2)
		go func(rt *marketRuntime) {
			defer wg.Done()
			if err := rt.session.Run(ctx); err != nil {
				fail(fmt.Errorf("%s: session: %w", rt.key, err))
			}
		}(rt)
		go func(rt *marketRuntime) {
			defer wg.Done()
			if err := rt.pump.Run(ctx); err != nil {
				fail(fmt.Errorf("%s: stream: %w", rt.key, err))
			}
		}(rt)
	}

	if b.server != nil {
		go func() {
			if err := b.server.Start(); err != nil {
				fail(fmt.Errorf("http: %w", err))
			}
		}()
	}

	b.Logger.Info("System fully operational", "markets", len(b.markets))
	<-ctx.Done()
	b.Logger.Info("Shutting down gracefully...")

	if b.server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.Logger.Warn("http shutdown", slog.Any("error", err))
		}
		stop()
	}
	for _, rt := range b.markets {
		rt.client.Close()
	}
	wg.Wait()
	return firstErr
}

// Close releases the clients, publishers and the archive. Safe after Run.
func (b *Bootstrap) Close() {
	for _, rt := range b.markets {
		rt.client.Close()
	}
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			b.Logger.Warn("publisher close", slog.Any("error", err))
		}
	}
	b.closers = nil
	if b.Archive != nil {
		if err := b.Archive.Close(); err != nil {
			b.Logger.Warn("archive close", slog.Any("error", err))
		}
		b.Archive = nil
	}
}
