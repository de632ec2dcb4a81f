package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"rbot_go/internal/domain"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateHandover
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateHandover:
		return "handover"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Receive before Connect succeeded.
var ErrNotConnected = errors.New("not connected")

// Observer receives stream lifecycle counts. infra.Metrics implements it.
type Observer interface {
	MessageEmitted()
	ConnectionOpened()
	ConnectionClosed()
	Handover(forced bool)
	Reconnect()
	DuplicatesSkipped(n int)
}

type nopObserver struct{}

func (nopObserver) MessageEmitted()       {}
func (nopObserver) ConnectionOpened()     {}
func (nopObserver) ConnectionClosed()     {}
func (nopObserver) Handover(bool)         {}
func (nopObserver) Reconnect()            {}
func (nopObserver) DuplicatesSkipped(int) {}

// Config holds the per-stream timing.
type Config struct {
	URL string
	// PingInterval between protocol and application pings. Zero disables them.
	PingInterval time.Duration
	// SwitchInterval after which a standby socket replaces the primary.
	// Zero disables scheduled handover.
	SwitchInterval time.Duration
	// OverlapRecords is how many standby frames must be seen before cutover.
	OverlapRecords int
	// HandoverTimeout forces cutover when no boundary is found in time.
	HandoverTimeout time.Duration
	Retry           RetryPolicy
}

const (
	defaultHandoverTimeout = 30 * time.Second
	minBufferRecords       = 256
	boundaryDepth          = 3
	frameQueueSize         = 1024
)

func (c Config) handoverTimeout() time.Duration {
	if c.HandoverTimeout > 0 {
		return c.HandoverTimeout
	}
	return defaultHandoverTimeout
}

func (c Config) bufferRecords() int {
	return max(c.OverlapRecords*8, minBufferRecords)
}

func (c Config) checkInterval() time.Duration {
	d := time.Second
	if c.SwitchInterval > 0 {
		d = min(d, c.SwitchInterval/4)
	}
	d = min(d, c.handoverTimeout()/4)
	return max(d, 5*time.Millisecond)
}

type Option func(*AutoClient)

func WithDialer(d Dialer) Option {
	return func(a *AutoClient) { a.dialer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *AutoClient) { a.logger = l }
}

func WithObserver(o Observer) Option {
	return func(a *AutoClient) {
		if o != nil {
			a.obs = o
		}
	}
}

// WithAuth sends build()'s frame on every new socket before subscribing.
// verify, when set, checks the acknowledgement frame.
func WithAuth(build AuthFunc, verify func(ack string) error) Option {
	return func(a *AutoClient) {
		a.auth = build
		a.verifyAuth = verify
	}
}

func WithURLFunc(f URLFunc) Option {
	return func(a *AutoClient) { a.urlFn = f }
}

// WithControlFilter overrides the filter taken from the SubscribeOp.
func WithControlFilter(f ControlFilter) Option {
	return func(a *AutoClient) { a.filter = f }
}

// AutoClient keeps one logical text stream alive over 0..2 sockets.
// Frames are emitted in order. Across a handover nothing is lost while both
// sockets stay healthy; a forced cutover may repeat at most OverlapRecords
// frames.
type AutoClient struct {
	cfg        Config
	op         SubscribeOp
	filter     ControlFilter
	auth       AuthFunc
	verifyAuth func(string) error
	urlFn      URLFunc
	dialer     Dialer
	logger     *slog.Logger
	obs        Observer

	mu      sync.Mutex
	topics  []string
	live    map[*conn]struct{}
	started bool
	cancel  context.CancelFunc

	state   atomic.Int32
	connSeq atomic.Uint64

	out        chan string
	done       chan struct{}
	doneOnce   sync.Once
	closeOnce  sync.Once
	fatal      error
	fatalTaken atomic.Bool

	wg sync.WaitGroup
}

// NewAutoClient creates a client. op may be nil for streams that need no
// subscribe frames.
func NewAutoClient(cfg Config, op SubscribeOp, opts ...Option) *AutoClient {
	a := &AutoClient{
		cfg:    cfg,
		op:     op,
		dialer: &GorillaDialer{},
		logger: slog.Default().With("module", "ws"),
		obs:    nopObserver{},
		live:   make(map[*conn]struct{}),
		out:    make(chan string),
		done:   make(chan struct{}),
	}
	if f, ok := op.(ControlFilter); ok {
		a.filter = f
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("url", cfg.URL)
	return a
}

func (a *AutoClient) State() State {
	return State(a.state.Load())
}

func (a *AutoClient) setState(s State) {
	for {
		cur := a.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if a.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Topics returns the accumulated subscription topics.
func (a *AutoClient) Topics() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.topics)
}

// Connect opens the primary socket and starts the stream.
// Failures are retriable *domain.NetworkError values. Canceling ctx
// stops the stream.
func (a *AutoClient) Connect(ctx context.Context) error {
	if a.State() == StateClosed {
		return domain.ErrClientClosed
	}
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("connect: already %s", a.State())
	}
	a.mu.Unlock()

	c, err := a.open(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.started || a.State() == StateClosed {
		a.mu.Unlock()
		a.retire(c)
		return domain.ErrClientClosed
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.started = true
	a.cancel = cancel
	a.wg.Add(1)
	a.mu.Unlock()

	a.setState(StateConnected)
	go a.run(runCtx, c)
	return nil
}

// Subscribe adds topics. New topics are sent to every live socket and to
// every socket opened later.
func (a *AutoClient) Subscribe(topics ...string) error {
	a.mu.Lock()
	var added []string
	for _, t := range topics {
		if t == "" || slices.Contains(a.topics, t) {
			continue
		}
		a.topics = append(a.topics, t)
		added = append(added, t)
	}
	conns := make([]*conn, 0, len(a.live))
	for c := range a.live {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	var errs error
	for _, c := range conns {
		if err := a.sendSubscribe(c, added); err != nil {
			errs = errors.Join(errs, domain.NewNetworkError("subscribe", c.url, err))
		}
	}
	return errs
}

// Receive returns the next application frame.
// After Close it returns domain.ErrClientClosed. When reconnects are
// exhausted the fatal error is returned once, then ErrClientClosed.
func (a *AutoClient) Receive(ctx context.Context) (string, error) {
	if a.State() == StateDisconnected {
		return "", ErrNotConnected
	}
	select {
	case msg := <-a.out:
		return msg, nil
	case <-a.done:
		if a.fatal != nil && a.fatalTaken.CompareAndSwap(false, true) {
			return "", a.fatal
		}
		return "", domain.ErrClientClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed when the stream has stopped.
func (a *AutoClient) Done() <-chan struct{} {
	return a.done
}

// Close cancels any handover in progress, closes all sockets and waits
// for the stream goroutines.
func (a *AutoClient) Close() error {
	a.closeOnce.Do(func() {
		a.state.Store(int32(StateClosed))
		a.mu.Lock()
		cancel := a.cancel
		a.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		a.wg.Wait()
		a.finish(nil)
		a.logger.Info("client closed")
	})
	return nil
}

func (a *AutoClient) finish(err error) {
	a.doneOnce.Do(func() {
		a.fatal = err
		a.state.Store(int32(StateClosed))
		close(a.done)
	})
}

// conn is one socket with its reader and keep-alive goroutines.
type conn struct {
	id     uint64
	url    string
	sock   Socket
	frames chan frame
	opened time.Time
	stop   chan struct{}
	once   sync.Once
}

type frame struct {
	text string
	err  error
}

func (a *AutoClient) endpoint() (string, error) {
	if a.urlFn != nil {
		return a.urlFn()
	}
	return a.cfg.URL, nil
}

func (a *AutoClient) open(ctx context.Context) (*conn, error) {
	url, err := a.endpoint()
	if err != nil {
		return nil, domain.NewNetworkError("url", "", err)
	}
	sock, err := a.dialer.Dial(ctx, url)
	if err != nil {
		return nil, domain.NewNetworkError("dial", url, fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err))
	}

	// Handshake reads do not take a context; closing the socket unblocks them.
	stopWatch := context.AfterFunc(ctx, func() { _ = sock.Close() })

	if err := a.authenticate(sock); err != nil {
		stopWatch()
		_ = sock.Close()
		return nil, domain.NewNetworkError("auth", url, err)
	}

	c := &conn{
		id:     a.connSeq.Add(1),
		url:    url,
		sock:   sock,
		frames: make(chan frame, frameQueueSize),
		opened: time.Now(),
		stop:   make(chan struct{}),
	}

	a.mu.Lock()
	topics := slices.Clone(a.topics)
	a.live[c] = struct{}{}
	a.mu.Unlock()

	err = a.sendSubscribe(c, topics)
	if !stopWatch() {
		err = errors.Join(err, ctx.Err())
	}
	if err != nil {
		a.retire(c)
		return nil, domain.NewNetworkError("subscribe", url, err)
	}

	a.wg.Add(2)
	go a.pump(c)
	go a.keepAlive(c)

	a.obs.ConnectionOpened()
	a.logger.Info("socket connected", slog.Uint64("conn", c.id), slog.Int("topics", len(topics)))
	return c, nil
}

func (a *AutoClient) authenticate(sock Socket) error {
	if a.auth == nil {
		return nil
	}
	frame, err := a.auth()
	if err != nil {
		return fmt.Errorf("build auth frame: %w", err)
	}
	if err := sock.WriteText(frame); err != nil {
		return err
	}
	for {
		msg, err := sock.Receive()
		if err != nil {
			return fmt.Errorf("read auth ack: %w", err)
		}
		switch msg.Kind {
		case KindText:
			if a.verifyAuth != nil {
				return a.verifyAuth(msg.Text)
			}
			return nil
		case KindPing:
			_ = sock.Pong(msg.Data)
		case KindClose:
			return ErrPeerClosed
		}
	}
}

func (a *AutoClient) sendSubscribe(c *conn, topics []string) error {
	if a.op == nil || len(topics) == 0 {
		return nil
	}
	for _, f := range a.op.Frames(topics) {
		if err := c.sock.WriteText(f); err != nil {
			return err
		}
	}
	return nil
}

func (a *AutoClient) retire(c *conn) {
	c.once.Do(func() {
		close(c.stop)
		_ = c.sock.Close()

		a.mu.Lock()
		delete(a.live, c)
		a.mu.Unlock()

		a.obs.ConnectionClosed()
		a.logger.Info("socket closed", slog.Uint64("conn", c.id))
	})
}

// pump reads frames until the socket fails. Only text frames and the
// terminal error reach the stream.
func (a *AutoClient) pump(c *conn) {
	defer a.wg.Done()
	for {
		msg, err := c.sock.Receive()
		if err == nil {
			switch msg.Kind {
			case KindText:
				if a.filter != nil && a.filter.IsControl(msg.Text) {
					continue
				}
			case KindPing:
				if err := c.sock.Pong(msg.Data); err != nil {
					a.logger.Debug("pong failed", slog.Uint64("conn", c.id), slog.Any("error", err))
				}
				continue
			case KindPong:
				continue
			case KindClose:
				err = ErrPeerClosed
			default:
				a.logger.Warn("skipping non-text frame", slog.Uint64("conn", c.id), slog.String("kind", msg.Kind.String()))
				continue
			}
		}

		select {
		case c.frames <- frame{text: msg.Text, err: err}:
		case <-c.stop:
			return
		}
		if err != nil {
			return
		}
	}
}

func (a *AutoClient) keepAlive(c *conn) {
	defer a.wg.Done()
	if a.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.sock.Ping(nil); err != nil {
				a.logger.Debug("ping failed", slog.Uint64("conn", c.id), slog.Any("error", err))
			}
			if a.op == nil {
				continue
			}
			if f := a.op.PingFrame(); f != "" {
				if err := c.sock.WriteText(f); err != nil {
					a.logger.Debug("ping frame failed", slog.Uint64("conn", c.id), slog.Any("error", err))
				}
			}
		}
	}
}
