package ws

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errFakeClosed = errors.New("fake socket closed")

// fakeExchange broadcasts published frames to every open socket in order.
type fakeExchange struct {
	mu        sync.Mutex
	socks     []*fakeSocket
	published []string
	dials     int
	failAfter int // dials beyond this count fail; 0 never fails
	replay    int // frames replayed to a socket on its first subscribe frame
	authAck   string
}

func (ex *fakeExchange) Dial(ctx context.Context, url string) (Socket, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ex.dials++
	if ex.failAfter > 0 && ex.dials > ex.failAfter {
		return nil, errors.New("connection refused")
	}
	s := &fakeSocket{
		ex:     ex,
		id:     ex.dials,
		in:     make(chan Message, 8192),
		closed: make(chan struct{}),
	}
	ex.socks = append(ex.socks, s)
	return s, nil
}

func (ex *fakeExchange) publish(texts ...string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, t := range texts {
		ex.published = append(ex.published, t)
		for _, s := range ex.socks {
			if s.isClosed() || s.silent.Load() || !s.isSubscribed() {
				continue
			}
			s.in <- Message{Kind: KindText, Text: t}
		}
	}
}

func (ex *fakeExchange) socket(i int) *fakeSocket {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if i >= len(ex.socks) {
		return nil
	}
	return ex.socks[i]
}

func (ex *fakeExchange) dialCount() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.dials
}

type fakeSocket struct {
	ex        *fakeExchange
	id        int
	in        chan Message
	closed    chan struct{}
	closeOnce sync.Once
	silent    atomic.Bool

	mu         sync.Mutex
	written    []string
	subscribed bool
	pings      int
	pongs      int
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) Receive() (Message, error) {
	select {
	case m := <-s.in:
		return m, nil
	case <-s.closed:
		return Message{}, errFakeClosed
	}
}

func (s *fakeSocket) WriteText(text string) error {
	if s.isClosed() {
		return errFakeClosed
	}
	if text == "auth" {
		s.record(text)
		s.in <- Message{Kind: KindText, Text: s.ex.authAck}
		return nil
	}
	if !strings.HasPrefix(text, "sub:") {
		s.record(text)
		return nil
	}

	// Broadcasts start at the first subscribe, after the replayed tail.
	s.ex.mu.Lock()
	defer s.ex.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, text)
	if s.subscribed {
		return nil
	}
	s.subscribed = true
	from := max(0, len(s.ex.published)-s.ex.replay)
	for _, t := range s.ex.published[from:] {
		s.in <- Message{Kind: KindText, Text: t}
	}
	return nil
}

func (s *fakeSocket) record(text string) {
	s.mu.Lock()
	s.written = append(s.written, text)
	s.mu.Unlock()
}

func (s *fakeSocket) isSubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

func (s *fakeSocket) Ping([]byte) error {
	s.mu.Lock()
	s.pings++
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) Pong([]byte) error {
	s.mu.Lock()
	s.pongs++
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

func (s *fakeSocket) counts() (pings, pongs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings, s.pongs
}

// testOp renders one "sub:<topic>" frame per topic and filters "pong".
type testOp struct{}

func (testOp) Frames(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, "sub:"+t)
	}
	return out
}

func (testOp) PingFrame() string { return "ping" }

func (testOp) IsControl(text string) bool { return text == "pong" }

type countingObserver struct {
	emitted, opened, closed, reconnects, duplicates atomic.Int64
	handovers, forced                               atomic.Int64
}

func (o *countingObserver) MessageEmitted()   { o.emitted.Add(1) }
func (o *countingObserver) ConnectionOpened() { o.opened.Add(1) }
func (o *countingObserver) ConnectionClosed() { o.closed.Add(1) }
func (o *countingObserver) Reconnect()        { o.reconnects.Add(1) }
func (o *countingObserver) DuplicatesSkipped(n int) {
	o.duplicates.Add(int64(n))
}
func (o *countingObserver) Handover(forced bool) {
	o.handovers.Add(1)
	if forced {
		o.forced.Add(1)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func receiveN(t *testing.T, c *AutoClient, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for len(out) < n {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := c.Receive(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Receive() after %d messages: %v", len(out), err)
		}
		out = append(out, msg)
	}
	return out
}

func seq(from, to int) []string {
	out := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, "m-"+strconv.Itoa(i))
	}
	return out
}
