package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"rbot_go/internal/domain"
)

// stream is the state owned by the run goroutine.
type stream struct {
	a   *AutoClient
	ctx context.Context

	primary     *conn
	standby     *conn
	lastConnect time.Time

	// queue holds frames committed for emission, drained before the
	// primary is read again.
	queue   []string
	hist    *history
	emitted bool
	// skipSeen drops already emitted frames at the head of a socket that
	// was promoted without an overlap window.
	skipSeen bool

	buffer     []string
	bufCap     int
	handoverAt time.Time

	dialing      bool
	results      chan dialResult
	standbyRetry *backoff.ExponentialBackOff
	nextStandby  time.Time
}

type dialResult struct {
	c        *conn
	err      error
	reactive bool
}

func (a *AutoClient) run(ctx context.Context, primary *conn) {
	defer a.wg.Done()

	bufCap := a.cfg.bufferRecords()
	s := &stream{
		a:            a,
		ctx:          ctx,
		primary:      primary,
		lastConnect:  primary.opened,
		hist:         newHistory(bufCap),
		bufCap:       bufCap,
		results:      make(chan dialResult, 1),
		standbyRetry: a.cfg.Retry.BackOff(),
	}

	err := s.loop()
	s.shutdown()
	if err != nil {
		a.logger.Error("stream closed", slog.Any("error", err))
	}
	a.finish(err)
}

func (s *stream) loop() error {
	a := s.a
	ticker := time.NewTicker(a.cfg.checkInterval())
	defer ticker.Stop()

	for {
		var out chan<- string
		var head string
		if len(s.queue) > 0 {
			out = a.out
			head = s.queue[0]
		}
		var primaryFrames, standbyFrames <-chan frame
		if s.primary != nil && len(s.queue) == 0 {
			primaryFrames = s.primary.frames
		}
		if s.standby != nil {
			standbyFrames = s.standby.frames
		}

		select {
		case <-s.ctx.Done():
			return nil

		case out <- head:
			s.queue[0] = ""
			s.queue = s.queue[1:]
			a.obs.MessageEmitted()

		case f := <-primaryFrames:
			if f.err != nil {
				s.primaryFailed(f.err)
				continue
			}
			if s.skipSeen {
				if s.hist.contains(f.text) {
					a.obs.DuplicatesSkipped(1)
					continue
				}
				s.skipSeen = false
			}
			s.commit(f.text)
			if s.standby != nil {
				s.tryCutover()
			}

		case f := <-standbyFrames:
			if f.err != nil {
				s.standbyFailed(f.err)
				continue
			}
			s.bufferStandby(f.text)
			s.tryCutover()

		case r := <-s.results:
			if err := s.dialed(r); err != nil {
				return err
			}

		case now := <-ticker.C:
			s.check(now)
		}
	}
}

func (s *stream) commit(text string) {
	s.queue = append(s.queue, text)
	s.hist.add(text)
	s.emitted = true
}

func (s *stream) bufferStandby(text string) {
	s.buffer = append(s.buffer, text)
	if len(s.buffer) >= 2*s.bufCap {
		n := copy(s.buffer, s.buffer[len(s.buffer)-s.bufCap:])
		clear(s.buffer[n:])
		s.buffer = s.buffer[:n]
	}
}

// startDial opens a socket in the background. A reactive dial retries
// under the policy; a standby dial is attempted once.
func (s *stream) startDial(reactive bool) {
	a := s.a
	s.dialing = true
	a.setState(StateHandover)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		var (
			c   *conn
			err error
		)
		if reactive {
			c, err = retry(s.ctx, a.cfg.Retry, func() (*conn, error) {
				return a.open(s.ctx)
			}, func(err error, next time.Duration) {
				a.logger.Warn("reconnect failed", slog.Any("error", err), slog.Duration("retry_in", next))
			})
		} else {
			c, err = a.open(s.ctx)
		}
		s.results <- dialResult{c: c, err: err, reactive: reactive}
	}()
}

func (s *stream) dialed(r dialResult) error {
	a := s.a
	s.dialing = false

	if r.err != nil {
		if s.ctx.Err() != nil {
			return nil
		}
		if r.reactive {
			return domain.NewFatalNetworkError("reconnect", a.cfg.URL, r.err)
		}
		if s.primary == nil {
			s.startDial(true)
			return nil
		}
		delay := s.standbyRetry.NextBackOff()
		s.nextStandby = time.Now().Add(delay)
		a.setState(StateConnected)
		a.logger.Warn("standby dial failed", slog.Any("error", r.err), slog.Duration("retry_in", delay))
		return nil
	}
	s.standbyRetry.Reset()

	if s.primary == nil {
		s.primary = r.c
		s.lastConnect = r.c.opened
		s.skipSeen = s.emitted
		a.setState(StateConnected)
		a.obs.Reconnect()
		a.logger.Info("reconnected", slog.Uint64("conn", r.c.id))
		return nil
	}

	s.standby = r.c
	s.buffer = s.buffer[:0]
	s.handoverAt = time.Now()
	a.logger.Info("standby connected",
		slog.Uint64("conn", r.c.id),
		slog.Uint64("primary", s.primary.id),
		slog.Int("overlap", a.cfg.OverlapRecords))

	if a.cfg.OverlapRecords <= 0 {
		s.cutover(false)
	}
	return nil
}

func (s *stream) check(now time.Time) {
	a := s.a
	if s.standby != nil {
		if now.Sub(s.handoverAt) >= a.cfg.handoverTimeout() {
			a.logger.Warn("handover timeout, forcing cutover", slog.Int("buffered", len(s.buffer)))
			s.cutover(true)
		}
		return
	}
	if s.primary == nil || s.dialing || a.cfg.SwitchInterval <= 0 {
		return
	}
	if now.Sub(s.lastConnect) < a.cfg.SwitchInterval || now.Before(s.nextStandby) {
		return
	}
	a.logger.Info("scheduled handover", slog.Uint64("primary", s.primary.id), slog.Duration("age", now.Sub(s.lastConnect)))
	s.startDial(false)
}

func (s *stream) tryCutover() {
	if len(s.buffer) < s.a.cfg.OverlapRecords {
		return
	}
	if s.emitted && boundary(s.buffer, s.hist.tail(boundaryDepth)) < 0 {
		return
	}
	s.cutover(false)
}

// cutover hands authority to the standby. Buffered frames after the last
// emitted one are queued; without a boundary a forced cutover queues only
// frames not recently emitted.
func (s *stream) cutover(forced bool) {
	a := s.a

	var pending []string
	skipped := 0
	idx := -1
	if s.emitted {
		idx = boundary(s.buffer, s.hist.tail(boundaryDepth))
	}
	switch {
	case !s.emitted:
		pending = s.buffer
	case idx >= 0:
		pending = s.buffer[idx+1:]
		skipped = idx + 1
	default:
		for _, text := range s.buffer {
			if s.hist.contains(text) {
				skipped++
				continue
			}
			pending = append(pending, text)
		}
	}

	for _, text := range pending {
		s.commit(text)
	}
	if skipped > 0 {
		a.obs.DuplicatesSkipped(skipped)
	}

	old := s.primary
	s.primary = s.standby
	s.standby = nil
	clear(s.buffer)
	s.buffer = s.buffer[:0]
	s.lastConnect = s.primary.opened
	s.skipSeen = s.emitted && a.cfg.OverlapRecords <= 0
	if old != nil {
		a.retire(old)
	}

	a.setState(StateConnected)
	a.obs.Handover(forced)
	a.logger.Info("handover complete",
		slog.Uint64("conn", s.primary.id),
		slog.Bool("forced", forced),
		slog.Bool("boundary", idx >= 0),
		slog.Int("queued", len(pending)),
		slog.Int("skipped", skipped))
}

func (s *stream) primaryFailed(err error) {
	a := s.a
	a.logger.Warn("primary socket failed", slog.Uint64("conn", s.primary.id), slog.Any("error", err))
	a.retire(s.primary)
	s.primary = nil

	if s.standby != nil {
		s.cutover(true)
		return
	}
	a.setState(StateHandover)
	if s.dialing {
		// the in-flight standby dial becomes the reconnect
		return
	}
	s.startDial(true)
}

func (s *stream) standbyFailed(err error) {
	a := s.a
	a.logger.Warn("standby socket failed", slog.Uint64("conn", s.standby.id), slog.Any("error", err))
	a.retire(s.standby)
	s.standby = nil
	clear(s.buffer)
	s.buffer = s.buffer[:0]

	delay := s.standbyRetry.NextBackOff()
	s.nextStandby = time.Now().Add(delay)
	a.setState(StateConnected)
}

func (s *stream) shutdown() {
	a := s.a
	if s.dialing {
		if r := <-s.results; r.c != nil {
			a.retire(r.c)
		}
		s.dialing = false
	}
	if s.standby != nil {
		a.retire(s.standby)
	}
	if s.primary != nil {
		a.retire(s.primary)
	}
}
