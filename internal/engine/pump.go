package engine

import (
	"context"
	"errors"
	"log/slog"

	"rbot_go/internal/domain"
	"rbot_go/internal/event"
	"rbot_go/pkg/quant"
)

// Pump reads frames from a stream, parses them and feeds pooled events to
// a session inbox. It is the only producer for that inbox, so it owns the
// sequence counter.
type Pump struct {
	market string
	stream domain.MessageStream
	parser domain.MessageParser
	inbox  chan<- event.Event
	rec    Recorder
	logger *slog.Logger

	seq uint64
	now func() quant.MicroSec
}

func NewPump(market string, stream domain.MessageStream, parser domain.MessageParser, inbox chan<- event.Event, rec Recorder) *Pump {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Pump{
		market: market,
		stream: stream,
		parser: parser,
		inbox:  inbox,
		rec:    rec,
		logger: slog.Default().With("module", "pump", "market", market),
		now:    quant.Now,
	}
}

// Run forwards until ctx is done or the stream stops. A closed stream is a
// clean stop; an exhausted reconnect is returned.
func (p *Pump) Run(ctx context.Context) error {
	for {
		text, err := p.stream.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrClientClosed) {
				return nil
			}
			p.rec.RecordError(p.market, "stream")
			return err
		}

		received := p.now()
		msg, err := p.parser.Parse(text)
		if err != nil {
			// Malformed frames never stop the stream
			p.rec.RecordError(p.market, "parse")
			p.logger.Warn("Failed to parse frame", "error", err, "frame", truncate(text, 256))
			continue
		}
		if msg.Empty() {
			continue
		}

		if len(msg.Trades) > 0 {
			ev := event.AcquireTradeEvent()
			ev.Header = p.header(received)
			ev.Trades = append(ev.Trades, msg.Trades...)
			if !p.send(ctx, ev) {
				return nil
			}
		}
		if msg.Board != nil {
			ev := event.AcquireBoardEvent()
			ev.Header = p.header(received)
			ev.Transfer.LastUpdateTime = msg.Board.LastUpdateTime
			ev.Transfer.FirstUpdateID = msg.Board.FirstUpdateID
			ev.Transfer.LastUpdateID = msg.Board.LastUpdateID
			ev.Transfer.Snapshot = msg.Board.Snapshot
			ev.Transfer.Bids = append(ev.Transfer.Bids, msg.Board.Bids...)
			ev.Transfer.Asks = append(ev.Transfer.Asks, msg.Board.Asks...)
			if !p.send(ctx, ev) {
				return nil
			}
		}
	}
}

func (p *Pump) header(received quant.MicroSec) event.Header {
	p.seq++
	return event.Header{Seq: p.seq, Ts: received, Market: p.market}
}

func (p *Pump) send(ctx context.Context, ev event.Event) bool {
	select {
	case p.inbox <- ev:
		return true
	case <-ctx.Done():
		event.Release(ev)
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
