package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rbot_go/internal/domain"
	"rbot_go/internal/event"
)

// lineParser reads "trade:<id>:<price>" and "board:<id>" frames.
type lineParser struct{}

func (lineParser) Parse(text string) (domain.ParsedMessage, error) {
	parts := strings.Split(text, ":")
	switch parts[0] {
	case "trade":
		return domain.ParsedMessage{Trades: []domain.Trade{trade(parts[1], domain.SideBuy, parts[2], "1")}}, nil
	case "board":
		return domain.ParsedMessage{Board: &domain.BoardTransfer{Snapshot: true}}, nil
	case "both":
		return domain.ParsedMessage{
			Trades: []domain.Trade{trade(parts[1], domain.SideSell, "1", "1")},
			Board:  &domain.BoardTransfer{},
		}, nil
	case "noise":
		return domain.ParsedMessage{}, nil
	}
	return domain.ParsedMessage{}, domain.ErrMalformedMessage
}

func TestPump_Run(t *testing.T) {
	frames := make(chan string, 8)
	for _, f := range []string{"trade:t1:100", "garbage", "noise", "board:1", "both:t2"} {
		frames <- f
	}
	close(frames)

	inbox := make(chan event.Event, 8)
	rec := newCountingRecorder()
	p := NewPump(testMarket, &chanStream{frames: frames, end: domain.ErrClientClosed}, lineParser{}, inbox, rec)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(inbox)

	var types []event.Type
	var seqs []uint64
	for ev := range inbox {
		types = append(types, ev.GetType())
		seqs = append(seqs, ev.GetSeq())
		if ev.GetMarket() != testMarket {
			t.Errorf("market = %s", ev.GetMarket())
		}
		event.Release(ev)
	}

	want := []event.Type{event.TypeTrade, event.TypeBoard, event.TypeTrade, event.TypeBoard}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] || seqs[i] != uint64(i+1) {
			t.Errorf("event %d = %s seq %d", i, types[i], seqs[i])
		}
	}
	if rec.errorCount("parse") != 1 {
		t.Errorf("parse errors = %d, want 1", rec.errorCount("parse"))
	}
}

func TestPump_FatalStreamError(t *testing.T) {
	frames := make(chan string)
	close(frames)
	fatal := domain.NewFatalNetworkError("reconnect", "wss://x", errors.New("gave up"))

	p := NewPump(testMarket, &chanStream{frames: frames, end: fatal}, lineParser{}, make(chan event.Event, 1), nil)
	if err := p.Run(context.Background()); !errors.Is(err, fatal) {
		t.Errorf("Run() error = %v, want fatal", err)
	}
}

func TestPump_FeedsSession(t *testing.T) {
	frames := make(chan string, 4)
	frames <- "trade:t1:100"
	frames <- "trade:t1:100"
	frames <- "trade:t2:101"
	close(frames)

	s := NewSession(SessionConfig{Market: testMarket}, nil)
	startSession(t, s)

	p := NewPump(testMarket, &chanStream{frames: frames, end: domain.ErrClientClosed}, lineParser{}, s.Inbox(), nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "session to drain", func() bool { return s.Stats().NextSeq == 4 })
	if st := s.Stats(); st.Trades != 2 || st.Duplicates != 1 {
		t.Errorf("stats = %+v", st)
	}
}
