package engine

import "time"

// Recorder receives session and pump counters. infra.Metrics implements it.
type Recorder interface {
	RecordEvent(market, typ string, latency time.Duration)
	RecordError(market, kind string)
	RecordBoardUpdate(market, result string)
	RecordDuplicateTrades(market string, n int)
	RecordOrdersFilled(market string, n int)
	RecordArchived(market string, n int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(string, string, time.Duration) {}
func (nopRecorder) RecordError(string, string)                {}
func (nopRecorder) RecordBoardUpdate(string, string)          {}
func (nopRecorder) RecordDuplicateTrades(string, int)         {}
func (nopRecorder) RecordOrdersFilled(string, int)            {}
func (nopRecorder) RecordArchived(string, int64)              {}
