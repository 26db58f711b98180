package core

import "sync/atomic"

// SharedState is the only state the beacon's TX and RX tasks share: a
// cooperative stop flag and the device-ns time of the most recent TX
// burst. All fields are accessed only through atomics — no locks,
// last-writer-wins for the published TX timestamp.
type SharedState struct {
	stop       atomic.Bool
	lastTxNs   atomic.Int64
	foundCount atomic.Int64
	missCount  atomic.Int64
}

// NewSharedState returns a SharedState ready for use by a beacon loop.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// Stop requests cooperative cancellation. Tasks observe this between
// radio operations; in-flight reads/writes complete or time out first.
func (s *SharedState) Stop() { s.stop.Store(true) }

// Stopped reports whether Stop has been called.
func (s *SharedState) Stopped() bool { return s.stop.Load() }

// PublishTxNs records the device-ns time of the most recently emitted
// TX burst. Only the TX task calls this; the RX task only ever reads
// the latest value.
func (s *SharedState) PublishTxNs(ns int64) { s.lastTxNs.Store(ns) }

// LastTxNs returns the most recently published TX burst time, or 0 if
// none has been published yet.
func (s *SharedState) LastTxNs() int64 { return s.lastTxNs.Load() }

// RecordFound increments the count of successfully localized bursts,
// feeding the final summary line.
func (s *SharedState) RecordFound() { s.foundCount.Add(1) }

// RecordMiss increments the count of missed detections.
func (s *SharedState) RecordMiss() { s.missCount.Add(1) }

// Counts returns the current found/missed totals.
func (s *SharedState) Counts() (found, missed int64) {
	return s.foundCount.Load(), s.missCount.Load()
}
