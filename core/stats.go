package core

// Stats accumulates round-trip delay measurements across ranging
// rounds, feeding the average/max/min figures and the found/missed
// counts of the end-of-run summary line.
type Stats struct {
	count       int64
	sumNs       int64
	minNs       int64
	maxNs       int64
	foundCount  int64
	missedCount int64
}

// NewStats returns an empty accumulator.
func NewStats() *Stats {
	return &Stats{}
}

// AddRoundTrip records one successful round-trip delay measurement.
func (s *Stats) AddRoundTrip(roundTripNs int64) {
	if s.count == 0 || roundTripNs < s.minNs {
		s.minNs = roundTripNs
	}
	if s.count == 0 || roundTripNs > s.maxNs {
		s.maxNs = roundTripNs
	}
	s.sumNs += roundTripNs
	s.count++
}

// RecordFound and RecordMissed track the found/missed burst counters
// for the summary line.
func (s *Stats) RecordFound() { s.foundCount++ }
func (s *Stats) RecordMissed() { s.missedCount++ }

// Count returns the number of round-trip measurements recorded.
func (s *Stats) Count() int64 { return s.count }

// Average returns the mean round-trip delay in nanoseconds, or 0 if no
// measurements have been recorded.
func (s *Stats) Average() int64 {
	if s.count == 0 {
		return 0
	}
	return s.sumNs / s.count
}

// Min and Max return the smallest/largest recorded round-trip delay.
func (s *Stats) Min() int64 { return s.minNs }
func (s *Stats) Max() int64 { return s.maxNs }

// FoundMissed returns the found/missed burst counts for the summary
// line.
func (s *Stats) FoundMissed() (found, missed int64) {
	return s.foundCount, s.missedCount
}
