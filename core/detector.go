package core

import "math"

// Burst detection: adaptive thresholding, peak extraction, and
// spacing-consistency / guard-window selection over a correlation
// trace.

// DetectorConfig carries the subset of the configuration record the
// detector needs.
type DetectorConfig struct {
	ThresholdFactor    float64
	BurstPeriodSamples int
	MaxSyncError       int
	MinPeakDistance    int
	TxBurstLength      int
	PingBurstGuard     int
}

func meanStddev(xs []float64) (mean, stddev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean = sum / float64(len(xs))

	var variance float64
	for _, v := range xs {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	stddev = math.Sqrt(variance)
	return mean, stddev
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}

// peaksAbove returns, in ascending index order, every index into trace
// whose value exceeds threshold. Crossings closer together than
// minDistance belong to the same correlation mainlobe; each such
// cluster is collapsed to its strongest sample.
func peaksAbove(trace []float64, threshold float64, minDistance int) []int {
	var peaks []int
	for i, v := range trace {
		if v <= threshold {
			continue
		}
		if n := len(peaks); n > 0 && i-peaks[n-1] < minDistance {
			if v > trace[peaks[n-1]] {
				peaks[n-1] = i
			}
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}

// DetectInitialSync looks for two peaks spaced by one burst period
// (within MaxSyncError) anywhere in trace. Threshold statistics are
// taken over the whole trace. Returns the later peak of the first
// matching pair (the tracking math that follows relies on the later
// peak having a full data window ahead of it) and true, or (0, false)
// if no such pair exists.
func DetectInitialSync(trace []float64, cfg DetectorConfig) (int, bool) {
	if len(trace) == 0 {
		return 0, false
	}

	mean, stddev := meanStddev(trace)
	threshold := mean + cfg.ThresholdFactor*stddev
	peaks := peaksAbove(trace, threshold, cfg.MinPeakDistance)
	if len(peaks) < 2 {
		return 0, false
	}

	for a := 0; a < len(peaks); a++ {
		for b := a + 1; b < len(peaks); b++ {
			spacing := peaks[b] - peaks[a]
			if absInt(spacing-cfg.BurstPeriodSamples) <= cfg.MaxSyncError {
				return peaks[b], true
			}
		}
	}
	return 0, false
}

// clipWindow returns [lo, hi] (inclusive) clipped to [0, n-1], along with
// whether the resulting window is non-empty.
func clipWindow(center, half, n int) (lo, hi int, ok bool) {
	lo = center - half
	hi = center + half
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi, lo <= hi
}

// DetectSingleBurst performs single-burst (PING/PONG tracking) detection.
// Threshold statistics are computed over a window of width TxBurstLength
// centered on the trace's global maximum; the
// actual peak is then picked as the maximum inside a separate guard
// window of width TxBurstLength+2*PingBurstGuard centered on expectedIx,
// clipped to the buffer's bounds, if it exceeds that threshold.
func DetectSingleBurst(trace []float64, expectedIx int, cfg DetectorConfig) (int, bool) {
	if len(trace) == 0 {
		return 0, false
	}

	statsLo, statsHi, ok := clipWindow(argmax(trace), cfg.TxBurstLength/2, len(trace))
	if !ok {
		return 0, false
	}
	mean, stddev := meanStddev(trace[statsLo : statsHi+1])
	threshold := mean + cfg.ThresholdFactor*stddev

	guardLo, guardHi, ok := clipWindow(expectedIx, (cfg.TxBurstLength+2*cfg.PingBurstGuard)/2, len(trace))
	if !ok {
		return 0, false
	}

	window := trace[guardLo : guardHi+1]
	localMax := argmax(window)
	if window[localMax] <= threshold {
		return 0, false
	}
	return guardLo + localMax, true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
