package core

// Time-base coordination: pure functions mapping between sample index,
// rx-timestamp, hardware-tick, and wall-clock nanosecond views of time.
// None of these functions touch the radio; they are deterministic and
// CPU-bound, so callers may use them freely between blocking I/O.

const nanosPerSecond = 1e9

// degenerateSkewNs is the threshold beyond which an anchor timestamp is
// considered glitched rather than merely stale.
const degenerateSkewNs = 2_000_000_000

// RXBuffer is a capture-timestamped sample window: an ordered sequence
// of complex samples plus the device-clock nanosecond time of sample 0.
type RXBuffer struct {
	Samples    []complex128
	CaptureNs  int64
	SampleRate float64 // f_rx, Hz
}

// IxToNsDevice converts a sample index within rx into a device-clock
// nanosecond timestamp: ns_device = capture_ns + ix * 1e9 / f_rx.
func IxToNsDevice(rx RXBuffer, ix int) int64 {
	return rx.CaptureNs + int64(float64(ix)*nanosPerSecond/rx.SampleRate)
}

// NsToIx converts an absolute device-clock nanosecond timestamp into a
// sample index within rx: rx_ix = (target_ns - capture_ns) * f_rx / 1e9.
func NsToIx(rx RXBuffer, targetNs int64) int {
	return int(roundToInt64(float64(targetNs-rx.CaptureNs) * rx.SampleRate / nanosPerSecond))
}

// TicksToNs converts device master-clock ticks to nanoseconds:
// ns_device = ticks * 1e9 / f_clk.
func TicksToNs(ticks int64, fClk float64) int64 {
	return int64(float64(ticks) * nanosPerSecond / fClk)
}

// NsToTicks converts nanoseconds to device master-clock ticks.
func NsToTicks(ns int64, fClk float64) int64 {
	return int64(float64(ns) * fClk / nanosPerSecond)
}

// ExpectedPingIx predicts the position, inside rx, of the next PING
// occurrence following an earlier PING observed at anchorNs. If anchorNs
// has drifted from rx.CaptureNs by more than the degenerate-skew
// threshold, the anchor is discarded in favor of rx.CaptureNs itself
// before re-entering the period-alignment loop, so tracking
// recovers from a single glitched timestamp instead of diverging.
func ExpectedPingIx(rx RXBuffer, anchorNs int64, burstPeriodNs int64) int {
	t := anchorNs
	if absInt64(anchorNs-rx.CaptureNs) > degenerateSkewNs {
		t = rx.CaptureNs
	}
	for t < rx.CaptureNs {
		t += burstPeriodNs
	}
	for t > rx.CaptureNs+burstPeriodNs {
		t -= burstPeriodNs
	}
	return int(roundToInt64(float64(t-rx.CaptureNs) * rx.SampleRate / nanosPerSecond))
}

// ExpectedPongIx predicts the position of the PONG reply that follows
// the PING anchored at anchorNs, offset by pongPosOffset samples and
// wrapped into one burst period's worth of RX samples.
func ExpectedPongIx(rx RXBuffer, anchorNs int64, burstPeriodNs int64, pongPosOffset, rxSamplesPerPeriod int) int {
	ix := ExpectedPingIx(rx, anchorNs, burstPeriodNs) + pongPosOffset
	if rxSamplesPerPeriod <= 0 {
		return ix
	}
	m := ix % rxSamplesPerPeriod
	if m < 0 {
		m += rxSamplesPerPeriod
	}
	return m
}

// ScheduleTxAfter computes the absolute device tick at which a burst
// relativeNs after anchorNs should be transmitted.
func ScheduleTxAfter(anchorNs int64, relativeNs int64, fClk float64) int64 {
	return NsToTicks(anchorNs+relativeNs, fClk)
}

// ScheduleStatus is the result of CheckScheduledTime.
type ScheduleStatus int

const (
	ScheduleOK ScheduleStatus = iota
	ScheduleFailedPast
)

// CheckScheduledTime reports whether scheduledNs is strictly after
// currentDeviceNs, i.e. still dispatchable by the radio.
func CheckScheduledTime(scheduledNs, currentDeviceNs int64) ScheduleStatus {
	if scheduledNs > currentDeviceNs {
		return ScheduleOK
	}
	return ScheduleFailedPast
}

// ReanchorAfterPast advances scheduledNs forward by whole burst periods
// until it is strictly after currentDeviceNs. This is the recovery for
// a schedule that has already passed: the caller logs, re-anchors, and
// re-dispatches.
func ReanchorAfterPast(scheduledNs, currentDeviceNs, burstPeriodNs int64) int64 {
	t := scheduledNs
	for t <= currentDeviceNs {
		t += burstPeriodNs
	}
	return t
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func roundToInt64(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return -int64(-v + 0.5)
}
