package core

// Observer receives buffer snapshots and ranging events for out-of-core
// concerns: plotting, archival, telemetry. The orchestrator never
// imports a plotting or storage library directly; it only calls an
// Observer, which a caller supplies.
//
// All methods must return quickly and not block the ranging loop; an
// Observer that needs to do slow I/O should buffer internally.
type Observer interface {
	// OnCorrelationTrace is called with a correlation magnitude trace
	// whenever one is computed, tagged with a short label ("ping-sync",
	// "ping-track", "pong-track") identifying what produced it.
	OnCorrelationTrace(label string, trace []float64)

	// OnRxBuffer is called with a raw RX buffer snapshot, tagged the
	// same way.
	OnRxBuffer(label string, rx RXBuffer)

	// OnStateTransition is called whenever the tag or beacon state
	// machine changes state.
	OnStateTransition(role, from, to string)

	// OnRangeMeasurement is called whenever the beacon localizes a PONG
	// and computes a round-trip delay, in nanoseconds.
	OnRangeMeasurement(roundTripNs int64)
}

// NoopObserver discards everything. Useful as a default when no
// plotting/archival is wanted.
type NoopObserver struct{}

func (NoopObserver) OnCorrelationTrace(string, []float64) {}
func (NoopObserver) OnRxBuffer(string, RXBuffer) {}
func (NoopObserver) OnStateTransition(string, string, string) {}
func (NoopObserver) OnRangeMeasurement(int64) {}

// MultiObserver fans a single call out to several Observers.
type MultiObserver []Observer

func (m MultiObserver) OnCorrelationTrace(label string, trace []float64) {
	for _, o := range m {
		o.OnCorrelationTrace(label, trace)
	}
}

func (m MultiObserver) OnRxBuffer(label string, rx RXBuffer) {
	for _, o := range m {
		o.OnRxBuffer(label, rx)
	}
}

func (m MultiObserver) OnStateTransition(role, from, to string) {
	for _, o := range m {
		o.OnStateTransition(role, from, to)
	}
}

func (m MultiObserver) OnRangeMeasurement(roundTripNs int64) {
	for _, o := range m {
		o.OnRangeMeasurement(roundTripNs)
	}
}
