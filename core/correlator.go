package core

import "math"

// Complex cross-correlation of a reference waveform against an RX
// buffer, producing a real-valued magnitude trace.

// Correlate computes c[k] = |sum_m conj(ref[m]) * rx[k+m]| for every
// alignment k where the reference fully fits inside rx. If rx is shorter
// than ref (or either is empty), it returns an empty trace — the
// detector then reports "no peaks".
func Correlate(ref, rx []complex128) []float64 {
	m := len(ref)
	n := len(rx)
	if m == 0 || n < m {
		return nil
	}

	trace := make([]float64, n-m+1)
	for k := range trace {
		var sum complex128
		for j, r := range ref {
			sum += complex(real(r), -imag(r)) * rx[k+j]
		}
		trace[k] = math.Hypot(real(sum), imag(sum))
	}
	return trace
}
