package core

// Pulse shaping: upsamples a chip sequence by zero-order hold,
// convolves I/Q independently with a fixed FIR bank, discards the
// filter warm-up, and scales to the transmit amplitude.

// extraSamplesFilter is the fraction of chips worth of samples scrapped
// to skip the filter's warm-up transient.
const extraSamplesFilter = 1.0 / 8.0

// upsample repeats each sample novs times (zero-order hold).
func upsample(in []float64, novs int) []float64 {
	out := make([]float64, len(in)*novs)
	for i, v := range in {
		for m := 0; m < novs; m++ {
			out[i*novs+m] = v
		}
	}
	return out
}

// convolveFull performs full-overlap linear convolution of signal with
// taps, then truncates the result to len(signal) samples; the trailing
// filter tail is discarded.
func convolveFull(signal, taps []float64) []float64 {
	out := make([]float64, len(signal))
	for n := range out {
		var sum float64
		for k, tap := range taps {
			si := n - k
			if si < 0 || si >= len(signal) {
				continue
			}
			sum += tap * signal[si]
		}
		out[n] = sum
	}
	return out
}

// ShapePulse runs the full shaping pipeline: upsample, FIR filter, scrap
// warm-up, scale. chipsI/chipsQ must have equal length (the chip count);
// novs must be one of {2, 4, 8}.
func ShapePulse(chipsI, chipsQ []float64, novs int, scale float64) ([]complex128, error) {
	if len(chipsI) != len(chipsQ) {
		return nil, ConfigError("pulse shaper: I/Q chip length mismatch")
	}
	taps := firBank(novs)
	if taps == nil {
		return nil, ConfigError("pulse shaper: Novs must be one of {2,4,8}")
	}

	chipCount := len(chipsI)
	upI := upsample(chipsI, novs)
	upQ := upsample(chipsQ, novs)

	filteredI := convolveFull(upI, taps)
	filteredQ := convolveFull(upQ, taps)

	scrap := int(float64(chipCount) * extraSamplesFilter * float64(novs))
	if scrap > len(filteredI) {
		scrap = len(filteredI)
	}

	out := make([]complex128, len(filteredI)-scrap)
	for i := range out {
		out[i] = complex(filteredI[i+scrap]*scale, filteredQ[i+scrap]*scale)
	}
	return out, nil
}

// ShapedLength returns the deterministic output length of ShapePulse for
// a given chip count and oversampling factor, without doing the
// convolution.
func ShapedLength(chipCount, novs int) int {
	upLen := chipCount * novs
	scrap := int(float64(chipCount) * extraSamplesFilter * float64(novs))
	if scrap > upLen {
		return 0
	}
	return upLen - scrap
}

// GenerateBurst generates the full TX waveform for one scrambling code:
// code generation followed by pulse shaping. The result's length is
// always ShapedLength(chipCount, novs): chipCount*novs minus the warm-up
// scrap of chipCount*novs*extraSamplesFilter, truncated to whole samples.
func GenerateBurst(codeIndex, chipCount, novs int, scale float64) ([]complex128, error) {
	i, q := GenerateCode(codeIndex, chipCount)
	return ShapePulse(i, q, novs, scale)
}
