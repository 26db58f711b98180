package core

// Scrambling-code generation: emits a length-N pair of +-1 chip
// sequences (I, Q) from a two-register Gold-like construction,
// pre-shifted by a scrambling code index.
//
// One surprising property is load-bearing: Y is pre-shifted by
// codeIndex steps and then reset to all-ones before any chips are
// emitted, so the emitted sequence's dependence on codeIndex comes
// entirely through X. Both ends of the link generate their references
// this way; changing it breaks interoperability with deployed nodes.

const registerLen = 18

// chipRegisters holds the two 18-bit LFSR-like shift registers used by
// the code generator, indexed 0 (oldest/output tap) through 17 (newest).
type chipRegisters struct {
	x, y [registerLen]int
}

func newChipRegisters() chipRegisters {
	var r chipRegisters
	r.x[0] = 1
	for i := range r.y {
		r.y[i] = 1
	}
	return r
}

func mod2(v int) int {
	m := v % 2
	if m < 0 {
		m += 2
	}
	return m
}

// shift advances both registers by n steps, shifting left (dropping the
// value at index 0) and appending the new feedback bit at index 17.
func (r *chipRegisters) shift(n int) {
	for i := 0; i < n; i++ {
		xFeedback := mod2(r.x[0] + r.x[7])
		yFeedback := mod2(r.y[0] + r.y[5] + r.y[7] + r.y[10])
		copy(r.x[0:registerLen-1], r.x[1:registerLen])
		r.x[registerLen-1] = xFeedback
		copy(r.y[0:registerLen-1], r.y[1:registerLen])
		r.y[registerLen-1] = yFeedback
	}
}

// GenerateCode deterministically emits the I and Q +-1 chip sequences for
// the given scrambling code index and chip count.
func GenerateCode(codeIndex, n int) (i, q []float64) {
	regs := newChipRegisters()
	regs.shift(codeIndex)

	// Y is reset to all-ones after the pre-shift; see the package comment.
	for k := range regs.y {
		regs.y[k] = 1
	}

	i = make([]float64, n)
	q = make([]float64, n)
	for k := 0; k < n; k++ {
		iBit := mod2(regs.x[0] + regs.y[0])
		i[k] = 1 - 2*float64(iBit)

		qX := mod2(regs.x[4] + regs.x[6] + regs.x[15])
		ySum := regs.y[8]
		for m := 9; m <= 15; m++ {
			ySum += regs.y[m]
		}
		qY := mod2(regs.y[5] + regs.y[6] + ySum)
		qBit := mod2(qX + qY)
		q[k] = 1 - 2*float64(qBit)

		regs.shift(1)
	}
	return i, q
}

// GenerateChips is GenerateCode packed as unit-energy complex chips,
// (I+jQ)/sqrt(2), so each chip has unit energy.
func GenerateChips(codeIndex, n int) []complex128 {
	i, q := GenerateCode(codeIndex, n)
	const invSqrt2 = 0.7071067811865476
	out := make([]complex128, n)
	for k := range out {
		out[k] = complex(i[k]*invSqrt2, q[k]*invSqrt2)
	}
	return out
}
