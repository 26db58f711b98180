package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGenerateCode_Deterministic(t *testing.T) {
	i1, q1 := GenerateCode(2, 64)
	i2, q2 := GenerateCode(2, 64)
	assert.Equal(t, i1, i2)
	assert.Equal(t, q1, q2)
}

func TestGenerateCode_KnownSeed(t *testing.T) {
	// Regression anchors for the default ping/pong code indices. The
	// Y register is pre-shifted and then reset to all-ones before
	// emission, so the two indices must differ through X alone; these
	// fixed sequences pin that behavior against refactors.
	i2, q2 := GenerateCode(2, 16)
	assert.Equal(t, []float64{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}, i2)
	assert.Equal(t, []float64{1, -1, 1, -1, 1, -1, 1, -1, 1, -1, -1, -1, -1, -1, -1, -1}, q2)

	i12, q12 := GenerateCode(12, 16)
	assert.Equal(t, []float64{-1, -1, -1, -1, -1, -1, 1, -1, -1, -1, -1, -1, -1, -1, -1, -1}, i12)
	assert.Equal(t, []float64{-1, 1, 1, -1, 1, -1, 1, -1, 1, 1, 1, 1, -1, -1, -1, -1}, q12)
}

func TestGenerateCode_PureFunction(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		codeIndex := rapid.IntRange(0, 4095).Draw(rt, "codeIndex")
		n := rapid.IntRange(1, 256).Draw(rt, "n")
		i1, q1 := GenerateCode(codeIndex, n)
		i2, q2 := GenerateCode(codeIndex, n)
		assert.Equal(rt, i1, i2)
		assert.Equal(rt, q1, q2)
	})
}

// TestGenerateCode_PrefixConcatenation verifies gen(c,N) is the same as
// the first N chips of gen(c, N+M), i.e. the generator does not depend on
// the requested length beyond truncation.
func TestGenerateCode_PrefixConcatenation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		codeIndex := rapid.IntRange(0, 4095).Draw(rt, "codeIndex")
		n := rapid.IntRange(1, 128).Draw(rt, "n")
		m := rapid.IntRange(1, 128).Draw(rt, "m")

		iShort, qShort := GenerateCode(codeIndex, n)
		iLong, qLong := GenerateCode(codeIndex, n+m)

		assert.Equal(rt, iShort, iLong[:n])
		assert.Equal(rt, qShort, qLong[:n])
	})
}

func TestGenerateChips_UnitEnergy(t *testing.T) {
	chips := GenerateChips(2, 16)
	require.Len(t, chips, 16)
	for _, c := range chips {
		mag := real(c)*real(c) + imag(c)*imag(c)
		assert.InDelta(t, 1.0, mag, 1e-9)
	}
}
