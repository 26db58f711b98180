package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestShapedLength_MatchesActualOutput(t *testing.T) {
	for _, novs := range []int{2, 4, 8} {
		for _, chipCount := range []int{8, 64, 512} {
			i, q := GenerateCode(2, chipCount)
			out, err := ShapePulse(i, q, novs, 0.9)
			require.NoError(t, err)
			assert.Equal(t, ShapedLength(chipCount, novs), len(out))
		}
	}
}

func TestShapedLength_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		chipCount := rapid.IntRange(1, 1024).Draw(rt, "chipCount")
		novs := rapid.SampledFrom([]int{2, 4, 8}).Draw(rt, "novs")
		a := ShapedLength(chipCount, novs)
		b := ShapedLength(chipCount, novs)
		assert.Equal(rt, a, b)
		assert.True(rt, a >= 0)
	})
}

func TestShapePulse_RejectsBadNovs(t *testing.T) {
	_, err := ShapePulse([]float64{1, -1}, []float64{1, 1}, 3, 1.0)
	require.Error(t, err)
	var cfgErr *ConfigInvalidErr
	assert.ErrorAs(t, err, &cfgErr)
}

func TestShapePulse_IdentityUpsampleOnly(t *testing.T) {
	// With a unit-impulse "filter" (a single tap of 1) and no warm-up
	// scrap, the shaper reduces to pure zero-order-hold upsampling.
	const novs = 4
	chipsI := []float64{1, -1, 1}
	chipsQ := []float64{-1, -1, 1}

	up := upsample(chipsI, novs)
	filtered := convolveFull(up, []float64{1})
	assert.Equal(t, up, filtered)

	upQ := upsample(chipsQ, novs)
	filteredQ := convolveFull(upQ, []float64{1})
	assert.Equal(t, upQ, filteredQ)
}

func TestGenerateBurst_LengthInvariant(t *testing.T) {
	out, err := GenerateBurst(2, 512, 2, 1.0)
	require.NoError(t, err)
	assert.Equal(t, ShapedLength(512, 2), len(out))
}
