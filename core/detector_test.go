package core

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededNoise(n int, snrLinear float64, rng *rand.Rand) []float64 {
	noise := make([]float64, n)
	for i := range noise {
		noise[i] = rng.NormFloat64() / snrLinear
	}
	return noise
}

func buildSeedConfig() DetectorConfig {
	// Scaled-down version of the default configuration.
	return DetectorConfig{
		ThresholdFactor:    8,
		BurstPeriodSamples: 100,
		MaxSyncError:       5,
		TxBurstLength:      40,
		PingBurstGuard:     10,
	}
}

func TestDetectInitialSync_CleanTwoPeaks(t *testing.T) {
	cfg := buildSeedConfig()
	rng := rand.New(rand.NewSource(1))

	trace := seededNoise(400, 20, rng)
	trace[50] += 10
	trace[150] += 10

	idx, ok := DetectInitialSync(trace, cfg)
	require.True(t, ok)
	assert.InDelta(t, 150, idx, 1)
}

func TestDetectInitialSync_JitteredSpacing(t *testing.T) {
	cfg := buildSeedConfig()

	t.Run("within tolerance", func(t *testing.T) {
		trace := make([]float64, 400)
		trace[50] = 10
		trace[154] = 10 // +4 vs nominal spacing of 100
		idx, ok := DetectInitialSync(trace, cfg)
		require.True(t, ok)
		assert.Equal(t, 154, idx)
	})

	t.Run("beyond tolerance", func(t *testing.T) {
		trace := make([]float64, 400)
		trace[50] = 10
		trace[156] = 10 // +6, one more than MaxSyncError allows
		_, ok := DetectInitialSync(trace, cfg)
		assert.False(t, ok)
	})
}

// TestDetectInitialSync_CoalescesMainlobeSamples checks that several
// threshold crossings inside one correlation mainlobe count as a single
// peak (the strongest sample) when MinPeakDistance is set, rather than
// pairing with each other.
func TestDetectInitialSync_CoalescesMainlobeSamples(t *testing.T) {
	cfg := buildSeedConfig()
	cfg.ThresholdFactor = 4
	cfg.MinPeakDistance = 8

	trace := make([]float64, 400)
	trace[49], trace[50], trace[51] = 8, 10, 9
	trace[149], trace[150], trace[151] = 8, 10, 9

	idx, ok := DetectInitialSync(trace, cfg)
	require.True(t, ok)
	assert.Equal(t, 150, idx)
}

func TestDetectInitialSync_FewerThanTwoPeaks(t *testing.T) {
	cfg := buildSeedConfig()
	trace := make([]float64, 200)
	trace[50] = 100
	_, ok := DetectInitialSync(trace, cfg)
	assert.False(t, ok)
}

func TestDetectInitialSync_Idempotent(t *testing.T) {
	cfg := buildSeedConfig()
	trace := make([]float64, 400)
	trace[50] = 10
	trace[150] = 10

	idx1, ok1 := DetectInitialSync(trace, cfg)
	idx2, ok2 := DetectInitialSync(trace, cfg)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, idx1, idx2)
}

func TestDetectSingleBurst_TrackingWithinGuard(t *testing.T) {
	cfg := buildSeedConfig()
	// The threshold statistics span only TxBurstLength+1 = 41 samples
	// here; over so short a window a lone spike sits about 6.3 standard
	// deviations above the mean, so a factor of 8 could never pass it.
	cfg.ThresholdFactor = 4
	trace := make([]float64, 300)
	trace[200] = 10
	idx, ok := DetectSingleBurst(trace, 198, cfg)
	require.True(t, ok)
	assert.InDelta(t, 200, idx, float64(cfg.PingBurstGuard))
}

func TestDetectSingleBurst_MissReturnsNotFound(t *testing.T) {
	cfg := buildSeedConfig()
	trace := make([]float64, 300)
	trace[200] = 10
	// Expected index is far from where the burst actually is, and
	// outside the guard window, so the guard window never sees the peak.
	_, ok := DetectSingleBurst(trace, 50, cfg)
	assert.False(t, ok)
}

func TestDetectSingleBurst_ClipsAtBufferEdges(t *testing.T) {
	cfg := buildSeedConfig()
	trace := make([]float64, 50)
	trace[2] = 10
	// expectedIx of 0 pushes the window left of the buffer; must clip,
	// not panic, and may legitimately return NOT_FOUND.
	idx, ok := DetectSingleBurst(trace, 0, cfg)
	if ok {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, len(trace))
	}

	// expectedIx at the very end must also clip cleanly.
	idx, ok = DetectSingleBurst(trace, len(trace)-1, cfg)
	if ok {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, len(trace))
	}
}

func TestDetectSingleBurst_EmptyTrace(t *testing.T) {
	cfg := buildSeedConfig()
	_, ok := DetectSingleBurst(nil, 10, cfg)
	assert.False(t, ok)
}
