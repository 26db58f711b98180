package radio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wittra-tof/rangecore/core"
)

func simTestConfig() core.Config {
	return core.Config{
		FClkHz:             1000,
		DTx:                1,
		DRx:                1,
		NovsTx:             2,
		NovsRx:             2,
		TxBurstLengthChip:  16,
		BurstPeriodSeconds: 0.1,
		PingScrCode:        2,
		PongScrCode:        12,
		ThresholdFactor:    2,
		MaxSyncError:       2,
		PingBurstGuard:     5,
		NumOfPingTries:     3,
		PongDelaySeconds:   0.01,
		TimeoutSeconds:     1,
	}
}

func newTestChannel(cfg core.Config) *SimChannel {
	return NewSimChannel(SimChannelConfig{
		SampleRate: cfg.SampleRateRx(),
		HorizonNs:  4 * cfg.BurstPeriodNs(),
	})
}

func startEndpoint(t *testing.T, ch *SimChannel, cfg core.Config, label string, seed int64) *Sim {
	t.Helper()
	s := ch.Endpoint(label, seed)
	require.NoError(t, s.Configure(cfg.RadioConfig()))
	_, err := s.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSim_BurstCrossesChannel writes a burst on one endpoint and reads
// it back on the other at the scheduled sample position.
func TestSim_BurstCrossesChannel(t *testing.T) {
	cfg := simTestConfig()
	ch := newTestChannel(cfg)
	a := startEndpoint(t, ch, cfg, "a", 1)
	b := startEndpoint(t, ch, cfg, "b", 2)

	burst := []complex128{1, 2, 3}
	// 20 samples at 1kHz.
	n, status, err := a.Write(context.Background(), burst, 20_000_000)
	require.NoError(t, err)
	require.Equal(t, core.StatusOK, status)
	assert.Equal(t, 3, n)

	out := make([]complex128, 100)
	nRead, captureNs, status, err := b.Read(context.Background(), out)
	require.NoError(t, err)
	require.Equal(t, core.StatusOK, status)
	assert.Equal(t, 100, nRead)
	assert.Equal(t, int64(0), captureNs)
	assert.Equal(t, complex128(0), out[19])
	assert.Equal(t, complex128(1), out[20])
	assert.Equal(t, complex128(2), out[21])
	assert.Equal(t, complex128(3), out[22])
	assert.Equal(t, complex128(0), out[23])
}

// TestSim_OwnBurstNotHeard verifies an endpoint never receives its own
// transmissions: TX and RX are disjoint logical streams.
func TestSim_OwnBurstNotHeard(t *testing.T) {
	cfg := simTestConfig()
	ch := newTestChannel(cfg)
	a := startEndpoint(t, ch, cfg, "a", 1)
	startEndpoint(t, ch, cfg, "b", 2)

	_, status, err := a.Write(context.Background(), []complex128{9}, 10_000_000)
	require.NoError(t, err)
	require.Equal(t, core.StatusOK, status)

	out := make([]complex128, 50)
	_, _, status, err = a.Read(context.Background(), out)
	require.NoError(t, err)
	require.Equal(t, core.StatusOK, status)
	for i, v := range out {
		assert.Zerof(t, v, "sample %d", i)
	}
}

// TestSim_PastScheduleIsTimeError checks that a schedule the other
// endpoint has already read past comes back as TIME_ERROR, the
// SchedulingPast signal the orchestrator reanchors on.
func TestSim_PastScheduleIsTimeError(t *testing.T) {
	cfg := simTestConfig()
	ch := newTestChannel(cfg)
	a := startEndpoint(t, ch, cfg, "a", 1)
	b := startEndpoint(t, ch, cfg, "b", 2)

	out := make([]complex128, 100)
	_, _, _, err := b.Read(context.Background(), out)
	require.NoError(t, err)

	// b's cursor is now at 100ms; 50ms is unobservable.
	_, status, err := a.Write(context.Background(), []complex128{1}, 50_000_000)
	require.NoError(t, err)
	assert.Equal(t, core.StatusTimeError, status)
}

// TestSim_WriteBeforeStartIsStreamError exercises the not-started
// guard.
func TestSim_WriteBeforeStartIsStreamError(t *testing.T) {
	cfg := simTestConfig()
	ch := newTestChannel(cfg)
	s := ch.Endpoint("a", 1)
	require.NoError(t, s.Configure(cfg.RadioConfig()))

	_, status, err := s.Write(context.Background(), []complex128{1}, 0)
	require.NoError(t, err)
	assert.Equal(t, core.StatusStreamError, status)
}

// TestSim_RoundTrip runs a full beacon+tag exchange over one simulated
// channel and checks the beacon's measured round trip, reduced modulo
// the burst period, equals the tag's configured reply delay.
func TestSim_RoundTrip(t *testing.T) {
	cfg := simTestConfig()
	ch := newTestChannel(cfg)

	beaconCfg := cfg
	beaconCfg.IsBeacon = true
	tagCfg := cfg
	tagCfg.IsBeacon = false

	beacon := startEndpoint(t, ch, beaconCfg, "beacon", 11)
	tag := startEndpoint(t, ch, tagCfg, "tag", 22)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	measured := make(chan int64, 1)
	obs := &rangeObserver{onMeasurement: func(ns int64) {
		select {
		case measured <- ns:
		default:
		}
	}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := core.RunBeacon(ctx, beacon, beaconCfg, obs, core.NoopLogger{})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("beacon: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		err := core.RunTag(ctx, tag, tagCfg, core.NoopObserver{}, core.NoopLogger{})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tag: %v", err)
		}
	}()

	select {
	case roundTripNs := <-measured:
		// One sample is 1ms at this rate; allow a few samples of
		// detection and rounding slop around the 10ms reply delay.
		assert.InDelta(t, 10_000_000, float64(roundTripNs), 3_000_000)
	case <-ctx.Done():
		t.Fatal("no round-trip measurement before deadline")
	}
	cancel()
	wg.Wait()
}

// rangeObserver forwards range measurements to a callback and discards
// everything else.
type rangeObserver struct {
	onMeasurement func(int64)
}

func (o *rangeObserver) OnCorrelationTrace(string, []float64) {}
func (o *rangeObserver) OnRxBuffer(string, core.RXBuffer) {}
func (o *rangeObserver) OnStateTransition(string, string, string) {}
func (o *rangeObserver) OnRangeMeasurement(ns int64) {
	if o.onMeasurement != nil {
		o.onMeasurement(ns)
	}
}
