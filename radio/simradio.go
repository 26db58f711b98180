// Package radio supplies the concrete Radio Adapter implementations the
// ranging core depends on only through core.Radio: an in-memory
// simulated channel for self-test and the test suite, a soundcard
// loopback adapter for bench rigs without SDR hardware, an optional
// GPIO PTT gate, and device discovery over udev and mDNS.
package radio

import (
	"context"
	"math/rand"
	"sync"

	"github.com/wittra-tof/rangecore/core"
)

// SimChannel is a shared simulated air interface: every burst written
// by one endpoint becomes visible, after a propagation delay and under
// additive white Gaussian noise, in the reads of every other endpoint.
// Time is virtual and driven entirely by the endpoints' read cursors,
// so a beacon+tag pair running over one SimChannel executes the whole
// ranging exchange deterministically and far faster than real time.
//
// Pacing: an endpoint may neither read nor schedule more than HorizonNs
// ahead of the slowest of the OTHER endpoints. That keeps the two sides
// of a ranging exchange within one horizon of each other, the way real
// time does for real radios. The horizon must be at least as long as
// the largest read window in use (the tag's 2*burst_period initial-sync
// window), or the endpoints can starve each other.
type SimChannel struct {
	mu   sync.Mutex
	cond *sync.Cond

	sampleRate    float64
	noiseSigma    float64
	propagationNs int64
	horizonNs     int64

	bursts    []simBurst
	endpoints []*Sim
}

type simBurst struct {
	src     *Sim
	startNs int64
	samples []complex128
}

// SimChannelConfig parameterizes a SimChannel.
type SimChannelConfig struct {
	SampleRate    float64 // shared TX/RX sample rate, Hz
	NoiseSigma    float64 // AWGN standard deviation per I/Q component
	PropagationNs int64   // one-way flight time applied to every burst
	HorizonNs     int64   // pacing horizon; use >= 3x the burst period
}

// NewSimChannel builds a channel. A zero HorizonNs selects 100ms.
func NewSimChannel(cfg SimChannelConfig) *SimChannel {
	if cfg.HorizonNs == 0 {
		cfg.HorizonNs = 100_000_000
	}
	ch := &SimChannel{
		sampleRate:    cfg.SampleRate,
		noiseSigma:    cfg.NoiseSigma,
		propagationNs: cfg.PropagationNs,
		horizonNs:     cfg.HorizonNs,
	}
	ch.cond = sync.NewCond(&ch.mu)
	return ch
}

// Endpoint attaches a new radio endpoint to the channel. The seed makes
// the endpoint's noise deterministic; distinct endpoints should use
// distinct seeds.
func (ch *SimChannel) Endpoint(label string, seed int64) *Sim {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	s := &Sim{
		ch:    ch,
		label: label,
		rng:   rand.New(rand.NewSource(seed)),
	}
	ch.endpoints = append(ch.endpoints, s)
	return s
}

// minOtherCursorNs is the slowest reader's position among the endpoints
// other than src. ok is false when src is the only endpoint, in which
// case no pacing applies. Callers hold ch.mu.
func (ch *SimChannel) minOtherCursorNs(src *Sim) (minNs int64, ok bool) {
	for _, e := range ch.endpoints {
		if e == src || !e.started {
			continue
		}
		if !ok || e.cursorNs < minNs {
			minNs = e.cursorNs
			ok = true
		}
	}
	return minNs, ok
}

func (ch *SimChannel) prune() {
	var floor int64
	first := true
	for _, e := range ch.endpoints {
		if first || e.cursorNs < floor {
			floor = e.cursorNs
			first = false
		}
	}
	if first {
		return
	}
	kept := ch.bursts[:0]
	for _, b := range ch.bursts {
		endNs := b.startNs + ch.propagationNs + int64(float64(len(b.samples))/ch.sampleRate*1e9)
		if endNs >= floor {
			kept = append(kept, b)
		}
	}
	ch.bursts = kept
}

// wakeOnDone broadcasts the channel condition when ctx is cancelled so
// a goroutine parked in cond.Wait can observe the cancellation. The
// returned stop func must be called once the wait loop exits.
func (ch *SimChannel) wakeOnDone(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ch.cond.Broadcast()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Sim is one endpoint of a SimChannel, implementing core.Radio. Its
// device clock is anchored at 0 by Start and advances as samples are
// read.
type Sim struct {
	ch    *SimChannel
	label string
	rng   *rand.Rand

	cfg      core.RadioConfig
	started  bool
	cursorNs int64
}

var _ core.Radio = (*Sim)(nil)

func (s *Sim) Connect(context.Context, string) error { return nil }

func (s *Sim) ListDevices(context.Context) ([]core.DeviceInfo, error) {
	return []core.DeviceInfo{{Driver: "sim", Serial: s.label, Label: "simulated channel endpoint"}}, nil
}

func (s *Sim) Configure(cfg core.RadioConfig) error {
	txRate := cfg.FClkHz / float64(cfg.DTx)
	rxRate := cfg.FClkHz / float64(cfg.DRx)
	if txRate != rxRate {
		return core.ConfigError("simradio: TX and RX sample rates must match")
	}
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	if s.ch.sampleRate == 0 {
		s.ch.sampleRate = rxRate
	} else if s.ch.sampleRate != rxRate {
		return core.ConfigError("simradio: endpoint sample rate disagrees with channel")
	}
	s.cfg = cfg
	return nil
}

// Start anchors the endpoint's device clock at 0. Idempotent: a second
// Start (RunBeacon starts the radio itself, after the launcher already
// has) keeps the existing anchor.
func (s *Sim) Start(context.Context) (int64, error) {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	s.started = true
	s.ch.cond.Broadcast()
	return s.ticksLocked(), nil
}

func (s *Sim) ticksLocked() int64 {
	return core.NsToTicks(s.cursorNs, s.cfg.FClkHz)
}

// Write schedules a burst on the air at absolute device-ns. A schedule
// the slowest other endpoint has already read past is unobservable and
// reported as TIME_ERROR, which the orchestrator treats as
// SchedulingPast and reanchors. A schedule beyond the pacing horizon
// blocks until the other endpoints catch up, the way a real device's
// bounded TX queue paces its producer.
func (s *Sim) Write(ctx context.Context, burst []complex128, scheduleNs int64) (int, core.IOStatus, error) {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	if !s.started {
		return 0, core.StatusStreamError, nil
	}

	stop := s.ch.wakeOnDone(ctx)
	defer stop()
	for {
		minOther, ok := s.ch.minOtherCursorNs(s)
		if !ok || scheduleNs <= minOther+s.ch.horizonNs {
			if ok && scheduleNs < minOther {
				return 0, core.StatusTimeError, nil
			}
			break
		}
		if ctx.Err() != nil {
			return 0, core.StatusOK, ctx.Err()
		}
		s.ch.cond.Wait()
	}

	samples := make([]complex128, len(burst))
	copy(samples, burst)
	s.ch.bursts = append(s.ch.bursts, simBurst{src: s, startNs: scheduleNs, samples: samples})
	s.ch.cond.Broadcast()
	return len(burst), core.StatusOK, nil
}

// Read materializes len(out) samples of air: channel noise plus every
// overlapping burst transmitted by the other endpoints, shifted by the
// propagation delay. It blocks only when this endpoint has run a full
// pacing horizon ahead of the slowest other endpoint.
func (s *Sim) Read(ctx context.Context, out []complex128) (int, int64, core.IOStatus, error) {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	if !s.started {
		return 0, 0, core.StatusStreamError, nil
	}

	stop := s.ch.wakeOnDone(ctx)
	defer stop()
	for {
		minOther, ok := s.ch.minOtherCursorNs(s)
		if !ok || s.cursorNs <= minOther+s.ch.horizonNs {
			break
		}
		if ctx.Err() != nil {
			return 0, 0, core.StatusOK, ctx.Err()
		}
		s.ch.cond.Wait()
	}

	captureNs := s.cursorNs
	rate := s.ch.sampleRate
	sigma := s.ch.noiseSigma

	for i := range out {
		var v complex128
		if sigma > 0 {
			v = complex(s.rng.NormFloat64()*sigma, s.rng.NormFloat64()*sigma)
		}
		out[i] = v
	}
	for _, b := range s.ch.bursts {
		if b.src == s {
			continue
		}
		arrivalNs := b.startNs + s.ch.propagationNs
		// First output index the burst touches.
		startIx := int(float64(arrivalNs-captureNs) * rate / 1e9)
		for j := range b.samples {
			ix := startIx + j
			if ix < 0 || ix >= len(out) {
				continue
			}
			out[ix] += b.samples[j]
		}
	}

	s.cursorNs = captureNs + int64(float64(len(out))/rate*1e9)
	s.ch.prune()
	s.ch.cond.Broadcast()
	return len(out), captureNs, core.StatusOK, nil
}

func (s *Sim) CurrentTicks(context.Context) (int64, error) {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.ticksLocked(), nil
}

// Close detaches the endpoint so it no longer holds back the channel's
// pacing. Idempotent.
func (s *Sim) Close() error {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	for i, e := range s.ch.endpoints {
		if e == s {
			s.ch.endpoints = append(s.ch.endpoints[:i], s.ch.endpoints[i+1:]...)
			break
		}
	}
	s.started = false
	s.ch.cond.Broadcast()
	return nil
}
