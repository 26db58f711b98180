package radio

import (
	"context"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/wittra-tof/rangecore/core"
)

// PTTGate keys an external PA / T-R switch through a GPIO character
// device line. Many ranging rigs route the transmit path through an
// amplifier or antenna switch that must be asserted around the TX burst
// window, exactly the way a soundcard TNC keys a transceiver's PTT
// line.
type PTTGate struct {
	line *gpiocdev.Line

	mu    sync.Mutex
	keyed int
}

// NewPTTGate requests the line at offset on the named GPIO chip (e.g.
// "gpiochip0") as an output, initially unkeyed.
func NewPTTGate(chip string, offset int) (*PTTGate, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("rangectl-ptt"))
	if err != nil {
		return nil, &core.DriverFatalErr{Op: "requesting ptt line", Status: core.StatusStreamError, Cause: err}
	}
	return &PTTGate{line: line}, nil
}

// Key asserts the line. Keying nests: the line stays asserted until
// every Key has been balanced by an Unkey, so overlapping bursts never
// drop the switch mid-transmission.
func (g *PTTGate) Key() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keyed++
	if g.keyed == 1 {
		return g.line.SetValue(1)
	}
	return nil
}

// Unkey releases one level of keying, dropping the line once the last
// level is released.
func (g *PTTGate) Unkey() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keyed > 0 {
		g.keyed--
	}
	if g.keyed == 0 {
		return g.line.SetValue(0)
	}
	return nil
}

// Close drops and releases the line.
func (g *PTTGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keyed = 0
	g.line.SetValue(0)
	return g.line.Close()
}

// GatedRadio decorates a core.Radio so the PTT gate is keyed for the
// duration of every scheduled burst: asserted when the burst is handed
// to the driver, released one burst-length (plus a hold margin) after
// the scheduled on-air time.
type GatedRadio struct {
	core.Radio
	gate   *PTTGate
	holdNs int64

	mu     sync.Mutex
	txRate float64
	fClk   float64
}

// NewGatedRadio wraps inner. holdNs is the extra time the gate stays
// keyed after the burst's scheduled end, covering switch settling.
func NewGatedRadio(inner core.Radio, gate *PTTGate, holdNs int64) *GatedRadio {
	return &GatedRadio{Radio: inner, gate: gate, holdNs: holdNs}
}

func (g *GatedRadio) Configure(cfg core.RadioConfig) error {
	g.mu.Lock()
	g.txRate = cfg.FClkHz / float64(cfg.DTx)
	g.fClk = cfg.FClkHz
	g.mu.Unlock()
	return g.Radio.Configure(cfg)
}

// Write keys the gate, forwards the burst, and schedules the unkey for
// the burst's scheduled end plus the hold margin. The unkey timer runs
// off the wall clock, which tracks the device clock closely enough for
// a switch-settling margin.
func (g *GatedRadio) Write(ctx context.Context, burst []complex128, scheduleNs int64) (int, core.IOStatus, error) {
	g.mu.Lock()
	rate := g.txRate
	g.mu.Unlock()

	if err := g.gate.Key(); err != nil {
		return 0, core.StatusStreamError, err
	}
	n, status, err := g.Radio.Write(ctx, burst, scheduleNs)

	var burstNs int64
	if rate > 0 {
		burstNs = int64(float64(len(burst)) / rate * 1e9)
	}
	nowNs := g.currentNs(ctx)
	releaseAfter := time.Duration(scheduleNs + burstNs + g.holdNs - nowNs)
	if releaseAfter < 0 {
		releaseAfter = 0
	}
	time.AfterFunc(releaseAfter, func() { g.gate.Unkey() })
	return n, status, err
}

func (g *GatedRadio) currentNs(ctx context.Context) int64 {
	ticks, err := g.Radio.CurrentTicks(ctx)
	if err != nil {
		return 0
	}
	g.mu.Lock()
	fClk := g.fClk
	g.mu.Unlock()
	if fClk <= 0 {
		return 0
	}
	return core.TicksToNs(ticks, fClk)
}

var _ core.Radio = (*GatedRadio)(nil)
