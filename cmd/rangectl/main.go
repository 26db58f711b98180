// rangectl launches the two-node RF time-of-flight ranging protocol:
// a beacon transmitting periodic PING bursts and measuring the round
// trip of the tag's PONG replies, or the tag side answering them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/wittra-tof/rangecore/core"
	"github.com/wittra-tof/rangecore/internal/dump"
	"github.com/wittra-tof/rangecore/internal/obslog"
	"github.com/wittra-tof/rangecore/radio"
)

func main() {
	os.Exit(run())
}

func run() int {
	var start = pflag.BoolP("start", "s", false, "Start ranging.")
	var plot = pflag.BoolP("plot", "p", false, "Dump RX buffers and correlation traces for offline plotting.")
	var listDevices = pflag.BoolP("list-devices", "l", false, "List available radio devices and exit.")
	var device = pflag.IntP("device", "d", -1, "Sound device selector (the serial of a soundcard entry in --list-devices).")
	var role = pflag.String("role", "", "Role override: beacon or tag (default from config).")
	var configPath = pflag.StringP("config", "c", "", "YAML configuration file. Omit for built-in defaults.")
	var selfTest = pflag.Bool("self-test", false, "Run beacon and tag against an in-memory simulated channel.")
	var plotDir = pflag.String("plot-dir", "dumps", "Directory for --plot output.")
	var pttChip = pflag.String("ptt-chip", "", "GPIO chip for an external PTT/PA gate (e.g. gpiochip0).")
	var pttLine = pflag.Int("ptt-line", -1, "GPIO line offset for the PTT gate.")
	var logLevel = pflag.String("log-level", "info", "Log level: debug, info, warn, error.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return 0
	}

	logger := obslog.New(os.Stderr, *logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *listDevices {
		return listAllDevices(ctx, logger)
	}

	if !*start && !*selfTest {
		pflag.Usage()
		return 2
	}

	cfg := core.SeedConfig()
	if *configPath != "" {
		var err error
		cfg, err = core.LoadConfig(*configPath)
		if err != nil {
			logger.Error("loading configuration failed", "path", *configPath, "err", err)
			return 1
		}
	}
	switch *role {
	case "":
	case "beacon":
		cfg.IsBeacon = true
	case "tag":
		cfg.IsBeacon = false
	default:
		logger.Error("unknown role", "role", *role)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return 1
	}

	var obs core.Observer = core.NoopObserver{}
	if *plot {
		w, err := dump.New(*plotDir, logger.For("dump"))
		if err != nil {
			logger.Error("creating plot dump directory failed", "err", err)
			return 1
		}
		obs = w
	}

	if *selfTest {
		return runSelfTest(ctx, cfg, obs, logger)
	}
	return runRole(ctx, cfg, obs, logger, *device, *pttChip, *pttLine)
}

func listAllDevices(ctx context.Context, logger *obslog.Logger) int {
	devices, err := radio.Discover(ctx, 3*time.Second)
	if err != nil {
		logger.Warn("device discovery incomplete", "err", err)
	}
	if sc, scErr := radio.NewSoundcard(); scErr == nil {
		if cards, cardsErr := sc.ListDevices(ctx); cardsErr == nil {
			devices = append(devices, cards...)
		}
		sc.Close()
	}

	if len(devices) == 0 {
		fmt.Println("no devices found")
		return 0
	}
	for i, d := range devices {
		fmt.Printf("%3d  %-10s %-20s %s\n", i, d.Driver, d.Serial, d.Label)
	}
	return 0
}

// runRole drives a single role over the sound card adapter, optionally
// wrapped in a GPIO PTT gate.
func runRole(ctx context.Context, cfg core.Config, obs core.Observer, logger *obslog.Logger, device int, pttChip string, pttLine int) int {
	sc, err := radio.NewSoundcard()
	if err != nil {
		logger.Error("opening sound system failed", "err", err)
		return 1
	}

	var rdo core.Radio = sc
	if pttChip != "" && pttLine >= 0 {
		gate, gateErr := radio.NewPTTGate(pttChip, pttLine)
		if gateErr != nil {
			logger.Error("requesting PTT gate failed", "err", gateErr)
			sc.Close()
			return 1
		}
		defer gate.Close()
		rdo = radio.NewGatedRadio(sc, gate, 1_000_000)
	}
	defer rdo.Close()

	serial := ""
	if device >= 0 {
		serial = strconv.Itoa(device)
	}
	if err := rdo.Connect(ctx, serial); err != nil {
		logger.Error("connecting to device failed", "err", err)
		return 1
	}
	if err := rdo.Configure(cfg.RadioConfig()); err != nil {
		logger.Error("configuring device failed", "err", err)
		return 1
	}

	spinner := obslog.NewSpinner(os.Stderr, 250*time.Millisecond)
	go spinner.Run(ctx.Done())
	defer spinner.Stop()

	if cfg.IsBeacon {
		stats, runErr := core.RunBeacon(ctx, rdo, cfg, obs, logger.For("beacon"))
		spinner.Stop()
		printSummary(stats)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Error("beacon terminated", "err", runErr)
			return 1
		}
		return 0
	}

	if _, err := rdo.Start(ctx); err != nil {
		logger.Error("starting streams failed", "err", err)
		return 1
	}
	if runErr := core.RunTag(ctx, rdo, cfg, obs, logger.For("tag")); runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("tag terminated", "err", runErr)
		return 1
	}
	return 0
}

// runSelfTest exercises the complete beacon+tag exchange over an
// in-memory simulated channel, with no hardware.
func runSelfTest(ctx context.Context, cfg core.Config, obs core.Observer, logger *obslog.Logger) int {
	ch := radio.NewSimChannel(radio.SimChannelConfig{
		SampleRate: cfg.SampleRateRx(),
		NoiseSigma: 0.02,
		HorizonNs:  4 * cfg.BurstPeriodNs(),
	})

	beaconCfg := cfg
	beaconCfg.IsBeacon = true
	tagCfg := cfg
	tagCfg.IsBeacon = false

	beacon := ch.Endpoint("beacon", 1)
	tag := ch.Endpoint("tag", 2)
	defer beacon.Close()
	defer tag.Close()

	for _, setup := range []struct {
		rdo *radio.Sim
		cfg core.Config
	}{{beacon, beaconCfg}, {tag, tagCfg}} {
		if err := setup.rdo.Configure(setup.cfg.RadioConfig()); err != nil {
			logger.Error("configuring simulated endpoint failed", "err", err)
			return 1
		}
		if _, err := setup.rdo.Start(ctx); err != nil {
			logger.Error("starting simulated endpoint failed", "err", err)
			return 1
		}
	}

	// Stop automatically once the beacon has a handful of measurements,
	// or on signal, whichever comes first.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	counting := &measurementCounter{Observer: obs, target: 10, reached: cancel}

	spinner := obslog.NewSpinner(os.Stderr, 250*time.Millisecond)
	go spinner.Run(runCtx.Done())
	defer spinner.Stop()

	var wg sync.WaitGroup
	var stats *core.Stats
	var beaconErr, tagErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, beaconErr = core.RunBeacon(runCtx, beacon, beaconCfg, counting, logger.For("beacon"))
	}()
	go func() {
		defer wg.Done()
		tagErr = core.RunTag(runCtx, tag, tagCfg, core.NoopObserver{}, logger.For("tag"))
	}()
	wg.Wait()
	spinner.Stop()

	printSummary(stats)
	for _, err := range []error{beaconErr, tagErr} {
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("self-test failed", "err", err)
			return 1
		}
	}
	return 0
}

// measurementCounter cancels the run after target measurements.
type measurementCounter struct {
	core.Observer
	target  int
	reached func()

	mu    sync.Mutex
	count int
}

func (m *measurementCounter) OnRangeMeasurement(ns int64) {
	m.Observer.OnRangeMeasurement(ns)
	m.mu.Lock()
	m.count++
	hit := m.count >= m.target
	m.mu.Unlock()
	if hit {
		m.reached()
	}
}

func printSummary(stats *core.Stats) {
	if stats == nil {
		return
	}
	found, missed := stats.FoundMissed()
	obslog.Summary(os.Stdout, found, missed, stats.Average(), stats.Min(), stats.Max())
}
