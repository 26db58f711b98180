package core

import (
	"context"
	"errors"
	"sync"
)

// Ranging orchestration: wires the code generator, pulse shaper,
// correlator, detector, and time base together with the Radio/Observer/
// Logger collaborators into the two ranging roles — the beacon's
// concurrent TX/RX tasks and the tag's single-threaded
// INITIAL_SYNC -> SEARCH_FOR_PING -> SEND_PONG loop.

// Tag state machine states.
const (
	tagInitialSync   = "INITIAL_SYNC"
	tagSearchForPing = "SEARCH_FOR_PING"
	tagSendPong      = "SEND_PONG"
)

// Beacon state machine states.
const (
	beaconTxEnabled = "TX_ENABLED"
	beaconAwaitPong = "AWAIT_PONG"
	beaconDone      = "DONE"
)

const burstScale = 1.0

// readWindow blocks until n complex samples have been accumulated from
// radio (retrying on recoverable statuses) or ctx is
// cancelled. The returned RXBuffer's CaptureNs is the device-ns
// timestamp of its first sample.
func readWindow(ctx context.Context, radio Radio, n int, rate float64, logger Logger) (RXBuffer, error) {
	out := make([]complex128, n)
	filled := 0
	var captureNs int64
	haveCapture := false

	for filled < n {
		if ctx.Err() != nil {
			return RXBuffer{}, ctx.Err()
		}
		nRead, ns, status, err := radio.Read(ctx, out[filled:])
		if err != nil {
			return RXBuffer{}, err
		}
		if status != StatusOK {
			if status.Recoverable() {
				logger.Warn("recoverable radio status on read", "status", status.String())
				continue
			}
			return RXBuffer{}, ClassifyStatus("read", status)
		}
		if !haveCapture && nRead > 0 {
			captureNs = ns
			haveCapture = true
		}
		filled += nRead
	}
	return RXBuffer{Samples: out, CaptureNs: captureNs, SampleRate: rate}, nil
}

// writeBurst schedules burst for transmission at scheduleNs,
// reanchoring past-due schedules by whole burst periods and retrying
// recoverable statuses.
func writeBurst(ctx context.Context, radio Radio, burst []complex128, scheduleNs int64, burstPeriodNs int64, logger Logger) (int64, error) {
	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		_, status, err := radio.Write(ctx, burst, scheduleNs)
		if err != nil {
			return 0, err
		}
		switch status {
		case StatusOK:
			return scheduleNs, nil
		case StatusTimeError:
			// Treated as SchedulingPast: the adapter reports its own
			// notion of "already past" via StatusTimeError since Write's
			// signature carries no separate past/future signal.
			logger.Warn("scheduled tx time already past, reanchoring", "scheduled_ns", scheduleNs)
			scheduleNs = ReanchorAfterPast(scheduleNs, scheduleNs, burstPeriodNs)
			continue
		default:
			if status.Recoverable() {
				logger.Warn("recoverable radio status on write", "status", status.String())
				continue
			}
			return 0, ClassifyStatus("write", status)
		}
	}
}

// RunTag drives the tag-side state machine until ctx is cancelled or an
// unrecoverable error occurs.
func RunTag(ctx context.Context, radio Radio, cfg Config, obs Observer, logger Logger) error {
	det := cfg.DetectorConfig()
	pingRef, err := GenerateBurst(cfg.PingScrCode, cfg.TxBurstLengthChip, cfg.NovsRx, burstScale)
	if err != nil {
		return err
	}
	pongBurst, err := GenerateBurst(cfg.PongScrCode, cfg.TxBurstLengthChip, cfg.NovsTx, burstScale)
	if err != nil {
		return err
	}

	state := tagInitialSync
	var anchorNs int64
	missStreak := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		switch state {
		case tagInitialSync:
			rx, err := readWindow(ctx, radio, 2*cfg.RxSamplesPerPeriod(), cfg.SampleRateRx(), logger)
			if err != nil {
				return err
			}
			obs.OnRxBuffer("ping-sync", rx)
			trace := Correlate(pingRef, rx.Samples)
			obs.OnCorrelationTrace("ping-sync", trace)

			ix, ok := DetectInitialSync(trace, det)
			if !ok {
				continue
			}
			anchorNs = IxToNsDevice(rx, ix)
			logger.Info("initial sync acquired", "anchor_ns", anchorNs)
			obs.OnStateTransition("tag", tagInitialSync, tagSearchForPing)
			state = tagSearchForPing

		case tagSearchForPing:
			rx, err := readWindow(ctx, radio, cfg.RxSamplesPerPeriod(), cfg.SampleRateRx(), logger)
			if err != nil {
				return err
			}
			expectedIx := ExpectedPingIx(rx, anchorNs, cfg.BurstPeriodNs())
			trace := Correlate(pingRef, rx.Samples)
			obs.OnCorrelationTrace("ping-track", trace)

			ix, ok := DetectSingleBurst(trace, expectedIx, det)
			if !ok {
				missStreak++
				logger.Warn("ping not detected", "miss_streak", missStreak)
				if missStreak >= cfg.NumOfPingTries {
					logger.Info("ping lost, returning to initial sync", "miss_streak", missStreak)
					obs.OnStateTransition("tag", tagSearchForPing, tagInitialSync)
					state = tagInitialSync
				}
				continue
			}
			missStreak = 0
			anchorNs = IxToNsDevice(rx, ix)
			logger.Info("ping tracked", "anchor_ns", anchorNs)
			obs.OnStateTransition("tag", tagSearchForPing, tagSendPong)
			state = tagSendPong

		case tagSendPong:
			txNs := anchorNs + int64((cfg.PongDelaySeconds+cfg.PongDelayProcessingSeconds)*nanosPerSecond)
			ticks, err := radio.CurrentTicks(ctx)
			if err != nil {
				return err
			}
			if nowNs := TicksToNs(ticks, cfg.FClkHz); CheckScheduledTime(txNs, nowNs) == ScheduleFailedPast {
				pastErr := &SchedulingPastErr{ScheduledNs: txNs, CurrentNs: nowNs}
				logger.Warn("pong schedule already past, reanchoring", "err", pastErr)
				txNs = ReanchorAfterPast(txNs, nowNs, cfg.BurstPeriodNs())
			}
			sentNs, err := writeBurst(ctx, radio, pongBurst, txNs, cfg.BurstPeriodNs(), logger)
			if err != nil {
				return err
			}
			logger.Info("pong sent", "tx_ns", sentNs)
			obs.OnStateTransition("tag", tagSendPong, tagSearchForPing)
			state = tagSearchForPing
		}
	}
}

// RunBeacon drives the beacon role: a TX task that emits PING bursts
// every burst period and an RX/detect task that looks for the
// corresponding PONG reply, coordinated only through shared. It returns
// once ctx is cancelled, joining both tasks before the caller closes
// the radio.
func RunBeacon(ctx context.Context, radio Radio, cfg Config, obs Observer, logger Logger) (*Stats, error) {
	stats := NewStats()
	shared := NewSharedState()

	if _, err := radio.Start(ctx); err != nil {
		return stats, err
	}

	pingBurst, err := GenerateBurst(cfg.PingScrCode, cfg.TxBurstLengthChip, cfg.NovsTx, burstScale)
	if err != nil {
		return stats, err
	}
	pongRef, err := GenerateBurst(cfg.PongScrCode, cfg.TxBurstLengthChip, cfg.NovsRx, burstScale)
	if err != nil {
		return stats, err
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- beaconTxTask(ctx, radio, cfg, shared, pingBurst, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- beaconRxTask(ctx, radio, cfg, shared, pongRef, obs, logger, stats)
	}()

	wg.Wait()
	close(errs)

	var firstErr error
	for e := range errs {
		if e != nil && firstErr == nil {
			firstErr = e
		}
	}
	return stats, firstErr
}

// beaconTxTask periodically schedules and emits PING bursts, publishing
// each burst's device-ns time to shared so the RX task can predict the
// reply window (last-writer-wins, no lock).
func beaconTxTask(ctx context.Context, radio Radio, cfg Config, shared *SharedState, pingBurst []complex128, logger Logger) error {
	leadNs := int64((cfg.TimeInFutureSeconds + 2*cfg.BurstPeriodSeconds) * nanosPerSecond)

	startTicks, err := radio.CurrentTicks(ctx)
	if err != nil {
		return err
	}
	nextNs := TicksToNs(startTicks, cfg.FClkHz) + leadNs
	burstPeriodNs := cfg.BurstPeriodNs()

	for {
		if ctx.Err() != nil || shared.Stopped() {
			return nil
		}
		txNs, err := writeBurst(ctx, radio, pingBurst, nextNs, burstPeriodNs, logger)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		shared.PublishTxNs(txNs)
		nextNs = txNs + burstPeriodNs
	}
}

// beaconRxTask continuously listens for the PONG reply to the most
// recently published PING, recording a round-trip measurement for every
// successful localization.
func beaconRxTask(ctx context.Context, radio Radio, cfg Config, shared *SharedState, pongRef []complex128, obs Observer, logger Logger, stats *Stats) error {
	det := cfg.DetectorConfig()
	rate := cfg.SampleRateRx()
	n := cfg.RxSamplesPerPeriod()

	for {
		if ctx.Err() != nil || shared.Stopped() {
			return nil
		}

		rx, err := readWindow(ctx, radio, n, rate, logger)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		lastTxNs := shared.LastTxNs()
		if lastTxNs == 0 {
			// No PING has been published yet; nothing to correlate against.
			continue
		}

		// The published TX runs ahead of the RX read cursor by the
		// scheduling horizon, so the reply position is only meaningful
		// modulo the burst period; ExpectedPongIx folds it into this
		// window.
		expectedPongNs := lastTxNs + int64(cfg.PongDelaySeconds*nanosPerSecond)
		expectedIx := ExpectedPongIx(rx, expectedPongNs, cfg.BurstPeriodNs(), cfg.PongPosOffset, cfg.RxSamplesPerPeriod())

		trace := Correlate(pongRef, rx.Samples)
		obs.OnCorrelationTrace("pong-track", trace)

		ix, ok := DetectSingleBurst(trace, expectedIx, det)
		if !ok {
			shared.RecordMiss()
			stats.RecordMissed()
			continue
		}

		pongNs := IxToNsDevice(rx, ix)
		roundTripNs := pongNs - lastTxNs
		if burstPeriodNs := cfg.BurstPeriodNs(); burstPeriodNs > 0 {
			roundTripNs %= burstPeriodNs
			if roundTripNs < 0 {
				roundTripNs += burstPeriodNs
			}
		}

		shared.RecordFound()
		stats.RecordFound()
		stats.AddRoundTrip(roundTripNs)
		obs.OnRangeMeasurement(roundTripNs)
		logger.Info("pong localized", "round_trip_ns", roundTripNs)
	}
}
