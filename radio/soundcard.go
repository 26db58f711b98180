package radio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/wittra-tof/rangecore/core"
)

const soundcardChunkFrames = 1024

// Soundcard adapts a full-duplex sound card to the core.Radio contract,
// carrying the I/Q pair on the left/right channels of a stereo stream.
// It exists for bench rigs: two machines (or two cards) wired
// back-to-back run the complete ranging exchange with no SDR hardware,
// at audio rates.
//
// The device clock is synthesized from the sample counters: sample 0 of
// the RX stream is ns 0, and TX schedules are honored by padding the
// output stream with silence up to the scheduled sample position. The
// input and output streams are opened independently so the beacon's TX
// and RX tasks never block each other inside the driver.
type Soundcard struct {
	mu     sync.Mutex
	cfg    core.RadioConfig
	inDev  *portaudio.DeviceInfo
	outDev *portaudio.DeviceInfo

	rxStream *portaudio.Stream
	txStream *portaudio.Stream
	rxBack   []int16   // interleaved I/Q backing store
	txBack   []float32 // interleaved I/Q backing store
	rxBuf    []int16   // resliced from rxBack per Read call
	txBuf    []float32 // resliced from txBack per Write call

	rxRead    int64 // total RX frames consumed
	txWritten int64 // total TX frames emitted
	started   bool
	closed    bool
}

var _ core.Radio = (*Soundcard)(nil)

// NewSoundcard initializes PortAudio and returns an unconnected
// adapter. Close releases the PortAudio instance.
func NewSoundcard() (*Soundcard, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &core.DriverFatalErr{Op: "portaudio init", Status: core.StatusStreamError, Cause: err}
	}
	return &Soundcard{}, nil
}

// Connect selects the capture/playback device. serial may be empty (the
// defaults), a device index, or a substring of the device name.
func (s *Soundcard) Connect(_ context.Context, serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if serial == "" {
		in, err := portaudio.DefaultInputDevice()
		if err != nil {
			return &core.DriverFatalErr{Op: "default input device", Status: core.StatusStreamError, Cause: err}
		}
		out, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return &core.DriverFatalErr{Op: "default output device", Status: core.StatusStreamError, Cause: err}
		}
		s.inDev, s.outDev = in, out
		return nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return &core.DriverFatalErr{Op: "enumerating devices", Status: core.StatusStreamError, Cause: err}
	}
	if ix, err := strconv.Atoi(serial); err == nil && ix >= 0 && ix < len(devices) {
		s.inDev, s.outDev = devices[ix], devices[ix]
		return nil
	}
	for _, d := range devices {
		if d.MaxInputChannels >= 2 && d.MaxOutputChannels >= 2 &&
			strings.Contains(strings.ToLower(d.Name), strings.ToLower(serial)) {
			s.inDev, s.outDev = d, d
			return nil
		}
	}
	return &core.DriverFatalErr{Op: "connect", Status: core.StatusStreamError,
		Cause: fmt.Errorf("no sound device matching %q", serial)}
}

func (s *Soundcard) ListDevices(context.Context) ([]core.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &core.DriverFatalErr{Op: "enumerating devices", Status: core.StatusStreamError, Cause: err}
	}
	var out []core.DeviceInfo
	for i, d := range devices {
		out = append(out, core.DeviceInfo{
			Driver: "soundcard",
			Serial: strconv.Itoa(i),
			Label:  d.Name,
			Extra: map[string]string{
				"host_api":     d.HostApi.Name,
				"max_in":       strconv.Itoa(d.MaxInputChannels),
				"max_out":      strconv.Itoa(d.MaxOutputChannels),
				"default_rate": strconv.FormatFloat(d.DefaultSampleRate, 'f', 0, 64),
			},
		})
	}
	return out, nil
}

// Configure records the stream parameters. A sound card has no divided
// master clock; the derived f_clk/D rate must be one the card supports.
func (s *Soundcard) Configure(cfg core.RadioConfig) error {
	if cfg.FClkHz/float64(cfg.DRx) != cfg.FClkHz/float64(cfg.DTx) {
		return core.ConfigError("soundcard: TX and RX sample rates must match")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// Start opens and starts the input and output streams and anchors the
// device clock at sample 0.
func (s *Soundcard) Start(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return s.ticksLocked(), nil
	}
	if s.inDev == nil || s.outDev == nil {
		return 0, &core.DriverFatalErr{Op: "start", Status: core.StatusStreamError,
			Cause: errors.New("not connected")}
	}

	rate := s.sampleRate()
	s.rxBack = make([]int16, 2*soundcardChunkFrames)
	s.txBack = make([]float32, 2*soundcardChunkFrames)
	s.rxBuf = s.rxBack
	s.txBuf = s.txBack

	inParams := portaudio.HighLatencyParameters(s.inDev, nil)
	inParams.Input.Channels = 2
	inParams.SampleRate = rate
	inParams.FramesPerBuffer = portaudio.FramesPerBufferUnspecified
	rxStream, err := portaudio.OpenStream(inParams, &s.rxBuf)
	if err != nil {
		return 0, &core.DriverFatalErr{Op: "opening rx stream", Status: core.StatusStreamError, Cause: err}
	}

	outParams := portaudio.HighLatencyParameters(nil, s.outDev)
	outParams.Output.Channels = 2
	outParams.SampleRate = rate
	outParams.FramesPerBuffer = portaudio.FramesPerBufferUnspecified
	txStream, err := portaudio.OpenStream(outParams, &s.txBuf)
	if err != nil {
		rxStream.Close()
		return 0, &core.DriverFatalErr{Op: "opening tx stream", Status: core.StatusStreamError, Cause: err}
	}

	if err := rxStream.Start(); err != nil {
		rxStream.Close()
		txStream.Close()
		return 0, &core.DriverFatalErr{Op: "starting rx stream", Status: core.StatusStreamError, Cause: err}
	}
	if err := txStream.Start(); err != nil {
		rxStream.Stop()
		rxStream.Close()
		txStream.Close()
		return 0, &core.DriverFatalErr{Op: "starting tx stream", Status: core.StatusStreamError, Cause: err}
	}

	s.rxStream, s.txStream = rxStream, txStream
	s.rxRead, s.txWritten = 0, 0
	s.started = true
	return 0, nil
}

func (s *Soundcard) sampleRate() float64 {
	return s.cfg.FClkHz / float64(s.cfg.DRx)
}

func (s *Soundcard) ticksLocked() int64 {
	ns := int64(float64(s.rxRead) / s.sampleRate() * 1e9)
	return core.NsToTicks(ns, s.cfg.FClkHz)
}

// Write pads the output stream with silence up to the scheduled sample
// position, then emits the burst. Schedules already behind the TX write
// cursor come back as TIME_ERROR for the orchestrator to reanchor.
func (s *Soundcard) Write(ctx context.Context, burst []complex128, scheduleNs int64) (int, core.IOStatus, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return 0, core.StatusStreamError, nil
	}
	target := int64(float64(scheduleNs) * s.sampleRate() / 1e9)
	if target < s.txWritten {
		s.mu.Unlock()
		return 0, core.StatusTimeError, nil
	}
	s.mu.Unlock()

	// Silence up to the scheduled position.
	for {
		s.mu.Lock()
		gap := target - s.txWritten
		s.mu.Unlock()
		if gap <= 0 {
			break
		}
		if ctx.Err() != nil {
			return 0, core.StatusOK, ctx.Err()
		}
		n := int(gap)
		if n > soundcardChunkFrames {
			n = soundcardChunkFrames
		}
		for i := 0; i < 2*n; i++ {
			s.txBack[i] = 0
		}
		if status := s.pushFrames(n); status != core.StatusOK {
			return 0, status, nil
		}
	}

	sent := 0
	for sent < len(burst) {
		if ctx.Err() != nil {
			return sent, core.StatusOK, ctx.Err()
		}
		n := len(burst) - sent
		if n > soundcardChunkFrames {
			n = soundcardChunkFrames
		}
		for i := 0; i < n; i++ {
			s.txBack[2*i] = float32(real(burst[sent+i]))
			s.txBack[2*i+1] = float32(imag(burst[sent+i]))
		}
		if status := s.pushFrames(n); status != core.StatusOK {
			return sent, status, nil
		}
		sent += n
	}
	return sent, core.StatusOK, nil
}

// pushFrames writes the first n frames of txBack to the output stream.
func (s *Soundcard) pushFrames(n int) core.IOStatus {
	s.txBuf = s.txBack[:2*n]
	err := s.txStream.Write()
	s.mu.Lock()
	s.txWritten += int64(n)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, portaudio.OutputUnderflowed) {
			return core.StatusUnderflow
		}
		return core.StatusStreamError
	}
	return core.StatusOK
}

// Read fills out with captured I/Q samples and returns the synthesized
// capture timestamp of out[0]. The int16-to-float conversion keeps the
// raw integer values, which is lossless.
func (s *Soundcard) Read(ctx context.Context, out []complex128) (int, int64, core.IOStatus, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return 0, 0, core.StatusStreamError, nil
	}
	captureNs := int64(float64(s.rxRead) / s.sampleRate() * 1e9)
	s.mu.Unlock()

	filled := 0
	for filled < len(out) {
		if ctx.Err() != nil {
			return filled, captureNs, core.StatusOK, ctx.Err()
		}
		n := len(out) - filled
		if n > soundcardChunkFrames {
			n = soundcardChunkFrames
		}
		s.rxBuf = s.rxBack[:2*n]
		if err := s.rxStream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				return filled, captureNs, core.StatusOverflow, nil
			}
			return filled, captureNs, core.StatusStreamError, nil
		}
		for i := 0; i < n; i++ {
			out[filled+i] = complex(float64(s.rxBack[2*i]), float64(s.rxBack[2*i+1]))
		}
		s.mu.Lock()
		s.rxRead += int64(n)
		s.mu.Unlock()
		filled += n
	}
	return filled, captureNs, core.StatusOK, nil
}

func (s *Soundcard) CurrentTicks(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0, nil
	}
	return s.ticksLocked(), nil
}

// Close stops the streams and releases PortAudio. Idempotent.
func (s *Soundcard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.rxStream != nil {
		s.rxStream.Stop()
		s.rxStream.Close()
	}
	if s.txStream != nil {
		s.txStream.Stop()
		s.txStream.Close()
	}
	s.started = false
	return portaudio.Terminate()
}
