package core

import "context"

// Radio adapter contract. The core never talks to hardware
// directly; it depends only on this interface, which external
// collaborators (device enumeration, gain/antenna/frequency
// configuration, vendor quirks) are responsible for implementing.

// DeviceInfo describes one discoverable radio device, as returned by
// Radio.ListDevices.
type DeviceInfo struct {
	Driver string
	Serial string
	Label  string
	Extra  map[string]string
}

// RadioConfig is the subset of Config (see config.go) a Radio needs in
// order to configure its streams. It is passed verbatim so an adapter
// never needs to import the orchestrator's Config type.
type RadioConfig struct {
	PingFrequencyHz float64
	PongFrequencyHz float64
	TxGainDb        float64 // -1 => driver default
	RxGainDb        float64
	TxBandwidthHz   float64
	RxBandwidthHz   float64
	FClkHz          float64
	NovsTx          int
	NovsRx          int
	DTx             int
	DRx             int
	AntennaTx       string
	AntennaRx       string
	IsBeacon        bool
	TimeoutSeconds  float64
}

// Radio is the contract the ranging core requires from a radio driver
// abstraction. Implementations live in package radio, never in core.
type Radio interface {
	// Connect attaches to a specific device (by serial) or the sole
	// available device if serial is empty.
	Connect(ctx context.Context, serial string) error

	// ListDevices enumerates devices visible to this adapter.
	ListDevices(ctx context.Context) ([]DeviceInfo, error)

	// Configure applies cfg to the not-yet-started device.
	Configure(cfg RadioConfig) error

	// Start activates TX and RX streams, anchors the device clock at 0,
	// and returns the device tick observed at activation.
	Start(ctx context.Context) (ticksNow int64, err error)

	// Write schedules a complex-float TX burst at absolute device-ns
	// and returns the number of samples actually accepted along with a
	// status code.
	Write(ctx context.Context, burst []complex128, scheduleNs int64) (nSent int, status IOStatus, err error)

	// Read blocks for up to the configured timeout, filling out with up
	// to len(out) complex samples, and returns how many were read along
	// with the device-clock nanosecond capture time of out[0].
	Read(ctx context.Context, out []complex128) (nRead int, captureNs int64, status IOStatus, err error)

	// CurrentTicks returns the device tick counter's present value.
	CurrentTicks(ctx context.Context) (int64, error)

	// Close releases the device. Idempotent.
	Close() error
}
