package core

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the immutable configuration record, populated once per run
// from a YAML file and never mutated afterward.
type Config struct {
	PingFrequencyHz float64 `yaml:"ping_frequency"`
	PongFrequencyHz float64 `yaml:"pong_frequency"`
	TxGainDb        float64 `yaml:"tx_gain"`
	RxGainDb        float64 `yaml:"rx_gain"`
	TxBandwidthHz   float64 `yaml:"tx_bw"`
	RxBandwidthHz   float64 `yaml:"rx_bw"`

	FClkHz float64 `yaml:"f_clk"`
	NovsTx int     `yaml:"novs_tx"`
	NovsRx int     `yaml:"novs_rx"`
	DTx    int     `yaml:"d_tx"`
	DRx    int     `yaml:"d_rx"`

	AntennaTx string `yaml:"antenna_tx"`
	AntennaRx string `yaml:"antenna_rx"`

	BurstPeriodSeconds float64 `yaml:"burst_period"`
	TxBurstLengthChip  int     `yaml:"tx_burst_length_chip"`
	ExtraSamplesFilter float64 `yaml:"extra_samples_filter"`

	PingScrCode int `yaml:"ping_scr_code"`
	PongScrCode int `yaml:"pong_scr_code"`

	ThresholdFactor float64 `yaml:"threshold_factor"`
	MaxSyncError    int     `yaml:"max_sync_error"`
	MinPeakDistance int     `yaml:"min_peak_distance"`
	NumOfPingTries  int     `yaml:"num_of_ping_tries"`
	PingBurstGuard  int     `yaml:"ping_burst_guard"`

	PongDelaySeconds           float64 `yaml:"pong_delay"`
	PongDelayProcessingSeconds float64 `yaml:"pong_delay_processing"`
	PongPosOffset              int     `yaml:"pong_pos_offset"`

	IsBeacon bool `yaml:"is_beacon"`

	TimeoutSeconds      float64 `yaml:"timeout"`
	TimeInFutureSeconds float64 `yaml:"time_in_future"`
}

// SeedConfig returns the default configuration, useful as a base for
// tests and for --self-test.
func SeedConfig() Config {
	return Config{
		PingFrequencyHz:     2.45e9,
		PongFrequencyHz:     2.45e9,
		TxGainDb:            -1,
		RxGainDb:            -1,
		TxBandwidthHz:       -1,
		RxBandwidthHz:       -1,
		FClkHz:              122.88e6,
		NovsTx:              2,
		NovsRx:              2,
		DTx:                 16,
		DRx:                 16,
		AntennaTx:           "TX",
		AntennaRx:           "RX",
		BurstPeriodSeconds:  10e-3,
		TxBurstLengthChip:   512,
		ExtraSamplesFilter:  extraSamplesFilter,
		PingScrCode:         2,
		PongScrCode:         12,
		ThresholdFactor:     8,
		MaxSyncError:        5,
		MinPeakDistance:     8,
		NumOfPingTries:      5,
		PingBurstGuard:      16,
		PongDelaySeconds:    5e-3,
		IsBeacon:            true,
		TimeoutSeconds:      1.0,
		TimeInFutureSeconds: 0.1,
	}
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, ConfigError("parsing config file: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the startup checks: Novs must be one of {2,4,8},
// D must divide f_clk evenly, and the other fields must be
// positive/sane. The process must refuse to start if Validate returns
// an error.
func (c Config) Validate() error {
	if err := validateOvsFactor(c.NovsTx); err != nil {
		return err
	}
	if err := validateOvsFactor(c.NovsRx); err != nil {
		return err
	}
	if c.FClkHz <= 0 {
		return ConfigError("f_clk must be positive")
	}
	if c.DTx <= 0 || c.DRx <= 0 {
		return ConfigError("d_tx/d_rx must be positive")
	}
	if int64(c.FClkHz)%int64(c.DTx) != 0 {
		return ConfigError("d_tx must evenly divide f_clk")
	}
	if int64(c.FClkHz)%int64(c.DRx) != 0 {
		return ConfigError("d_rx must evenly divide f_clk")
	}
	if c.BurstPeriodSeconds <= 0 {
		return ConfigError("burst_period must be positive")
	}
	if c.TxBurstLengthChip <= 0 {
		return ConfigError("tx_burst_length_chip must be positive")
	}
	if c.ThresholdFactor <= 0 {
		return ConfigError("threshold_factor must be positive")
	}
	if c.MaxSyncError < 0 {
		return ConfigError("max_sync_error must be non-negative")
	}
	if c.NumOfPingTries <= 0 {
		return ConfigError("num_of_ping_tries must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return ConfigError("timeout must be positive")
	}
	if c.PingScrCode == c.PongScrCode {
		return ConfigError("ping_scr_code and pong_scr_code must differ")
	}
	return nil
}

func validateOvsFactor(novs int) error {
	switch novs {
	case 2, 4, 8:
		return nil
	default:
		return ConfigError("oversampling factor must be one of {2,4,8}")
	}
}

// SampleRateRx returns f_rx = f_clk / D_rx.
func (c Config) SampleRateRx() float64 { return c.FClkHz / float64(c.DRx) }

// SampleRateTx returns f_tx = f_clk / D_tx.
func (c Config) SampleRateTx() float64 { return c.FClkHz / float64(c.DTx) }

// BurstPeriodNs returns the burst period in nanoseconds.
func (c Config) BurstPeriodNs() int64 { return int64(c.BurstPeriodSeconds * nanosPerSecond) }

// TicksPerPeriod returns the number of device-clock ticks in one burst
// period.
func (c Config) TicksPerPeriod() int64 {
	return NsToTicks(c.BurstPeriodNs(), c.FClkHz)
}

// RxSamplesPerPeriod returns the number of RX samples in one burst
// period, at f_rx.
func (c Config) RxSamplesPerPeriod() int {
	return int(c.BurstPeriodSeconds * c.SampleRateRx())
}

// TxBurstLengthSamples returns the shaped TX burst length, in TX
// samples, for the configured chip count and NovsTx.
func (c Config) TxBurstLengthSamples() int {
	return ShapedLength(c.TxBurstLengthChip, c.NovsTx)
}

// RxBurstLengthSamples is the burst's length when observed at the RX
// sample rate, used to size detector guard windows against RX traces.
func (c Config) RxBurstLengthSamples() int {
	return ShapedLength(c.TxBurstLengthChip, c.NovsRx)
}

// DetectorConfig extracts the subset of Config the burst detector
// needs.
func (c Config) DetectorConfig() DetectorConfig {
	return DetectorConfig{
		ThresholdFactor:    c.ThresholdFactor,
		BurstPeriodSamples: c.RxSamplesPerPeriod(),
		MaxSyncError:       c.MaxSyncError,
		MinPeakDistance:    c.MinPeakDistance,
		TxBurstLength:      c.RxBurstLengthSamples(),
		PingBurstGuard:     c.PingBurstGuard,
	}
}

// RadioConfig extracts the subset of Config a Radio adapter needs.
func (c Config) RadioConfig() RadioConfig {
	return RadioConfig{
		PingFrequencyHz: c.PingFrequencyHz,
		PongFrequencyHz: c.PongFrequencyHz,
		TxGainDb:        c.TxGainDb,
		RxGainDb:        c.RxGainDb,
		TxBandwidthHz:   c.TxBandwidthHz,
		RxBandwidthHz:   c.RxBandwidthHz,
		FClkHz:          c.FClkHz,
		NovsTx:          c.NovsTx,
		NovsRx:          c.NovsRx,
		DTx:             c.DTx,
		DRx:             c.DRx,
		AntennaTx:       c.AntennaTx,
		AntennaRx:       c.AntennaRx,
		IsBeacon:        c.IsBeacon,
		TimeoutSeconds:  c.TimeoutSeconds,
	}
}
