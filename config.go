package main

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration, loaded once at
// startup from a YAML file and never mutated afterward.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	DSP        DSPYAMLConfig    `yaml:"dsp"`
	Sweep      SweepYAMLConfig  `yaml:"sweep"`
	Detector   DetectorConfig   `yaml:"detector"`
	Recording  RecordingConfig  `yaml:"recording"`
	Server     ServerConfig     `yaml:"server"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	MCP        MCPConfig        `yaml:"mcp"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig selects and configures the Device Source.
type DeviceConfig struct {
	Kind         string `yaml:"kind"` // "synthetic" or "rtp"
	SampleRate   uint32 `yaml:"sample_rate"`
	CenterHz     uint64 `yaml:"center_hz"`
	BlockSize    int    `yaml:"block_size"`
	RTPGroup     string `yaml:"rtp_group"`     // multicast group address for kind=="rtp"
	RTPInterface string `yaml:"rtp_interface"` // network interface name for the multicast join
	RTPPort      int    `yaml:"rtp_port"`
}

// DSPYAMLConfig is the YAML surface for DSPConfig; validated and copied
// into a DSPConfig at pipeline construction time.
type DSPYAMLConfig struct {
	FFTSize         int     `yaml:"fft_size"`
	Window          string  `yaml:"window"`
	OverlapFraction float64 `yaml:"overlap_fraction"`
	Averaging       string  `yaml:"averaging"`
	AverageCount    int     `yaml:"average_count"`
	AverageAlpha    float64 `yaml:"average_alpha"`
	OutputBins      int     `yaml:"output_bins"`
	DCRemovalEnable bool    `yaml:"dc_removal_enable"`
	DCRemovalPole   float64 `yaml:"dc_removal_pole"`
	PeakHoldEnable  bool    `yaml:"peak_hold_enable"`
	PeakHoldDecayDB float64 `yaml:"peak_hold_decay_db"`
}

// SweepYAMLConfig is the YAML surface for default sweep parameters; a
// sweep_start command may override any of these per-sweep.
type SweepYAMLConfig struct {
	UsableFraction float64 `yaml:"usable_fraction"`
	SettlingSkip   int      `yaml:"settling_skip"`
	AverageCount   int      `yaml:"average_count"`
}

// DetectorConfig governs the Signal Detector.
type DetectorConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ThresholdDB    float64 `yaml:"threshold_db"` // above noise floor
	FreqToleranceHz uint64 `yaml:"freq_tolerance_hz"`
	MaxMissCount   int     `yaml:"max_miss_count"`
}

// RecordingConfig governs the Recorder/Playback file layout and budget.
type RecordingConfig struct {
	Directory       string `yaml:"directory"`
	StorageBudgetMB int64  `yaml:"storage_budget_mb"`
	Compression     string `yaml:"compression"` // "none" or "zstd"
	FormatVersion   string `yaml:"format_version"`
}

// ServerConfig governs the WebSocket/JSON command surface.
type ServerConfig struct {
	Listen             string   `yaml:"listen"`
	MaxSessions         int      `yaml:"max_sessions"`
	CmdRateLimit        int      `yaml:"cmd_rate_limit"`        // commands/sec per session
	ConnRateLimit       int      `yaml:"conn_rate_limit"`       // new connections/sec per IP
	ClientQueueDepth    int      `yaml:"client_queue_depth"`
	TrustedProxyIPs     []string `yaml:"trusted_proxy_ips"`
	trustedProxyNets    []*net.IPNet
}

// PrometheusConfig governs metrics exposition.
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig governs the optional tracked-signal event publisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// MCPConfig governs the optional MCP tool surface.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig governs ambient logging verbosity.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// LoadConfig reads, parses, backfills defaults into, and validates a YAML
// config file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Server.parseTrustedProxyIPs(); err != nil {
		return nil, fmt.Errorf("failed to parse server.trusted_proxy_ips: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Device.Kind == "" {
		c.Device.Kind = "synthetic"
	}
	if c.Device.SampleRate == 0 {
		c.Device.SampleRate = 2_048_000
	}
	if c.Device.BlockSize == 0 {
		c.Device.BlockSize = 4096
	}
	if c.Device.RTPPort == 0 {
		c.Device.RTPPort = 5004
	}

	if c.DSP.FFTSize == 0 {
		c.DSP.FFTSize = 4096
	}
	if c.DSP.Window == "" {
		c.DSP.Window = "hanning"
	}
	// Note: overlap_fraction of 0 is valid (no overlap), so unlike the other
	// zero-value defaults here we can't distinguish "not specified" from
	// "explicitly 0" after YAML unmarshal. Leave it as-is; operators who
	// want 0.5 must say so.
	if c.DSP.Averaging == "" {
		c.DSP.Averaging = "exponential"
	}
	if c.DSP.AverageCount == 0 {
		c.DSP.AverageCount = 8
	}
	if c.DSP.AverageAlpha == 0 {
		c.DSP.AverageAlpha = 0.2
	}
	if c.DSP.DCRemovalPole == 0 {
		c.DSP.DCRemovalPole = 0.995
	}
	if c.DSP.PeakHoldDecayDB == 0 {
		c.DSP.PeakHoldDecayDB = 3.0
	}

	if c.Sweep.UsableFraction == 0 {
		c.Sweep.UsableFraction = 0.8
	}
	if c.Sweep.SettlingSkip == 0 {
		c.Sweep.SettlingSkip = 2
	}
	if c.Sweep.AverageCount == 0 {
		c.Sweep.AverageCount = 4
	}

	if c.Detector.ThresholdDB == 0 {
		c.Detector.ThresholdDB = 10.0
	}
	if c.Detector.FreqToleranceHz == 0 {
		c.Detector.FreqToleranceHz = 500
	}
	if c.Detector.MaxMissCount == 0 {
		c.Detector.MaxMissCount = 3
	}

	if c.Recording.Directory == "" {
		c.Recording.Directory = "recordings"
	}
	if c.Recording.StorageBudgetMB == 0 {
		c.Recording.StorageBudgetMB = 1024
	}
	if c.Recording.Compression == "" {
		c.Recording.Compression = "none"
	}
	if c.Recording.FormatVersion == "" {
		c.Recording.FormatVersion = "1.0.0"
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8090"
	}
	if c.Server.MaxSessions == 0 {
		c.Server.MaxSessions = 64
	}
	if c.Server.CmdRateLimit == 0 {
		c.Server.CmdRateLimit = 10
	}
	if c.Server.ConnRateLimit == 0 {
		c.Server.ConnRateLimit = 2
	}
	if c.Server.ClientQueueDepth == 0 {
		c.Server.ClientQueueDepth = 32
	}

	if c.Prometheus.Listen == "" {
		c.Prometheus.Listen = ":9091"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "spectrumd/signals"
	}
	if c.MCP.Listen == "" {
		c.MCP.Listen = ":8091"
	}
}

// Validate checks field combinations that applyDefaults cannot repair.
func (c *Config) Validate() error {
	if c.Device.Kind != "synthetic" && c.Device.Kind != "rtp" {
		return newStatusError(ErrInvalidConfig, "config.Validate", "device.kind must be synthetic or rtp", nil)
	}
	if c.Device.Kind == "rtp" && c.Device.RTPGroup == "" {
		return newStatusError(ErrInvalidConfig, "config.Validate", "device.rtp_group required when device.kind=rtp", nil)
	}
	if c.DSP.FFTSize <= 0 || c.DSP.FFTSize&(c.DSP.FFTSize-1) != 0 {
		return newStatusError(ErrInvalidConfig, "config.Validate", "dsp.fft_size must be a positive power of two", nil)
	}
	if c.Sweep.UsableFraction <= 0 || c.Sweep.UsableFraction > 1 {
		return newStatusError(ErrInvalidConfig, "config.Validate", "sweep.usable_fraction must be in (0, 1]", nil)
	}
	if c.Recording.Compression != "none" && c.Recording.Compression != "zstd" {
		return newStatusError(ErrInvalidConfig, "config.Validate", "recording.compression must be none or zstd", nil)
	}
	return nil
}

func (sc *ServerConfig) parseTrustedProxyIPs() error {
	sc.trustedProxyNets = nil
	for _, s := range sc.TrustedProxyIPs {
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			ip := net.ParseIP(s)
			if ip == nil {
				return fmt.Errorf("invalid IP/CIDR %q: %w", s, err)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		sc.trustedProxyNets = append(sc.trustedProxyNets, ipnet)
	}
	return nil
}

// IsTrustedProxy reports whether ipStr falls within a configured trusted
// proxy range.
func (sc *ServerConfig) IsTrustedProxy(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range sc.trustedProxyNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func windowKindFromString(s string) WindowKind {
	switch s {
	case "hanning", "hann":
		return WindowHanning
	case "blackman":
		return WindowBlackman
	case "blackman_harris":
		return WindowBlackmanHarris
	case "flat_top":
		return WindowFlatTop
	case "kaiser_6":
		return WindowKaiser6
	case "kaiser_10":
		return WindowKaiser10
	case "kaiser_14":
		return WindowKaiser14
	default:
		return WindowRectangular
	}
}

func averagingModeFromString(s string) AveragingMode {
	switch s {
	case "linear":
		return AveragingLinear
	case "exponential":
		return AveragingExponential
	default:
		return AveragingNone
	}
}

// DSPConfigFromYAML converts the YAML surface into the runtime DSPConfig.
func DSPConfigFromYAML(y DSPYAMLConfig) DSPConfig {
	return DSPConfig{
		FFTSize:         y.FFTSize,
		Window:          windowKindFromString(y.Window),
		OverlapFraction: y.OverlapFraction,
		Averaging:       averagingModeFromString(y.Averaging),
		AverageCount:    y.AverageCount,
		AverageAlpha:    y.AverageAlpha,
		OutputBins:      y.OutputBins,
		DCRemovalEnable: y.DCRemovalEnable,
		DCRemovalPole:   y.DCRemovalPole,
		PeakHoldEnable:  y.PeakHoldEnable,
		PeakHoldDecayDB: y.PeakHoldDecayDB,
	}
}
