// Package config loads the YAML configuration of the AirNFC tools and
// builds the library objects from it.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"AirNFC/pkg/airnfc"
	"AirNFC/pkg/async"
	"AirNFC/pkg/device"
	"AirNFC/pkg/engine"
	"AirNFC/pkg/modem"
	"AirNFC/pkg/ofdm"
	"AirNFC/pkg/port"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	Device struct {
		Backend    string `yaml:"backend"`
		DeviceName string `yaml:"device_name"`
		BlockSize  int    `yaml:"block_size"`
	} `yaml:"device"`

	Port struct {
		MaxOverruns int `yaml:"max_overruns"`
	} `yaml:"port"`

	Discovery struct {
		PilotInterval      int `yaml:"pilot_interval"`
		RequiredDetections int `yaml:"required_detections"`
	} `yaml:"discovery"`

	Decoder struct {
		MinConfidence float64 `yaml:"min_confidence"`
	} `yaml:"decoder"`

	Engine struct {
		NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
	} `yaml:"engine"`

	AirNFC struct {
		MaxWriteSize int `yaml:"max_write_size"`
		OutboxSize   int `yaml:"outbox_size"`
	} `yaml:"airnfc"`

	Tun struct {
		Name string `yaml:"name"`
		MTU  int    `yaml:"mtu"`
		IP   string `yaml:"ip"`
		Peer string `yaml:"peer"`
	} `yaml:"tun"`
}

func Default() *Config {
	c := &Config{LogLevel: "info"}
	c.Device.Backend = "malgo"
	c.Device.BlockSize = device.BufferSize
	c.Port.MaxOverruns = port.DefaultMaxOverruns
	c.Discovery.PilotInterval = modem.DefaultPilotInterval
	c.Discovery.RequiredDetections = modem.DefaultRequiredDetections
	c.Decoder.MinConfidence = ofdm.DefaultMinConfidence
	c.Engine.NegotiationTimeout = engine.DefaultNegotiationTimeout
	c.AirNFC.MaxWriteSize = airnfc.DefaultMaxWriteSize
	c.AirNFC.OutboxSize = modem.DefaultOutboxSize
	c.Tun.Name = "airnfc0"
	c.Tun.MTU = 512
	return c
}

// Load reads filename over the defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if _, ok := backends[c.Device.Backend]; !ok {
		return fmt.Errorf("config: unknown device backend %q (have %v)", c.Device.Backend, Backends())
	}
	if c.Device.BlockSize != device.BufferSize {
		return fmt.Errorf("config: block size must be %d, got %d", device.BufferSize, c.Device.BlockSize)
	}
	if c.Decoder.MinConfidence < 0 || c.Decoder.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence %v outside [0, 1]", c.Decoder.MinConfidence)
	}
	if c.AirNFC.MaxWriteSize <= 0 {
		return fmt.Errorf("config: max_write_size must be positive")
	}
	if c.Tun.MTU <= 0 || c.Tun.MTU > c.AirNFC.MaxWriteSize {
		return fmt.Errorf("config: tun mtu %d outside (0, %d]", c.Tun.MTU, c.AirNFC.MaxWriteSize)
	}
	return nil
}

var backends = map[string]func(c *Config) device.Device{
	"malgo": func(c *Config) device.Device {
		return &device.Malgo{BlockSize: c.Device.BlockSize}
	},
	"loopback": func(c *Config) device.Device {
		return &device.Loopback{SampleRate: device.SampleRate, BlockSize: c.Device.BlockSize}
	},
}

// Backends lists the device backends compiled into this binary.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewDevice(c *Config) (device.Device, error) {
	build, ok := backends[c.Device.Backend]
	if !ok {
		return nil, fmt.Errorf("config: unknown device backend %q", c.Device.Backend)
	}
	return build(c), nil
}

func NewAirNFC(c *Config, exec async.Executor) (*airnfc.AirNFC, error) {
	dev, err := NewDevice(c)
	if err != nil {
		return nil, err
	}
	return airnfc.New(airnfc.Config{
		Device:   dev,
		Executor: exec,
		Discovery: modem.DiscovererConfig{
			PilotInterval:      c.Discovery.PilotInterval,
			RequiredDetections: c.Discovery.RequiredDetections,
		},
		MinConfidence:      c.Decoder.MinConfidence,
		NegotiationTimeout: c.Engine.NegotiationTimeout,
		MaxOverruns:        c.Port.MaxOverruns,
		MaxWriteSize:       c.AirNFC.MaxWriteSize,
		OutboxSize:         c.AirNFC.OutboxSize,
	}), nil
}
