//go:build portaudio

package config

import "AirNFC/pkg/device"

func init() {
	backends["portaudio"] = func(c *Config) device.Device {
		return &device.PortAudio{BlockSize: c.Device.BlockSize}
	}
}
