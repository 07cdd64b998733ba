//go:build windows

package config

import "AirNFC/pkg/device"

func init() {
	backends["asio"] = func(c *Config) device.Device {
		return &device.ASIOMono{
			DeviceName: c.Device.DeviceName,
			SampleRate: device.SampleRate,
		}
	}
}
