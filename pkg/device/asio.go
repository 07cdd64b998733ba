//go:build windows

package device

import "github.com/xsjk/go-asio"

// ASIOMono drives one input and one output channel of an ASIO driver. ASIO
// samples are int32; they are converted to float32 around the callback.
type ASIOMono struct {
	DeviceName string
	SampleRate float64
	InChannel  int
	OutChannel int
	device     asio.Device
	in         []float32
	out        []float32
	started    bool
}

func (a *ASIOMono) Start(callback Callback) error {
	sampleRate := a.SampleRate
	if sampleRate == 0 {
		sampleRate = SampleRate
	}
	a.device.Load(a.DeviceName)
	a.device.SetSampleRate(sampleRate)
	a.device.Open()
	a.device.Start(func(in, out [][]int32) {
		src, dst := in[a.InChannel], out[a.OutChannel]
		if len(a.in) != len(src) {
			a.in = allocf32(len(src))
			a.out = allocf32(len(dst))
		}
		i32tof32(src, a.in)
		clearf32(a.out)
		callback(a.in, a.out)
		f32toi32(a.out, dst)
	})
	a.started = true
	return nil
}

func (a *ASIOMono) Stop() {
	if !a.started {
		return
	}
	a.started = false
	a.device.Stop()
	a.device.Close()
	a.device.Unload()
}
