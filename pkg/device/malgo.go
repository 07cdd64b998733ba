package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"

	"AirNFC/internal/log"
)

const bytesPerFloat32 = 4

// Malgo is the default sound card backend: one duplex miniaudio device with
// mono float32 capture and playback.
type Malgo struct {
	SampleRate int // 0 means SampleRate
	BlockSize  int // 0 means BufferSize

	mu          sync.Mutex
	ctx         *malgo.AllocatedContext
	device      *malgo.Device
	onInterrupt atomic.Pointer[func()]
	stopping    atomic.Bool

	// only touched by the miniaudio thread while running
	pending []float32
	played  []float32
	in      []float32
	out     []float32
}

func (m *Malgo) SetInterruptHandler(f func()) {
	m.onInterrupt.Store(&f)
}

func (m *Malgo) Start(callback Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return errors.New("device: malgo already started")
	}

	sampleRate, blockSize := m.SampleRate, m.BlockSize
	if sampleRate == 0 {
		sampleRate = SampleRate
	}
	if blockSize == 0 {
		blockSize = BufferSize
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(blockSize)
	deviceConfig.Alsa.NoMMap = 1

	m.in = allocf32(blockSize)
	m.out = allocf32(blockSize)
	m.pending = m.pending[:0]
	m.played = m.played[:0]

	// miniaudio may deliver periods of any size; regroup them into blocks of
	// exactly blockSize samples, which costs one block of extra latency
	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		input := bytesAsFloat32(pInputSamples)
		output := bytesAsFloat32(pOutputSample)

		m.pending = append(m.pending, input...)
		for len(m.pending) >= blockSize {
			copy(m.in, m.pending[:blockSize])
			m.pending = m.pending[:copy(m.pending, m.pending[blockSize:])]
			clearf32(m.out)
			callback(m.in, m.out)
			m.played = append(m.played, m.out...)
		}

		n := copy(output, m.played)
		clearf32(output[n:])
		m.played = m.played[:copy(m.played, m.played[n:])]
	}

	// miniaudio calls this on the device thread for Stop too
	onStop := func() {
		if m.stopping.Load() {
			return
		}
		if handler := m.onInterrupt.Load(); handler != nil && *handler != nil {
			(*handler)()
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
		Stop: onStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to initialize duplex device: %w", err)
	}

	m.stopping.Store(false)
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.ctx = ctx
	m.device = device
	log.Info("audio device started", "backend", "malgo", "sample_rate", sampleRate, "block_size", blockSize)
	return nil
}

// Stop blocks until miniaudio stopped calling back.
func (m *Malgo) Stop() {
	m.mu.Lock()
	device, ctx := m.device, m.ctx
	m.device, m.ctx = nil, nil
	m.stopping.Store(true)
	m.mu.Unlock()

	if device == nil {
		return
	}
	if err := device.Stop(); err != nil {
		log.Warn("failed to stop device", "backend", "malgo", "error", err)
	}
	device.Uninit()
	_ = ctx.Uninit()
	ctx.Free()
}

func bytesAsFloat32(data []byte) []float32 {
	if len(data) < bytesPerFloat32 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/bytesPerFloat32)
}
