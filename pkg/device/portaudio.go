//go:build portaudio

package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio is an alternative sound card backend. It needs the PortAudio C
// library, hence the build tag.
type PortAudio struct {
	SampleRate float64 // 0 means SampleRate
	BlockSize  int     // 0 means BufferSize

	stream *portaudio.Stream
}

func (p *PortAudio) Start(callback Callback) error {
	if p.stream != nil {
		return fmt.Errorf("device: portaudio already started")
	}
	sampleRate, blockSize := p.SampleRate, p.BlockSize
	if sampleRate == 0 {
		sampleRate = SampleRate
	}
	if blockSize == 0 {
		blockSize = BufferSize
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 1, sampleRate, blockSize, func(in, out []float32) {
		clearf32(out)
		callback(in, out)
	})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	p.stream = stream
	return nil
}

// Stop returns once PortAudio stopped calling back.
func (p *PortAudio) Stop() {
	if p.stream == nil {
		return
	}
	p.stream.Stop()
	p.stream.Close()
	p.stream = nil
	portaudio.Terminate()
}
