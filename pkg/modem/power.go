package modem

import (
	"AirNFC/pkg/fixed"
)

// DefaultPowerThreshold is well under the power of a symbol at full scale
// and well over the noise floor of a quiet room.
var DefaultPowerThreshold = fixed.FromFloat(1e-6)

// PowerMonitor keeps the symbol search off while the input is silent. Once a
// block is loud enough it stays open for Hold samples.
type PowerMonitor struct {
	Threshold fixed.T
	Hold      int

	remaining int
	last      fixed.T
}

func (m *PowerMonitor) Observe(samples []float32) {
	if len(samples) == 0 {
		return
	}
	m.last = fixed.MeanSquare(samples)
	if m.last >= m.Threshold {
		m.remaining = m.Hold
	} else {
		m.remaining = max(m.remaining-len(samples), 0)
	}
}

func (m *PowerMonitor) Active() bool {
	return m.remaining > 0
}

// Power is the mean square of the last observed block.
func (m *PowerMonitor) Power() fixed.T {
	return m.last
}

func (m *PowerMonitor) Reset() {
	m.remaining = 0
	m.last = fixed.Zero
}
