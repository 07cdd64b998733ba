package modem

import "AirNFC/pkg/port"

// Modem is what the audio port drives on every capture callback.
type Modem = port.Modem

var (
	_ Modem = (*Discoverer)(nil)
	_ Modem = (*Handshake)(nil)
	_ Modem = (*Payload)(nil)
)
