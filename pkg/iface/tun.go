package iface

import (
	"fmt"
	"sync"

	"github.com/google/gopacket"
	"github.com/songgao/water"

	"AirNFC/internal/log"
)

const maxPacketSize = 1600

// TUN is a water TUN device. Its reader goroutine decodes every packet; the
// ones that are not IP are skipped.
type TUN struct {
	iface   *water.Interface
	packets chan gopacket.Packet
	once    sync.Once
}

// OpenTUN creates the interface. An empty name lets the system choose.
func OpenTUN(name string) (*TUN, error) {
	config := water.Config{DeviceType: water.TUN}
	setName(&config, name)
	iface, err := water.New(config)
	if err != nil {
		return nil, fmt.Errorf("iface: failed to open tun: %w", err)
	}

	t := &TUN{
		iface:   iface,
		packets: make(chan gopacket.Packet, 16),
	}
	go t.read()
	return t, nil
}

func (t *TUN) read() {
	defer close(t.packets)
	l := log.Component("iface").With("name", t.iface.Name())
	frame := make([]byte, maxPacketSize)
	for {
		n, err := t.iface.Read(frame)
		if err != nil {
			l.Debug("reader stopped", "error", err)
			return
		}
		packet, err := DecodeIPPacket(append([]byte(nil), frame[:n]...))
		if err != nil {
			l.Debug("skipped packet", "error", err)
			continue
		}
		t.packets <- packet
	}
}

func (t *TUN) Name() string {
	return t.iface.Name()
}

// Packets is closed when the interface is.
func (t *TUN) Packets() <-chan gopacket.Packet {
	return t.packets
}

func (t *TUN) Write(data []byte) error {
	if _, err := t.iface.Write(data); err != nil {
		return fmt.Errorf("iface: %w", err)
	}
	return nil
}

func (t *TUN) Close() {
	t.once.Do(func() {
		t.iface.Close()
	})
}

var _ Interface = (*TUN)(nil)
