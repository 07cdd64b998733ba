// Package iface tunnels IP packets between a local network interface and an
// AirNFC link.
package iface

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"AirNFC/internal/log"
)

var (
	ErrNotIP      = errors.New("iface: not an IP packet")
	ErrTooLarge   = errors.New("iface: packet larger than the mtu")
	ErrFiltered   = errors.New("iface: packet filtered")
	ErrMalformed  = errors.New("iface: malformed packet")
)

var ipv4Broadcast = net.IPv4bcast

// Interface is a layer 3 network interface.
type Interface interface {
	Name() string
	Packets() <-chan gopacket.Packet
	Write(data []byte) error
	Close()
}

// Link carries whole packets to the other device, e.g. an AirNFC connection.
type Link interface {
	Write(data []byte) error
}

func DecodeIPPacket(data []byte) (gopacket.Packet, error) {
	if len(data) == 0 {
		return nil, ErrNotIP
	}
	var layerType gopacket.LayerType
	switch data[0] >> 4 {
	case 4:
		layerType = layers.LayerTypeIPv4
	case 6:
		layerType = layers.LayerTypeIPv6
	default:
		return nil, fmt.Errorf("%w: version %d", ErrNotIP, data[0]>>4)
	}
	packet := gopacket.NewPacket(data, layerType, gopacket.Default)
	if layer := packet.ErrorLayer(); layer != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, layer.Error())
	}
	return packet, nil
}

// Bridge moves packets between an Interface and a Link. Every acoustic
// frame is precious, so it drops multicast chatter the operating system
// sends on any new interface unless AllowMulticast is set.
type Bridge struct {
	Interface      Interface
	Link           Link
	MTU            int
	AllowMulticast bool

	log       *slog.Logger
	forwarded int
	delivered int
	dropped   int
}

func NewBridge(i Interface, l Link, mtu int) *Bridge {
	return &Bridge{
		Interface: i,
		Link:      l,
		MTU:       mtu,
		log:       log.Component("iface").With("name", i.Name()),
	}
}

// Check decides whether packet may cross the link.
func (b *Bridge) Check(packet gopacket.Packet) error {
	if len(packet.Data()) > b.MTU {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(packet.Data()), b.MTU)
	}
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		if !b.AllowMulticast && (ip.DstIP.IsMulticast() || ip.DstIP.Equal(ipv4Broadcast)) {
			return fmt.Errorf("%w: multicast to %v", ErrFiltered, ip.DstIP)
		}
	case *layers.IPv6:
		if !b.AllowMulticast && ip.DstIP.IsMulticast() {
			return fmt.Errorf("%w: multicast to %v", ErrFiltered, ip.DstIP)
		}
	default:
		return ErrNotIP
	}
	return nil
}

// Forward sends a packet read from the interface over the link.
func (b *Bridge) Forward(packet gopacket.Packet) error {
	if err := b.Check(packet); err != nil {
		b.dropped++
		b.log.Debug("dropped outgoing packet", "error", err)
		return err
	}
	if err := b.Link.Write(packet.Data()); err != nil {
		b.dropped++
		return err
	}
	b.forwarded++
	b.log.Debug("forwarded", "packet", Summary(packet))
	return nil
}

// Deliver writes a packet received over the link to the interface.
func (b *Bridge) Deliver(data []byte) error {
	packet, err := DecodeIPPacket(data)
	if err == nil {
		err = b.Check(packet)
	}
	if err != nil {
		b.dropped++
		b.log.Debug("dropped incoming packet", "error", err)
		return err
	}
	if err := b.Interface.Write(data); err != nil {
		return err
	}
	b.delivered++
	b.log.Debug("delivered", "packet", Summary(packet))
	return nil
}

func (b *Bridge) Stats() (forwarded, delivered, dropped int) {
	return b.forwarded, b.delivered, b.dropped
}

// Summary describes packet in one line for the logs.
func Summary(packet gopacket.Packet) string {
	var src, dst, proto string
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		src, dst, proto = ip.SrcIP.String(), ip.DstIP.String(), ip.Protocol.String()
	case *layers.IPv6:
		src, dst, proto = ip.SrcIP.String(), ip.DstIP.String(), ip.NextHeader.String()
	default:
		return "non-ip"
	}
	return fmt.Sprintf("%s %s > %s (%d bytes)", proto, src, dst, len(packet.Data()))
}
