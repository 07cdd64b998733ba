//go:build !linux

package iface

import (
	"errors"

	"github.com/songgao/water"
)

func setName(config *water.Config, name string) {}

// Configure is only implemented on Linux; elsewhere the interface has to be
// set up by hand.
func Configure(i Interface, cidr string, mtu int) error {
	return errors.ErrUnsupported
}
