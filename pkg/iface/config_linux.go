package iface

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/songgao/water"
)

func setName(config *water.Config, name string) {
	config.Name = name
}

// Configure assigns cidr (e.g. "10.7.0.1/24") and the mtu and brings the
// interface up with iproute2.
func Configure(i Interface, cidr string, mtu int) error {
	cmds := [][]string{
		{"ip", "addr", "add", cidr, "dev", i.Name()},
		{"ip", "link", "set", "dev", i.Name(), "mtu", strconv.Itoa(mtu), "up"},
	}
	for _, args := range cmds {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("iface: %v: %w: %s", args, err, out)
		}
	}
	return nil
}
