// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netutil collects the small address helpers
// shared by packet template construction and the analyzer: MAC
// formatting and the deterministic host-address derivation the probe
// engine uses to generate simulated server and upstream-router
// addresses.
package netutil

import (
	"fmt"
	"net"
)

func ParseMAC(macStr string) (net.HardwareAddr, error) {
	return net.ParseMAC(macStr)
}

func FormatMAC(mac net.HardwareAddr) string {
	if len(mac) != 6 {
		return ""
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// LAGBasePattern and VLANBasePattern are the deterministic MAC templates
// used to synthesize source addresses for T1-facing (link-aggregation)
// and VLAN-facing simulated hosts, respectively. %04x is the zero-padded
// host index.
const (
	LAGBasePattern  = "5c010203%04x"
	VLANBasePattern = "72060001%04x"
)

// HexToMAC parses a fixed-format hex string (no separators) such as
// "5c0102030007" into a HardwareAddr.
func HexToMAC(hexStr string) (net.HardwareAddr, error) {
	if len(hexStr) != 12 {
		return nil, fmt.Errorf("netutil: malformed mac hex %q", hexStr)
	}
	var parts [6]string
	for i := 0; i < 6; i++ {
		parts[i] = hexStr[i*2 : i*2+2]
	}
	return net.ParseMAC(fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]))
}

// LAGSourceMAC returns the deterministic source MAC for the idx'th
// simulated upstream-router host.
func LAGSourceMAC(idx int) net.HardwareAddr {
	mac, err := HexToMAC(fmt.Sprintf(LAGBasePattern, idx))
	if err != nil {
		panic(err) // idx is always in range for a %04x pattern below 0x10000
	}
	return mac
}

// VLANSourceMAC returns the deterministic source MAC for the idx'th
// simulated server host.
func VLANSourceMAC(idx int) net.HardwareAddr {
	mac, err := HexToMAC(fmt.Sprintf(VLANBasePattern, idx))
	if err != nil {
		panic(err)
	}
	return mac
}
