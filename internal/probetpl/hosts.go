// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probetpl

import (
	"fmt"
	"net"

	"grimm.is/advreboot/internal/netutil"
)

// HostAddress is one simulated endpoint: a MAC/IP pair reachable on a
// specific dataplane interface. Server-side hosts are generated by
// GenerateVLANServers; upstream-router hosts by GenerateUpstreamHosts.
type HostAddress struct {
	Iface string
	MAC   net.HardwareAddr
	IP    net.IP
}

// GenerateVLANServers synthesizes up to maxHosts simulated server
// addresses spread round-robin across vlanInterfaces, drawing IPs from
// vlanIPRange. It mirrors the original harness's generate_vlan_servers():
// host numbers start at 2 within each VLAN's CIDR, reserving .0 for the
// network address and .1 for the VLAN gateway, and stop once maxHosts
// total addresses have been produced.
func GenerateVLANServers(vlanInterfaces []string, vlanIPRange map[string]string, maxHosts int) ([]HostAddress, error) {
	if len(vlanInterfaces) == 0 {
		return nil, fmt.Errorf("probetpl: no vlan interfaces configured")
	}
	var hosts []HostAddress
	idx := 0
	for _, cidr := range vlanIPRange {
		n, err := netutil.NumHosts(cidr)
		if err != nil {
			return nil, err
		}
		if n <= 3 {
			continue
		}
		for h := uint32(2); h < n-1 && len(hosts) < maxHosts; h++ {
			ip, err := netutil.HostIP(cidr, h)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, HostAddress{
				Iface: vlanInterfaces[idx%len(vlanInterfaces)],
				MAC:   netutil.VLANSourceMAC(idx),
				IP:    ip,
			})
			idx++
		}
		if len(hosts) >= maxHosts {
			break
		}
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("probetpl: vlan_ip_range produced no usable host addresses")
	}
	return hosts, nil
}

// GenerateUpstreamHosts synthesizes count simulated upstream-router
// addresses spread round-robin across t1Interfaces, drawing IPs
// sequentially from defaultIPRange starting at host number 2. It mirrors
// the original harness's random_ip/from_t1 host assignment, made
// deterministic rather than random so template construction is
// reproducible across runs.
func GenerateUpstreamHosts(t1Interfaces []string, defaultIPRange string, count int) ([]HostAddress, error) {
	if len(t1Interfaces) == 0 {
		return nil, fmt.Errorf("probetpl: no t1 interfaces configured")
	}
	n, err := netutil.NumHosts(defaultIPRange)
	if err != nil {
		return nil, err
	}
	hosts := make([]HostAddress, 0, count)
	for i := 0; i < count; i++ {
		h := uint32(2 + i%int(n-3))
		ip, err := netutil.HostIP(defaultIPRange, h)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, HostAddress{
			Iface: t1Interfaces[i%len(t1Interfaces)],
			MAC:   netutil.LAGSourceMAC(i),
			IP:    ip,
		})
	}
	return hosts, nil
}
