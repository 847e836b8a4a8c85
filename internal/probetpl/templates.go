// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probetpl

import (
	"net"

	"github.com/gopacket/gopacket/layers"
)

// ProbeClass is one of the five probe shapes spec.md §4.2/§6 defines: a
// set of ready-to-send frames and the mask a reply on the opposite side
// of the device must satisfy to count as a successful round trip.
type ProbeClass struct {
	Name    string
	Packets []ProbePacket
	Expect  ExpectedMask
}

// ipChecksumDontCare covers the fields that vary across an otherwise
// identical TCP/IPv4 template: both MACs (the device rewrites both on
// every hop), the IP identification and checksum words, and the TCP
// checksum word. Source and destination addresses are never masked:
// they are what distinguishes a genuine reply from unrelated traffic.
func ipChecksumDontCare() []ByteRange {
	ranges := ethDontCare()
	ranges = append(ranges,
		ByteRange{IPv4IDOffset, 2},
		ByteRange{IPv4ChecksumOffset, 2},
		ByteRange{TCPChecksumOffset, 2},
	)
	return ranges
}

// BuildServerToUpstreamClass builds the vlan->T1 probe set (spec.md's
// "server->upstream" class): one TCP packet per simulated server host,
// sent toward the device's VLAN-facing MAC and destined for a fixed
// address beyond the device. A successful round trip exits a T1 port
// with its TTL decremented by exactly one hop, so, unlike the
// upstream->server class, this class's mask does NOT ignore TTL.
func BuildServerToUpstreamClass(hosts []HostAddress, upstreamDst net.IP, vlanMAC net.HardwareAddr) (ProbeClass, error) {
	const originTTL = 64
	packets := make([]ProbePacket, 0, len(hosts))
	for _, h := range hosts {
		b, err := BuildTCPPacket(h.MAC, vlanMAC, h.IP, upstreamDst, originTTL, 0, 0, nil)
		if err != nil {
			return ProbeClass{}, err
		}
		packets = append(packets, ProbePacket{Iface: h.Iface, Bytes: b})
	}
	template, err := BuildTCPPacket(hosts[0].MAC, vlanMAC, hosts[0].IP, upstreamDst, originTTL-1, 0, 0, nil)
	if err != nil {
		return ProbeClass{}, err
	}
	return ProbeClass{
		Name:    "server_to_upstream",
		Packets: packets,
		Expect:  ExpectedMask{Template: template, DontCare: ipChecksumDontCare()},
	}, nil
}

// BuildUpstreamToServerClass builds the T1->vlan probe set: one TCP
// packet per generated vlan host, entering from a simulated
// upstream-router address and destined for that vlan host. The original
// harness doesn't constrain the reply TTL here (the device may have
// routed it through an arbitrary number of internal hops before it
// reaches the capture point), so TTL joins the don't-care set.
func BuildUpstreamToServerClass(upstream []HostAddress, vlanHosts []HostAddress, dutMAC net.HardwareAddr) (ProbeClass, error) {
	packets := make([]ProbePacket, 0, len(vlanHosts))
	for i, dst := range vlanHosts {
		src := upstream[i%len(upstream)]
		b, err := BuildTCPPacket(src.MAC, dutMAC, src.IP, dst.IP, 64, 0, 0, nil)
		if err != nil {
			return ProbeClass{}, err
		}
		packets = append(packets, ProbePacket{Iface: src.Iface, Bytes: b})
	}
	template, err := BuildTCPPacket(upstream[0].MAC, dutMAC, upstream[0].IP, vlanHosts[0].IP, 0, 0, 0, nil)
	if err != nil {
		return ProbeClass{}, err
	}
	dontCare := append(ipChecksumDontCare(), ByteRange{IPv4TTLOffset, 1})
	return ProbeClass{
		Name:    "upstream_to_server",
		Packets: packets,
		Expect:  ExpectedMask{Template: template, DontCare: dontCare},
	}, nil
}

// BuildICMPToLoopbackClass builds the echo-request probe(s) sent to the
// device's own loopback address, used by ping_dut_to_check_reachability
// in the reboot lifecycle. The matching reply is an echo-reply from the
// same loopback address.
//
// fixedSourceHost mirrors allow_mac_jumping (spec.md §6): when false (the
// default), every generated vlan host takes a turn as the probe's source,
// one packet per host, so the destination address is masked out of the
// match (any host's reply counts); when true — allow_mac_jumping is set —
// every probe originates from the single fixed hosts[0] port instead, the
// original harness's source-port-pinned ping_dut mode.
func BuildICMPToLoopbackClass(hosts []HostAddress, dutMAC net.HardwareAddr, loopbackIP net.IP, fixedSourceHost bool) (ProbeClass, error) {
	sendHosts := hosts
	if fixedSourceHost {
		sendHosts = hosts[:1]
	}

	packets := make([]ProbePacket, 0, len(sendHosts))
	for _, h := range sendHosts {
		pkt, err := BuildICMPEchoPacket(h.MAC, dutMAC, h.IP, loopbackIP, layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0))
		if err != nil {
			return ProbeClass{}, err
		}
		packets = append(packets, ProbePacket{Iface: h.Iface, Bytes: pkt})
	}

	template, err := BuildICMPEchoPacket(dutMAC, sendHosts[0].MAC, loopbackIP, sendHosts[0].IP, layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoReply, 0))
	if err != nil {
		return ProbeClass{}, err
	}
	dontCare := append(ethDontCare(), ByteRange{IPv4IDOffset, 2}, ByteRange{IPv4ChecksumOffset, 2})
	if !fixedSourceHost {
		dontCare = append(dontCare, ByteRange{IPv4DstOffset, 4})
	}
	return ProbeClass{
		Name:    "icmp_to_loopback",
		Packets: packets,
		Expect:  ExpectedMask{Template: template, DontCare: dontCare},
	}, nil
}

// BuildARPBetweenVLANHostsClass builds an ARP request from one simulated
// vlan host to another. Its mask matches the target host's ARP reply
// (Ethernet addresses ignored); a forwarded copy of the request itself
// does not match. cmd/advreboot does not use this class: the watcher's
// VLAN ARP dimension is wired with the gateway ARP class built by
// BuildARPToVLANGatewayClass.
func BuildARPBetweenVLANHostsClass(from, to HostAddress) (ProbeClass, error) {
	pkt, err := BuildARPPacket(from.MAC, layers.ARPRequest, from.MAC, from.IP, nil, to.IP)
	if err != nil {
		return ProbeClass{}, err
	}
	template, err := BuildARPPacket(to.MAC, layers.ARPReply, to.MAC, to.IP, from.MAC, from.IP)
	if err != nil {
		return ProbeClass{}, err
	}
	return ProbeClass{
		Name:    "arp_between_vlan_hosts",
		Packets: []ProbePacket{{Iface: from.Iface, Bytes: pkt}},
		Expect:  ExpectedMask{Template: template, DontCare: []ByteRange{{EthSrcOffset, 6}, {EthDstOffset, 6}}},
	}, nil
}

// BuildARPToVLANGatewayClass builds ARP requests from every generated
// vlan host to the VLAN's own gateway IP, the arp_ping probe spec.md §5's
// control-plane downtime measurement uses.
func BuildARPToVLANGatewayClass(hosts []HostAddress, gatewayIP net.IP, vlanMAC net.HardwareAddr) (ProbeClass, error) {
	packets := make([]ProbePacket, 0, len(hosts))
	for _, h := range hosts {
		b, err := BuildARPPacket(h.MAC, layers.ARPRequest, h.MAC, h.IP, nil, gatewayIP)
		if err != nil {
			return ProbeClass{}, err
		}
		packets = append(packets, ProbePacket{Iface: h.Iface, Bytes: b})
	}
	template, err := BuildARPPacket(vlanMAC, layers.ARPReply, vlanMAC, gatewayIP, hosts[0].MAC, hosts[0].IP)
	if err != nil {
		return ProbeClass{}, err
	}
	return ProbeClass{
		Name:    "arp_to_vlan_gateway",
		Packets: packets,
		Expect:  ExpectedMask{Template: template, DontCare: []ByteRange{{EthSrcOffset, 6}, {ARPTargetMAC, 6}, {ARPTargetIP, 4}}},
	}, nil
}
