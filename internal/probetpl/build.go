// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probetpl

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// ProbePacket is an immutable, ready-to-send frame plus the interface it
// should be emitted on.
type ProbePacket struct {
	Iface string
	Bytes []byte
}

const (
	probeSrcPort = 1234
	probeDstPort = 5000
)

// serializeOpts always recomputes lengths and checksums so the resulting
// bytes are a byte-exact, valid frame regardless of the field values the
// caller supplied.
var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// BuildTCPPacket constructs an Ethernet/IPv4/TCP frame with the given
// addressing, TTL, and payload. sport/dport default to the harness's
// tagged-stream ports (1234/5000) when zero.
func BuildTCPPacket(ethSrc, ethDst net.HardwareAddr, ipSrc, ipDst net.IP, ttl uint8, sport, dport uint16, payload []byte) ([]byte, error) {
	if sport == 0 {
		sport = probeSrcPort
	}
	if dport == 0 {
		dport = probeDstPort
	}
	eth := &layers.Ethernet{SrcMAC: ethSrc, DstMAC: ethDst, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    ipSrc.To4(),
		DstIP:    ipDst.To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     0,
		Window:  8192,
		ACK:     true,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("probetpl: set checksum network layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	layersToSerialize := []gopacket.SerializableLayer{eth, ip, tcp}
	if len(payload) > 0 {
		layersToSerialize = append(layersToSerialize, gopacket.Payload(payload))
	}
	if err := gopacket.SerializeLayers(buf, serializeOpts, layersToSerialize...); err != nil {
		return nil, fmt.Errorf("probetpl: serialize tcp packet: %w", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// BuildICMPEchoPacket constructs an Ethernet/IPv4/ICMP echo-request (or
// echo-reply, depending on typ) frame.
func BuildICMPEchoPacket(ethSrc, ethDst net.HardwareAddr, ipSrc, ipDst net.IP, typ layers.ICMPv4TypeCode) ([]byte, error) {
	eth := &layers.Ethernet{SrcMAC: ethSrc, DstMAC: ethDst, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    ipSrc.To4(),
		DstIP:    ipDst.To4(),
	}
	icmp := &layers.ICMPv4{TypeCode: typ, Id: 1, Seq: 1}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, ip, icmp); err != nil {
		return nil, fmt.Errorf("probetpl: serialize icmp packet: %w", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// BuildARPPacket constructs an Ethernet/ARP frame. op is layers.ARPRequest
// or layers.ARPReply.
func BuildARPPacket(ethSrc net.HardwareAddr, op uint16, senderMAC net.HardwareAddr, senderIP net.IP, targetMAC net.HardwareAddr, targetIP net.IP) ([]byte, error) {
	if targetMAC == nil {
		targetMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}
	}
	eth := &layers.Ethernet{
		SrcMAC:       ethSrc,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: senderIP.To4(),
		DstHwAddress:      targetMAC,
		DstProtAddress:    targetIP.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, arp); err != nil {
		return nil, fmt.Errorf("probetpl: serialize arp packet: %w", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}
