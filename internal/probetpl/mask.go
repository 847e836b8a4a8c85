// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package probetpl builds the byte-exact probe packets and masked
// expectations for the five probe classes spec.md §4.2/§6 define:
// server->upstream, upstream->server, ICMP to the device loopback, ARP
// between two VLAN hosts, and ARP to the VLAN gateway. All packets are
// built with gopacket/layers and serialized once at setup time; they are
// immutable afterward and may be shared freely across probe calls.
package probetpl

// ByteRange marks a [Offset, Offset+Length) span of a template as
// "don't care" for matching purposes — the corresponding bytes of a
// candidate packet are skipped rather than compared.
type ByteRange struct {
	Offset, Length int
}

// ExpectedMask pairs a template byte sequence with the byte ranges that
// should be ignored when matching a candidate packet against it.
type ExpectedMask struct {
	Template []byte
	DontCare []ByteRange
}

// Match reports whether candidate equals Template at every byte position
// not covered by a DontCare range. Candidate must be at least as long as
// Template; any trailing bytes in candidate beyond len(Template) are
// ignored (mirrors PTF's Mask semantics used by the original harness,
// which only constrains a byte-exact prefix).
func (m ExpectedMask) Match(candidate []byte) bool {
	if len(candidate) < len(m.Template) {
		return false
	}
	ignore := make([]bool, len(m.Template))
	for _, r := range m.DontCare {
		for i := r.Offset; i < r.Offset+r.Length && i < len(ignore); i++ {
			if i >= 0 {
				ignore[i] = true
			}
		}
	}
	for i, want := range m.Template {
		if ignore[i] {
			continue
		}
		if candidate[i] != want {
			return false
		}
	}
	return true
}

// Fixed byte layouts for the frame shapes this package builds: Ethernet
// header with no 802.1Q tag, IPv4 header with no options, TCP header
// with no options. These offsets are only valid for packets built by
// this package's own constructors.
const (
	EthDstOffset        = 0
	EthSrcOffset        = 6
	EthTypeOffset       = 12
	EthHeaderLen        = 14

	IPv4TOSOffset      = EthHeaderLen + 1
	IPv4TotalLenOffset = EthHeaderLen + 2
	IPv4IDOffset       = EthHeaderLen + 4
	IPv4TTLOffset      = EthHeaderLen + 8
	IPv4ChecksumOffset = EthHeaderLen + 10
	IPv4SrcOffset      = EthHeaderLen + 12
	IPv4DstOffset      = EthHeaderLen + 16
	IPv4HeaderLen      = 20

	TCPHeaderStart     = EthHeaderLen + IPv4HeaderLen
	TCPChecksumOffset  = TCPHeaderStart + 16

	ARPHeaderStart   = EthHeaderLen
	ARPSenderMAC     = ARPHeaderStart + 8
	ARPSenderIP      = ARPHeaderStart + 14
	ARPTargetMAC     = ARPHeaderStart + 18
	ARPTargetIP      = ARPHeaderStart + 24
)

func ethDontCare() []ByteRange {
	return []ByteRange{{EthSrcOffset, 6}, {EthDstOffset, 6}}
}
