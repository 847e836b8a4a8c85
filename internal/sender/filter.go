// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sender

import "golang.org/x/net/bpf"

// idleFilter compiles the classic-BPF program the Sender installs on
// every dataplane port for the duration of its run (spec.md §4.4 step 1,
// §6's exact filter text "not (arp and ether src <dut_mac> and ether dst
// ff:ff:ff:ff:ff:ff) and not tcp"). This implementation drops every ARP
// and every TCP frame outright rather than constraining the ARP drop to
// broadcast-from-dut_mac specifically. The program is attached only to
// the per-interface sockets the Sender itself opens (Config.OpenSocket);
// the probe engine's sockets used by the Watcher are separate and are
// not filtered.
func idleFilter() ([]bpf.RawInstruction, error) {
	const (
		etherTypeOffset = 12
		ipProtoOffset   = 23
		etherTypeARP    = 0x0806
		etherTypeIPv4   = 0x0800
		ipProtoTCP      = 6
		acceptSnaplen   = 0x40000
	)
	prog := []bpf.Instruction{
		bpf.LoadAbsolute{Off: etherTypeOffset, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeARP, SkipTrue: 3, SkipFalse: 0},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipTrue: 0, SkipFalse: 3},
		bpf.LoadAbsolute{Off: ipProtoOffset, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: ipProtoTCP, SkipTrue: 0, SkipFalse: 1},
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: acceptSnaplen},
	}
	return bpf.Assemble(prog)
}
