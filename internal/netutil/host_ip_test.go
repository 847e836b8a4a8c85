// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import "testing"

func TestHostIP(t *testing.T) {
	tests := []struct {
		cidr string
		host uint32
		want string
	}{
		{"172.0.0.0/22", 2, "172.0.0.2"},
		{"172.0.0.0/22", 257, "172.0.1.1"},
		{"192.168.0.0/16", 0, "192.168.0.0"},
	}
	for _, tt := range tests {
		ip, err := HostIP(tt.cidr, tt.host)
		if err != nil {
			t.Fatalf("HostIP(%q, %d) error: %v", tt.cidr, tt.host, err)
		}
		if ip.String() != tt.want {
			t.Errorf("HostIP(%q, %d) = %s, want %s", tt.cidr, tt.host, ip, tt.want)
		}
	}
}

func TestHostIPOutOfRange(t *testing.T) {
	if _, err := HostIP("172.0.0.0/30", 4); err == nil {
		t.Fatal("expected error for out-of-range host number")
	}
}

func TestLAGSourceMACDeterministic(t *testing.T) {
	a := LAGSourceMAC(7)
	b := LAGSourceMAC(7)
	if a.String() != b.String() {
		t.Errorf("LAGSourceMAC not deterministic: %s != %s", a, b)
	}
	if a.String() == VLANSourceMAC(7).String() {
		t.Error("LAG and VLAN patterns collided")
	}
}
