// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import "testing"

func validConfig() Config {
	cfg := Default()
	cfg.DUTHostname = "10.0.0.1"
	cfg.DUTMAC = "4c:76:25:f5:48:80"
	cfg.VlanMAC = "00:11:22:33:44:55"
	cfg.VlanInterfaces = []string{"eth1"}
	cfg.T1Interfaces = []string{"eth2"}
	cfg.DefaultIPRange = "192.168.0.0/16"
	cfg.VlanIPRange = map[string]string{"Vlan1000": "172.0.0.0/22"}
	return cfg
}

func TestValidateAccepts(t *testing.T) {
	cfg := validConfig()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsUnsupportedRebootType(t *testing.T) {
	cfg := validConfig()
	cfg.RebootType = "cold-reboot"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for unsupported reboot_type")
	}
}

func TestValidateRequiresInterfaces(t *testing.T) {
	cfg := validConfig()
	cfg.VlanInterfaces = nil
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for missing vlan_interfaces")
	}
}

func TestValidateRequiresMAC(t *testing.T) {
	cfg := validConfig()
	cfg.DUTMAC = "not-a-mac"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for invalid dut_mac")
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg := Default()
	if cfg.RebootLimitSeconds != 30 {
		t.Errorf("RebootLimitSeconds = %v, want 30", cfg.RebootLimitSeconds)
	}
	if cfg.SendIntervalSeconds != 0.0035 {
		t.Errorf("SendIntervalSeconds = %v, want 0.0035", cfg.SendIntervalSeconds)
	}
	if cfg.AllowedFloodedOriginals != 250 {
		t.Errorf("AllowedFloodedOriginals = %v, want 250", cfg.AllowedFloodedOriginals)
	}
}
