// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"net"

	adverrors "grimm.is/advreboot/internal/errors"
)

// Validate checks cfg for the configuration faults spec.md §7 requires
// to abort setup immediately: an unsupported reboot_type, or a missing
// required parameter.
func Validate(cfg *Config) error {
	if !cfg.RebootType.Valid() {
		return adverrors.Errorf(adverrors.KindConfig, "unsupported reboot_type %q", cfg.RebootType)
	}
	if cfg.DUTHostname == "" {
		return adverrors.New(adverrors.KindConfig, "dut_hostname is required")
	}
	if _, err := net.ParseMAC(cfg.DUTMAC); err != nil {
		return adverrors.Wrap(err, adverrors.KindConfig, "dut_mac is required and must be a valid MAC")
	}
	if _, err := net.ParseMAC(cfg.VlanMAC); err != nil {
		return adverrors.Wrap(err, adverrors.KindConfig, "vlan_mac is required and must be a valid MAC")
	}
	if len(cfg.VlanInterfaces) == 0 {
		return adverrors.New(adverrors.KindConfig, "vlan_interfaces must name at least one interface")
	}
	if len(cfg.T1Interfaces) == 0 {
		return adverrors.New(adverrors.KindConfig, "t1_interfaces must name at least one interface")
	}
	if cfg.DefaultIPRange == "" {
		return adverrors.New(adverrors.KindConfig, "default_ip_range is required")
	}
	if _, _, err := net.ParseCIDR(cfg.DefaultIPRange); err != nil {
		return adverrors.Wrap(err, adverrors.KindConfig, "default_ip_range must be a valid CIDR")
	}
	if len(cfg.VlanIPRange) == 0 {
		return adverrors.New(adverrors.KindConfig, "vlan_ip_range must name at least one VLAN")
	}
	for vlan, cidr := range cfg.VlanIPRange {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return adverrors.Wrap(err, adverrors.KindConfig, "vlan_ip_range["+vlan+"] must be a valid CIDR")
		}
	}
	if cfg.SendIntervalSeconds <= 0 {
		return adverrors.New(adverrors.KindConfig, "send_interval must be positive")
	}
	if cfg.RebootLimitSeconds <= 0 {
		return adverrors.New(adverrors.KindConfig, "reboot_limit_in_seconds must be positive")
	}
	return nil
}
