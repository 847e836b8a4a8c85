// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config defines the harness's configuration surface and loads
// it from an HCL file, following the load/validate split used by
// grimm-is-flywall's own internal/config package.
package config

import "github.com/google/uuid"

// RebootType is the kind of reboot the coordinator triggers and the
// analyzer tailors its sanity checks to.
type RebootType string

const (
	FastReboot          RebootType = "fast-reboot"
	WarmReboot          RebootType = "warm-reboot"
	ServiceWarmRestart  RebootType = "service-warm-restart"
)

// Valid reports whether r is one of the three supported reboot types.
func (r RebootType) Valid() bool {
	switch r {
	case FastReboot, WarmReboot, ServiceWarmRestart:
		return true
	default:
		return false
	}
}

// Config is the full set of harness parameters, loadable from an HCL
// file via LoadFile and overridable individually from CLI flags. Field
// names and defaults mirror spec.md §6 and the original ptf test's
// check_param() calls.
type Config struct {
	RunID uuid.UUID `hcl:"-"`

	RebootType RebootType `hcl:"reboot_type,optional"`
	Verbose    bool       `hcl:"verbose,optional"`
	// LogfileSuffix, if set, is appended to the report/log/pcap paths
	// so concurrent runs against different devices don't collide.
	LogfileSuffix string `hcl:"logfile_suffix,optional"`

	DUTHostname string `hcl:"dut_hostname"`
	DUTMAC      string `hcl:"dut_mac"`
	VlanMAC     string `hcl:"vlan_mac"`

	// Dataplane interfaces on the traffic-generator host, classified by
	// the role the device port they're cabled to plays.
	VlanInterfaces []string `hcl:"vlan_interfaces"`
	T1Interfaces   []string `hcl:"t1_interfaces"`

	// VlanIPRange maps each VLAN name to its CIDR range; DefaultIPRange
	// is the CIDR synthetic upstream-router sources are drawn from.
	VlanIPRange    map[string]string `hcl:"vlan_ip_range"`
	DefaultIPRange string            `hcl:"default_ip_range"`
	LoPrefix       string            `hcl:"lo_prefix,optional"`

	RebootLimitSeconds         float64 `hcl:"reboot_limit_in_seconds,optional"`
	GracefulLimitSeconds       float64 `hcl:"graceful_limit,optional"`
	DutStabilizeSecs           float64 `hcl:"dut_stabilize_secs,optional"`
	WarmUpTimeoutSecs          float64 `hcl:"warm_up_timeout_secs,optional"`
	TaskTimeoutSecs            float64 `hcl:"task_timeout,optional"`
	ControlPlaneDownTimeoutSecs float64 `hcl:"control_plane_down_timeout,optional"`

	SendIntervalSeconds  float64 `hcl:"send_interval,optional"`
	TimeToListenSeconds  float64 `hcl:"time_to_listen,optional"`
	SniffTimeIncrSeconds float64 `hcl:"sniff_time_incr,optional"`

	MinBGPGRTimeoutSecs  float64 `hcl:"min_bgp_gr_timeout,optional"`
	BGPV4V6TimeDiffSecs  float64 `hcl:"bgp_v4_v6_time_diff,optional"`

	AllowVlanFlooding bool `hcl:"allow_vlan_flooding,optional"`
	AllowMacJumping   bool `hcl:"allow_mac_jumping,optional"`

	// NrPCPkts is the number of server->T1 probe packets per dataplane
	// tick (spec.md §4.2's "nr_pc_pkts"); NrVLPkts is derived at setup
	// time from the number of generated server host addresses, capped
	// at MaxNrVLPkts.
	NrPCPkts       int `hcl:"nr_pc_pkts,optional"`
	MaxNrVLPkts    int `hcl:"max_nr_vl_pkts,optional"`
	PingDutPkts    int `hcl:"ping_dut_pkts,optional"`
	ArpPingPkts    int `hcl:"arp_ping_pkts,optional"`
	ArpVlanGwPkts  int `hcl:"arp_vlan_gw_ping_pkts,optional"`

	VlanGatewayIP string `hcl:"vlan_gateway_ip,optional"`

	// AllowedFloodedOriginals bounds the "sent_counter minus validation
	// packets" tolerance the analyzer allows for DUT flooding of
	// original packets (spec.md §4.7 step 6, open question on the 250
	// constant).
	AllowedFloodedOriginals int `hcl:"allowed_flooded_originals,optional"`

	MetricsListenAddr string `hcl:"metrics_listen_addr,optional"`
	ReportDir         string `hcl:"report_dir,optional"`
}
