// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import "github.com/google/uuid"

// Default returns a Config with every optional field set to the value
// spec.md §6 and the original harness's check_param() defaults specify.
// Callers still need to fill in the required, topology-specific fields
// (DUTHostname, DUTMAC, VlanMAC, interfaces, IP ranges).
func Default() Config {
	return Config{
		RunID:      uuid.New(),
		RebootType: FastReboot,
		LoPrefix:   "",

		RebootLimitSeconds:          30,
		GracefulLimitSeconds:        240,
		DutStabilizeSecs:            30,
		WarmUpTimeoutSecs:           300,
		TaskTimeoutSecs:             300,
		ControlPlaneDownTimeoutSecs: 600,

		SendIntervalSeconds:  0.0035,
		TimeToListenSeconds:  240,
		SniffTimeIncrSeconds: 300,

		MinBGPGRTimeoutSecs: 15,
		BGPV4V6TimeDiffSecs: 40,

		NrPCPkts:      10,
		MaxNrVLPkts:   1000,
		PingDutPkts:   10,
		ArpPingPkts:   1,
		ArpVlanGwPkts: 10,
		VlanGatewayIP: "192.168.0.1",

		AllowedFloodedOriginals: 250,

		ReportDir: "/tmp",
	}
}
