// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"grimm.is/advreboot/internal/analyzer"
	"grimm.is/advreboot/internal/config"
)

func TestBuildReportsCleanRun(t *testing.T) {
	result := &analyzer.Result{
		CheckedSuccessfully: true,
		TotalDisruptTime:    0.5,
		TotalDisruptPackets: 3,
	}
	gap := 2.5
	rep := Build(Input{
		RebootType:         config.FastReboot,
		Dataplane:          result,
		ControlPlaneDownAt: 100.0,
		ControlPlaneUpAt:   101.25,
		LACPSessions: []LACPSession{
			{IP: "10.0.0.1", MaxGapSeconds: &gap},
			{IP: "10.0.0.2"},
		},
	})

	if !rep.Dataplane.CheckedSuccessfully {
		t.Fatal("expected CheckedSuccessfully=true")
	}
	if rep.Dataplane.Downtime != "0.500000" {
		t.Errorf("Downtime = %q, want 0.500000", rep.Dataplane.Downtime)
	}
	if rep.Dataplane.LostPackets != "3" {
		t.Errorf("LostPackets = %q, want 3", rep.Dataplane.LostPackets)
	}
	if rep.ControlPlane.Downtime != "1.250000" {
		t.Errorf("ControlPlane.Downtime = %q, want 1.250000", rep.ControlPlane.Downtime)
	}
	if got := rep.ControlPlane.LACPSessions["10.0.0.1"]; got == nil || *got != "2.500000" {
		t.Errorf("LACPSessions[10.0.0.1] = %v, want 2.500000", got)
	}
	if got := rep.ControlPlane.LACPSessions["10.0.0.2"]; got != nil {
		t.Errorf("LACPSessions[10.0.0.2] = %v, want nil", got)
	}
}

func TestBuildReportsFailedAnalysis(t *testing.T) {
	rep := Build(Input{RebootType: config.WarmReboot, Dataplane: nil})
	if rep.Dataplane.CheckedSuccessfully {
		t.Fatal("expected CheckedSuccessfully=false for nil Dataplane")
	}
	if rep.Dataplane.Downtime != "0.000000" {
		t.Errorf("Downtime = %q, want 0.000000", rep.Dataplane.Downtime)
	}
	if rep.Dataplane.LostPackets != "0" {
		t.Errorf("LostPackets = %q, want 0", rep.Dataplane.LostPackets)
	}
}

func TestPaths(t *testing.T) {
	reportPath, logPath := Paths(config.FastReboot, "")
	if reportPath != "/tmp/fast-reboot-report.json" {
		t.Errorf("reportPath = %q", reportPath)
	}
	if logPath != "/tmp/fast-reboot.log" {
		t.Errorf("logPath = %q", logPath)
	}

	reportPath, logPath = Paths(config.FastReboot, "run1")
	if reportPath != "/tmp/fast-reboot-run1-report.json" {
		t.Errorf("reportPath = %q", reportPath)
	}
	if logPath != "/tmp/fast-reboot-run1.log" {
		t.Errorf("logPath = %q", logPath)
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	rep := Build(Input{RebootType: config.FastReboot, Dataplane: &analyzer.Result{CheckedSuccessfully: true}})
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSON(path, rep); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Dataplane.CheckedSuccessfully {
		t.Error("decoded.Dataplane.CheckedSuccessfully = false, want true")
	}
}

func TestExitCode(t *testing.T) {
	ok := Build(Input{Dataplane: &analyzer.Result{CheckedSuccessfully: true}})
	if code := ExitCode(ok, true); code != 0 {
		t.Errorf("ExitCode(clean run) = %d, want 0", code)
	}
	if code := ExitCode(ok, false); code != 1 {
		t.Errorf("ExitCode(deadline missed) = %d, want 1", code)
	}

	failed := Build(Input{Dataplane: nil})
	if code := ExitCode(failed, true); code != 1 {
		t.Errorf("ExitCode(analysis failed) = %d, want 1", code)
	}
}
