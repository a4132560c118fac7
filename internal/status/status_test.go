package status

import (
	"testing"
	"time"

	"github.com/deepresearch/orchestrator/internal/artifacts"
)

func TestBuildSummary_ProjectsStageAndGateStatuses(t *testing.T) {
	m := artifacts.NewManifest("run-1", artifacts.QueryInfo{Text: "q", Mode: "standard", Sensitivity: "normal"}, artifacts.Limits{MaxWave1Agents: 1, MaxSummaryKB: 1, MaxTotalSummaryKB: 1}, artifacts.ArtifactPaths{Root: "/tmp"}, time.Now())
	g := artifacts.NewGates("run-1", time.Now().UTC().Format(time.RFC3339))
	s := BuildSummary(m, g)
	if s.RunID != "run-1" || s.Stage != artifacts.StageInit {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Gates["A"] != "not_run" {
		t.Fatalf("expected gate A not_run, got %s", s.Gates["A"])
	}
}

func TestBuildTriage_IncludesFailuresAndHalt(t *testing.T) {
	m := artifacts.NewManifest("run-2", artifacts.QueryInfo{Text: "q", Mode: "standard", Sensitivity: "normal"}, artifacts.Limits{MaxWave1Agents: 1, MaxSummaryKB: 1, MaxTotalSummaryKB: 1}, artifacts.ArtifactPaths{Root: "/tmp"}, time.Now())
	m.Failures = []artifacts.Failure{{Kind: "stage_timeout", Stage: artifacts.StageWave1}}
	g := artifacts.NewGates("run-2", time.Now().UTC().Format(time.RFC3339))
	halt := &artifacts.Halt{RunID: "run-2"}
	triage := BuildTriage(m, g, halt)
	if len(triage.Failures) != 1 || triage.Halt == nil {
		t.Fatalf("expected failures and halt present, got %+v", triage)
	}
}
