package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

func newTestManifest(t *testing.T, runRoot, runID string) artifacts.Manifest {
	t.Helper()
	return artifacts.NewManifest(runID, artifacts.QueryInfo{
		Text: "what changed in Go 1.25", Mode: "standard", Sensitivity: "normal",
	}, artifacts.Limits{
		MaxWave1Agents: 3, MaxReviewIterations: 2, MaxSummaryKB: 64, MaxTotalSummaryKB: 256, MaxFailures: 5,
	}, artifacts.ArtifactPaths{Root: runRoot}, time.Now())
}

func TestManifestPatch_IncrementsRevisionAndUpdatesTimestamp(t *testing.T) {
	runRoot := t.TempDir()
	s := New(runRoot, nil)
	m := newTestManifest(t, runRoot, "run-1")
	m.UpdatedAt = "2000-01-01T00:00:00Z"
	if err := s.WriteManifestInit(m); err != nil {
		t.Fatalf("init: %v", err)
	}
	next, err := s.ManifestPatch(1, map[string]any{"status": "running"}, "start run")
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if next.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", next.Revision)
	}
	if next.Status != artifacts.StatusRunning {
		t.Fatalf("expected status running, got %s", next.Status)
	}
	if next.UpdatedAt == "2000-01-01T00:00:00Z" {
		t.Fatalf("expected updated_at to be refreshed, still %s", next.UpdatedAt)
	}
}

func TestManifestPatch_RejectsStaleRevision(t *testing.T) {
	runRoot := t.TempDir()
	s := New(runRoot, nil)
	m := newTestManifest(t, runRoot, "run-2")
	if err := s.WriteManifestInit(m); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := s.ManifestPatch(1, map[string]any{"status": "running"}, "start"); err != nil {
		t.Fatalf("first patch: %v", err)
	}
	_, err := s.ManifestPatch(1, map[string]any{"status": "failed"}, "stale attempt")
	if err == nil || err.Code != corerr.CodeRevisionMismatch {
		t.Fatalf("expected REVISION_MISMATCH, got %v", err)
	}
}

func TestManifestPatch_RejectsImmutableField(t *testing.T) {
	runRoot := t.TempDir()
	s := New(runRoot, nil)
	m := newTestManifest(t, runRoot, "run-3")
	if err := s.WriteManifestInit(m); err != nil {
		t.Fatalf("init: %v", err)
	}
	_, err := s.ManifestPatch(1, map[string]any{"run_id": "hijacked"}, "attempt rewrite")
	if err == nil || err.Code != corerr.CodeImmutableField {
		t.Fatalf("expected IMMUTABLE_FIELD, got %v", err)
	}
}

func TestGateWrite_RejectsWarnOnHardGate(t *testing.T) {
	runRoot := t.TempDir()
	s := New(runRoot, nil)
	g := artifacts.NewGates("run-4", time.Now().UTC().Format(time.RFC3339))
	if err := s.WriteGatesInit(g); err != nil {
		t.Fatalf("init gates: %v", err)
	}
	_, err := s.GateWrite(1, artifacts.GateA, artifacts.Gate{
		Status: artifacts.GateWarn, CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}, "bad transition")
	if err == nil || err.Code != corerr.CodeLifecycleRuleViolation {
		t.Fatalf("expected LIFECYCLE_RULE_VIOLATION, got %v", err)
	}
}

func TestGateWrite_PassUpdatesStatusAndRevision(t *testing.T) {
	runRoot := t.TempDir()
	s := New(runRoot, nil)
	g := artifacts.NewGates("run-5", time.Now().UTC().Format(time.RFC3339))
	if err := s.WriteGatesInit(g); err != nil {
		t.Fatalf("init gates: %v", err)
	}
	next, err := s.GateWrite(1, artifacts.GateB, artifacts.Gate{
		Status: artifacts.GatePass, CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}, "wave1 validated")
	if err != nil {
		t.Fatalf("gate write: %v", err)
	}
	if next.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", next.Revision)
	}
	if next.Gates[artifacts.GateB].Status != artifacts.GatePass {
		t.Fatalf("expected gate B pass, got %s", next.Gates[artifacts.GateB].Status)
	}
}

func TestWriteArtifact_RoundTripsThroughReadArtifact(t *testing.T) {
	runRoot := t.TempDir()
	s := New(runRoot, nil)
	scope := artifacts.Scope{
		SchemaVersion: artifacts.ScopeSchemaVersion, Questions: []string{"q1"},
		Deliverable: "brief", Depth: "standard", TimeBudgetMin: 30,
		CitationPosture: artifacts.CitationPostureNormal,
	}
	if err := s.WriteArtifact("scope.json", scope, "scope_write", "init"); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got artifacts.Scope
	if err := s.ReadArtifact("scope.json", &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Deliverable != "brief" {
		t.Fatalf("expected deliverable brief, got %s", got.Deliverable)
	}
}

func TestAppendLedger_WritesOneLinePerRun(t *testing.T) {
	runsRoot := t.TempDir()
	if err := AppendLedger(runsRoot, artifacts.RunLedgerEntry{RunID: "run-6", RunRoot: filepath.Join(runsRoot, "run-6")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := AppendLedger(runsRoot, artifacts.RunLedgerEntry{RunID: "run-7", RunRoot: filepath.Join(runsRoot, "run-7")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(runsRoot, "runs-ledger.jsonl"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 ledger lines, got %d", len(lines))
	}
}
