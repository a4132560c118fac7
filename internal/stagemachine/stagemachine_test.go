package stagemachine

import (
	"testing"
	"time"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

func gatesAllPass(runID string) artifacts.Gates {
	g := artifacts.NewGates(runID, time.Now().UTC().Format(time.RFC3339))
	for id, gate := range g.Gates {
		gate.Status = artifacts.GatePass
		gate.CheckedAt = g.UpdatedAt
		g.Gates[id] = gate
	}
	return g
}

func TestAdvance_AllowsInitToWave1WhenGateAPasses(t *testing.T) {
	g := gatesAllPass("run-1")
	d, err := Advance(artifacts.StageInit, artifacts.StageWave1, g)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allowed, blocked on %v", d.BlockedGates)
	}
}

func TestAdvance_BlocksWhenRequiredGateNotPass(t *testing.T) {
	g := artifacts.NewGates("run-2", time.Now().UTC().Format(time.RFC3339))
	d, err := Advance(artifacts.StageInit, artifacts.StageWave1, g)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected blocked when gate A not_run")
	}
	if len(d.BlockedGates) != 1 || d.BlockedGates[0] != artifacts.GateA {
		t.Fatalf("expected gate A blocked, got %v", d.BlockedGates)
	}
}

func TestAdvance_RejectsTransitionNotInTable(t *testing.T) {
	g := gatesAllPass("run-3")
	_, err := Advance(artifacts.StageInit, artifacts.StageFinalize, g)
	if err == nil || err.Code != corerr.CodeRequestedNextNotAllowed {
		t.Fatalf("expected REQUESTED_NEXT_NOT_ALLOWED, got %v", err)
	}
}

func TestAdvance_AllowsReviewBackToSynthesis(t *testing.T) {
	g := gatesAllPass("run-4")
	d, err := Advance(artifacts.StageReview, artifacts.StageSynthesis, g)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected review->synthesis allowed unconditionally")
	}
}

func TestValidateStageMatch_RejectsMismatch(t *testing.T) {
	err := ValidateStageMatch(artifacts.StageWave1, artifacts.StagePivot)
	if err == nil || err.Code != corerr.CodeStageMismatch {
		t.Fatalf("expected STAGE_MISMATCH, got %v", err)
	}
}

func TestValidateHistoryConsistency_RejectsDanglingHistory(t *testing.T) {
	stage := artifacts.StageInfo{
		Current: artifacts.StageWave1,
		History: []artifacts.StageHistoryEntry{{From: artifacts.StageInit, To: artifacts.StagePivot}},
	}
	err := ValidateHistoryConsistency(stage)
	if err == nil || err.Code != corerr.CodeInvalidState {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
}
