package watchdog

import (
	"testing"
	"time"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

func TestCheck_ReportsTimeoutWhenElapsedExceedsLimit(t *testing.T) {
	now := time.Now()
	last := now.Add(-20 * time.Minute)
	timeouts := map[artifacts.Stage]int{artifacts.StageWave1: 600}
	timedOut, _ := Check(artifacts.StageWave1, last, now, timeouts, false)
	if !timedOut {
		t.Fatalf("expected timeout")
	}
}

func TestCheck_ExemptsHaltWaitingCheckpoint(t *testing.T) {
	now := time.Now()
	last := now.Add(-20 * time.Minute)
	timeouts := map[artifacts.Stage]int{artifacts.StageWave1: 600}
	timedOut, _ := Check(artifacts.StageWave1, last, now, timeouts, true)
	if timedOut {
		t.Fatalf("expected no timeout while waiting on halt")
	}
}

func TestRetryRecord_RejectsEmptyChangeNote(t *testing.T) {
	_, err := RetryRecord(artifacts.GateB, "", "reason", 0, artifacts.DefaultRetryCaps())
	if err == nil || err.Code != corerr.CodeInvalidArgs {
		t.Fatalf("expected INVALID_ARGS, got %v", err)
	}
}

func TestRetryRecord_ExhaustsAtCap(t *testing.T) {
	caps := artifacts.DefaultRetryCaps()
	_, err := RetryRecord(artifacts.GateA, "note", "reason", 0, caps)
	if err == nil || err.Code != corerr.CodeRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED since gate A has cap 0, got %v", err)
	}
}

func TestRetryRecord_SucceedsUnderCap(t *testing.T) {
	caps := artifacts.DefaultRetryCaps()
	entry, err := RetryRecord(artifacts.GateB, "note", "reason", 0, caps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.GateID != string(artifacts.GateB) {
		t.Fatalf("expected gate B, got %s", entry.GateID)
	}
}
