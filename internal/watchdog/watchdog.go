// Package watchdog enforces per-stage timeouts and retry caps (spec.md
// §4.13). Its functions work on the stage, timestamps and caps the caller
// passes in, never read or write run state themselves, and never advance
// the stage machine — a detected timeout is recorded as a Failure
// and surfaced to the caller, which decides whether to halt or retry.
package watchdog

import (
	"time"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

// Check evaluates whether the run has been sitting in its current stage
// longer than that stage's configured timeout, using lastProgressAt (the
// manifest's stage.last_progress_at) as the clock's reference point.
//
// Expectations:
//   - a halt-as-waiting-checkpoint is exempt: if waitingOnHalt is true (the
//     run is blocked on an external agent-result drop, not actually stuck),
//     Check never reports a timeout regardless of elapsed time
//   - returns (true, elapsed) when now - lastProgressAt exceeds the
//     configured timeout for stage; (false, elapsed) otherwise
func Check(stage artifacts.Stage, lastProgressAt time.Time, now time.Time, timeouts map[artifacts.Stage]int, waitingOnHalt bool) (timedOut bool, elapsed time.Duration) {
	elapsed = now.Sub(lastProgressAt)
	if waitingOnHalt {
		return false, elapsed
	}
	limitSeconds, ok := timeouts[stage]
	if !ok {
		limitSeconds = 600
	}
	return elapsed > time.Duration(limitSeconds)*time.Second, elapsed
}

// BuildTimeoutFailure renders a timed-out stage into a manifest.failures[]
// entry. retryable is true for every stage but the ones a stuck external
// agent seam cannot retry its way out of (none currently — the agent seam
// itself decides retry eligibility via RetryDirective, so every watchdog
// timeout is retryable at this layer).
func BuildTimeoutFailure(stage artifacts.Stage, elapsed time.Duration) artifacts.Failure {
	return artifacts.Failure{
		Kind:      "stage_timeout",
		Stage:     stage,
		Message:   "stage exceeded configured timeout after " + elapsed.Round(time.Second).String(),
		Retryable: true,
		Ts:        time.Now().UTC().Format(time.RFC3339),
	}
}

// RetryRecord validates and renders one RetryRecord call (spec.md §4.13):
// the caller (runstore.ManifestPatch) persists the returned entry and
// increments metrics.retry_counts[gate_id].
//
// Expectations:
//   - returns RETRY_EXHAUSTED if currentCount >= cap for gateID
//   - changeNote and reason must both be non-empty — a retry without an
//     explanation is rejected so manifest.metrics.retry_history stays
//     useful for triage
func RetryRecord(gateID artifacts.GateID, changeNote, reason string, currentCount int, caps map[artifacts.GateID]int) (artifacts.RetryHistoryEntry, *corerr.Error) {
	if changeNote == "" || reason == "" {
		return artifacts.RetryHistoryEntry{}, corerr.New(corerr.CodeInvalidArgs, "retry record requires both change_note and reason", nil)
	}
	limit, ok := caps[gateID]
	if !ok {
		limit = 0
	}
	if currentCount >= limit {
		return artifacts.RetryHistoryEntry{}, corerr.New(corerr.CodeRetryExhausted, "retry cap reached for gate", map[string]any{
			"gate_id": string(gateID), "cap": limit, "current_count": currentCount,
		})
	}
	return artifacts.RetryHistoryEntry{
		GateID:     string(gateID),
		ChangeNote: changeNote,
		Reason:     reason,
		Ts:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}
