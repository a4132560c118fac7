// Package stagemachine implements Advance, the single function that decides
// whether a run may move from its current stage to a requested next stage
// (spec.md §4.5). It works on the current stage and gates values it is
// handed and never writes anything — the caller (cmd/research, through
// orchestrator.CheckAdvance) applies the transition via runstore once
// Advance reports it is allowed.
package stagemachine

import (
	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

// Precondition is one entry of the From→To table (spec.md §4.5 Table 1):
// the set of gates that must be "pass" (RequireGatesPass) before the
// transition is allowed. Rules that aren't expressible as a gate
// (wave2_required, the review↔synthesis loop cap) are not part of it:
// pivot.Decide and review.Decide apply them.
type Precondition struct {
	From             artifacts.Stage
	To               artifacts.Stage
	RequireGatesPass []artifacts.GateID
}

// Table is the full set of allowed transitions, spec.md §4.5 Table 1.
// wave1→pivot requires Gate B (wave output contract compliance must hold
// before gaps can be computed; Gate A was already required for init→wave1);
// pivot's two successors are disambiguated by Decide, not by this table.
var Table = []Precondition{
	{From: artifacts.StageInit, To: artifacts.StageWave1, RequireGatesPass: []artifacts.GateID{artifacts.GateA}},
	{From: artifacts.StageWave1, To: artifacts.StagePivot, RequireGatesPass: []artifacts.GateID{artifacts.GateB}},
	{From: artifacts.StagePivot, To: artifacts.StageWave2},
	{From: artifacts.StagePivot, To: artifacts.StageCitations},
	{From: artifacts.StageWave2, To: artifacts.StageCitations, RequireGatesPass: []artifacts.GateID{artifacts.GateB}},
	{From: artifacts.StageCitations, To: artifacts.StageSummaries, RequireGatesPass: []artifacts.GateID{artifacts.GateC}},
	{From: artifacts.StageSummaries, To: artifacts.StageSynthesis, RequireGatesPass: []artifacts.GateID{artifacts.GateD}},
	{From: artifacts.StageSynthesis, To: artifacts.StageReview},
	{From: artifacts.StageReview, To: artifacts.StageSynthesis},
	{From: artifacts.StageReview, To: artifacts.StageFinalize, RequireGatesPass: []artifacts.GateID{artifacts.GateE}},
}

func lookup(from, to artifacts.Stage) (Precondition, bool) {
	for _, p := range Table {
		if p.From == from && p.To == to {
			return p, true
		}
	}
	return Precondition{}, false
}

// Decision is what Advance returns: whether the transition is allowed, and
// if not, which gates blocked it (for the halt artifact's blockers.blocked_gates).
type Decision struct {
	Allowed      bool
	BlockedGates []artifacts.GateID
}

// Advance decides whether the run may move from manifest.Stage.Current to
// requestedNext.
//
// Expectations:
//   - Returns REQUESTED_NEXT_NOT_ALLOWED if (current, requestedNext) is not
//     in Table at all (including requesting the current stage again, or any
//     stage earlier in pipeline order than current except the one explicit
//     review→synthesis loop-back).
//   - Otherwise evaluates RequireGatesPass against gates; any gate not
//     "pass" is collected into Decision.BlockedGates and Allowed is false.
//   - A pivot→wave2 vs pivot→citations choice is resolved by the caller
//     (internal/pivot) before calling Advance — Advance only validates that
//     whichever target was chosen is a legal transition from pivot.
func Advance(current artifacts.Stage, requestedNext artifacts.Stage, gates artifacts.Gates) (Decision, *corerr.Error) {
	pre, ok := lookup(current, requestedNext)
	if !ok {
		return Decision{}, corerr.New(corerr.CodeRequestedNextNotAllowed, "no transition from stage to requested next", map[string]any{
			"from": string(current), "to": string(requestedNext),
		})
	}
	var blocked []artifacts.GateID
	for _, gid := range pre.RequireGatesPass {
		g, ok := gates.Gates[gid]
		if !ok || g.Status != artifacts.GatePass {
			blocked = append(blocked, gid)
		}
	}
	return Decision{Allowed: len(blocked) == 0, BlockedGates: blocked}, nil
}

// ValidateStageMatch enforces the Open Question decision recorded in
// DESIGN.md: if the caller asserts the run is at a specific stage (e.g. a
// watchdog check pinned to "wave1") but manifest.Stage.Current disagrees,
// that is STAGE_MISMATCH, distinct from a disagreement between
// manifest.Stage.Current and its own History (which is INVALID_STATE,
// checked by ValidateHistoryConsistency).
func ValidateStageMatch(assertedStage, actualStage artifacts.Stage) *corerr.Error {
	if assertedStage != actualStage {
		return corerr.New(corerr.CodeStageMismatch, "asserted stage does not match manifest stage", map[string]any{
			"asserted": string(assertedStage), "actual": string(actualStage),
		})
	}
	return nil
}

// ValidateHistoryConsistency checks that the last entry of stage.history (if
// any) ends at stage.current. A mismatch means the manifest was hand-edited
// or corrupted between writes, and the run must not advance until an
// operator resolves it.
func ValidateHistoryConsistency(stage artifacts.StageInfo) *corerr.Error {
	if len(stage.History) == 0 {
		return nil
	}
	last := stage.History[len(stage.History)-1]
	if last.To != stage.Current {
		return corerr.New(corerr.CodeInvalidState, "stage.current does not match the last stage history entry", map[string]any{
			"current": string(stage.Current), "history_to": string(last.To),
		})
	}
	return nil
}
