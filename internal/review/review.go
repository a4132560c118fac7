// Package review implements the bounded review↔synthesis loop (spec.md
// §4.11): ingest a review bundle, decide whether the run advances to
// finalize, loops back to synthesis for another draft, or escalates because
// the iteration cap was reached without a PASS.
package review

import (
	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

// Outcome is Decide's verdict on what the stage machine should do next.
type Outcome string

const (
	OutcomeAdvanceToFinalize Outcome = "advance_to_finalize"
	OutcomeReviseSynthesis   Outcome = "revise_synthesis"
	OutcomeEscalate          Outcome = "escalate"
)

// Decide interprets a ReviewBundle against the run's iteration history.
//
// Expectations:
//   - decision PASS always advances to finalize, regardless of iteration
//     count
//   - decision CHANGES_REQUIRED with iteration < maxIterations loops back
//     to synthesis
//   - decision CHANGES_REQUIRED with iteration >= maxIterations escalates
//     with RETRY_EXHAUSTED instead of looping forever
func Decide(bundle artifacts.ReviewBundle, maxIterations int) (Outcome, *corerr.Error) {
	if bundle.Decision == artifacts.ReviewPass {
		return OutcomeAdvanceToFinalize, nil
	}
	if bundle.Iteration >= maxIterations {
		return OutcomeEscalate, corerr.New(corerr.CodeRetryExhausted, "review iteration cap reached without a PASS decision", map[string]any{
			"iteration": bundle.Iteration, "max_iterations": maxIterations,
		})
	}
	return OutcomeReviseSynthesis, nil
}

// ValidateBundle enforces the hard caps spec.md §4.11 places on a review
// bundle (at most 100 findings and 100 directives) regardless of what
// go-playground/validator's max tag already checks structurally, plus one
// cross-field rule: a CHANGES_REQUIRED decision must carry at least one
// directive. Directives are not checked against the findings list.
func ValidateBundle(bundle artifacts.ReviewBundle) *corerr.Error {
	if len(bundle.Findings) > 100 {
		return corerr.New(corerr.CodeSchemaValidationFailed, "review bundle exceeds 100 findings", map[string]any{"count": len(bundle.Findings)})
	}
	if len(bundle.Directives) > 100 {
		return corerr.New(corerr.CodeSchemaValidationFailed, "review bundle exceeds 100 directives", map[string]any{"count": len(bundle.Directives)})
	}
	if bundle.Decision == artifacts.ReviewChangesRequired && len(bundle.Directives) == 0 {
		return corerr.New(corerr.CodeBundleInvalid, "CHANGES_REQUIRED decision must carry at least one directive", nil)
	}
	return nil
}
