package review

import (
	"testing"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

func TestDecide_PassAlwaysAdvancesRegardlessOfIteration(t *testing.T) {
	bundle := artifacts.ReviewBundle{Decision: artifacts.ReviewPass, Iteration: 5}
	outcome, err := Decide(bundle, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeAdvanceToFinalize {
		t.Fatalf("expected advance, got %s", outcome)
	}
}

func TestDecide_ChangesRequiredUnderCapLoopsBack(t *testing.T) {
	bundle := artifacts.ReviewBundle{Decision: artifacts.ReviewChangesRequired, Iteration: 1}
	outcome, err := Decide(bundle, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeReviseSynthesis {
		t.Fatalf("expected revise, got %s", outcome)
	}
}

func TestDecide_ChangesRequiredAtCapEscalates(t *testing.T) {
	bundle := artifacts.ReviewBundle{Decision: artifacts.ReviewChangesRequired, Iteration: 2}
	outcome, err := Decide(bundle, 2)
	if outcome != OutcomeEscalate {
		t.Fatalf("expected escalate, got %s", outcome)
	}
	if err == nil || err.Code != corerr.CodeRetryExhausted {
		t.Fatalf("expected RETRY_EXHAUSTED, got %v", err)
	}
}

func TestValidateBundle_RejectsChangesRequiredWithNoDirectives(t *testing.T) {
	bundle := artifacts.ReviewBundle{Decision: artifacts.ReviewChangesRequired}
	err := ValidateBundle(bundle)
	if err == nil || err.Code != corerr.CodeBundleInvalid {
		t.Fatalf("expected BUNDLE_INVALID, got %v", err)
	}
}
