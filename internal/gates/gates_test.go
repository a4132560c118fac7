package gates

import (
	"testing"

	"github.com/deepresearch/orchestrator/internal/artifacts"
)

func TestEvaluateA_PassesWhenEveryPerspectiveEmbedsScopeContract(t *testing.T) {
	scope := artifacts.Scope{Questions: []string{"q1"}, Deliverable: "brief", Depth: "standard"}
	perspectives := artifacts.Perspectives{Items: []artifacts.Perspective{{ID: "standard-1"}}}
	plan := artifacts.Wave1Plan{Entries: []artifacts.Wave1PlanEntry{
		{PerspectiveID: "standard-1", PromptMD: "intro\n\n" + scope.ContractText() + "\nmore"},
	}}
	g := EvaluateA(scope, perspectives, plan)
	if g.Status != artifacts.GatePass {
		t.Fatalf("expected pass, got %s (%s)", g.Status, g.Notes)
	}
}

func TestEvaluateA_FailsWhenContractMissingFromPrompt(t *testing.T) {
	scope := artifacts.Scope{Questions: []string{"q1"}, Deliverable: "brief", Depth: "standard"}
	perspectives := artifacts.Perspectives{Items: []artifacts.Perspective{{ID: "standard-1"}}}
	plan := artifacts.Wave1Plan{Entries: []artifacts.Wave1PlanEntry{
		{PerspectiveID: "standard-1", PromptMD: "no contract here"},
	}}
	g := EvaluateA(scope, perspectives, plan)
	if g.Status != artifacts.GateFail {
		t.Fatalf("expected fail, got %s", g.Status)
	}
}

func TestEvaluateB_FailsWhenAnyPerspectiveFailed(t *testing.T) {
	review := artifacts.WaveReview{Entries: []artifacts.WaveReviewEntry{
		{PerspectiveID: "a", Pass: true},
		{PerspectiveID: "b", Pass: false, FailureCodes: []artifacts.FailureCode{artifacts.FailureTooManyWords}},
	}}
	g := EvaluateB(review)
	if g.Status != artifacts.GateFail {
		t.Fatalf("expected fail, got %s", g.Status)
	}
}

func TestEvaluateC_FailsWhenValidatedRateBelowMinimum(t *testing.T) {
	// 100% blocked: validated_url_rate is 0, well under the 0.9 floor.
	g := EvaluateC([]artifacts.Citation{{Status: artifacts.CitationBlocked}, {Status: artifacts.CitationBlocked}})
	if g.Status != artifacts.GateFail {
		t.Fatalf("expected fail, got %s (%s)", g.Status, g.Notes)
	}
}

func TestEvaluateC_FailsWhenInvalidRateAboveMaximum(t *testing.T) {
	citations := make([]artifacts.Citation, 0, 10)
	for i := 0; i < 8; i++ {
		citations = append(citations, artifacts.Citation{Status: artifacts.CitationValid})
	}
	for i := 0; i < 2; i++ {
		citations = append(citations, artifacts.Citation{Status: artifacts.CitationInvalid})
	}
	g := EvaluateC(citations)
	if g.Status != artifacts.GateFail {
		t.Fatalf("expected fail, got %s (%s)", g.Status, g.Notes)
	}
}

func TestEvaluateC_PassesWhenRatesWithinThresholds(t *testing.T) {
	citations := make([]artifacts.Citation, 0, 10)
	for i := 0; i < 9; i++ {
		citations = append(citations, artifacts.Citation{Status: artifacts.CitationValid})
	}
	citations = append(citations, artifacts.Citation{Status: artifacts.CitationInvalid})
	g := EvaluateC(citations)
	if g.Status != artifacts.GatePass {
		t.Fatalf("expected pass, got %s (%s)", g.Status, g.Notes)
	}
}

func TestEvaluateC_PassesWithWarningOnZeroCitations(t *testing.T) {
	g := EvaluateC(nil)
	if g.Status != artifacts.GatePass {
		t.Fatalf("expected pass, got %s (%s)", g.Status, g.Notes)
	}
	if len(g.Warnings) != 1 || g.Warnings[0] != warnNoURLsExtracted {
		t.Fatalf("expected NO_URLS_EXTRACTED warning, got %v", g.Warnings)
	}
}

func TestEvaluateD_FailsWhenTotalExceedsCap(t *testing.T) {
	pack := artifacts.SummaryPack{TotalSizeBytes: 300 * 1024, Entries: []artifacts.SummaryEntry{{SizeBytes: 10 * 1024}}}
	g := EvaluateD(pack, 1, 64, 256)
	if g.Status != artifacts.GateFail {
		t.Fatalf("expected fail, got %s", g.Status)
	}
}

func TestEvaluateD_FailsWhenSummaryCountRatioBelowMinimum(t *testing.T) {
	pack := artifacts.SummaryPack{TotalSizeBytes: 1024, Entries: []artifacts.SummaryEntry{{SizeBytes: 1024}}}
	g := EvaluateD(pack, 4, 64, 256)
	if g.Status != artifacts.GateFail {
		t.Fatalf("expected fail, got %s (%s)", g.Status, g.Notes)
	}
}

func TestEvaluateD_PassesWhenCountRatioAndCapsAreFine(t *testing.T) {
	pack := artifacts.SummaryPack{TotalSizeBytes: 2048, Entries: []artifacts.SummaryEntry{{SizeBytes: 1024}, {SizeBytes: 1024}}}
	g := EvaluateD(pack, 2, 64, 256)
	if g.Status != artifacts.GatePass {
		t.Fatalf("expected pass, got %s (%s)", g.Status, g.Notes)
	}
}

func TestEvaluateE_FailsOnUncitedNumericClaims(t *testing.T) {
	sections := artifacts.SectionsPresentReport{Required: artifacts.RequiredSynthesisHeadings, Present: artifacts.RequiredSynthesisHeadings, Ratio: 1}
	numeric := artifacts.NumericClaimsReport{UncitedCount: 2}
	util := artifacts.CitationUtilizationReport{UtilizationRatio: 0.9}
	g := EvaluateE(sections, numeric, util)
	if g.Status != artifacts.GateFail {
		t.Fatalf("expected fail, got %s", g.Status)
	}
}

func TestEvaluateE_DoesNotFailOnLowUtilizationAlone(t *testing.T) {
	sections := artifacts.SectionsPresentReport{Required: artifacts.RequiredSynthesisHeadings, Present: artifacts.RequiredSynthesisHeadings, Ratio: 1}
	numeric := artifacts.NumericClaimsReport{UncitedCount: 0}
	util := artifacts.CitationUtilizationReport{UtilizationRatio: 0.1, DuplicateRate: 0.5}
	g := EvaluateE(sections, numeric, util)
	if g.Status != artifacts.GatePass {
		t.Fatalf("expected pass, got %s (%s)", g.Status, g.Notes)
	}
	if len(g.Warnings) != 2 {
		t.Fatalf("expected low-utilization and high-duplicate warnings, got %v", g.Warnings)
	}
}

func TestEvaluateF_WarnsWithoutBlocking(t *testing.T) {
	g := EvaluateF([]string{"rollout canary not run"})
	if g.Status != artifacts.GateWarn {
		t.Fatalf("expected warn, got %s", g.Status)
	}
	if g.Class != artifacts.ClassSoft {
		t.Fatalf("expected soft class")
	}
}
