package wave

import (
	"strings"
	"testing"

	"github.com/deepresearch/orchestrator/internal/artifacts"
)

func sampleContract() artifacts.PromptContract {
	return artifacts.PromptContract{MaxWords: 50, MaxSources: 3, ToolBudget: 5, MustIncludeSections: []string{"Findings", "Gaps", "Sources"}}
}

func TestBuildPlan_ProducesStablePromptDigestAcrossCalls(t *testing.T) {
	scope := artifacts.Scope{Questions: []string{"q1"}, Deliverable: "brief", Depth: "standard"}
	perspectives := artifacts.Perspectives{Items: []artifacts.Perspective{{ID: "standard-1", Title: "Standard", Track: artifacts.TrackStandard, PromptContract: sampleContract()}}}
	p1 := BuildPlan("run-1", scope, perspectives)
	p2 := BuildPlan("run-1", scope, perspectives)
	if p1.Entries[0].PromptDigest != p2.Entries[0].PromptDigest {
		t.Fatalf("expected stable digest, got %s vs %s", p1.Entries[0].PromptDigest, p2.Entries[0].PromptDigest)
	}
}

func TestBuildPlan_EmbedsScopeContract(t *testing.T) {
	scope := artifacts.Scope{Questions: []string{"q1"}, Deliverable: "brief", Depth: "standard"}
	perspectives := artifacts.Perspectives{Items: []artifacts.Perspective{{ID: "standard-1", PromptContract: sampleContract()}}}
	plan := BuildPlan("run-1", scope, perspectives)
	if !strings.Contains(plan.Entries[0].PromptMD, "## Scope Contract") {
		t.Fatalf("expected prompt to embed scope contract")
	}
}

func TestValidateOutput_PassesWellFormedOutput(t *testing.T) {
	md := "## Findings\n\nsome finding text\n\n## Gaps\n\n- (P1) thing\n\n## Sources\n\n- Example: https://example.com/a\n"
	entry := ValidateOutput(md, sampleContract())
	if !entry.Pass {
		t.Fatalf("expected pass, got failures %v", entry.FailureCodes)
	}
}

func TestValidateOutput_FlagsMissingSection(t *testing.T) {
	md := "## Findings\n\ntext\n\n## Sources\n\n- Example: https://example.com/a\n"
	entry := ValidateOutput(md, sampleContract())
	if entry.Pass {
		t.Fatalf("expected failure for missing Gaps section")
	}
	found := false
	for _, c := range entry.FailureCodes {
		if c == artifacts.FailureMissingSection {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FailureMissingSection, got %v", entry.FailureCodes)
	}
}

func TestValidateOutput_FlagsMalformedSourceLine(t *testing.T) {
	md := "## Findings\n\ntext\n\n## Gaps\n\n- (P1) thing\n\n## Sources\n\nnot a source line\n"
	entry := ValidateOutput(md, sampleContract())
	found := false
	for _, c := range entry.FailureCodes {
		if c == artifacts.FailureMalformedSources {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FailureMalformedSources, got %v", entry.FailureCodes)
	}
}

func TestValidateOutput_FlagsTooManyWords(t *testing.T) {
	contract := artifacts.PromptContract{MaxWords: 3, MaxSources: 3, MustIncludeSections: []string{"Findings"}}
	md := "## Findings\n\none two three four five\n"
	entry := ValidateOutput(md, contract)
	found := false
	for _, c := range entry.FailureCodes {
		if c == artifacts.FailureTooManyWords {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FailureTooManyWords, got %v", entry.FailureCodes)
	}
}

func TestBuildRetryDirective_NamesMissingSections(t *testing.T) {
	entry := artifacts.WaveReviewEntry{PerspectiveID: "standard-1", MissingSections: []string{"Gaps"}, FailureCodes: []artifacts.FailureCode{artifacts.FailureMissingSection}}
	d := BuildRetryDirective(entry)
	if !strings.Contains(d.ChangeNote, "Gaps") {
		t.Fatalf("expected change note to name missing section, got %q", d.ChangeNote)
	}
}
