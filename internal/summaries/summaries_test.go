package summaries

import (
	"testing"

	"github.com/deepresearch/orchestrator/internal/corerr"
)

func TestBuildPack_RejectsUnvalidatedCID(t *testing.T) {
	entries := []EntryInput{{PerspectiveID: "p1", Text: "text", CitedCIDs: []string{"cid_unknown"}}}
	_, err := BuildPack(entries, map[string]bool{"cid_known": true})
	if err == nil || err.Code != corerr.CodeUnknownCID {
		t.Fatalf("expected UNKNOWN_CID, got %v", err)
	}
}

func TestBuildPack_SumsTotalSizeBytes(t *testing.T) {
	entries := []EntryInput{
		{PerspectiveID: "p1", Text: "abcde", CitedCIDs: []string{"cid_known"}},
		{PerspectiveID: "p2", Text: "abc", CitedCIDs: nil},
	}
	pack, err := BuildPack(entries, map[string]bool{"cid_known": true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if pack.TotalSizeBytes != 8 {
		t.Fatalf("expected total 8, got %d", pack.TotalSizeBytes)
	}
}

func TestValidateSynthesisHeadings_ReportsMissingHeadings(t *testing.T) {
	md := "## Summary\n\ntext\n\n## Key Findings\n\ntext\n"
	report := ValidateSynthesisHeadings(md)
	if len(report.Missing) != 2 {
		t.Fatalf("expected 2 missing headings, got %v", report.Missing)
	}
}

func TestFindUncitedNumericClaims_FlagsNumberWithoutCitation(t *testing.T) {
	md := "Revenue grew 42% last year.\n\nSomething uncontroversial with no numbers.\n\nCosts fell 10% [@cid_abc123]."
	report := FindUncitedNumericClaims(md)
	if report.UncitedCount != 1 {
		t.Fatalf("expected 1 uncited claim, got %d: %v", report.UncitedCount, report.Findings)
	}
}

func TestFindUncitedNumericClaims_AcceptsAtCidMarker(t *testing.T) {
	md := "Margins improved 42% [@cid_ab] over the prior quarter."
	report := FindUncitedNumericClaims(md)
	if report.UncitedCount != 0 {
		t.Fatalf("expected 0 uncited claims, got %d: %v", report.UncitedCount, report.Findings)
	}
}

func TestFindUncitedNumericClaims_IgnoresFencedCodeBlocks(t *testing.T) {
	md := "Some prose with no numbers.\n\n```\ncount = 42\n```\n\nMore prose with no numbers either."
	report := FindUncitedNumericClaims(md)
	if report.UncitedCount != 0 {
		t.Fatalf("expected 0 uncited claims from fenced code, got %d: %v", report.UncitedCount, report.Findings)
	}
}

func TestFindUncitedNumericClaims_IgnoresOrderedListMarkers(t *testing.T) {
	md := "1. First item\n2. Second item\n3. Third item with no real figure"
	report := FindUncitedNumericClaims(md)
	if report.UncitedCount != 0 {
		t.Fatalf("expected 0 uncited claims from list markers, got %d: %v", report.UncitedCount, report.Findings)
	}
}

func TestComputeCitationUtilization_CountsUsedAndDuplicateCIDs(t *testing.T) {
	md := "First point [@cid_a]. Repeated point [@cid_a]. Another point [@cid_b]."
	report := ComputeCitationUtilization(md, []string{"cid_a", "cid_b", "cid_c"})
	if report.UsedCIDs != 2 {
		t.Fatalf("expected 2 used cids, got %d", report.UsedCIDs)
	}
	if report.TotalMentions != 3 {
		t.Fatalf("expected 3 mentions, got %d", report.TotalMentions)
	}
	if report.DuplicateRate <= 0 {
		t.Fatalf("expected positive duplicate rate, got %f", report.DuplicateRate)
	}
}
