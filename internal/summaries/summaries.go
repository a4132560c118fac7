// Package summaries builds summary-pack.json from validated wave output and
// produces three of the four Gate E reports (sections present, numeric
// claims, citation utilization) consumed by internal/gates.EvaluateE
// (spec.md §4.10); cmd/research writes the fourth, the status report, from
// the gate result.
package summaries

import (
	"regexp"
	"strings"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
)

// BuildPack assembles summary-pack.json from per-perspective summary text,
// rejecting any entry whose cited CIDs aren't all in validatedCIDs.
//
// Expectations:
//   - an entry citing a cid absent from validatedCIDs fails with
//     UNKNOWN_CID and the whole pack build aborts (partial packs are never
//     written — spec.md treats summary-pack.json as all-or-nothing)
//   - size_bytes is computed from the entry text's UTF-8 byte length, not
//     rune count, so it matches what Gate D's byte caps actually measure
func BuildPack(entries []EntryInput, validatedCIDs map[string]bool) (artifacts.SummaryPack, *corerr.Error) {
	pack := artifacts.SummaryPack{SchemaVersion: artifacts.SummaryPackSchemaVersion}
	for _, in := range entries {
		for _, cid := range in.CitedCIDs {
			if !validatedCIDs[cid] {
				return artifacts.SummaryPack{}, corerr.New(corerr.CodeUnknownCID, "summary cites an unvalidated cid", map[string]any{
					"perspective_id": in.PerspectiveID, "cid": cid,
				})
			}
		}
		size := len(in.Text)
		pack.Entries = append(pack.Entries, artifacts.SummaryEntry{
			PerspectiveID: in.PerspectiveID,
			Path:          in.Path,
			SizeBytes:     size,
			CitedCIDs:     in.CitedCIDs,
		})
		pack.TotalSizeBytes += size
	}
	return pack, nil
}

// EntryInput is one perspective's bounded summary text plus its cited CIDs,
// the input BuildPack assembles into the persisted pack.
type EntryInput struct {
	PerspectiveID string
	Path          string
	Text          string
	CitedCIDs     []string
}

var headingRe = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

// ValidateSynthesisHeadings checks final-synthesis.md contains every
// heading in artifacts.RequiredSynthesisHeadings.
func ValidateSynthesisHeadings(md string) artifacts.SectionsPresentReport {
	present := map[string]bool{}
	for _, m := range headingRe.FindAllStringSubmatch(md, -1) {
		present[m[1]] = true
	}
	var presentList, missing []string
	for _, h := range artifacts.RequiredSynthesisHeadings {
		if present[h] {
			presentList = append(presentList, h)
		} else {
			missing = append(missing, h)
		}
	}
	ratio := 0.0
	if len(artifacts.RequiredSynthesisHeadings) > 0 {
		ratio = float64(len(presentList)) / float64(len(artifacts.RequiredSynthesisHeadings))
	}
	return artifacts.SectionsPresentReport{
		Required: artifacts.RequiredSynthesisHeadings,
		Present:  presentList,
		Missing:  missing,
		Ratio:    ratio,
	}
}

var numericTokenRe = regexp.MustCompile(`-?\d+(?:\.\d+)?%?`)
var citationTokenRe = regexp.MustCompile(`\[@cid_[0-9a-f]+\]`)
var fencedCodeBlockRe = regexp.MustCompile(`(?s)` + "```" + `.*?` + "```")
var orderedListMarkerRe = regexp.MustCompile(`^\s*\d+[.)]\s`)

// stripFencedCodeBlocks blanks out fenced code regions (keeping paragraph
// boundaries intact) so numeric tokens inside code samples never register
// as claims — spec.md §4.6 scopes the numeric-claim scan to prose only.
func stripFencedCodeBlocks(md string) string {
	return fencedCodeBlockRe.ReplaceAllStringFunc(md, func(block string) string {
		return strings.Repeat("\n", strings.Count(block, "\n"))
	})
}

// FindUncitedNumericClaims scans each non-heading paragraph of md for a
// numeric token (a figure, percentage, or count) unaccompanied by a
// "[@cid_...]" citation marker anywhere in that paragraph. Fenced code
// blocks and ordered-list marker lines are excluded from the scan.
func FindUncitedNumericClaims(md string) artifacts.NumericClaimsReport {
	paragraphs := strings.Split(stripFencedCodeBlocks(md), "\n\n")
	var findings []artifacts.NumericClaimFinding
	for i, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		token := ""
		for _, line := range strings.Split(para, "\n") {
			if orderedListMarkerRe.MatchString(line) {
				continue
			}
			if t := numericTokenRe.FindString(line); t != "" {
				token = t
				break
			}
		}
		if token == "" {
			continue
		}
		if citationTokenRe.MatchString(para) {
			continue
		}
		excerpt := para
		if len(excerpt) > 160 {
			excerpt = excerpt[:160]
		}
		findings = append(findings, artifacts.NumericClaimFinding{
			ParagraphIndex: i,
			Excerpt:        strings.TrimSpace(excerpt),
			Token:          token,
		})
	}
	return artifacts.NumericClaimsReport{UncitedCount: len(findings), Findings: findings}
}

// ExtractCitedCIDs returns the distinct cids referenced by "[@cid_...]"
// markers in md, in first-seen order — used to populate a summary entry's
// cited_cids before BuildPack checks each one against the validated set.
func ExtractCitedCIDs(md string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range citationTokenRe.FindAllString(md, -1) {
		cid := strings.TrimSuffix(strings.TrimPrefix(m, "[@"), "]")
		if !seen[cid] {
			seen[cid] = true
			out = append(out, cid)
		}
	}
	return out
}

// ComputeCitationUtilization reports how many of the validated citation
// pool's cids actually appear in the synthesis text, plus a duplicate rate
// (mentions beyond the first per cid, divided by total mentions).
func ComputeCitationUtilization(md string, validatedCIDs []string) artifacts.CitationUtilizationReport {
	mentions := citationTokenRe.FindAllString(md, -1)
	counts := map[string]int{}
	for _, m := range mentions {
		cid := strings.TrimSuffix(strings.TrimPrefix(m, "[@"), "]")
		counts[cid]++
	}
	used := 0
	for _, c := range validatedCIDs {
		if counts[c] > 0 {
			used++
		}
	}
	total := len(mentions)
	duplicates := 0
	for _, n := range counts {
		if n > 1 {
			duplicates += n - 1
		}
	}
	dupRate := 0.0
	if total > 0 {
		dupRate = float64(duplicates) / float64(total)
	}
	utilRatio := 0.0
	if len(validatedCIDs) > 0 {
		utilRatio = float64(used) / float64(len(validatedCIDs))
	}
	return artifacts.CitationUtilizationReport{
		ValidatedCIDs:    len(validatedCIDs),
		UsedCIDs:         used,
		TotalMentions:    total,
		UtilizationRatio: utilRatio,
		DuplicateRate:    dupRate,
	}
}
