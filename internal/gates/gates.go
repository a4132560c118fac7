// Package gates implements the six evaluators A-F (spec.md §4.6-§4.10).
// Each Evaluate* function is pure: it takes the artifacts it needs and
// returns an artifacts.Gate the caller persists via runstore.GateWrite. None
// of these functions touch the filesystem themselves, which is what makes
// them independently testable against fixture data.
package gates

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/deepresearch/orchestrator/internal/artifacts"
)

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// round6 rounds a ratio to 6 decimal places, spec.md §4.6's precision for
// gate rate metrics — without it, two evaluators run against equivalent
// fixture sets on different machines could disagree in the 7th decimal and
// produce different pass/fail outcomes at a threshold boundary.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

const (
	minValidatedURLRate   = 0.9
	maxInvalidURLRate     = 0.1
	minSummaryCountRatio  = 0.9
	minCitationUtilRatio  = 0.6
	maxDuplicateCitation  = 0.2
	warnNoURLsExtracted   = "NO_URLS_EXTRACTED"
	warnLowUtilization    = "LOW_CITATION_UTILIZATION"
	warnHighDuplicateRate = "HIGH_DUPLICATE_CITATION_RATE"
)

// EvaluateA checks planning completeness: at least one perspective exists,
// and every perspective has a wave-1 plan entry whose rendered prompt embeds
// the scope's "## Scope Contract" text verbatim. It does not schema-validate
// scope or perspectives, and does not check the perspective count against
// limits.max_wave1_agents.
func EvaluateA(scope artifacts.Scope, perspectives artifacts.Perspectives, plan artifacts.Wave1Plan) artifacts.Gate {
	g := artifacts.Gate{ID: artifacts.GateA, Name: "Planning completeness", Class: artifacts.ClassHard, CheckedAt: nowRFC3339()}
	if len(perspectives.Items) == 0 {
		return fail(g, "no perspectives defined")
	}
	contract := scope.ContractText()
	byID := make(map[string]artifacts.Wave1PlanEntry, len(plan.Entries))
	for _, e := range plan.Entries {
		byID[e.PerspectiveID] = e
	}
	var missing []string
	for _, p := range perspectives.Items {
		entry, ok := byID[p.ID]
		if !ok || !strings.Contains(entry.PromptMD, contract) {
			missing = append(missing, p.ID)
		}
	}
	if len(missing) > 0 {
		g.Warnings = missing
		return fail(g, fmt.Sprintf("%d perspective(s) missing embedded scope contract", len(missing)))
	}
	return pass(g)
}

// EvaluateB checks wave output contract compliance: every entry in a
// WaveReview passed (no failure codes, all sections present, within the
// word/source caps).
func EvaluateB(review artifacts.WaveReview) artifacts.Gate {
	g := artifacts.Gate{ID: artifacts.GateB, Name: "Wave output contract compliance", Class: artifacts.ClassHard, CheckedAt: nowRFC3339()}
	if len(review.Entries) == 0 {
		return fail(g, "no wave review entries")
	}
	var failing []string
	for _, e := range review.Entries {
		if !e.Pass {
			failing = append(failing, e.PerspectiveID)
		}
	}
	if len(failing) > 0 {
		g.Warnings = failing
		return fail(g, fmt.Sprintf("%d perspective(s) failed wave output contract", len(failing)))
	}
	return pass(g)
}

// EvaluateC checks citation validation integrity against the full extracted
// set (spec.md §4.6): validated_url_rate >= 0.9, invalid_url_rate <= 0.1,
// and uncategorized_url_rate == 0. An empty extracted set isn't a failure —
// it passes with a NO_URLS_EXTRACTED warning, since a deliverable with no
// sourced claims at all is a planning/scope problem, not a validation one.
func EvaluateC(citations []artifacts.Citation) artifacts.Gate {
	g := artifacts.Gate{ID: artifacts.GateC, Name: "Citation validation integrity", Class: artifacts.ClassHard, CheckedAt: nowRFC3339()}
	total := len(citations)
	if total == 0 {
		g.Warnings = []string{warnNoURLsExtracted}
		g.Metrics = map[string]float64{"total": 0}
		return pass(g)
	}
	var validated, invalid, uncategorized int
	for _, c := range citations {
		switch c.Status {
		case artifacts.CitationValid, artifacts.CitationPaywalled:
			validated++
		case artifacts.CitationInvalid, artifacts.CitationMismatch:
			invalid++
		case artifacts.CitationBlocked:
			// blocked is neither validated nor invalid/mismatched: it counts
			// toward the denominator only.
		default:
			uncategorized++
		}
	}
	validatedRate := round6(float64(validated) / float64(total))
	invalidRate := round6(float64(invalid) / float64(total))
	uncategorizedRate := round6(float64(uncategorized) / float64(total))
	g.Metrics = map[string]float64{
		"total":                   float64(total),
		"validated_url_rate":      validatedRate,
		"invalid_url_rate":        invalidRate,
		"uncategorized_url_rate":  uncategorizedRate,
	}

	var reasons []string
	if validatedRate < minValidatedURLRate {
		reasons = append(reasons, fmt.Sprintf("validated_url_rate %.6f below minimum %.2f", validatedRate, minValidatedURLRate))
	}
	if invalidRate > maxInvalidURLRate {
		reasons = append(reasons, fmt.Sprintf("invalid_url_rate %.6f above maximum %.2f", invalidRate, maxInvalidURLRate))
	}
	if uncategorizedRate > 0 {
		reasons = append(reasons, fmt.Sprintf("uncategorized_url_rate %.6f above 0", uncategorizedRate))
	}
	if len(reasons) > 0 {
		return fail(g, strings.Join(reasons, "; "))
	}
	return pass(g)
}

// EvaluateD checks summary pack boundedness (spec.md §4.6): every entry and
// the total within the KB caps, and summary_count_ratio (entries produced
// over perspectives expected) at or above 0.9 — a pack missing half its
// entries must not slip through on KB caps alone.
func EvaluateD(pack artifacts.SummaryPack, expectedCount, maxEntryKB, maxTotalKB int) artifacts.Gate {
	g := artifacts.Gate{ID: artifacts.GateD, Name: "Summary pack boundedness", Class: artifacts.ClassHard, CheckedAt: nowRFC3339()}
	maxEntryBytes := maxEntryKB * 1024
	maxTotalBytes := maxTotalKB * 1024

	countRatio := 1.0
	if expectedCount > 0 {
		countRatio = round6(float64(len(pack.Entries)) / float64(expectedCount))
	}
	g.Metrics = map[string]float64{
		"total_size_bytes":     float64(pack.TotalSizeBytes),
		"summary_count_ratio":  countRatio,
		"expected_count":       float64(expectedCount),
		"actual_count":         float64(len(pack.Entries)),
	}

	var over []string
	for _, e := range pack.Entries {
		if e.SizeBytes > maxEntryBytes {
			over = append(over, e.PerspectiveID)
		}
	}
	var reasons []string
	if len(over) > 0 {
		g.Warnings = over
		reasons = append(reasons, fmt.Sprintf("%d summary entr(ies) exceed per-entry cap", len(over)))
	}
	if pack.TotalSizeBytes > maxTotalBytes {
		reasons = append(reasons, fmt.Sprintf("total summary size %d exceeds cap %d", pack.TotalSizeBytes, maxTotalBytes))
	}
	if countRatio < minSummaryCountRatio {
		reasons = append(reasons, fmt.Sprintf("summary_count_ratio %.6f below minimum %.2f", countRatio, minSummaryCountRatio))
	}
	if len(reasons) > 0 {
		return fail(g, strings.Join(reasons, "; "))
	}
	return pass(g)
}

// EvaluateE checks synthesis quality from three of the four Gate E reports
// (sections present, numeric claims, citation utilization; the fourth, the
// status report, is written from this gate's result) (spec.md §4.10). Only two conditions are hard: every required heading present, and
// zero uncited numeric claims. Low citation utilization and a high
// duplicate-citation rate are soft signals — they're recorded as warnings,
// never as a reason to fail a hard gate.
func EvaluateE(sections artifacts.SectionsPresentReport, numeric artifacts.NumericClaimsReport, util artifacts.CitationUtilizationReport) artifacts.Gate {
	g := artifacts.Gate{ID: artifacts.GateE, Name: "Synthesis quality", Class: artifacts.ClassHard, CheckedAt: nowRFC3339()}
	var reasons []string
	if len(sections.Missing) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing sections: %s", strings.Join(sections.Missing, ", ")))
	}
	if numeric.UncitedCount > 0 {
		reasons = append(reasons, fmt.Sprintf("%d uncited numeric claim(s)", numeric.UncitedCount))
	}

	var warnings []string
	if util.UtilizationRatio < minCitationUtilRatio {
		warnings = append(warnings, warnLowUtilization)
	}
	if util.DuplicateRate > maxDuplicateCitation {
		warnings = append(warnings, warnHighDuplicateRate)
	}
	g.Warnings = warnings
	g.Metrics = map[string]float64{
		"sections_ratio":       sections.Ratio,
		"utilization_ratio":    util.UtilizationRatio,
		"uncited_claims_count": float64(numeric.UncitedCount),
		"duplicate_rate":       util.DuplicateRate,
	}
	if len(reasons) > 0 {
		return fail(g, strings.Join(reasons, "; "))
	}
	return pass(g)
}

// EvaluateF is the soft rollout-safety placeholder gate: it never blocks a
// transition (no precondition in stagemachine.Table references it) and
// defaults to not_run unless a caller explicitly runs a rollout check.
// Because it is soft, a failing condition here becomes "warn", not "fail".
func EvaluateF(warnings []string) artifacts.Gate {
	g := artifacts.Gate{ID: artifacts.GateF, Name: "Rollout safety", Class: artifacts.ClassSoft, CheckedAt: nowRFC3339()}
	if len(warnings) == 0 {
		return pass(g)
	}
	g.Status = artifacts.GateWarn
	g.Warnings = warnings
	g.Notes = "rollout safety check raised warnings; run is not blocked"
	return g
}

func pass(g artifacts.Gate) artifacts.Gate {
	g.Status = artifacts.GatePass
	return g
}

func fail(g artifacts.Gate, note string) artifacts.Gate {
	g.Status = artifacts.GateFail
	g.Notes = note
	return g
}
