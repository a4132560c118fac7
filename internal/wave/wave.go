// Package wave builds wave prompts and validates wave output against the
// per-perspective contract (spec.md §4.7). Prompt construction is
// deterministic and digest-cached: calling BuildPlan twice with the same
// scope+perspectives produces byte-identical prompt_md and prompt_digest,
// so internal/orchestrator can skip re-running an agent whose inputs did
// not change.
package wave

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/ioutil"
)

// BuildPlan renders one deterministic prompt per perspective, embedding the
// scope contract and this perspective's bounds, and computes a digest per
// entry plus over the whole plan.
func BuildPlan(runID string, scope artifacts.Scope, perspectives artifacts.Perspectives) artifacts.Wave1Plan {
	entries := make([]artifacts.Wave1PlanEntry, 0, len(perspectives.Items))
	for _, p := range perspectives.Items {
		md := renderPrompt(p, scope, nil)
		entries = append(entries, artifacts.Wave1PlanEntry{
			PerspectiveID: p.ID,
			PromptMD:      md,
			PromptDigest:  ioutil.DigestString(md),
		})
	}
	inputsDigest, _ := ioutil.SHA256DigestJSON(struct {
		Scope        artifacts.Scope              `json:"scope"`
		Perspectives artifacts.Perspectives       `json:"perspectives"`
	}{scope, perspectives})
	return artifacts.Wave1Plan{
		SchemaVersion: artifacts.Wave1PlanSchemaVersion,
		RunID:         runID,
		InputsDigest:  inputsDigest,
		Entries:       entries,
	}
}

// BuildWave2Prompt renders a gap-driven prompt for one perspective,
// embedding the scope contract plus the specific gaps it must address —
// used when pivot.wave2_required is true.
func BuildWave2Prompt(p artifacts.Perspective, scope artifacts.Scope, gaps []artifacts.Gap) artifacts.Wave1PlanEntry {
	md := renderPrompt(p, scope, gaps)
	return artifacts.Wave1PlanEntry{PerspectiveID: p.ID, PromptMD: md, PromptDigest: ioutil.DigestString(md)}
}

func renderPrompt(p artifacts.Perspective, scope artifacts.Scope, gaps []artifacts.Gap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Perspective: %s (%s)\n\n", p.Title, p.Track)
	b.WriteString(scope.ContractText())
	b.WriteString("\n## Output Contract\n\n")
	fmt.Fprintf(&b, "- Max words: %d\n", p.PromptContract.MaxWords)
	fmt.Fprintf(&b, "- Max sources: %d\n", p.PromptContract.MaxSources)
	fmt.Fprintf(&b, "- Tool budget: %d\n", p.PromptContract.ToolBudget)
	b.WriteString("- Must include sections: " + strings.Join(p.PromptContract.MustIncludeSections, ", ") + "\n")
	if len(gaps) > 0 {
		b.WriteString("\n## Gaps To Address\n\n")
		for _, g := range gaps {
			fmt.Fprintf(&b, "- (%s) %s\n", g.Priority, g.Text)
		}
	}
	return b.String()
}

var sourceLineRe = regexp.MustCompile(`^\s*-\s*(.+?)\s*:\s*(\S+)\s*$`)

// ValidateOutput checks one perspective's rendered markdown output against
// its contract: required sections present, word count within cap, and every
// line under "## Sources" parses as "- <label>: <url>".
//
// Expectations:
//   - missing sections are reported with FailureMissingSection
//   - a word count over MaxWords is FailureTooManyWords
//   - more than MaxSources non-empty lines under "## Sources" (well-formed
//     or not) is FailureTooManySources
//   - any "## Sources" line that doesn't match "- label: url" is
//     FailureMalformedSources
//   - a perspective can collect more than one failure code at once; Pass is
//     true only when FailureCodes is empty
func ValidateOutput(md string, contract artifacts.PromptContract) artifacts.WaveReviewEntry {
	entry := artifacts.WaveReviewEntry{}
	sections := extractSections(md)

	var missing []string
	for _, required := range contract.MustIncludeSections {
		if _, ok := sections[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		entry.MissingSections = missing
		entry.FailureCodes = append(entry.FailureCodes, artifacts.FailureMissingSection)
	}

	words := len(strings.Fields(md))
	entry.Words = words
	if words > contract.MaxWords {
		entry.FailureCodes = append(entry.FailureCodes, artifacts.FailureTooManyWords)
	}

	sourcesBody, hasSources := sections["Sources"]
	if hasSources {
		lines := nonEmptyLines(sourcesBody)
		entry.Sources = len(lines)
		malformed := false
		for _, line := range lines {
			if !sourceLineRe.MatchString(line) {
				malformed = true
			}
		}
		if malformed {
			entry.FailureCodes = append(entry.FailureCodes, artifacts.FailureMalformedSources)
		}
		if len(lines) > contract.MaxSources {
			entry.FailureCodes = append(entry.FailureCodes, artifacts.FailureTooManySources)
		}
	}

	entry.Pass = len(entry.FailureCodes) == 0
	return entry
}

var headingRe = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

// Sections exposes extractSections for callers outside this package (the
// pivot stage pulls a perspective's "## Gaps" body out of its wave output
// the same way ValidateOutput pulls "## Sources").
func Sections(md string) map[string]string {
	return extractSections(md)
}

// extractSections splits md on level-2 headings ("## Heading") and returns
// the body text following each one, keyed by heading name.
func extractSections(md string) map[string]string {
	locs := headingRe.FindAllStringSubmatchIndex(md, -1)
	sections := make(map[string]string, len(locs))
	for i, loc := range locs {
		name := md[loc[2]:loc[3]]
		bodyStart := loc[1]
		bodyEnd := len(md)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		sections[name] = md[bodyStart:bodyEnd]
	}
	return sections
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// BuildRetryDirective turns a failed WaveReviewEntry into an actionable
// retry instruction, quoting the specific failure back to the agent seam so
// a retried attempt has something concrete to fix.
func BuildRetryDirective(entry artifacts.WaveReviewEntry) artifacts.RetryDirective {
	code := artifacts.FailureCode("")
	if len(entry.FailureCodes) > 0 {
		code = entry.FailureCodes[0]
	}
	var note string
	switch code {
	case artifacts.FailureMissingSection:
		note = "add missing section(s): " + strings.Join(entry.MissingSections, ", ")
	case artifacts.FailureTooManyWords:
		note = fmt.Sprintf("reduce word count from %d to within contract limit", entry.Words)
	case artifacts.FailureMalformedSources:
		note = "fix malformed source lines under ## Sources (expected \"- label: url\")"
	case artifacts.FailureTooManySources:
		note = fmt.Sprintf("reduce source count from %d to within contract limit", entry.Sources)
	default:
		note = "revise output to satisfy the output contract"
	}
	return artifacts.RetryDirective{
		PerspectiveID:     entry.PerspectiveID,
		Action:            "retry",
		ChangeNote:        note,
		BlockingErrorCode: code,
	}
}
