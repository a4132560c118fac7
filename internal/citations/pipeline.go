package citations

import (
	"context"
	"sort"

	"github.com/deepresearch/orchestrator/internal/artifacts"
)

// MaxMentionsPerURL caps found_by.json entries (spec.md §4.9).
const MaxMentionsPerURL = 20

// ResolveMode applies the sensitivity→mode precedence chain (spec.md §4.9):
// an explicit override always wins, even for a restricted run; otherwise
// "restricted" and "no_web" force offline, and "normal" defaults to online.
func ResolveMode(sensitivity string, override artifacts.CitationValidationMode) artifacts.CitationValidationMode {
	if override != "" {
		return override
	}
	switch sensitivity {
	case "restricted", "no_web":
		return artifacts.CitationModeOffline
	default:
		return artifacts.CitationModeOnline
	}
}

// Run extracts, normalizes, deduplicates, and validates every URL mentioned
// across a set of (markdown, wave, perspectiveID) inputs, returning the
// sorted citations.jsonl records plus the found-by.json map.
//
// Expectations:
//   - citations are sorted by (normalized_url, url_original) so two runs
//     over the same inputs produce byte-identical citations.jsonl
//   - found_by lists are capped at MaxMentionsPerURL, earliest mentions kept
//   - a URL that fails Normalize is recorded nowhere — it never reaches the
//     validated set, per spec.md's RAW_URL_NOT_ALLOWED posture
func Run(ctx context.Context, v *Validator, docs []Document) ([]artifacts.Citation, artifacts.FoundBy) {
	type bucket struct {
		original string
		mentions []Mention
	}
	byNormalized := make(map[string]*bucket)
	order := make([]string, 0)

	for _, doc := range docs {
		for _, m := range ExtractURLs(doc.MD, doc.Wave, doc.PerspectiveID) {
			normalized, err := Normalize(m.URLOriginal)
			if err != nil {
				continue
			}
			b, ok := byNormalized[normalized]
			if !ok {
				b = &bucket{original: m.URLOriginal}
				byNormalized[normalized] = b
				order = append(order, normalized)
			}
			b.mentions = append(b.mentions, m)
		}
	}

	sort.Strings(order)

	citations := make([]artifacts.Citation, 0, len(order))
	foundBy := make(artifacts.FoundBy, len(order))
	for _, normalized := range order {
		b := byNormalized[normalized]
		cid := CID(normalized)
		c := v.Validate(ctx, normalized, b.original, cid)
		c.FoundBy = []string{} // populated by caller joining against foundBy's keys, kept empty here to avoid duplicating data
		citations = append(citations, c)

		mentions := b.mentions
		if len(mentions) > MaxMentionsPerURL {
			mentions = mentions[:MaxMentionsPerURL]
		}
		foundBy[normalized] = mentions
	}

	return citations, foundBy
}

// Document is one markdown artifact (a wave output file) to scan for URLs.
type Document struct {
	MD            string
	Wave          int
	PerspectiveID string
}

// RenderBlockedMarkdown renders blocked/invalid citations into the
// operator-facing blocked-urls.md table.
func RenderBlockedMarkdown(blocked []artifacts.BlockedURL) string {
	out := "# Blocked URLs\n\n| URL | Reason | Action |\n| --- | --- | --- |\n"
	for _, b := range blocked {
		out += "| " + b.URL + " | " + b.Reason + " | " + b.Action + " |\n"
	}
	return out
}
