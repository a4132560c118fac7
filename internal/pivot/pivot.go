// Package pivot decides whether wave 2 runs, by parsing "## Gaps" bullets
// out of wave-1 output and applying the rule table from spec.md §4.8.
package pivot

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/ioutil"
)

// gapLineRe matches "- (P0) some gap text [#tag1 #tag2]" with the tag suffix
// optional, per spec.md §4.8's gap bullet syntax.
var gapLineRe = regexp.MustCompile(`^-\s*\((P[0-3])\)\s*(.+?)(?:\s*\[(#[^\]]+)\])?\s*$`)

// ParseGaps extracts normalized Gap values from one perspective's "## Gaps"
// section body. Lines that don't match the "- (P#) text [#tags]" syntax are
// skipped, not errored — wave-1 agents are free-text and a best-effort
// parse is what spec.md §4.8 calls for.
func ParseGaps(perspectiveID, gapsBody string) []artifacts.Gap {
	var gaps []artifacts.Gap
	ordinal := 0
	for _, line := range strings.Split(gapsBody, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := gapLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ordinal++
		var tags []string
		if m[3] != "" {
			for _, t := range strings.Fields(m[3]) {
				tags = append(tags, strings.TrimPrefix(t, "#"))
			}
		}
		id := fmt.Sprintf("gap_%s_%d_%s", perspectiveID, ordinal, ioutil.DigestString(line)[7:15])
		gaps = append(gaps, artifacts.Gap{
			ID:       id,
			Priority: artifacts.Priority(m[1]),
			Text:     m[2],
			Tags:     tags,
			Source:   artifacts.GapSourceParsedWave1,
		})
	}
	return gaps
}

// VolumeThreshold is the total gap count (all priorities) above which
// Wave2Required.Volume fires when neither the P0 nor the P1 rule does
// (spec.md §4.8).
const VolumeThreshold = 5

// Decide applies the pivot rule table to a flattened gap list from every
// wave-1 perspective and returns the pivot.json document.
//
// Expectations:
//   - any P0 gap fires RuleWave2RequiredP0
//   - else two or more P1 gaps fire RuleWave2RequiredP1
//   - else more than VolumeThreshold total gaps fire RuleWave2RequiredVolume
//   - else (including zero gaps) RuleWave2SkipNoGaps fires and
//     Wave2Required is false
//   - Wave2GapIDs lists every gap that justified the decision (all P0s, or
//     all P1s, or all gaps over the volume rule) — never padded or trimmed
//     beyond what actually triggered the rule
func Decide(runID string, wave1References []string, gaps []artifacts.Gap, inputsDigest string) artifacts.Pivot {
	p := artifacts.Pivot{
		SchemaVersion:   artifacts.PivotSchemaVersion,
		InputsDigest:    inputsDigest,
		Wave1References: wave1References,
		Gaps:            gaps,
	}

	var p0s, p1s []artifacts.Gap
	for _, g := range gaps {
		switch g.Priority {
		case artifacts.PriorityP0:
			p0s = append(p0s, g)
		case artifacts.PriorityP1:
			p1s = append(p1s, g)
		}
	}

	switch {
	case len(p0s) > 0:
		p.RuleHit = artifacts.RuleWave2RequiredP0
		p.Wave2Required = true
		p.Wave2GapIDs = gapIDs(p0s)
	case len(p1s) >= 2:
		p.RuleHit = artifacts.RuleWave2RequiredP1
		p.Wave2Required = true
		p.Wave2GapIDs = gapIDs(p1s)
	case len(gaps) > VolumeThreshold:
		p.RuleHit = artifacts.RuleWave2RequiredVolume
		p.Wave2Required = true
		p.Wave2GapIDs = gapIDs(gaps)
	default:
		p.RuleHit = artifacts.RuleWave2SkipNoGaps
		p.Wave2Required = false
	}
	return p
}

func gapIDs(gaps []artifacts.Gap) []string {
	ids := make([]string, len(gaps))
	for i, g := range gaps {
		ids[i] = g.ID
	}
	return ids
}
