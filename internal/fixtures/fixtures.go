// Package fixtures implements the capture-fixtures CLI operation: snapshot
// a run's artifacts into a named, replayable bundle so a later run can be
// driven deterministically from fixture data instead of a live agent seam.
// Grounded in the teacher's persistedStats snapshotting in its auditor role.
package fixtures

import (
	"os"
	"path/filepath"
	"time"

	"github.com/deepresearch/orchestrator/internal/corerr"
	"github.com/deepresearch/orchestrator/internal/ioutil"
)

// Bundle is the manifest written alongside a captured fixture set.
type Bundle struct {
	BundleID   string   `json:"bundle_id"`
	RunID      string   `json:"run_id"`
	Reason     string   `json:"reason"`
	CapturedAt string   `json:"captured_at"`
	Files      []string `json:"files"`
}

// CaptureBundle copies the named relative artifact paths from runRoot into
// fixturesRoot/bundleID/, and writes a bundle.json describing what was
// captured and why.
//
// Expectations:
//   - files are copied byte-for-byte via AtomicWriteText (no JSON
//     re-encoding — a captured fixture must round-trip identically even if
//     its schema later evolves)
//   - missing source files are skipped, not errored: a partial run can still
//     be captured for early-stage regression fixtures
func CaptureBundle(runRoot, fixturesRoot, bundleID, reason string, relFiles []string) (Bundle, *corerr.Error) {
	bundle := Bundle{
		BundleID:   bundleID,
		Reason:     reason,
		CapturedAt: time.Now().UTC().Format(time.RFC3339),
	}
	destRoot, err := ioutil.ResolveContained(fixturesRoot, bundleID)
	if err != nil {
		return bundle, err.(*corerr.Error)
	}
	for _, rel := range relFiles {
		srcPath, serr := ioutil.ResolveContained(runRoot, rel)
		if serr != nil {
			return bundle, serr.(*corerr.Error)
		}
		data, rerr := readOptional(srcPath)
		if rerr != nil {
			return bundle, rerr
		}
		if data == nil {
			continue
		}
		destPath := filepath.Join(destRoot, rel)
		if werr := ioutil.AtomicWriteText(destPath, string(data)); werr != nil {
			return bundle, werr.(*corerr.Error)
		}
		bundle.Files = append(bundle.Files, filepath.ToSlash(rel))
	}

	manifestPath := filepath.Join(destRoot, "bundle.json")
	if werr := ioutil.AtomicWriteJSON(manifestPath, bundle); werr != nil {
		return bundle, werr.(*corerr.Error)
	}
	return bundle, nil
}

// WaveOutputFixtureEntry is the replayable shape a captured wave output file
// becomes when loaded back as an agentrunner.Response-compatible fixture.
type WaveOutputFixtureEntry struct {
	PerspectiveID string `json:"perspective_id"`
	Kind          string `json:"kind"`
	OutputMD      string `json:"output_md"`
}

// DefaultArtifactSet lists the relative paths captured for a standard
// fixture bundle — every document a "fixture" driver replay needs, per
// spec.md §4.12's "fixture" driver.
func DefaultArtifactSet() []string {
	return []string{
		"manifest.json", "gates.json", "run-config.json", "scope.json",
		"perspectives.json", "wave-1/wave1-plan.json", "wave-review.json",
		"pivot.json", "citations.jsonl", "summaries/summary-pack.json",
		"synthesis/final-synthesis.md", "review/review-bundle.json",
	}
}

// readOptional reads path, returning (nil, nil) if it does not exist so
// CaptureBundle can skip artifacts a run hasn't produced yet.
func readOptional(path string) ([]byte, *corerr.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, corerr.Newf(corerr.CodeWriteFailed, "read %s for capture: %v", path, err)
	}
	return data, nil
}
