// Package runstore is the sole writer of run_root/manifest.json and
// run_root/gates.json. Manifest updates go through RFC 7396 JSON Merge Patch
// (github.com/evanphx/json-patch/v5) in ManifestPatch, which enforces the
// immutable-path and optimistic-revision rules from spec.md §4.3; GateWrite
// replaces one gate's mutable fields under the same revision rule. Every
// write appends one audit.jsonl line. No other package writes these two
// files.
package runstore

import (
	"encoding/json"
	"path/filepath"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"go.uber.org/zap"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
	"github.com/deepresearch/orchestrator/internal/ioutil"
	"github.com/deepresearch/orchestrator/internal/schema"
)

// Store binds a run_root directory to the manifest/gates/audit writers. The
// zero value is invalid; build one with New.
type Store struct {
	runRoot string
	log     *zap.Logger
}

// New returns a Store rooted at runRoot. A nil logger is replaced with
// zap.NewNop() so every call site may pass one unconditionally.
func New(runRoot string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{runRoot: runRoot, log: log}
}

func (s *Store) path(rel string) (string, error) {
	return ioutil.ResolveContained(s.runRoot, rel)
}

func (s *Store) auditPath() string {
	p, _ := s.path("logs/audit.jsonl")
	return p
}

// appendAudit writes one audit.jsonl line. Failures are logged, not
// returned: an audit-log write failure must never block the manifest write
// it is describing, or a run could never make progress again.
func (s *Store) appendAudit(kind, reason, inputsDigest string, detail map[string]any) {
	evt := artifacts.AuditEvent{
		Ts:           nowRFC3339(),
		Kind:         kind,
		Reason:       reason,
		InputsDigest: inputsDigest,
		Detail:       detail,
	}
	if err := ioutil.AppendJSONL(s.auditPath(), evt); err != nil {
		s.log.Warn("audit append failed", zap.String("kind", kind), zap.Error(err))
	}
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// ReadManifest loads and validates manifest.json.
func (s *Store) ReadManifest() (artifacts.Manifest, *corerr.Error) {
	var m artifacts.Manifest
	p, err := s.path("manifest.json")
	if err != nil {
		return m, err.(*corerr.Error)
	}
	if e := readJSON(p, &m); e != nil {
		return m, e
	}
	if e := schema.Validate(m); e != nil {
		return m, e
	}
	return m, nil
}

// WriteManifestInit writes the initial manifest.json (revision 1). Used only
// by the init operation — every later write goes through ManifestPatch.
func (s *Store) WriteManifestInit(m artifacts.Manifest) *corerr.Error {
	if e := schema.Validate(m); e != nil {
		return e
	}
	p, perr := s.path("manifest.json")
	if perr != nil {
		return perr.(*corerr.Error)
	}
	if err := ioutil.AtomicWriteJSON(p, m); err != nil {
		return err.(*corerr.Error)
	}
	digest, _ := ioutil.SHA256DigestJSON(m)
	s.appendAudit("manifest_init", "init", digest, map[string]any{"run_id": m.RunID})
	return nil
}

// ManifestPatch applies an RFC 7396 JSON Merge Patch to manifest.json.
//
// Expectations:
//   - expectedRevision must equal the manifest's current revision, or the
//     call fails with REVISION_MISMATCH and nothing is written
//   - patch may not touch any path in artifacts.ImmutableManifestPaths, or
//     the call fails with IMMUTABLE_FIELD
//   - on success, revision is incremented and updated_at is refreshed
//     regardless of what the caller's patch contained
func (s *Store) ManifestPatch(expectedRevision int, patch map[string]any, reason string) (artifacts.Manifest, *corerr.Error) {
	current, err := s.ReadManifest()
	if err != nil {
		return current, err
	}
	if current.Revision != expectedRevision {
		return current, corerr.New(corerr.CodeRevisionMismatch, "manifest revision mismatch", map[string]any{
			"expected": expectedRevision, "actual": current.Revision,
		})
	}
	if violation := firstImmutablePath(patch, artifacts.ImmutableManifestPaths); violation != "" {
		return current, corerr.New(corerr.CodeImmutableField, "patch touches immutable field "+violation, map[string]any{"path": violation})
	}

	merged, jerr := applyMergePatch(current, patch)
	if jerr != nil {
		return current, corerr.Newf(corerr.CodeInvalidJSON, "apply merge patch: %v", jerr)
	}
	var next artifacts.Manifest
	if err := json.Unmarshal(merged, &next); err != nil {
		return current, corerr.Newf(corerr.CodeInvalidJSON, "decode patched manifest: %v", err)
	}
	next.Revision = current.Revision + 1
	next.UpdatedAt = nowRFC3339()
	// created_at/run_id/schema_version/artifacts are immutable regardless of
	// what patch contained — restore from current in case a caller slipped
	// an identical-looking-but-disallowed value past the path check above
	// (e.g. patching a nested key under an immutable object).
	next.SchemaVersion = current.SchemaVersion
	next.RunID = current.RunID
	next.CreatedAt = current.CreatedAt
	next.Artifacts = current.Artifacts

	if e := schema.Validate(next); e != nil {
		return current, e
	}
	p, perr := s.path("manifest.json")
	if perr != nil {
		return current, perr.(*corerr.Error)
	}
	if werr := ioutil.AtomicWriteJSON(p, next); werr != nil {
		return current, werr.(*corerr.Error)
	}
	digest, _ := ioutil.SHA256DigestJSON(next)
	s.appendAudit("manifest_patch", reason, digest, map[string]any{"revision": next.Revision})
	return next, nil
}

// ReadGates loads and validates gates.json.
func (s *Store) ReadGates() (artifacts.Gates, *corerr.Error) {
	var g artifacts.Gates
	p, err := s.path("gates.json")
	if err != nil {
		return g, err.(*corerr.Error)
	}
	if e := readJSON(p, &g); e != nil {
		return g, e
	}
	if e := schema.Validate(g); e != nil {
		return g, e
	}
	return g, nil
}

// WriteGatesInit writes the initial all-not_run gates.json.
func (s *Store) WriteGatesInit(g artifacts.Gates) *corerr.Error {
	if e := schema.Validate(g); e != nil {
		return e
	}
	p, perr := s.path("gates.json")
	if perr != nil {
		return perr.(*corerr.Error)
	}
	if err := ioutil.AtomicWriteJSON(p, g); err != nil {
		return err.(*corerr.Error)
	}
	digest, _ := ioutil.SHA256DigestJSON(g)
	s.appendAudit("gates_init", "init", digest, nil)
	return nil
}

// GateWrite patches exactly one gate's mutable fields (status, checked_at,
// metrics, artifacts, warnings, notes). A hard gate can never be set to
// "warn" — GATE_BLOCKED-adjacent misuse is rejected with
// LIFECYCLE_RULE_VIOLATION before anything is written.
func (s *Store) GateWrite(expectedRevision int, id artifacts.GateID, next artifacts.Gate, reason string) (artifacts.Gates, *corerr.Error) {
	current, err := s.ReadGates()
	if err != nil {
		return current, err
	}
	if current.Revision != expectedRevision {
		return current, corerr.New(corerr.CodeRevisionMismatch, "gates revision mismatch", map[string]any{
			"expected": expectedRevision, "actual": current.Revision,
		})
	}
	existing, ok := current.Gates[id]
	if !ok {
		return current, corerr.Newf(corerr.CodeNotFound, "unknown gate %s", id)
	}
	if existing.Class == artifacts.ClassHard && next.Status == artifacts.GateWarn {
		return current, corerr.New(corerr.CodeLifecycleRuleViolation, "hard gate cannot be set to warn", map[string]any{"gate_id": string(id)})
	}
	if next.CheckedAt == "" && next.Status != artifacts.GateNotRun {
		return current, corerr.New(corerr.CodeLifecycleRuleViolation, "checked_at required when leaving not_run", map[string]any{"gate_id": string(id)})
	}

	merged := existing
	merged.Status = next.Status
	merged.CheckedAt = next.CheckedAt
	merged.Metrics = next.Metrics
	merged.Artifacts = next.Artifacts
	merged.Warnings = next.Warnings
	merged.Notes = next.Notes
	merged.InputsDigest = next.InputsDigest

	current.Gates[id] = merged
	current.Revision++
	current.UpdatedAt = nowRFC3339()

	if e := schema.Validate(current); e != nil {
		return current, e
	}
	p, perr := s.path("gates.json")
	if perr != nil {
		return current, perr.(*corerr.Error)
	}
	if werr := ioutil.AtomicWriteJSON(p, current); werr != nil {
		return current, werr.(*corerr.Error)
	}
	digest, _ := ioutil.SHA256DigestJSON(current)
	s.appendAudit("gate_write", reason, digest, map[string]any{"gate_id": string(id), "status": string(next.Status)})
	return current, nil
}

// WriteArtifact is the generic idempotent writer used by every package that
// owns a single well-known JSON document (scope.json, perspectives.json,
// pivot.json, summary-pack.json, review-bundle.json, ...): it validates,
// writes atomically as indented JSON, and leaves one audit line behind.
func (s *Store) WriteArtifact(rel string, value any, kind, reason string) *corerr.Error {
	if e := schema.Validate(value); e != nil {
		return e
	}
	p, err := s.path(rel)
	if err != nil {
		return err.(*corerr.Error)
	}
	if werr := ioutil.AtomicWriteJSON(p, value); werr != nil {
		return werr.(*corerr.Error)
	}
	digest, _ := ioutil.SHA256DigestJSON(value)
	s.appendAudit(kind, reason, digest, map[string]any{"path": filepath.ToSlash(rel)})
	return nil
}

// WriteRawText writes free-text content (e.g. a wave output markdown file,
// which has no JSON schema to validate) atomically and leaves one audit
// line behind, the same as WriteArtifact but without the schema.Validate
// step that assumes a JSON-shaped struct.
func (s *Store) WriteRawText(rel, content, kind, reason string) *corerr.Error {
	p, err := s.path(rel)
	if err != nil {
		return err.(*corerr.Error)
	}
	if werr := ioutil.AtomicWriteText(p, content); werr != nil {
		return werr.(*corerr.Error)
	}
	digest := ioutil.DigestString(content)
	s.appendAudit(kind, reason, digest, map[string]any{"path": filepath.ToSlash(rel)})
	return nil
}

// ReadRawText reads free-text content at rel, the read counterpart to
// WriteRawText — used to ingest a wave output or synthesis draft back off
// disk without assuming it's JSON-shaped.
func (s *Store) ReadRawText(rel string) (string, *corerr.Error) {
	p, err := s.path(rel)
	if err != nil {
		return "", err.(*corerr.Error)
	}
	data, rerr := readFile(p)
	if rerr != nil {
		return "", rerr
	}
	return string(data), nil
}

// ReadArtifact loads and decodes a JSON document at rel without schema
// validation (callers that need validation call schema.Validate themselves —
// useful for documents read during migration/repair where validation failure
// should be reported, not treated as an I/O error).
func (s *Store) ReadArtifact(rel string, out any) *corerr.Error {
	p, err := s.path(rel)
	if err != nil {
		return err.(*corerr.Error)
	}
	return readJSON(p, out)
}

// AppendLedger appends one line to runs_root/runs-ledger.jsonl. runsRoot is
// the parent directory shared by every run_root under it, so this is the
// one operation Store performs outside its own runRoot.
func AppendLedger(runsRoot string, entry artifacts.RunLedgerEntry) *corerr.Error {
	p := filepath.Join(runsRoot, "runs-ledger.jsonl")
	if err := ioutil.AppendJSONL(p, entry); err != nil {
		return err.(*corerr.Error)
	}
	return nil
}

func readJSON(path string, out any) *corerr.Error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	if jerr := json.Unmarshal(data, out); jerr != nil {
		return corerr.Newf(corerr.CodeInvalidJSON, "decode %s: %v", path, jerr)
	}
	return nil
}

func applyMergePatch(current any, patch map[string]any) ([]byte, error) {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	return jsonpatch.MergePatch(currentJSON, patchJSON)
}

// firstImmutablePath reports the first top-level JSON-pointer path in patch
// that also appears in immutable, or "" if none do. Only top-level keys are
// checked because every immutable path named in spec.md §4.3 is top-level.
func firstImmutablePath(patch map[string]any, immutable []string) string {
	set := make(map[string]bool, len(immutable))
	for _, p := range immutable {
		set["/"+trimSlash(p)] = true
	}
	for k := range patch {
		if set["/"+k] {
			return "/" + k
		}
	}
	return ""
}

func trimSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}
