package ioutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ── AtomicWriteJSON / AppendJSONL ────────────────────────────────────────────

func TestAtomicWriteJSON_NoTempFileLeftBehind(t *testing.T) {
	// Readers only ever see the final file; no .tmp.* sibling remains after success
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := AtomicWriteJSON(path, map[string]any{"a": 1}); err != nil {
		t.Fatalf("AtomicWriteJSON: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "manifest.json" {
		t.Errorf("expected only manifest.json, got %v", entries)
	}
}

func TestAtomicWriteJSON_CreatesParentDir(t *testing.T) {
	// Writer creates missing parent directories before renaming into place
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "gates.json")
	if err := AtomicWriteJSON(path, map[string]any{"x": true}); err != nil {
		t.Fatalf("AtomicWriteJSON: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

func TestAppendJSONL_AppendsOneLinePerCall(t *testing.T) {
	// Two AppendJSONL calls produce two newline-terminated JSON lines, in order
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	if err := AppendJSONL(path, map[string]any{"kind": "a"}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := AppendJSONL(path, map[string]any{"kind": "b"}); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 not valid JSON: %v", err)
	}
	if first["kind"] != "a" {
		t.Errorf("expected first line kind=a, got %v", first["kind"])
	}
}

// ── CanonicalJSON / digest stability ────────────────────────────────────────

func TestCanonicalJSON_SortsKeysRecursively(t *testing.T) {
	// Object keys are sorted at every nesting level
	a := map[string]any{"b": 1, "a": map[string]any{"z": 1, "y": 2}}
	out, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":{"y":2,"z":1},"b":1}`
	if string(out) != want {
		t.Errorf("CanonicalJSON = %s, want %s", out, want)
	}
}

func TestCanonicalJSON_PreservesArrayOrder(t *testing.T) {
	// Array element order is never reordered, only object keys are
	a := map[string]any{"list": []any{3, 1, 2}}
	out, err := CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if string(out) != `{"list":[3,1,2]}` {
		t.Errorf("CanonicalJSON = %s", out)
	}
}

func TestSHA256DigestJSON_StableUnderKeyPermutation(t *testing.T) {
	// Digest is identical for two JSON values differing only in key order (spec.md §8)
	a := map[string]any{"run_id": "r1", "revision": 3}
	b := map[string]any{"revision": 3, "run_id": "r1"}
	da, err := SHA256DigestJSON(a)
	if err != nil {
		t.Fatalf("digest a: %v", err)
	}
	db, err := SHA256DigestJSON(b)
	if err != nil {
		t.Fatalf("digest b: %v", err)
	}
	if da != db {
		t.Errorf("expected stable digest, got %s vs %s", da, db)
	}
	if !strings.HasPrefix(da, "sha256:") {
		t.Errorf("expected sha256: prefix, got %s", da)
	}
}

// ── ResolveContained ─────────────────────────────────────────────────────────

func TestResolveContained_RejectsEscape(t *testing.T) {
	// A relative path that climbs above run_root is rejected
	root := t.TempDir()
	if _, err := ResolveContained(root, "../outside.json"); err == nil {
		t.Fatal("expected PATH_ESCAPES_RUN_ROOT error, got nil")
	}
}

func TestResolveContained_AllowsNestedPath(t *testing.T) {
	// A normal nested relative path resolves under run_root
	root := t.TempDir()
	got, err := ResolveContained(root, "wave-1/p1.md")
	if err != nil {
		t.Fatalf("ResolveContained: %v", err)
	}
	want := filepath.Join(root, "wave-1", "p1.md")
	if got != want {
		t.Errorf("ResolveContained = %q, want %q", got, want)
	}
}
