package fixtures

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCaptureBundle_CopiesExistingFilesAndSkipsMissing(t *testing.T) {
	runRoot := t.TempDir()
	fixturesRoot := t.TempDir()

	if err := os.WriteFile(filepath.Join(runRoot, "manifest.json"), []byte(`{"run_id":"run-1"}`), 0o644); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}

	bundle, err := CaptureBundle(runRoot, fixturesRoot, "bundle-1", "regression snapshot", []string{"manifest.json", "gates.json"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if len(bundle.Files) != 1 || bundle.Files[0] != "manifest.json" {
		t.Fatalf("expected only manifest.json captured, got %v", bundle.Files)
	}

	captured := filepath.Join(fixturesRoot, "bundle-1", "manifest.json")
	if _, err := os.Stat(captured); err != nil {
		t.Fatalf("expected captured file to exist: %v", err)
	}
	manifestOut := filepath.Join(fixturesRoot, "bundle-1", "bundle.json")
	if _, err := os.Stat(manifestOut); err != nil {
		t.Fatalf("expected bundle.json to exist: %v", err)
	}
}
