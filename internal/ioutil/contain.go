package ioutil

import (
	"path/filepath"
	"strings"

	"github.com/deepresearch/orchestrator/internal/corerr"
)

// ResolveContained joins runRoot and rel, then verifies the result is
// lexically contained within runRoot. Run-root paths are created by this
// process (never by an untrusted third party), so a lexical check — reject
// ".." segments that escape the root after Clean — is sufficient and avoids
// a symlink-resolution race between check and use; callers that also need
// to defend against an attacker-controlled symlink already inside the tree
// should additionally verify with os.Lstat before following it.
func ResolveContained(runRoot, rel string) (string, error) {
	root, err := filepath.Abs(runRoot)
	if err != nil {
		return "", corerr.Newf(corerr.CodePathEscapesRunRoot, "resolve run root %s: %v", runRoot, err)
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", corerr.Newf(corerr.CodePathEscapesRunRoot, "path %q escapes run root %q", rel, runRoot)
	}
	return joined, nil
}

// RelPath returns rel relative to runRoot, using POSIX-style forward
// slashes for recording inside JSON artifacts, regardless of host OS.
func RelPath(runRoot, abs string) (string, error) {
	rel, err := filepath.Rel(runRoot, abs)
	if err != nil {
		return "", corerr.Newf(corerr.CodePathEscapesRunRoot, "relativize %s against %s: %v", abs, runRoot, err)
	}
	return filepath.ToSlash(rel), nil
}
