package runstore

import (
	"os"

	"github.com/deepresearch/orchestrator/internal/corerr"
)

// readFile reads path, translating a missing file into NOT_FOUND so callers
// don't need to special-case os.IsNotExist themselves.
func readFile(path string) ([]byte, *corerr.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, corerr.Newf(corerr.CodeNotFound, "not found: %s", path)
		}
		return nil, corerr.Newf(corerr.CodeWriteFailed, "read %s: %v", path, err)
	}
	return data, nil
}
