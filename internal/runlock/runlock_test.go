package runlock

import (
	"testing"

	"github.com/deepresearch/orchestrator/internal/corerr"
)

func TestAcquire_SecondHolderIsRejectedWhileFirstHoldsLock(t *testing.T) {
	runRoot := t.TempDir()
	first, err := Acquire(runRoot, "holder-1", 120)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.Release()

	_, err = Acquire(runRoot, "holder-2", 120)
	if err == nil || err.Code != corerr.CodeAlreadyExistsConflict {
		t.Fatalf("expected ALREADY_EXISTS_CONFLICT, got %v", err)
	}
}

func TestAcquire_SucceedsAfterRelease(t *testing.T) {
	runRoot := t.TempDir()
	first, err := Acquire(runRoot, "holder-1", 120)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := Acquire(runRoot, "holder-2", 120)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	defer second.Release()
}

func TestHeartbeat_RefreshesLeaseWithoutReleasingLock(t *testing.T) {
	runRoot := t.TempDir()
	l, err := Acquire(runRoot, "holder-1", 120)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer l.Release()
	if err := l.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	// still held: a second acquire attempt must still fail
	_, err2 := Acquire(runRoot, "holder-2", 120)
	if err2 == nil || err2.Code != corerr.CodeAlreadyExistsConflict {
		t.Fatalf("expected lock still held after heartbeat, got %v", err2)
	}
}
