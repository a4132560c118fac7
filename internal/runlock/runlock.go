// Package runlock implements the run_root/.lock advisory lease (spec.md
// §4.4): one OS-level file lock (github.com/gofrs/flock) on .lock guarding a
// JSON lease document in .lock.json. A holder process that dies releases its
// OS lock, so the next Acquire takes the run over; a lease that has expired
// while its OS lock is still held is never taken over, so a live process
// never loses its own lock underneath it.
package runlock

import (
	"encoding/json"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
	"github.com/deepresearch/orchestrator/internal/ioutil"
)

// DefaultLeaseSeconds is the lease duration used when RunConfig doesn't
// override it (spec.md §4.13).
const DefaultLeaseSeconds = 120

// Lock binds a run_root's .lock file to a held OS file lock plus its lease
// metadata. The zero value is invalid; obtain one via Acquire.
type Lock struct {
	path    string
	flock   *flock.Flock
	holder  string
	leaseFn func() time.Duration
}

// Acquire takes the advisory OS lock on run_root/.lock and writes a fresh
// lease for holderID.
//
// Expectations:
//   - Succeeds immediately if no other process holds the OS lock, whatever
//     the lease document says.
//   - If another process holds it, Acquire never takes over and returns
//     ALREADY_EXISTS_CONFLICT. When the lease document shows that
//     lease_expires_at has passed, the error says so: the holder is alive
//     but its heartbeat died, and must be terminated before a takeover.
//     Otherwise it is a plain "locked by another process" conflict.
func Acquire(runRoot, holderID string, leaseSeconds int) (*Lock, *corerr.Error) {
	if leaseSeconds <= 0 {
		leaseSeconds = DefaultLeaseSeconds
	}
	path, err := ioutil.ResolveContained(runRoot, ".lock")
	if err != nil {
		return nil, err.(*corerr.Error)
	}
	fl := flock.New(path)
	ok, lockErr := fl.TryLock()
	if lockErr != nil {
		return nil, corerr.Newf(corerr.CodeWriteFailed, "acquire lock %s: %v", path, lockErr)
	}
	if !ok {
		state, readErr := readLeaseState(path)
		if readErr == nil && leaseExpired(state) {
			// Another process holds the flock but its lease is stale; this
			// only happens if that holder died without releasing the OS
			// lock (process kill, no defer run). Report it distinctly so
			// an operator knows a takeover requires killing the old PID,
			// not retrying.
			return nil, corerr.New(corerr.CodeAlreadyExistsConflict, "lock held by stale lease with live OS lock; holder process must be terminated before takeover", map[string]any{
				"holder_id": state.HolderID, "lease_expires_at": state.LeaseExpiresAt,
			})
		}
		return nil, corerr.New(corerr.CodeAlreadyExistsConflict, "run is locked by another process", nil)
	}

	l := &Lock{path: path, flock: fl, holder: holderID, leaseFn: func() time.Duration { return time.Duration(leaseSeconds) * time.Second }}
	if werr := l.writeLease(); werr != nil {
		_ = fl.Unlock()
		return nil, werr
	}
	return l, nil
}

// Heartbeat refreshes the lease's expiry without releasing the OS lock.
// Callers should call this periodically (well under leaseSeconds) during
// any long-running tick so a watchdog in another process doesn't mistake a
// slow-but-alive run for a stale one.
func (l *Lock) Heartbeat() *corerr.Error {
	return l.writeLease()
}

// Release drops the OS lock. The lease file is left in place (its
// lease_expires_at will simply pass), which is harmless: the next Acquire
// only consults it when the OS lock itself is contended.
func (l *Lock) Release() *corerr.Error {
	if err := l.flock.Unlock(); err != nil {
		return corerr.Newf(corerr.CodeWriteFailed, "release lock %s: %v", l.path, err)
	}
	return nil
}

func (l *Lock) writeLease() *corerr.Error {
	now := time.Now().UTC()
	state := artifacts.LockState{
		HolderID:       l.holder,
		AcquiredAt:     now.Format(time.RFC3339),
		LeaseExpiresAt: now.Add(l.leaseFn()).Format(time.RFC3339),
	}
	if err := ioutil.AtomicWriteJSON(l.path+".json", state); err != nil {
		return err.(*corerr.Error)
	}
	return nil
}

func readLeaseState(lockPath string) (artifacts.LockState, error) {
	var state artifacts.LockState
	data, err := os.ReadFile(lockPath + ".json")
	if err != nil {
		return state, err
	}
	err = json.Unmarshal(data, &state)
	return state, err
}

func leaseExpired(state artifacts.LockState) bool {
	expiry, err := time.Parse(time.RFC3339, state.LeaseExpiresAt)
	if err != nil {
		return true
	}
	return time.Now().UTC().After(expiry)
}
