package transfer

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransferUnit is one file's transfer lifecycle.
// Only the worker running the unit mutates it; readers take snapshots.
type TransferUnit struct {
	ID           string
	SourcePath   string
	RemoteRelDir string // slash separated, "" for the job root
	Name         string
	SizeBytes    int64
	Pathway      Pathway
	ContentType  string

	mu                  sync.RWMutex
	destinationFolderID string
	state               UnitState
	bytesTransferred    int64
	attemptCount        int
	retried             bool
	partsTotal          int
	partsDone           int
	err                 error
	receipt             *Receipt
	startedAt           time.Time
	finishedAt          time.Time

	observer unitObserver
}

// UnitSnapshot is a consistent copy of a unit's fields.
type UnitSnapshot struct {
	ID                  string
	SourcePath          string
	RemoteRelDir        string
	Name                string
	DestinationFolderID string
	SizeBytes           int64
	Pathway             Pathway
	State               UnitState
	BytesTransferred    int64
	AttemptCount        int
	Retried             bool
	PartsTotal          int
	PartsDone           int
	Err                 error
	Receipt             *Receipt
	StartedAt           time.Time
	FinishedAt          time.Time
}

type unitObserver interface {
	unitStateChanged(u *TransferUnit, snap UnitSnapshot)
	unitProgressed(u *TransferUnit, bytes int64)
}

// NewTransferUnit creates a pending unit; the pathway is fixed here.
func NewTransferUnit(sourcePath, remoteRelDir string, size, thresholdBytes int64) *TransferUnit {
	return &TransferUnit{
		ID:           uuid.New().String(),
		SourcePath:   sourcePath,
		RemoteRelDir: remoteRelDir,
		Name:         filepath.Base(sourcePath),
		SizeBytes:    size,
		Pathway:      Classify(size, thresholdBytes),
		ContentType:  "application/octet-stream",
		state:        StatePending,
	}
}

// Snapshot returns a copy taken under the unit's read lock.
func (u *TransferUnit) Snapshot() UnitSnapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.snapshotLocked()
}

func (u *TransferUnit) snapshotLocked() UnitSnapshot {
	return UnitSnapshot{
		ID:                  u.ID,
		SourcePath:          u.SourcePath,
		RemoteRelDir:        u.RemoteRelDir,
		Name:                u.Name,
		DestinationFolderID: u.destinationFolderID,
		SizeBytes:           u.SizeBytes,
		Pathway:             u.Pathway,
		State:               u.state,
		BytesTransferred:    u.bytesTransferred,
		AttemptCount:        u.attemptCount,
		Retried:             u.retried,
		PartsTotal:          u.partsTotal,
		PartsDone:           u.partsDone,
		Err:                 u.err,
		Receipt:             u.receipt,
		StartedAt:           u.startedAt,
		FinishedAt:          u.finishedAt,
	}
}

func (u *TransferUnit) State() UnitState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

func (u *TransferUnit) BytesTransferred() int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.bytesTransferred
}

func (u *TransferUnit) AttemptCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.attemptCount
}

func (u *TransferUnit) Err() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.err
}

func (u *TransferUnit) DestinationFolderID() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.destinationFolderID
}

// transition moves the unit to next, recording err for Failed/Cancelled/Retrying.
// Entering InProgress starts a new attempt and resets transferred bytes.
func (u *TransferUnit) transition(next UnitState, err error) error {
	u.mu.Lock()
	if !u.state.CanTransitionTo(next) {
		cur := u.state
		u.mu.Unlock()
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStateTransition, cur, next)
	}
	now := time.Now()
	switch next {
	case StateInProgress:
		u.attemptCount++
		u.bytesTransferred = 0
		u.partsDone = 0
		if u.startedAt.IsZero() {
			u.startedAt = now
		}
	case StateRetrying:
		u.retried = true
		u.err = err
	case StateSucceeded:
		u.bytesTransferred = u.SizeBytes
		u.err = nil
		u.finishedAt = now
	case StateFailed, StateCancelled:
		u.err = err
		u.finishedAt = now
	}
	u.state = next
	snap := u.snapshotLocked()
	obs := u.observer
	u.mu.Unlock()

	if obs != nil {
		obs.unitStateChanged(u, snap)
	}
	return nil
}

// succeed records the receipt and marks the unit Succeeded.
func (u *TransferUnit) succeed(r *Receipt) error {
	u.mu.Lock()
	u.receipt = r
	u.mu.Unlock()
	return u.transition(StateSucceeded, nil)
}

// setProgress records n transferred bytes for the current attempt, clamped to SizeBytes.
func (u *TransferUnit) setProgress(n int64) {
	if n < 0 {
		n = 0
	}
	if n > u.SizeBytes {
		n = u.SizeBytes
	}
	u.mu.Lock()
	changed := u.bytesTransferred != n
	u.bytesTransferred = n
	obs := u.observer
	u.mu.Unlock()

	if changed && obs != nil {
		obs.unitProgressed(u, n)
	}
}

func (u *TransferUnit) setDestination(folderID string) {
	u.mu.Lock()
	u.destinationFolderID = folderID
	u.mu.Unlock()
}

func (u *TransferUnit) setParts(total, done int) {
	u.mu.Lock()
	u.partsTotal = total
	u.partsDone = done
	u.mu.Unlock()
}

func (u *TransferUnit) markRetried() {
	u.mu.Lock()
	u.retried = true
	u.mu.Unlock()
}

func (u *TransferUnit) setObserver(o unitObserver) {
	u.mu.Lock()
	u.observer = o
	u.mu.Unlock()
}
