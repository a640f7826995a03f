package transfer

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// EventKind tags a ProgressEvent.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventBytes
	EventFolderReady
	EventFolderFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state"
	case EventBytes:
		return "bytes"
	case EventFolderReady:
		return "folder_ready"
	case EventFolderFailed:
		return "folder_failed"
	default:
		return "unknown"
	}
}

// ProgressEvent is a best-effort notification; consumers must not rely on
// receiving every one of them. Snapshots are authoritative.
type ProgressEvent struct {
	Kind             EventKind
	UnitID           string
	Path             string
	State            UnitState
	BytesTransferred int64
	Folder           string
	FolderID         string
	Err              error
	Time             time.Time
}

// Notable describes events worth showing to the user as they happen:
// folder failures, failed units and units about to be retried.
func (ev ProgressEvent) Notable() (string, bool) {
	var msg string
	switch {
	case ev.Kind == EventFolderFailed:
		msg = "Folder " + ev.Folder + " was not created"
	case ev.Kind == EventStateChanged && ev.State == StateFailed:
		msg = "Failed " + ev.Path
	case ev.Kind == EventStateChanged && ev.State == StateRetrying:
		msg = "Retrying " + ev.Path
	default:
		return "", false
	}
	if ev.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, ev.Err)
	}
	return msg, true
}

// ProgressSnapshot is a point-in-time view of a job.
type ProgressSnapshot struct {
	TotalBytes       int64
	TransferredBytes int64
	Fraction         float64
	TotalUnits       int
	Counts           map[UnitState]int
	Active           []UnitSnapshot
	Units            []UnitSnapshot
	Elapsed          time.Duration
	Rate             float64 // bytes per second
	ETA              time.Duration
	Finished         bool
	DroppedEvents    int64
}

// ProgressAggregator sums live unit counters on read.
// Each unit's counters have a single writer, so the aggregator never contends
// with workers on the same field.
type ProgressAggregator struct {
	units   []*TransferUnit
	total   int64
	started time.Time

	highWater atomic.Uint64 // float64 bits
	finished  atomic.Bool
	dropped   atomic.Int64

	mu     sync.RWMutex
	closed bool
	events chan ProgressEvent
}

// NewProgressAggregator attaches to units and starts the clock.
func NewProgressAggregator(units []*TransferUnit, bufferSize int) *ProgressAggregator {
	a := &ProgressAggregator{
		units:   units,
		started: time.Now(),
		events:  make(chan ProgressEvent, bufferSize),
	}
	for _, u := range units {
		a.total += u.SizeBytes
		u.setObserver(a)
	}
	return a
}

func (a *ProgressAggregator) TotalBytes() int64 {
	return a.total
}

// TransferredBytes is the sum of live unit counters.
func (a *ProgressAggregator) TransferredBytes() int64 {
	var sum int64
	for _, u := range a.units {
		sum += u.BytesTransferred()
	}
	return sum
}

// Fraction is transferred/total, never decreasing across calls.
// An empty job reports 0 until it has finished, then 1.
func (a *ProgressAggregator) Fraction() float64 {
	var raw float64
	switch {
	case a.total == 0:
		if a.finished.Load() {
			raw = 1
		}
	default:
		raw = float64(a.TransferredBytes()) / float64(a.total)
		if raw > 1 {
			raw = 1
		}
	}
	return a.raise(raw)
}

func (a *ProgressAggregator) raise(v float64) float64 {
	for {
		old := a.highWater.Load()
		cur := math.Float64frombits(old)
		if v <= cur {
			return cur
		}
		if a.highWater.CompareAndSwap(old, math.Float64bits(v)) {
			return v
		}
	}
}

// Snapshot copies every unit under its own read lock.
func (a *ProgressAggregator) Snapshot() ProgressSnapshot {
	units := lo.Map(a.units, func(u *TransferUnit, _ int) UnitSnapshot {
		return u.Snapshot()
	})

	var transferred int64
	for _, s := range units {
		transferred += s.BytesTransferred
	}

	snap := ProgressSnapshot{
		TotalBytes:       a.total,
		TransferredBytes: transferred,
		Fraction:         a.Fraction(),
		TotalUnits:       len(units),
		Counts: lo.CountValuesBy(units, func(s UnitSnapshot) UnitState {
			return s.State
		}),
		Active: lo.Filter(units, func(s UnitSnapshot, _ int) bool {
			return s.State == StateInProgress || s.State == StateRetrying
		}),
		Units:         units,
		Elapsed:       time.Since(a.started),
		Finished:      a.finished.Load(),
		DroppedEvents: a.dropped.Load(),
	}

	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.Rate = float64(transferred) / secs
	}
	if snap.Rate > 0 && !snap.Finished {
		remaining := a.total - transferred
		if remaining > 0 {
			snap.ETA = time.Duration(float64(remaining)/snap.Rate) * time.Second
		}
	}
	return snap
}

// Events is the best-effort event feed. It is closed when the job finishes.
func (a *ProgressAggregator) Events() <-chan ProgressEvent {
	return a.events
}

// Dropped counts events discarded because the feed was full.
func (a *ProgressAggregator) Dropped() int64 {
	return a.dropped.Load()
}

// Finished reports whether the job has completed.
func (a *ProgressAggregator) Finished() bool {
	return a.finished.Load()
}

// publish never blocks the caller.
func (a *ProgressAggregator) publish(ev ProgressEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *ProgressAggregator) finish() {
	a.finished.Store(true)
	a.Fraction()
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
}

func (a *ProgressAggregator) unitStateChanged(u *TransferUnit, snap UnitSnapshot) {
	a.publish(ProgressEvent{
		Kind:             EventStateChanged,
		UnitID:           u.ID,
		Path:             u.SourcePath,
		State:            snap.State,
		BytesTransferred: snap.BytesTransferred,
		Err:              snap.Err,
	})
}

func (a *ProgressAggregator) unitProgressed(u *TransferUnit, bytes int64) {
	a.publish(ProgressEvent{
		Kind:             EventBytes,
		UnitID:           u.ID,
		Path:             u.SourcePath,
		BytesTransferred: bytes,
	})
}

func (a *ProgressAggregator) folderResolved(rec FolderRecord) {
	ev := ProgressEvent{Kind: EventFolderReady, Folder: rec.RelPath, FolderID: rec.ID}
	if rec.Err != nil {
		ev.Kind = EventFolderFailed
		ev.Err = rec.Err
	}
	a.publish(ev)
}
