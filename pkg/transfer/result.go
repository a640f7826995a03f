package transfer

import (
	"time"

	"github.com/samber/lo"
)

// UnitOutcome is the display-facing result of one unit.
type UnitOutcome struct {
	SourcePath       string
	Name             string
	RemoteRelDir     string
	Pathway          Pathway
	State            UnitState
	SizeBytes        int64
	BytesTransferred int64
	Attempts         int
	Retried          bool
	Kind             ErrorKind
	Reason           string
	Err              error
	Receipt          *Receipt
}

// JobResult is the manifest of a finished job.
type JobResult struct {
	JobID        string
	TotalBytes   int64
	Succeeded    []UnitOutcome
	Failed       []UnitOutcome
	Cancelled    []UnitOutcome
	Folders      []FolderRecord
	FolderErrors []FolderRecord
	Skipped      []SkippedEntry
	Duration     time.Duration
}

func newJobResult(job *FolderJob, folders []FolderRecord, d time.Duration) *JobResult {
	outcomes := lo.Map(job.Units, func(u *TransferUnit, _ int) UnitOutcome {
		return outcomeOf(u.Snapshot())
	})
	byState := lo.GroupBy(outcomes, func(o UnitOutcome) UnitState {
		return o.State
	})

	return &JobResult{
		JobID:      job.ID,
		TotalBytes: job.TotalBytes,
		Succeeded:  byState[StateSucceeded],
		Failed:     byState[StateFailed],
		Cancelled:  byState[StateCancelled],
		Folders:    folders,
		FolderErrors: lo.Filter(folders, func(f FolderRecord, _ int) bool {
			return f.Err != nil
		}),
		Skipped:  job.Skipped,
		Duration: d,
	}
}

func outcomeOf(s UnitSnapshot) UnitOutcome {
	o := UnitOutcome{
		SourcePath:       s.SourcePath,
		Name:             s.Name,
		RemoteRelDir:     s.RemoteRelDir,
		Pathway:          s.Pathway,
		State:            s.State,
		SizeBytes:        s.SizeBytes,
		BytesTransferred: s.BytesTransferred,
		Attempts:         s.AttemptCount,
		Retried:          s.Retried,
		Err:              s.Err,
		Receipt:          s.Receipt,
	}
	if s.Err != nil {
		o.Kind = CategorizeError(s.Err)
		o.Reason = s.Err.Error()
	}
	return o
}

// Outcomes returns every unit outcome, succeeded first.
func (r *JobResult) Outcomes() []UnitOutcome {
	out := make([]UnitOutcome, 0, len(r.Succeeded)+len(r.Failed)+len(r.Cancelled))
	out = append(out, r.Succeeded...)
	out = append(out, r.Failed...)
	return append(out, r.Cancelled...)
}

// TransferredBytes sums bytes of succeeded units.
func (r *JobResult) TransferredBytes() int64 {
	return lo.SumBy(r.Succeeded, func(o UnitOutcome) int64 {
		return o.SizeBytes
	})
}

// OK reports whether every unit succeeded and every folder was resolved.
func (r *JobResult) OK() bool {
	return len(r.Failed) == 0 && len(r.Cancelled) == 0 && len(r.FolderErrors) == 0
}

// Err returns a *PartialJobFailure unless the job fully succeeded.
func (r *JobResult) Err() error {
	if r.OK() {
		return nil
	}
	return &PartialJobFailure{
		JobID:     r.JobID,
		Succeeded: len(r.Succeeded),
		Failed:    len(r.Failed),
		Cancelled: len(r.Cancelled),
	}
}
