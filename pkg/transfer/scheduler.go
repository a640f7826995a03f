package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Scheduler executes FolderJobs on a fixed pool of workers.
type Scheduler struct {
	cfg     *TransferConfig
	archive Archive
	stager  Stager
	sleep   func(context.Context, time.Duration) error
}

type SchedulerOption func(*Scheduler)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(context.Context, time.Duration) error) SchedulerOption {
	return func(s *Scheduler) { s.sleep = fn }
}

// NewScheduler validates cfg. stager may be nil when no staged unit will run;
// staged units then fail as rejected.
func NewScheduler(cfg *TransferConfig, archive Archive, stager Stager, opts ...SchedulerOption) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultTransferConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if archive == nil {
		return nil, &ConfigurationError{Field: "archive", Err: errors.New("is required")}
	}
	s := &Scheduler{
		cfg:     cfg,
		archive: archive,
		stager:  stager,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes job to completion and returns its manifest. It never fails as a
// whole; per-unit outcomes are in the result.
func (s *Scheduler) Run(ctx context.Context, job *FolderJob) *JobResult {
	return s.Start(ctx, job).Wait()
}

// Start begins executing job in the background.
func (s *Scheduler) Start(ctx context.Context, job *FolderJob) *JobRun {
	runCtx, cancel := context.WithCancel(ctx)
	folders := NewFolderCreator(s.archive, job.RootRemoteFolderID, s.cfg.RetryPolicy)
	folders.sleep = s.sleep

	r := &JobRun{
		sched:    s,
		job:      job,
		ctx:      runCtx,
		cancel:   cancel,
		progress: NewProgressAggregator(job.Units, s.cfg.EventBufferSize),
		folders:  folders,
		done:     make(chan struct{}),
		started:  time.Now(),
	}

	slog.Info("Starting upload job",
		"job", job.ID,
		"root", job.RootLocalPath,
		"files", job.TotalFiles(),
		"bytes", job.TotalBytes,
		"workers", s.cfg.MaxConcurrency)

	go r.execute()
	return r
}

// JobRun is the handle of a running job.
type JobRun struct {
	sched    *Scheduler
	job      *FolderJob
	ctx      context.Context
	cancel   context.CancelFunc
	progress *ProgressAggregator
	folders  *FolderCreator
	started  time.Time

	done   chan struct{}
	once   sync.Once
	result *JobResult
}

func (r *JobRun) Job() *FolderJob { return r.job }

func (r *JobRun) Progress() *ProgressAggregator { return r.progress }

// Cancel stops dispatch; in-flight units stop at their next checkpoint.
func (r *JobRun) Cancel() {
	r.once.Do(func() {
		slog.Info("Cancelling upload job", "job", r.job.ID)
	})
	r.cancel()
}

func (r *JobRun) Done() <-chan struct{} { return r.done }

// Wait blocks until every unit is terminal.
func (r *JobRun) Wait() *JobResult {
	<-r.done
	return r.result
}

func (r *JobRun) execute() {
	defer close(r.done)
	defer r.cancel()

	items := make(chan JobItem)
	var g errgroup.Group
	for i := 0; i < r.sched.cfg.MaxConcurrency; i++ {
		g.Go(func() error {
			w := &worker{run: r}
			for item := range items {
				w.handle(item)
			}
			return nil
		})
	}

dispatch:
	for _, item := range r.job.Items {
		select {
		case <-r.ctx.Done():
			break dispatch
		case items <- item:
		}
	}
	close(items)
	_ = g.Wait()

	for _, u := range r.job.Units {
		if u.State() == StatePending {
			_ = u.transition(StateCancelled, newTransferError(KindCancelled, "schedule", u.SourcePath, ErrCancelled))
		}
	}

	r.progress.finish()
	r.result = newJobResult(r.job, r.folders.Records(), time.Since(r.started))

	slog.Info("Upload job finished",
		"job", r.job.ID,
		"succeeded", len(r.result.Succeeded),
		"failed", len(r.result.Failed),
		"cancelled", len(r.result.Cancelled),
		"duration", r.result.Duration)
}

// worker owns one part buffer for the lifetime of the job.
type worker struct {
	run *JobRun
	buf []byte
}

func (w *worker) handle(item JobItem) {
	r := w.run
	if item.IsFolder() {
		if r.ctx.Err() != nil {
			return
		}
		id, err := r.folders.Ensure(r.ctx, item.Folder)
		r.progress.folderResolved(FolderRecord{RelPath: item.Folder, ID: id, Err: err})
		return
	}
	w.runUnit(item.Unit)
}

func (w *worker) runUnit(u *TransferUnit) {
	r := w.run
	policy := r.sched.cfg.RetryPolicy

	if r.ctx.Err() != nil {
		_ = u.transition(StateCancelled, newTransferError(KindCancelled, "schedule", u.SourcePath, ErrCancelled))
		return
	}

	folderID, folderErr := r.folders.Ensure(r.ctx, u.RemoteRelDir)
	if folderErr != nil && IsCancelled(folderErr) {
		_ = u.transition(StateCancelled, folderErr)
		return
	}

	_ = u.transition(StateInProgress, nil)
	if folderErr != nil {
		err := newTransferError(KindRejected, "resolve folder", u.SourcePath, folderErr)
		logUnitError(u, err, "fail", 1)
		_ = u.transition(StateFailed, err)
		return
	}
	u.setDestination(folderID)

	for {
		attempt := u.AttemptCount()
		receipt, err := w.attempt(u, folderID)
		if err == nil {
			_ = u.succeed(receipt)
			slog.Info("Transfer succeeded", "file", u.SourcePath, "pathway", u.Pathway.String(), "attempt", attempt)
			return
		}

		kind := CategorizeError(err)
		if kind == KindCancelled {
			logUnitError(u, err, "cancel", attempt)
			_ = u.transition(StateCancelled, err)
			return
		}
		if errors.Is(err, ErrPartRetriesExhausted) || !policy.ShouldRetry(kind, attempt) {
			logUnitError(u, err, "fail", attempt)
			_ = u.transition(StateFailed, err)
			return
		}

		logUnitError(u, err, "retry", attempt)
		_ = u.transition(StateRetrying, err)
		if serr := r.sched.sleep(r.ctx, policy.GetRetryDelay(attempt-1)); serr != nil {
			_ = u.transition(StateCancelled, newTransferError(KindCancelled, "backoff", u.SourcePath, serr))
			return
		}
		_ = u.transition(StateInProgress, nil)
	}
}

// attempt runs one attempt of the unit's pathway.
func (w *worker) attempt(u *TransferUnit, folderID string) (*Receipt, error) {
	switch u.Pathway {
	case Direct:
		return w.direct(u, folderID)
	case Staged:
		return w.staged(u, folderID)
	default:
		return nil, newTransferError(KindRejected, "dispatch", u.SourcePath, fmt.Errorf("unknown pathway %d", u.Pathway))
	}
}

func (w *worker) direct(u *TransferUnit, folderID string) (*Receipt, error) {
	ctx := w.run.ctx
	f, err := os.Open(u.SourcePath)
	if err != nil {
		return nil, newTransferError(KindRejected, "open", u.SourcePath, err)
	}
	defer f.Close()

	receipt, err := w.run.sched.archive.DirectUpload(ctx, DirectUploadRequest{
		FolderID:    folderID,
		Name:        u.Name,
		ContentType: u.ContentType,
		Size:        u.SizeBytes,
		Body:        newProgressReader(f, u.setProgress),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, newTransferError(KindCancelled, "direct upload", u.SourcePath, err)
		}
		return nil, classify("direct upload", u.SourcePath, err)
	}
	if receipt == nil {
		receipt = &Receipt{}
	}
	receipt.Pathway = Direct
	if receipt.At.IsZero() {
		receipt.At = time.Now()
	}
	return receipt, nil
}

// staged uploads parts sequentially. Cancellation is only observed between
// parts; part bodies run on a context that ignores it.
func (w *worker) staged(u *TransferUnit, folderID string) (*Receipt, error) {
	r := w.run
	ctx := r.ctx
	cfg := r.sched.cfg
	stager := r.sched.stager
	if stager == nil {
		return nil, newTransferError(KindRejected, "stage", u.SourcePath, ErrNoStager)
	}

	parts, err := PlanParts(u.SizeBytes, cfg.PartSize)
	if err != nil {
		return nil, newTransferError(KindRejected, "plan parts", u.SourcePath, err)
	}

	if w.buf == nil {
		w.buf = make([]byte, cfg.PartSize)
	}
	reader, err := newPartReader(u.SourcePath, w.buf)
	if err != nil {
		return nil, newTransferError(KindRejected, "open", u.SourcePath, err)
	}
	defer reader.Close()

	if err := ctx.Err(); err != nil {
		return nil, newTransferError(KindCancelled, "initiate multipart", u.SourcePath, err)
	}

	key := path.Join(u.ID, u.Name)
	up, err := stager.InitiateMultipart(ctx, StageRequest{
		Bucket:      cfg.Bucket,
		Key:         key,
		ContentType: u.ContentType,
		Size:        u.SizeBytes,
		Metadata: map[string]string{
			MetaKey:                 key,
			MetaName:                u.Name,
			MetaBucket:              cfg.Bucket,
			MetaStatus:              StatusReady,
			MetaCollectionReference: folderID,
			MetaSize:                strconv.FormatInt(u.SizeBytes, 10),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, newTransferError(KindCancelled, "initiate multipart", u.SourcePath, err)
		}
		return nil, classify("initiate multipart", u.SourcePath, err)
	}

	u.setParts(len(parts), 0)
	completed := make([]CompletedPart, 0, len(parts))
	var base int64

	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			w.abort(up, u)
			return nil, newTransferError(KindCancelled, "upload part", u.SourcePath, err)
		}

		cp, err := w.uploadPart(u, up, reader, p, base)
		if err != nil {
			w.abort(up, u)
			return nil, err
		}
		completed = append(completed, cp)
		base += p.Size
		u.setProgress(base)
		u.setParts(len(parts), i+1)
	}

	if err := ctx.Err(); err != nil {
		w.abort(up, u)
		return nil, newTransferError(KindCancelled, "complete multipart", u.SourcePath, err)
	}

	receipt, err := stager.CompleteMultipart(context.WithoutCancel(ctx), up, completed)
	if err != nil {
		w.abort(up, u)
		return nil, classify("complete multipart", u.SourcePath, err)
	}
	if receipt == nil {
		receipt = &Receipt{Reference: key}
	}
	receipt.Pathway = Staged
	if receipt.At.IsZero() {
		receipt.At = time.Now()
	}
	return receipt, nil
}

// uploadPart retries one part on its own budget. Exhausting it fails the unit.
func (w *worker) uploadPart(u *TransferUnit, up MultipartUpload, reader *partReader, p Part, base int64) (CompletedPart, error) {
	r := w.run
	policy := r.sched.cfg.PartRetryPolicy
	stager := r.sched.stager

	data, sum, err := reader.Read(p)
	if err != nil {
		return CompletedPart{}, newTransferError(KindRejected, "read part", u.SourcePath, err)
	}

	bodyCtx := context.WithoutCancel(r.ctx)
	for attempt := 1; ; attempt++ {
		body := newProgressReader(bytes.NewReader(data), func(n int64) {
			u.setProgress(base + n)
		})
		cp, err := stager.UploadPart(bodyCtx, up, PartUpload{
			Number: p.Number,
			Size:   p.Size,
			Body:   body,
			SHA256: sum,
		})
		if err == nil {
			if cp.Number == 0 {
				cp.Number = p.Number
			}
			return cp, nil
		}

		u.setProgress(base)
		kind := CategorizeError(err)
		if kind != KindTransient {
			return CompletedPart{}, classify(fmt.Sprintf("upload part %d", p.Number), u.SourcePath, err)
		}
		if attempt >= policy.MaxAttempts {
			return CompletedPart{}, newTransferError(KindRejected, fmt.Sprintf("upload part %d", p.Number), u.SourcePath,
				fmt.Errorf("%w after %d attempts: %w", ErrPartRetriesExhausted, attempt, err))
		}

		u.markRetried()
		delay := policy.GetRetryDelay(attempt - 1)
		slog.Warn("Part upload failed, retrying",
			"file", u.SourcePath, "part", p.Number, "attempt", attempt, "delay", delay, "error", err)
		if serr := r.sched.sleep(r.ctx, delay); serr != nil {
			return CompletedPart{}, newTransferError(KindCancelled, fmt.Sprintf("upload part %d", p.Number), u.SourcePath, serr)
		}
	}
}

// abort is best effort and not cancellable.
func (w *worker) abort(up MultipartUpload, u *TransferUnit) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.run.ctx), 30*time.Second)
	defer cancel()
	if err := w.run.sched.stager.AbortMultipart(ctx, up); err != nil {
		slog.Warn("Failed to abort multipart upload", "file", u.SourcePath, "upload_id", up.UploadID, "error", err)
	}
}
