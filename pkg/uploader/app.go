package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	appevents "github.com/rescp17/preservicaUploader/internal/app_events"
	events "github.com/rescp17/preservicaUploader/internal/app_events/uploader"
	"github.com/rescp17/preservicaUploader/pkg/archive"
	"github.com/rescp17/preservicaUploader/pkg/concurrency"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
	"golang.org/x/sync/errgroup"
)

// Remote is the archive surface the App needs: the engine's folder and
// ingest operations plus folder listing for the browser.
type Remote interface {
	transfer.Archive
	Folder(ctx context.Context, ref string) (archive.Entity, error)
	Folders(ctx context.Context, parentRef string) ([]archive.Entity, error)
}

var errNoDestination = errors.New("no destination folder selected")

// StagerFactory builds the staging store on demand. It is only called for
// jobs that contain staged units.
type StagerFactory func(ctx context.Context) (transfer.Stager, error)

// App is the upload logic controller shared by the TUI and the CLI.
type App struct {
	cfg          *transfer.TransferConfig
	remote       Remote
	newStager    StagerFactory
	guard        *concurrency.ConcurrencyGuard
	uiMessages   chan tea.Msg            // App -> TUI
	appEvents    chan appevents.AppEvent // TUI -> App
	pollInterval time.Duration
	schedOpts    []transfer.SchedulerOption
	uploadWG     sync.WaitGroup
}

type Option func(*App)

// WithPollInterval sets how often progress snapshots are pushed to the UI.
func WithPollInterval(d time.Duration) Option {
	return func(a *App) { a.pollInterval = d }
}

// WithSchedulerOptions passes options through to every scheduler the App builds.
func WithSchedulerOptions(opts ...transfer.SchedulerOption) Option {
	return func(a *App) { a.schedOpts = append(a.schedOpts, opts...) }
}

// NewApp creates an upload application. newStager may be nil when no staging
// store is configured; staged units then fail individually.
func NewApp(cfg *transfer.TransferConfig, remote Remote, newStager StagerFactory, opts ...Option) *App {
	a := &App{
		cfg:          cfg,
		remote:       remote,
		newStager:    newStager,
		guard:        concurrency.NewConcurrencyGuard(),
		uiMessages:   make(chan tea.Msg, 32),
		appEvents:    make(chan appevents.AppEvent),
		pollInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Run starts the application's main event loop.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				a.guard.Cancel()
				a.uploadWG.Wait()
				return nil
			case event := <-a.appEvents:
				switch e := event.(type) {
				case events.UploadRequestedMsg:
					a.StartUpload(ctx, e.LocalPath, e.FolderRef)
				case events.CancelUploadMsg:
					if a.guard.Cancel() {
						a.send(ctx, events.StatusUpdateMsg{Message: "Cancelling upload..."})
					}
				case events.LoadFoldersMsg:
					g.Go(func() error {
						a.loadFolders(ctx, e.ParentRef)
						return nil
					})
				}
			}
		}
	})
	return g.Wait()
}

func (a *App) loadFolders(ctx context.Context, parentRef string) {
	children, err := a.remote.Folders(ctx, parentRef)
	if err != nil {
		slog.Error("Failed to list remote folders", "parent", parentRef, "error", err)
	}
	a.send(ctx, events.FoldersLoadedMsg{ParentRef: parentRef, Children: children, Err: err})
}

// CheckDestination confirms folderRef names an existing archive folder.
func (a *App) CheckDestination(ctx context.Context, folderRef string) (archive.Entity, error) {
	if folderRef == "" {
		return archive.Entity{}, &transfer.ConfigurationError{Field: "folder", Err: errNoDestination}
	}
	folder, err := a.remote.Folder(ctx, folderRef)
	if errors.Is(err, archive.ErrNotFound) {
		return archive.Entity{}, &transfer.ConfigurationError{Field: "folder", Err: fmt.Errorf("%s: %w", folderRef, err)}
	}
	if err != nil {
		return archive.Entity{}, fmt.Errorf("look up folder %s: %w", folderRef, err)
	}
	return folder, nil
}

// Prepare walks localPath into a job targeting folderRef.
func (a *App) Prepare(localPath, folderRef string) (*transfer.FolderJob, error) {
	if folderRef == "" {
		return nil, &transfer.ConfigurationError{Field: "folder", Err: errNoDestination}
	}
	walker := transfer.NewFolderWalker(a.cfg.ThresholdBytes,
		transfer.WithFilter(transfer.DefaultFilter(a.cfg.IncludeHidden)))
	return walker.Walk(localPath, folderRef)
}

// Start schedules job. The staging store is only built when the job needs it.
func (a *App) Start(ctx context.Context, job *transfer.FolderJob) (*transfer.JobRun, error) {
	var stager transfer.Stager
	if job.HasStaged() {
		if a.newStager == nil {
			return nil, &transfer.ConfigurationError{Field: "staging", Err: transfer.ErrNoStager}
		}
		s, err := a.newStager(ctx)
		if err != nil {
			return nil, fmt.Errorf("staging store: %w", err)
		}
		stager = s
	}
	sched, err := transfer.NewScheduler(a.cfg, a.remote, stager, a.schedOpts...)
	if err != nil {
		return nil, err
	}
	return sched.Start(ctx, job), nil
}

// StartUpload runs one upload job in the background, reporting to the UI.
// Only one job runs at a time.
func (a *App) StartUpload(ctx context.Context, localPath, folderRef string) {
	task := func(taskCtx context.Context) error {
		if _, err := a.CheckDestination(taskCtx, folderRef); err != nil {
			return err
		}
		a.send(taskCtx, events.StatusUpdateMsg{Message: "Scanning " + localPath + "..."})
		job, err := a.Prepare(localPath, folderRef)
		if err != nil {
			return fmt.Errorf("scan %s: %w", localPath, err)
		}

		run, err := a.Start(taskCtx, job)
		if err != nil {
			return err
		}
		a.send(taskCtx, events.UploadStartedMsg{
			JobID:      job.ID,
			Files:      job.TotalFiles(),
			Folders:    len(job.RemoteFoldersToCreate),
			TotalBytes: job.TotalBytes,
			Staged:     len(job.StagedUnits()),
		})
		a.send(taskCtx, events.StatusUpdateMsg{Message: fmt.Sprintf("Uploading %d file(s), %s",
			job.TotalFiles(), humanize.IBytes(uint64(job.TotalBytes)))})

		result := a.watch(run)
		// The result is delivered even when the task was cancelled.
		a.send(ctx, events.UploadCompleteMsg{Result: result})
		return nil
	}

	a.uploadWG.Add(1)
	go func() {
		defer a.uploadWG.Done()
		err := a.guard.ExecuteWithContext(ctx, task)
		if err != nil {
			if errors.Is(err, concurrency.ErrBusy) {
				a.sendAndLogError(ctx, "An upload is already in progress", err)
			} else {
				a.sendAndLogError(ctx, "Upload failed", err)
			}
		}
	}()
}

// watch pushes snapshots and notable events until run finishes.
func (a *App) watch(run *transfer.JobRun) *transfer.JobResult {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	feed := run.Progress().Events()
	for {
		select {
		case ev, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			a.report(ev)
		case <-run.Done():
			// the feed is closed before the run is done
			if feed != nil {
				for ev := range feed {
					a.report(ev)
				}
			}
			a.trySend(events.ProgressUpdateMsg{Snapshot: run.Progress().Snapshot()})
			return run.Wait()
		case <-ticker.C:
			a.trySend(events.ProgressUpdateMsg{Snapshot: run.Progress().Snapshot()})
		}
	}
}

func (a *App) report(ev transfer.ProgressEvent) {
	if msg, ok := ev.Notable(); ok {
		a.trySend(events.StatusUpdateMsg{Message: msg})
	}
}

// Cancel interrupts the running job, if any.
func (a *App) Cancel() bool {
	return a.guard.Cancel()
}

// Busy reports whether a job is running.
func (a *App) Busy() bool {
	return a.guard.Busy()
}

func (a *App) send(ctx context.Context, msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	case <-ctx.Done():
		slog.Debug("Dropping UI message after shutdown", "msg", fmt.Sprintf("%T", msg))
	}
}

// trySend drops the message when the UI is behind; the next snapshot supersedes it.
func (a *App) trySend(msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	default:
	}
}

// sendAndLogError is a helper function to both log an error and send it to the UI.
func (a *App) sendAndLogError(ctx context.Context, baseMessage string, err error) {
	slog.Error(baseMessage, "error", err)
	a.send(ctx, appevents.Error{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}
