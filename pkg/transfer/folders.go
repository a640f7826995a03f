package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FolderRecord is the outcome of ensuring one remote folder.
type FolderRecord struct {
	RelPath  string
	ID       string
	Existing bool
	Err      error
}

// FolderCreator lazily creates the remote folders of a job.
// Each relative path is created at most once; concurrent callers for the same
// path wait on the same creation, and results (including failures) are memoized.
type FolderCreator struct {
	archive Archive
	rootID  string
	policy  *RetryPolicy
	sleep   func(context.Context, time.Duration) error

	group singleflight.Group

	mu      sync.Mutex
	results map[string]FolderRecord
	order   []string
}

func NewFolderCreator(archive Archive, rootID string, policy *RetryPolicy) *FolderCreator {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &FolderCreator{
		archive: archive,
		rootID:  rootID,
		policy:  policy,
		sleep:   sleepContext,
		results: make(map[string]FolderRecord),
	}
}

// Ensure returns the remote ID for rel, creating it and any missing ancestors.
// "" and "." resolve to the root folder.
func (fc *FolderCreator) Ensure(ctx context.Context, rel string) (string, error) {
	if rel == "" || rel == "." {
		return fc.rootID, nil
	}

	if rec, ok := fc.lookup(rel); ok {
		return rec.ID, rec.Err
	}

	parentID, err := fc.Ensure(ctx, parentOf(rel))
	if err != nil {
		if IsCancelled(err) {
			return "", err
		}
		rec := fc.storeIfAbsent(FolderRecord{
			RelPath: rel,
			Err:     fmt.Errorf("%s: parent folder not created: %w", rel, err),
		})
		return rec.ID, rec.Err
	}

	v, err, _ := fc.group.Do(rel, func() (any, error) {
		if rec, ok := fc.lookup(rel); ok {
			return rec.ID, rec.Err
		}
		rec := fc.create(ctx, parentID, rel)
		if rec.Err != nil && IsCancelled(rec.Err) {
			return "", rec.Err
		}
		fc.store(rec)
		return rec.ID, rec.Err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (fc *FolderCreator) create(ctx context.Context, parentID, rel string) FolderRecord {
	title := path.Base(rel)
	rec := FolderRecord{RelPath: rel}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			rec.Err = newTransferError(KindCancelled, "create folder", rel, err)
			return rec
		}

		id, found, err := fc.archive.FindFolder(ctx, parentID, title)
		if err == nil && found {
			slog.Info("Reusing existing remote folder", "folder", rel, "id", id)
			rec.ID, rec.Existing = id, true
			return rec
		}
		if err == nil {
			id, err = fc.archive.CreateFolder(ctx, parentID, title)
			if err == nil {
				slog.Info("Created remote folder", "folder", rel, "id", id)
				rec.ID = id
				return rec
			}
		}

		kind := CategorizeError(err)
		if kind == KindCancelled || ctx.Err() != nil {
			rec.Err = newTransferError(KindCancelled, "create folder", rel, err)
			return rec
		}
		if !fc.policy.ShouldRetry(kind, attempt) {
			slog.Error("Remote folder creation failed", "folder", rel, "attempt", attempt, "error", err)
			rec.Err = fmt.Errorf("%w: %s: %w", ErrFolderCreation, rel, err)
			return rec
		}

		delay := fc.policy.GetRetryDelay(attempt - 1)
		slog.Warn("Remote folder creation failed, retrying", "folder", rel, "attempt", attempt, "delay", delay, "error", err)
		if err := fc.sleep(ctx, delay); err != nil {
			rec.Err = newTransferError(KindCancelled, "create folder", rel, err)
			return rec
		}
	}
}

func (fc *FolderCreator) lookup(rel string) (FolderRecord, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	rec, ok := fc.results[rel]
	return rec, ok
}

func (fc *FolderCreator) store(rec FolderRecord) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if _, ok := fc.results[rec.RelPath]; !ok {
		fc.order = append(fc.order, rec.RelPath)
	}
	fc.results[rec.RelPath] = rec
}

// storeIfAbsent keeps an earlier record for the same path.
func (fc *FolderCreator) storeIfAbsent(rec FolderRecord) FolderRecord {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if existing, ok := fc.results[rec.RelPath]; ok {
		return existing
	}
	fc.order = append(fc.order, rec.RelPath)
	fc.results[rec.RelPath] = rec
	return rec
}

// Records returns every resolved folder in resolution order.
func (fc *FolderCreator) Records() []FolderRecord {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]FolderRecord, 0, len(fc.order))
	for _, rel := range fc.order {
		out = append(out, fc.results[rel])
	}
	return out
}

func parentOf(rel string) string {
	p := path.Dir(rel)
	if p == "." || p == "/" {
		return ""
	}
	return p
}
