package transfer

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/rescp17/preservicaUploader/internal/util"
)

// Filter decides whether a directory entry is skipped, and why.
type Filter func(name string, d fs.DirEntry) (skip bool, reason string)

// DefaultFilter skips OS metadata files and, unless includeHidden, dot-entries.
func DefaultFilter(includeHidden bool) Filter {
	return func(name string, _ fs.DirEntry) (bool, string) {
		if util.IsSystemFile(name) {
			return true, "system file"
		}
		if !includeHidden && util.IsHidden(name) {
			return true, "hidden"
		}
		return false, ""
	}
}

// FolderWalker enumerates a local directory into a FolderJob.
type FolderWalker struct {
	thresholdBytes int64
	filter         Filter
	detectMime     bool
}

type WalkerOption func(*FolderWalker)

// WithFilter replaces the default entry filter.
func WithFilter(f Filter) WalkerOption {
	return func(w *FolderWalker) { w.filter = f }
}

// WithMimeDetection toggles content sniffing of every file.
func WithMimeDetection(on bool) WalkerOption {
	return func(w *FolderWalker) { w.detectMime = on }
}

func NewFolderWalker(thresholdBytes int64, opts ...WalkerOption) *FolderWalker {
	w := &FolderWalker{
		thresholdBytes: thresholdBytes,
		filter:         DefaultFilter(false),
		detectMime:     true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk enumerates root depth-first, in name order, before anything is scheduled.
// The root directory itself becomes the first remote folder under remoteFolderID.
// A regular-file root yields a single-unit job. Symlinks are never followed.
func (w *FolderWalker) Walk(root, remoteFolderID string) (*FolderJob, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &ClassificationError{Path: root, Err: err}
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, &ClassificationError{Path: abs, Err: err}
	}

	switch {
	case info.Mode().IsRegular():
		return NewSingleFileJob(abs, remoteFolderID, w.thresholdBytes)
	case !info.IsDir():
		return nil, &ClassificationError{Path: abs, Err: fmt.Errorf("unsupported file mode %s", info.Mode().Type())}
	}

	job := newFolderJob(abs, remoteFolderID)
	rootRel := filepath.Base(abs)
	job.addFolder(rootRel)

	if err := w.walkDir(job, abs, rootRel, true); err != nil {
		return nil, err
	}
	return job, nil
}

func (w *FolderWalker) walkDir(job *FolderJob, dir, rel string, isRoot bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if isRoot {
			return &ClassificationError{Path: dir, Err: err}
		}
		job.Skipped = append(job.Skipped, SkippedEntry{Path: dir, Reason: "unreadable: " + err.Error()})
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)

		if skip, reason := w.filter(name, entry); skip {
			job.Skipped = append(job.Skipped, SkippedEntry{Path: full, Reason: reason})
			continue
		}

		mode := entry.Type()
		switch {
		case mode&fs.ModeSymlink != 0:
			job.Skipped = append(job.Skipped, SkippedEntry{Path: full, Reason: "symlink"})

		case entry.IsDir():
			childRel := path.Join(rel, name)
			job.addFolder(childRel)
			if err := w.walkDir(job, full, childRel, false); err != nil {
				return err
			}

		case mode.IsRegular():
			info, err := entry.Info()
			if err != nil {
				job.Skipped = append(job.Skipped, SkippedEntry{Path: full, Reason: "stat: " + err.Error()})
				continue
			}
			u := NewTransferUnit(full, rel, info.Size(), w.thresholdBytes)
			if w.detectMime {
				u.ContentType = detectContentType(full)
			}
			job.addUnit(u)

		default:
			job.Skipped = append(job.Skipped, SkippedEntry{Path: full, Reason: "special file"})
		}
	}
	return nil
}
