package transfer

import (
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// JobItem is one scheduling entry: either a remote folder to ensure or a unit.
type JobItem struct {
	Folder string // relative remote path, set for folder entries
	Unit   *TransferUnit
}

// IsFolder reports whether the item is a folder-creation entry.
func (i JobItem) IsFolder() bool {
	return i.Unit == nil
}

// SkippedEntry records a local entry the walker did not turn into a unit.
type SkippedEntry struct {
	Path   string
	Reason string
}

// FolderJob is the fully enumerated work for one selection.
type FolderJob struct {
	ID                    string
	RootLocalPath         string
	RootRemoteFolderID    string
	Units                 []*TransferUnit
	RemoteFoldersToCreate []string
	Items                 []JobItem
	TotalBytes            int64
	Skipped               []SkippedEntry
}

func newFolderJob(rootLocal, rootRemote string) *FolderJob {
	return &FolderJob{
		ID:                 uuid.New().String(),
		RootLocalPath:      rootLocal,
		RootRemoteFolderID: rootRemote,
	}
}

func (j *FolderJob) addFolder(rel string) {
	j.RemoteFoldersToCreate = append(j.RemoteFoldersToCreate, rel)
	j.Items = append(j.Items, JobItem{Folder: rel})
}

func (j *FolderJob) addUnit(u *TransferUnit) {
	j.Units = append(j.Units, u)
	j.Items = append(j.Items, JobItem{Unit: u})
	j.TotalBytes += u.SizeBytes
}

// TotalFiles is the number of units in the job.
func (j *FolderJob) TotalFiles() int {
	return len(j.Units)
}

// StagedUnits returns the units routed through the staging store.
func (j *FolderJob) StagedUnits() []*TransferUnit {
	return lo.Filter(j.Units, func(u *TransferUnit, _ int) bool {
		return u.Pathway == Staged
	})
}

// HasStaged reports whether any unit needs the staging store.
func (j *FolderJob) HasStaged() bool {
	return lo.SomeBy(j.Units, func(u *TransferUnit) bool {
		return u.Pathway == Staged
	})
}

// NewSingleFileJob wraps one regular file, placed directly into remoteFolderID.
func NewSingleFileJob(path, remoteFolderID string, thresholdBytes int64) (*FolderJob, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ClassificationError{Path: path, Err: err}
	}
	_, size, err := ClassifyFile(abs, thresholdBytes)
	if err != nil {
		return nil, err
	}

	job := newFolderJob(abs, remoteFolderID)
	u := NewTransferUnit(abs, "", size, thresholdBytes)
	u.ContentType = detectContentType(abs)
	job.addUnit(u)
	return job, nil
}

func detectContentType(path string) string {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mime.String()
}
