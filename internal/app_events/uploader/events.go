package uploader

import (
	appevents "github.com/rescp17/preservicaUploader/internal/app_events"
	"github.com/rescp17/preservicaUploader/pkg/archive"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

// --- App Events (from TUI to App) ---

// UploadRequestedMsg asks the App to upload a local file or folder into a remote folder.
type UploadRequestedMsg struct {
	appevents.Event
	LocalPath   string
	FolderRef   string
	FolderTitle string
}

// CancelUploadMsg cancels the running job, if any.
type CancelUploadMsg struct {
	appevents.Event
}

// LoadFoldersMsg asks for the children of a remote folder. An empty ParentRef means the root.
type LoadFoldersMsg struct {
	appevents.Event
	ParentRef string
}

var (
	_ appevents.AppEvent = (*UploadRequestedMsg)(nil)
	_ appevents.AppEvent = (*CancelUploadMsg)(nil)
	_ appevents.AppEvent = (*LoadFoldersMsg)(nil)
)

// --- UI Messages (from App to TUI) ---

// FoldersLoadedMsg carries the children of ParentRef.
type FoldersLoadedMsg struct {
	appevents.UIMessage
	ParentRef string
	Children  []archive.Entity
	Err       error
}

type StatusUpdateMsg struct {
	appevents.UIMessage
	Message string
}

// UploadStartedMsg is sent once the local tree has been walked.
type UploadStartedMsg struct {
	appevents.UIMessage
	JobID      string
	Files      int
	Folders    int
	TotalBytes int64
	Staged     int
}

// ProgressUpdateMsg is a polled view of the running job.
type ProgressUpdateMsg struct {
	appevents.UIMessage
	Snapshot transfer.ProgressSnapshot
}

// UploadCompleteMsg carries the final manifest.
type UploadCompleteMsg struct {
	appevents.UIMessage
	Result *transfer.JobResult
}

var (
	_ appevents.AppUIMessage = (*FoldersLoadedMsg)(nil)
	_ appevents.AppUIMessage = (*StatusUpdateMsg)(nil)
	_ appevents.AppUIMessage = (*UploadStartedMsg)(nil)
	_ appevents.AppUIMessage = (*ProgressUpdateMsg)(nil)
	_ appevents.AppUIMessage = (*UploadCompleteMsg)(nil)
)
