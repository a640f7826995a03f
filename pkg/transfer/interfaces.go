package transfer

import (
	"context"
	"io"
	"time"
)

// Archive is the remote archive's folder and direct-ingest surface.
type Archive interface {
	// CreateFolder creates a child folder under parentID and returns its reference.
	CreateFolder(ctx context.Context, parentID, title string) (string, error)

	// FindFolder looks up an existing child folder by title.
	FindFolder(ctx context.Context, parentID, title string) (string, bool, error)

	// DirectUpload streams one file into folderID and returns the placement confirmation.
	DirectUpload(ctx context.Context, req DirectUploadRequest) (*Receipt, error)
}

// Stager is the staging object store used by the staged pathway.
type Stager interface {
	InitiateMultipart(ctx context.Context, req StageRequest) (MultipartUpload, error)
	UploadPart(ctx context.Context, up MultipartUpload, part PartUpload) (CompletedPart, error)
	CompleteMultipart(ctx context.Context, up MultipartUpload, parts []CompletedPart) (*Receipt, error)
	AbortMultipart(ctx context.Context, up MultipartUpload) error
}

// DirectUploadRequest carries one file to the direct-ingest endpoint.
type DirectUploadRequest struct {
	FolderID    string
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// StageRequest describes the object a staged unit will create.
type StageRequest struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64
	Metadata    map[string]string
}

// MultipartUpload identifies an in-progress multipart upload.
type MultipartUpload struct {
	Bucket   string
	Key      string
	UploadID string
}

// PartUpload is one part body with its SHA-256 digest.
type PartUpload struct {
	Number int32
	Size   int64
	Body   io.ReadSeeker
	SHA256 []byte
}

// CompletedPart is the store's acknowledgement of a part.
type CompletedPart struct {
	Number         int32
	ETag           string
	ChecksumSHA256 string
}

// Receipt confirms placement (direct) or handoff (staged).
type Receipt struct {
	Pathway   Pathway
	Reference string
	Location  string
	ETag      string
	At        time.Time
}

// Staging object metadata keys read by the archive's pickup workflow.
const (
	MetaKey                 = "key"
	MetaName                = "name"
	MetaBucket              = "bucket"
	MetaStatus              = "status"
	MetaCollectionReference = "collectionreference"
	MetaSize                = "size"
	MetaCreatedBy           = "createdby"

	StatusReady = "ready"
)
