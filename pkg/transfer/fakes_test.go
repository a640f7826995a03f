package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// httpStatusError mimics adapter errors that carry an HTTP status.
type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string   { return fmt.Sprintf("http status %d", e.code) }
func (e *httpStatusError) HTTPStatus() int { return e.code }

// fakeArchive records folder creation and uploads in one ordered log.
type fakeArchive struct {
	mu      sync.Mutex
	nextID  int
	rootID  string
	folders map[string]string // folder id -> parent id
	titles  map[string]string // parent id + "/" + title -> folder id
	log     []string
	uploads map[string]string // file name -> folder id

	// folder ids that did not exist when a unit started uploading into them
	orderViolations []string

	CreateFolderFunc func(ctx context.Context, parentID, title string) (string, error)
	FindFolderFunc   func(ctx context.Context, parentID, title string) (string, bool, error)
	DirectUploadFunc func(ctx context.Context, req DirectUploadRequest) (*Receipt, error)
}

func newFakeArchive(rootID string) *fakeArchive {
	return &fakeArchive{
		rootID:  rootID,
		folders: map[string]string{},
		titles:  map[string]string{},
		uploads: map[string]string{},
	}
}

func (a *fakeArchive) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	if a.CreateFolderFunc != nil {
		if _, err := a.CreateFolderFunc(ctx, parentID, title); err != nil {
			return "", err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := fmt.Sprintf("F%d", a.nextID)
	a.folders[id] = parentID
	a.titles[parentID+"/"+title] = id
	a.log = append(a.log, "folder:"+id)
	return id, nil
}

func (a *fakeArchive) FindFolder(ctx context.Context, parentID, title string) (string, bool, error) {
	if a.FindFolderFunc != nil {
		return a.FindFolderFunc(ctx, parentID, title)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.titles[parentID+"/"+title]
	return id, ok, nil
}

func (a *fakeArchive) DirectUpload(ctx context.Context, req DirectUploadRequest) (*Receipt, error) {
	a.checkFolder(req.FolderID)
	if a.DirectUploadFunc != nil {
		return a.DirectUploadFunc(ctx, req)
	}
	if _, err := io.Copy(io.Discard, req.Body); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads[req.Name] = req.FolderID
	a.log = append(a.log, "upload:"+req.Name)
	return &Receipt{Reference: "IO-" + req.Name}, nil
}

func (a *fakeArchive) checkFolder(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == a.rootID {
		return
	}
	if _, ok := a.folders[id]; !ok {
		a.orderViolations = append(a.orderViolations, id)
	}
}

func (a *fakeArchive) folderCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.folders)
}

// fakeStager keeps uploaded parts in memory.
type fakeStager struct {
	mu        sync.Mutex
	nextID    int
	initiated []StageRequest
	parts     map[string]map[int32][]byte
	attempts  map[int32]int
	completed []MultipartUpload
	aborted   []MultipartUpload

	InitiateFunc   func(ctx context.Context, req StageRequest) error
	UploadPartFunc func(ctx context.Context, up MultipartUpload, part PartUpload, attempt int) error
	CompleteFunc   func(ctx context.Context, up MultipartUpload) error
}

func newFakeStager() *fakeStager {
	return &fakeStager{
		parts:    map[string]map[int32][]byte{},
		attempts: map[int32]int{},
	}
}

func (s *fakeStager) InitiateMultipart(ctx context.Context, req StageRequest) (MultipartUpload, error) {
	if s.InitiateFunc != nil {
		if err := s.InitiateFunc(ctx, req); err != nil {
			return MultipartUpload{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.initiated = append(s.initiated, req)
	up := MultipartUpload{Bucket: req.Bucket, Key: req.Key, UploadID: fmt.Sprintf("U%d", s.nextID)}
	s.parts[up.UploadID] = map[int32][]byte{}
	return up, nil
}

func (s *fakeStager) UploadPart(ctx context.Context, up MultipartUpload, part PartUpload) (CompletedPart, error) {
	s.mu.Lock()
	s.attempts[part.Number]++
	attempt := s.attempts[part.Number]
	s.mu.Unlock()

	data, err := io.ReadAll(part.Body)
	if err != nil {
		return CompletedPart{}, err
	}
	if s.UploadPartFunc != nil {
		if err := s.UploadPartFunc(ctx, up, part, attempt); err != nil {
			return CompletedPart{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[up.UploadID][part.Number] = data
	return CompletedPart{Number: part.Number, ETag: fmt.Sprintf("etag-%d", part.Number)}, nil
}

func (s *fakeStager) CompleteMultipart(ctx context.Context, up MultipartUpload, parts []CompletedPart) (*Receipt, error) {
	if s.CompleteFunc != nil {
		if err := s.CompleteFunc(ctx, up); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, up)
	return &Receipt{Reference: up.Key, ETag: "final"}, nil
}

func (s *fakeStager) AbortMultipart(ctx context.Context, up MultipartUpload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, up)
	return nil
}

func (s *fakeStager) assembled(uploadID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := s.parts[uploadID]
	var out []byte
	for i := int32(1); i <= int32(len(parts)); i++ {
		out = append(out, parts[i]...)
	}
	return out
}

// writeFile creates a file of size bytes with a repeating pattern.
func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// testConfig returns a config with tiny thresholds and no real backoff.
func testConfig() *TransferConfig {
	cfg := DefaultTransferConfig()
	cfg.ThresholdBytes = 100
	cfg.PartSize = 40
	cfg.MaxConcurrency = 2
	cfg.Bucket = "staging"
	cfg.RetryPolicy = &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 5 * time.Millisecond}
	cfg.PartRetryPolicy = &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 5 * time.Millisecond}
	return cfg
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newTestScheduler(t *testing.T, cfg *TransferConfig, archive Archive, stager Stager) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, archive, stager, WithSleep(noSleep))
	require.NoError(t, err)
	return s
}

func unitByName(t *testing.T, job *FolderJob, name string) *TransferUnit {
	t.Helper()
	for _, u := range job.Units {
		if u.Name == name {
			return u
		}
	}
	t.Fatalf("no unit named %s", name)
	return nil
}
