package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/preservicaUploader/internal/app_events"
	events "github.com/rescp17/preservicaUploader/internal/app_events/uploader"
	"github.com/rescp17/preservicaUploader/pkg/archive"
	"github.com/rescp17/preservicaUploader/pkg/remoteTree"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	ui     chan tea.Msg
	events chan appevents.AppEvent
}

func newFakeController() *fakeController {
	return &fakeController{ui: make(chan tea.Msg, 8), events: make(chan appevents.AppEvent, 8)}
}

func (f *fakeController) Run(ctx context.Context) error { <-ctx.Done(); return nil }

func (f *fakeController) UIMessages() <-chan tea.Msg { return f.ui }

func (f *fakeController) AppEvents() chan<- appevents.AppEvent { return f.events }

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyPress(k))
		m = next.(model)
	}
	return m, cmd
}

func send(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(model)
}

func newTestModel(t *testing.T) (model, *fakeController, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("x"), 0o644))
	fc := newFakeController()
	m := InitialModel(fc, dir)
	t.Cleanup(m.cancel)
	m = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = send(t, m, events.FoldersLoadedMsg{ParentRef: remoteTree.RootRef, Children: []archive.Entity{
		{Ref: "SO1", Title: "Accessions", Type: archive.TypeFolder},
	}})
	return m, fc, dir
}

func TestSwitchPane(t *testing.T) {
	m, _, _ := newTestModel(t)
	assert.Equal(t, paneLocal, m.focus)
	m, _ = press(t, m, "tab")
	assert.Equal(t, paneRemote, m.focus)
	m, _ = press(t, m, "tab")
	assert.Equal(t, paneLocal, m.focus)
}

func TestUploadNeedsBothSelections(t *testing.T) {
	m, fc, _ := newTestModel(t)
	m, cmd := press(t, m, "u")
	assert.Nil(t, cmd)
	assert.ErrorIs(t, m.err, errNoSelection)
	assert.Empty(t, fc.events)
}

func TestUploadDispatchesRequest(t *testing.T) {
	m, fc, dir := newTestModel(t)

	m, _ = press(t, m, "space")                // select report.pdf
	m, _ = press(t, m, "tab", "down", "space") // select Accessions
	m, cmd := press(t, m, "u")
	require.NotNil(t, cmd)
	assert.Equal(t, scanning, m.state)
	cmd()

	select {
	case ev := <-fc.events:
		req, ok := ev.(events.UploadRequestedMsg)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(dir, "report.pdf"), req.LocalPath)
		assert.Equal(t, "SO1", req.FolderRef)
	case <-time.After(time.Second):
		t.Fatal("no upload request dispatched")
	}

	m, _ = press(t, m, "u")
	assert.Error(t, m.err, "second upload is refused while one runs")

	m, cmd = press(t, m, "c")
	require.NotNil(t, cmd)
	cmd()
	assert.IsType(t, events.CancelUploadMsg{}, <-fc.events)
}

func TestProgressAndCompletion(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.state = scanning

	m = send(t, m, events.UploadStartedMsg{Files: 2, TotalBytes: 200})
	assert.Equal(t, uploading, m.state)

	m = send(t, m, events.ProgressUpdateMsg{Snapshot: transfer.ProgressSnapshot{
		TotalBytes: 200, TransferredBytes: 100, Fraction: 0.5, TotalUnits: 2,
		Counts: map[transfer.UnitState]int{transfer.StateSucceeded: 1, transfer.StateInProgress: 1},
	}})
	assert.Contains(t, m.View(), "1/2 files")

	result := &transfer.JobResult{
		Succeeded: []transfer.UnitOutcome{{Name: "a.txt", State: transfer.StateSucceeded}},
		Failed:    []transfer.UnitOutcome{{Name: "b.txt", State: transfer.StateFailed, Reason: "rejected"}},
	}
	m = send(t, m, events.UploadCompleteMsg{Result: result})
	assert.Equal(t, finished, m.state)
	view := m.View()
	assert.Contains(t, view, "1 succeeded, 1 failed, 0 cancelled")
	assert.Contains(t, view, "b.txt: rejected")
	assert.Contains(t, view, "ingest progress")
	assert.Empty(t, m.local.Selected())
}

func TestAppErrorReturnsToIdle(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.state = scanning
	m = send(t, m, appevents.Error{Err: errors.New("scan failed")})
	assert.Equal(t, idle, m.state)
	assert.Contains(t, m.View(), "scan failed")
}

func TestRefreshAndLoadRequests(t *testing.T) {
	m, fc, _ := newTestModel(t)
	m, cmd := press(t, m, "r")
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Equal(t, remoteTree.LoadRequestMsg{ParentRef: remoteTree.RootRef}, msg)

	next, dispatch := m.Update(msg)
	m = next.(model)
	require.NotNil(t, dispatch)
	dispatch()
	assert.Equal(t, events.LoadFoldersMsg{ParentRef: remoteTree.RootRef}, <-fc.events)
}

func TestQuitCancelsContext(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Error(t, m.ctx.Err())
}
