package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/preservicaUploader/internal/app_events"
	events "github.com/rescp17/preservicaUploader/internal/app_events/uploader"
	"github.com/rescp17/preservicaUploader/internal/style"
	"github.com/rescp17/preservicaUploader/pkg/localTree"
	"github.com/rescp17/preservicaUploader/pkg/remoteTree"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

// AppController is the logic controller behind the TUI.
type AppController interface {
	Run(ctx context.Context) error
	UIMessages() <-chan tea.Msg
	AppEvents() chan<- appevents.AppEvent
}

type pane int

const (
	paneLocal pane = iota
	paneRemote
)

type jobState int

const (
	idle jobState = iota
	scanning
	uploading
	finished
)

var errNoSelection = errors.New("select a local file or folder and a destination folder first")

type model struct {
	ctx           context.Context
	cancel        context.CancelFunc
	appController AppController

	local  localTree.Model
	remote remoteTree.Model
	focus  pane

	state    jobState
	status   string
	err      error
	started  events.UploadStartedMsg
	snapshot transfer.ProgressSnapshot
	result   *transfer.JobResult

	spinner  spinner.Model
	progress progress.Model
	help     help.Model
	keys     keyMap

	width  int
	height int
}

// InitialModel builds the dual-pane uploader starting in startDir.
func InitialModel(app AppController, startDir string) model {
	ctx, cancel := context.WithCancel(context.Background())
	m := model{
		ctx:           ctx,
		cancel:        cancel,
		appController: app,
		local:         localTree.New(startDir),
		remote:        remoteTree.New("Preservica"),
		spinner:       style.NewSpinner(),
		progress:      style.NewProgressBar(),
		help:          help.New(),
		keys:          defaultKeys,
	}
	m.local.Focus()
	return m
}

func (m model) Init() tea.Cmd {
	go func() {
		if err := m.appController.Run(m.ctx); err != nil {
			slog.Error("App stopped", "error", err)
		}
	}()
	return tea.Batch(m.spinner.Tick, m.listenForAppMessages(), m.remote.Init())
}

// listenForAppMessages is a command that listens for messages from the app controller.
func (m model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.appController.UIMessages():
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

// dispatch hands an event to the app without blocking the update loop.
func (m model) dispatch(ev appevents.AppEvent) tea.Cmd {
	return func() tea.Msg {
		select {
		case m.appController.AppEvents() <- ev:
		case <-m.ctx.Done():
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cmd, processed := m.handleAppMessage(msg); processed {
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case remoteTree.LoadRequestMsg:
		return m, m.dispatch(events.LoadFoldersMsg{ParentRef: msg.ParentRef})

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleAppMessage(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case events.FoldersLoadedMsg:
		m.remote.SetChildren(msg.ParentRef, msg.Children, msg.Err)
	case events.StatusUpdateMsg:
		slog.Info("Status update", "message", msg.Message)
		m.status = msg.Message
	case events.UploadStartedMsg:
		m.state = uploading
		m.started = msg
		m.snapshot = transfer.ProgressSnapshot{TotalBytes: msg.TotalBytes, TotalUnits: msg.Files}
	case events.ProgressUpdateMsg:
		m.snapshot = msg.Snapshot
	case events.UploadCompleteMsg:
		m.state = finished
		m.result = msg.Result
		m.status = summary(msg.Result)
		m.local.ClearSelection()
	case appevents.Error:
		m.err = msg.Err
		if m.state == scanning {
			m.state = idle
		}
	default:
		return nil, false
	}
	return m.listenForAppMessages(), true
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == paneLocal && m.local.Inputting() && msg.Type != tea.KeyCtrlC {
		var cmd tea.Cmd
		m.local, cmd = m.local.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.SwitchPane):
		if m.focus == paneLocal {
			m.focus = paneRemote
			m.local.Blur()
			m.remote.Focus()
		} else {
			m.focus = paneLocal
			m.remote.Blur()
			m.local.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Upload):
		return m.startUpload()

	case key.Matches(msg, m.keys.Cancel):
		if m.state == scanning || m.state == uploading {
			return m, m.dispatch(events.CancelUploadMsg{})
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.remote.Refresh()
	}

	var cmd tea.Cmd
	if m.focus == paneLocal {
		m.local, cmd = m.local.Update(msg)
	} else {
		m.remote, cmd = m.remote.Update(msg)
	}
	return m, cmd
}

func (m model) startUpload() (tea.Model, tea.Cmd) {
	if m.state == scanning || m.state == uploading {
		m.err = fmt.Errorf("an upload is already running")
		return m, nil
	}
	localPath := m.local.Selected()
	dest, ok := m.remote.Selected()
	if localPath == "" || !ok {
		m.err = errNoSelection
		return m, nil
	}

	m.err = nil
	m.result = nil
	m.state = scanning
	m.snapshot = transfer.ProgressSnapshot{}
	m.status = fmt.Sprintf("Uploading %s to %s", localPath, dest.Title)
	return m, m.dispatch(events.UploadRequestedMsg{
		LocalPath:   localPath,
		FolderRef:   dest.Ref,
		FolderTitle: dest.Title,
	})
}

func (m *model) resize(width, height int) {
	m.width, m.height = width, height
	paneWidth := max(width/2-4, 20)
	paneHeight := max(height-10, 5)
	m.local.SetSize(paneWidth, paneHeight)
	m.remote.SetSize(paneWidth, paneHeight)
	m.progress.Width = max(width-4, 10)
	m.help.Width = width
}

func summary(r *transfer.JobResult) string {
	if r == nil {
		return "Upload finished."
	}
	return fmt.Sprintf("Upload finished: %d succeeded, %d failed, %d cancelled",
		len(r.Succeeded), len(r.Failed), len(r.Cancelled))
}
