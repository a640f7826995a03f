package ui

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rescp17/preservicaUploader/internal/style"
	"github.com/rescp17/preservicaUploader/internal/util"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

const ingestNote = "Files have been handed to Preservica. Check the Preservica console for ingest progress."

// maxListedFailures caps the failure list under the summary.
const maxListedFailures = 5

const activePathWidth = 48

func (m model) View() string {
	localStyle, remoteStyle := style.FocusedPaneStyle, style.PaneStyle
	if m.focus == paneRemote {
		localStyle, remoteStyle = style.PaneStyle, style.FocusedPaneStyle
	}
	paneWidth := max(m.width/2-2, 24)

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		localStyle.Width(paneWidth).Render(m.local.View()),
		remoteStyle.Width(paneWidth).Render(m.remote.View()),
	)

	var s strings.Builder
	s.WriteString(panes + "\n")
	s.WriteString(m.selectionView() + "\n")
	s.WriteString(m.jobView())
	if m.err != nil {
		s.WriteString(style.ErrorStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	s.WriteString(m.help.View(m.keys))
	return s.String()
}

func (m model) selectionView() string {
	src := m.local.Selected()
	if src == "" {
		src = "(none)"
	}
	dest := "(none)"
	if e, ok := m.remote.Selected(); ok {
		dest = e.Title
	}
	return style.StatusBarStyle.Render(fmt.Sprintf("Upload %s → %s",
		style.HighlightFontStyle.Render(src), style.HighlightFontStyle.Render(dest)))
}

func (m model) jobView() string {
	var s strings.Builder
	switch m.state {
	case idle:
		if m.status != "" {
			s.WriteString(style.StatusBarStyle.Render(m.status) + "\n")
		}
	case scanning:
		s.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.status))
	case uploading:
		snap := m.snapshot
		s.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.status))
		s.WriteString(m.progress.ViewAs(snap.Fraction) + "\n")
		done := snap.Counts[transfer.StateSucceeded] + snap.Counts[transfer.StateFailed] + snap.Counts[transfer.StateCancelled]
		line := fmt.Sprintf("%d/%d files  %s / %s  %s",
			done, snap.TotalUnits,
			util.FormatSize(snap.TransferredBytes), util.FormatSize(snap.TotalBytes),
			util.FormatRate(snap.Rate))
		if snap.ETA > 0 {
			line += fmt.Sprintf("  ETA %s", snap.ETA.Round(time.Second))
		}
		s.WriteString(style.StatusBarStyle.Render(line) + "\n")
		for _, u := range snap.Active {
			line := fmt.Sprintf("  %s %s (%s)", u.State, util.ShortenPath(path.Join(u.RemoteRelDir, u.Name), activePathWidth), util.FormatSize(u.BytesTransferred))
			if u.PartsTotal > 0 {
				line += fmt.Sprintf(" part %d/%d", u.PartsDone, u.PartsTotal)
			}
			s.WriteString(style.HelpStyle.Render(line) + "\n")
		}
	case finished:
		s.WriteString(m.resultView())
	}
	return s.String()
}

func (m model) resultView() string {
	var s strings.Builder
	msgStyle := style.SuccessStyle
	if m.result != nil && !m.result.OK() {
		msgStyle = style.WarnStyle
	}
	s.WriteString(msgStyle.Render(m.status) + "\n")
	if m.result != nil {
		for i, f := range m.result.Failed {
			if i == maxListedFailures {
				s.WriteString(style.HelpStyle.Render(fmt.Sprintf("  ... and %d more", len(m.result.Failed)-i)) + "\n")
				break
			}
			s.WriteString(style.ErrorStyle.Render(fmt.Sprintf("  %s: %s", f.Name, f.Reason)) + "\n")
		}
		if len(m.result.Succeeded) > 0 {
			s.WriteString(ingestNote + "\n")
		}
	}
	return s.String()
}
