package localTree

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rescp17/preservicaUploader/internal/style"
	"github.com/rescp17/preservicaUploader/internal/util"
)

type mode int

const (
	modeBrowse mode = iota
	modeInput
)

// --- Key Map ---
type KeyMap struct {
	Up           key.Binding
	Down         key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
	Parent       key.Binding
	Open         key.Binding
	ToggleSelect key.Binding
	ToggleHidden key.Binding
	ToggleInput  key.Binding
	Confirm      key.Binding
	Back         key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:           key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
	Down:         key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
	PageUp:       key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "page up")),
	PageDown:     key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "page down")),
	Parent:       key.NewBinding(key.WithKeys("left", "h", "backspace"), key.WithHelp("←/h", "parent")),
	Open:         key.NewBinding(key.WithKeys("right", "l", "enter"), key.WithHelp("→/l", "open")),
	ToggleSelect: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select")),
	ToggleHidden: key.NewBinding(key.WithKeys("."), key.WithHelp(".", "hidden")),
	ToggleInput:  key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "input path")),
	Confirm:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
	Back:         key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
}

// Model browses the local filesystem and holds at most one selected file or folder.
type Model struct {
	path       string
	items      []fs.DirEntry
	selected   string
	cursor     int
	offset     int
	keys       KeyMap
	mode       mode
	input      textinput.Model
	err        error
	height     int
	width      int
	showHidden bool
	focused    bool
}

// New starts browsing dir, falling back to the working directory.
func New(dir string) Model {
	ti := textinput.New()
	ti.Placeholder = "path to a folder"
	ti.CharLimit = 512
	ti.Width = 60
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	m := Model{
		keys:  DefaultKeyMap,
		input: ti,
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			slog.Warn("Could not get working directory", "error", err)
			wd = "."
		}
		dir = wd
	}
	if err := m.SetPath(dir); err != nil {
		m.err = err
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode == modeInput {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg), nil
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) Model {
	switch {
	case key.Matches(msg, m.keys.ToggleInput):
		m.mode = modeInput
		m.input.SetValue(m.path)
		m.input.Focus()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			if m.cursor < m.offset {
				m.offset--
			}
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
			if m.cursor >= m.offset+m.visibleItems() {
				m.offset++
			}
		}

	case key.Matches(msg, m.keys.PageDown):
		visible := m.visibleItems()
		m.cursor = min(m.cursor+visible, max(len(m.items)-1, 0))
		if m.cursor >= m.offset+visible {
			m.offset = m.cursor - visible + 1
		}

	case key.Matches(msg, m.keys.PageUp):
		m.cursor = max(m.cursor-m.visibleItems(), 0)
		if m.cursor < m.offset {
			m.offset = m.cursor
		}

	case key.Matches(msg, m.keys.Parent):
		parent := filepath.Dir(m.path)
		if parent != m.path {
			prev := filepath.Base(m.path)
			if err := m.SetPath(parent); err != nil {
				m.err = err
				break
			}
			m.moveTo(prev)
		}

	case key.Matches(msg, m.keys.Open):
		if item, ok := m.current(); ok && item.IsDir() {
			if err := m.SetPath(filepath.Join(m.path, item.Name())); err != nil {
				m.err = err
			}
		}

	case key.Matches(msg, m.keys.ToggleSelect):
		if item, ok := m.current(); ok {
			p := filepath.Join(m.path, item.Name())
			if m.selected == p {
				m.selected = ""
			} else {
				m.selected = p
			}
		}

	case key.Matches(msg, m.keys.ToggleHidden):
		m.showHidden = !m.showHidden
		if err := m.SetPath(m.path); err != nil {
			m.err = err
		}
	}
	return m
}

func (m Model) updateInput(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = modeBrowse
		m.input.Blur()
		m.input.Reset()
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		p := strings.TrimSpace(m.input.Value())
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.path, p)
		}
		if err := m.SetPath(p); err != nil {
			m.err = err
			return m, nil
		}
		m.input.Blur()
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// SetPath loads dir and switches to browsing it.
func (m *Model) SetPath(dir string) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	exists, isDir, err := util.CheckDirectory(absPath)
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", absPath, err)
	}
	if !exists {
		return fmt.Errorf("path does not exist: %s", absPath)
	}
	if !isDir {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return fmt.Errorf("could not read directory: %w", err)
	}

	items := entries[:0]
	for _, e := range entries {
		if !m.showHidden && (util.IsHidden(e.Name()) || util.IsSystemFile(e.Name())) {
			continue
		}
		items = append(items, e)
	}
	// Directories first, then by name.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir() != items[j].IsDir() {
			return items[i].IsDir()
		}
		return items[i].Name() < items[j].Name()
	})

	m.path = absPath
	m.items = items
	m.cursor = 0
	m.offset = 0
	m.err = nil
	m.mode = modeBrowse
	return nil
}

func (m *Model) moveTo(name string) {
	for i, it := range m.items {
		if it.Name() == name {
			m.cursor = i
			if visible := m.visibleItems(); m.cursor >= visible {
				m.offset = m.cursor - visible + 1
			}
			return
		}
	}
}

func (m Model) current() (fs.DirEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return nil, false
	}
	return m.items[m.cursor], true
}

// Selected returns the selected path, or "".
func (m Model) Selected() string { return m.selected }

// ClearSelection drops the current selection.
func (m *Model) ClearSelection() { m.selected = "" }

// Path is the directory being browsed.
func (m Model) Path() string { return m.path }

// Inputting reports whether the path prompt has the keyboard.
func (m Model) Inputting() bool { return m.mode == modeInput }

func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) Focus() { m.focused = true }

func (m *Model) Blur() { m.focused = false }

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(style.TitleStyle.Render("Local") + " " + style.HelpStyle.Render(m.path) + "\n")
	if m.mode == modeInput {
		s.WriteString(m.input.View() + "\n")
	}
	if m.err != nil {
		s.WriteString(style.ErrorStyle.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n")

	nameWidth := max(m.width-24, 16)
	if len(m.items) == 0 {
		s.WriteString(style.HelpStyle.Render("(empty)") + "\n")
	}

	end := min(m.offset+m.visibleItems(), len(m.items))
	for i := m.offset; i < end; i++ {
		item := m.items[i]
		if m.focused && i == m.cursor {
			s.WriteString(style.CursorStyle.String())
		} else {
			s.WriteString(style.NoCursorStyle.String())
		}

		p := filepath.Join(m.path, item.Name())
		if m.selected == p {
			s.WriteString(style.SelectedStyle.String())
		} else {
			s.WriteString(style.DeselectedStyle.String())
		}

		name := item.Name()
		size := ""
		if item.IsDir() {
			name += "/"
			size = "<DIR>"
		} else if info, err := item.Info(); err == nil {
			size = util.FormatSize(info.Size())
		}

		nameCell := util.PadRight(name, nameWidth)
		if item.IsDir() {
			nameCell = style.DirStyle.Render(nameCell)
		} else {
			nameCell = style.FileStyle.Render(nameCell)
		}
		s.WriteString(nameCell + " " + size + "\n")
	}

	if len(m.items) > m.visibleItems() {
		s.WriteString(style.HelpStyle.Render(fmt.Sprintf("... %d/%d ...", m.cursor+1, len(m.items))) + "\n")
	}
	return s.String()
}

func (m Model) visibleItems() int {
	headerHeight := 4
	if m.err != nil {
		headerHeight++
	}
	if m.mode == modeInput {
		headerHeight++
	}
	visible := m.height - headerHeight
	if visible < 1 {
		visible = 10
	}
	return visible
}
