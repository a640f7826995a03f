package remoteTree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rescp17/preservicaUploader/internal/style"
	"github.com/rescp17/preservicaUploader/pkg/archive"
)

// RootRef is the pseudo reference of the archive root.
const RootRef = ""

// LoadRequestMsg asks the owner to fetch the children of ParentRef and hand
// them back through SetChildren.
type LoadRequestMsg struct {
	ParentRef string
}

type KeyMap struct {
	Up           key.Binding
	Down         key.Binding
	Expand       key.Binding
	Collapse     key.Binding
	ToggleSelect key.Binding
}

var DefaultKeyMap = KeyMap{
	Up:           key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
	Down:         key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
	Expand:       key.NewBinding(key.WithKeys("right", "l", "enter"), key.WithHelp("→/l", "expand")),
	Collapse:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "collapse")),
	ToggleSelect: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select folder")),
}

type node struct {
	entity   archive.Entity
	parent   string
	depth    int
	expanded bool
	loaded   bool
	loading  bool
	err      error
	children []string
}

// Model is a lazily loaded tree of archive folders. Assets are shown as
// leaves and cannot be selected.
type Model struct {
	title    string
	nodes    map[string]*node
	rows     []string
	cursor   int
	offset   int
	selected string
	keys     KeyMap
	width    int
	height   int
	focused  bool
}

func New(title string) Model {
	m := Model{title: title, keys: DefaultKeyMap}
	m.reset()
	return m
}

func (m *Model) reset() {
	m.nodes = map[string]*node{
		RootRef: {entity: archive.Entity{Ref: RootRef, Title: m.title, Type: archive.TypeFolder}, expanded: true},
	}
	m.cursor, m.offset = 0, 0
	m.selected = ""
	m.rebuild()
}

// Init requests the root listing.
func (m Model) Init() tea.Cmd {
	return m.load(RootRef)
}

// Refresh drops every loaded level and requests the root again.
func (m *Model) Refresh() tea.Cmd {
	m.reset()
	return m.load(RootRef)
}

func (m Model) load(ref string) tea.Cmd {
	if n, ok := m.nodes[ref]; ok {
		n.loading = true
		n.err = nil
	}
	return func() tea.Msg { return LoadRequestMsg{ParentRef: ref} }
}

// SetChildren installs a listing. Listings for nodes no longer in the tree are ignored.
func (m *Model) SetChildren(parentRef string, children []archive.Entity, err error) {
	n, ok := m.nodes[parentRef]
	if !ok {
		return
	}
	n.loading = false
	if err != nil {
		n.err = err
		n.loaded = false
		m.rebuild()
		return
	}

	sorted := append([]archive.Entity(nil), children...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsFolder() != sorted[j].IsFolder() {
			return sorted[i].IsFolder()
		}
		return strings.ToLower(sorted[i].Title) < strings.ToLower(sorted[j].Title)
	})

	n.children = n.children[:0]
	for _, c := range sorted {
		if _, exists := m.nodes[c.Ref]; !exists {
			m.nodes[c.Ref] = &node{entity: c, parent: parentRef, depth: n.depth + 1}
		}
		n.children = append(n.children, c.Ref)
	}
	n.loaded = true
	n.err = nil
	m.rebuild()
}

func (m *Model) rebuild() {
	m.rows = make([]string, 0, len(m.nodes))
	var walk func(ref string)
	walk = func(ref string) {
		m.rows = append(m.rows, ref)
		n := m.nodes[ref]
		if !n.expanded {
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(RootRef)
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(km, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(km, m.keys.Expand):
		n := m.current()
		if !n.entity.IsFolder() {
			break
		}
		n.expanded = true
		if !n.loaded && !n.loading {
			cmd := m.load(n.entity.Ref)
			m.rebuild()
			return m.scrolled(), cmd
		}
		m.rebuild()
	case key.Matches(km, m.keys.Collapse):
		n := m.current()
		if n.entity.IsFolder() && n.expanded && n.entity.Ref != RootRef {
			n.expanded = false
			m.rebuild()
		} else if n.entity.Ref != RootRef {
			m.cursor = m.indexOf(n.parent)
		}
	case key.Matches(km, m.keys.ToggleSelect):
		n := m.current()
		if n.entity.IsFolder() && n.entity.Ref != RootRef {
			if m.selected == n.entity.Ref {
				m.selected = ""
			} else {
				m.selected = n.entity.Ref
			}
		}
	}
	return m.scrolled(), nil
}

func (m Model) scrolled() Model {
	visible := m.visibleItems()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	return m
}

func (m Model) current() *node {
	return m.nodes[m.rows[m.cursor]]
}

func (m Model) indexOf(ref string) int {
	for i, r := range m.rows {
		if r == ref {
			return i
		}
	}
	return 0
}

// Selected returns the selected folder, if any.
func (m Model) Selected() (archive.Entity, bool) {
	if m.selected == "" {
		return archive.Entity{}, false
	}
	n, ok := m.nodes[m.selected]
	if !ok {
		return archive.Entity{}, false
	}
	return n.entity, true
}

// Loading reports whether any listing is outstanding.
func (m Model) Loading() bool {
	for _, n := range m.nodes {
		if n.loading {
			return true
		}
	}
	return false
}

func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) Focus() { m.focused = true }

func (m *Model) Blur() { m.focused = false }

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(style.TitleStyle.Render("Preservica") + "\n\n")

	end := min(m.offset+m.visibleItems(), len(m.rows))
	for i := m.offset; i < end; i++ {
		n := m.nodes[m.rows[i]]
		if m.focused && i == m.cursor {
			s.WriteString(style.CursorStyle.String())
		} else {
			s.WriteString(style.NoCursorStyle.String())
		}
		s.WriteString(strings.Repeat("  ", n.depth))
		s.WriteString(m.renderNode(n))
		s.WriteString("\n")
	}
	if len(m.rows) > m.visibleItems() {
		s.WriteString(style.HelpStyle.Render(fmt.Sprintf("... %d/%d ...", m.cursor+1, len(m.rows))) + "\n")
	}
	return s.String()
}

func (m Model) renderNode(n *node) string {
	if !n.entity.IsFolder() {
		return "    " + style.AssetStyle.Render(n.entity.Title)
	}

	var b strings.Builder
	switch {
	case n.entity.Ref == RootRef:
		b.WriteString("    ")
	case m.selected == n.entity.Ref:
		b.WriteString(style.SelectedStyle.String())
	default:
		b.WriteString(style.DeselectedStyle.String())
	}
	arrow := "▸ "
	if n.expanded {
		arrow = "▾ "
	}
	b.WriteString(style.DirStyle.Render(arrow + n.entity.Title))
	switch {
	case n.loading:
		b.WriteString(style.HelpStyle.Render(" loading..."))
	case n.err != nil:
		b.WriteString(" " + style.ErrorStyle.Render(n.err.Error()))
	case n.loaded && n.expanded && len(n.children) == 0:
		b.WriteString(style.HelpStyle.Render(" (empty)"))
	}
	return b.String()
}

func (m Model) visibleItems() int {
	visible := m.height - 3
	if visible < 1 {
		visible = 10
	}
	return visible
}
