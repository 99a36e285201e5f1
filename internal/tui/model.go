package tui

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/antonkrylov/termbridge/internal/mirror"
	"github.com/antonkrylov/termbridge/internal/pane"
)

const (
	scrollbackLines = 5000
	scrollbackBytes = 1 << 20
)

var (
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	statusStyle      = lipgloss.NewStyle().Faint(true)
)

// taskMsg carries a dispatched bridge task into the event loop. Whoever
// claims it first, Update or the handoff after the loop stopped, runs it.
type taskMsg struct {
	run     func()
	claimed atomic.Bool
	done    chan struct{}
}

func newTaskMsg(run func()) *taskMsg {
	return &taskMsg{run: run, done: make(chan struct{})}
}

func (t *taskMsg) claim() bool { return t.claimed.CompareAndSwap(false, true) }

type outputMsg struct {
	alias string
	data  []byte
}

type tab struct {
	pane *pane.Pane
	sb   *scrollback
	// carry is the tail of the last chunk that ended mid-sequence.
	carry []byte
}

// model is mutated only inside Update, which makes bubbletea's event loop
// the dispatcher for every pane.
type model struct {
	logger       *slog.Logger
	forwardInput bool
	send         func(tea.Msg)
	onUserClose  func(alias string)

	tabs     []*tab
	active   int
	viewport viewport.Model
	width    int
	height   int
}

func newModel(logger *slog.Logger, forwardInput bool) *model {
	return &model{
		logger:       logger,
		forwardInput: forwardInput,
		viewport:     viewport.New(80, 20),
	}
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case *taskMsg:
		if msg.claim() {
			mirror.RunTask(m.logger, msg.run)
			close(msg.done)
			m.render()
		}
		return m, nil
	case outputMsg:
		if t := m.find(msg.alias); t != nil {
			complete, rest := splitIncomplete(append(t.carry, msg.data...))
			t.carry = append([]byte(nil), rest...)
			text := strings.ReplaceAll(ansi.Strip(string(complete)), "\r", "")
			t.sb.Append(text)
			if m.current() == t {
				m.render()
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 2
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.render()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+right":
		m.switchTab(1)
		return m, nil
	case "ctrl+left":
		m.switchTab(-1)
		return m, nil
	case "ctrl+w":
		if t := m.current(); t != nil && m.onUserClose != nil {
			m.onUserClose(t.pane.Alias())
		}
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(k)
		return m, cmd
	}
	if !m.forwardInput {
		if k.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}
	if t := m.current(); t != nil {
		if b := keyBytes(k); len(b) > 0 {
			if err := t.pane.Keystroke(b); err != nil {
				m.logger.Debug("drop keystroke", "alias", t.pane.Alias(), "err", err)
			}
		}
	}
	return m, nil
}

func keyBytes(k tea.KeyMsg) []byte {
	switch k.Type {
	case tea.KeyRunes:
		return []byte(string(k.Runes))
	case tea.KeySpace:
		return []byte(" ")
	case tea.KeyEnter:
		return []byte("\r")
	case tea.KeyTab:
		return []byte("\t")
	case tea.KeyBackspace:
		return []byte{0x7f}
	case tea.KeyCtrlD:
		return []byte{0x04}
	case tea.KeyEsc:
		return []byte{0x1b}
	}
	return nil
}

func (m *model) View() string {
	var bar strings.Builder
	for i, t := range m.tabs {
		title := t.pane.Title()
		if title == "" {
			title = t.pane.Alias()
		}
		if i == m.active {
			bar.WriteString(activeTabStyle.Render(title))
		} else {
			bar.WriteString(inactiveTabStyle.Render(title))
		}
	}
	if len(m.tabs) == 0 {
		bar.WriteString(inactiveTabStyle.Render("waiting for supervisor terminals"))
	}
	status := "ctrl+←/→ switch • ctrl+w close • pgup/pgdn scroll • q quit"
	if m.forwardInput {
		status = "ctrl+←/→ switch • ctrl+w close • pgup/pgdn scroll • ctrl+c quit • input forwarded"
	}
	return bar.String() + "\n" + m.viewport.View() + "\n" + statusStyle.Render(status)
}

// addPane runs on the event loop via pane.Factory.OnCreate.
func (m *model) addPane(p *pane.Pane) {
	m.tabs = append(m.tabs, &tab{pane: p, sb: newScrollback(scrollbackLines, scrollbackBytes)})
	if len(m.tabs) == 1 {
		m.active = 0
	}
	if m.send != nil {
		go m.readOutput(p)
	}
}

// removePane runs on the event loop via pane.Factory.OnClose.
func (m *model) removePane(p *pane.Pane) {
	for i, t := range m.tabs {
		if t.pane != p {
			continue
		}
		m.tabs = append(m.tabs[:i], m.tabs[i+1:]...)
		if m.active >= len(m.tabs) && m.active > 0 {
			m.active = len(m.tabs) - 1
		}
		return
	}
}

func (m *model) readOutput(p *pane.Pane) {
	buf := make([]byte, 32*1024)
	r := p.Output()
	for {
		n, err := r.Read(buf)
		if n > 0 {
			m.send(outputMsg{alias: p.Alias(), data: append([]byte(nil), buf[:n]...)})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Warn("read pane output", "alias", p.Alias(), "err", err)
			}
			return
		}
	}
}

func (m *model) switchTab(delta int) {
	if len(m.tabs) == 0 {
		return
	}
	m.active = (m.active + delta + len(m.tabs)) % len(m.tabs)
	m.render()
}

func (m *model) current() *tab {
	if m.active < 0 || m.active >= len(m.tabs) {
		return nil
	}
	return m.tabs[m.active]
}

func (m *model) find(alias string) *tab {
	for _, t := range m.tabs {
		if t.pane.Alias() == alias {
			return t
		}
	}
	return nil
}

func (m *model) render() {
	t := m.current()
	if t == nil {
		m.viewport.SetContent("")
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(t.sb.Content())
	if atBottom {
		m.viewport.GotoBottom()
	}
}
