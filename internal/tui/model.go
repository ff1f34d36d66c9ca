// Package tui is the terminal front-end: a bubbletea program over a conversation.Session.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/config"
	"github.com/hpungsan/banter/internal/conversation"
	"github.com/hpungsan/banter/internal/errors"
	"github.com/hpungsan/banter/internal/export"
)

// Options configures the terminal UI.
type Options struct {
	Session    *conversation.Session
	Config     *config.Config
	ExportsDir string
	Clipboard  export.Clipboard
	Logger     *zap.Logger
	// MarkdownStyle is a glamour standard style name; empty selects by terminal background.
	MarkdownStyle string
}

type (
	// stateChangedMsg reports a session change made by any front-end.
	stateChangedMsg struct{}
	// submittedMsg carries the result of a Submit run off the update loop.
	submittedMsg struct {
		outcome conversation.Outcome
		err     error
	}
	dictatedMsg struct{ err error }
)

// Model is the bubbletea model. The rendered view is derived from a session snapshot.
type Model struct {
	ctx        context.Context
	session    *conversation.Session
	cfg        *config.Config
	exportsDir string
	clipboard  export.Clipboard
	logger     *zap.Logger

	changes     <-chan struct{}
	unsubscribe func()

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	mdStyle  string

	// searching routes the input line to the search filter; draft holds the message meanwhile.
	searching bool
	draft     string

	notice string
	width  int
	height int
	ready  bool
}

// New creates the model and subscribes it to session changes. Close releases the subscription.
func New(ctx context.Context, opts Options) Model {
	in := textinput.New()
	in.Placeholder = "Type your message..."
	in.Prompt = "> "
	in.CharLimit = 0
	in.Width = 60
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = typingStyle

	changes, unsubscribe := opts.Session.Subscribe()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := opts.Clipboard
	if cb == nil {
		cb = export.SystemClipboard{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	in.SetValue(opts.Session.Draft())

	return Model{
		ctx:         ctx,
		session:     opts.Session,
		cfg:         cfg,
		exportsDir:  opts.ExportsDir,
		clipboard:   cb,
		logger:      logger,
		changes:     changes,
		unsubscribe: unsubscribe,
		input:       in,
		spinner:     s,
		mdStyle:     opts.MarkdownStyle,
	}
}

// Close ends the session subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.changes))
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case submittedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, errors.ErrInFlight) {
				m.notice = "Still waiting for the last reply."
			} else {
				m.notice = "Send failed: " + msg.err.Error()
			}
		}
		m.refresh()
		return m, nil

	case dictatedMsg:
		if msg.err != nil {
			m.notice = "Dictation failed."
			m.logger.Warn("dictation failed", zap.Error(msg.err))
		} else if !m.searching {
			m.input.SetValue(m.session.Draft())
			m.input.CursorEnd()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		if m.searching {
			m.toggleSearch()
			return m, nil
		}
		return m.submit()

	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = -1
		}
		next := chat.NextCategory(m.session.ActiveCategory(), step)
		if err := m.session.SelectCategory(next); err != nil {
			m.notice = err.Error()
		}
		m.refresh()
		return m, nil

	case "ctrl+p":
		id := m.session.CyclePersonality()
		if p, err := m.session.Personalities().Lookup(id); err == nil {
			m.notice = "Personality: " + p.Label
		}
		return m, nil

	case "ctrl+f":
		m.toggleSearch()
		m.refresh()
		return m, nil

	case "ctrl+e":
		m.exportFile()
		return m, nil

	case "ctrl+y":
		notice, err := export.Copy(m.clipboard, m.session.Snapshot().Messages())
		if err != nil {
			m.logger.Warn("clipboard copy failed", zap.Error(err))
		}
		m.notice = notice
		return m, nil

	case "ctrl+l":
		if !m.session.DictationAvailable() {
			m.notice = "Dictation is not available. Set listen_command in config.json."
			return m, nil
		}
		m.notice = "Listening..."
		return m, m.dictate()

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.searching {
		m.session.SetSearch(m.input.Value())
	} else {
		m.session.SetDraft(m.input.Value())
	}
	return m, cmd
}

// submit hands the input line to the session. The text and category are captured now; the
// network call runs in a command so the update loop keeps drawing the typing indicator, and
// keys typed meanwhile only edit the next draft.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.session.InFlight() {
		return m, nil
	}
	text := m.input.Value()
	if chat.IsBlank(text) {
		return m, nil
	}
	m.input.Reset()
	m.session.ClearDraft()
	m.notice = ""

	sess, ctx, category := m.session, m.ctx, m.session.ActiveCategory()
	return m, func() tea.Msg {
		outcome, _, err := sess.SendTo(ctx, category, "", text)
		return submittedMsg{outcome: outcome, err: err}
	}
}

func (m Model) dictate() tea.Cmd {
	sess, ctx := m.session, m.ctx
	return func() tea.Msg {
		return dictatedMsg{err: sess.Dictate(ctx)}
	}
}

func (m *Model) toggleSearch() {
	if m.searching {
		m.searching = false
		m.input.Prompt = "> "
		m.input.Placeholder = "Type your message..."
		m.input.SetValue(m.draft)
		m.input.CursorEnd()
		return
	}
	m.searching = true
	m.draft = m.input.Value()
	m.input.Prompt = "/ "
	m.input.Placeholder = "Search messages..."
	m.input.SetValue(m.session.Search())
	m.input.CursorEnd()
}

func (m *Model) exportFile() {
	snap := m.session.Snapshot()
	out, err := export.WriteFile(m.exportsDir, m.cfg, export.Input{
		Category: snap.ActiveCategory,
		Messages: snap.Messages(),
	})
	if err != nil {
		m.logger.Warn("export failed", zap.Error(err))
		m.notice = "Export failed: " + err.Error()
		return
	}
	m.notice = fmt.Sprintf("Exported %d messages to %s", out.Count, out.Path)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	headerHeight := 2
	footerHeight := 2
	inputHeight := 3
	typingHeight := 1

	vpWidth := max(width-2, 10)
	vpHeight := max(height-headerHeight-footerHeight-inputHeight-typingHeight, 3)

	if !m.ready {
		m.viewport = viewport.New(vpWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = vpWidth
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(vpWidth-6, 10)

	style := glamour.WithAutoStyle()
	if m.mdStyle != "" {
		style = glamour.WithStandardStyle(m.mdStyle)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(max(vpWidth-4, 20)))
	if err != nil {
		m.logger.Debug("markdown renderer unavailable", zap.Error(err))
		r = nil
	}
	m.renderer = r
	m.refresh()
}

// refresh re-renders the history into the viewport and keeps it scrolled to the end.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory(m.session.Snapshot()))
	m.viewport.GotoBottom()
}

func (m Model) renderHistory(snap conversation.State) string {
	msgs := slices.Collect(conversation.Filter(snap.Messages(), snap.Search))
	if len(msgs) == 0 {
		if snap.Search != "" {
			return helpStyle.Render(fmt.Sprintf("No messages match %q.", snap.Search))
		}
		return helpStyle.Render("No messages yet. Say hello!")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		label := userStyle.Render("You")
		if msg.Role == chat.RoleAssistant {
			label = botStyle.Render("Assistant")
		}
		b.WriteString(label)
		if msg.Timestamp != nil {
			b.WriteString(" " + timeStyle.Render(msg.Timestamp.Local().Format("15:04")))
		}
		b.WriteString("\n")
		b.WriteString(m.renderContent(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderContent(msg chat.Message) string {
	if msg.Role == chat.RoleAssistant && m.renderer != nil {
		if out, err := m.renderer.Render(msg.Content); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return msg.Content
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	snap := m.session.Snapshot()

	var b strings.Builder
	b.WriteString(m.renderHeader(snap))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if snap.Typing {
		b.WriteString(m.spinner.View() + typingStyle.Render(" Assistant is typing..."))
	} else if snap.Search != "" {
		b.WriteString(searchStyle.Render(fmt.Sprintf("Filter: %q", snap.Search)))
	}
	b.WriteString("\n")

	b.WriteString(inputBorder.Width(max(m.width-4, 10)).Render(m.input.View()))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
	} else {
		b.WriteString(helpStyle.Render("enter send • tab category • ctrl+p persona • ctrl+f search • ctrl+e export • ctrl+y copy • ctrl+l dictate • esc quit"))
	}
	return b.String()
}

func (m Model) renderHeader(snap conversation.State) string {
	tabs := make([]string, 0, len(chat.Categories()))
	for _, c := range chat.Categories() {
		if c.ID == snap.ActiveCategory {
			tabs = append(tabs, activeTabStyle.Render(c.Label))
		} else {
			tabs = append(tabs, tabStyle.Render(c.Label))
		}
	}

	persona := snap.Personality
	if p, err := m.session.Personalities().Lookup(snap.Personality); err == nil {
		persona = p.Label
	}
	return titleStyle.Render("Banter") + " " + strings.Join(tabs, "") + "  " + personaStyle.Render("as "+persona)
}

// Run starts the full-screen program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	m := New(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
