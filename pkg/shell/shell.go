// Package shell is an interactive prompt to probe a live page with the same
// navigator, verifier and evidence collector the runner uses.
package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/integrail/uismoke/pkg/browser"
)

const maxMessages = 50

var headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF88")).Background(lipgloss.Color("#444444"))

type Options struct {
	URL    string
	Page   browser.PageOptions
	OutDir string
}

type (
	openedMsg struct {
		session *Session
		page    browser.Page
		out     string
		err     error
	}
	resultMsg struct {
		out string
		err error
	}
)

type Model struct {
	ctx    context.Context
	driver browser.Driver
	opts   Options
	log    *zap.Logger

	session *Session
	page    browser.Page

	viewport       viewport.Model
	textarea       textarea.Model
	loader         spinner.Model
	senderStyle    lipgloss.Style
	responseStyle  lipgloss.Style
	errorStyle     lipgloss.Style
	messages       []string
	history        []string
	historyPointer int
	inProgress     bool
	quitting       bool
}

func New(ctx context.Context, driver browser.Driver, opts Options, log *zap.Logger) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type a command (help for the list, Ctrl^C to exit, Up and Down for history)"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 1024
	ta.SetWidth(128)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(160, 20)
	vp.SetContent("Opening page...")

	return &Model{
		ctx:           ctx,
		driver:        driver,
		opts:          opts,
		log:           log,
		viewport:      vp,
		textarea:      ta,
		loader:        spinner.New(spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))), spinner.WithSpinner(spinner.Dot)),
		senderStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		responseStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		errorStyle:    lipgloss.NewStyle().Background(lipgloss.Color("#330000")).Foreground(lipgloss.Color("#FF3333")),
		inProgress:    true,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loader.Tick, m.open)
}

func (m *Model) open() tea.Msg {
	page, err := m.driver.Open(m.ctx, m.opts.Page)
	if err != nil {
		return openedMsg{err: errors.Wrapf(err, "failed to open page")}
	}
	session := NewSession(page, m.opts.OutDir, m.log)
	var out string
	if m.opts.URL != "" {
		out, err = session.Exec(m.ctx, "goto "+m.opts.URL)
	}
	return openedMsg{session: session, page: page, out: out, err: err}
}

func (m *Model) exec(line string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		out, err := session.Exec(m.ctx, line)
		return resultMsg{out: out, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var tiCmd, vpCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	if m.ctx.Err() != nil {
		return m, tea.Quit
	}
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.inProgress {
			return m, nil
		}
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd
	case openedMsg:
		m.inProgress = false
		m.session, m.page = msg.session, msg.page
		if msg.session == nil {
			m.addError(msg.err)
			return m, tea.Quit
		}
		m.addResponse("Page ready. Type help to list commands.")
		m.addResult(msg.out, msg.err)
		return m, nil
	case resultMsg:
		m.inProgress = false
		if errors.Is(msg.err, ErrQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		m.addResult(msg.out, msg.err)
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyUp:
			if m.historyPointer < len(m.history) {
				m.historyPointer++
				m.textarea.SetValue(m.history[len(m.history)-m.historyPointer])
			}
		case tea.KeyDown:
			if m.historyPointer > 0 {
				m.historyPointer--
			}
			if m.historyPointer > 0 {
				m.textarea.SetValue(m.history[len(m.history)-m.historyPointer])
			} else {
				m.textarea.SetValue("")
			}
		case tea.KeyEnter:
			line := strings.TrimSpace(m.textarea.Value())
			if line == "" || m.inProgress || m.session == nil {
				return m, nil
			}
			m.history = append(m.history, line)
			m.historyPointer = 0
			m.addMessage(m.senderStyle.Render("You: ") + line)
			m.textarea.Reset()
			m.inProgress = true
			return m, tea.Batch(m.exec(line), m.loader.Tick)
		}
	}
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) addResult(out string, err error) {
	if err != nil {
		m.addError(err)
		return
	}
	if out != "" {
		m.addResponse(out)
	}
}

func (m *Model) addResponse(out string) {
	m.addMessage(m.responseStyle.Render("Browser: ") + out)
}

func (m *Model) addError(err error) {
	m.addMessage(m.errorStyle.Render("ERROR: " + err.Error()))
}

func (m *Model) addMessage(line string) {
	m.messages = append(m.messages, line)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
	m.viewport.SetContent(strings.Join(m.messages, "\n"))
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	dialogView := m.textarea.View()
	if m.inProgress {
		dialogView = m.loader.View()
	}
	header := headerStyle.Render(fmt.Sprintf("uismoke shell; evidence: %s", m.opts.OutDir))
	return header + fmt.Sprintf("\n\n%s\n\n%s", m.viewport.View(), dialogView) + "\n\n"
}

// Close releases the page opened by the shell.
func (m *Model) Close() error {
	if m.page == nil {
		return nil
	}
	return m.page.Close()
}
