// Package tui implements the interactive research screen using Bubble Tea.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/mikeboe/research-console/pkg/export"
	"github.com/mikeboe/research-console/pkg/models"
	"github.com/mikeboe/research-console/pkg/research"
	"github.com/mikeboe/research-console/pkg/session"
)

// Options configures a Model.
type Options struct {
	Engine   *research.Engine
	Exporter *export.Exporter
	Catalog  models.Catalog
	// Model is the initially selected model id.
	Model  string
	Logger *slog.Logger
}

type toast struct {
	id      int
	level   session.Level
	message string
}

// Model is the Bubble Tea model of the research screen.
type Model struct {
	ctx      context.Context
	engine   *research.Engine
	exporter *export.Exporter
	catalog  models.Catalog
	logger   *slog.Logger
	now      func() time.Time

	keys     KeyMap
	help     help.Model
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	// updates receives engine callbacks in publish order.
	updates chan tea.Msg

	state       session.State
	modelIdx    int
	pending     bool
	elapsed     int
	showSources bool
	exporting   bool
	toast       *toast
	toastSeq    int

	width  int
	height int
}

// New builds the model and hooks it to the engine callbacks.
func New(ctx context.Context, opts Options) Model {
	catalog := opts.Catalog
	if len(catalog) == 0 {
		catalog = models.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ti := textinput.New()
	ti.Placeholder = "Enter a research topic..."
	ti.Prompt = "> "
	ti.CharLimit = 500
	ti.Width = 76
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = phaseStyle

	vp := viewport.New(80, 16)

	updates := make(chan tea.Msg, 256)
	if opts.Engine != nil {
		opts.Engine.OnStateUpdate = func(s session.State) { updates <- stateMsg{state: s} }
		opts.Engine.OnNotify = func(n session.Notification) { updates <- noteMsg{note: n} }
	}

	m := Model{
		ctx:      ctx,
		engine:   opts.Engine,
		exporter: opts.Exporter,
		catalog:  catalog,
		logger:   logger,
		now:      time.Now,
		keys:     DefaultKeyMap,
		help:     help.New(),
		input:    ti,
		spinner:  sp,
		viewport: vp,
		updates:  updates,
		state:    session.New(),
		modelIdx: catalog.Index(opts.Model),
		width:    80,
		height:   24,
	}
	m.renderer = newRenderer(m.width)
	m.refreshContent()
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenCmd(m.updates))
}

// State returns the last state received from the engine.
func (m Model) State() session.State { return m.state }

// SelectedModel returns the id that the next submission will use.
func (m Model) SelectedModel() string { return m.catalog[m.modelIdx].ID }

func (m Model) researching() bool {
	return m.pending || m.state.InProgress()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-6, 10)
		m.help.Width = msg.Width
		m.renderer = newRenderer(msg.Width)
		m.layout()
		m.refreshContent()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		m.state = msg.state
		if m.state.InProgress() {
			m.pending = false
		}
		m.layout()
		m.refreshContent()
		return m, listenCmd(m.updates)

	case noteMsg:
		cmd := m.showToast(msg.note.Level, msg.note.Message)
		return m, tea.Batch(cmd, listenCmd(m.updates))

	case runDoneMsg:
		m.pending = false
		if msg.err != nil && !errors.Is(msg.err, research.ErrEmptyTopic) {
			m.logger.Debug("Research run ended with error", "error", msg.err)
		}
		return m, nil

	case tickMsg:
		if !m.researching() {
			m.elapsed = 0
			return m, nil
		}
		m.elapsed = int(m.state.Elapsed(time.Time(msg)).Seconds())
		return m, tickCmd()

	case spinner.TickMsg:
		if !m.researching() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case toastExpiredMsg:
		if m.toast != nil && m.toast.id == msg.id {
			m.toast = nil
		}
		return m, nil

	case copyDoneMsg:
		if msg.err != nil {
			m.logger.Error("Failed to copy report", "error", msg.err)
			return m, m.showToast(session.LevelError, MsgCopyFailed)
		}
		return m, m.showToast(session.LevelSuccess, MsgCopied)

	case exportDoneMsg:
		m.exporting = false
		if msg.err != nil {
			m.logger.Error("PDF generation failed", "error", msg.err)
			return m, m.showToast(session.LevelError, MsgPDFFailed)
		}
		m.logger.Info("PDF written", "path", msg.path)
		return m, m.showToast(session.LevelSuccess, MsgPDFDone)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.NextModel):
		if !m.researching() {
			m.modelIdx = (m.modelIdx + 1) % len(m.catalog)
		}
		return m, nil

	case key.Matches(msg, m.keys.PrevModel):
		if !m.researching() {
			m.modelIdx = (m.modelIdx - 1 + len(m.catalog)) % len(m.catalog)
		}
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if !m.state.HasReport() {
			return m, nil
		}
		return m, copyCmd(m.state.ReportText())

	case key.Matches(msg, m.keys.Export):
		if !m.state.HasReport() || m.exporting || m.exporter == nil {
			return m, nil
		}
		m.exporting = true
		return m, tea.Batch(
			m.showToast(session.LevelInfo, MsgGeneratingPDF),
			exportCmd(m.ctx, m.exporter, m.state.Topic, m.state.ReportText()),
		)

	case key.Matches(msg, m.keys.Sources):
		m.showSources = !m.showSources
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		if m.researching() || m.engine == nil {
			return m, nil
		}
		if err := m.engine.Reset(); err != nil {
			m.logger.Warn("Failed to reset session", "error", err)
			return m, nil
		}
		m.state = m.engine.State()
		m.input.Reset()
		m.elapsed = 0
		m.layout()
		m.refreshContent()
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.researching() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	topic := strings.TrimSpace(m.input.Value())
	if topic == "" || m.researching() || m.engine == nil {
		return m, nil
	}
	m.pending = true
	m.elapsed = 0
	// Hide the previous submission until the engine publishes the new one.
	m.state = session.Start("", topic, m.SelectedModel(), m.now())
	m.refreshContent()
	m.logger.Info("Submitting research", "topic", topic, "model", m.SelectedModel())
	return m, tea.Batch(
		runCmd(m.ctx, m.engine, topic, m.SelectedModel()),
		tickCmd(),
		m.spinner.Tick,
	)
}

func (m *Model) showToast(level session.Level, message string) tea.Cmd {
	m.toastSeq++
	m.toast = &toast{id: m.toastSeq, level: level, message: message}
	return expireToastCmd(m.toastSeq)
}

// layout sizes the viewport to the space left by the fixed sections.
func (m *Model) layout() {
	m.viewport.Width = m.width
	h := m.height - lipglossHeight(m.header()) - lipglossHeight(m.footer())
	m.viewport.Height = max(h, 3)
}

func (m *Model) refreshContent() {
	m.viewport.SetContent(m.body())
	if m.state.HasReport() {
		m.viewport.GotoTop()
	} else {
		m.viewport.GotoBottom()
	}
}

// renderMarkdown returns the report as terminal markdown, or the raw
// text if rendering fails.
func (m Model) renderMarkdown(report string) string {
	if m.renderer == nil {
		return report
	}
	out, err := m.renderer.Render(report)
	if err != nil {
		m.logger.Warn("Failed to render report", "error", err)
		return report
	}
	return out
}
