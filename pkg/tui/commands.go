package tui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mikeboe/research-console/pkg/export"
	"github.com/mikeboe/research-console/pkg/research"
	"github.com/mikeboe/research-console/pkg/session"
)

const toastTTL = 3 * time.Second

// Toast texts.
const (
	MsgCopied        = "Report copied to clipboard!"
	MsgCopyFailed    = "Failed to copy report"
	MsgGeneratingPDF = "Generating PDF..."
	MsgPDFDone       = "PDF downloaded successfully!"
	MsgPDFFailed     = "Failed to generate PDF"
)

var clipboardWrite = clipboard.WriteAll

// stateMsg carries a state published by the engine.
type stateMsg struct{ state session.State }

// noteMsg carries an engine notification.
type noteMsg struct{ note session.Notification }

// runDoneMsg is sent when a research run returns.
type runDoneMsg struct {
	state session.State
	err   error
}

type tickMsg time.Time

type toastExpiredMsg struct{ id int }

type exportDoneMsg struct {
	path string
	err  error
}

type copyDoneMsg struct{ err error }

// listenCmd waits for the next engine message.
func listenCmd(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func runCmd(ctx context.Context, e *research.Engine, topic, model string) tea.Cmd {
	return func() tea.Msg {
		st, err := e.Run(ctx, topic, model)
		return runDoneMsg{state: st, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func expireToastCmd(id int) tea.Cmd {
	return tea.Tick(toastTTL, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func copyCmd(report string) tea.Cmd {
	return func() tea.Msg {
		return copyDoneMsg{err: clipboardWrite(report)}
	}
}

func exportCmd(ctx context.Context, ex *export.Exporter, topic, report string) tea.Cmd {
	return func() tea.Msg {
		path, err := ex.Export(ctx, topic, report, export.FormatPDF)
		return exportDoneMsg{path: path, err: err}
	}
}
