package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/mikeboe/research-console/pkg/export"
	"github.com/mikeboe/research-console/pkg/research"
	"github.com/mikeboe/research-console/pkg/session"
)

// heartbeat is how often a still-running submission reports progress.
const heartbeat = 10 * time.Second

type plainRun struct {
	engine   *research.Engine
	exporter *export.Exporter
	logger   *slog.Logger

	topic  string
	model  string
	format string

	out    io.Writer // report
	status io.Writer // progress lines
	tick   time.Duration
}

// runPlain researches one topic without the interactive screen: progress
// goes to status, the report to out.
func runPlain(ctx context.Context, p plainRun) error {
	var format export.Format
	if p.format != "" {
		f, err := export.ParseFormat(p.format)
		if err != nil {
			return err
		}
		format = f
	}
	if p.tick <= 0 {
		p.tick = time.Second
	}

	e := p.engine
	e.Logger = p.logger
	printed := 0
	e.OnStateUpdate = func(s session.State) {
		for _, entry := range s.Logs[min(printed, len(s.Logs)):] {
			if entry.Kind == session.EntryError {
				fmt.Fprintf(p.status, "  ! %s\n", entry.Message)
				continue
			}
			fmt.Fprintf(p.status, "  %s\n", entry.Message)
		}
		printed = len(s.Logs)
	}
	e.OnNotify = func(n session.Notification) {
		mark := "*"
		switch n.Level {
		case session.LevelSuccess:
			mark = "✓"
		case session.LevelError:
			mark = "✗"
		}
		fmt.Fprintf(p.status, "%s %s\n", mark, n.Message)
	}

	fmt.Fprintf(p.status, "Researching %q with %s\n", p.topic, p.model)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var final session.State
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		st, err := e.Run(gctx, p.topic, p.model)
		final = st
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(p.tick)
		defer ticker.Stop()
		lastPhase, lastPrint := "", time.Duration(0)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := e.State()
				if !st.InProgress() {
					continue
				}
				elapsed := st.Elapsed(time.Now())
				if st.Phase != lastPhase || elapsed-lastPrint >= heartbeat {
					fmt.Fprintf(p.status, "Working... %s %s\n", session.FormatElapsed(int(elapsed.Seconds())), st.Phase)
					lastPhase, lastPrint = st.Phase, elapsed
				}
			}
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	switch final.Status {
	case session.StatusComplete:
	case session.StatusInterrupted:
		return errors.New("research stream ended before a report was produced")
	default:
		return fmt.Errorf("research ended with status %s", final.Status)
	}

	report := final.ReportText()
	if err := printReport(p.out, report); err != nil {
		return err
	}

	if format != "" {
		path, err := p.exporter.Export(ctx, final.Topic, report, format)
		if err != nil {
			return err
		}
		fmt.Fprintf(p.status, "Saved %s\n", path)
	}
	return nil
}

// printReport renders markdown for terminals and writes it raw otherwise.
func printReport(w io.Writer, report string) error {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		_, err := io.WriteString(w, report)
		return err
	}

	width := 80
	if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
		width = cols
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width-4))
	if err != nil {
		return err
	}
	out, err := r.Render(report)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
