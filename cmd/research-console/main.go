package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mikeboe/research-console/pkg/client"
	"github.com/mikeboe/research-console/pkg/config"
	"github.com/mikeboe/research-console/pkg/export"
	"github.com/mikeboe/research-console/pkg/models"
	"github.com/mikeboe/research-console/pkg/research"
	"github.com/mikeboe/research-console/pkg/tui"
)

type options struct {
	topic   string
	model   string
	apiURL  string
	export  string
	outDir  string
	verbose bool
}

func main() {
	cfg := config.Load()
	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "research-console",
		Short: "A terminal client for the deep research backend",
		Long: `research-console submits a research topic to the backend, follows its progress
stream and shows the final markdown report. Without --topic on a terminal it
opens the interactive screen.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			catalog, err := models.Load(cfg.ModelsFile)
			if err != nil {
				return err
			}
			model, err := resolveModel(catalog, opts.model, cmd.Flags().Changed("model"))
			if err != nil {
				return err
			}
			opts.model = model

			exporter := export.NewExporter(export.NewRodRenderer(cfg.ChromeBin), opts.outDir)
			api := client.New(opts.apiURL, time.Duration(cfg.ConnectTimeout)*time.Second)

			interactive := opts.topic == "" && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
			if !interactive {
				if strings.TrimSpace(opts.topic) == "" {
					return fmt.Errorf("--topic is required when not running on a terminal")
				}
				logger := newLogger(os.Stderr, opts.verbose)
				api.Logger = logger
				exporter.Logger = logger
				return runPlain(ctx, plainRun{
					engine:   research.NewEngine(api),
					exporter: exporter,
					logger:   logger,
					topic:    opts.topic,
					model:    opts.model,
					format:   opts.export,
					out:      os.Stdout,
					status:   os.Stderr,
				})
			}

			logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer logFile.Close()

			logger := newLogger(logFile, opts.verbose)
			slog.SetDefault(logger)
			api.Logger = logger
			exporter.Logger = logger

			engine := research.NewEngine(api)
			engine.Logger = logger

			m := tui.New(ctx, tui.Options{
				Engine:   engine,
				Exporter: exporter,
				Catalog:  catalog,
				Model:    opts.model,
				Logger:   logger,
			})
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("run interactive screen: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", cfg.APIURL, "Base URL of the research backend")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output")
	rootCmd.PersistentFlags().StringVarP(&opts.outDir, "out", "o", cfg.ExportDir, "Directory for exported reports")
	rootCmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "Research topic (non-interactive)")
	rootCmd.Flags().StringVarP(&opts.model, "model", "m", cfg.Model, "Model id to research with")
	rootCmd.Flags().StringVar(&opts.export, "export", "", "Export the report after completion (pdf|html|md)")

	rootCmd.AddCommand(newModelsCmd(cfg, opts), newHealthCmd(cfg, opts), newExportCmd(cfg, opts))
	return rootCmd
}

// resolveModel checks the requested model against the catalog. A model
// that only came from configuration falls back to the first catalog entry.
func resolveModel(catalog models.Catalog, model string, explicit bool) (string, error) {
	if _, ok := catalog.Lookup(model); ok {
		return model, nil
	}
	if !explicit && len(catalog) > 0 {
		return catalog[0].ID, nil
	}
	return "", fmt.Errorf("unknown model %q (see research-console models)", model)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newModelsCmd(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the selectable models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := models.Load(cfg.ModelsFile)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
			for _, m := range catalog {
				id := m.ID
				if id == cfg.Model {
					id += " *"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", id, m.Name, m.Description)
			}
			return w.Flush()
		},
	}
}

func newHealthCmd(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the research backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := client.New(opts.apiURL, time.Duration(cfg.ConnectTimeout)*time.Second)
			api.Logger = newLogger(cmd.ErrOrStderr(), opts.verbose)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.ConnectTimeout)*time.Second)
			defer cancel()

			status, err := api.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (%s)\n", status.Service, status.Version, status.Status, opts.apiURL)
			return nil
		},
	}
}

func newExportCmd(cfg *config.Config, opts *options) *cobra.Command {
	var format, topic string

	cmd := &cobra.Command{
		Use:   "export <report.md>",
		Short: "Export a markdown report to PDF, HTML or markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if topic == "" {
				topic = reportTitle(string(data), args[0])
			}

			exporter := export.NewExporter(export.NewRodRenderer(cfg.ChromeBin), opts.outDir)
			exporter.Logger = newLogger(cmd.ErrOrStderr(), opts.verbose)

			path, err := exporter.Export(cmd.Context(), topic, string(data), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatPDF), "Output format (pdf|html|md)")
	cmd.Flags().StringVar(&topic, "topic", "", "Topic used for the file name and title (default: first heading)")
	return cmd
}

// reportTitle returns the first level-one heading, or the file name.
func reportTitle(report, path string) string {
	for _, line := range strings.Split(report, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
