package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikeboe/research-console/pkg/clients"
	"github.com/mikeboe/research-console/pkg/config"
	"github.com/mikeboe/research-console/pkg/research/tools"
	"github.com/mikeboe/research-console/pkg/server"
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))
	cfg := config.Load()

	var port, origins string

	rootCmd := &cobra.Command{
		Use:          "research-server",
		Short:        "Development research backend",
		Long:         `research-server plans, searches arXiv, reads sources and writes a report, streaming progress to the console.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			llm, err := clients.New(cmd.Context(), cfg.GoogleApiKey, clients.ModelType(cfg.LLMModel))
			if err != nil {
				return err
			}
			arxiv := tools.NewArxiv(cfg.ArxivURL)
			svc := server.NewService(&server.Pipeline{
				LLM:          llm,
				Search:       arxiv,
				Reader:       tools.NewScraper(),
				MaxQueries:   cfg.MaxQueries,
				ArxivResults: cfg.ArxivResults,
				RetryDelay:   time.Second,
			})

			var allowed []string
			if origins != "" {
				allowed = strings.Split(origins, ",")
			}
			r := server.NewRouter(server.NewHandler(svc), allowed)

			slog.Info("Server starting", "port", port, "model", cfg.LLMModel)
			return r.Run(":" + port)
		},
	}

	rootCmd.Flags().StringVarP(&port, "port", "p", cfg.Port, "Port to listen on")
	rootCmd.Flags().StringVar(&origins, "origins", "", "Comma-separated CORS origins (default: local UI origins)")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
