package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chatppc/chatppc/internal/config"
	db "github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/core/ingest"
	"github.com/chatppc/chatppc/internal/core/llm"
)

var rootCmd = &cobra.Command{
	Use:   "ingest <directory>",
	Short: "Ingest markdown documents into the knowledge base",
	Long: `Reads every .md file in the given directory, computes a content
fingerprint per file, and either skips unchanged files or replaces their
chunks and embeddings in the document store.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg := config.LoadConfig()
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, failed, err := readMarkdownDir(args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 && len(failed) == 0 {
		cmd.Println("No markdown files found, nothing to do.")
		return nil
	}

	var summary ingest.Summary
	if len(docs) > 0 {
		dbClient, err := db.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbClient.Close()

		embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return fmt.Errorf("couldn't initialize the embedder: %w", err)
		}

		splitter := ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
		ingestor := ingest.NewIngestor(dbClient, embedder, splitter, logger)

		summary = ingestor.IngestBatch(ctx, docs)
	}
	for _, out := range failed {
		summary.Total++
		summary.Errors++
		summary.Results = append(summary.Results, out)
	}
	for _, res := range summary.Results {
		switch res.Status {
		case ingest.StatusSuccess:
			cmd.Printf("  ok      %s: %s\n", res.Source, res.Message)
		case ingest.StatusSkipped:
			cmd.Printf("  skip    %s: %s\n", res.Source, res.Message)
		default:
			cmd.Printf("  error   %s: %s\n", res.Source, res.Message)
		}
	}
	cmd.Printf("Processed %d files: %d succeeded, %d skipped, %d failed.\n",
		summary.Total, summary.Success, summary.Skipped, summary.Errors)

	if summary.Errors > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Errors, summary.Total)
	}
	return nil
}

// readMarkdownDir collects the .md files directly under dir. The file
// name relative to dir becomes the document source. An unreadable file
// becomes an error outcome so the rest of the batch still runs; only a
// directory read failure aborts.
func readMarkdownDir(dir string) ([]ingest.Document, []ingest.Outcome, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var docs []ingest.Document
	var failed []ingest.Outcome
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := entry.Name()
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			failed = append(failed, ingest.Outcome{
				Source:  name,
				Status:  ingest.StatusError,
				Message: fmt.Sprintf("read file: %v", err),
			})
			continue
		}
		docs = append(docs, ingest.Document{
			Source:  name,
			Title:   strings.TrimSuffix(name, ".md"),
			Content: string(data),
		})
	}
	return docs, failed, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
