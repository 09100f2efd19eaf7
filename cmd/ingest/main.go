// Command ingest runs the transcript pipeline: rebuild or append the
// corpus artifacts and vector collections, or audit the raw corpus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/altmanac/altmanac/config"
	"github.com/altmanac/altmanac/engine/app"
	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/ingest"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config")
		mode       = flag.String("mode", "rebuild", "ingestion mode: rebuild or append")
		force      = flag.Bool("force", false, "regenerate enrichment even when cached")
		audit      = flag.Bool("audit", false, "audit the corpus instead of ingesting")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*configPath, *mode, *force, *audit, logger); err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, modeName string, force, audit bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if audit {
		report, err := a.Auditor().Audit(cfg.Storage.TranscriptsDir, cfg.Storage.MetadataDir)
		if err != nil {
			return err
		}
		if cfg.Logging.AuditPath != "" {
			if err := ingest.WriteReport(report, cfg.Logging.AuditPath); err != nil {
				return err
			}
		}
		logger.Info("audit complete", "documents", report.Documents, "flagged", report.Flagged)
		return nil
	}

	var mode domain.Mode
	switch modeName {
	case "rebuild":
		mode = domain.ModeRebuild
	case "append":
		mode = domain.ModeAppend
	default:
		return fmt.Errorf("unknown mode %q, want rebuild or append", modeName)
	}

	pipeline, err := a.Pipeline()
	if err != nil {
		return err
	}
	summary, err := pipeline.Run(ctx, mode, force)
	if err != nil {
		return err
	}
	logger.Info("done",
		"mode", summary.Mode,
		"skipped", summary.Skipped,
		"docs_processed", summary.DocsProcessed,
		"docs_skipped", summary.DocsSkipped,
		"chunks_written", summary.ChunksWritten)
	return nil
}
