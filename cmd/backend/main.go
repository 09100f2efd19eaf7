// Command backend serves retrieval-augmented answers over the ingested
// corpus: it verifies artifact versions at startup, then reads questions
// from stdin and answers them from the vector collections.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/altmanac/altmanac/config"
	"github.com/altmanac/altmanac/engine/answer"
	"github.com/altmanac/altmanac/engine/app"
	"github.com/altmanac/altmanac/engine/retrieve"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config")
		showHits   = flag.Bool("hits", false, "print retrieved chunks alongside answers")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*configPath, *showHits, logger); err != nil {
		logger.Error("backend failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, showHits bool, logger *slog.Logger) error {
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

	retriever, chunks, err := a.Retriever()
	if err != nil {
		return err
	}
	answers := a.Answer()
	logger.Info("ready", "chunks", chunks.Len(), "collection", cfg.Retrieval.CollectionName)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			fmt.Print("> ")
			continue
		}
		if query == "exit" || query == "quit" {
			return nil
		}
		if err := handle(ctx, retriever, answers, query, showHits); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("query failed", "error", err)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

type answerer interface {
	Classify(ctx context.Context, query string) (answer.Classification, error)
	Synthesize(ctx context.Context, query, questionType string, hits []retrieve.Hit) (answer.Answer, error)
}

func handle(ctx context.Context, retriever *retrieve.Retriever, answers answerer, query string, showHits bool) error {
	cls, err := answers.Classify(ctx, query)
	if err != nil {
		return err
	}

	result, err := retriever.Search(ctx, query, cls.Type, retrieve.Options{})
	if err != nil {
		return err
	}

	if showHits {
		fmt.Printf("[%s profile, %s question, confidence %.2f]\n", result.Profile, cls.Type, cls.Confidence)
		for _, usage := range result.Collections {
			fmt.Printf("  %s: %d/%d\n", usage.Source, usage.Returned, usage.Requested)
		}
		for i, hit := range result.Hits {
			fmt.Printf("  [%d] %.3f %s (%s via %s)\n", i+1, hit.Score, hit.ID, hit.Title, hit.VectorSource)
		}
	}

	ans, err := answers.Synthesize(ctx, query, cls.Type, result.Hits)
	if err != nil {
		return err
	}
	fmt.Println(ans.Answer)
	if showHits {
		for _, line := range ans.Reasoning {
			fmt.Printf("  - %s\n", line)
		}
	}
	return nil
}
