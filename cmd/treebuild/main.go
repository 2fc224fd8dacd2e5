package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/vanshika/cts-envipath/internal/config"
	"github.com/vanshika/cts-envipath/internal/domain"
	"github.com/vanshika/cts-envipath/internal/generator"
	"github.com/vanshika/cts-envipath/internal/graph"
	"github.com/vanshika/cts-envipath/internal/logging"
	"github.com/vanshika/cts-envipath/internal/metrics"
	"github.com/vanshika/cts-envipath/internal/repository"
	"github.com/vanshika/cts-envipath/internal/rules"
	"github.com/vanshika/cts-envipath/internal/service"
)

var errNoDocuments = errors.New("no pathway documents found")

func main() {
	var (
		inputDir  = pflag.StringP("input-dir", "i", "", "directory of pathway documents (*.json); positional arguments name files directly")
		outputDir = pflag.StringP("output-dir", "o", "", "directory for <name>.tree.json files; trees go to stdout when empty")
		rulesPath = pflag.StringP("rules", "r", "", "rule catalogue file, overriding RULES_SOURCE")
		workers   = pflag.IntP("workers", "w", 4, "number of concurrent tree builders")
	)
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "treebuild")

	files, err := resolveInputs(*inputDir, pflag.Args())
	if err != nil {
		logger.Error("input resolution failed", "error", err)
		os.Exit(1)
	}

	jobs := make([]service.BatchJob, 0, len(files))
	for _, path := range files {
		var doc domain.PathwayDocument
		if err := loadJSON(path, &doc); err != nil {
			logger.Error("failed to load pathway", "error", err, "path", path)
			os.Exit(1)
		}
		if doc.Completed == "" {
			doc.Completed = domain.CompletedTrue
		}
		jobs = append(jobs, service.BatchJob{Name: documentName(path), Document: doc})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	table, err := loadRuleTable(ctx, logger, cfg, *rulesPath)
	if err != nil {
		logger.Error("failed to load rule table", "error", err)
		os.Exit(1)
	}

	collector := metrics.New("cts_treebuild")
	svc := service.NewPathwayService(nil, table, service.Options{Metrics: collector, Logger: logger})
	builder := service.NewBatchBuilder(svc, *workers)

	start := time.Now()
	logger.Info("building trees", "documents", len(jobs), "workers", *workers, "rules", len(table))
	results, buildErr := builder.BuildAll(ctx, jobs)

	written := 0
	for _, result := range results {
		if result.Root == nil {
			continue
		}
		if err := emit(*outputDir, result); err != nil {
			logger.Error("failed to write tree", "error", err, "document", result.Name)
			os.Exit(1)
		}
		written++
	}

	if buildErr != nil {
		var taskErr *service.TaskError
		if errors.As(buildErr, &taskErr) {
			for _, err := range taskErr.Errors {
				logger.Error("tree build failed", "error", err, "outcome", service.Outcome(err))
			}
		} else {
			logger.Error("tree build aborted", "error", buildErr)
		}
		os.Exit(1)
	}

	logger.Info("tree build complete", "duration", time.Since(start), "trees", written)
}

func resolveInputs(dir string, args []string) ([]string, error) {
	files := append([]string(nil), args...)
	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		if _, err := os.Stat("output.json"); err == nil {
			files = append(files, "output.json")
		}
	}
	if len(files) == 0 {
		return nil, errNoDocuments
	}
	return files, nil
}

func documentName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func emit(outputDir string, result service.BatchResult) error {
	if outputDir == "" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result.Root)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return generator.WriteJSON(filepath.Join(outputDir, result.Name+".tree.json"), result.Root)
}

func loadJSON(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func loadRuleTable(ctx context.Context, logger *slog.Logger, cfg config.Config, override string) (rules.Table, error) {
	if override != "" {
		return rules.LoadFile(override)
	}
	switch cfg.Rules.Source {
	case config.RulesSourceFile:
		table, err := rules.LoadFile(cfg.Rules.Path)
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("rule catalogue not found, links keep codes only", "path", cfg.Rules.Path)
			return rules.Table{}, nil
		}
		return table, err
	case config.RulesSourceGraph:
		client, err := graph.NewNeo4jClient(ctx, graph.OptionsFromConfig(cfg.Graph))
		if err != nil {
			return nil, err
		}
		logger.Info("connected to graph", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
		defer func() {
			if err := client.Close(context.Background()); err != nil {
				logger.Warn("closing graph client failed", "error", err)
			}
		}()
		return repository.New(client).LoadTable(ctx)
	default:
		return rules.Table{}, nil
	}
}
