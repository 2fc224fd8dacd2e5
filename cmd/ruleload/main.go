package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/vanshika/cts-envipath/internal/config"
	"github.com/vanshika/cts-envipath/internal/graph"
	"github.com/vanshika/cts-envipath/internal/logging"
	"github.com/vanshika/cts-envipath/internal/repository"
	"github.com/vanshika/cts-envipath/internal/rules"
)

func main() {
	var (
		rulesPath = pflag.StringP("rules", "r", "", "rule catalogue file to load (defaults to RULES_PATH)")
		batchSize = pflag.IntP("batch-size", "b", 500, "rules per write transaction")
		dryRun    = pflag.Bool("dry-run", false, "parse and report the catalogue without writing it")
	)
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "ruleload")

	path := *rulesPath
	if path == "" {
		path = cfg.Rules.Path
	}
	table, err := rules.LoadFile(path)
	if err != nil {
		logger.Error("failed to load rule catalogue", "error", err, "path", path)
		os.Exit(1)
	}
	if len(table) == 0 {
		logger.Error("rule catalogue empty", "path", path)
		os.Exit(1)
	}
	if *dryRun {
		logger.Info("rule catalogue parsed", "path", path, "rules", len(table))
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Graph.URI == "" {
		logger.Error("GRAPH_URI is required for loading rules")
		os.Exit(1)
	}
	graphClient, err := graph.NewNeo4jClient(ctx, graph.OptionsFromConfig(cfg.Graph))
	if err != nil {
		logger.Error("failed to create graph client", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to graph", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
	defer func() {
		if err := graphClient.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	repo := repository.New(graphClient).WithBatchSize(*batchSize)

	start := time.Now()
	logger.Info("loading rules", "count", len(table), "path", path)
	if err := repo.UpsertRules(ctx, table.Rules()); err != nil {
		logger.Error("rule load failed", "error", err)
		os.Exit(1)
	}

	logger.Info("rule load complete", "duration", time.Since(start), "rules", len(table))
}
