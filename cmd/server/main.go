package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vanshika/cts-envipath/internal/config"
	"github.com/vanshika/cts-envipath/internal/envipath"
	"github.com/vanshika/cts-envipath/internal/graph"
	"github.com/vanshika/cts-envipath/internal/logging"
	"github.com/vanshika/cts-envipath/internal/metrics"
	"github.com/vanshika/cts-envipath/internal/repository"
	"github.com/vanshika/cts-envipath/internal/rules"
	"github.com/vanshika/cts-envipath/internal/server"
	"github.com/vanshika/cts-envipath/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var graphClient graph.Client
	if cfg.Graph.URI != "" {
		graphClient, err = graph.NewNeo4jClient(ctx, graph.OptionsFromConfig(cfg.Graph))
		if err != nil {
			logger.Error("failed to create graph client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := graphClient.Close(context.Background()); err != nil {
				logger.Warn("closing graph client failed", "error", err)
			}
		}()
	}

	table, err := loadRuleTable(ctx, cfg, graphClient)
	if err != nil {
		logger.Error("failed to load rule table", "error", err, "source", cfg.Rules.Source)
		os.Exit(1)
	}
	logger.Info("rule table loaded", "source", cfg.Rules.Source, "rules", len(table))

	collector := metrics.New("cts_envipath")

	client, err := envipath.New(envipath.Options{
		BaseURL:        cfg.EnviPath.BaseURL,
		PackageID:      cfg.EnviPath.PackageID,
		Username:       cfg.EnviPath.Username,
		Password:       cfg.EnviPath.Password,
		PollInterval:   cfg.EnviPath.PollInterval,
		PollTimeout:    cfg.EnviPath.PollTimeout,
		RequestTimeout: cfg.EnviPath.RequestTimeout,
		Logger:         logger.With("component", "envipath"),
		OnPoll:         collector.ObservePoll,
	})
	if err != nil {
		logger.Error("failed to create envipath client", "error", err)
		os.Exit(1)
	}
	if err := client.CheckSettings(cfg.EnviPath.NodeLimit, service.MinGenLimit, service.MaxGenLimit); err != nil {
		logger.Error("ENVIPATH_NODE_LIMIT has no prediction settings", "error", err, "node_limit", cfg.EnviPath.NodeLimit)
		os.Exit(1)
	}

	pathwayService := service.NewPathwayService(client, table, service.Options{
		LookupWorkers: cfg.EnviPath.LookupWorkers,
		NodeLimit:     cfg.EnviPath.NodeLimit,
		Metrics:       collector,
		Logger:        logger,
	})

	router := server.NewRouter(logger, server.RouterDependencies{
		Health: server.HealthChecks{
			{Name: "graph", Check: server.GraphHealthService{Client: graphClient}},
			{Name: "rules", Check: server.RuleTableHealth{Table: table, Required: cfg.Rules.Source != config.RulesSourceNone}},
		},
		API:              server.NewAPIHandlers(logger, pathwayService),
		Metrics:          collector,
		MetricsEnabled:   cfg.HTTP.MetricsEnabled,
		AllowedOrigins:   cfg.HTTP.AllowedOrigins(),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped unexpectedly", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func loadRuleTable(ctx context.Context, cfg config.Config, client graph.Client) (rules.Table, error) {
	switch cfg.Rules.Source {
	case config.RulesSourceFile:
		return rules.LoadFile(cfg.Rules.Path)
	case config.RulesSourceGraph:
		if client == nil {
			return nil, graph.ErrMissingURI
		}
		return repository.New(client).LoadTable(ctx)
	default:
		return rules.Table{}, nil
	}
}
