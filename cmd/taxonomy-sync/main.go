// Command taxonomy-sync mirrors the ontology class hierarchy from the
// triplestore into Neo4j, where the server reads it when a Neo4j URL is set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/ontology"
	"github.com/phisdata/phis-dal/pkg/config"
	"github.com/phisdata/phis-dal/pkg/repo"
	"github.com/phisdata/phis-dal/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	path := flag.String("config", os.Getenv("PHIS_CONFIG"), "path to the YAML configuration file")
	batch := flag.Int("batch", 500, "subclass edges per Neo4j write")
	workers := flag.Int("workers", 4, "concurrent Neo4j writers")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, *batch, *workers, logger); err != nil {
		logger.Error("taxonomy sync failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, batch, workers int, logger *slog.Logger) error {
	if cfg.Neo4j.URL == "" {
		return errors.New("neo4j url is required (PHIS_NEO4J_URL)")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := graph.NewClient(graph.ClientOpts{
		QueryURL: cfg.SPARQL.QueryURL,
		User:     cfg.SPARQL.User,
		Password: cfg.SPARQL.Password,
		Timeout:  cfg.SPARQL.Timeout,
		Limiter:  resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.SPARQL.Rate, Burst: cfg.SPARQL.Burst}),
		Logger:   logger,
	})

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(context.Background())
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j connect: %w", err)
	}

	start := time.Now()
	stats, err := ontology.SyncTaxonomy(ctx, client, repo.DriverOpener(driver, neo4j.AccessModeWrite), ontology.SyncOpts{
		BatchSize: batch,
		Workers:   workers,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	logger.Info("taxonomy synced", "classes", stats.Classes, "edges", stats.Edges, "elapsed", time.Since(start).String())
	return nil
}
