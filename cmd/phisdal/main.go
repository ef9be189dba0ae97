// Package main implements the phis-dal HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/phisdata/phis-dal/engine/account"
	"github.com/phisdata/phis-dal/engine/annotation"
	"github.com/phisdata/phis-dal/engine/data"
	"github.com/phisdata/phis-dal/engine/docstore"
	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/event"
	"github.com/phisdata/phis-dal/engine/germplasm"
	"github.com/phisdata/phis-dal/engine/graph"
	"github.com/phisdata/phis-dal/engine/notify"
	"github.com/phisdata/phis-dal/engine/ontology"
	"github.com/phisdata/phis-dal/engine/sensor"
	"github.com/phisdata/phis-dal/engine/uri"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/pkg/config"
	"github.com/phisdata/phis-dal/pkg/metrics"
	"github.com/phisdata/phis-dal/pkg/mid"
	"github.com/phisdata/phis-dal/pkg/natsutil"
	"github.com/phisdata/phis-dal/pkg/repo"
	"github.com/phisdata/phis-dal/pkg/resilience"
)

const serviceName = "phisdal"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	path := flag.String("config", os.Getenv("PHIS_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New("phisdal")
	dal := metrics.NewDAL(reg)

	// --- Triplestore ---
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: resilience.DefaultBreakerOpts.FailThreshold,
		Timeout:       resilience.DefaultBreakerOpts.Timeout,
		HalfOpenMax:   resilience.DefaultBreakerOpts.HalfOpenMax,
		Trip:          domain.IsRetryable,
		OnStateChange: func(s resilience.State) {
			logger.Warn("sparql circuit breaker", "state", s.String())
			dal.BreakerOpen("sparql", s == resilience.StateOpen)
		},
	})
	client := graph.NewClient(graph.ClientOpts{
		QueryURL:  cfg.SPARQL.QueryURL,
		UpdateURL: cfg.SPARQL.UpdateURL,
		User:      cfg.SPARQL.User,
		Password:  cfg.SPARQL.Password,
		Timeout:   cfg.SPARQL.Timeout,
		Limiter:   resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.SPARQL.Rate, Burst: cfg.SPARQL.Burst}),
		Breaker:   breaker,
		Logger:    logger,
		Metrics:   dal,
	})
	writer := graph.NewWriter(client, logger, dal)

	// --- Accounts (Postgres) ---
	users, err := account.Open(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer users.Close()

	// --- Taxonomy: Neo4j mirror when configured ---
	var hierarchy ontology.Hierarchy = ontology.NewSPARQLHierarchy(client)
	if cfg.Neo4j.URL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())
		hierarchy = ontology.NewNeo4jHierarchy(repo.DriverOpener(driver, neo4j.AccessModeRead), client)
		logger.Info("using neo4j taxonomy mirror", "url", cfg.Neo4j.URL)
	}

	validator := validate.New(client, validate.Options{
		Hierarchy:   hierarchy,
		Metadata:    ontology.NewSPARQLMetadata(client),
		Users:       users,
		Experiments: users,
		Logger:      logger,
		Metrics:     dal,
	})
	ids := uri.New(uri.Options{
		Namespace:   cfg.Namespace,
		Exists:      graph.Existence(client, ""),
		MaxSuffix:   uri.SPARQLMaxSuffix(client),
		MaxAttempts: cfg.MaxIDAttempts,
		Logger:      logger,
		Metrics:     dal,
	})

	// --- Documents (MongoDB) ---
	mc, err := docstore.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer mc.Disconnect(context.Background())
	docs := docstore.NewStore(mc.Database(cfg.Mongo.Database), docstore.Options{
		Data:         cfg.Mongo.Data,
		Provenance:   cfg.Mongo.Provenance,
		Transactions: cfg.Mongo.Transactions,
		Logger:       logger,
		Metrics:      dal,
	})
	if err := docs.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}

	// --- Change notifications (NATS) ---
	var publisher *notify.Publisher
	if cfg.NATS.URL != "" {
		nc, err := natsutil.Connect(cfg.NATS.URL, serviceName, logger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		publisher = notify.NewPublisher(nc, cfg.NATS.Subject, logger)
	}

	a := &api{
		events: event.New(client, writer, event.Options{
			Graph:            domain.ResourceURI(cfg.Graphs.Events),
			AnnotationsGraph: domain.ResourceURI(cfg.Graphs.Annotations),
			Validator:        validator,
			IDs:              ids,
			Publisher:        publisher,
			Logger:           logger,
		}),
		annotations: annotation.New(client, writer, annotation.Options{
			Graph:     domain.ResourceURI(cfg.Graphs.Annotations),
			Validator: validator,
			IDs:       ids,
			Publisher: publisher,
			Logger:    logger,
		}),
		germplasm: germplasm.New(client, writer, germplasm.Options{
			Graph:     domain.ResourceURI(cfg.Graphs.Germplasm),
			Validator: validator,
			IDs:       ids,
			Publisher: publisher,
			Logger:    logger,
		}),
		sensors: sensor.New(client, writer, sensor.Options{
			Graph:     domain.ResourceURI(cfg.Graphs.Sensors),
			Validator: validator,
			Hierarchy: hierarchy,
			Publisher: publisher,
			Logger:    logger,
		}),
		data: data.New(docs, data.Options{
			Validator: validator,
			IDs:       ids,
			Publisher: publisher,
			Logger:    logger,
		}),
		accounts:  users,
		validator: validator,
		log:       logger,
	}

	// --- HTTP servers ---
	handler := mid.Chain(a.routes(),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Principal(),
		mid.Logger(logger),
		mid.OTel(serviceName),
	)
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.MetricsPort),
		Handler:           reg.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 2)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("metrics server starting", "port", cfg.MetricsPort)
		errCh <- metricsSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	metricsSrv.Shutdown(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}
