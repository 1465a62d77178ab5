// Package main provides the HTTP server for ontograph.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkolbe/ontograph-go/internal/auth"
	"github.com/pkolbe/ontograph-go/internal/batch"
	"github.com/pkolbe/ontograph-go/internal/config"
	"github.com/pkolbe/ontograph-go/internal/db"
	"github.com/pkolbe/ontograph-go/internal/extract"
	"github.com/pkolbe/ontograph-go/internal/llm"
	"github.com/pkolbe/ontograph-go/internal/metrics"
	"github.com/pkolbe/ontograph-go/internal/ontology"
	"github.com/pkolbe/ontograph-go/internal/resilience"
	"github.com/pkolbe/ontograph-go/internal/schema"
	"github.com/pkolbe/ontograph-go/internal/server"
)

// ticketSweepInterval is how often consumed-but-never-validated tickets are
// purged from the store.
const ticketSweepInterval = time.Minute

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	port := os.Getenv("ONTOGRAPH_SERVER_PORT")
	if port == "" {
		port = "8484"
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	slog.SetDefault(logger)
	defer func() {
		if err := closeLog(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()

	slog.Info("starting ontograph-server", "port", port)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("ONTOGRAPH_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			slog.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	// Load vocabularies and build the schema pipeline
	registry := ontology.NewRegistry()
	vocabs, err := ontology.LoadDir(cfg.VocabularyDir)
	if err != nil {
		slog.Error("failed to load vocabularies", "dir", cfg.VocabularyDir, "error", err)
		os.Exit(1)
	}
	for _, v := range vocabs {
		if err := registry.Register(v); err != nil {
			slog.Error("failed to register vocabulary", "ontology_id", v.OntologyID, "error", err)
			os.Exit(1)
		}
		slog.Info("vocabulary loaded", "ontology_id", v.OntologyID, "version", v.Version,
			"classes", len(v.Classes), "predicates", len(v.Predicates))
	}
	resolver := schema.NewResolver(registry, schema.NewFactory())

	model, err := llm.NewModel(cfg)
	if err != nil {
		slog.Error("failed to create extraction model", "error", err)
		os.Exit(1)
	}
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	policy := resilience.Policy{Base: cfg.RetryBase, MaxRetries: cfg.RetryBudget}
	workflow := extract.New(resolver, model, embedder, policy, collector)

	engine := batch.NewEngine(dbClient, workflow, registry, batch.NewBroadcaster(), collector, cfg.Concurrency)
	authority := auth.NewAuthority(dbClient, cfg.TicketTTL)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Batches left active by a previous process come back as suspended.
	recoverCtx, recoverCancel := context.WithTimeout(rootCtx, 30*time.Second)
	if err := engine.RecoverInterrupted(recoverCtx); err != nil {
		recoverCancel()
		slog.Error("crash recovery failed", "error", err)
		os.Exit(1)
	}
	recoverCancel()

	go sweepTickets(rootCtx, dbClient)

	srv := server.New(":"+port, authority, engine, registry, collector, logger)
	if err := srv.Run(rootCtx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// sweepTickets periodically removes expired ticket records.
func sweepTickets(ctx context.Context, dbClient *db.Client) {
	ticker := time.NewTicker(ticketSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := dbClient.SweepExpiredTickets(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("ticket sweep failed", "error", err)
			}
		}
	}
}
