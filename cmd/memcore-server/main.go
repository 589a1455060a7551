// Command memcore-server boots the memory and retrieval core: it opens the
// Postgres/pgvector pool, runs schema migrations, wires the semantic,
// episodic, and working-memory stores into a Hierarchy, starts the
// background sweep/consolidation jobs, and blocks until SIGINT/SIGTERM.
//
// Grounded on cmd/superagent/main.go's signal-driven shutdown shape, with
// the HTTP server/router replaced by the background job pool this process
// actually runs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/background"
	"github.com/vasic-digital/memcore/internal/config"
	"github.com/vasic-digital/memcore/internal/consolidate"
	"github.com/vasic-digital/memcore/internal/database"
	"github.com/vasic-digital/memcore/internal/domaintag"
	"github.com/vasic-digital/memcore/internal/embedclient"
	"github.com/vasic-digital/memcore/internal/episodicstore"
	"github.com/vasic-digital/memcore/internal/hierarchy"
	"github.com/vasic-digital/memcore/internal/semanticstore"
	"github.com/vasic-digital/memcore/internal/workingmemory"
)

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func run() error {
	cfg := config.Load()
	log := newLogger(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid configuration")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgresDB(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("connect to database")
		return err
	}
	defer db.Close()

	if err := database.Bootstrap(ctx, db.Pool()); err != nil {
		log.WithError(err).Error("run schema migrations")
		return err
	}
	log.Info("schema migrations applied")

	if cfg.Ingestion.CriteriaFile != "" {
		if err := domaintag.LoadCriteriaOverrides(cfg.Ingestion.CriteriaFile); err != nil {
			log.WithError(err).Error("load domain-tag criteria overrides")
			return err
		}
		log.WithField("path", cfg.Ingestion.CriteriaFile).Info("domain_tag.criteria_overrides_loaded")
	}

	embedder := embedclient.New(embedclient.Config{
		BaseURL:   cfg.Embedding.URL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
		Logger:    log,
	})

	semantic := semanticstore.New(db.Pool(), embedder, cfg.Embedding.Dimension, log)
	episodic := episodicstore.New(db.Pool(), log)
	working := workingmemory.New(log, workingmemory.WithTTL(30*time.Minute))
	working.Start(ctx, cfg.WorkingMemory.TTLSweepInterval)
	defer working.Stop()

	policy := consolidate.NewPolicy(consolidate.DefaultConfig())
	core := hierarchy.New(semantic, episodic, working, policy, log)

	metrics := background.NewMetrics(prometheus.DefaultRegisterer)
	pool := background.NewPool(background.DefaultConfig(), log, metrics)
	pool.Start(ctx)
	defer pool.Stop()

	consolidationTicker := time.NewTicker(cfg.Consolidation.Interval)
	defer consolidationTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-consolidationTicker.C:
				err := pool.Submit(background.Job{
					Type: "consolidate",
					Run: func(jobCtx context.Context) error {
						result, err := core.Consolidate(jobCtx, "")
						if err != nil {
							return err
						}
						log.WithFields(logrus.Fields{
							"deduplicated": result.Deduplicated,
							"decayed":      result.Decayed,
							"merged":       result.Merged,
						}).Info("consolidation.run_complete")
						return nil
					},
				})
				if err != nil {
					log.WithError(err).Warn("consolidation job rejected, queue full")
				}
			}
		}
	}()

	log.WithFields(logrus.Fields{
		"namespace": cfg.Namespace,
	}).Info("memcore-server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	return nil
}

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("memcore-server exited with error")
	}
}
