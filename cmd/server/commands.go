package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/fieldquote/internal/complexity"
	"github.com/Simplici0/fieldquote/internal/config"
	"github.com/Simplici0/fieldquote/internal/costing"
	"github.com/Simplici0/fieldquote/internal/db"
	"github.com/Simplici0/fieldquote/internal/feedback"
	"github.com/Simplici0/fieldquote/internal/logger"
	"github.com/Simplici0/fieldquote/internal/migrations"
	"github.com/Simplici0/fieldquote/internal/observability"
	"github.com/Simplici0/fieldquote/internal/seed"
	"github.com/Simplici0/fieldquote/internal/store"
	"github.com/Simplici0/fieldquote/internal/workvolume"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "fieldquote",
		Short: "Job costing and pricing for field-service crews",
		Long: `fieldquote prices field-service work from measured work volume, site
complexity and crew cost, locks the price when a customer accepts, and
reconciles recorded crew time against the locked estimate.

Configuration comes from .env, an optional YAML file (--config) and
FIELDQUOTE_* environment variables. FIELDQUOTE_MULTIPLIER_STRATEGY must be
set to "additive" or "compounding".`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	load := func() (*config.Config, error) {
		return config.Load(cfgFile)
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newSeedCmd(load),
		newScoreCmd(),
	)
	return root
}

type loadConfig func() (*config.Config, error)

func newServeCmd(load loadConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newMigrateCmd(load loadConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			if err := migrations.Up(database); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			version, err := migrations.Version(database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
			return nil
		},
	}
}

func newSeedCmd(load loadConfig) *cobra.Command {
	var (
		catalogFile string
		demo        bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the global complexity factors and default service templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			seedCfg := seed.Config{Demo: demo || cfg.SeedDemo}
			if catalogFile != "" {
				if seedCfg.CatalogYAML, err = os.ReadFile(catalogFile); err != nil {
					return fmt.Errorf("read catalog: %w", err)
				}
			}

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			if err := migrations.Up(database); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			stats, err := seed.Run(cmd.Context(), database, seedCfg)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seed complete: %d inserted, %d updated\n", stats.Inserts, stats.Updates)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "catalog YAML replacing the built-in one")
	cmd.Flags().BoolVar(&demo, "demo", false, "also insert the sample crew")
	return cmd
}

func newScoreCmd() *cobra.Command {
	var (
		serviceType string
		inputs      string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Print the base work-volume score for one work item",
		Example: `  fieldquote score --service mulching --inputs '{"acres":3.5,"dbh_package_inches":6}'
  fieldquote score --service stump_grinding --inputs '{"stump_diameter_inches":24,"height_above_grade_inches":6,"grind_depth_inches":8}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := workvolume.ParseServiceType(serviceType)
			if err != nil {
				return err
			}
			var in workvolume.Inputs
			if err := json.Unmarshal([]byte(inputs), &in); err != nil {
				return fmt.Errorf("decode inputs: %w", err)
			}
			score, err := workvolume.Score(st, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s base score: %g\n", st, score)
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceType, "service", "", "service type")
	cmd.Flags().StringVar(&inputs, "inputs", "{}", "measurements as JSON")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Must(logger.New(cfg.IsDev()))
	defer log.Sync()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrations.Up(database); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		stats, err := seed.Run(ctx, database, seed.Config{Demo: cfg.SeedDemo})
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("seed complete", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))
	}

	strategy, err := complexity.StrategyByName(cfg.MultiplierStrategy, cfg.MultiplierFloor)
	if err != nil {
		return err
	}

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("shutdown metrics", zap.Error(err))
		}
	}()
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	st := store.New(database)
	svc := costing.NewService(st, costing.Settings{
		Strategy:            strategy,
		BurdenMultiplier:    cfg.BurdenMultiplier,
		BufferFraction:      cfg.BufferFraction,
		TransportRateFactor: cfg.TransportRateFactor,
		HoursPerDay:         cfg.HoursPerDay,
		SwitchMaxAttempts:   cfg.SwitchMaxAttempts,
	}, costing.WithLogger(logger.Named(log, "costing")), costing.WithMetrics(metrics))

	sink, closeSink, err := newSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	dispatcher := feedback.NewDispatcher(st, sink, cfg.FeedbackBatchSize, logger.Named(log, "feedback"), metrics)
	if err := dispatcher.Start(cfg.FeedbackSchedule); err != nil {
		return err
	}
	defer dispatcher.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newServer(svc, st, logger.Named(log, "http"), metricsHandler).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("multiplier_strategy", svc.StrategyName()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newSink publishes to MongoDB when a URI is configured and to the log otherwise.
func newSink(ctx context.Context, cfg *config.Config, log *zap.Logger) (feedback.Sink, func(), error) {
	if cfg.MongoDBURI == "" {
		return feedback.LogSink{Logger: logger.Named(log, "feedback.sink")}, func() {}, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sink, err := feedback.NewMongoSink(connectCtx, cfg.MongoDBURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, err
	}
	return sink, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sink.Close(closeCtx); err != nil {
			log.Warn("close mongo sink", zap.Error(err))
		}
	}, nil
}
