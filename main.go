package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"flightdelay/config"
	"flightdelay/db"
	fhttp "flightdelay/http"
	"flightdelay/logging"
	"flightdelay/ml"
	"flightdelay/monitoring"
	"flightdelay/pipeline"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "flightdelay: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	logger.Info("database ready", zap.String("path", cfg.Database.Path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	predictor := ml.NewDelayPredictor(cfg.PredictorOptions(), logger)
	bootstrapPredictor(ctx, cfg, predictor, store, logger)

	var metrics *monitoring.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewMetrics()
		metrics.SetModelGeneration(predictor.Generation())
	}

	var cache *ml.PredictionCache
	if cfg.Cache.Enabled {
		cache, err = ml.NewPredictionCache(predictor, cfg.Cache.Size)
		if err != nil {
			return fmt.Errorf("init prediction cache: %w", err)
		}
	}

	feed := monitoring.NewFeedHub(logger, metrics)

	var watcher *ml.ArtifactWatcher
	if cfg.ML.WatchModel {
		if err := os.MkdirAll(filepath.Dir(cfg.ML.ModelPath), 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
		watcher, err = ml.NewArtifactWatcher(cfg.ML.ModelPath, predictor, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
		watcher.OnReload(func(err error) {
			if err == nil && metrics != nil {
				metrics.SetModelGeneration(predictor.Generation())
			}
		})
	}

	server, err := fhttp.NewServer(fhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, fhttp.Deps{
		Predictor: predictor,
		Cache:     cache,
		Store:     store,
		Metrics:   metrics,
		Feed:      feed,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		feed.Run(gctx)
		return nil
	})
	if watcher != nil {
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("artifact watcher: %w", err)
			}
			return nil
		})
	}
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("exiting", zap.Error(err))
	return err
}

// loadConfig falls back to the built-in defaults when no config file exists.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// bootstrapPredictor loads the persisted model, or fits one on the training
// CSV when no usable artifact exists. Failing both, the server starts
// untrained and answers on-time for every flight.
func bootstrapPredictor(ctx context.Context, cfg *config.Config, predictor *ml.DelayPredictor, store *db.Store, logger *zap.Logger) {
	if _, err := os.Stat(cfg.ML.ModelPath); err == nil {
		err := predictor.Load(cfg.ML.ModelPath)
		if err == nil {
			return
		}
		logger.Warn("model artifact unusable, refitting", zap.String("path", cfg.ML.ModelPath), zap.Error(err))
	}

	rows, stats, err := pipeline.LoadTrainingFile(cfg.Data.Path, cfg.Ingestion())
	if err != nil {
		logger.Warn("no training data, serving untrained model", zap.String("path", cfg.Data.Path), zap.Error(err))
		return
	}
	logger.Info("training data loaded",
		zap.Int64("rows", stats.LoadedRows),
		zap.Int64("skipped", stats.SkippedRows),
	)
	pipeline.NewDataCleaner(logger).Inspect(rows)

	report, eval, err := predictor.FitHeldOut(rows, cfg.ML.Training.TestRatio, cfg.ML.Training.Seed)
	if err != nil {
		logger.Warn("fit failed, serving untrained model", zap.Error(err))
		return
	}
	logger.Info("model evaluated on held-out rows",
		zap.Int("train_rows", report.Rows),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("recall", eval.Recall),
	)
	if err := predictor.Save(cfg.ML.ModelPath); err != nil {
		logger.Warn("failed to persist model", zap.String("path", cfg.ML.ModelPath), zap.Error(err))
	}
	if err := store.SaveTrainingLog(ctx, db.NewTrainingLog(report, eval)); err != nil {
		logger.Warn("failed to record training run", zap.Error(err))
	}
}
