package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"flightdelay/config"
	"flightdelay/db"
	"flightdelay/logging"
	"flightdelay/ml"
	"flightdelay/pipeline"

	"go.uber.org/zap"
)

// sampleIssues caps how many flagged rows are echoed at debug level.
const sampleIssues = 20

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	dataPath := flag.String("data", "", "training CSV, overrides data.path")
	modelPath := flag.String("model_path", "", "model output path, overrides ml.model_path")
	modelType := flag.String("model_type", "", "logistic_regression or decision_tree, overrides ml.model_type")
	testRatio := flag.Float64("test_ratio", 0, "held-out share of rows, overrides ml.training.test_ratio")
	seed := flag.Int64("seed", 0, "shuffle seed, overrides ml.training.seed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "train_model: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Path = *dataPath
		case "model_path":
			cfg.ML.ModelPath = *modelPath
		case "model_type":
			cfg.ML.ModelType = ml.ModelType(*modelType)
		case "test_ratio":
			cfg.ML.Training.TestRatio = *testRatio
		case "seed":
			cfg.ML.Training.Seed = *seed
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "train_model: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "train_model: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := train(context.Background(), cfg, logger); err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
}

func train(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rows, stats, err := pipeline.LoadTrainingFile(cfg.Data.Path, cfg.Ingestion())
	if err != nil {
		return fmt.Errorf("load %s: %w", cfg.Data.Path, err)
	}
	logger.Info("training data loaded",
		zap.String("path", cfg.Data.Path),
		zap.Int64("rows", stats.LoadedRows),
		zap.Int64("skipped", stats.SkippedRows),
	)

	cleaner := pipeline.NewDataCleaner(logger)
	quality := cleaner.Inspect(rows)
	logger.Info("training data inspected",
		zap.Int64("clean", quality.Clean),
		zap.Int64("flagged", quality.Flagged),
		zap.Any("issues", quality.Issues),
	)
	for _, issue := range cleaner.GetIssues(sampleIssues) {
		logger.Debug("flagged row", zap.Any("issue", issue))
	}

	predictor := ml.NewDelayPredictor(cfg.PredictorOptions(), logger)

	start := time.Now()
	report, eval, err := predictor.FitHeldOut(rows, cfg.ML.Training.TestRatio, cfg.ML.Training.Seed)
	if err != nil {
		return err
	}
	logger.Info("model evaluated",
		zap.Duration("fit_time", time.Since(start)),
		zap.Int("train_rows", report.Rows),
		zap.Int("test_rows", eval.Support0+eval.Support1),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("precision", eval.Precision),
		zap.Float64("recall", eval.Recall),
		zap.Float64("f1", eval.F1),
	)

	if err := predictor.Save(cfg.ML.ModelPath); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	if err := store.SaveTrainingLog(ctx, db.NewTrainingLog(report, eval)); err != nil {
		return fmt.Errorf("record training run: %w", err)
	}

	fmt.Printf("model saved to %s (accuracy=%.2f precision=%.2f recall=%.2f f1=%.2f)\n",
		cfg.ML.ModelPath, eval.Accuracy, eval.Precision, eval.Recall, eval.F1)
	return nil
}
