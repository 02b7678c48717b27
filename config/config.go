// Package config loads the YAML configuration shared by the server and the
// trainer.
package config

import (
	"fmt"
	"os"
	"time"

	"flightdelay/logging"
	"flightdelay/ml"
	"flightdelay/pipeline"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Data struct {
		Path     string            `yaml:"path"`
		Encoding pipeline.Encoding `yaml:"encoding"`
	} `yaml:"data"`
	ML struct {
		ModelType             ml.ModelType   `yaml:"model_type"`
		ModelPath             string         `yaml:"model_path"`
		WatchModel            bool           `yaml:"watch_model"`
		DelayThresholdMinutes int            `yaml:"delay_threshold_minutes"`
		Params                ml.ModelParams `yaml:"params"`
		Training              struct {
			TestRatio float64 `yaml:"test_ratio"`
			Seed      int64   `yaml:"seed"`
		} `yaml:"training"`
	} `yaml:"ml"`
	Cache struct {
		Enabled bool `yaml:"enabled"`
		Size    int  `yaml:"size"`
	} `yaml:"cache"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Default returns the configuration used for every key missing from the
// file.
func Default() *Config {
	var c Config
	c.Http.Port = 8080
	c.Http.Timeout = 30 * time.Second
	c.Http.MaxBodyBytes = 1 << 20
	c.Http.AllowedOrigins = []string{"*"}
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 28
	c.Database.Path = "data/flightdelay.db"
	c.Data.Path = "data/data.csv"
	c.Data.Encoding = pipeline.EncodingUTF8
	c.ML.ModelType = ml.LogisticRegressionModel
	c.ML.ModelPath = "models/delay_model.json"
	c.ML.DelayThresholdMinutes = 15
	c.ML.Params = ml.ModelParams{
		LearningRate: 0.5,
		Iterations:   1000,
		L2:           1e-4,
		MaxTreeDepth: 6,
		MinLeafSize:  1,
	}
	c.ML.Training.TestRatio = 0.33
	c.ML.Training.Seed = 42
	c.Cache.Enabled = true
	c.Cache.Size = 4096
	c.Metrics.Enabled = true
	return &c
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.ML.DelayThresholdMinutes <= 0 {
		return fmt.Errorf("ml.delay_threshold_minutes must be positive")
	}
	if _, err := ml.NewModel(c.ML.ModelType, c.ML.Params); err != nil {
		return fmt.Errorf("ml.model_type: %w", err)
	}
	if c.ML.Training.TestRatio <= 0 || c.ML.Training.TestRatio >= 1 {
		return fmt.Errorf("ml.training.test_ratio %.2f must be in (0, 1)", c.ML.Training.TestRatio)
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive when the cache is enabled")
	}
	switch c.Data.Encoding {
	case pipeline.EncodingUTF8, pipeline.EncodingLatin1:
	default:
		return fmt.Errorf("data.encoding %q not supported", c.Data.Encoding)
	}
	return nil
}

func (c *Config) DelayThreshold() time.Duration {
	return time.Duration(c.ML.DelayThresholdMinutes) * time.Minute
}

func (c *Config) PredictorOptions() ml.PredictorOptions {
	return ml.PredictorOptions{
		ModelType:      c.ML.ModelType,
		Params:         c.ML.Params,
		DelayThreshold: c.DelayThreshold(),
	}
}

func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

func (c *Config) Ingestion() pipeline.IngestionConfig {
	return pipeline.IngestionConfig{Encoding: c.Data.Encoding}
}
