package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/MathieuTuli/transformers-practice/ctg"

	"github.com/spf13/viper"
)

// Config stores all configuration of the training harness.
// The values are read by viper from a config file or environment variables.
// Each LoadConfig call returns a fresh instance; nothing is kept in package
// state so concurrent trials can carry independent configs.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Model     ModelConfig     `mapstructure:"model"`
	Optim     OptimConfig     `mapstructure:"optim"`
	Train     TrainConfig     `mapstructure:"train"`
	RunLog    RunLogConfig    `mapstructure:"runlog"`
}

// DataConfig stores dataset location and preprocessing settings.
type DataConfig struct {
	TrainPath        string `mapstructure:"trainPath"`
	ValPath          string `mapstructure:"valPath"`
	Prefix           string `mapstructure:"prefix"`
	MaxSourceLength  int    `mapstructure:"maxSourceLength"`
	MaxTargetLength  int    `mapstructure:"maxTargetLength"`
	PadToMaxLength   bool   `mapstructure:"padToMaxLength"`
	IgnorePadForLoss bool   `mapstructure:"ignorePadForLoss"`
	MaxSamples       int    `mapstructure:"maxSamples"`
	Workers          int    `mapstructure:"workers"`
	LineByLine       bool   `mapstructure:"lineByLine"`
	CacheDir         string `mapstructure:"cacheDir"`
	OverwriteCache   bool   `mapstructure:"overwriteCache"`
}

// TokenizerConfig stores tokenizer selection and vocabulary settings.
type TokenizerConfig struct {
	Kind           string `mapstructure:"kind"`
	VocabPath      string `mapstructure:"vocabPath"`
	ExtraVocabPath string `mapstructure:"extraVocabPath"`
}

// ModelConfig points at the pretrained model directory.
type ModelConfig struct {
	Dir string `mapstructure:"dir"`
}

// OptimConfig stores optimizer and scheduler hyperparameters.
type OptimConfig struct {
	Name         string  `mapstructure:"name"`
	LR           float64 `mapstructure:"lr"`
	MinLR        float64 `mapstructure:"minLR"`
	WeightDecay  float64 `mapstructure:"weightDecay"`
	Momentum     float64 `mapstructure:"momentum"`
	Beta1        float64 `mapstructure:"beta1"`
	Beta2        float64 `mapstructure:"beta2"`
	Eps          float64 `mapstructure:"eps"`
	Scheduler    string  `mapstructure:"scheduler"`
	WarmupSteps  int     `mapstructure:"warmupSteps"`
	ClipGradNorm float64 `mapstructure:"clipGradNorm"`
}

// TrainConfig stores the epoch loop settings.
type TrainConfig struct {
	BatchSize     int    `mapstructure:"batchSize"`
	Epochs        int    `mapstructure:"epochs"`
	Trials        int    `mapstructure:"trials"`
	Replicas      int    `mapstructure:"replicas"`
	ShuffleTrain  bool   `mapstructure:"shuffleTrain"`
	Seed          int64  `mapstructure:"seed"`
	OutputDir     string `mapstructure:"outputDir"`
	CheckpointDir string `mapstructure:"checkpointDir"`
}

// RunLogConfig stores run-history database connection details.
type RunLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	Type    string `mapstructure:"type"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Set default values
	v.SetDefault("data.maxSourceLength", 512)
	v.SetDefault("data.maxTargetLength", 128)
	v.SetDefault("data.padToMaxLength", true)
	v.SetDefault("data.ignorePadForLoss", true)
	v.SetDefault("data.workers", 4)
	v.SetDefault("data.cacheDir", internal.DefaultCacheDir)

	v.SetDefault("tokenizer.kind", "wordpiece")

	v.SetDefault("optim.name", "adamw")
	v.SetDefault("optim.lr", 3e-4)
	v.SetDefault("optim.weightDecay", 0.01)
	v.SetDefault("optim.momentum", 0.9)
	v.SetDefault("optim.beta1", 0.9)
	v.SetDefault("optim.beta2", 0.999)
	v.SetDefault("optim.eps", 1e-8)
	v.SetDefault("optim.scheduler", "warmup-cosine")
	v.SetDefault("optim.warmupSteps", 500)
	v.SetDefault("optim.clipGradNorm", 1.0)

	v.SetDefault("train.batchSize", 16)
	v.SetDefault("train.epochs", 10)
	v.SetDefault("train.trials", 1)
	v.SetDefault("train.replicas", 1)
	v.SetDefault("train.shuffleTrain", true)
	v.SetDefault("train.seed", 42)
	v.SetDefault("train.outputDir", internal.DefaultOutputDir)
	v.SetDefault("train.checkpointDir", internal.DefaultCheckpointDir)

	v.SetDefault("runlog.enabled", false)
	v.SetDefault("runlog.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("runlog.type", internal.DefaultDatabaseType)

	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env var names e.g. train.batchSize becomes TRAIN_BATCHSIZE

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used. This is not an error for the application to halt on.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the epoch loop cannot run with. It is called
// once at agent reset so misconfiguration fails before any data is touched.
func (c *Config) Validate() error {
	if c.Train.BatchSize < 1 {
		return fmt.Errorf("train.batchSize must be >= 1, got %d", c.Train.BatchSize)
	}
	if c.Train.Epochs < 1 {
		return fmt.Errorf("train.epochs must be >= 1, got %d", c.Train.Epochs)
	}
	if c.Train.Trials < 1 {
		return fmt.Errorf("train.trials must be >= 1, got %d", c.Train.Trials)
	}
	if c.Train.Replicas < 1 {
		return fmt.Errorf("train.replicas must be >= 1, got %d", c.Train.Replicas)
	}
	if c.Data.MaxSourceLength < 1 {
		return fmt.Errorf("data.maxSourceLength must be >= 1, got %d", c.Data.MaxSourceLength)
	}
	if c.Data.MaxTargetLength < 1 {
		return fmt.Errorf("data.maxTargetLength must be >= 1, got %d", c.Data.MaxTargetLength)
	}
	if c.Data.Workers < 0 {
		return fmt.Errorf("data.workers must be >= 0, got %d", c.Data.Workers)
	}
	if c.Optim.LR <= 0 {
		return fmt.Errorf("optim.lr must be > 0, got %g", c.Optim.LR)
	}
	return nil
}
