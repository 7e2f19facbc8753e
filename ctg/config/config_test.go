package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/MathieuTuli/transformers-practice/ctg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	// Save original directory
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	// Create temporary directory for testing
	tempDir, err := os.MkdirTemp("", "ctg-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	// Change to temp directory
	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	// Change back to original directory
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}

	// Clean up temporary directory
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	// Load config without config file (should use defaults)
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	// Test default values
	assert.Equal(suite.T(), 512, cfg.Data.MaxSourceLength)
	assert.Equal(suite.T(), 128, cfg.Data.MaxTargetLength)
	assert.True(suite.T(), cfg.Data.PadToMaxLength)
	assert.True(suite.T(), cfg.Data.IgnorePadForLoss)
	assert.Equal(suite.T(), 4, cfg.Data.Workers)
	assert.Equal(suite.T(), internal.DefaultCacheDir, cfg.Data.CacheDir)

	assert.Equal(suite.T(), "wordpiece", cfg.Tokenizer.Kind)

	assert.Equal(suite.T(), "adamw", cfg.Optim.Name)
	assert.InDelta(suite.T(), 3e-4, cfg.Optim.LR, 1e-12)
	assert.Equal(suite.T(), "warmup-cosine", cfg.Optim.Scheduler)
	assert.Equal(suite.T(), 500, cfg.Optim.WarmupSteps)
	assert.InDelta(suite.T(), 1.0, cfg.Optim.ClipGradNorm, 1e-12)

	assert.Equal(suite.T(), 16, cfg.Train.BatchSize)
	assert.Equal(suite.T(), 10, cfg.Train.Epochs)
	assert.Equal(suite.T(), 1, cfg.Train.Trials)
	assert.Equal(suite.T(), 1, cfg.Train.Replicas)
	assert.True(suite.T(), cfg.Train.ShuffleTrain)

	assert.False(suite.T(), cfg.RunLog.Enabled)
	assert.Equal(suite.T(), internal.DefaultDatabaseDSN, cfg.RunLog.DSN)
	assert.Equal(suite.T(), internal.DefaultDatabaseType, cfg.RunLog.Type)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	// Create a test config file
	configContent := `
data:
  trainPath: "./train.json"
  valPath: "./val.json"
  prefix: "translate: "
  maxSourceLength: 64
  maxTargetLength: 32
  padToMaxLength: false
  maxSamples: 100
  workers: 2

tokenizer:
  kind: "whitespace"
  vocabPath: "./vocab.txt"

model:
  dir: "./model"

optim:
  name: "sgd"
  lr: 0.01
  scheduler: "none"
  clipGradNorm: 0.0

train:
  batchSize: 8
  epochs: 3
  trials: 2
  replicas: 2
  shuffleTrain: false

runlog:
  enabled: true
  dsn: "runs.db"
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	// Load config from file
	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	// Test that values were loaded from file
	assert.Equal(suite.T(), "./train.json", cfg.Data.TrainPath)
	assert.Equal(suite.T(), "./val.json", cfg.Data.ValPath)
	assert.Equal(suite.T(), "translate: ", cfg.Data.Prefix)
	assert.Equal(suite.T(), 64, cfg.Data.MaxSourceLength)
	assert.Equal(suite.T(), 32, cfg.Data.MaxTargetLength)
	assert.False(suite.T(), cfg.Data.PadToMaxLength)
	assert.Equal(suite.T(), 100, cfg.Data.MaxSamples)
	assert.Equal(suite.T(), 2, cfg.Data.Workers)

	assert.Equal(suite.T(), "whitespace", cfg.Tokenizer.Kind)
	assert.Equal(suite.T(), "./vocab.txt", cfg.Tokenizer.VocabPath)
	assert.Equal(suite.T(), "./model", cfg.Model.Dir)

	assert.Equal(suite.T(), "sgd", cfg.Optim.Name)
	assert.InDelta(suite.T(), 0.01, cfg.Optim.LR, 1e-12)
	assert.Equal(suite.T(), "none", cfg.Optim.Scheduler)
	assert.InDelta(suite.T(), 0.0, cfg.Optim.ClipGradNorm, 1e-12)

	assert.Equal(suite.T(), 8, cfg.Train.BatchSize)
	assert.Equal(suite.T(), 3, cfg.Train.Epochs)
	assert.Equal(suite.T(), 2, cfg.Train.Trials)
	assert.Equal(suite.T(), 2, cfg.Train.Replicas)
	assert.False(suite.T(), cfg.Train.ShuffleTrain)

	assert.True(suite.T(), cfg.RunLog.Enabled)
	assert.Equal(suite.T(), "runs.db", cfg.RunLog.DSN)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	// Try to load from non-existent file - this should actually error since we specify an explicit path
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	// Should return error for explicit non-existent file
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	// Create a malformed config file
	malformedContent := `
train:
  batchSize: 8
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	// Load config from malformed file
	cfg, err := LoadConfig(configFile)

	// Should return error for malformed YAML
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigIsolatedInstances() {
	// Two loads must not share state through the package
	first, err := LoadConfig("")
	require.NoError(suite.T(), err)

	first.Train.BatchSize = 999

	second, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 16, second.Train.BatchSize)
}

func (suite *ConfigTestSuite) TestValidate() {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults pass", func(c *Config) {}, true},
		{"zero batch size", func(c *Config) { c.Train.BatchSize = 0 }, false},
		{"zero epochs", func(c *Config) { c.Train.Epochs = 0 }, false},
		{"zero trials", func(c *Config) { c.Train.Trials = 0 }, false},
		{"zero replicas", func(c *Config) { c.Train.Replicas = 0 }, false},
		{"zero source length", func(c *Config) { c.Data.MaxSourceLength = 0 }, false},
		{"zero target length", func(c *Config) { c.Data.MaxTargetLength = 0 }, false},
		{"negative workers", func(c *Config) { c.Data.Workers = -1 }, false},
		{"zero lr", func(c *Config) { c.Optim.LR = 0 }, false},
	}

	for _, tc := range cases {
		suite.T().Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			tc.mutate(cfg)
			err = cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// TestConfigTypes tests the configuration type definitions
func TestConfigTypes(t *testing.T) {
	config := Config{}
	assert.IsType(t, DataConfig{}, config.Data)
	assert.IsType(t, TokenizerConfig{}, config.Tokenizer)
	assert.IsType(t, ModelConfig{}, config.Model)
	assert.IsType(t, OptimConfig{}, config.Optim)
	assert.IsType(t, TrainConfig{}, config.Train)
	assert.IsType(t, RunLogConfig{}, config.RunLog)
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		cfg, err := LoadConfig("")
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}
