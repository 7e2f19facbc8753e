package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
)

// Config mirrors the config.json layout found in exported model
// directories. Unknown fields are ignored so configs written by other
// toolchains load cleanly.
type Config struct {
	ModelType           string `json:"model_type"`
	VocabSize           int    `json:"vocab_size"`
	PadTokenID          int    `json:"pad_token_id"`
	DecoderStartTokenID int    `json:"decoder_start_token_id"`
	BosTokenID          int    `json:"bos_token_id"`
	EosTokenID          int    `json:"eos_token_id"`
	DModel              int    `json:"d_model"`
	Seed                int64  `json:"seed"`
}

const (
	configFileName  = "config.json"
	weightsFileName = "weights.gob"

	defaultDModel = 32
)

// LoadConfig reads and parses config.json from a model directory.
func LoadConfig(dir string) (*Config, error) {
	validator := common.NewValidationUtils()
	if err := validator.ValidateRequiredString(dir, "model directory"); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, configFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrSourceNotExist, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", common.ErrInvalidInput, path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills architecture fields the file leaves at zero. The
// decoder start token falls back to the pad token, the usual convention
// for exported translation models.
func (c *Config) applyDefaults() {
	c.DModel = firstNonZero(c.DModel, defaultDModel)
	if c.DecoderStartTokenID == 0 && c.PadTokenID != 0 {
		c.DecoderStartTokenID = c.PadTokenID
	}
}

// Save writes the config back out as config.json in dir.
func (c *Config) Save(dir string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model config: %w", err)
	}
	path := filepath.Join(dir, configFileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
