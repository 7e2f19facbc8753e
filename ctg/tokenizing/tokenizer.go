package tokenizing

import (
	"fmt"
	"strings"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/config"
)

// Tokenizer converts raw text to model-ready token IDs and back.
// Implementations must be safe for concurrent Encode/Decode calls; the
// preprocessing pipeline fans records out across workers.
type Tokenizer interface {
	// Encode maps text to token IDs without padding or truncation.
	Encode(text string) ([]int, error)
	// Decode maps token IDs back to text, dropping special tokens.
	Decode(ids []int) string
	// PadID returns the ID reserved for padding. Negative means the
	// tokenizer carries no pad token.
	PadID() int
	// VocabSize returns the vocabulary size including added tokens.
	VocabSize() int
	// AddTokens registers new tokens and returns how many were actually
	// added. Tokens already present are skipped.
	AddTokens(tokens []string) int
	// Name identifies the tokenizer for cache fingerprinting.
	Name() string
}

// Config holds basic tokenizer settings
type Config struct {
	MaxSeqLen int
}

// ErrUnsupported indicates the tokenizer could not be initialized
var ErrUnsupported = fmt.Errorf("unsupported tokenizer configuration")

// FromConfig builds the tokenizer named by cfg.Kind. An empty kind
// selects wordpiece.
func FromConfig(cfg config.TokenizerConfig, maxSeqLen int) (Tokenizer, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "wordpiece":
		return NewWordPiece(cfg.VocabPath, Config{MaxSeqLen: maxSeqLen})
	case "whitespace":
		return LoadWhitespaceFromVocab(cfg.VocabPath)
	default:
		return nil, fmt.Errorf("%w: tokenizer %q", common.ErrUnknownOption, cfg.Kind)
	}
}
