package tokenizing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

// WordPiece wraps sugarme/tokenizer WordPiece (BERT-style)
type WordPiece struct {
	mu        sync.Mutex
	t         *tk.Tokenizer
	padID     int
	clsID     int
	sepID     int
	baseSize  int
	added     int
	maxSeqLen int
}

var _ Tokenizer = (*WordPiece)(nil)

// NewWordPiece loads vocab.txt and builds a BERT WordPiece tokenizer.
// vocabPath may be the vocab file itself or a model directory containing one.
// When cfg.MaxSeqLen > 0 encodings are truncated to that length.
func NewWordPiece(vocabPath string, cfg Config) (*WordPiece, error) {
	vocabFile := vocabPath
	if fi, err := os.Stat(vocabPath); err == nil && fi.IsDir() {
		vocabFile = filepath.Join(vocabPath, "vocab.txt")
	}
	if fi, err := os.Stat(vocabFile); err != nil || fi.IsDir() {
		return nil, fmt.Errorf("%w: no vocab file at %s", ErrUnsupported, vocabFile)
	}

	// Prefer initializing WordPiece from a vocab file to avoid nil-map panics
	var wp wordpiece.WordPiece
	if nw, err := wordpiece.NewWordPieceFromFile(vocabFile, "[UNK]"); err == nil {
		wp = nw
	} else {
		builder := wordpiece.NewWordPieceBuilder().Files(vocabFile)
		wp = builder.Build()
	}

	t := tk.NewTokenizer(wp)

	// Basic normalizer and pre-tokenizer similar to BERT
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	// Discover special token ids from the vocab file line order
	padID, clsID, sepID := 0, 101, 102
	baseSize := 0
	if content, err := os.ReadFile(vocabFile); err == nil {
		lines := splitLines(string(content))
		baseSize = len(lines)
		for idx, token := range lines {
			switch token {
			case "[PAD]":
				padID = idx
			case "[CLS]":
				clsID = idx
			case "[SEP]":
				sepID = idx
			}
		}
	}

	// Post-processor to add special tokens with discovered ids
	template := processor.NewBertProcessing(processor.PostToken{Value: "[SEP]", Id: sepID}, processor.PostToken{Value: "[CLS]", Id: clsID})
	t.WithPostProcessor(template)

	if cfg.MaxSeqLen > 0 {
		t.WithTruncation(&tk.TruncationParams{MaxLength: cfg.MaxSeqLen})
	}

	return &WordPiece{
		t:         t,
		padID:     padID,
		clsID:     clsID,
		sepID:     sepID,
		baseSize:  baseSize,
		maxSeqLen: cfg.MaxSeqLen,
	}, nil
}

// Encode maps text to token ids. Output length is whatever the encoder
// produced; padding to a fixed length is left to the caller.
func (w *WordPiece) Encode(text string) ([]int, error) {
	enc, err := w.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), true)
	if err != nil {
		return nil, err
	}
	ids := enc.GetIds()
	out := make([]int, len(ids))
	copy(out, ids)
	return out, nil
}

// Decode maps token ids back to text, skipping special tokens.
func (w *WordPiece) Decode(ids []int) string {
	return w.t.Decode(ids, true)
}

// PadID returns the id of the [PAD] token.
func (w *WordPiece) PadID() int { return w.padID }

// VocabSize returns the base vocabulary size plus any added tokens.
func (w *WordPiece) VocabSize() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.baseSize + w.added
}

// AddTokens registers new tokens with the underlying tokenizer and returns
// how many were actually added. Existing tokens are skipped.
func (w *WordPiece) AddTokens(tokens []string) int {
	if len(tokens) == 0 {
		return 0
	}
	add := make([]tk.AddedToken, 0, len(tokens))
	for _, tok := range tokens {
		add = append(add, tk.NewAddedToken(tok, false))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.t.AddTokens(add)
	w.added += n
	return n
}

// Name identifies this tokenizer in cache fingerprints.
func (w *WordPiece) Name() string { return "wordpiece" }

// EncodeFixed produces fixed-length id and attention-mask rows, padded with
// the pad id up to maxSeqLen. Native runtime sessions consume this shape.
func (w *WordPiece) EncodeFixed(texts []string, maxSeqLen int) ([][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	masks := make([][]int64, len(texts))
	for i, txt := range texts {
		enc, err := w.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(txt)), true)
		if err != nil {
			return nil, nil, err
		}
		uids := enc.GetIds()
		umask := enc.GetAttentionMask()

		// enforce fixed-length output (pad/truncate to maxSeqLen)
		rowIDs := make([]int64, maxSeqLen)
		for j := range rowIDs {
			rowIDs[j] = int64(w.padID)
		}
		rowMask := make([]int64, maxSeqLen)
		n := len(uids)
		if n > maxSeqLen {
			n = maxSeqLen
		}
		for j := 0; j < n; j++ {
			rowIDs[j] = int64(uids[j])
			if j < len(umask) {
				rowMask[j] = int64(umask[j])
			} else {
				rowMask[j] = 1
			}
		}
		ids[i] = rowIDs
		masks[i] = rowMask
	}
	return ids, masks, nil
}

func splitLines(s string) []string {
	parts := strings.Split(s, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
