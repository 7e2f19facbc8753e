package tokenizing

import (
	"bufio"
	"os"
	"sort"
	"strings"
	"sync"
)

const (
	padToken = "[PAD]"
	unkToken = "[UNK]"
	bosToken = "[BOS]"
	eosToken = "[EOS]"
)

// Whitespace is a minimal word-level tokenizer. It backs tests and acts as a
// fallback when no trained vocabulary file is available; real runs use the
// WordPiece adapter.
type Whitespace struct {
	mu    sync.RWMutex
	vocab map[string]int
	words []string
}

var _ Tokenizer = (*Whitespace)(nil)

// NewWhitespace builds a tokenizer over the given words. The special tokens
// occupy the first ids; duplicates are skipped.
func NewWhitespace(words []string) *Whitespace {
	w := &Whitespace{vocab: make(map[string]int, len(words)+4)}
	for _, tok := range []string{padToken, unkToken, bosToken, eosToken} {
		w.register(tok)
	}
	for _, word := range words {
		w.register(word)
	}
	return w
}

// NewWhitespaceFromCorpus builds a deterministic vocabulary from raw lines:
// the unique whitespace-separated words in sorted order.
func NewWhitespaceFromCorpus(lines []string) *Whitespace {
	seen := make(map[string]struct{})
	for _, line := range lines {
		for _, word := range strings.Fields(line) {
			seen[word] = struct{}{}
		}
	}
	words := make([]string, 0, len(seen))
	for word := range seen {
		words = append(words, word)
	}
	sort.Strings(words)
	return NewWhitespace(words)
}

// LoadWhitespaceFromVocab reads one token per line from path.
func LoadWhitespaceFromVocab(path string) (*Whitespace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		words = append(words, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewWhitespace(words), nil
}

// register must be called with the write lock held (or during construction).
func (w *Whitespace) register(tok string) bool {
	if _, ok := w.vocab[tok]; ok {
		return false
	}
	w.vocab[tok] = len(w.words)
	w.words = append(w.words, tok)
	return true
}

// Encode maps text to ids word by word; unknown words become [UNK].
func (w *Whitespace) Encode(text string) ([]int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fields := strings.Fields(text)
	ids := make([]int, 0, len(fields))
	for _, word := range fields {
		id, ok := w.vocab[word]
		if !ok {
			id = w.vocab[unkToken]
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode joins the words behind ids, dropping pad and sequence markers.
func (w *Whitespace) Decode(ids []int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(w.words) {
			continue
		}
		switch w.words[id] {
		case padToken, bosToken, eosToken:
			continue
		}
		out = append(out, w.words[id])
	}
	return strings.Join(out, " ")
}

// PadID returns the [PAD] id, always the first entry.
func (w *Whitespace) PadID() int { return 0 }

// BosID returns the [BOS] id.
func (w *Whitespace) BosID() int { return 2 }

// EosID returns the [EOS] id.
func (w *Whitespace) EosID() int { return 3 }

// VocabSize returns the current vocabulary size.
func (w *Whitespace) VocabSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.words)
}

// AddTokens registers new tokens, skipping those already present.
func (w *Whitespace) AddTokens(tokens []string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	added := 0
	for _, tok := range tokens {
		if w.register(tok) {
			added++
		}
	}
	return added
}

// Name identifies this tokenizer in cache fingerprints.
func (w *Whitespace) Name() string { return "whitespace" }
