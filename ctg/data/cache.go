package data

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/MathieuTuli/transformers-practice/ctg/tokenizing"

	"github.com/armon/go-radix"
)

const manifestFile = "manifest.gob"

// cachePayload is the on-disk form of a preprocessed dataset.
type cachePayload struct {
	Features    []Features
	SourceTrunc []byte
	TargetTrunc []byte
}

// FeatureCache persists preprocessed datasets as gob blobs. Keys combine the
// absolute source path with a fingerprint of the preprocessing options, and a
// patricia tree manifest indexes them by path prefix so every cached variant
// of one source file can be purged in a single walk.
type FeatureCache struct {
	dir  string
	mu   sync.Mutex
	keys *radix.Tree // cache key -> blob filename
}

// NewFeatureCache opens the cache under dir, creating it if needed and
// loading the manifest of existing entries.
func NewFeatureCache(dir string) (*FeatureCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &FeatureCache{dir: dir, keys: radix.New()}
	if err := c.loadManifest(); err != nil {
		// A broken manifest only costs recomputation
		slog.Warn("Resetting unreadable cache manifest", "dir", dir, "error", err)
		c.keys = radix.New()
	}
	return c, nil
}

// CacheKey joins the absolute dataset path with an options fingerprint.
// The path goes first so prefix walks can find all variants of one file.
func CacheKey(path, fingerprint string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return abs + "|" + fingerprint
}

// Fingerprint condenses the preprocessing options and tokenizer identity
// into a short stable hash. Worker count is deliberately excluded:
// parallelism never changes the produced features.
func Fingerprint(tok tokenizing.Tokenizer, opts Seq2SeqOptions) string {
	opts = opts.withDefaults()
	canonical := fmt.Sprintf("%s|%d|%d|%s|%d|%d|%t|%t|%d",
		tok.Name(), tok.VocabSize(), tok.PadID(),
		opts.Prefix, opts.MaxSourceLen, opts.MaxTargetLen,
		opts.PadToMaxLength, opts.IgnorePadForLoss, opts.MaxSamples)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}

// Load returns the cached dataset for key, if present.
func (c *FeatureCache) Load(key string) (*Dataset, bool, error) {
	c.mu.Lock()
	name, ok := c.keys.Get(key)
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	f, err := os.Open(filepath.Join(c.dir, name.(string)))
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	var payload cachePayload
	if err := gob.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("decode cache blob: %w", err)
	}
	report, err := unmarshalTruncationReport(payload.SourceTrunc, payload.TargetTrunc)
	if err != nil {
		return nil, false, fmt.Errorf("decode truncation report: %w", err)
	}
	return NewDataset(payload.Features, report), true, nil
}

// Store writes the dataset blob for key and records it in the manifest.
func (c *FeatureCache) Store(key string, ds *Dataset) error {
	source, target, err := ds.Report().marshal()
	if err != nil {
		return fmt.Errorf("marshal truncation report: %w", err)
	}
	payload := cachePayload{
		Features:    ds.features,
		SourceTrunc: source,
		TargetTrunc: target,
	}

	name := blobName(key)
	f, err := os.Create(filepath.Join(c.dir, name))
	if err != nil {
		return fmt.Errorf("create cache blob: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		return fmt.Errorf("encode cache blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys.Insert(key, name)
	return c.saveManifestLocked()
}

// InvalidatePath removes every cached variant of the given source file and
// returns how many entries were purged.
func (c *FeatureCache) InvalidatePath(path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	prefix := abs + "|"

	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []string
	c.keys.WalkPrefix(prefix, func(key string, value interface{}) bool {
		stale = append(stale, key)
		if name, ok := value.(string); ok {
			os.Remove(filepath.Join(c.dir, name))
		}
		return false
	})
	for _, key := range stale {
		c.keys.Delete(key)
	}
	if len(stale) > 0 {
		if err := c.saveManifestLocked(); err != nil {
			slog.Warn("Failed to persist cache manifest", "dir", c.dir, "error", err)
		}
	}
	return len(stale)
}

// Len returns the number of cached datasets.
func (c *FeatureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys.Len()
}

func blobName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".gob"
}

func (c *FeatureCache) loadManifest() error {
	f, err := os.Open(filepath.Join(c.dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var entries map[string]string
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return err
	}
	for key, name := range entries {
		c.keys.Insert(key, name)
	}
	return nil
}

// saveManifestLocked must be called with the mutex held.
func (c *FeatureCache) saveManifestLocked() error {
	entries := make(map[string]string, c.keys.Len())
	c.keys.Walk(func(key string, value interface{}) bool {
		if name, ok := value.(string); ok {
			entries[key] = name
		}
		return false
	})

	f, err := os.Create(filepath.Join(c.dir, manifestFile))
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
