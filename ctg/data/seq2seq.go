package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/tokenizing"

	"github.com/sourcegraph/conc/pool"
)

// Seq2SeqOptions control preprocessing of a source/target JSON dataset.
// Zero-valued length limits fall back to the usual 512/128 defaults.
type Seq2SeqOptions struct {
	Prefix           string
	MaxSourceLen     int
	MaxTargetLen     int
	PadToMaxLength   bool
	IgnorePadForLoss bool
	MaxSamples       int
	Workers          int
	CacheDir         string
	OverwriteCache   bool
}

func (o Seq2SeqOptions) withDefaults() Seq2SeqOptions {
	if o.MaxSourceLen <= 0 {
		o.MaxSourceLen = 512
	}
	if o.MaxTargetLen <= 0 {
		o.MaxTargetLen = 128
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}

type seq2seqFile struct {
	Data []seq2seqRecord `json:"data"`
}

type seq2seqRecord struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// LoadSeq2Seq reads a JSON dataset whose top-level "data" array holds
// {"source", "target"} records and preprocesses it into model features.
// Sources get the configured prefix before tokenization; both sides truncate
// to their maximum lengths, with losses recorded in the truncation report.
//
// With opts.Workers > 1 records are mapped on a bounded worker pool; the
// output order is identical to the file order for any worker count. A
// populated opts.CacheDir makes repeat loads hit a gob cache keyed by the
// absolute path and a fingerprint of the options and tokenizer.
func LoadSeq2Seq(ctx context.Context, path string, tok tokenizing.Tokenizer, opts Seq2SeqOptions) (*Dataset, error) {
	validator := common.NewValidationUtils()
	if err := validator.ValidateRequiredString(path, "dataset path"); err != nil {
		return nil, err
	}
	if err := validator.ValidateFileSuffix(path, ".json"); err != nil {
		return nil, err
	}
	if err := validator.ValidateFileExists(path); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	if opts.PadToMaxLength && tok.PadID() < 0 {
		return nil, fmt.Errorf("tokenizer %q has no pad id; cannot pad to max length", tok.Name())
	}

	var cache *FeatureCache
	var key string
	if opts.CacheDir != "" {
		var err error
		cache, err = NewFeatureCache(opts.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("open feature cache: %w", err)
		}
		key = CacheKey(path, Fingerprint(tok, opts))
		if opts.OverwriteCache {
			purged := cache.InvalidatePath(path)
			if purged > 0 {
				slog.Debug("Purged cached dataset variants", "path", path, "purged", purged)
			}
		} else if ds, ok, err := cache.Load(key); err != nil {
			slog.Warn("Failed to read dataset cache, recomputing", "key", key, "error", err)
		} else if ok {
			slog.Debug("Dataset cache hit", "path", path, "records", ds.Len())
			return ds, nil
		}
	}

	examples, err := readSeq2SeqFile(path, opts.MaxSamples)
	if err != nil {
		return nil, err
	}

	features, report, err := mapExamples(ctx, examples, tok, opts)
	if err != nil {
		return nil, err
	}

	ds := NewDataset(features, report)
	slog.Info("Loaded seq2seq dataset",
		"path", path,
		"records", ds.Len(),
		"truncated", report.Truncated(),
		"workers", opts.Workers)

	if cache != nil {
		if err := cache.Store(key, ds); err != nil {
			slog.Warn("Failed to write dataset cache", "key", key, "error", err)
		}
	}
	return ds, nil
}

func readSeq2SeqFile(path string, maxSamples int) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}
	defer f.Close()

	var payload seq2seqFile
	if err := json.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed dataset file %s: %v", common.ErrInvalidInput, path, err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: dataset file %s carries no \"data\" field", common.ErrInvalidInput, path)
	}

	examples := make([]Example, len(payload.Data))
	for i, rec := range payload.Data {
		examples[i] = Example{Source: rec.Source, Target: rec.Target}
	}
	if maxSamples > 0 && maxSamples < len(examples) {
		examples = examples[:maxSamples]
	}
	return examples, nil
}

// mapExamples preprocesses records, fanning out across a bounded pool when
// more than one worker is requested. Workers own disjoint contiguous shards
// and write into disjoint slice positions, so results are order-stable.
func mapExamples(ctx context.Context, examples []Example, tok tokenizing.Tokenizer, opts Seq2SeqOptions) ([]Features, *TruncationReport, error) {
	features := make([]Features, len(examples))
	report := NewTruncationReport()
	validator := common.NewValidationUtils()
	errs := common.NewErrorUtils()

	if opts.Workers <= 1 || len(examples) <= 1 {
		for i, ex := range examples {
			if err := validator.ValidateContextCancellation(ctx); err != nil {
				return nil, nil, err
			}
			f, err := buildFeatures(i, ex, tok, opts, report)
			if err != nil {
				return nil, nil, err
			}
			features[i] = f
		}
		return features, report, nil
	}

	p := pool.New().WithMaxGoroutines(opts.Workers).WithContext(ctx)
	chunk := (len(examples) + opts.Workers - 1) / opts.Workers
	for start := 0; start < len(examples); start += chunk {
		end := start + chunk
		if end > len(examples) {
			end = len(examples)
		}
		shard := start / chunk
		p.Go(func(ctx context.Context) error {
			for i := start; i < end; i++ {
				if err := validator.ValidateContextCancellation(ctx); err != nil {
					return err
				}
				f, err := buildFeatures(i, examples[i], tok, opts, report)
				if err != nil {
					return errs.WrapError(err, "preprocessing shard %d", shard)
				}
				features[i] = f
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}
	return features, report, nil
}

// buildFeatures preprocesses one record: prefix, tokenize, truncate, pad,
// mask. The index only feeds the truncation report.
func buildFeatures(idx int, ex Example, tok tokenizing.Tokenizer, opts Seq2SeqOptions, report *TruncationReport) (Features, error) {
	srcIDs, err := tok.Encode(opts.Prefix + ex.Source)
	if err != nil {
		return Features{}, fmt.Errorf("encode source %d: %w", idx, err)
	}
	if len(srcIDs) > opts.MaxSourceLen {
		srcIDs = srcIDs[:opts.MaxSourceLen]
		report.MarkSource(idx)
	}

	tgtIDs, err := tok.Encode(ex.Target)
	if err != nil {
		return Features{}, fmt.Errorf("encode target %d: %w", idx, err)
	}
	if len(tgtIDs) > opts.MaxTargetLen {
		tgtIDs = tgtIDs[:opts.MaxTargetLen]
		report.MarkTarget(idx)
	}

	mask := make([]int, len(srcIDs))
	for i := range mask {
		mask[i] = 1
	}
	labels := append([]int(nil), tgtIDs...)

	if opts.PadToMaxLength {
		pad := tok.PadID()
		srcIDs = padTo(srcIDs, opts.MaxSourceLen, pad)
		mask = padTo(mask, opts.MaxSourceLen, 0)
		labels = padTo(labels, opts.MaxTargetLen, pad)
		if opts.IgnorePadForLoss {
			// every pad position in the labels is masked, including pad
			// tokens the target text itself produced
			for i, l := range labels {
				if l == pad {
					labels[i] = LabelIgnore
				}
			}
		}
	}

	return Features{InputIDs: srcIDs, AttentionMask: mask, Labels: labels}, nil
}

func padTo(row []int, length, pad int) []int {
	if len(row) >= length {
		return row
	}
	out := make([]int, length)
	copy(out, row)
	for i := len(row); i < length; i++ {
		out[i] = pad
	}
	return out
}
