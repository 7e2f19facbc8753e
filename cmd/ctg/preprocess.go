package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MathieuTuli/transformers-practice/ctg/config"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/tokenizing"
)

var preprocessArgs struct {
	path      string
	overwrite bool
}

func newPreprocessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Tokenize a dataset and warm the feature cache",
		Long: `
Runs the preprocessing pipeline once and reports how many examples were
produced and how many lost tokens to the length limits. With a cache
directory configured, later training runs load the cached features.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootArgs.configPath)
			if err != nil {
				return err
			}
			if preprocessArgs.overwrite {
				cfg.Data.OverwriteCache = true
			}
			path := cfg.Data.TrainPath
			if preprocessArgs.path != "" {
				path = preprocessArgs.path
			}

			tok, err := buildTokenizer(cfg)
			if err != nil {
				return err
			}
			ds, err := loadDataset(cmd.Context(), cfg, tok, path)
			if err != nil {
				return err
			}

			report := ds.Report()
			fmt.Printf("examples: %d\n", ds.Len())
			fmt.Printf("sources truncated: %d\n", report.SourceTruncated())
			fmt.Printf("targets truncated: %d\n", report.TargetTruncated())
			return nil
		},
	}

	cmd.Flags().
		StringVarP(&preprocessArgs.path, "path", "p", "", "Dataset to preprocess, defaults to data.trainPath")
	cmd.Flags().
		BoolVar(&preprocessArgs.overwrite, "overwrite-cache", false, "Recompute features even when a cache entry exists")
	return cmd
}

func buildTokenizer(cfg *config.Config) (tokenizing.Tokenizer, error) {
	maxLen := cfg.Data.MaxSourceLength
	if cfg.Data.MaxTargetLength > maxLen {
		maxLen = cfg.Data.MaxTargetLength
	}
	return tokenizing.FromConfig(cfg.Tokenizer, maxLen)
}

func loadDataset(ctx context.Context, cfg *config.Config, tok tokenizing.Tokenizer, path string) (*data.Dataset, error) {
	if cfg.Data.LineByLine {
		return data.LoadLineByLine(path, tok, cfg.Data.MaxSourceLength)
	}
	return data.LoadSeq2Seq(ctx, path, tok, data.Seq2SeqOptions{
		Prefix:           cfg.Data.Prefix,
		MaxSourceLen:     cfg.Data.MaxSourceLength,
		MaxTargetLen:     cfg.Data.MaxTargetLength,
		PadToMaxLength:   cfg.Data.PadToMaxLength,
		IgnorePadForLoss: cfg.Data.IgnorePadForLoss,
		MaxSamples:       cfg.Data.MaxSamples,
		Workers:          cfg.Data.Workers,
		CacheDir:         cfg.Data.CacheDir,
		OverwriteCache:   cfg.Data.OverwriteCache,
	})
}
