package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MathieuTuli/transformers-practice/ctg/config"
	"github.com/MathieuTuli/transformers-practice/ctg/tokenizing"
)

var extendVocabArgs struct {
	wordsPath string
}

func newExtendVocabCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extend-vocab",
		Short: "Add tokens from a text file to the tokenizer vocabulary",
		Long: `
Loads the configured tokenizer, registers every line of the given txt
file as a new token and reports how many were actually added. Tokens
already in the vocabulary are skipped.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootArgs.configPath)
			if err != nil {
				return err
			}
			path := extendVocabArgs.wordsPath
			if path == "" {
				path = cfg.Tokenizer.ExtraVocabPath
			}

			tok, err := buildTokenizer(cfg)
			if err != nil {
				return err
			}
			added, err := tokenizing.ExtendVocabulary(tok, path)
			if err != nil {
				return err
			}
			fmt.Printf("added %d tokens, vocabulary now %d\n", added, tok.VocabSize())
			return nil
		},
	}

	cmd.Flags().
		StringVarP(&extendVocabArgs.wordsPath, "words", "w", "", "Text file with one token per line, defaults to tokenizer.extraVocabPath")
	return cmd
}
