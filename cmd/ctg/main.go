// Command ctg trains and evaluates conditional text generation models
// driven by a single yaml config file.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	internal "github.com/MathieuTuli/transformers-practice/ctg"
)

// rootArgs holds the flags shared by every subcommand.
var rootArgs struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   internal.DefaultAppCMDShortCut,
		Short: "Train conditional text generation models",
		Long: `
A training harness for conditional text generation.

Builds a tokenizer, preprocesses seq2seq datasets and runs trials of
alternating training and validation epochs, all from one config file.
	`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if rootArgs.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().
		StringVarP(&rootArgs.configPath, "config", "c", "", "Path to the yaml config file")
	cmd.PersistentFlags().
		BoolVarP(&rootArgs.verbose, "verbose", "v", false, "Verbose output")

	cmd.AddCommand(newTrainCommand())
	cmd.AddCommand(newPreprocessCommand())
	cmd.AddCommand(newExtendVocabCommand())
	return cmd
}

func main() {
	logger := internal.GetLogger()
	if err := newRootCommand().Execute(); err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}
