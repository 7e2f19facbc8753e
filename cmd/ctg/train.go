package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	internal "github.com/MathieuTuli/transformers-practice/ctg"
	"github.com/MathieuTuli/transformers-practice/ctg/config"
	"github.com/MathieuTuli/transformers-practice/ctg/training"
)

// trainArgs mirrors the config keys most often swept from the command
// line. A flag that was explicitly set wins over the config file.
var trainArgs struct {
	trainPath string
	valPath   string
	modelDir  string
	epochs    int
	batchSize int
	trials    int
	replicas  int
	lr        float64
	seed      int64
	runlog    bool
}

func newTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the full training loop",
		Long: `
Builds the tokenizer, datasets, model and optimizer from the config
file, then runs the configured trials of alternating training and
validation epochs. Interrupts finish the current step and exit.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootArgs.configPath)
			if err != nil {
				return err
			}
			applyTrainOverrides(cmd, cfg)

			agent, err := training.NewAgent(cfg)
			if err != nil {
				return err
			}
			defer agent.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return agent.Train(ctx)
		},
	}

	cmd.Flags().
		StringVar(&trainArgs.trainPath, "train-path", "", "Path to the training json file")
	cmd.Flags().
		StringVar(&trainArgs.valPath, "val-path", "", "Path to the validation json file")
	cmd.Flags().
		StringVarP(&trainArgs.modelDir, "model-dir", "m", "", "Directory holding the model config and weights")
	cmd.Flags().
		IntVarP(&trainArgs.epochs, "epochs", "e", 0, "Epochs per trial")
	cmd.Flags().
		IntVarP(&trainArgs.batchSize, "batch-size", "b", 0, "Batch size")
	cmd.Flags().
		IntVar(&trainArgs.trials, "trials", 0, "Trials to run, each from fresh weights")
	cmd.Flags().
		IntVar(&trainArgs.replicas, "replicas", 0, "Model replicas per training step")
	cmd.Flags().
		Float64VarP(&trainArgs.lr, "learning-rate", "r", 0, "Base learning rate")
	cmd.Flags().
		Int64VarP(&trainArgs.seed, "seed", "s", 0, "Seed for shuffling")
	cmd.Flags().
		BoolVar(&trainArgs.runlog, "runlog", false, "Record per-epoch history to the run log database")
	return cmd
}

func applyTrainOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("train-path") {
		cfg.Data.TrainPath = trainArgs.trainPath
	}
	if flags.Changed("val-path") {
		cfg.Data.ValPath = trainArgs.valPath
	}
	if flags.Changed("model-dir") {
		cfg.Model.Dir = trainArgs.modelDir
	}
	if flags.Changed("epochs") {
		cfg.Train.Epochs = trainArgs.epochs
	}
	if flags.Changed("batch-size") {
		cfg.Train.BatchSize = trainArgs.batchSize
	}
	if flags.Changed("trials") {
		cfg.Train.Trials = trainArgs.trials
	}
	if flags.Changed("replicas") {
		cfg.Train.Replicas = trainArgs.replicas
	}
	if flags.Changed("learning-rate") {
		cfg.Optim.LR = trainArgs.lr
	}
	if flags.Changed("seed") {
		cfg.Train.Seed = trainArgs.seed
	}
	if flags.Changed("runlog") {
		cfg.RunLog.Enabled = trainArgs.runlog
		// The in-memory default cannot outlive the process.
		if trainArgs.runlog && cfg.RunLog.DSN == internal.DefaultDatabaseDSN {
			cfg.RunLog.DSN = internal.DefaultRunLogPath
		}
	}
}
