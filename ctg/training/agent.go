// Package training drives the epoch loop: reset wires the tokenizer,
// data loaders, model and optimizer from configuration, then train runs
// trials of alternating training and validation epochs.
package training

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/config"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/model"
	"github.com/MathieuTuli/transformers-practice/ctg/optim"
	"github.com/MathieuTuli/transformers-practice/ctg/runlog"
	"github.com/MathieuTuli/transformers-practice/ctg/tokenizing"
)

// Agent owns one training run. All collaborators live on the instance,
// never in package state, so concurrent agents with different configs
// cannot interfere.
type Agent struct {
	cfg      *config.Config
	asserts  *assert.AssertHandler
	validate *common.ValidationUtils
	errs     *common.ErrorUtils
	state    State

	tok         tokenizing.Tokenizer
	trainLoader *data.Loader
	valLoader   *data.Loader
	mdl         model.Model
	replicas    []model.Model
	opt         optim.Optimizer
	sched       optim.Scheduler

	runs  *runlog.Store
	runID string

	stdout io.Writer
}

// NewAgent validates the configuration and returns an uninitialized
// agent. Reset (or Train, which resets per trial) wires the
// collaborators.
func NewAgent(cfg *config.Config) (*Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", common.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{
		cfg:      cfg,
		asserts:  assert.NewAssertHandler(),
		validate: common.NewValidationUtils(),
		errs:     common.NewErrorUtils(),
		state:    StateUninitialized,
		stdout:   os.Stdout,
	}, nil
}

// SetOutput redirects the per-epoch summary lines, normally to capture
// them in tests.
func (a *Agent) SetOutput(w io.Writer) { a.stdout = w }

// State reports where the agent is in its lifecycle.
func (a *Agent) State() State { return a.state }

// Tokenizer returns the tokenizer wired by the last Reset.
func (a *Agent) Tokenizer() tokenizing.Tokenizer { return a.tok }

// Model returns the model wired by the last Reset.
func (a *Agent) Model() model.Model { return a.mdl }

// RunID returns the run log id for the current Train invocation, empty
// when run logging is disabled.
func (a *Agent) RunID() string { return a.runID }

// Close releases the run log connection if one was opened.
func (a *Agent) Close() error {
	if a.runs == nil {
		return nil
	}
	err := a.runs.Close()
	a.runs = nil
	return err
}

func (a *Agent) transition(next State) {
	common.Preconditionf(a.state.canTransition(next), "training.Agent",
		"illegal transition %s -> %s", a.state, next)
	a.state = next
}

// Reset builds every collaborator from scratch: tokenizer, datasets,
// loaders, model, optimizer and scheduler. It is re-entrant; each trial
// of a sweep calls it to start from fresh weights and optimizer state.
// Malformed inputs surface here as errors, before any training step.
func (a *Agent) Reset(ctx context.Context) error {
	if err := a.validate.ValidateContextCancellation(ctx); err != nil {
		return err
	}

	tok, err := a.buildTokenizer()
	if err != nil {
		return fmt.Errorf("building tokenizer: %w", err)
	}
	if path := a.cfg.Tokenizer.ExtraVocabPath; path != "" {
		added, err := tokenizing.ExtendVocabulary(tok, path)
		if err != nil {
			return fmt.Errorf("extending vocabulary: %w", err)
		}
		slog.Info("vocabulary extended", "path", path, "added", added)
	}

	trainDS, err := a.loadDataset(ctx, tok, a.cfg.Data.TrainPath)
	if err != nil {
		return fmt.Errorf("loading training data: %w", err)
	}
	valDS, err := a.loadDataset(ctx, tok, a.cfg.Data.ValPath)
	if err != nil {
		return fmt.Errorf("loading validation data: %w", err)
	}

	collator := a.buildCollator(tok)
	trainLoader, err := data.NewLoader(trainDS, collator, a.cfg.Train.BatchSize, a.cfg.Train.ShuffleTrain, a.cfg.Train.Seed)
	if err != nil {
		return err
	}
	valLoader, err := data.NewLoader(valDS, collator, a.cfg.Train.BatchSize, false, a.cfg.Train.Seed)
	if err != nil {
		return err
	}

	mdl, err := model.Load(a.cfg.Model.Dir, tok.VocabSize())
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	replicas, err := buildReplicas(mdl, a.cfg.Train.Replicas)
	if err != nil {
		return err
	}

	totalSteps := trainLoader.Steps() * a.cfg.Train.Epochs
	opt, sched, err := optim.Build(a.cfg.Optim, mdl.Parameters(), totalSteps)
	if err != nil {
		return err
	}

	for _, dir := range []string{a.cfg.Train.OutputDir, a.cfg.Train.CheckpointDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", dir, err)
		}
	}

	a.tok = tok
	a.trainLoader = trainLoader
	a.valLoader = valLoader
	a.mdl = mdl
	a.replicas = replicas
	a.opt = opt
	a.sched = sched
	a.transition(StateReady)

	slog.Info("agent ready",
		"model", mdl.Name(),
		"trainExamples", trainLoader.Len(),
		"valExamples", valLoader.Len(),
		"stepsPerEpoch", trainLoader.Steps(),
		"replicas", a.cfg.Train.Replicas)
	return nil
}

// Train runs the configured number of trials, resetting before each one,
// and parks the agent in the done state afterwards. When run logging is
// enabled the whole invocation is recorded under one run id.
func (a *Agent) Train(ctx context.Context) error {
	if a.cfg.RunLog.Enabled {
		if a.runs == nil {
			runs, err := runlog.Open(a.cfg.RunLog.DSN)
			if err != nil {
				return a.errs.LogAndWrapError(err, slog.LevelError, "opening run log")
			}
			a.runs = runs
		}
		raw, err := json.Marshal(a.cfg)
		if err != nil {
			return fmt.Errorf("serializing config: %w", err)
		}
		id, err := a.runs.BeginRun(string(raw))
		if err != nil {
			return err
		}
		a.runID = id
	}

	for trial := 0; trial < a.cfg.Train.Trials; trial++ {
		if err := a.Reset(ctx); err != nil {
			return err
		}
		if err := a.runEpochs(ctx, trial); err != nil {
			return err
		}
	}
	a.transition(StateDone)

	if dir := a.cfg.Train.CheckpointDir; dir != "" && a.mdl != nil {
		if params := a.mdl.Parameters(); len(params) > 0 {
			if err := model.SaveWeights(dir, params); err != nil {
				return fmt.Errorf("saving final weights: %w", err)
			}
			slog.Info("saved final weights", "dir", dir)
		}
	}
	return nil
}

// runEpochs alternates training and validation passes for one trial and
// emits the per-epoch summary line.
func (a *Agent) runEpochs(ctx context.Context, trial int) error {
	for epoch := 0; epoch < a.cfg.Train.Epochs; epoch++ {
		startTime := time.Now()
		trainLoss, err := a.epochIteration(ctx, trial, epoch)
		if err != nil {
			return err
		}
		epochTime := time.Now()
		valLoss, err := a.Evaluate(ctx)
		if err != nil {
			return err
		}
		endTime := time.Now()

		trainSeconds := epochTime.Sub(startTime).Seconds()
		valSeconds := endTime.Sub(epochTime).Seconds()
		fmt.Fprintf(a.stdout, "E time: %v | T time %v | Train Loss %v | Val Loss %v\n",
			trainSeconds, valSeconds, trainLoss, valLoss)
		slog.Info("epoch complete",
			"trial", trial,
			"epoch", epoch,
			"trainLoss", trainLoss,
			"valLoss", valLoss,
			"trainSeconds", trainSeconds,
			"valSeconds", valSeconds)

		if a.runs != nil && a.runID != "" {
			rec := runlog.EpochRecord{
				Trial:        trial,
				Epoch:        epoch,
				TrainLoss:    trainLoss,
				ValLoss:      valLoss,
				TrainSeconds: trainSeconds,
				ValSeconds:   valSeconds,
				Steps:        a.trainLoader.Steps(),
			}
			if err := a.runs.RecordEpoch(a.runID, rec); err != nil {
				slog.Warn("failed to record epoch", "error", err)
			}
		}
	}
	return nil
}

// epochIteration runs one full pass over the training loader and returns
// the summed per-step loss. The sum is deliberate: the reported train
// loss is the epoch total, not a mean.
func (a *Agent) epochIteration(ctx context.Context, trial, epoch int) (float64, error) {
	a.transition(StateTrainingEpoch)
	slog.Debug("training epoch", "trial", trial, "epoch", epoch)
	a.mdl.SetTraining(true)
	a.trainLoader.Reset()

	var trainLoss float64
	for {
		if err := a.validate.ValidateContextCancellation(ctx); err != nil {
			return trainLoss, err
		}
		batch, ok, err := a.trainLoader.Next()
		if err != nil {
			return trainLoss, err
		}
		if !ok {
			break
		}

		a.opt.ZeroGrad()
		loss, err := a.forwardBackward(ctx, batch)
		if err != nil {
			return trainLoss, err
		}
		trainLoss += loss

		if clip := a.cfg.Optim.ClipGradNorm; clip > 0 {
			optim.ClipGradNorm(a.mdl.Parameters(), clip)
		}
		a.opt.Step(a.currentLR())
		if a.sched != nil {
			a.sched.Step()
		}
	}
	return trainLoss, nil
}

// Evaluate runs one full pass over the validation loader in evaluation
// mode and returns the summed per-step loss.
func (a *Agent) Evaluate(ctx context.Context) (float64, error) {
	a.transition(StateValidatingEpoch)
	a.mdl.SetTraining(false)
	defer a.mdl.SetTraining(true)
	a.valLoader.Reset()

	var valLoss float64
	for {
		if err := a.validate.ValidateContextCancellation(ctx); err != nil {
			return valLoss, err
		}
		batch, ok, err := a.valLoader.Next()
		if err != nil {
			return valLoss, err
		}
		if !ok {
			break
		}
		out, err := a.mdl.Forward(batch)
		if err != nil {
			return valLoss, err
		}
		valLoss += out.Loss
	}
	a.transition(StateReady)
	return valLoss, nil
}

// forwardBackward runs one optimization step's forward and backward
// passes, fanning out over replicas when configured.
func (a *Agent) forwardBackward(ctx context.Context, batch data.Batch) (float64, error) {
	if len(a.replicas) > 0 {
		return a.replicaStep(ctx, batch)
	}
	out, err := a.mdl.Forward(batch)
	if err != nil {
		return 0, err
	}
	if err := a.mdl.Backward(out); err != nil {
		return 0, err
	}
	return out.Loss, nil
}

func (a *Agent) currentLR() float64 {
	if a.sched != nil {
		return a.sched.LR()
	}
	return a.cfg.Optim.LR
}

func (a *Agent) buildTokenizer() (tokenizing.Tokenizer, error) {
	maxLen := a.cfg.Data.MaxSourceLength
	if a.cfg.Data.MaxTargetLength > maxLen {
		maxLen = a.cfg.Data.MaxTargetLength
	}
	return tokenizing.FromConfig(a.cfg.Tokenizer, maxLen)
}

func (a *Agent) loadDataset(ctx context.Context, tok tokenizing.Tokenizer, path string) (*data.Dataset, error) {
	if a.cfg.Data.LineByLine {
		return data.LoadLineByLine(path, tok, a.cfg.Data.MaxSourceLength)
	}
	return data.LoadSeq2Seq(ctx, path, tok, data.Seq2SeqOptions{
		Prefix:           a.cfg.Data.Prefix,
		MaxSourceLen:     a.cfg.Data.MaxSourceLength,
		MaxTargetLen:     a.cfg.Data.MaxTargetLength,
		PadToMaxLength:   a.cfg.Data.PadToMaxLength,
		IgnorePadForLoss: a.cfg.Data.IgnorePadForLoss,
		MaxSamples:       a.cfg.Data.MaxSamples,
		Workers:          a.cfg.Data.Workers,
		CacheDir:         a.cfg.Data.CacheDir,
		OverwriteCache:   a.cfg.Data.OverwriteCache,
	})
}

// buildCollator pairs the padding strategy with the matching collator:
// fixed-length features stack directly, variable-length features pad per
// batch with the tokenizer's pad id.
func (a *Agent) buildCollator(tok tokenizing.Tokenizer) data.Collator {
	if a.cfg.Data.PadToMaxLength {
		return data.StackCollator{}
	}
	return data.NewPaddingCollator(tok.PadID())
}
