package training

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/config"
	"github.com/MathieuTuli/transformers-practice/ctg/runlog"
)

const summaryPattern = `^E time: [0-9.e+-]+ \| T time [0-9.e+-]+ \| Train Loss [0-9.e+-]+ \| Val Loss [0-9.e+-]+$`

// trainingFixture lays out a complete run on disk: a whitespace
// vocabulary, seq2seq train and validation files, a model directory and
// a file-backed run log. mutate tweaks the config before validation.
func trainingFixture(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	dir := t.TempDir()

	vocabPath := filepath.Join(dir, "vocab.txt")
	require.NoError(t, os.WriteFile(vocabPath,
		[]byte("hello\nworld\nhi\nthere\ngood\nmorning\n"), 0o644))

	trainPath := filepath.Join(dir, "train.json")
	require.NoError(t, os.WriteFile(trainPath, []byte(`{"data":[
		{"source":"hello world","target":"hi there"},
		{"source":"good morning","target":"hello world"},
		{"source":"hi hi","target":"good morning"},
		{"source":"world good","target":"there hello"}
	]}`), 0o644))

	valPath := filepath.Join(dir, "val.json")
	require.NoError(t, os.WriteFile(valPath, []byte(`{"data":[
		{"source":"hello morning","target":"hi world"},
		{"source":"there there","target":"good hello"}
	]}`), 0o644))

	modelDir := filepath.Join(dir, "model")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "config.json"),
		[]byte(`{"model_type":"pooled-encdec","pad_token_id":0,"decoder_start_token_id":2,"d_model":8,"seed":5}`), 0o644))

	cfg := &config.Config{
		Data: config.DataConfig{
			TrainPath:        trainPath,
			ValPath:          valPath,
			MaxSourceLength:  6,
			MaxTargetLength:  5,
			PadToMaxLength:   true,
			IgnorePadForLoss: true,
			Workers:          2,
		},
		Tokenizer: config.TokenizerConfig{
			Kind:      "whitespace",
			VocabPath: vocabPath,
		},
		Model: config.ModelConfig{Dir: modelDir},
		Optim: config.OptimConfig{
			Name:         "adamw",
			LR:           0.05,
			MinLR:        1e-4,
			Beta1:        0.9,
			Beta2:        0.999,
			Eps:          1e-8,
			Scheduler:    "constant",
			WarmupSteps:  2,
			ClipGradNorm: 1.0,
		},
		Train: config.TrainConfig{
			BatchSize:     2,
			Epochs:        2,
			Trials:        1,
			Replicas:      1,
			ShuffleTrain:  true,
			Seed:          42,
			OutputDir:     filepath.Join(dir, "output"),
			CheckpointDir: filepath.Join(dir, "checkpoints"),
		},
		RunLog: config.RunLogConfig{
			Enabled: true,
			DSN:     filepath.Join(dir, "runlog.db"),
			Type:    "libsql",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func TestAgentLifecycle(t *testing.T) {
	cfg := trainingFixture(t, nil)
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	assert.Equal(t, StateUninitialized, agent.State())

	var buf bytes.Buffer
	agent.SetOutput(&buf)

	require.NoError(t, agent.Train(context.Background()))
	assert.Equal(t, StateDone, agent.State())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, cfg.Train.Epochs, "one summary line per epoch")
	for _, line := range lines {
		assert.Regexp(t, summaryPattern, line)
	}

	runID := agent.RunID()
	require.NotEmpty(t, runID)
	require.NoError(t, agent.Close())

	store, err := runlog.Open(cfg.RunLog.DSN)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.Epochs(runID)
	require.NoError(t, err)
	require.Len(t, records, cfg.Train.Epochs)
	assert.Equal(t, 2, records[0].Steps, "four examples at batch size two")
	assert.Greater(t, records[0].TrainLoss, 0.0)

	assert.FileExists(t, filepath.Join(cfg.Train.CheckpointDir, "weights.gob"),
		"final weights snapshot lands in the checkpoint dir")
}

func TestTrainLossFallsAcrossEpochs(t *testing.T) {
	cfg := trainingFixture(t, func(c *config.Config) {
		c.Train.Epochs = 8
	})
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	agent.SetOutput(&bytes.Buffer{})

	require.NoError(t, agent.Train(context.Background()))

	store, err := runlog.Open(cfg.RunLog.DSN)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.Epochs(agent.RunID())
	require.NoError(t, err)
	require.Len(t, records, 8)
	assert.Less(t, records[7].TrainLoss, records[0].TrainLoss)
}

func TestResetIsReentrant(t *testing.T) {
	cfg := trainingFixture(t, nil)
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	ctx := context.Background()

	require.NoError(t, agent.Reset(ctx))
	assert.Equal(t, StateReady, agent.State())
	first := agent.Model()

	require.NoError(t, agent.Reset(ctx))
	assert.Equal(t, StateReady, agent.State())
	assert.NotSame(t, first, agent.Model(), "each reset rebuilds the model")

	agent.SetOutput(&bytes.Buffer{})
	require.NoError(t, agent.Train(ctx))
	require.Equal(t, StateDone, agent.State())

	require.NoError(t, agent.Reset(ctx), "reset must restart a finished agent")
	assert.Equal(t, StateReady, agent.State())
}

func TestMultiTrialSweep(t *testing.T) {
	cfg := trainingFixture(t, func(c *config.Config) {
		c.Train.Trials = 3
		c.Train.Epochs = 1
	})
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	agent.SetOutput(&bytes.Buffer{})

	require.NoError(t, agent.Train(context.Background()))

	store, err := runlog.Open(cfg.RunLog.DSN)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.Epochs(agent.RunID())
	require.NoError(t, err)
	require.Len(t, records, 3, "one epoch row per trial")
	for i, rec := range records {
		assert.Equal(t, i, rec.Trial)
		assert.Equal(t, 0, rec.Epoch)
	}
}

func TestEvaluateStandalone(t *testing.T) {
	cfg := trainingFixture(t, nil)
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	ctx := context.Background()

	require.NoError(t, agent.Reset(ctx))
	loss, err := agent.Evaluate(ctx)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
	assert.Equal(t, StateReady, agent.State())

	again, err := agent.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, loss, again, "evaluation is deterministic")
}

func TestEvaluateBeforeResetPanics(t *testing.T) {
	cfg := trainingFixture(t, nil)
	agent, err := NewAgent(cfg)
	require.NoError(t, err)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*common.PreconditionError)
		assert.True(t, ok, "panic value is a precondition error, got %T", r)
	}()
	_, _ = agent.Evaluate(context.Background())
}

func TestResetReportsConfigErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing training file", func(t *testing.T) {
		cfg := trainingFixture(t, func(c *config.Config) {
			c.Data.TrainPath = filepath.Join(t.TempDir(), "absent.json")
		})
		agent, err := NewAgent(cfg)
		require.NoError(t, err)
		err = agent.Reset(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
		assert.Equal(t, StateUninitialized, agent.State(), "failed reset must not mark the agent ready")
	})

	t.Run("wrong suffix", func(t *testing.T) {
		cfg := trainingFixture(t, func(c *config.Config) {
			path := filepath.Join(t.TempDir(), "train.csv")
			require.NoError(t, os.WriteFile(path, []byte("a,b"), 0o644))
			c.Data.TrainPath = path
		})
		agent, err := NewAgent(cfg)
		require.NoError(t, err)
		assert.ErrorIs(t, agent.Reset(ctx), common.ErrInvalidInput)
	})

	t.Run("unknown tokenizer kind", func(t *testing.T) {
		cfg := trainingFixture(t, func(c *config.Config) {
			c.Tokenizer.Kind = "sentencepiece"
		})
		agent, err := NewAgent(cfg)
		require.NoError(t, err)
		assert.ErrorIs(t, agent.Reset(ctx), common.ErrUnknownOption)
	})

	t.Run("unknown optimizer", func(t *testing.T) {
		cfg := trainingFixture(t, func(c *config.Config) {
			c.Optim.Name = "lion"
		})
		agent, err := NewAgent(cfg)
		require.NoError(t, err)
		assert.ErrorIs(t, agent.Reset(ctx), common.ErrUnknownOption)
	})
}

func TestSchedulerReachesFloor(t *testing.T) {
	cfg := trainingFixture(t, func(c *config.Config) {
		c.Optim.Scheduler = "warmup-cosine"
		c.Optim.WarmupSteps = 2
		c.Train.Epochs = 3
	})
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	agent.SetOutput(&bytes.Buffer{})

	require.NoError(t, agent.Train(context.Background()))
	require.NotNil(t, agent.sched)
	assert.InDelta(t, cfg.Optim.MinLR, agent.sched.LR(), 1e-12,
		"after all scheduled steps the rate sits at the floor")
}

func TestTrainWithoutScheduler(t *testing.T) {
	cfg := trainingFixture(t, func(c *config.Config) {
		c.Optim.Scheduler = "none"
	})
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	agent.SetOutput(&bytes.Buffer{})

	require.NoError(t, agent.Train(context.Background()))
	assert.Nil(t, agent.sched)
	assert.Equal(t, cfg.Optim.LR, agent.currentLR())
}

func TestTrainWithoutRunLog(t *testing.T) {
	cfg := trainingFixture(t, func(c *config.Config) {
		c.RunLog.Enabled = false
	})
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	agent.SetOutput(&bytes.Buffer{})

	require.NoError(t, agent.Train(context.Background()))
	assert.Empty(t, agent.RunID())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "UNINITIALIZED", StateUninitialized.String())
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "TRAINING_EPOCH", StateTrainingEpoch.String())
	assert.Equal(t, "VALIDATING_EPOCH", StateValidatingEpoch.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "State(99)", State(99).String())
}
