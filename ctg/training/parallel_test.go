package training

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/config"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/model"
	"github.com/MathieuTuli/transformers-practice/ctg/optim"
	"github.com/MathieuTuli/transformers-practice/ctg/runlog"
)

// forwardOnlyModel has no replica support, standing in for inference
// backends that cannot share weight storage.
type forwardOnlyModel struct{}

func (forwardOnlyModel) Forward(data.Batch) (*model.Output, error) { return &model.Output{}, nil }
func (forwardOnlyModel) Backward(*model.Output) error              { return nil }
func (forwardOnlyModel) Parameters() []*optim.Parameter            { return nil }
func (forwardOnlyModel) SetTraining(bool)                          {}
func (forwardOnlyModel) Name() string                              { return "forward-only" }

func TestBuildReplicasOffByDefault(t *testing.T) {
	replicas, err := buildReplicas(forwardOnlyModel{}, 1)
	require.NoError(t, err)
	assert.Nil(t, replicas)
}

func TestBuildReplicasRejectsForwardOnly(t *testing.T) {
	_, err := buildReplicas(forwardOnlyModel{}, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestReplicasShareWeightsNotGradients(t *testing.T) {
	cfg := trainingFixture(t, func(c *config.Config) {
		c.Train.Replicas = 3
	})
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	require.NoError(t, agent.Reset(context.Background()))
	require.Len(t, agent.replicas, 2)

	primary := agent.mdl.Parameters()[0]
	replica := agent.replicas[0].Parameters()[0]

	primary.Value.Set(0, 0, 0.123)
	assert.Equal(t, 0.123, replica.Value.At(0, 0), "weights are shared storage")

	primary.Grad.Set(0, 0, 9.0)
	assert.Zero(t, replica.Grad.At(0, 0), "gradients stay private")
}

// With equal-sized chunks whose rows contribute the same number of
// scored positions, the replica average reproduces the single-model
// loss and gradients exactly.
func TestReplicaStepMatchesSingleModel(t *testing.T) {
	ctx := context.Background()
	single := newResetAgent(t, func(c *config.Config) {
		c.Train.BatchSize = 4
		c.Train.ShuffleTrain = false
		c.Train.Replicas = 1
	})
	fanned := newResetAgent(t, func(c *config.Config) {
		c.Train.BatchSize = 4
		c.Train.ShuffleTrain = false
		c.Train.Replicas = 2
	})

	batchS := firstBatch(t, single)
	batchF := firstBatch(t, fanned)
	require.Equal(t, batchS, batchF, "identical fixtures must yield identical batches")

	single.opt.ZeroGrad()
	lossS, err := single.forwardBackward(ctx, batchS)
	require.NoError(t, err)

	fanned.opt.ZeroGrad()
	lossF, err := fanned.forwardBackward(ctx, batchF)
	require.NoError(t, err)

	assert.InDelta(t, lossS, lossF, 1e-12)

	paramsS := single.mdl.Parameters()
	paramsF := fanned.mdl.Parameters()
	require.Equal(t, len(paramsS), len(paramsF))
	for pi := range paramsS {
		gradS := paramsS[pi].Grad.RawMatrix().Data
		gradF := paramsF[pi].Grad.RawMatrix().Data
		require.Equal(t, len(gradS), len(gradF))
		for j := range gradS {
			assert.InDelta(t, gradS[j], gradF[j], 1e-9)
		}
	}
}

func TestReplicaStepWithFewerRowsThanReplicas(t *testing.T) {
	ctx := context.Background()
	agent := newResetAgent(t, func(c *config.Config) {
		c.Train.BatchSize = 1
		c.Train.ShuffleTrain = false
		c.Train.Replicas = 3
	})

	batch := firstBatch(t, agent)
	require.Equal(t, 1, batch.Size())

	agent.opt.ZeroGrad()
	loss, err := agent.forwardBackward(ctx, batch)
	require.NoError(t, err)

	// Only the primary gets a chunk, so the averaged loss is its own.
	agent.mdl.SetTraining(false)
	out, err := agent.mdl.Forward(batch)
	require.NoError(t, err)
	assert.InDelta(t, out.Loss, loss, 1e-12)
}

func TestReplicatedTrainingRuns(t *testing.T) {
	cfg := trainingFixture(t, func(c *config.Config) {
		c.Train.Replicas = 2
		c.Train.Epochs = 6
	})
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	defer agent.Close()
	agent.SetOutput(&bytes.Buffer{})

	require.NoError(t, agent.Train(context.Background()))
	assert.Equal(t, StateDone, agent.State())

	store, err := runlog.Open(cfg.RunLog.DSN)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.Epochs(agent.RunID())
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Less(t, records[5].TrainLoss, records[0].TrainLoss)
}

func newResetAgent(t *testing.T, mutate func(*config.Config)) *Agent {
	t.Helper()
	cfg := trainingFixture(t, mutate)
	agent, err := NewAgent(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { agent.Close() })
	require.NoError(t, agent.Reset(context.Background()))
	agent.mdl.SetTraining(true)
	return agent
}

func firstBatch(t *testing.T, a *Agent) data.Batch {
	t.Helper()
	a.trainLoader.Reset()
	batch, ok, err := a.trainLoader.Next()
	require.NoError(t, err)
	require.True(t, ok)
	return batch
}
