package training

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/model"
	"github.com/MathieuTuli/transformers-practice/ctg/optim"
)

// replicator is satisfied by models that can fan out over shared weight
// storage.
type replicator interface {
	Replica() model.Model
}

// buildReplicas prepares count-1 additional models sharing the primary's
// weights. Returns nil when replication is off. Models without replica
// support, like the forward-only onnx backend, are configuration errors.
func buildReplicas(primary model.Model, count int) ([]model.Model, error) {
	if count <= 1 {
		return nil, nil
	}
	r, ok := primary.(replicator)
	if !ok {
		return nil, fmt.Errorf("%w: model %q cannot be replicated", common.ErrInvalidInput, primary.Name())
	}
	replicas := make([]model.Model, count-1)
	for i := range replicas {
		replicas[i] = r.Replica()
	}
	return replicas, nil
}

// replicaStep splits the batch into contiguous row chunks, runs forward
// and backward on every replica concurrently, then averages the replica
// losses and gradients into the primary parameters. Replicas read the
// shared weights and write private gradients, so no locking is needed.
func (a *Agent) replicaStep(ctx context.Context, batch data.Batch) (float64, error) {
	units := append([]model.Model{a.mdl}, a.replicas...)
	n := batch.Size()
	chunkSize := (n + len(units) - 1) / len(units)

	type share struct {
		m     model.Model
		chunk data.Batch
	}
	var shares []share
	for i, unit := range units {
		lo := i * chunkSize
		if lo >= n {
			break
		}
		hi := min(lo+chunkSize, n)
		shares = append(shares, share{m: unit, chunk: data.Batch{
			InputIDs:      batch.InputIDs[lo:hi],
			AttentionMask: batch.AttentionMask[lo:hi],
			Labels:        batch.Labels[lo:hi],
		}})
	}

	losses := make([]float64, len(shares))
	p := pool.New().WithMaxGoroutines(len(shares)).WithContext(ctx)
	for i := range shares {
		idx := i
		s := shares[i]
		p.Go(func(ctx context.Context) error {
			if s.m != a.mdl {
				optim.ZeroGrads(s.m.Parameters())
			}
			out, err := s.m.Forward(s.chunk)
			if err != nil {
				return err
			}
			if err := s.m.Backward(out); err != nil {
				return err
			}
			losses[idx] = out.Loss
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return 0, err
	}

	active := float64(len(shares))
	for pi, param := range a.mdl.Parameters() {
		grad := param.Grad.RawMatrix().Data
		for _, s := range shares {
			if s.m == a.mdl {
				continue
			}
			replicaGrad := s.m.Parameters()[pi].Grad.RawMatrix().Data
			for j := range grad {
				grad[j] += replicaGrad[j]
			}
		}
		inv := 1.0 / active
		for j := range grad {
			grad[j] *= inv
		}
	}

	var total float64
	for _, l := range losses {
		total += l
	}
	return total / active, nil
}
