package model

import (
	"fmt"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/optim"
)

// PooledEncDec is a compact encoder-decoder. The source sentence is
// mean-pooled over its attention mask into one context vector, every
// decoder position adds that context to its own token embedding, and the
// embedding table doubles as the tied output projection. It trains on a
// CPU in seconds while exercising the whole seq2seq path: teacher-forced
// decoder inputs, ignored label positions, exact gradients.
type PooledEncDec struct {
	cfg      *Config
	embed    *optim.Parameter
	training bool
	cache    *encDecCache
}

// encDecCache buffers the ids of the most recent training forward pass.
// Activations are recomputed in Backward from these ids, which is valid
// because weights only move after the backward pass completes.
type encDecCache struct {
	batch   data.Batch
	decIn   [][]int
	counted int
}

// NewPooledEncDec builds the model with randomly initialized weights.
func NewPooledEncDec(cfg *Config) *PooledEncDec {
	embed := optim.NewParameter("embed", cfg.VocabSize, cfg.DModel)
	initNormal(embed.Value, 0.02, cfg.Seed)
	return &PooledEncDec{cfg: cfg, embed: embed, training: true}
}

func (m *PooledEncDec) Name() string { return "pooled-encdec" }

func (m *PooledEncDec) Parameters() []*optim.Parameter {
	return []*optim.Parameter{m.embed}
}

// Replica returns a model that reads this model's weights through shared
// storage but keeps its own gradients and forward buffer, so replicas can
// run forward and backward concurrently.
func (m *PooledEncDec) Replica() Model {
	return &PooledEncDec{cfg: m.cfg, embed: m.embed.ShareValue(), training: true}
}

func (m *PooledEncDec) SetTraining(training bool) {
	m.training = training
	if !training {
		m.cache = nil
	}
}

func (m *PooledEncDec) Forward(batch data.Batch) (*Output, error) {
	if batch.Size() == 0 {
		return nil, fmt.Errorf("%w: empty batch", common.ErrInvalidInput)
	}
	if err := checkBatchIDs(batch, m.cfg.VocabSize); err != nil {
		return nil, err
	}
	decIn := data.RightShift(m.cfg.DecoderStartTokenID, m.cfg.PadTokenID, batch.Labels)

	vocab, d := m.cfg.VocabSize, m.cfg.DModel
	embed := m.embed.Value.RawMatrix().Data

	logits := make([][][]float64, len(batch.Labels))
	var total float64
	counted := 0
	for r := range batch.Labels {
		ctxVec, _ := m.poolSource(batch.InputIDs[r], batch.AttentionMask[r])
		rowLogits := make([][]float64, len(batch.Labels[r]))
		for t, target := range batch.Labels[r] {
			h := make([]float64, d)
			base := decIn[r][t] * d
			for k := 0; k < d; k++ {
				h[k] = embed[base+k] + ctxVec[k]
			}
			scores := make([]float64, vocab)
			for v := 0; v < vocab; v++ {
				vb := v * d
				var s float64
				for k := 0; k < d; k++ {
					s += h[k] * embed[vb+k]
				}
				scores[v] = s
			}
			rowLogits[t] = scores
			if target != data.LabelIgnore {
				total += logSumExp(scores) - scores[target]
				counted++
			}
		}
		logits[r] = rowLogits
	}

	var loss float64
	if counted > 0 {
		loss = total / float64(counted)
	}
	if m.training {
		m.cache = &encDecCache{batch: batch, decIn: decIn, counted: counted}
	}
	return &Output{Loss: loss, Logits: logits}, nil
}

func (m *PooledEncDec) Backward(out *Output) error {
	if out == nil {
		return fmt.Errorf("%w: nil output", common.ErrInvalidInput)
	}
	cache := m.cache
	if !m.training || cache == nil {
		return ErrNoPendingForward
	}
	m.cache = nil
	if len(out.Logits) != len(cache.decIn) {
		return fmt.Errorf("%w: output does not match the buffered forward pass", common.ErrInvalidInput)
	}
	if cache.counted == 0 {
		return nil
	}

	vocab, d := m.cfg.VocabSize, m.cfg.DModel
	embed := m.embed.Value.RawMatrix().Data
	grad := m.embed.Grad.RawMatrix().Data
	invN := 1.0 / float64(cache.counted)
	batch := cache.batch

	for r := range batch.Labels {
		ctxVec, maskCount := m.poolSource(batch.InputIDs[r], batch.AttentionMask[r])
		dCtx := make([]float64, d)
		for t, target := range batch.Labels[r] {
			if target == data.LabelIgnore {
				continue
			}
			probs := softmax(out.Logits[r][t])
			h := make([]float64, d)
			base := cache.decIn[r][t] * d
			for k := 0; k < d; k++ {
				h[k] = embed[base+k] + ctxVec[k]
			}
			dH := make([]float64, d)
			for v := 0; v < vocab; v++ {
				g := probs[v] * invN
				if v == target {
					g -= invN
				}
				vb := v * d
				for k := 0; k < d; k++ {
					grad[vb+k] += g * h[k]
					dH[k] += g * embed[vb+k]
				}
			}
			for k := 0; k < d; k++ {
				grad[base+k] += dH[k]
				dCtx[k] += dH[k]
			}
		}
		if maskCount > 0 {
			inv := 1.0 / float64(maskCount)
			for i, id := range batch.InputIDs[r] {
				if batch.AttentionMask[r][i] != 1 {
					continue
				}
				ib := id * d
				for k := 0; k < d; k++ {
					grad[ib+k] += dCtx[k] * inv
				}
			}
		}
	}
	return nil
}

// poolSource returns the mean of the embeddings whose mask bit is set,
// along with how many positions contributed. An all-zero mask yields a
// zero context.
func (m *PooledEncDec) poolSource(src, mask []int) ([]float64, int) {
	d := m.cfg.DModel
	embed := m.embed.Value.RawMatrix().Data
	ctx := make([]float64, d)
	count := 0
	for i, id := range src {
		if i >= len(mask) || mask[i] != 1 {
			continue
		}
		base := id * d
		for k := 0; k < d; k++ {
			ctx[k] += embed[base+k]
		}
		count++
	}
	if count > 0 {
		inv := 1.0 / float64(count)
		for k := range ctx {
			ctx[k] *= inv
		}
	}
	return ctx, count
}
