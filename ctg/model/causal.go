package model

import (
	"fmt"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/optim"
)

// Bigram is the smallest causal language model that still trains: each
// position's logits depend only on the current token, so the model learns
// next-token co-occurrence. Embedding and output projection are separate
// tables. The shift lives inside the loss: position t is scored against
// the label at t+1.
type Bigram struct {
	cfg      *Config
	embed    *optim.Parameter
	proj     *optim.Parameter
	training bool
	cache    *bigramCache
}

type bigramCache struct {
	batch   data.Batch
	counted int
}

// NewBigram builds the model with randomly initialized weights.
func NewBigram(cfg *Config) *Bigram {
	embed := optim.NewParameter("embed", cfg.VocabSize, cfg.DModel)
	proj := optim.NewParameter("proj", cfg.VocabSize, cfg.DModel)
	initNormal(embed.Value, 0.02, cfg.Seed)
	initNormal(proj.Value, 0.02, cfg.Seed+1)
	return &Bigram{cfg: cfg, embed: embed, proj: proj, training: true}
}

func (m *Bigram) Name() string { return "bigram" }

func (m *Bigram) Parameters() []*optim.Parameter {
	return []*optim.Parameter{m.embed, m.proj}
}

// Replica returns a model that reads this model's weights through shared
// storage but keeps its own gradients and forward buffer.
func (m *Bigram) Replica() Model {
	return &Bigram{
		cfg:      m.cfg,
		embed:    m.embed.ShareValue(),
		proj:     m.proj.ShareValue(),
		training: true,
	}
}

func (m *Bigram) SetTraining(training bool) {
	m.training = training
	if !training {
		m.cache = nil
	}
}

func (m *Bigram) Forward(batch data.Batch) (*Output, error) {
	if batch.Size() == 0 {
		return nil, fmt.Errorf("%w: empty batch", common.ErrInvalidInput)
	}
	if err := checkBatchIDs(batch, m.cfg.VocabSize); err != nil {
		return nil, err
	}

	vocab, d := m.cfg.VocabSize, m.cfg.DModel
	embed := m.embed.Value.RawMatrix().Data
	proj := m.proj.Value.RawMatrix().Data

	logits := make([][][]float64, len(batch.InputIDs))
	var total float64
	counted := 0
	for r, row := range batch.InputIDs {
		labels := batch.Labels[r]
		rowLogits := make([][]float64, len(row))
		for t, id := range row {
			base := id * d
			scores := make([]float64, vocab)
			for v := 0; v < vocab; v++ {
				vb := v * d
				var s float64
				for k := 0; k < d; k++ {
					s += embed[base+k] * proj[vb+k]
				}
				scores[v] = s
			}
			rowLogits[t] = scores
			if t+1 < len(labels) && labels[t+1] != data.LabelIgnore {
				total += logSumExp(scores) - scores[labels[t+1]]
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
		m.cache = &bigramCache{batch: batch, counted: counted}
	}
	return &Output{Loss: loss, Logits: logits}, nil
}

func (m *Bigram) Backward(out *Output) error {
	if out == nil {
		return fmt.Errorf("%w: nil output", common.ErrInvalidInput)
	}
	cache := m.cache
	if !m.training || cache == nil {
		return ErrNoPendingForward
	}
	m.cache = nil
	if len(out.Logits) != len(cache.batch.InputIDs) {
		return fmt.Errorf("%w: output does not match the buffered forward pass", common.ErrInvalidInput)
	}
	if cache.counted == 0 {
		return nil
	}

	vocab, d := m.cfg.VocabSize, m.cfg.DModel
	embed := m.embed.Value.RawMatrix().Data
	proj := m.proj.Value.RawMatrix().Data
	embedGrad := m.embed.Grad.RawMatrix().Data
	projGrad := m.proj.Grad.RawMatrix().Data
	invN := 1.0 / float64(cache.counted)

	for r, row := range cache.batch.InputIDs {
		labels := cache.batch.Labels[r]
		for t, id := range row {
			if t+1 >= len(labels) || labels[t+1] == data.LabelIgnore {
				continue
			}
			target := labels[t+1]
			probs := softmax(out.Logits[r][t])
			base := id * d
			for v := 0; v < vocab; v++ {
				g := probs[v] * invN
				if v == target {
					g -= invN
				}
				vb := v * d
				for k := 0; k < d; k++ {
					projGrad[vb+k] += g * embed[base+k]
					embedGrad[base+k] += g * proj[vb+k]
				}
			}
		}
	}
	return nil
}
