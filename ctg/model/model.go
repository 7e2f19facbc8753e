package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/optim"
)

// Output carries the results of one forward pass. Logits is indexed
// [row][position][vocab id]. Loss is the mean cross entropy over label
// positions that are not ignored.
type Output struct {
	Loss   float64
	Logits [][][]float64
}

// Model is the training surface the agent drives. Forward consumes a
// collated batch and produces loss plus logits, Backward accumulates
// gradients for the most recent forward pass, and Parameters exposes the
// trainable weights for the optimizer. SetTraining(false) puts the model
// in evaluation mode: Forward stops caching activations and Backward
// reports an error until training mode is restored.
type Model interface {
	Forward(batch data.Batch) (*Output, error)
	Backward(out *Output) error
	Parameters() []*optim.Parameter
	SetTraining(training bool)
	Name() string
}

// ErrNoPendingForward is returned by Backward when no forward pass is
// buffered, either because Forward was never called or because the model
// is in evaluation mode.
var ErrNoPendingForward = errors.New("backward requires a buffered forward pass")

// Load builds the model named by dir's config.json. vocabSize is the
// tokenizer's current vocabulary size; the embedding table covers
// whichever of the two vocab counts is larger, so tokenizers extended
// after export still index safely. Saved weights are restored from
// weights.gob when the file exists.
func Load(dir string, vocabSize int) (Model, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}
	if vocabSize > cfg.VocabSize {
		cfg.VocabSize = vocabSize
	}
	if cfg.VocabSize < 1 {
		return nil, fmt.Errorf("%w: model %q has no vocabulary", common.ErrInvalidInput, dir)
	}

	var m Model
	switch cfg.ModelType {
	case "pooled-encdec":
		if cfg.PadTokenID < 0 || cfg.PadTokenID >= cfg.VocabSize {
			return nil, fmt.Errorf("%w: pad token id %d outside vocabulary of %d", common.ErrInvalidInput, cfg.PadTokenID, cfg.VocabSize)
		}
		if cfg.DecoderStartTokenID < 0 || cfg.DecoderStartTokenID >= cfg.VocabSize {
			return nil, fmt.Errorf("%w: decoder start token id %d outside vocabulary of %d", common.ErrInvalidInput, cfg.DecoderStartTokenID, cfg.VocabSize)
		}
		m = NewPooledEncDec(cfg)
	case "bigram":
		m = NewBigram(cfg)
	case "onnx":
		m, err = newONNXModel(cfg, dir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: model type %q", common.ErrUnknownOption, cfg.ModelType)
	}

	restored, err := loadWeights(dir, m.Parameters())
	if err != nil {
		return nil, err
	}
	slog.Debug("loaded model",
		"dir", dir,
		"type", cfg.ModelType,
		"vocabSize", cfg.VocabSize,
		"dModel", cfg.DModel,
		"restoredWeights", restored)
	return m, nil
}

// checkBatchIDs rejects token ids the embedding tables cannot index.
// Labels may additionally carry the ignore sentinel.
func checkBatchIDs(batch data.Batch, vocab int) error {
	for r := range batch.InputIDs {
		for _, id := range batch.InputIDs[r] {
			if id < 0 || id >= vocab {
				return fmt.Errorf("%w: input token id %d outside vocabulary of %d", common.ErrInvalidInput, id, vocab)
			}
		}
		for _, id := range batch.Labels[r] {
			if id == data.LabelIgnore {
				continue
			}
			if id < 0 || id >= vocab {
				return fmt.Errorf("%w: label token id %d outside vocabulary of %d", common.ErrInvalidInput, id, vocab)
			}
		}
	}
	return nil
}

// initNormal fills a matrix with seeded gaussian noise at the usual
// embedding scale.
func initNormal(m *mat.Dense, scale float64, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	data := m.RawMatrix().Data
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
}

// logSumExp computes log(sum(exp(scores))) with the max subtracted for
// numerical stability.
func logSumExp(scores []float64) float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - maxScore)
	}
	return maxScore + math.Log(sum)
}

func softmax(scores []float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	probs := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		e := math.Exp(s - maxScore)
		probs[i] = e
		sum += e
	}
	inv := 1.0 / sum
	for i := range probs {
		probs[i] *= inv
	}
	return probs
}
