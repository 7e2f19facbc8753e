//go:build onnx
// +build onnx

package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/data"
	"github.com/MathieuTuli/transformers-practice/ctg/optim"
)

// ONNXModel evaluates an exported graph through onnxruntime. It is
// forward-only: gradients never flow through the runtime, so Backward
// reports an error and Parameters is empty. Intended for validation
// passes over models trained elsewhere.
type ONNXModel struct {
	cfg       *Config
	modelPath string

	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

func newONNXModel(cfg *Config, dir string) (Model, error) {
	path := findONNXFile(dir)
	if path == "" {
		return nil, fmt.Errorf("%w: no .onnx graph under %s", common.ErrSourceNotExist, dir)
	}
	return &ONNXModel{cfg: cfg, modelPath: path}, nil
}

// findONNXFile probes the usual export names in order.
func findONNXFile(dir string) string {
	for _, name := range []string{
		"model.onnx",
		"decoder_model_merged.onnx",
		"decoder_model.onnx",
	} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (m *ONNXModel) Name() string { return "onnx" }

func (m *ONNXModel) Parameters() []*optim.Parameter { return nil }

func (m *ONNXModel) SetTraining(training bool) {}

func (m *ONNXModel) Backward(out *Output) error {
	return common.ErrBackwardNotSupported
}

func (m *ONNXModel) ensureSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return nil
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}
	ins, outs, err := ort.GetInputOutputInfo(m.modelPath)
	if err != nil {
		return fmt.Errorf("get IO info: %w", err)
	}
	var idsName, maskName string
	for _, ii := range ins {
		n := strings.ToLower(ii.Name)
		if strings.Contains(n, "input_ids") || n == "ids" {
			idsName = ii.Name
		}
		if strings.Contains(n, "attention_mask") || n == "mask" {
			maskName = ii.Name
		}
	}
	var inputNames []string
	if idsName != "" {
		inputNames = append(inputNames, idsName)
	}
	if maskName != "" {
		inputNames = append(inputNames, maskName)
	}
	if len(inputNames) == 0 {
		for _, ii := range ins {
			if ii.DataType == ort.TensorElementDataTypeInt64 {
				inputNames = append(inputNames, ii.Name)
				if len(inputNames) >= 2 {
					break
				}
			}
		}
	}
	if len(inputNames) == 0 {
		return fmt.Errorf("could not determine ONNX input names for %s", m.modelPath)
	}
	var outputNames []string
	for _, oi := range outs {
		if oi.DataType == ort.TensorElementDataTypeFloat {
			outputNames = append(outputNames, oi.Name)
			break
		}
	}
	if len(outputNames) == 0 {
		return fmt.Errorf("could not determine ONNX output name for %s", m.modelPath)
	}
	s, err := ort.NewDynamicAdvancedSession(m.modelPath, inputNames, outputNames, nil)
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}
	m.session = s
	m.inputNames = inputNames
	m.outputNames = outputNames
	return nil
}

// Forward runs the graph over a rectangular batch and scores each label
// position against the logits the graph emits there.
func (m *ONNXModel) Forward(batch data.Batch) (*Output, error) {
	if batch.Size() == 0 {
		return nil, fmt.Errorf("%w: empty batch", common.ErrInvalidInput)
	}
	if err := m.ensureSession(); err != nil {
		return nil, err
	}

	rows := len(batch.InputIDs)
	seq := len(batch.InputIDs[0])
	for r := 1; r < rows; r++ {
		if len(batch.InputIDs[r]) != seq {
			return nil, fmt.Errorf("%w: onnx backend requires fixed-length batches", common.ErrInvalidInput)
		}
	}

	flatIDs := make([]int64, rows*seq)
	flatMask := make([]int64, rows*seq)
	for r := 0; r < rows; r++ {
		for t := 0; t < seq; t++ {
			flatIDs[r*seq+t] = int64(batch.InputIDs[r][t])
			if t < len(batch.AttentionMask[r]) {
				flatMask[r*seq+t] = int64(batch.AttentionMask[r][t])
			}
		}
	}
	shape := ort.NewShape(int64(rows), int64(seq))
	idsTensor, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	inVals := make([]ort.Value, len(m.inputNames))
	for i, name := range m.inputNames {
		if strings.Contains(strings.ToLower(name), "mask") {
			inVals[i] = maskTensor
		} else {
			inVals[i] = idsTensor
		}
	}
	outVals := make([]ort.Value, len(m.outputNames))
	if err := m.session.Run(inVals, outVals); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		for _, v := range outVals {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	logitsTensor, ok := outVals[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected onnx output type")
	}
	outShape := logitsTensor.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unexpected onnx output rank %d, want logits of rank 3", len(outShape))
	}
	vocab := int(outShape[2])
	raw := logitsTensor.GetData()

	logits := make([][][]float64, rows)
	var total float64
	counted := 0
	for r := 0; r < rows; r++ {
		rowLogits := make([][]float64, seq)
		for t := 0; t < seq; t++ {
			scores := make([]float64, vocab)
			base := (r*seq + t) * vocab
			for v := 0; v < vocab; v++ {
				scores[v] = float64(raw[base+v])
			}
			rowLogits[t] = scores
			if t < len(batch.Labels[r]) {
				target := batch.Labels[r][t]
				if target != data.LabelIgnore && target >= 0 && target < vocab {
					total += logSumExp(scores) - scores[target]
					counted++
				}
			}
		}
		logits[r] = rowLogits
	}

	var loss float64
	if counted > 0 {
		loss = total / float64(counted)
	}
	return &Output{Loss: loss, Logits: logits}, nil
}
