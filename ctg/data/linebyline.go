package data

import (
	"fmt"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/tokenizing"
)

// LoadLineByLine reads a newline-delimited text file for causal language
// modeling. Each non-empty, non-space line becomes one record; labels mirror
// the input ids with padded positions masked out of the loss.
func LoadLineByLine(path string, tok tokenizing.Tokenizer, maxLen int) (*Dataset, error) {
	validator := common.NewValidationUtils()
	if err := validator.ValidateRequiredString(path, "dataset path"); err != nil {
		return nil, err
	}
	if err := validator.ValidateFileExists(path); err != nil {
		return nil, err
	}

	lines, err := tokenizing.ReadLines(path)
	if err != nil {
		return nil, err
	}
	return lineDataset(lines, tok, maxLen)
}

func lineDataset(lines []string, tok tokenizing.Tokenizer, maxLen int) (*Dataset, error) {
	if maxLen <= 0 {
		maxLen = 512
	}
	pad := tok.PadID()
	if pad < 0 {
		return nil, fmt.Errorf("tokenizer %q has no pad id; cannot pad line dataset", tok.Name())
	}

	features := make([]Features, 0, len(lines))
	report := NewTruncationReport()
	for idx, line := range lines {
		ids, err := tok.Encode(line)
		if err != nil {
			return nil, fmt.Errorf("encode line %d: %w", idx, err)
		}
		if len(ids) > maxLen {
			ids = ids[:maxLen]
			report.MarkSource(idx)
		}

		mask := make([]int, len(ids))
		for i := range mask {
			mask[i] = 1
		}
		ids = padTo(ids, maxLen, pad)
		mask = padTo(mask, maxLen, 0)

		// labels track the inputs; padded tail positions leave the loss
		labels := make([]int, len(ids))
		for i, id := range ids {
			if mask[i] == 0 {
				labels[i] = LabelIgnore
				continue
			}
			labels[i] = id
		}

		features = append(features, Features{InputIDs: ids, AttentionMask: mask, Labels: labels})
	}
	return NewDataset(features, report), nil
}
