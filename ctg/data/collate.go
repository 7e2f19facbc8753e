package data

import "fmt"

// Collator assembles a batch from preprocessed records. Returned batches may
// alias dataset storage; consumers must treat rows as read-only.
type Collator interface {
	Collate(rows []Features) (Batch, error)
}

// StackCollator stacks fixed-length rows without reshaping them. It serves
// datasets padded to the maximum length at load time and rejects ragged
// input rather than guessing a pad value.
type StackCollator struct{}

// Collate stacks rows into a batch, verifying every field is rectangular.
func (StackCollator) Collate(rows []Features) (Batch, error) {
	if len(rows) == 0 {
		return Batch{}, fmt.Errorf("cannot collate an empty batch")
	}
	wantIn := len(rows[0].InputIDs)
	wantLab := len(rows[0].Labels)

	batch := Batch{
		InputIDs:      make([][]int, len(rows)),
		AttentionMask: make([][]int, len(rows)),
		Labels:        make([][]int, len(rows)),
	}
	for i, row := range rows {
		if len(row.InputIDs) != wantIn || len(row.AttentionMask) != wantIn || len(row.Labels) != wantLab {
			return Batch{}, fmt.Errorf("ragged batch: row %d has lengths (%d, %d, %d), want (%d, %d, %d)",
				i, len(row.InputIDs), len(row.AttentionMask), len(row.Labels), wantIn, wantIn, wantLab)
		}
		batch.InputIDs[i] = row.InputIDs
		batch.AttentionMask[i] = row.AttentionMask
		batch.Labels[i] = row.Labels
	}
	return batch, nil
}

// PaddingCollator pads each field to the longest row in the batch: inputs
// with the tokenizer pad id, masks with zero, labels with LabelPadID so the
// padded positions stay out of the loss.
type PaddingCollator struct {
	PadID      int
	LabelPadID int
}

// NewPaddingCollator pairs the tokenizer pad id with the loss-ignore label pad.
func NewPaddingCollator(padID int) PaddingCollator {
	return PaddingCollator{PadID: padID, LabelPadID: LabelIgnore}
}

// Collate pads rows to a common shape and stacks them.
func (c PaddingCollator) Collate(rows []Features) (Batch, error) {
	if len(rows) == 0 {
		return Batch{}, fmt.Errorf("cannot collate an empty batch")
	}

	maxIn, maxLab := 0, 0
	for _, row := range rows {
		if len(row.InputIDs) > maxIn {
			maxIn = len(row.InputIDs)
		}
		if len(row.Labels) > maxLab {
			maxLab = len(row.Labels)
		}
	}

	batch := Batch{
		InputIDs:      make([][]int, len(rows)),
		AttentionMask: make([][]int, len(rows)),
		Labels:        make([][]int, len(rows)),
	}
	for i, row := range rows {
		batch.InputIDs[i] = padTo(append([]int(nil), row.InputIDs...), maxIn, c.PadID)
		batch.AttentionMask[i] = padTo(append([]int(nil), row.AttentionMask...), maxIn, 0)
		batch.Labels[i] = padTo(append([]int(nil), row.Labels...), maxLab, c.LabelPadID)
	}
	return batch, nil
}
