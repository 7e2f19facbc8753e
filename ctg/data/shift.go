package data

import (
	"github.com/MathieuTuli/transformers-practice/ctg/common"
)

// LabelIgnore is the sentinel masking value for label positions excluded
// from the loss. It is never a valid vocabulary id.
const LabelIgnore = -100

// RightShift builds decoder inputs from target ids: every row moves one
// position right, startID fills the first column, and the overflowing last
// id drops off. Sentinel label values become padID so the result holds only
// real token ids.
//
// padID must be defined and non-negative, and the output must come out
// non-negative. Violations panic with a PreconditionError since they are
// wiring bugs in the caller, not data conditions to handle.
func RightShift(startID, padID int, inputIDs [][]int) [][]int {
	common.Preconditionf(padID >= 0, "data.RightShift",
		"pad id must be defined and non-negative, got %d", padID)

	out := make([][]int, len(inputIDs))
	for i, row := range inputIDs {
		shifted := make([]int, len(row))
		if len(row) == 0 {
			out[i] = shifted
			continue
		}
		copy(shifted[1:], row[:len(row)-1])
		shifted[0] = startID
		for j, id := range shifted {
			if id == LabelIgnore {
				shifted[j] = padID
				continue
			}
			common.Preconditionf(id >= 0, "data.RightShift",
				"negative token id %d at row %d col %d", id, i, j)
		}
		out[i] = shifted
	}
	return out
}
