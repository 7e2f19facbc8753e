package data

import (
	"testing"

	"github.com/MathieuTuli/transformers-practice/ctg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRightShift(t *testing.T) {
	t.Run("shifts rows right with start token", func(t *testing.T) {
		got := RightShift(1, 0, [][]int{{5, 6, 7}})
		assert.Equal(t, [][]int{{1, 5, 6}}, got)
	})

	t.Run("replaces ignore sentinel with pad id", func(t *testing.T) {
		got := RightShift(1, 0, [][]int{{-100, 8, 9}})
		assert.Equal(t, [][]int{{1, 0, 8}}, got)
	})

	t.Run("handles multiple rows independently", func(t *testing.T) {
		got := RightShift(3, 0, [][]int{
			{5, 6, 7},
			{8, -100, 9},
		})
		assert.Equal(t, [][]int{
			{3, 5, 6},
			{3, 8, 0},
		}, got)
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		in := [][]int{{-100, 8, 9}}
		RightShift(1, 0, in)
		assert.Equal(t, [][]int{{-100, 8, 9}}, in)
	})

	t.Run("empty rows pass through", func(t *testing.T) {
		got := RightShift(1, 0, [][]int{{}})
		assert.Equal(t, [][]int{{}}, got)
	})

	t.Run("never emits the ignore sentinel", func(t *testing.T) {
		got := RightShift(1, 2, [][]int{{-100, -100, 4, -100}})
		for _, row := range got {
			for _, id := range row {
				assert.NotEqual(t, LabelIgnore, id)
				assert.GreaterOrEqual(t, id, 0)
			}
		}
	})
}

func TestRightShiftPreconditions(t *testing.T) {
	t.Run("panics on missing pad id", func(t *testing.T) {
		assert.Panics(t, func() {
			RightShift(1, -1, [][]int{{5, 6}})
		})
	})

	t.Run("panics on negative token id", func(t *testing.T) {
		// the negative id sits early enough to survive the shift
		assert.Panics(t, func() {
			RightShift(1, 0, [][]int{{-7, 5}})
		})
	})

	t.Run("panic carries a precondition error", func(t *testing.T) {
		defer func() {
			r := recover()
			require.NotNil(t, r)
			perr, ok := r.(*common.PreconditionError)
			require.True(t, ok)
			assert.Equal(t, "data.RightShift", perr.Op)
		}()
		RightShift(1, -1, [][]int{{5}})
	})
}
