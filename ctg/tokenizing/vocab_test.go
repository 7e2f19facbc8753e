package tokenizing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MathieuTuli/transformers-practice/ctg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtendVocabulary(t *testing.T) {
	t.Run("adds new tokens from txt file", func(t *testing.T) {
		tok := NewWhitespace([]string{"hello"})
		path := writeTempFile(t, "extra.txt", "alpha\nbeta\n\nhello\n")

		added, err := ExtendVocabulary(tok, path)
		require.NoError(t, err)
		assert.Equal(t, 2, added, "hello is already present and the blank line is skipped")

		ids, err := tok.Encode("alpha beta")
		require.NoError(t, err)
		assert.NotContains(t, ids, 1, "added tokens must not map to [UNK]")
	})

	t.Run("rejects non-txt suffix", func(t *testing.T) {
		tok := NewWhitespace(nil)
		path := writeTempFile(t, "extra.json", "alpha\n")

		added, err := ExtendVocabulary(tok, path)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
		assert.Zero(t, added)
	})

	t.Run("rejects missing file", func(t *testing.T) {
		tok := NewWhitespace(nil)
		_, err := ExtendVocabulary(tok, filepath.Join(t.TempDir(), "missing.txt"))
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("rejects empty path", func(t *testing.T) {
		tok := NewWhitespace(nil)
		_, err := ExtendVocabulary(tok, "")
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("counts nothing on second pass", func(t *testing.T) {
		tok := NewWhitespace(nil)
		path := writeTempFile(t, "extra.txt", "alpha\nbeta\n")

		first, err := ExtendVocabulary(tok, path)
		require.NoError(t, err)
		assert.Equal(t, 2, first)

		second, err := ExtendVocabulary(tok, path)
		require.NoError(t, err)
		assert.Zero(t, second)
	})
}

func TestReadLines(t *testing.T) {
	path := writeTempFile(t, "lines.txt", "  a  \n\nb\n \nc")
	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestVocabularyIndices(t *testing.T) {
	got := VocabularyIndices([]string{"b", "a", "b", "c"})
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, got)
}

func TestWhitespaceRoundTrip(t *testing.T) {
	tok := NewWhitespaceFromCorpus([]string{"the quick fox", "the slow fox"})

	ids, err := tok.Encode("the quick fox")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, "the quick fox", tok.Decode(ids))

	// Unknown words map to [UNK] without growing the vocabulary
	before := tok.VocabSize()
	ids, err = tok.Encode("the purple fox")
	require.NoError(t, err)
	assert.Contains(t, ids, 1)
	assert.Equal(t, before, tok.VocabSize())
}

func TestWhitespaceDeterministicVocab(t *testing.T) {
	a := NewWhitespaceFromCorpus([]string{"b a", "c"})
	b := NewWhitespaceFromCorpus([]string{"c", "a b"})

	idsA, err := a.Encode("a b c")
	require.NoError(t, err)
	idsB, err := b.Encode("a b c")
	require.NoError(t, err)
	assert.Equal(t, idsA, idsB, "vocabulary order must not depend on corpus order")
}
