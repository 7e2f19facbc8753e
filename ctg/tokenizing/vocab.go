package tokenizing

import (
	"bufio"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/MathieuTuli/transformers-practice/ctg/common"
)

// ExtendVocabulary reads newline-delimited tokens from path and registers
// them with the tokenizer. The file must exist and carry a .txt suffix;
// anything else is rejected before the tokenizer is touched. Returns the
// number of tokens actually added; tokens already present count for nothing.
func ExtendVocabulary(t Tokenizer, path string) (int, error) {
	validator := common.NewValidationUtils()
	if err := validator.ValidateRequiredString(path, "vocabulary path"); err != nil {
		return 0, err
	}
	if err := validator.ValidateFileSuffix(path, ".txt"); err != nil {
		return 0, err
	}
	if err := validator.ValidateFileExists(path); err != nil {
		return 0, err
	}

	lines, err := ReadLines(path)
	if err != nil {
		return 0, err
	}

	added := t.AddTokens(lines)
	slog.Debug("Extended vocabulary",
		"path", path,
		"candidates", len(lines),
		"added", added)
	return added, nil
}

// ReadLines returns the stripped, non-empty lines of a text file.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// VocabularyIndices maps each unique word to its position in sorted order.
func VocabularyIndices(words []string) map[string]int {
	uniq := make(map[string]struct{}, len(words))
	for _, w := range words {
		uniq[w] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for w := range uniq {
		sorted = append(sorted, w)
	}
	sort.Strings(sorted)

	out := make(map[string]int, len(sorted))
	for i, w := range sorted {
		out[w] = i
	}
	return out
}
