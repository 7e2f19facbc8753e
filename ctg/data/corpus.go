package data

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	internal "github.com/MathieuTuli/transformers-practice/ctg"
	"github.com/MathieuTuli/transformers-practice/ctg/common"
	"github.com/MathieuTuli/transformers-practice/ctg/tokenizing"

	ignore "github.com/sabhiram/go-gitignore"
)

// LoadCorpusDir collects every *.txt shard under dir in sorted path order
// and concatenates them into one line-by-line dataset. A .ctgignore file at
// the directory root excludes shards gitignore-style.
func LoadCorpusDir(dir string, tok tokenizing.Tokenizer, maxLen int) (*Dataset, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: corpus directory not found at %s", common.ErrInvalidInput, dir)
	}

	ignored, err := loadIgnoreFile(dir)
	if err != nil {
		return nil, err
	}

	var shards []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".txt") {
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			rel = path
		}
		if ignored != nil && ignored.MatchesPath(rel) {
			return nil
		}
		shards = append(shards, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus directory: %w", err)
	}
	sort.Strings(shards)
	if len(shards) == 0 {
		return nil, fmt.Errorf("%w: no .txt shards under %s", common.ErrInvalidInput, dir)
	}

	var lines []string
	for _, shard := range shards {
		shardLines, err := tokenizing.ReadLines(shard)
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", shard, err)
		}
		lines = append(lines, shardLines...)
	}
	slog.Debug("Collected corpus shards",
		"dir", dir,
		"shards", len(shards),
		"lines", len(lines))

	return lineDataset(lines, tok, maxLen)
}

// loadIgnoreFile compiles the directory's ignore patterns, when present.
func loadIgnoreFile(dir string) (*ignore.GitIgnore, error) {
	ignorePath := filepath.Join(dir, internal.DefaultIgnoreFileName)

	if _, err := os.Stat(ignorePath); err == nil {
		ignored, err := ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("error reading %s file: %w", internal.DefaultIgnoreFileName, err)
		}
		return ignored, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error checking for %s file: %w", internal.DefaultIgnoreFileName, err)
	}

	return nil, nil
}
