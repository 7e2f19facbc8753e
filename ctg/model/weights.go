package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MathieuTuli/transformers-practice/ctg/optim"
)

type savedParam struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// SaveWeights writes every parameter to weights.gob in dir.
func SaveWeights(dir string, params []*optim.Parameter) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating weights dir: %w", err)
	}
	saved := make([]savedParam, 0, len(params))
	for _, p := range params {
		rows, cols := p.Value.Dims()
		data := p.Value.RawMatrix().Data
		saved = append(saved, savedParam{
			Name: p.Name,
			Rows: rows,
			Cols: cols,
			Data: append([]float64(nil), data...),
		})
	}
	path := filepath.Join(dir, weightsFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(saved); err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}
	return nil
}

// loadWeights restores saved values into matching parameters. Missing
// file means a fresh model and is not an error. A saved matrix smaller
// than the live one, the shape a vocabulary extension produces, fills
// only the overlapping region and leaves the new rows at their random
// initialization.
func loadWeights(dir string, params []*optim.Parameter) (bool, error) {
	path := filepath.Join(dir, weightsFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var saved []savedParam
	if err := gob.NewDecoder(f).Decode(&saved); err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}
	byName := make(map[string]savedParam, len(saved))
	for _, s := range saved {
		byName[s.Name] = s
	}

	for _, p := range params {
		s, ok := byName[p.Name]
		if !ok {
			continue
		}
		rows, cols := p.Value.Dims()
		if s.Cols != cols {
			return false, fmt.Errorf("weights %q: saved width %d does not match model width %d", p.Name, s.Cols, cols)
		}
		copyRows := min(rows, s.Rows)
		for r := 0; r < copyRows; r++ {
			for c := 0; c < cols; c++ {
				p.Value.Set(r, c, s.Data[r*s.Cols+c])
			}
		}
	}
	return true, nil
}
