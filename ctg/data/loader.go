package data

import (
	"fmt"
	"math/rand"
)

// Loader batches a dataset with a collator. Training loaders reshuffle on
// every Reset; validation loaders always run in file order.
type Loader struct {
	ds        *Dataset
	collator  Collator
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	order     []int
	pos       int
}

// NewLoader wires a dataset to a collator. The seed only matters when
// shuffle is on; equal seeds replay equal epoch orders.
func NewLoader(ds *Dataset, collator Collator, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	if ds == nil {
		return nil, fmt.Errorf("loader needs a dataset")
	}
	if collator == nil {
		return nil, fmt.Errorf("loader needs a collator")
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}

	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	return &Loader{
		ds:        ds,
		collator:  collator,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     order,
	}, nil
}

// Reset rewinds to the first batch, drawing a fresh permutation when
// shuffling is enabled.
func (l *Loader) Reset() {
	l.pos = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Next returns the next batch of the epoch. The second return turns false
// once the epoch is exhausted; the final batch may run short.
func (l *Loader) Next() (Batch, bool, error) {
	if l.pos >= len(l.order) {
		return Batch{}, false, nil
	}
	end := l.pos + l.batchSize
	if end > len(l.order) {
		end = len(l.order)
	}

	rows := make([]Features, 0, end-l.pos)
	for _, idx := range l.order[l.pos:end] {
		rows = append(rows, l.ds.At(idx))
	}
	l.pos = end

	batch, err := l.collator.Collate(rows)
	if err != nil {
		return Batch{}, false, err
	}
	return batch, true, nil
}

// Steps returns the number of batches one epoch produces.
func (l *Loader) Steps() int {
	if l.ds.Len() == 0 {
		return 0
	}
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Len returns the number of records behind the loader.
func (l *Loader) Len() int { return l.ds.Len() }
