package data

import (
	"bytes"
	"sync"

	roaring "github.com/RoaringBitmap/roaring"
)

// Example is one raw dataset record. Seq2seq records carry both fields;
// line-by-line records carry only Source.
type Example struct {
	Source string
	Target string
}

// Features holds one preprocessed record, ready to batch. Labels positions
// holding LabelIgnore are excluded from the loss.
type Features struct {
	InputIDs      []int
	AttentionMask []int
	Labels        []int
}

// Batch is a stack of features. Every row of a field has the same length
// once a collator has run.
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int
	Labels        [][]int
}

// Size returns the number of rows in the batch.
func (b Batch) Size() int { return len(b.InputIDs) }

// Dataset is an in-memory collection of preprocessed records plus the
// truncation report accumulated while building them. Records never change
// after load; batches are assembled per step from views into it.
type Dataset struct {
	features []Features
	report   *TruncationReport
}

// NewDataset wraps preprocessed features. A nil report is replaced with an
// empty one so callers can always inspect it.
func NewDataset(features []Features, report *TruncationReport) *Dataset {
	if report == nil {
		report = NewTruncationReport()
	}
	return &Dataset{features: features, report: report}
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.features) }

// At returns the record at index i.
func (d *Dataset) At(i int) Features { return d.features[i] }

// Report returns the truncation report built during preprocessing.
func (d *Dataset) Report() *TruncationReport { return d.report }

// TruncationReport records which record indices lost tokens to the maximum
// source or target length. Roaring bitmaps keep it cheap for large corpora.
type TruncationReport struct {
	mu     sync.Mutex
	source *roaring.Bitmap
	target *roaring.Bitmap
}

// NewTruncationReport returns an empty report.
func NewTruncationReport() *TruncationReport {
	return &TruncationReport{source: roaring.New(), target: roaring.New()}
}

// MarkSource records that record idx lost source tokens.
func (r *TruncationReport) MarkSource(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source.Add(uint32(idx))
}

// MarkTarget records that record idx lost target tokens.
func (r *TruncationReport) MarkTarget(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target.Add(uint32(idx))
}

// SourceTruncated returns how many records lost source tokens.
func (r *TruncationReport) SourceTruncated() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source.GetCardinality()
}

// TargetTruncated returns how many records lost target tokens.
func (r *TruncationReport) TargetTruncated() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target.GetCardinality()
}

// Truncated returns how many records lost tokens on either side.
func (r *TruncationReport) Truncated() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	union := roaring.New()
	union.Or(r.source)
	union.Or(r.target)
	return union.GetCardinality()
}

// WasSourceTruncated reports whether record idx lost source tokens.
func (r *TruncationReport) WasSourceTruncated(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source.Contains(uint32(idx))
}

// WasTargetTruncated reports whether record idx lost target tokens.
func (r *TruncationReport) WasTargetTruncated(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target.Contains(uint32(idx))
}

// marshal serializes both bitmaps for the dataset cache.
func (r *TruncationReport) marshal() (source, target []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	source, err = r.source.ToBytes()
	if err != nil {
		return nil, nil, err
	}
	target, err = r.target.ToBytes()
	if err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

// unmarshalTruncationReport restores a report serialized by marshal.
func unmarshalTruncationReport(source, target []byte) (*TruncationReport, error) {
	r := NewTruncationReport()
	if len(source) > 0 {
		if _, err := r.source.ReadFrom(bytes.NewReader(source)); err != nil {
			return nil, err
		}
	}
	if len(target) > 0 {
		if _, err := r.target.ReadFrom(bytes.NewReader(target)); err != nil {
			return nil, err
		}
	}
	return r, nil
}
