// Package stats holds per-column min/max/null-count summaries used to prune
// manifest files and data files without opening them.
package stats

import (
	"fmt"

	"github.com/INLOpen/nexuslake/core"
)

// FieldStats summarizes one column. Min and Max are nil when every value is null
// or when the statistics are unknown.
type FieldStats struct {
	Min       any
	Max       any
	NullCount int64
}

// Collector accumulates FieldStats over rows of a fixed arity.
type Collector struct {
	fields []FieldStats
}

// NewCollector creates a collector for rows with the given number of fields.
func NewCollector(arity int) *Collector {
	return &Collector{fields: make([]FieldStats, arity)}
}

// Collect folds one row into the summary.
func (c *Collector) Collect(row core.Row) error {
	if len(row) != len(c.fields) {
		return fmt.Errorf("row arity %d does not match collector arity %d", len(row), len(c.fields))
	}
	for i, v := range row {
		if v == nil {
			c.fields[i].NullCount++
			continue
		}
		if err := c.fields[i].observe(v); err != nil {
			return fmt.Errorf("field %d: %w", i, err)
		}
	}
	return nil
}

// Merge folds another summary of the same arity into this collector. Used to
// aggregate the partition stats of several manifest files.
func (c *Collector) Merge(other []FieldStats) error {
	if len(other) != len(c.fields) {
		return fmt.Errorf("stats arity %d does not match collector arity %d", len(other), len(c.fields))
	}
	for i, s := range other {
		c.fields[i].NullCount += s.NullCount
		if s.Min != nil {
			if err := c.fields[i].observe(s.Min); err != nil {
				return fmt.Errorf("field %d: %w", i, err)
			}
		}
		if s.Max != nil {
			if err := c.fields[i].observe(s.Max); err != nil {
				return fmt.Errorf("field %d: %w", i, err)
			}
		}
	}
	return nil
}

// Extract returns a copy of the accumulated statistics.
func (c *Collector) Extract() []FieldStats {
	out := make([]FieldStats, len(c.fields))
	copy(out, c.fields)
	return out
}

func (s *FieldStats) observe(v any) error {
	if s.Min == nil {
		s.Min, s.Max = v, v
		return nil
	}
	lo, err := core.Compare(v, s.Min)
	if err != nil {
		return err
	}
	if lo < 0 {
		s.Min = v
	}
	hi, err := core.Compare(v, s.Max)
	if err != nil {
		return err
	}
	if hi > 0 {
		s.Max = v
	}
	return nil
}

// BinaryTableStats is the persisted form of a []FieldStats.
type BinaryTableStats struct {
	Min        core.BinaryRow
	Max        core.BinaryRow
	NullCounts []int64
}

// EmptyStats describes zero columns; used for unpartitioned tables.
var EmptyStats = ToBinary(nil)

// ToBinary encodes field statistics.
func ToBinary(fields []FieldStats) BinaryTableStats {
	mins := make(core.Row, len(fields))
	maxs := make(core.Row, len(fields))
	nulls := make([]int64, len(fields))
	for i, f := range fields {
		mins[i] = f.Min
		maxs[i] = f.Max
		nulls[i] = f.NullCount
	}
	return BinaryTableStats{
		Min:        core.EncodeRow(mins),
		Max:        core.EncodeRow(maxs),
		NullCounts: nulls,
	}
}

// Fields decodes the statistics back into per-column summaries. The zero value
// describes zero columns.
func (b BinaryTableStats) Fields() ([]FieldStats, error) {
	if b.Min == "" && b.Max == "" && len(b.NullCounts) == 0 {
		return nil, nil
	}
	mins, err := b.Min.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode min values: %w", err)
	}
	maxs, err := b.Max.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode max values: %w", err)
	}
	if len(mins) != len(maxs) || len(mins) != len(b.NullCounts) {
		return nil, fmt.Errorf("inconsistent stats arity: min=%d max=%d nulls=%d", len(mins), len(maxs), len(b.NullCounts))
	}
	out := make([]FieldStats, len(mins))
	for i := range mins {
		out[i] = FieldStats{Min: mins[i], Max: maxs[i], NullCount: b.NullCounts[i]}
	}
	return out, nil
}

// Evolve maps statistics written under an older schema onto the current one.
// mapping[i] is the old position of current field i, or -1 when the field did not
// exist yet, in which case every row is reported null for it.
func Evolve(fields []FieldStats, mapping []int, rowCount int64) []FieldStats {
	out := make([]FieldStats, len(mapping))
	for i, old := range mapping {
		if old < 0 || old >= len(fields) {
			out[i] = FieldStats{NullCount: rowCount}
			continue
		}
		out[i] = fields[old]
	}
	return out
}
