package scan

import (
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/predicate"
	"github.com/zhangyunhao116/skipmap"
)

// maxBucketKeyCombinations caps the cartesian product of literals the selector
// expands. Larger filters select every bucket.
const maxBucketKeyCombinations = 1000

// Bucket assigns a bucket key to one of numBuckets buckets.
func Bucket(bucketKey core.BinaryRow, numBuckets int32) int32 {
	b := int32(bucketKey.Hash()) % numBuckets
	if b < 0 {
		b = -b
	}
	return b
}

// BucketSelector derives the buckets a filter can touch when the filter pins
// every bucket key field to a finite set of values. The selected set is
// computed once per total bucket count.
type BucketSelector struct {
	keys     []core.BinaryRow
	selected *skipmap.OrderedMap[int32, map[int32]struct{}]
}

// NewBucketSelector inspects filter, a predicate over rowType. ok is false when
// some bucket key is not constrained by equality or IN literals, in which case
// every bucket must be read.
func NewBucketSelector(filter predicate.Predicate, rowType core.RowType, bucketKeys []string) (sel *BucketSelector, ok bool) {
	if filter == nil || len(bucketKeys) == 0 {
		return nil, false
	}
	conjuncts := predicate.SplitAnd(filter)
	values := make([][]any, len(bucketKeys))
	for i, key := range bucketKeys {
		idx := rowType.IndexOf(key)
		if idx < 0 {
			return nil, false
		}
		for _, c := range conjuncts {
			refs := predicate.FieldRefs(c)
			if len(refs) != 1 || refs[0] != idx {
				continue
			}
			lits, found := predicate.Literals(c, idx)
			if !found {
				continue
			}
			// Keys must hash exactly like stored values of the field type.
			coerced := make([]any, len(lits))
			for j, lit := range lits {
				v, ok := core.Coerce(lit, rowType[idx].Type)
				if !ok {
					return nil, false
				}
				coerced[j] = v
			}
			values[i] = coerced
			break
		}
		if values[i] == nil {
			return nil, false
		}
	}

	combinations := 1
	for _, v := range values {
		combinations *= len(v)
		if combinations > maxBucketKeyCombinations {
			return nil, false
		}
	}

	keys := make([]core.BinaryRow, 0, combinations)
	row := make(core.Row, len(values))
	var expand func(i int)
	expand = func(i int) {
		if i == len(values) {
			keys = append(keys, core.EncodeRow(row))
			return
		}
		for _, v := range values[i] {
			row[i] = v
			expand(i + 1)
		}
	}
	expand(0)

	return &BucketSelector{
		keys:     keys,
		selected: skipmap.New[int32, map[int32]struct{}](),
	}, true
}

// Select reports whether bucket, under totalBuckets buckets, may hold matching rows.
func (s *BucketSelector) Select(bucket, totalBuckets int32) bool {
	if s == nil || totalBuckets <= 0 {
		return true
	}
	set, ok := s.selected.Load(totalBuckets)
	if !ok {
		set = make(map[int32]struct{}, len(s.keys))
		for _, k := range s.keys {
			set[Bucket(k, totalBuckets)] = struct{}{}
		}
		set, _ = s.selected.LoadOrStore(totalBuckets, set)
	}
	_, hit := set[bucket]
	return hit
}
