package scan

import (
	"fmt"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/internal/testutil"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/predicate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_Range(t *testing.T) {
	for i := int64(0); i < 1000; i++ {
		b := Bucket(core.EncodeRow(core.Row{i}), 7)
		assert.GreaterOrEqual(t, b, int32(0))
		assert.Less(t, b, int32(7))
	}
}

func TestBucketSelector(t *testing.T) {
	b := predicate.NewBuilder(testutil.Fields)

	tests := []struct {
		name   string
		filter predicate.Predicate
		ok     bool
		want   []any
	}{
		{name: "equal", filter: b.Equal(1, int64(7)), ok: true, want: []any{int64(7)}},
		{name: "in", filter: b.In(1, int64(1), int64(2)), ok: true, want: []any{int64(1), int64(2)}},
		{name: "or of equals", filter: predicate.Or(b.Equal(1, int64(3)), b.Equal(1, int64(4))), ok: true, want: []any{int64(3), int64(4)}},
		{name: "and with other field", filter: predicate.And(b.Equal(0, int32(1)), b.Equal(1, int64(9))), ok: true, want: []any{int64(9)}},
		{name: "narrow literal", filter: b.Equal(1, int32(7)), ok: true, want: []any{int64(7)}},
		{name: "go int literal", filter: b.In(1, 1, int32(2)), ok: true, want: []any{int64(1), int64(2)}},
		{name: "raw leaf with narrow literal", filter: &predicate.Leaf{Func: predicate.Equal, Index: 1, Name: "id", Type: core.TypeBigInt, Literals: []any{int32(7)}}, ok: true, want: []any{int64(7)}},
		{name: "unconvertible literal", filter: b.Equal(1, "7"), ok: false},
		{name: "range", filter: b.GreaterThan(1, int64(7)), ok: false},
		{name: "other field only", filter: b.Equal(2, "x"), ok: false},
		{name: "nil", filter: nil, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, ok := NewBucketSelector(tt.filter, testutil.Fields, []string{"id"})
			require.Equal(t, tt.ok, ok)
			if !ok {
				assert.True(t, sel.Select(3, 4), "nil selector selects every bucket")
				return
			}
			want := map[int32]bool{}
			for _, v := range tt.want {
				want[Bucket(core.EncodeRow(core.Row{v}), 4)] = true
			}
			for bucket := int32(0); bucket < 4; bucket++ {
				assert.Equal(t, want[bucket], sel.Select(bucket, 4), "bucket %d", bucket)
			}
		})
	}
}

func TestBucketSelector_TooManyCombinations(t *testing.T) {
	b := predicate.NewBuilder(testutil.Fields)
	lits := make([]any, 0, 40)
	names := make([]any, 0, 40)
	for i := 0; i < 40; i++ {
		lits = append(lits, int64(i))
		names = append(names, fmt.Sprint(i))
	}
	_, ok := NewBucketSelector(predicate.And(b.In(1, lits...), b.In(2, names...)), testutil.Fields, []string{"id", "name"})
	assert.False(t, ok)
}

func TestPlanner_BucketSelectorFromValueFilter(t *testing.T) {
	tb := testutil.NewTable(t, 4)
	var entries []manifest.ManifestEntry
	for bucket := int32(0); bucket < 4; bucket++ {
		entries = append(entries, tb.Add(1, bucket, fmt.Sprintf("f%d", bucket)))
	}
	tb.Commit(t, entries, testutil.CommitOptions{})

	want := Bucket(core.EncodeRow(core.Row{int64(7)}), 4)
	p := plan(t, newBuilder(tb).WithValueFilter(predicate.NewBuilder(testutil.Fields).Equal(1, int64(7))))
	assert.Equal(t, []string{fmt.Sprintf("f%d", want)}, p.FileNames())
}

func TestPlanner_BucketSelectorNarrowLiteral(t *testing.T) {
	tb := testutil.NewTable(t, 4)
	var entries []manifest.ManifestEntry
	for bucket := int32(0); bucket < 4; bucket++ {
		entries = append(entries, tb.Add(1, bucket, fmt.Sprintf("f%d", bucket)))
	}
	tb.Commit(t, entries, testutil.CommitOptions{})

	want := Bucket(core.EncodeRow(core.Row{int64(7)}), 4)
	for _, lit := range []any{int32(7), 7} {
		p := plan(t, newBuilder(tb).WithValueFilter(predicate.NewBuilder(testutil.Fields).Equal(1, lit)))
		assert.Equal(t, []string{fmt.Sprintf("f%d", want)}, p.FileNames(), "literal %T", lit)
	}
}
