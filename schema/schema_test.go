package schema

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *TableSchema {
	return &TableSchema{
		ID: 0,
		Fields: core.RowType{
			{ID: 0, Name: "dt", Type: core.TypeString},
			{ID: 1, Name: "id", Type: core.TypeBigInt},
			{ID: 2, Name: "v", Type: core.TypeDouble},
		},
		PartitionKeys: []string{"dt"},
		PrimaryKeys:   []string{"dt", "id"},
		Options:       map[string]string{OptionBucket: "4"},
	}
}

func TestTableSchema_Derived(t *testing.T) {
	s := testSchema()
	pt, err := s.PartitionType()
	require.NoError(t, err)
	assert.Equal(t, []string{"dt"}, pt.FieldNames())

	assert.Equal(t, []string{"id"}, s.EffectiveBucketKeys())
	bt, err := s.BucketKeyType()
	require.NoError(t, err)
	assert.Equal(t, core.TypeBigInt, bt[0].Type)
	assert.Equal(t, int32(4), s.NumBuckets())

	s.BucketKeys = []string{"v"}
	assert.Equal(t, []string{"v"}, s.EffectiveBucketKeys())

	noPk := &TableSchema{Fields: s.Fields, PartitionKeys: []string{"dt"}}
	assert.Equal(t, []string{"id", "v"}, noPk.EffectiveBucketKeys())
	assert.Equal(t, int32(1), noPk.NumBuckets())
}

func TestTableSchema_FieldMapping(t *testing.T) {
	old := testSchema()
	cur := &TableSchema{
		ID: 1,
		Fields: core.RowType{
			{ID: 2, Name: "v", Type: core.TypeDouble},
			{ID: 3, Name: "added", Type: core.TypeString},
			{ID: 0, Name: "dt", Type: core.TypeString},
		},
	}
	assert.Equal(t, []int{2, -1, 0}, cur.FieldMapping(old))
}

func TestManager_CommitAndRead(t *testing.T) {
	ctx := context.Background()
	m := NewManager(fileio.NewLocal(t.TempDir()), slog.New(slog.NewTextHandler(io.Discard, nil)))

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	s0 := testSchema()
	require.NoError(t, m.Commit(ctx, s0))
	require.Error(t, m.Commit(ctx, s0), "schema ids are write-once")

	s1 := testSchema()
	s1.ID = 1
	s1.Options = map[string]string{OptionBucket: "8"}
	require.NoError(t, m.Commit(ctx, s1))

	got, err := m.Schema(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, s0, got)

	latest, err = m.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.ID)
	assert.Equal(t, int32(8), latest.NumBuckets())

	_, err = m.Schema(ctx, 9)
	require.Error(t, err)
}
