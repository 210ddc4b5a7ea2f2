package pathfactory

import (
	"strings"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_Names(t *testing.T) {
	f := New(nil, "")
	a := f.NewManifestFileName()
	b := f.NewManifestFileName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "manifest-"))
	assert.True(t, strings.HasSuffix(a, "-0"))
	assert.True(t, strings.HasSuffix(b, "-1"))
	assert.True(t, strings.HasPrefix(f.NewManifestListName(), "manifest-list-"))
	assert.True(t, strings.HasPrefix(f.NewIndexManifestName(), "index-manifest-"))
	assert.True(t, strings.HasPrefix(f.NewIndexFileName(), "index-"))

	other := New(nil, "")
	assert.NotEqual(t, a, other.NewManifestFileName(), "factories must not collide")
}

func TestStaticPaths(t *testing.T) {
	assert.Equal(t, "manifest/manifest-x-0", ManifestPath("manifest-x-0"))
	assert.Equal(t, "index/index-x-0", IndexFilePath("index-x-0"))
	assert.Equal(t, "snapshot/snapshot-12", SnapshotPath(12))
	assert.Equal(t, "snapshot/LATEST", LatestHintPath())
	assert.Equal(t, "snapshot/EARLIEST", EarliestHintPath())
	assert.Equal(t, "schema/schema-0", SchemaPath(0))
	assert.Equal(t, "tag/tag-daily", TagPath("daily"))

	id, ok := ParseSnapshotID("snapshot-42")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	_, ok = ParseSnapshotID("LATEST")
	assert.False(t, ok)
}

func TestFactory_PartitionPaths(t *testing.T) {
	f := New([]string{"dt", "hr"}, "")
	p := core.EncodeRow(core.Row{"2024-01-01", int32(3)})

	levels, err := f.HierarchicalPartitionPaths(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"dt=2024-01-01", "dt=2024-01-01/hr=3"}, levels)

	bp, err := f.BucketPath(p, 2)
	require.NoError(t, err)
	assert.Equal(t, "dt=2024-01-01/hr=3/bucket-2", bp)

	dp, err := f.DataFilePath(p, 2, "data-1.orc")
	require.NoError(t, err)
	assert.Equal(t, "dt=2024-01-01/hr=3/bucket-2/data-1.orc", dp)

	nullPart := core.EncodeRow(core.Row{nil, int32(1)})
	pp, err := f.PartitionPath(nullPart)
	require.NoError(t, err)
	assert.Equal(t, "dt=__DEFAULT_PARTITION__/hr=1", pp)

	_, err = f.PartitionPath(core.EncodeRow(core.Row{"only"}))
	require.Error(t, err)

	escaped, err := New([]string{"k"}, "").PartitionPath(core.EncodeRow(core.Row{"a/b=c"}))
	require.NoError(t, err)
	assert.Equal(t, "k=a%2Fb%3Dc", escaped)
}

func TestFactory_Unpartitioned(t *testing.T) {
	f := New(nil, "")
	levels, err := f.HierarchicalPartitionPaths(core.EmptyRow)
	require.NoError(t, err)
	assert.Empty(t, levels)

	bp, err := f.BucketPath(core.EmptyRow, 0)
	require.NoError(t, err)
	assert.Equal(t, "bucket-0", bp)
}
