// Package pathfactory names every file of a table and places it in the table layout.
//
// Layout, relative to the table root:
//
//	snapshot/snapshot-<id>, snapshot/LATEST, snapshot/EARLIEST
//	manifest/manifest-<uuid>-<n>, manifest/manifest-list-<uuid>-<n>, manifest/index-manifest-<uuid>-<n>
//	index/index-<uuid>-<n>
//	schema/schema-<id>
//	tag/tag-<name>
//	<k1=v1>/<k2=v2>/bucket-<b>/<data file>
package pathfactory

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/INLOpen/nexuslake/core"
	"github.com/google/uuid"
)

// Factory produces unique file names and resolves them to paths.
type Factory struct {
	partitionKeys        []string
	defaultPartitionName string
	uuid                 string

	manifestCount      atomic.Int64
	manifestListCount  atomic.Int64
	indexManifestCount atomic.Int64
	indexFileCount     atomic.Int64
}

// New creates a factory for a table partitioned by partitionKeys.
func New(partitionKeys []string, defaultPartitionName string) *Factory {
	if defaultPartitionName == "" {
		defaultPartitionName = core.DefaultPartitionName
	}
	return &Factory{
		partitionKeys:        partitionKeys,
		defaultPartitionName: defaultPartitionName,
		uuid:                 uuid.NewString(),
	}
}

// PartitionKeys returns the partition column names.
func (f *Factory) PartitionKeys() []string { return f.partitionKeys }

// NewManifestFileName returns a fresh manifest file name.
func (f *Factory) NewManifestFileName() string {
	return fmt.Sprintf("%s%s-%d", core.ManifestPrefix, f.uuid, f.manifestCount.Add(1)-1)
}

// NewManifestListName returns a fresh manifest list name.
func (f *Factory) NewManifestListName() string {
	return fmt.Sprintf("%s%s-%d", core.ManifestListPrefix, f.uuid, f.manifestListCount.Add(1)-1)
}

// NewIndexManifestName returns a fresh index manifest name.
func (f *Factory) NewIndexManifestName() string {
	return fmt.Sprintf("%s%s-%d", core.IndexManifestPrefix, f.uuid, f.indexManifestCount.Add(1)-1)
}

// NewIndexFileName returns a fresh index file name.
func (f *Factory) NewIndexFileName() string {
	return fmt.Sprintf("%s%s-%d", core.IndexFilePrefix, f.uuid, f.indexFileCount.Add(1)-1)
}

// ManifestPath resolves manifest, manifest list and index manifest names.
func ManifestPath(name string) string { return core.ManifestDirName + "/" + name }

// IndexFilePath resolves an index file name.
func IndexFilePath(name string) string { return core.IndexDirName + "/" + name }

// SnapshotPath resolves the file of snapshot id.
func SnapshotPath(id int64) string {
	return core.SnapshotDirName + "/" + core.SnapshotPrefix + strconv.FormatInt(id, 10)
}

// SnapshotDir is the directory holding snapshots and hints.
func SnapshotDir() string { return core.SnapshotDirName }

// LatestHintPath and EarliestHintPath are the snapshot id hint files.
func LatestHintPath() string { return core.SnapshotDirName + "/" + core.LatestHintFile }

func EarliestHintPath() string { return core.SnapshotDirName + "/" + core.EarliestHintFile }

// SchemaPath resolves the file of schema id.
func SchemaPath(id int64) string {
	return core.SchemaDirName + "/" + core.SchemaPrefix + strconv.FormatInt(id, 10)
}

// TagPath resolves the file of tag name.
func TagPath(name string) string { return core.TagDirName + "/" + core.TagPrefix + name }

// TagDir is the directory holding tags.
func TagDir() string { return core.TagDirName }

// ParseSnapshotID extracts the id from a snapshot file name.
func ParseSnapshotID(fileName string) (int64, bool) {
	if !strings.HasPrefix(fileName, core.SnapshotPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fileName, core.SnapshotPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// PartitionPath renders "k1=v1/k2=v2" for a partition, or "" for unpartitioned tables.
func (f *Factory) PartitionPath(partition core.BinaryRow) (string, error) {
	levels, err := f.HierarchicalPartitionPaths(partition)
	if err != nil {
		return "", err
	}
	if len(levels) == 0 {
		return "", nil
	}
	return levels[len(levels)-1], nil
}

// HierarchicalPartitionPaths returns the partition path at every depth, shallowest
// first: ["k1=v1", "k1=v1/k2=v2"].
func (f *Factory) HierarchicalPartitionPaths(partition core.BinaryRow) ([]string, error) {
	if len(f.partitionKeys) == 0 {
		return nil, nil
	}
	row, err := partition.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode partition: %w", err)
	}
	if len(row) != len(f.partitionKeys) {
		return nil, fmt.Errorf("partition arity %d does not match %d partition keys", len(row), len(f.partitionKeys))
	}
	out := make([]string, len(row))
	var sb strings.Builder
	for i, v := range row {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(escape(f.partitionKeys[i]))
		sb.WriteByte('=')
		if v == nil {
			sb.WriteString(escape(f.defaultPartitionName))
		} else {
			sb.WriteString(escape(fmt.Sprint(v)))
		}
		out[i] = sb.String()
	}
	return out, nil
}

// BucketPath resolves the directory of one bucket.
func (f *Factory) BucketPath(partition core.BinaryRow, bucket int32) (string, error) {
	pp, err := f.PartitionPath(partition)
	if err != nil {
		return "", err
	}
	b := core.BucketDirPrefix + strconv.FormatInt(int64(bucket), 10)
	if pp == "" {
		return b, nil
	}
	return pp + "/" + b, nil
}

// DataFilePath resolves a data or extra file inside its bucket.
func (f *Factory) DataFilePath(partition core.BinaryRow, bucket int32, fileName string) (string, error) {
	bp, err := f.BucketPath(partition, bucket)
	if err != nil {
		return "", err
	}
	return bp + "/" + fileName, nil
}

func escape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "=", "%3D")
}
