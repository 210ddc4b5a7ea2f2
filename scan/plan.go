package scan

import (
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/manifest"
)

// Plan is the result of a scan: the files to read.
type Plan struct {
	// SnapshotID is nil when the scan read an explicit manifest list or the table is empty.
	SnapshotID *int64
	Watermark  *int64
	Mode       Mode
	// Files are merged entries. In delta and changelog mode DELETE entries are
	// kept so the reader sees removed files too.
	Files []manifest.ManifestEntry
}

// GroupByPartitionBucket indexes the planned files by partition and bucket,
// preserving plan order within a bucket.
func (p *Plan) GroupByPartitionBucket() map[core.BinaryRow]map[int32][]*manifest.DataFileMeta {
	out := make(map[core.BinaryRow]map[int32][]*manifest.DataFileMeta)
	for _, e := range p.Files {
		buckets, ok := out[e.Partition]
		if !ok {
			buckets = make(map[int32][]*manifest.DataFileMeta)
			out[e.Partition] = buckets
		}
		buckets[e.Bucket] = append(buckets[e.Bucket], e.File)
	}
	return out
}

// FileNames returns the planned data file names in plan order.
func (p *Plan) FileNames() []string {
	out := make([]string, len(p.Files))
	for i, e := range p.Files {
		out[i] = e.File.FileName
	}
	return out
}
