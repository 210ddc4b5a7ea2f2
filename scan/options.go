package scan

import (
	"fmt"
	"log/slog"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/predicate"
	"github.com/INLOpen/nexuslake/schema"
	"github.com/INLOpen/nexuslake/snapshot"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the collaborators of a planner. It is shared by every scan of a table.
type Config struct {
	ManifestFile *manifest.ManifestFile
	ManifestList *manifest.ManifestList
	Snapshots    *snapshot.Manager
	// Schemas resolves older schemas for statistics evolution.
	Schemas schema.Provider
	// Schema is the current table schema.
	Schema *schema.TableSchema
	// Parallelism bounds concurrent manifest reads. Zero uses GOMAXPROCS.
	Parallelism int
	// CheckBucketCount fails scans that meet files written under another bucket count.
	CheckBucketCount bool
	Tracer           trace.Tracer
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Options is the frozen filter configuration of one planner.
type Options struct {
	Snapshot     *snapshot.Snapshot
	SnapshotID   *int64
	Manifests    []manifest.ManifestFileMeta
	hasManifests bool

	PartitionFilter predicate.Predicate
	Bucket          *int32
	BucketFilter    func(bucket int32) bool
	LevelFilter     func(level int32) bool
	// ManifestCacheFilter marks (partition, bucket) pairs worth caching. It never
	// changes which entries a scan returns.
	ManifestCacheFilter func(partition core.BinaryRow, bucket int32) bool
	Mode                Mode
	Stats               StatsFilter
	// bucketFilterSource is the predicate the bucket selector is derived from,
	// with the row type its field indexes refer to.
	bucketFilterSource predicate.Predicate
	bucketFilterType   core.RowType
}

// Builder collects scan options. Each With call replaces the previous value of
// the same option; Build freezes them into a Planner.
type Builder struct {
	cfg  Config
	opts Options
	err  error
}

// NewBuilder starts a scan over the table described by cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithSnapshot pins the scan to s.
func (b *Builder) WithSnapshot(s *snapshot.Snapshot) *Builder {
	b.opts.Snapshot = s
	b.opts.SnapshotID = nil
	return b
}

// WithSnapshotID pins the scan to snapshot id, read at plan time.
func (b *Builder) WithSnapshotID(id int64) *Builder {
	b.opts.SnapshotID = &id
	b.opts.Snapshot = nil
	return b
}

// WithManifestList scans an explicit manifest list instead of a snapshot.
func (b *Builder) WithManifestList(metas []manifest.ManifestFileMeta) *Builder {
	b.opts.Manifests = metas
	b.opts.hasManifests = true
	return b
}

// WithPartitionFilter keeps partitions matching p, a predicate over the partition type.
func (b *Builder) WithPartitionFilter(p predicate.Predicate) *Builder {
	b.opts.PartitionFilter = p
	return b
}

// WithPartitions keeps exactly the listed partitions.
func (b *Builder) WithPartitions(partitions []core.BinaryRow) *Builder {
	partitionType, err := b.partitionType()
	if err != nil {
		b.setErr(err)
		return b
	}
	p, err := predicate.PartitionsToPredicate(partitionType, partitions)
	if err != nil {
		b.setErr(fmt.Errorf("failed to build partition filter: %w", err))
		return b
	}
	b.opts.PartitionFilter = p
	return b
}

// WithBucket keeps a single bucket.
func (b *Builder) WithBucket(bucket int32) *Builder {
	b.opts.Bucket = &bucket
	return b
}

// WithBucketFilter keeps buckets accepted by fn.
func (b *Builder) WithBucketFilter(fn func(bucket int32) bool) *Builder {
	b.opts.BucketFilter = fn
	return b
}

// WithPartitionBucket pins one partition and bucket. Pinning a pair that the
// manifest cache filter rejects is an error, since the caller would be reading
// rows it asked not to cache.
func (b *Builder) WithPartitionBucket(partition core.BinaryRow, bucket int32) *Builder {
	if b.opts.ManifestCacheFilter != nil && b.cfg.ManifestFile != nil && b.cfg.ManifestFile.Cached() {
		if !b.opts.ManifestCacheFilter(partition, bucket) {
			b.setErr(&core.FilteredBucketError{Partition: partition, Bucket: bucket})
			return b
		}
	}
	b.WithPartitions([]core.BinaryRow{partition})
	return b.WithBucket(bucket)
}

// WithMode selects which manifests of the snapshot are read.
func (b *Builder) WithMode(m Mode) *Builder {
	b.opts.Mode = m
	return b
}

// WithLevelFilter keeps data files whose LSM level is accepted by fn.
func (b *Builder) WithLevelFilter(fn func(level int32) bool) *Builder {
	b.opts.LevelFilter = fn
	return b
}

// WithManifestCacheFilter sets the caching hint.
func (b *Builder) WithManifestCacheFilter(fn func(partition core.BinaryRow, bucket int32) bool) *Builder {
	b.opts.ManifestCacheFilter = fn
	return b
}

// WithValueFilter pushes p, a predicate over the table's fields, into value
// statistics. Used by append-only tables.
func (b *Builder) WithValueFilter(p predicate.Predicate) *Builder {
	b.opts.Stats = AppendOnlyStats{Filter: p}
	if b.cfg.Schema != nil {
		b.opts.bucketFilterSource = p
		b.opts.bucketFilterType = b.cfg.Schema.LogicalRowType()
	}
	return b
}

// WithKeyFilter pushes p, a predicate over the primary key fields, into key
// statistics. Used by primary-key tables.
func (b *Builder) WithKeyFilter(p predicate.Predicate) *Builder {
	b.opts.Stats = KeyValueStats{Filter: p}
	if b.cfg.Schema != nil {
		keyType, err := b.cfg.Schema.Fields.Project(b.cfg.Schema.PrimaryKeys)
		if err != nil {
			b.setErr(fmt.Errorf("failed to resolve primary key type: %w", err))
			return b
		}
		b.opts.bucketFilterSource = p
		b.opts.bucketFilterType = keyType
	}
	return b
}

// Build validates the options and returns a planner that no longer changes.
func (b *Builder) Build() (*Planner, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.opts.hasManifests && (b.opts.Snapshot != nil || b.opts.SnapshotID != nil) {
		return nil, core.ErrSnapshotAndManifestsBothSet
	}
	if b.cfg.ManifestFile == nil || (b.cfg.ManifestList == nil && !b.opts.hasManifests) {
		return nil, &core.ValidationError{Field: "scan", Value: "config", Message: "manifest file and manifest list codecs are required"}
	}
	return newPlanner(b.cfg, b.opts), nil
}

func (b *Builder) partitionType() (core.RowType, error) {
	if b.cfg.ManifestFile != nil {
		return b.cfg.ManifestFile.PartitionType(), nil
	}
	if b.cfg.Schema != nil {
		return b.cfg.Schema.PartitionType()
	}
	return nil, fmt.Errorf("partition type is unknown without a manifest file or schema")
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}
