// Package scan plans which data files a read of a table snapshot must open.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/snapshot"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

// Planner turns a snapshot or manifest list plus filters into a Plan. It is
// immutable and safe for concurrent use.
type Planner struct {
	manifestFile  *manifest.ManifestFile
	manifestList  *manifest.ManifestList
	snapshots     *snapshot.Manager
	schemas       *SchemaCache
	partitionType core.RowType
	partitionKeys []string
	// numBuckets is the current bucket count, or 0 when the schema is unknown.
	numBuckets   int32
	checkBuckets bool
	parallelism  int
	opts         Options
	selector     *BucketSelector
	tracer       trace.Tracer
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func newPlanner(cfg Config, opts Options) *Planner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("scan")
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	p := &Planner{
		manifestFile:  cfg.ManifestFile,
		manifestList:  cfg.ManifestList,
		snapshots:     cfg.Snapshots,
		schemas:       NewSchemaCache(cfg.Schemas, cfg.Schema),
		partitionType: cfg.ManifestFile.PartitionType(),
		partitionKeys: cfg.ManifestFile.PartitionType().FieldNames(),
		checkBuckets:  cfg.CheckBucketCount,
		parallelism:   parallelism,
		opts:          opts,
		tracer:        tracer,
		metrics:       cfg.Metrics,
		logger:        logger.With("component", "ScanPlanner"),
	}
	if cfg.Schema != nil {
		p.numBuckets = cfg.Schema.NumBuckets()
		p.partitionKeys = cfg.Schema.PartitionKeys
		if sel, ok := NewBucketSelector(opts.bucketFilterSource, opts.bucketFilterType, cfg.Schema.EffectiveBucketKeys()); ok {
			p.selector = sel
		}
	}
	return p
}

// Plan resolves the manifests to read, reads them in parallel with filters
// pushed down, merges the entries and applies the per-file filters.
func (p *Planner) Plan(ctx context.Context) (plan *Plan, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "Planner.Plan")
	defer span.End()
	span.SetAttributes(attribute.String("scan.mode", p.opts.Mode.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan_plan_failed")
		}
	}()

	snap, metas, err := p.resolve(ctx)
	if err != nil {
		return nil, err
	}
	plan = &Plan{Mode: p.opts.Mode}
	if snap != nil {
		id := snap.ID
		plan.SnapshotID = &id
		plan.Watermark = snap.Watermark
		span.SetAttributes(attribute.Int64("scan.snapshot_id", id))
	}

	metas, err = p.filterManifests(metas)
	if err != nil {
		return nil, err
	}
	entries, err := p.readManifests(ctx, metas)
	if err != nil {
		return nil, err
	}
	merged, err := manifest.MergeEntries(entries)
	if err != nil {
		return nil, err
	}

	for _, e := range merged {
		if p.checkBuckets && p.numBuckets > 0 && e.TotalBuckets != p.numBuckets {
			return nil, &core.BucketMismatchError{
				PartitionInfo:   core.PartitionInfo(p.partitionKeys, e.Partition),
				TotalBuckets:    e.TotalBuckets,
				ExpectedBuckets: p.numBuckets,
			}
		}
		// The bucket filters are not applied together with the partition filter
		// during the read: a bucket chosen against the current bucket count says
		// nothing about files written under an older one.
		if p.filterByBucket(&e) && p.selector.Select(e.Bucket, e.TotalBuckets) && p.filterByLevel(&e) {
			plan.Files = append(plan.Files, e)
		}
	}

	p.metrics.ObserveScan(start, len(plan.Files))
	span.SetAttributes(
		attribute.Int("scan.manifests", len(metas)),
		attribute.Int("scan.files", len(plan.Files)),
	)
	p.logger.Debug("Planned scan.", "mode", p.opts.Mode.String(), "manifests", len(metas), "files", len(plan.Files), "duration", time.Since(start))
	return plan, nil
}

// Partitions lists the distinct partitions holding live files, in plan order.
func (p *Planner) Partitions(ctx context.Context) ([]core.BinaryRow, error) {
	plan, err := p.Plan(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[core.BinaryRow]struct{})
	var out []core.BinaryRow
	for _, e := range plan.Files {
		if e.Kind != manifest.KindAdd {
			continue
		}
		if _, ok := seen[e.Partition]; ok {
			continue
		}
		seen[e.Partition] = struct{}{}
		out = append(out, e.Partition)
	}
	return out, nil
}

func (p *Planner) resolve(ctx context.Context) (*snapshot.Snapshot, []manifest.ManifestFileMeta, error) {
	if p.opts.hasManifests {
		return nil, p.opts.Manifests, nil
	}
	snap := p.opts.Snapshot
	if snap == nil {
		if p.snapshots == nil {
			return nil, nil, fmt.Errorf("no snapshot manager configured to resolve the scan snapshot")
		}
		var err error
		if p.opts.SnapshotID != nil {
			snap, err = p.snapshots.Snapshot(ctx, *p.opts.SnapshotID)
		} else {
			snap, err = p.snapshots.Latest(ctx)
		}
		if err != nil {
			return nil, nil, err
		}
		if snap == nil {
			return nil, nil, nil
		}
	}
	metas, err := manifestsOf(ctx, snap, p.opts.Mode, p.manifestList)
	if err != nil {
		return nil, nil, err
	}
	return snap, metas, nil
}

// filterManifests drops manifests whose partition stats prove that no entry
// can match the partition filter.
func (p *Planner) filterManifests(metas []manifest.ManifestFileMeta) ([]manifest.ManifestFileMeta, error) {
	if p.opts.PartitionFilter == nil || p.partitionType.FieldCount() == 0 {
		return metas, nil
	}
	out := make([]manifest.ManifestFileMeta, 0, len(metas))
	for _, m := range metas {
		fields, err := m.PartitionStats.Fields()
		if err != nil {
			return nil, fmt.Errorf("failed to decode partition stats of %s: %w", m.FileName, err)
		}
		if len(fields) == 0 || p.opts.PartitionFilter.TestStats(m.NumEntries(), fields) {
			out = append(out, m)
		}
	}
	return out, nil
}

// readManifests reads metas concurrently and returns their surviving entries in
// manifest order, which the merge depends on.
func (p *Planner) readManifests(ctx context.Context, metas []manifest.ManifestFileMeta) ([]manifest.ManifestEntry, error) {
	results := make([][]manifest.ManifestEntry, len(metas))
	readOpts := manifest.ReadOptions{RowFilter: p.rowFilter}
	if p.opts.ManifestCacheFilter != nil {
		readOpts.CacheFilter = func(e *manifest.ManifestEntry) bool {
			// Entries from another bucket layout never reach the bucket filters.
			if p.numBuckets > 0 && e.TotalBuckets != p.numBuckets {
				return true
			}
			return p.opts.ManifestCacheFilter(e.Partition, e.Bucket)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, meta := range metas {
		g.Go(func() error {
			entries, err := p.manifestFile.Read(gctx, meta.FileName, readOpts)
			if err != nil {
				return err
			}
			kept := entries[:0]
			for j := range entries {
				ok, err := p.filterByStats(gctx, &entries[j])
				if err != nil {
					return err
				}
				if ok {
					kept = append(kept, entries[j])
				}
			}
			results[i] = kept
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	out := make([]manifest.ManifestEntry, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (p *Planner) rowFilter(e *manifest.ManifestEntry) bool {
	if p.opts.PartitionFilter != nil && p.partitionType.FieldCount() > 0 {
		row, err := e.Partition.Decode()
		// Undecodable partitions are kept.
		if err == nil && !p.opts.PartitionFilter.Test(row) {
			return false
		}
	}
	if p.numBuckets == 0 || e.TotalBuckets == p.numBuckets {
		return p.filterByBucket(e)
	}
	return true
}

func (p *Planner) filterByBucket(e *manifest.ManifestEntry) bool {
	if p.opts.Bucket != nil && e.Bucket != *p.opts.Bucket {
		return false
	}
	return p.opts.BucketFilter == nil || p.opts.BucketFilter(e.Bucket)
}

func (p *Planner) filterByLevel(e *manifest.ManifestEntry) bool {
	return p.opts.LevelFilter == nil || p.opts.LevelFilter(e.File.Level)
}

func (p *Planner) filterByStats(ctx context.Context, e *manifest.ManifestEntry) (bool, error) {
	if p.opts.Stats == nil {
		return true, nil
	}
	return p.opts.Stats.Test(ctx, e, p.schemas)
}
