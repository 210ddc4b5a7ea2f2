package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/INLOpen/nexuslake/cache"
	"github.com/INLOpen/nexuslake/config"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/deletion"
	"github.com/INLOpen/nexuslake/expire"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/index"
	"github.com/INLOpen/nexuslake/internal/avroio"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/INLOpen/nexuslake/scan"
	"github.com/INLOpen/nexuslake/schema"
	"github.com/INLOpen/nexuslake/snapshot"
	"go.opentelemetry.io/otel/trace"
)

const maintenanceLock = "maintenance"

// table bundles the metadata codecs of one opened table.
type table struct {
	cfg          *config.Config
	fio          fileio.FileIO
	schema       *schema.TableSchema
	schemas      *schema.Manager
	pathFactory  *pathfactory.Factory
	manifestFile *manifest.ManifestFile
	manifestList *manifest.ManifestList
	index        *index.Handler
	snapshots    *snapshot.Manager
	tags         *snapshot.TagManager
	hooks        hooks.HookManager
	tracer       trace.Tracer
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func openFileIO(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (fileio.FileIO, error) {
	switch cfg.Kind {
	case "local":
		return fileio.NewLocal(cfg.Path), nil
	case "s3":
		return fileio.NewS3(ctx, fileio.S3Options{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Logger:          logger,
		})
	default:
		return nil, &core.ValidationError{Field: "storage.kind", Value: cfg.Kind, Message: "must be local or s3"}
	}
}

func openTable(ctx context.Context, cfg *config.Config, hm hooks.HookManager, tracer trace.Tracer, m *metrics.Metrics, logger *slog.Logger) (*table, error) {
	fio, err := openFileIO(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	schemas := schema.NewManager(fio, logger)
	current, err := schemas.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("no table schema found under %s", describeStorage(cfg.Storage))
	}
	partitionType, err := current.PartitionType()
	if err != nil {
		return nil, err
	}
	codec, err := avroio.ParseCodec(cfg.Manifest.FormatCompression)
	if err != nil {
		return nil, err
	}
	compression, err := core.ParseCompressionType(cfg.Index.Compression)
	if err != nil {
		return nil, err
	}

	pf := pathfactory.New(current.PartitionKeys, cfg.Partition.DefaultName)
	var manifestCache *cache.LRU[string, []manifest.ManifestEntry]
	if cfg.Scan.ManifestCacheCapacity > 0 {
		manifestCache = cache.New(cache.Options[string, []manifest.ManifestEntry]{Capacity: cfg.Scan.ManifestCacheCapacity})
	}
	return &table{
		cfg:         cfg,
		fio:         fio,
		schema:      current,
		schemas:     schemas,
		pathFactory: pf,
		manifestFile: manifest.NewManifestFile(manifest.ManifestFileOptions{
			FileIO:            fio,
			PathFactory:       pf,
			PartitionType:     partitionType,
			SuggestedFileSize: cfg.Manifest.TargetFileSizeBytes,
			Codec:             codec,
			SchemaID:          current.ID,
			Cache:             manifestCache,
			Metrics:           m,
			Logger:            logger,
		}),
		manifestList: manifest.NewManifestList(manifest.ManifestListOptions{FileIO: fio, PathFactory: pf, Codec: codec, Logger: logger}),
		index:        index.NewHandler(index.HandlerOptions{FileIO: fio, PathFactory: pf, Compression: compression, Codec: codec, Logger: logger}),
		snapshots:    snapshot.NewManager(fio, logger),
		tags:         snapshot.NewTagManager(fio, logger),
		hooks:        hm,
		tracer:       tracer,
		metrics:      m,
		logger:       logger,
	}, nil
}

func describeStorage(cfg config.StorageConfig) string {
	if cfg.Kind == "s3" {
		return fmt.Sprintf("s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}
	return cfg.Path
}

func (t *table) scanBuilder() *scan.Builder {
	return scan.NewBuilder(scan.Config{
		ManifestFile:     t.manifestFile,
		ManifestList:     t.manifestList,
		Snapshots:        t.snapshots,
		Schemas:          t.schemas,
		Schema:           t.schema,
		Parallelism:      t.cfg.Scan.ManifestParallelism,
		CheckBucketCount: t.cfg.Bucket.Check,
		Tracer:           t.tracer,
		Metrics:          t.metrics,
		Logger:           t.logger,
	})
}

func (t *table) gcOptions() deletion.Options {
	return deletion.Options{
		FileIO:       t.fio,
		PathFactory:  t.pathFactory,
		ManifestFile: t.manifestFile,
		ManifestList: t.manifestList,
		Index:        t.index,
		Hooks:        t.hooks,
		Metrics:      t.metrics,
		Logger:       t.logger,
	}
}

// withMaintenanceLock runs fn while holding the table's maintenance lock, so
// two expire or tag-delete runs never collect files concurrently.
func (t *table) withMaintenanceLock(ctx context.Context, fn func() error) error {
	release, err := fileio.AcquireLock(ctx, t.fio, maintenanceLock, fileio.LockOptions{
		MaxRetries:    10,
		RetryInterval: 500 * time.Millisecond,
		StaleTTL:      time.Hour,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			t.logger.Warn("Failed to release maintenance lock.", "error", err)
		}
	}()
	return fn()
}

func (t *table) expirer(retainMin, retainMax int, timeRetained time.Duration) (*expire.Expirer, error) {
	return expire.NewExpirer(expire.Options{
		Snapshots:    t.snapshots,
		Tags:         t.tags,
		GC:           t.gcOptions(),
		RetainMin:    retainMin,
		RetainMax:    retainMax,
		TimeRetained: timeRetained,
		Tracer:       t.tracer,
	})
}
