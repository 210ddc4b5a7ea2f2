package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/INLOpen/nexuslake/cache"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/internal/avroio"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/INLOpen/nexuslake/stats"
	"github.com/hamba/avro/v2/ocf"
)

// entriesPerBlock bounds how many entries are buffered before an OCF block is
// flushed, which is also the granularity at which rolling checks the file size.
const entriesPerBlock = 64

// ManifestFileOptions configures a ManifestFile.
type ManifestFileOptions struct {
	FileIO        fileio.FileIO
	PathFactory   *pathfactory.Factory
	PartitionType core.RowType
	// SuggestedFileSize is the size at which Write rolls to a new file.
	SuggestedFileSize int64
	Codec             ocf.CodecName
	SchemaID          int64
	// Cache, when set, keeps decoded manifests keyed by file name.
	Cache   *cache.LRU[string, []ManifestEntry]
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// ReadOptions are pushed into Read. Both filters are optional.
type ReadOptions struct {
	// CacheFilter decides whether a row is worth caching. A manifest is cached
	// only when every row passes, so cached content is always complete.
	CacheFilter func(*ManifestEntry) bool
	// RowFilter drops rows from the result.
	RowFilter func(*ManifestEntry) bool
}

// ManifestFile reads and writes manifest files.
type ManifestFile struct {
	fio           fileio.FileIO
	pathFactory   *pathfactory.Factory
	partitionType core.RowType
	suggestedSize int64
	codec         ocf.CodecName
	schemaID      int64
	cache         *cache.LRU[string, []ManifestEntry]
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewManifestFile creates a manifest file codec.
func NewManifestFile(opts ManifestFileOptions) *ManifestFile {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codec := opts.Codec
	if codec == "" {
		codec = ocf.ZStandard
	}
	return &ManifestFile{
		fio:           opts.FileIO,
		pathFactory:   opts.PathFactory,
		partitionType: opts.PartitionType,
		suggestedSize: opts.SuggestedFileSize,
		codec:         codec,
		schemaID:      opts.SchemaID,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		logger:        logger.With("component", "ManifestFile"),
	}
}

// SuggestedFileSize returns the rolling threshold.
func (f *ManifestFile) SuggestedFileSize() int64 { return f.suggestedSize }

// PartitionType returns the partition row type the file aggregates stats over.
func (f *ManifestFile) PartitionType() core.RowType { return f.partitionType }

// Cached reports whether reads go through a segment cache.
func (f *ManifestFile) Cached() bool { return f.cache != nil }

// Read returns the entries of a manifest file that pass opts.RowFilter.
func (f *ManifestFile) Read(ctx context.Context, name string, opts ReadOptions) ([]ManifestEntry, error) {
	if f.cache != nil {
		if entries, ok := f.cache.Get(name); ok {
			f.metrics.IncCacheHit()
			return filterEntries(entries, opts.RowFilter), nil
		}
		f.metrics.IncCacheMiss()
	}

	entries, err := f.readAll(ctx, name)
	if err != nil {
		return nil, err
	}
	if f.cache != nil && allPass(entries, opts.CacheFilter) {
		f.cache.Put(name, entries)
	}
	return filterEntries(entries, opts.RowFilter), nil
}

func (f *ManifestFile) readAll(ctx context.Context, name string) ([]ManifestEntry, error) {
	data, err := f.fio.Read(ctx, pathfactory.ManifestPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", name, err)
	}
	f.metrics.IncManifestsRead()

	records, err := avroio.Decode[entryAvro](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", name, err)
	}
	entries := make([]ManifestEntry, 0, len(records))
	for _, r := range records {
		e, err := fromEntryAvro(r)
		if err != nil {
			var ce *core.CorruptionError
			if errors.As(err, &ce) {
				ce.FileName = name
			}
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func allPass(entries []ManifestEntry, filter func(*ManifestEntry) bool) bool {
	if filter == nil {
		return true
	}
	for i := range entries {
		if !filter(&entries[i]) {
			return false
		}
	}
	return true
}

func filterEntries(entries []ManifestEntry, filter func(*ManifestEntry) bool) []ManifestEntry {
	out := make([]ManifestEntry, 0, len(entries))
	for i := range entries {
		if filter == nil || filter(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

// Write persists entries, rolling to a new file whenever the suggested size is
// reached, and returns one meta per file. On error every file written by this
// call is deleted again.
func (f *ManifestFile) Write(ctx context.Context, entries []ManifestEntry) ([]ManifestFileMeta, error) {
	w := f.NewRollingWriter()
	for _, e := range entries {
		if err := w.Write(ctx, e); err != nil {
			w.Abort(ctx)
			return nil, err
		}
	}
	return w.Close(ctx)
}

// Delete removes a manifest file and drops it from the cache.
func (f *ManifestFile) Delete(ctx context.Context, name string) error {
	if f.cache != nil {
		f.cache.Remove(name)
	}
	if _, err := f.fio.Delete(ctx, pathfactory.ManifestPath(name), false); err != nil {
		return fmt.Errorf("failed to delete manifest %s: %w", name, err)
	}
	f.metrics.IncManifestsDeleted()
	return nil
}

// RollingWriter streams entries into one or more manifest files.
type RollingWriter struct {
	f       *ManifestFile
	buf     bytes.Buffer
	enc     *ocf.Encoder
	name    string
	added   int64
	deleted int64
	parts   *stats.Collector
	written []string
	metas   []ManifestFileMeta
}

// NewRollingWriter starts a streaming write. Callers must finish with Close or Abort.
func (f *ManifestFile) NewRollingWriter() *RollingWriter {
	return &RollingWriter{f: f}
}

// Write appends one entry, finishing the current file once it is large enough.
func (w *RollingWriter) Write(ctx context.Context, e ManifestEntry) error {
	if w.enc == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	partition, err := e.Partition.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode partition of %s: %w", e.File.FileName, err)
	}
	if err := w.parts.Collect(partition); err != nil {
		return fmt.Errorf("failed to collect partition stats of %s: %w", e.File.FileName, err)
	}
	if err := w.enc.Encode(toEntryAvro(e)); err != nil {
		return fmt.Errorf("failed to encode manifest entry %s: %w", e.File.FileName, err)
	}
	if e.Kind == KindAdd {
		w.added++
	} else {
		w.deleted++
	}
	if int64(w.buf.Len()) >= w.f.suggestedSize {
		return w.finish(ctx)
	}
	return nil
}

func (w *RollingWriter) open() error {
	// A fresh buffer: the previous file's bytes may still be referenced by the store.
	w.buf = bytes.Buffer{}
	enc, err := ocf.NewEncoderWithSchema(entryAvroSchema, &w.buf,
		ocf.WithCodec(w.f.codec),
		ocf.WithBlockLength(entriesPerBlock),
	)
	if err != nil {
		return fmt.Errorf("failed to create manifest encoder: %w", err)
	}
	w.enc = enc
	w.name = w.f.pathFactory.NewManifestFileName()
	w.added, w.deleted = 0, 0
	w.parts = stats.NewCollector(w.f.partitionType.FieldCount())
	return nil
}

func (w *RollingWriter) finish(ctx context.Context) error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("failed to close manifest encoder: %w", err)
	}
	w.enc = nil
	if err := w.f.fio.Write(ctx, pathfactory.ManifestPath(w.name), w.buf.Bytes(), false); err != nil {
		// A failed write may still leave an object behind; Abort removes it.
		if !fileio.IsExist(err) {
			w.written = append(w.written, w.name)
		}
		return fmt.Errorf("failed to write manifest %s: %w", w.name, err)
	}
	w.written = append(w.written, w.name)
	w.metas = append(w.metas, ManifestFileMeta{
		FileName:        w.name,
		FileSize:        int64(w.buf.Len()),
		NumAddedFiles:   w.added,
		NumDeletedFiles: w.deleted,
		PartitionStats:  stats.ToBinary(w.parts.Extract()),
		SchemaID:        w.f.schemaID,
	})
	w.f.metrics.AddManifestsWritten(1)
	return nil
}

// Close finishes the last file and returns the metas of every file written.
func (w *RollingWriter) Close(ctx context.Context) ([]ManifestFileMeta, error) {
	if w.enc != nil {
		if err := w.finish(ctx); err != nil {
			w.Abort(ctx)
			return nil, err
		}
	}
	return w.metas, nil
}

// Abort deletes every file this writer produced.
// The deletes outlive a cancelled ctx.
func (w *RollingWriter) Abort(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	w.enc = nil
	for _, name := range w.written {
		fileio.DeleteQuietly(ctx, w.f.fio, pathfactory.ManifestPath(name), func(path string, err error) {
			w.f.logger.Warn("Failed to delete manifest during rollback.", "manifest", path, "error", err)
		})
	}
	w.written, w.metas = nil, nil
}
