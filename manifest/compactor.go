package manifest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/predicate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// CompactorOptions configures a Compactor.
type CompactorOptions struct {
	ManifestFile *ManifestFile
	// SuggestedFileSize closes a minor compaction batch and bounds base files.
	SuggestedFileSize int64
	// MinFileCount is the smallest trailing batch that minor compaction rewrites.
	MinFileCount int
	// FullCompactionThreshold is the delta size at which full compaction runs.
	FullCompactionThreshold int64
	Tracer                  trace.Tracer
	Metrics                 *metrics.Metrics
	Hooks                   hooks.HookManager
	Logger                  *slog.Logger
}

// Compactor bounds the number and shape of manifest files in a manifest list.
type Compactor struct {
	manifestFile  *ManifestFile
	partitionType core.RowType
	suggestedSize int64
	minFileCount  int
	fullTrigger   int64
	tracer        trace.Tracer
	metrics       *metrics.Metrics
	hooks         hooks.HookManager
	logger        *slog.Logger
}

// NewCompactor creates a Compactor.
func NewCompactor(opts CompactorOptions) *Compactor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("manifest")
	}
	return &Compactor{
		manifestFile:  opts.ManifestFile,
		partitionType: opts.ManifestFile.PartitionType(),
		suggestedSize: opts.SuggestedFileSize,
		minFileCount:  opts.MinFileCount,
		fullTrigger:   opts.FullCompactionThreshold,
		tracer:        tracer,
		metrics:       opts.Metrics,
		hooks:         opts.Hooks,
		logger:        logger.With("component", "ManifestCompactor"),
	}
}

// Merge returns a list equivalent to input with fewer, larger files. Full
// compaction is tried first and minor compaction is the fallback. If anything
// fails, every manifest written by this call is deleted before the error is
// returned.
func (c *Compactor) Merge(ctx context.Context, input []ManifestFileMeta) (result []ManifestFileMeta, err error) {
	ctx, span := c.tracer.Start(ctx, "Compactor.Merge")
	defer span.End()
	span.SetAttributes(attribute.Int("manifest.input_files", len(input)))

	var newMetas []ManifestFileMeta
	defer func() {
		if err == nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "manifest_merge_failed")
		cleanupCtx := context.WithoutCancel(ctx)
		for _, m := range newMetas {
			if derr := c.manifestFile.Delete(cleanupCtx, m.FileName); derr != nil {
				c.logger.Warn("Failed to delete manifest during merge rollback.", "manifest", m.FileName, "error", derr)
			}
		}
	}()

	kind := "full"
	result, ok, err := c.tryFullCompaction(ctx, input, &newMetas)
	if err != nil {
		return nil, err
	}
	if !ok {
		kind = "minor"
		if result, err = c.tryMinorCompaction(ctx, input, &newMetas); err != nil {
			return nil, err
		}
	}

	if len(newMetas) > 0 {
		c.metrics.IncCompaction(kind)
	}
	span.SetAttributes(
		attribute.String("manifest.compaction", kind),
		attribute.Int("manifest.output_files", len(result)),
		attribute.Int("manifest.new_files", len(newMetas)),
	)
	_ = hooks.Trigger(ctx, c.hooks, hooks.NewPostManifestMergeEvent(hooks.PostManifestMergePayload{
		InputFiles:  FileNames(input),
		OutputFiles: FileNames(result),
		NewFiles:    FileNames(newMetas),
		FullCompact: kind == "full",
	}))
	return result, nil
}

func (c *Compactor) tryMinorCompaction(ctx context.Context, input []ManifestFileMeta, newMetas *[]ManifestFileMeta) ([]ManifestFileMeta, error) {
	var result, candidates []ManifestFileMeta
	var totalSize int64
	for _, m := range input {
		totalSize += m.FileSize
		candidates = append(candidates, m)
		if totalSize >= c.suggestedSize {
			merged, err := c.mergeCandidates(ctx, candidates, newMetas)
			if err != nil {
				return nil, err
			}
			result = append(result, merged...)
			candidates = nil
			totalSize = 0
		}
	}

	if len(candidates) >= c.minFileCount {
		merged, err := c.mergeCandidates(ctx, candidates, newMetas)
		if err != nil {
			return nil, err
		}
		result = append(result, merged...)
	} else {
		result = append(result, candidates...)
	}
	return result, nil
}

func (c *Compactor) mergeCandidates(ctx context.Context, candidates []ManifestFileMeta, newMetas *[]ManifestFileMeta) ([]ManifestFileMeta, error) {
	if len(candidates) == 1 {
		return candidates, nil
	}
	merged := NewEntryMap()
	if err := c.readAndMerge(ctx, candidates, merged); err != nil {
		return nil, err
	}
	if merged.Len() == 0 {
		return nil, nil
	}
	written, err := c.manifestFile.Write(ctx, merged.Values())
	if err != nil {
		return nil, err
	}
	*newMetas = append(*newMetas, written...)
	return written, nil
}

// readAndMerge folds the entries of metas, in order, into m.
func (c *Compactor) readAndMerge(ctx context.Context, metas []ManifestFileMeta, m *EntryMap) error {
	for _, meta := range metas {
		entries, err := c.manifestFile.Read(ctx, meta.FileName, ReadOptions{})
		if err != nil {
			return err
		}
		if err := MergeInto(entries, m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compactor) tryFullCompaction(ctx context.Context, input []ManifestFileMeta, newMetas *[]ManifestFileMeta) ([]ManifestFileMeta, bool, error) {
	// Base is the leading run of large files without deletions.
	i := 0
	for ; i < len(input); i++ {
		if input[i].NumDeletedFiles != 0 || input[i].FileSize < c.suggestedSize {
			break
		}
	}
	base, delta := input[:i], input[i:]
	var deltaSize int64
	for _, m := range delta {
		deltaSize += m.FileSize
	}
	if deltaSize < c.fullTrigger {
		return nil, false, nil
	}

	c.logger.Info("Starting full manifest compaction.", "base_files", len(base), "delta_files", len(delta), "delta_size", deltaSize)

	deltaMerged := NewEntryMap()
	if err := c.readAndMerge(ctx, delta, deltaMerged); err != nil {
		return nil, false, err
	}

	var result []ManifestFileMeta
	j := 0
	if c.partitionType.FieldCount() > 0 {
		pred, err := predicate.PartitionsToPredicate(c.partitionType, deletePartitions(deltaMerged))
		if err != nil {
			return nil, false, err
		}
		if pred == nil {
			// No DELETE in delta: base needs no rewrite.
			j = len(base)
			result = append(result, base...)
		} else {
			for ; j < len(base); j++ {
				fields, err := base[j].PartitionStats.Fields()
				if err != nil {
					return nil, false, fmt.Errorf("failed to decode partition stats of %s: %w", base[j].FileName, err)
				}
				if pred.TestStats(base[j].NumEntries(), fields) {
					break
				}
				result = append(result, base[j])
			}
		}
	}

	deleteIDs := make(map[Identifier]struct{})
	for _, e := range deltaMerged.Values() {
		if e.Kind == KindDelete {
			deleteIDs[e.Identifier()] = struct{}{}
		}
	}

	// Open base files one by one; files before the first one that a DELETE
	// touches pass through untouched.
	var mergedEntries []ManifestEntry
	for j < len(base) {
		file := base[j]
		j++
		entries, err := c.manifestFile.Read(ctx, file.FileName, ReadOptions{})
		if err != nil {
			return nil, false, err
		}
		contains := false
		for _, e := range entries {
			if e.Kind != KindAdd {
				return nil, false, &core.CorruptionError{FileName: file.FileName, Message: "base manifest contains a DELETE entry"}
			}
			if _, ok := deleteIDs[e.Identifier()]; ok {
				delete(deleteIDs, e.Identifier())
				contains = true
			} else {
				mergedEntries = append(mergedEntries, e)
			}
		}
		if contains {
			break
		}
		mergedEntries = mergedEntries[:0]
		result = append(result, file)
	}

	w := c.manifestFile.NewRollingWriter()
	written, err := c.writeFull(ctx, w, mergedEntries, base[j:], deltaMerged, deleteIDs)
	if err != nil {
		w.Abort(ctx)
		return nil, false, err
	}
	*newMetas = append(*newMetas, written...)
	return append(result, written...), true, nil
}

func (c *Compactor) writeFull(ctx context.Context, w *RollingWriter, mergedEntries []ManifestEntry, rest []ManifestFileMeta, deltaMerged *EntryMap, deleteIDs map[Identifier]struct{}) ([]ManifestFileMeta, error) {
	for _, e := range mergedEntries {
		if err := w.Write(ctx, e); err != nil {
			return nil, err
		}
	}
	for _, file := range rest {
		entries, err := c.manifestFile.Read(ctx, file.FileName, ReadOptions{})
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Kind != KindAdd {
				return nil, &core.CorruptionError{FileName: file.FileName, Message: "base manifest contains a DELETE entry"}
			}
			if _, ok := deleteIDs[e.Identifier()]; ok {
				delete(deleteIDs, e.Identifier())
				continue
			}
			if err := w.Write(ctx, e); err != nil {
				return nil, err
			}
		}
	}
	// deleteIDs now holds only DELETEs no base file resolved. They are kept so
	// a later merge can still cancel them.
	for _, e := range deltaMerged.Values() {
		if _, unresolved := deleteIDs[e.Identifier()]; e.Kind == KindDelete && !unresolved {
			continue
		}
		if err := w.Write(ctx, e); err != nil {
			return nil, err
		}
	}
	return w.Close(ctx)
}

func deletePartitions(m *EntryMap) []core.BinaryRow {
	seen := make(map[core.BinaryRow]struct{})
	var out []core.BinaryRow
	for _, e := range m.Values() {
		if e.Kind != KindDelete {
			continue
		}
		if _, ok := seen[e.Partition]; ok {
			continue
		}
		seen[e.Partition] = struct{}{}
		out = append(out, e.Partition)
	}
	return out
}
