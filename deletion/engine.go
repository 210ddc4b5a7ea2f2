// Package deletion removes data files, manifests and directories that no
// retained snapshot or tag references any more.
package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/index"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/INLOpen/nexuslake/snapshot"
	"github.com/RoaringBitmap/roaring"
)

// Skipper reports whether a data file must survive the current pass.
type Skipper func(e *manifest.ManifestEntry) bool

// SkipNone deletes every candidate.
func SkipNone(*manifest.ManifestEntry) bool { return false }

// Options configures an Engine.
type Options struct {
	FileIO       fileio.FileIO
	PathFactory  *pathfactory.Factory
	ManifestFile *manifest.ManifestFile
	ManifestList *manifest.ManifestList
	Index        *index.Handler
	Hooks        hooks.HookManager
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Engine holds what snapshot and tag deletion share. One Engine serves one GC
// pass at a time: its bucket accumulator is not safe for concurrent passes.
type Engine struct {
	fio          fileio.FileIO
	pathFactory  *pathfactory.Factory
	manifestFile *manifest.ManifestFile
	manifestList *manifest.ManifestList
	index        *index.Handler
	hooks        hooks.HookManager
	metrics      *metrics.Metrics
	logger       *slog.Logger

	// deletionBuckets records every bucket that lost a data file in this pass.
	deletionBuckets map[core.BinaryRow]*roaring.Bitmap
}

func newEngine(opts Options, component string) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		fio:             opts.FileIO,
		pathFactory:     opts.PathFactory,
		manifestFile:    opts.ManifestFile,
		manifestList:    opts.ManifestList,
		index:           opts.Index,
		hooks:           opts.Hooks,
		metrics:         opts.Metrics,
		logger:          logger.With("component", component),
		deletionBuckets: make(map[core.BinaryRow]*roaring.Bitmap),
	}
}

// RecordDeletionBucket marks a bucket for directory cleanup.
func (e *Engine) RecordDeletionBucket(partition core.BinaryRow, bucket int32) {
	bm, ok := e.deletionBuckets[partition]
	if !ok {
		bm = roaring.New()
		e.deletionBuckets[partition] = bm
	}
	bm.Add(uint32(bucket))
}

// TryReadManifestList reads a manifest list, treating any failure as an empty
// list: an earlier interrupted pass may already have deleted it.
func (e *Engine) TryReadManifestList(ctx context.Context, name string) []manifest.ManifestFileMeta {
	metas, err := e.manifestList.Read(ctx, name)
	if err != nil {
		e.logger.Warn("Failed to read manifest list, skipping.", "manifest_list", name, "error", err)
		return nil
	}
	return metas
}

// TryReadDataManifestEntries returns the merged live entries of a snapshot.
// Unreadable lists and manifests are skipped. ok is false when anything was
// skipped, since the result is then incomplete.
func (e *Engine) TryReadDataManifestEntries(ctx context.Context, s *snapshot.Snapshot) (entries []manifest.ManifestEntry, ok bool, err error) {
	ok = true
	var metas []manifest.ManifestFileMeta
	for _, list := range []string{s.BaseManifestList, s.DeltaManifestList} {
		m, rerr := e.manifestList.Read(ctx, list)
		if rerr != nil {
			e.logger.Warn("Failed to read manifest list, skipping.", "manifest_list", list, "error", rerr)
			ok = false
			continue
		}
		metas = append(metas, m...)
	}
	var all []manifest.ManifestEntry
	for _, meta := range metas {
		read, rerr := e.manifestFile.Read(ctx, meta.FileName, manifest.ReadOptions{})
		if rerr != nil {
			if core.IsCorruptionError(rerr) {
				return nil, false, rerr
			}
			e.logger.Warn("Failed to read manifest, skipping.", "manifest", meta.FileName, "error", rerr)
			ok = false
			continue
		}
		all = append(all, read...)
	}
	merged, err := manifest.MergeEntries(all)
	if err != nil {
		return nil, false, err
	}
	return merged, ok, nil
}

// CleanUnusedManifests deletes the manifest lists of s, the manifests they
// name and the index manifest with its index files, except names already in
// skippingSet. Every deleted name is added to skippingSet.
func (e *Engine) CleanUnusedManifests(ctx context.Context, s *snapshot.Snapshot, skippingSet map[string]struct{}, deleteChangelog bool) error {
	if err := e.cleanUnusedManifestList(ctx, s.BaseManifestList, skippingSet); err != nil {
		return err
	}
	if err := e.cleanUnusedManifestList(ctx, s.DeltaManifestList, skippingSet); err != nil {
		return err
	}
	if deleteChangelog && s.ChangelogList() != "" {
		if err := e.cleanUnusedManifestList(ctx, s.ChangelogList(), skippingSet); err != nil {
			return err
		}
	}
	return e.cleanUnusedIndexManifests(ctx, s, skippingSet)
}

func (e *Engine) cleanUnusedManifestList(ctx context.Context, list string, skippingSet map[string]struct{}) error {
	for _, meta := range e.TryReadManifestList(ctx, list) {
		if _, skip := skippingSet[meta.FileName]; skip {
			continue
		}
		if err := e.manifestFile.Delete(ctx, meta.FileName); err != nil {
			return err
		}
		skippingSet[meta.FileName] = struct{}{}
	}
	if _, skip := skippingSet[list]; skip {
		return nil
	}
	if err := e.manifestList.Delete(ctx, list); err != nil {
		return err
	}
	e.metrics.IncManifestsDeleted()
	skippingSet[list] = struct{}{}
	return nil
}

func (e *Engine) cleanUnusedIndexManifests(ctx context.Context, s *snapshot.Snapshot, skippingSet map[string]struct{}) error {
	name := s.IndexManifestName()
	if name == "" || e.index == nil {
		return nil
	}
	exists, err := e.index.ExistsManifest(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	entries, err := e.index.ReadManifest(ctx, name)
	if err != nil {
		e.logger.Warn("Failed to read index manifest, skipping its index files.", "index_manifest", name, "error", err)
		entries = nil
	}
	for _, entry := range entries {
		file := entry.IndexFile.FileName
		if _, skip := skippingSet[file]; skip {
			continue
		}
		if err := e.index.DeleteIndexFile(ctx, file); err != nil {
			return err
		}
		skippingSet[file] = struct{}{}
	}
	if _, skip := skippingSet[name]; skip {
		return nil
	}
	if err := e.index.DeleteManifest(ctx, name); err != nil {
		return err
	}
	e.metrics.IncManifestsDeleted()
	skippingSet[name] = struct{}{}
	return nil
}

// ManifestSkippingSet collects every list, manifest, index manifest and index
// file name referenced by the retained snapshots. Reads here are strict: a
// smaller skipping set would delete objects still in use.
func (e *Engine) ManifestSkippingSet(ctx context.Context, retained []*snapshot.Snapshot) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for _, s := range retained {
		set[s.BaseManifestList] = struct{}{}
		set[s.DeltaManifestList] = struct{}{}
		metas, err := s.DataManifests(ctx, e.manifestList)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifests of retained snapshot %d: %w", s.ID, err)
		}
		for _, m := range metas {
			set[m.FileName] = struct{}{}
		}
		name := s.IndexManifestName()
		if name == "" || e.index == nil {
			continue
		}
		set[name] = struct{}{}
		entries, err := e.index.ReadManifest(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read index manifest of retained snapshot %d: %w", s.ID, err)
		}
		for _, entry := range entries {
			set[entry.IndexFile.FileName] = struct{}{}
		}
	}
	return set, nil
}

type fileKey struct {
	partition core.BinaryRow
	bucket    int32
	name      string
}

// DataFileSkipper protects every data file live in one of the given snapshots.
func (e *Engine) DataFileSkipper(ctx context.Context, retained []*snapshot.Snapshot) (Skipper, error) {
	live := make(map[fileKey]struct{})
	for _, s := range retained {
		entries, ok, err := e.TryReadDataManifestEntries(ctx, s)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("cannot protect data files of snapshot %d: its manifests are unreadable", s.ID)
		}
		for _, en := range entries {
			live[fileKey{en.Partition, en.Bucket, en.File.FileName}] = struct{}{}
		}
	}
	return func(en *manifest.ManifestEntry) bool {
		_, ok := live[fileKey{en.Partition, en.Bucket, en.File.FileName}]
		return ok
	}, nil
}

// deleteDataFile removes a data file with its extra files. A pre-delete hook
// may veto the deletion, in which case the file is kept.
func (e *Engine) deleteDataFile(ctx context.Context, en *manifest.ManifestEntry, snapshotID int64) error {
	path, err := e.pathFactory.DataFilePath(en.Partition, en.Bucket, en.File.FileName)
	if err != nil {
		return err
	}
	if err := hooks.Trigger(ctx, e.hooks, hooks.NewPreDataFileDeleteEvent(hooks.PreDataFileDeletePayload{
		Path:       path,
		Partition:  en.Partition.String(),
		Bucket:     en.Bucket,
		SnapshotID: snapshotID,
	})); err != nil {
		e.logger.Info("Data file deletion vetoed by hook.", "path", path, "error", err)
		return nil
	}
	if _, err := e.fio.Delete(ctx, path, false); err != nil {
		return fmt.Errorf("failed to delete data file %s: %w", path, err)
	}
	for _, extra := range en.File.ExtraFiles {
		extraPath, err := e.pathFactory.DataFilePath(en.Partition, en.Bucket, extra)
		if err != nil {
			return err
		}
		if _, err := e.fio.Delete(ctx, extraPath, false); err != nil {
			return fmt.Errorf("failed to delete extra file %s: %w", extraPath, err)
		}
	}
	e.metrics.IncDataFilesDeleted()
	e.RecordDeletionBucket(en.Partition, en.Bucket)
	return nil
}

// CleanDataDirectories tries to remove the bucket directories recorded in this
// pass and then their partition directories, deepest level first. Directories
// that are not empty stay. The accumulator is reset afterwards.
func (e *Engine) CleanDataDirectories(ctx context.Context) {
	if len(e.deletionBuckets) == 0 {
		return
	}
	byLevel := make(map[int]map[string]struct{})
	maxLevel := -1
	for partition, buckets := range e.deletionBuckets {
		it := buckets.Iterator()
		for it.HasNext() {
			path, err := e.pathFactory.BucketPath(partition, int32(it.Next()))
			if err != nil {
				e.logger.Warn("Failed to resolve bucket directory.", "partition", partition.String(), "error", err)
				continue
			}
			e.tryDeleteEmptyDirectory(ctx, path)
		}

		levels, err := e.pathFactory.HierarchicalPartitionPaths(partition)
		if err != nil {
			e.logger.Warn("Failed to resolve partition directories.", "partition", partition.String(), "error", err)
			continue
		}
		if len(levels) == 0 {
			continue
		}
		if !e.tryDeleteEmptyDirectory(ctx, levels[len(levels)-1]) {
			continue
		}
		for level := 0; level < len(levels)-1; level++ {
			if byLevel[level] == nil {
				byLevel[level] = make(map[string]struct{})
			}
			byLevel[level][levels[level]] = struct{}{}
			if level > maxLevel {
				maxLevel = level
			}
		}
	}
	for level := maxLevel; level >= 0; level-- {
		paths := make([]string, 0, len(byLevel[level]))
		for p := range byLevel[level] {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			e.tryDeleteEmptyDirectory(ctx, p)
		}
	}
	e.deletionBuckets = make(map[core.BinaryRow]*roaring.Bitmap)
}

func (e *Engine) tryDeleteEmptyDirectory(ctx context.Context, path string) bool {
	deleted, err := e.fio.Delete(ctx, path, false)
	if err != nil {
		e.logger.Debug("Failed to delete directory, leaving it in place.", "path", path, "error", err)
		return false
	}
	if deleted {
		e.metrics.IncDirectoriesDeleted()
	}
	return deleted
}
