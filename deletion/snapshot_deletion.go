package deletion

import (
	"context"

	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/snapshot"
)

// SnapshotDeletion cleans up after expired snapshots.
type SnapshotDeletion struct {
	*Engine
}

// NewSnapshotDeletion creates the cleaner used by snapshot expiration.
func NewSnapshotDeletion(opts Options) *SnapshotDeletion {
	return &SnapshotDeletion{Engine: newEngine(opts, "SnapshotDeletion")}
}

// CleanUnusedDataFiles deletes the files that the commit of s removed, unless
// skipper protects them. A file deleted and then re-added within the same
// commit survives.
func (d *SnapshotDeletion) CleanUnusedDataFiles(ctx context.Context, s *snapshot.Snapshot, skipper Skipper) error {
	type candidate struct {
		entry   manifest.ManifestEntry
		removed bool
	}
	var order []string
	candidates := make(map[string]*candidate)

	for _, meta := range d.TryReadManifestList(ctx, s.DeltaManifestList) {
		entries, err := d.manifestFile.Read(ctx, meta.FileName, manifest.ReadOptions{})
		if err != nil {
			d.logger.Warn("Failed to read manifest, skipping.", "manifest", meta.FileName, "error", err)
			continue
		}
		for _, en := range entries {
			path, err := d.pathFactory.DataFilePath(en.Partition, en.Bucket, en.File.FileName)
			if err != nil {
				return err
			}
			switch en.Kind {
			case manifest.KindAdd:
				if c, ok := candidates[path]; ok {
					c.removed = true
				}
			case manifest.KindDelete:
				if c, ok := candidates[path]; ok {
					c.entry, c.removed = en, false
					continue
				}
				candidates[path] = &candidate{entry: en}
				order = append(order, path)
			}
		}
	}

	for _, path := range order {
		c := candidates[path]
		if c.removed || skipper(&c.entry) {
			continue
		}
		if err := d.deleteDataFile(ctx, &c.entry, s.ID); err != nil {
			return err
		}
	}
	return nil
}

// CleanUnusedManifests deletes the manifests of s including its changelog.
func (d *SnapshotDeletion) CleanUnusedManifests(ctx context.Context, s *snapshot.Snapshot, skippingSet map[string]struct{}) error {
	return d.Engine.CleanUnusedManifests(ctx, s, skippingSet, true)
}
