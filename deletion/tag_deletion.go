package deletion

import (
	"context"

	"github.com/INLOpen/nexuslake/snapshot"
)

// TagDeletion cleans up the snapshot of a deleted tag once no snapshot or
// other tag needs it.
type TagDeletion struct {
	*Engine
}

// NewTagDeletion creates the cleaner used when a tag is deleted.
func NewTagDeletion(opts Options) *TagDeletion {
	return &TagDeletion{Engine: newEngine(opts, "TagDeletion")}
}

// CleanUnusedDataFiles deletes every live data file of the tagged snapshot
// that skipper does not protect. An unreadable snapshot deletes nothing.
func (d *TagDeletion) CleanUnusedDataFiles(ctx context.Context, tagged *snapshot.Snapshot, skipper Skipper) error {
	entries, ok, err := d.TryReadDataManifestEntries(ctx, tagged)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Warn("Skipping data file cleanup of tagged snapshot with unreadable manifests.", "snapshot_id", tagged.ID)
		return nil
	}
	for i := range entries {
		if skipper(&entries[i]) {
			continue
		}
		if err := d.deleteDataFile(ctx, &entries[i], tagged.ID); err != nil {
			return err
		}
	}
	return nil
}

// CleanUnusedManifests deletes the manifests of the tagged snapshot. Changelog
// manifests are kept: they belong to the snapshot, not the tag.
func (d *TagDeletion) CleanUnusedManifests(ctx context.Context, tagged *snapshot.Snapshot, skippingSet map[string]struct{}) error {
	return d.Engine.CleanUnusedManifests(ctx, tagged, skippingSet, false)
}
