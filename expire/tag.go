package expire

import (
	"context"
	"fmt"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/deletion"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/snapshot"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DeleteTag removes a tag. While the tagged snapshot still exists only the tag
// file goes. Once the snapshot has expired, the tag was the last thing keeping
// its files alive, so they are collected against the neighbouring tags and the
// earliest snapshot.
func (e *Expirer) DeleteTag(ctx context.Context, name string) (err error) {
	ctx, span := e.tracer.Start(ctx, "Expirer.DeleteTag")
	defer span.End()
	span.SetAttributes(attribute.String("tag.name", name))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tag deletion failed")
		}
	}()

	if e.tags == nil {
		return &core.ValidationError{Field: "tags", Value: "nil", Message: "a tag manager is required to delete tags"}
	}
	tagged, err := e.tags.TaggedSnapshot(ctx, name)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64("snapshot.id", tagged.ID))

	live, err := e.snapshots.Exists(ctx, tagged.ID)
	if err != nil {
		return err
	}
	if err := e.tags.DeleteTagFile(ctx, name); err != nil {
		return err
	}

	collected := false
	if !live {
		collected, err = e.collectTaggedSnapshot(ctx, tagged)
		if err != nil {
			return fmt.Errorf("tag %s deleted but its files were not collected: %w", name, err)
		}
	}
	e.logger.Info("Tag deleted.", "tag", name, "snapshot_id", tagged.ID, "collected", collected)
	_ = hooks.Trigger(ctx, e.hooks, hooks.NewPostTagDeleteEvent(hooks.PostTagDeletePayload{
		TagName:    name,
		SnapshotID: tagged.ID,
		Collected:  collected,
	}))
	return nil
}

// collectTaggedSnapshot deletes the files of an expired snapshot that lost its
// tag. It reports false when another tag still pins the same snapshot.
func (e *Expirer) collectTaggedSnapshot(ctx context.Context, tagged *snapshot.Snapshot) (bool, error) {
	remaining, err := e.tags.TaggedSnapshots(ctx)
	if err != nil {
		return false, err
	}
	var left *snapshot.Snapshot
	var right *snapshot.Snapshot
	for _, s := range remaining {
		if s.ID == tagged.ID {
			return false, nil
		}
		if s.ID < tagged.ID {
			left = s
		} else if right == nil {
			right = s
		}
	}
	earliest, err := e.snapshots.Earliest(ctx)
	if err != nil {
		return false, err
	}
	if earliest != nil && (right == nil || earliest.ID < right.ID) {
		right = earliest
	}
	var neighbours []*snapshot.Snapshot
	for _, s := range []*snapshot.Snapshot{left, right} {
		if s != nil {
			neighbours = append(neighbours, s)
		}
	}

	gc := deletion.NewTagDeletion(e.gc)
	skipper, err := gc.DataFileSkipper(ctx, neighbours)
	if err != nil {
		return false, err
	}
	if err := gc.CleanUnusedDataFiles(ctx, tagged, skipper); err != nil {
		return false, err
	}
	gc.CleanDataDirectories(ctx)

	skippingSet, err := gc.ManifestSkippingSet(ctx, neighbours)
	if err != nil {
		return false, err
	}
	if err := gc.CleanUnusedManifests(ctx, tagged, skippingSet); err != nil {
		return false, err
	}
	return true, nil
}
