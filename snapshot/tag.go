package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/pathfactory"
)

// TagManager pins snapshots under a name. A tag file holds a copy of the
// snapshot it pins, so the tag outlives the expiration of that snapshot.
type TagManager struct {
	fio    fileio.FileIO
	logger *slog.Logger
}

// NewTagManager creates a tag manager over a table root.
func NewTagManager(fio fileio.FileIO, logger *slog.Logger) *TagManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TagManager{fio: fio, logger: logger.With("component", "TagManager")}
}

// CreateTag pins s under name. An existing tag of the same name is an error.
func (t *TagManager) CreateTag(ctx context.Context, s *Snapshot, name string) error {
	if strings.TrimSpace(name) == "" || strings.Contains(name, "/") {
		return &core.ValidationError{Field: "tag", Value: name, Message: "tag name must be non-blank and must not contain '/'"}
	}
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode tag %s: %w", name, err)
	}
	if err := t.fio.Write(ctx, pathfactory.TagPath(name), data, false); err != nil {
		if fileio.IsExist(err) {
			return fmt.Errorf("tag %s already exists: %w", name, err)
		}
		return fmt.Errorf("failed to write tag %s: %w", name, err)
	}
	t.logger.Info("Created tag.", "tag", name, "snapshot_id", s.ID)
	return nil
}

// TagExists reports whether name is a tag.
func (t *TagManager) TagExists(ctx context.Context, name string) (bool, error) {
	return t.fio.Exists(ctx, pathfactory.TagPath(name))
}

// TaggedSnapshot returns the snapshot pinned by name, or core.ErrTagNotFound.
func (t *TagManager) TaggedSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	data, err := t.fio.Read(ctx, pathfactory.TagPath(name))
	if err != nil {
		if fileio.IsNotExist(err) {
			return nil, fmt.Errorf("tag %s: %w", name, core.ErrTagNotFound)
		}
		return nil, fmt.Errorf("failed to read tag %s: %w", name, err)
	}
	return FromJSON(data)
}

// Tags lists tag names in lexical order.
func (t *TagManager) Tags(ctx context.Context) ([]string, error) {
	files, err := t.fio.List(ctx, pathfactory.TagDir())
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	var names []string
	for _, f := range files {
		base := baseName(f.Path)
		if f.IsDir || !strings.HasPrefix(base, core.TagPrefix) {
			continue
		}
		names = append(names, strings.TrimPrefix(base, core.TagPrefix))
	}
	sort.Strings(names)
	return names, nil
}

// TaggedSnapshots returns the distinct snapshots pinned by any tag, ordered by id.
func (t *TagManager) TaggedSnapshots(ctx context.Context) ([]*Snapshot, error) {
	names, err := t.Tags(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*Snapshot, len(names))
	for _, name := range names {
		s, err := t.TaggedSnapshot(ctx, name)
		if err != nil {
			return nil, err
		}
		byID[s.ID] = s
	}
	out := make([]*Snapshot, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteTagFile removes only the tag file; data cleanup is the caller's job.
func (t *TagManager) DeleteTagFile(ctx context.Context, name string) error {
	if _, err := t.fio.Delete(ctx, pathfactory.TagPath(name), false); err != nil {
		return fmt.Errorf("failed to delete tag %s: %w", name, err)
	}
	return nil
}
