package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/pathfactory"
)

// Manager locates and persists snapshot files and the LATEST/EARLIEST hints.
type Manager struct {
	fio    fileio.FileIO
	logger *slog.Logger
}

// NewManager creates a snapshot manager over a table root.
func NewManager(fio fileio.FileIO, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{fio: fio, logger: logger.With("component", "SnapshotManager")}
}

// Snapshot reads one snapshot. A missing file yields core.ErrSnapshotNotFound.
func (m *Manager) Snapshot(ctx context.Context, id int64) (*Snapshot, error) {
	data, err := m.fio.Read(ctx, pathfactory.SnapshotPath(id))
	if err != nil {
		if fileio.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %d: %w", id, core.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to read snapshot %d: %w", id, err)
	}
	return FromJSON(data)
}

// Exists reports whether a snapshot file is present.
func (m *Manager) Exists(ctx context.Context, id int64) (bool, error) {
	return m.fio.Exists(ctx, pathfactory.SnapshotPath(id))
}

// LatestID returns the newest snapshot id. ok is false for an empty table.
func (m *Manager) LatestID(ctx context.Context) (id int64, ok bool, err error) {
	if hint, found := m.readHint(ctx, pathfactory.LatestHintPath()); found && hint > 0 {
		// The hint is advisory: trust it only if no newer snapshot follows.
		next, err := m.Exists(ctx, hint+1)
		if err != nil {
			return 0, false, err
		}
		if !next {
			if exists, err := m.Exists(ctx, hint); err == nil && exists {
				return hint, true, nil
			}
		}
	}
	return m.findByListing(ctx, func(a, b int64) bool { return a > b })
}

// EarliestID returns the oldest retained snapshot id. ok is false for an empty table.
func (m *Manager) EarliestID(ctx context.Context) (id int64, ok bool, err error) {
	if hint, found := m.readHint(ctx, pathfactory.EarliestHintPath()); found {
		exists, err := m.Exists(ctx, hint)
		if err != nil {
			return 0, false, err
		}
		if exists {
			return hint, true, nil
		}
	}
	return m.findByListing(ctx, func(a, b int64) bool { return a < b })
}

// Latest returns the newest snapshot, or nil for an empty table.
func (m *Manager) Latest(ctx context.Context) (*Snapshot, error) {
	id, ok, err := m.LatestID(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return m.Snapshot(ctx, id)
}

// Earliest returns the oldest retained snapshot, or nil for an empty table.
func (m *Manager) Earliest(ctx context.Context) (*Snapshot, error) {
	id, ok, err := m.EarliestID(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return m.Snapshot(ctx, id)
}

// Commit writes a new snapshot file and advances the LATEST hint. Writing an id
// that already exists fails, which is how a lost commit race surfaces.
func (m *Manager) Commit(ctx context.Context, s *Snapshot) error {
	if s.Version == 0 {
		s.Version = core.SnapshotVersion
	}
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %d: %w", s.ID, err)
	}
	if err := m.fio.Write(ctx, pathfactory.SnapshotPath(s.ID), data, false); err != nil {
		return fmt.Errorf("failed to commit snapshot %d: %w", s.ID, err)
	}
	if err := m.writeHint(ctx, pathfactory.LatestHintPath(), s.ID); err != nil {
		// The snapshot is durable; a stale hint is repaired by listing.
		m.logger.Warn("Failed to update LATEST hint.", "snapshot_id", s.ID, "error", err)
	}
	return nil
}

// DeleteSnapshot removes one snapshot file.
func (m *Manager) DeleteSnapshot(ctx context.Context, id int64) error {
	if _, err := m.fio.Delete(ctx, pathfactory.SnapshotPath(id), false); err != nil {
		return fmt.Errorf("failed to delete snapshot %d: %w", id, err)
	}
	return nil
}

// CommitEarliestHint records the oldest retained snapshot id.
func (m *Manager) CommitEarliestHint(ctx context.Context, id int64) error {
	return m.writeHint(ctx, pathfactory.EarliestHintPath(), id)
}

// SnapshotIDs lists every snapshot id on storage in ascending order.
func (m *Manager) SnapshotIDs(ctx context.Context) ([]int64, error) {
	files, err := m.fio.List(ctx, pathfactory.SnapshotDir())
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var ids []int64
	for _, f := range files {
		if f.IsDir {
			continue
		}
		if id, ok := pathfactory.ParseSnapshotID(baseName(f.Path)); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Snapshots reads every snapshot in ascending id order. Snapshots removed by a
// concurrent expiration between listing and reading are skipped.
func (m *Manager) Snapshots(ctx context.Context) ([]*Snapshot, error) {
	ids, err := m.SnapshotIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		s, err := m.Snapshot(ctx, id)
		if err != nil {
			if errors.Is(err, core.ErrSnapshotNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Manager) findByListing(ctx context.Context, better func(a, b int64) bool) (int64, bool, error) {
	ids, err := m.SnapshotIDs(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if better(id, best) {
			best = id
		}
	}
	return best, true, nil
}

func (m *Manager) readHint(ctx context.Context, path string) (int64, bool) {
	data, err := m.fio.Read(ctx, path)
	if err != nil {
		if !fileio.IsNotExist(err) {
			m.logger.Debug("Failed to read snapshot hint.", "hint", path, "error", err)
		}
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		m.logger.Warn("Ignoring malformed snapshot hint.", "hint", path, "error", err)
		return 0, false
	}
	return id, true
}

func (m *Manager) writeHint(ctx context.Context, path string, id int64) error {
	return m.fio.Write(ctx, path, []byte(strconv.FormatInt(id, 10)), true)
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
