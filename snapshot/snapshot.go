// Package snapshot reads and writes the immutable snapshot files that name the
// manifest lists of each table version, and the tags that pin snapshots.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/manifest"
)

// CommitKind says what kind of commit produced a snapshot.
type CommitKind string

const (
	CommitAppend    CommitKind = "APPEND"
	CommitCompact   CommitKind = "COMPACT"
	CommitOverwrite CommitKind = "OVERWRITE"
)

// Snapshot is one table version. It is never mutated after commit.
type Snapshot struct {
	Version               int32      `json:"version"`
	ID                    int64      `json:"id"`
	SchemaID              int64      `json:"schemaId"`
	BaseManifestList      string     `json:"baseManifestList"`
	DeltaManifestList     string     `json:"deltaManifestList"`
	ChangelogManifestList *string    `json:"changelogManifestList,omitempty"`
	IndexManifest         *string    `json:"indexManifest,omitempty"`
	CommitUser            string     `json:"commitUser"`
	CommitIdentifier      int64      `json:"commitIdentifier"`
	CommitKind            CommitKind `json:"commitKind"`
	TimeMillis            int64      `json:"timeMillis"`
	TotalRecordCount      int64      `json:"totalRecordCount"`
	DeltaRecordCount      int64      `json:"deltaRecordCount"`
	ChangelogRecordCount  *int64     `json:"changelogRecordCount,omitempty"`
	Watermark             *int64     `json:"watermark,omitempty"`
}

// FromJSON decodes a snapshot file.
func FromJSON(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version == 0 {
		s.Version = core.LegacySnapshotVersion
	}
	return &s, nil
}

// JSON encodes the snapshot for persistence.
func (s *Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ChangelogList returns the changelog manifest list name, or "" when absent.
func (s *Snapshot) ChangelogList() string {
	if s.ChangelogManifestList == nil {
		return ""
	}
	return *s.ChangelogManifestList
}

// IndexManifestName returns the index manifest name, or "" when absent.
func (s *Snapshot) IndexManifestName() string {
	if s.IndexManifest == nil {
		return ""
	}
	return *s.IndexManifest
}

// DataManifests returns base followed by delta manifests.
func (s *Snapshot) DataManifests(ctx context.Context, ml *manifest.ManifestList) ([]manifest.ManifestFileMeta, error) {
	base, err := ml.Read(ctx, s.BaseManifestList)
	if err != nil {
		return nil, err
	}
	delta, err := ml.Read(ctx, s.DeltaManifestList)
	if err != nil {
		return nil, err
	}
	return append(base, delta...), nil
}

// DeltaManifests returns the manifests added by this snapshot's commit.
func (s *Snapshot) DeltaManifests(ctx context.Context, ml *manifest.ManifestList) ([]manifest.ManifestFileMeta, error) {
	return ml.Read(ctx, s.DeltaManifestList)
}

// ChangelogManifests returns the changelog manifests, empty when the snapshot has none.
func (s *Snapshot) ChangelogManifests(ctx context.Context, ml *manifest.ManifestList) ([]manifest.ManifestFileMeta, error) {
	if s.ChangelogManifestList == nil {
		return nil, nil
	}
	return ml.Read(ctx, *s.ChangelogManifestList)
}
