package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/snapshot"
)

// Mode selects which manifests of a snapshot a scan reads.
type Mode int

const (
	// ModeAll reads base and delta manifests: the full live file set.
	ModeAll Mode = iota
	// ModeDelta reads only the files changed by the snapshot's commit.
	ModeDelta
	// ModeChangelog reads the changelog files produced by the commit.
	ModeChangelog
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeDelta:
		return "delta"
	case ModeChangelog:
		return "changelog"
	default:
		return "unknown"
	}
}

// ParseMode maps a CLI or config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ModeAll, nil
	case "delta":
		return ModeDelta, nil
	case "changelog":
		return ModeChangelog, nil
	default:
		return ModeAll, &core.ValidationError{Field: "scan_mode", Value: s, Message: "expected all, delta or changelog"}
	}
}

// manifestsOf reads the manifest metas that mode selects from s.
func manifestsOf(ctx context.Context, s *snapshot.Snapshot, mode Mode, ml *manifest.ManifestList) ([]manifest.ManifestFileMeta, error) {
	switch mode {
	case ModeAll:
		return s.DataManifests(ctx, ml)
	case ModeDelta:
		return s.DeltaManifests(ctx, ml)
	case ModeChangelog:
		if s.Version <= core.LegacySnapshotVersion {
			// Legacy snapshots kept changelog files as extra files of delta files.
			if s.CommitKind == snapshot.CommitAppend {
				return s.DeltaManifests(ctx, ml)
			}
			return nil, &core.ScanModeError{CommitKind: string(s.CommitKind)}
		}
		return s.ChangelogManifests(ctx, ml)
	default:
		return nil, fmt.Errorf("unknown scan mode %d", mode)
	}
}
