package manifest

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/INLOpen/nexuslake/stats"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testLogger    = slog.New(slog.NewTextHandler(io.Discard, nil))
	partitionType = core.RowType{{ID: 0, Name: "dt", Type: core.TypeInt}}
)

func part(v int32) core.BinaryRow { return core.EncodeRow(core.Row{v}) }

func entry(kind FileKind, partition core.BinaryRow, bucket int32, name string) ManifestEntry {
	return ManifestEntry{
		Kind:         kind,
		Partition:    partition,
		Bucket:       bucket,
		TotalBuckets: 2,
		File: &DataFileMeta{
			FileName:   name,
			FileSize:   1024,
			RowCount:   10,
			MinKey:     core.EmptyRow,
			MaxKey:     core.EmptyRow,
			KeyStats:   stats.EmptyStats,
			ValueStats: stats.EmptyStats,
		},
	}
}

func add(p int32, name string) ManifestEntry {
	return entry(KindAdd, part(p), 0, name)
}

func del(p int32, name string) ManifestEntry {
	return entry(KindDelete, part(p), 0, name)
}

func newManifestFile(t *testing.T, fio fileio.FileIO, pt core.RowType, suggested int64) *ManifestFile {
	t.Helper()
	return NewManifestFile(ManifestFileOptions{
		FileIO:            fio,
		PathFactory:       pathfactory.New([]string{"dt"}, ""),
		PartitionType:     pt,
		SuggestedFileSize: suggested,
		Logger:            testLogger,
	})
}

// writeOne writes entries into exactly one manifest file.
func writeOne(t *testing.T, mf *ManifestFile, entries ...ManifestEntry) ManifestFileMeta {
	t.Helper()
	metas, err := mf.Write(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	return metas[0]
}

// liveNames reads and merges metas and returns the sorted ADD file names.
func liveNames(t *testing.T, mf *ManifestFile, metas []ManifestFileMeta) []string {
	t.Helper()
	m := NewEntryMap()
	for _, meta := range metas {
		entries, err := mf.Read(context.Background(), meta.FileName, ReadOptions{})
		require.NoError(t, err)
		require.NoError(t, MergeInto(entries, m))
	}
	var names []string
	for _, e := range m.Values() {
		if e.Kind == KindAdd {
			names = append(names, e.File.FileName)
		}
	}
	sort.Strings(names)
	return names
}

func listManifests(t *testing.T, fio fileio.FileIO) []string {
	t.Helper()
	files, err := fio.List(context.Background(), core.ManifestDirName)
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Path)
	}
	return names
}

// faultyFileIO forwards to a real store but lets tests fail writes on demand.
type faultyFileIO struct {
	fileio.FileIO
	mock.Mock
}

func (f *faultyFileIO) Write(ctx context.Context, path string, data []byte, overwrite bool) error {
	args := f.Called(path)
	if err := args.Error(0); err != nil {
		return err
	}
	return f.FileIO.Write(ctx, path, data, overwrite)
}
