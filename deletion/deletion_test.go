package deletion

import (
	"context"
	"errors"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/index"
	"github.com/INLOpen/nexuslake/internal/testutil"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/INLOpen/nexuslake/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func options(tb *testutil.Table) Options {
	return Options{
		FileIO:       tb.FIO,
		PathFactory:  tb.PathFactory,
		ManifestFile: tb.ManifestFile,
		ManifestList: tb.ManifestList,
		Index:        tb.Index,
		Metrics:      metrics.New(nil),
		Logger:       testutil.Logger,
	}
}

func TestCleanUnusedManifests_IndexFilesInSkippingSet(t *testing.T) {
	ctx := context.Background()
	tb := testutil.NewTable(t, 1)

	a, err := tb.Index.WriteHashIndex(ctx, []int32{1, 2})
	require.NoError(t, err)
	b, err := tb.Index.WriteHashIndex(ctx, []int32{3})
	require.NoError(t, err)
	indexEntry := func(meta index.IndexFileMeta) index.IndexManifestEntry {
		return index.IndexManifestEntry{Kind: manifest.KindAdd, Partition: testutil.Part(1), Bucket: 0, IndexFile: meta}
	}

	s1 := tb.Commit(t, []manifest.ManifestEntry{tb.Add(1, 0, "f1")}, testutil.CommitOptions{
		Index: []index.IndexManifestEntry{indexEntry(a), indexEntry(b)},
	})
	s2 := tb.Commit(t, []manifest.ManifestEntry{tb.Add(1, 0, "f2")}, testutil.CommitOptions{
		Index: []index.IndexManifestEntry{indexEntry(a)},
	})

	d := NewSnapshotDeletion(options(tb))
	skip, err := d.ManifestSkippingSet(ctx, []*snapshot.Snapshot{s2})
	require.NoError(t, err)
	assert.Contains(t, skip, a.FileName)
	assert.NotContains(t, skip, b.FileName)

	s1Delta, err := tb.ManifestList.Read(ctx, s1.DeltaManifestList)
	require.NoError(t, err)
	require.Len(t, s1Delta, 1)

	require.NoError(t, d.CleanUnusedManifests(ctx, s1, skip))

	testutil.RequirePresent(t, tb.FIO, pathfactory.IndexFilePath(a.FileName))
	testutil.RequireAbsent(t, tb.FIO, pathfactory.IndexFilePath(b.FileName))
	testutil.RequireAbsent(t, tb.FIO,
		pathfactory.ManifestPath(s1.IndexManifestName()),
		pathfactory.ManifestPath(s1.BaseManifestList),
		pathfactory.ManifestPath(s1.DeltaManifestList),
	)
	// The delta manifest of s1 is part of the base of s2.
	testutil.RequirePresent(t, tb.FIO, pathfactory.ManifestPath(s1Delta[0].FileName))
	assert.Contains(t, skip, b.FileName)
	assert.Contains(t, skip, s1.DeltaManifestList)

	// A second pass over the same snapshot finds everything gone or skipped.
	require.NoError(t, d.CleanUnusedManifests(ctx, s1, skip))
}

func TestCleanUnusedManifests_ToleratesMissingLists(t *testing.T) {
	ctx := context.Background()
	tb := testutil.NewTable(t, 1)
	s1 := tb.Commit(t, []manifest.ManifestEntry{tb.Add(1, 0, "f1")}, testutil.CommitOptions{
		Changelog: []manifest.ManifestEntry{tb.Add(1, 0, "changelog-1")},
	})
	delta, err := tb.ManifestList.Read(ctx, s1.DeltaManifestList)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	_, err = tb.FIO.Delete(ctx, pathfactory.ManifestPath(s1.DeltaManifestList), false)
	require.NoError(t, err)

	d := NewSnapshotDeletion(options(tb))
	require.NoError(t, d.CleanUnusedManifests(ctx, s1, map[string]struct{}{}))
	// Only the manifest named by the lost list survives; nothing reaches it any more.
	assert.Equal(t, []string{delta[0].FileName}, testutil.ListFiles(t, tb.FIO, core.ManifestDirName, ""))
}

func TestSnapshotDeletion_CleanUnusedDataFiles(t *testing.T) {
	ctx := context.Background()
	tb := testutil.NewTable(t, 2)
	f1 := tb.Add(1, 0, "f1")
	f1.File.ExtraFiles = []string{"f1.extra"}
	tb.Commit(t, []manifest.ManifestEntry{f1, tb.Add(1, 1, "f2")}, testutil.CommitOptions{})

	f1Delete := tb.Delete(1, 0, "f1")
	f1Delete.File.ExtraFiles = []string{"f1.extra"}
	s2 := tb.Commit(t, []manifest.ManifestEntry{f1Delete, tb.Delete(1, 1, "f2"), tb.Add(1, 1, "f2")}, testutil.CommitOptions{})
	s3 := tb.Commit(t, []manifest.ManifestEntry{tb.Delete(1, 1, "f2")}, testutil.CommitOptions{})

	d := NewSnapshotDeletion(options(tb))
	require.NoError(t, d.CleanUnusedDataFiles(ctx, s2, SkipNone))
	testutil.RequireAbsent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f1"), tb.DataFilePath(t, 1, 0, "f1.extra"))
	testutil.RequirePresent(t, tb.FIO, tb.DataFilePath(t, 1, 1, "f2"))

	d.CleanDataDirectories(ctx)
	testutil.RequireAbsent(t, tb.FIO, "dt=1/bucket-0")
	testutil.RequirePresent(t, tb.FIO, "dt=1/bucket-1", "dt=1")

	require.NoError(t, d.CleanUnusedDataFiles(ctx, s3, SkipNone))
	d.CleanDataDirectories(ctx)
	testutil.RequireAbsent(t, tb.FIO, tb.DataFilePath(t, 1, 1, "f2"), "dt=1/bucket-1", "dt=1")
}

func TestSnapshotDeletion_SkipperAndHookVeto(t *testing.T) {
	ctx := context.Background()
	tb := testutil.NewTable(t, 1)
	s1 := tb.Commit(t, []manifest.ManifestEntry{tb.Add(1, 0, "f1"), tb.Add(1, 0, "f2")}, testutil.CommitOptions{})
	s2 := tb.Commit(t, []manifest.ManifestEntry{tb.Delete(1, 0, "f1"), tb.Delete(1, 0, "f2")}, testutil.CommitOptions{})

	hm := hooks.NewHookManager(testutil.Logger)
	var seen []string
	hm.Register(hooks.EventPreDataFileDelete, hooks.ListenerFunc(func(_ context.Context, ev hooks.HookEvent) error {
		p := ev.Payload().(hooks.PreDataFileDeletePayload)
		seen = append(seen, p.Path)
		if p.Path == tb.DataFilePath(t, 1, 0, "f2") {
			return errors.New("legal hold")
		}
		return nil
	}))
	opts := options(tb)
	opts.Hooks = hm
	d := NewSnapshotDeletion(opts)

	skipper, err := d.DataFileSkipper(ctx, []*snapshot.Snapshot{s1})
	require.NoError(t, err)
	require.NoError(t, d.CleanUnusedDataFiles(ctx, s2, skipper))
	testutil.RequirePresent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f1"), tb.DataFilePath(t, 1, 0, "f2"))
	assert.Empty(t, seen, "skipped files never reach the hook")

	require.NoError(t, d.CleanUnusedDataFiles(ctx, s2, SkipNone))
	testutil.RequireAbsent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f1"))
	testutil.RequirePresent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f2"))
	assert.Len(t, seen, 2)
}

func TestTagDeletion(t *testing.T) {
	ctx := context.Background()
	tb := testutil.NewTable(t, 1)
	s1 := tb.Commit(t, []manifest.ManifestEntry{tb.Add(1, 0, "f1"), tb.Add(1, 0, "f2")}, testutil.CommitOptions{})
	s2 := tb.Commit(t, []manifest.ManifestEntry{tb.Delete(1, 0, "f1"), tb.Add(1, 0, "f3")}, testutil.CommitOptions{})

	d := NewTagDeletion(options(tb))
	skipper, err := d.DataFileSkipper(ctx, []*snapshot.Snapshot{s2})
	require.NoError(t, err)
	require.NoError(t, d.CleanUnusedDataFiles(ctx, s1, skipper))
	testutil.RequireAbsent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f1"))
	testutil.RequirePresent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f2"), tb.DataFilePath(t, 1, 0, "f3"))

	skip, err := d.ManifestSkippingSet(ctx, []*snapshot.Snapshot{s2})
	require.NoError(t, err)
	require.NoError(t, d.CleanUnusedManifests(ctx, s1, skip))
	testutil.RequireAbsent(t, tb.FIO, pathfactory.ManifestPath(s1.DeltaManifestList))

	// s2 is still fully readable.
	entries, ok, err := d.TryReadDataManifestEntries(ctx, s2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, entries, 2)
}

func TestCleanDataDirectories_DeepestFirst(t *testing.T) {
	ctx := context.Background()
	fio := fileio.NewLocal(t.TempDir())
	pf := pathfactory.New([]string{"dt", "hr"}, "")
	e := newEngine(Options{FileIO: fio, PathFactory: pf, Logger: testutil.Logger}, "test")

	part := func(dt, hr int32) core.BinaryRow { return core.EncodeRow(core.Row{dt, hr}) }
	for _, dir := range []string{"dt=1/hr=1/bucket-0", "dt=1/hr=2/bucket-0", "dt=2/hr=1/bucket-0", "dt=2/hr=1/bucket-1"} {
		require.NoError(t, fio.Mkdirs(ctx, dir))
	}
	require.NoError(t, fio.Write(ctx, "dt=2/hr=1/bucket-1/keep", []byte("x"), false))

	e.RecordDeletionBucket(part(1, 1), 0)
	e.RecordDeletionBucket(part(1, 2), 0)
	e.RecordDeletionBucket(part(2, 1), 0)
	e.CleanDataDirectories(ctx)

	testutil.RequireAbsent(t, fio, "dt=1", "dt=2/hr=1/bucket-0")
	testutil.RequirePresent(t, fio, "dt=2/hr=1/bucket-1/keep", "dt=2/hr=1")
	assert.Empty(t, e.deletionBuckets)

	// Nothing recorded: nothing happens.
	e.CleanDataDirectories(ctx)
	testutil.RequirePresent(t, fio, "dt=2")
}
