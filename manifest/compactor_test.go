package manifest

import (
	"context"
	"errors"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type compactorFixture struct {
	fio       fileio.FileIO
	mf        *ManifestFile
	compactor *Compactor
	metrics   *metrics.Metrics
	merges    []hooks.PostManifestMergePayload
}

func newCompactorFixture(t *testing.T, fio fileio.FileIO, pt core.RowType, minCount int, fullTrigger int64) *compactorFixture {
	t.Helper()
	f := &compactorFixture{fio: fio, metrics: metrics.New(nil)}
	f.mf = newManifestFile(t, fio, pt, 1<<20)
	hm := hooks.NewHookManager(testLogger)
	hm.Register(hooks.EventPostManifestMerge, hooks.ListenerFunc(func(ctx context.Context, e hooks.HookEvent) error {
		f.merges = append(f.merges, e.Payload().(hooks.PostManifestMergePayload))
		return nil
	}))
	f.compactor = NewCompactor(CompactorOptions{
		ManifestFile:            f.mf,
		SuggestedFileSize:       100,
		MinFileCount:            minCount,
		FullCompactionThreshold: fullTrigger,
		Metrics:                 f.metrics,
		Hooks:                   hm,
		Logger:                  testLogger,
	})
	return f
}

// sized writes one manifest and pretends it has the given size.
func (f *compactorFixture) sized(t *testing.T, size int64, entries ...ManifestEntry) ManifestFileMeta {
	m := writeOne(t, f.mf, entries...)
	m.FileSize = size
	return m
}

func TestCompactor_MinorCompaction(t *testing.T) {
	ctx := context.Background()
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), partitionType, 2, 1<<40)

	input := []ManifestFileMeta{
		f.sized(t, 40, add(1, "f1")),
		f.sized(t, 40, add(1, "f2")),
		f.sized(t, 40, del(1, "f1")),
		f.sized(t, 10, add(2, "f4")),
	}
	before := liveNames(t, f.mf, input)

	out, err := f.compactor.Merge(ctx, input)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotContains(t, FileNames(input), out[0].FileName, "first three files are rewritten")
	assert.Equal(t, int64(1), out[0].NumAddedFiles)
	assert.Zero(t, out[0].NumDeletedFiles)
	assert.Equal(t, input[3], out[1], "trailing batch below min count passes through")
	assert.Equal(t, before, liveNames(t, f.mf, out))
	assert.Equal(t, []string{"f2", "f4"}, before)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Compactions.WithLabelValues("minor")))
	require.Len(t, f.merges, 1)
	assert.False(t, f.merges[0].FullCompact)
	assert.Equal(t, []string{out[0].FileName}, f.merges[0].NewFiles)

	t.Run("idempotent on compacted input", func(t *testing.T) {
		again, err := f.compactor.Merge(ctx, out)
		require.NoError(t, err)
		assert.Equal(t, out, again)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Compactions.WithLabelValues("minor")))
	})
}

func TestCompactor_TrailingBatchAtMinCountIsMerged(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), partitionType, 2, 1<<40)
	input := []ManifestFileMeta{
		f.sized(t, 10, add(1, "a")),
		f.sized(t, 10, add(2, "b")),
	}
	out, err := f.compactor.Merge(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].NumAddedFiles)
	assert.Equal(t, []string{"a", "b"}, liveNames(t, f.mf, out))
}

func TestCompactor_FullyCancelledBatchDisappears(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), partitionType, 2, 1<<40)
	input := []ManifestFileMeta{
		f.sized(t, 60, add(1, "a")),
		f.sized(t, 60, del(1, "a")),
	}
	out, err := f.compactor.Merge(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompactor_FullCompactionSkipsByPartition(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), partitionType, 30, 5)
	base0 := f.sized(t, 100, add(3, "p3"))
	base1 := f.sized(t, 100, add(1, "p1a"), add(2, "p2a"))
	delta := f.sized(t, 10, del(1, "p1a"), add(1, "p1b"))
	input := []ManifestFileMeta{base0, base1, delta}

	out, err := f.compactor.Merge(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, base0, out[0], "partition stats prove base0 untouched")
	assert.Zero(t, out[1].NumDeletedFiles, "full compaction drops tombstones")
	assert.Equal(t, []string{"p1b", "p2a", "p3"}, liveNames(t, f.mf, out))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Compactions.WithLabelValues("full")))
	require.Len(t, f.merges, 1)
	assert.True(t, f.merges[0].FullCompact)
}

func TestCompactor_FullCompactionWithoutDeletesKeepsBase(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), partitionType, 30, 15)
	base := f.sized(t, 100, add(1, "a"))
	input := []ManifestFileMeta{base, f.sized(t, 10, add(2, "b")), f.sized(t, 10, add(3, "c"))}

	out, err := f.compactor.Merge(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, base, out[0])
	assert.Equal(t, int64(2), out[1].NumAddedFiles)
	assert.Equal(t, []string{"a", "b", "c"}, liveNames(t, f.mf, out))
}

func TestCompactor_FullCompactionStopsAtFirstOverlap(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), nil, 30, 1)
	u := func(kind FileKind, name string) ManifestEntry { return entry(kind, core.EmptyRow, 0, name) }

	base0 := f.sized(t, 100, u(KindAdd, "x"))
	base1 := f.sized(t, 100, u(KindAdd, "y"))
	base2 := f.sized(t, 100, u(KindAdd, "z"))
	delta := f.sized(t, 10, u(KindDelete, "y"))

	out, err := f.compactor.Merge(context.Background(), []ManifestFileMeta{base0, base1, base2, delta})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, base0, out[0])
	assert.Equal(t, []string{"x", "z"}, liveNames(t, f.mf, out))
}

func TestCompactor_FullCompactionRejectsDeleteInBase(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), nil, 30, 1)
	u := func(kind FileKind, name string) ManifestEntry { return entry(kind, core.EmptyRow, 0, name) }

	// A base file that claims zero deletions but holds one.
	bad := f.sized(t, 100, u(KindDelete, "ghost"))
	bad.NumDeletedFiles = 0
	_, err := f.compactor.Merge(context.Background(), []ManifestFileMeta{bad, f.sized(t, 10, u(KindAdd, "a"))})
	require.Error(t, err)
	assert.True(t, core.IsCorruptionError(err))
}

func TestCompactor_RollsBackOnWriteFailure(t *testing.T) {
	fio := &faultyFileIO{FileIO: fileio.NewLocal(t.TempDir())}
	boom := errors.New("store unavailable")
	fio.On("Write", mock.Anything).Return(nil).Times(5)
	fio.On("Write", mock.Anything).Return(boom)

	f := newCompactorFixture(t, fio, partitionType, 2, 1<<40)
	input := []ManifestFileMeta{
		f.sized(t, 50, add(1, "a")),
		f.sized(t, 50, add(1, "b")),
		f.sized(t, 50, add(2, "c")),
		f.sized(t, 50, add(2, "d")),
	}
	existing := listManifests(t, fio)
	require.Len(t, existing, 4)

	_, err := f.compactor.Merge(context.Background(), input)
	require.ErrorIs(t, err, boom)
	assert.ElementsMatch(t, existing, listManifests(t, fio), "the first batch's new manifest is rolled back")
	fio.AssertNumberOfCalls(t, "Write", 6)
	assert.Empty(t, f.merges)
}

func TestCompactor_RollsBackWhenCanceledMidMerge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fio := &faultyFileIO{FileIO: fileio.NewLocal(t.TempDir())}
	fio.On("Write", mock.Anything).Return(nil).Times(5)
	fio.On("Write", mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(context.Canceled)

	f := newCompactorFixture(t, fio, partitionType, 2, 1<<40)
	input := []ManifestFileMeta{
		f.sized(t, 50, add(1, "a")),
		f.sized(t, 50, add(1, "b")),
		f.sized(t, 50, add(2, "c")),
		f.sized(t, 50, add(2, "d")),
	}
	existing := listManifests(t, fio)
	require.Len(t, existing, 4)

	_, err := f.compactor.Merge(ctx, input)
	require.ErrorIs(t, err, context.Canceled)
	assert.ElementsMatch(t, existing, listManifests(t, fio))
	assert.Empty(t, f.merges)
}

func TestCompactor_FullCompactionKeepsUnresolvedDelete(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), nil, 30, 1)
	u := func(kind FileKind, name string) ManifestEntry { return entry(kind, core.EmptyRow, 0, name) }

	base := f.sized(t, 100, u(KindAdd, "x"), u(KindAdd, "y"))
	delta := f.sized(t, 10, u(KindDelete, "y"), u(KindDelete, "elsewhere"), u(KindAdd, "z"))

	out, err := f.compactor.Merge(context.Background(), []ManifestFileMeta{base, delta})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].NumDeletedFiles)

	entries, err := f.mf.Read(context.Background(), out[0].FileName, ReadOptions{})
	require.NoError(t, err)
	var deleted []string
	for _, e := range entries {
		if e.Kind == KindDelete {
			deleted = append(deleted, e.File.FileName)
		}
	}
	assert.Equal(t, []string{"elsewhere"}, deleted)
	assert.Equal(t, []string{"x", "z"}, liveNames(t, f.mf, out))

	// The kept DELETE puts the output on the delta side of the next merge.
	again, err := f.compactor.Merge(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, liveNames(t, f.mf, again))
}

func TestCompactor_DuplicateAddFails(t *testing.T) {
	f := newCompactorFixture(t, fileio.NewLocal(t.TempDir()), partitionType, 2, 1<<40)
	input := []ManifestFileMeta{f.sized(t, 10, add(1, "a")), f.sized(t, 10, add(1, "a"))}
	_, err := f.compactor.Merge(context.Background(), input)
	require.Error(t, err)
	assert.True(t, core.IsCorruptionError(err))
}
