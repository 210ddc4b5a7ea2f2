// Package testutil builds small on-disk tables for tests: schema, codecs and a
// committer that writes data files, manifests, lists and snapshots the way a
// real writer would.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/index"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/INLOpen/nexuslake/schema"
	"github.com/INLOpen/nexuslake/snapshot"
	"github.com/INLOpen/nexuslake/stats"
	"github.com/stretchr/testify/require"
)

// Logger discards everything.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Fields is the schema of every test table: partitioned by dt, bucketed by id.
var Fields = core.RowType{
	{ID: 0, Name: "dt", Type: core.TypeInt},
	{ID: 1, Name: "id", Type: core.TypeBigInt},
	{ID: 2, Name: "name", Type: core.TypeString},
}

// Table is a test table rooted in a temp directory.
type Table struct {
	Root         string
	FIO          *fileio.Local
	Schema       *schema.TableSchema
	Schemas      *schema.Manager
	PathFactory  *pathfactory.Factory
	ManifestFile *manifest.ManifestFile
	ManifestList *manifest.ManifestList
	Index        *index.Handler
	Snapshots    *snapshot.Manager
	Tags         *snapshot.TagManager
	// Compactor, when set, compacts the base manifests of every commit.
	Compactor *manifest.Compactor
}

// NewTable creates a partitioned table with numBuckets buckets.
func NewTable(t testing.TB, numBuckets int32) *Table {
	t.Helper()
	root := t.TempDir()
	fio := fileio.NewLocal(root)
	s := &schema.TableSchema{
		ID:            0,
		Fields:        Fields,
		PartitionKeys: []string{"dt"},
		BucketKeys:    []string{"id"},
		Options:       map[string]string{schema.OptionBucket: strconv.Itoa(int(numBuckets))},
	}
	schemas := schema.NewManager(fio, Logger)
	require.NoError(t, schemas.Commit(context.Background(), s))
	partitionType, err := s.PartitionType()
	require.NoError(t, err)

	pf := pathfactory.New(s.PartitionKeys, "")
	return &Table{
		Root:        root,
		FIO:         fio,
		Schema:      s,
		Schemas:     schemas,
		PathFactory: pf,
		ManifestFile: manifest.NewManifestFile(manifest.ManifestFileOptions{
			FileIO:            fio,
			PathFactory:       pf,
			PartitionType:     partitionType,
			SuggestedFileSize: 8 << 20,
			Logger:            Logger,
		}),
		ManifestList: manifest.NewManifestList(manifest.ManifestListOptions{FileIO: fio, PathFactory: pf, Logger: Logger}),
		Index:        index.NewHandler(index.HandlerOptions{FileIO: fio, PathFactory: pf, Compression: core.CompressionLZ4, Logger: Logger}),
		Snapshots:    snapshot.NewManager(fio, Logger),
		Tags:         snapshot.NewTagManager(fio, Logger),
	}
}

// Part encodes a dt partition.
func Part(dt int32) core.BinaryRow { return core.EncodeRow(core.Row{dt}) }

// Entry builds a manifest entry under the table's current bucket count.
func (tb *Table) Entry(kind manifest.FileKind, dt int32, bucket int32, name string) manifest.ManifestEntry {
	return manifest.ManifestEntry{
		Kind:         kind,
		Partition:    Part(dt),
		Bucket:       bucket,
		TotalBuckets: tb.Schema.NumBuckets(),
		File: &manifest.DataFileMeta{
			FileName:     name,
			FileSize:     128,
			RowCount:     10,
			MinKey:       core.EmptyRow,
			MaxKey:       core.EmptyRow,
			KeyStats:     stats.EmptyStats,
			ValueStats:   stats.EmptyStats,
			SchemaID:     tb.Schema.ID,
			CreationTime: time.UnixMilli(0).UTC(),
		},
	}
}

// Add is Entry with KindAdd.
func (tb *Table) Add(dt int32, bucket int32, name string) manifest.ManifestEntry {
	return tb.Entry(manifest.KindAdd, dt, bucket, name)
}

// Delete is Entry with KindDelete.
func (tb *Table) Delete(dt int32, bucket int32, name string) manifest.ManifestEntry {
	return tb.Entry(manifest.KindDelete, dt, bucket, name)
}

// CommitOptions tune one Commit.
type CommitOptions struct {
	Kind       snapshot.CommitKind
	Changelog  []manifest.ManifestEntry
	Index      []index.IndexManifestEntry
	TimeMillis int64
	Watermark  *int64
}

// Commit writes the data files of every ADD in delta, then a delta manifest,
// the base and delta lists and finally the next snapshot.
func (tb *Table) Commit(t testing.TB, delta []manifest.ManifestEntry, opts CommitOptions) *snapshot.Snapshot {
	t.Helper()
	ctx := context.Background()
	for _, e := range append(append([]manifest.ManifestEntry{}, delta...), opts.Changelog...) {
		if e.Kind == manifest.KindAdd {
			tb.WriteDataFile(t, e)
		}
	}

	latest, err := tb.Snapshots.Latest(ctx)
	require.NoError(t, err)
	var base []manifest.ManifestFileMeta
	id := int64(1)
	if latest != nil {
		id = latest.ID + 1
		base, err = latest.DataManifests(ctx, tb.ManifestList)
		require.NoError(t, err)
	}
	if tb.Compactor != nil && len(base) > 0 {
		base, err = tb.Compactor.Merge(ctx, base)
		require.NoError(t, err)
	}

	deltaMetas, err := tb.ManifestFile.Write(ctx, delta)
	require.NoError(t, err)
	baseList, err := tb.ManifestList.Write(ctx, base)
	require.NoError(t, err)
	deltaList, err := tb.ManifestList.Write(ctx, deltaMetas)
	require.NoError(t, err)

	kind := opts.Kind
	if kind == "" {
		kind = snapshot.CommitAppend
	}
	ts := opts.TimeMillis
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	s := &snapshot.Snapshot{
		ID:                id,
		SchemaID:          tb.Schema.ID,
		BaseManifestList:  baseList,
		DeltaManifestList: deltaList,
		CommitUser:        "testutil",
		CommitIdentifier:  id,
		CommitKind:        kind,
		TimeMillis:        ts,
		DeltaRecordCount:  int64(len(delta)),
		Watermark:         opts.Watermark,
	}
	if len(opts.Changelog) > 0 {
		metas, err := tb.ManifestFile.Write(ctx, opts.Changelog)
		require.NoError(t, err)
		name, err := tb.ManifestList.Write(ctx, metas)
		require.NoError(t, err)
		s.ChangelogManifestList = &name
	}
	if len(opts.Index) > 0 {
		name, err := tb.Index.WriteManifest(ctx, opts.Index)
		require.NoError(t, err)
		s.IndexManifest = &name
	}
	require.NoError(t, tb.Snapshots.Commit(ctx, s))
	return s
}

// WriteDataFile materializes the data file of e and its extra files.
func (tb *Table) WriteDataFile(t testing.TB, e manifest.ManifestEntry) {
	t.Helper()
	for _, name := range append([]string{e.File.FileName}, e.File.ExtraFiles...) {
		path, err := tb.PathFactory.DataFilePath(e.Partition, e.Bucket, name)
		require.NoError(t, err)
		require.NoError(t, tb.FIO.Write(context.Background(), path, []byte(name), true))
	}
}

// DataFilePath resolves the relative path of a data file of the table.
func (tb *Table) DataFilePath(t testing.TB, dt int32, bucket int32, name string) string {
	t.Helper()
	path, err := tb.PathFactory.DataFilePath(Part(dt), bucket, name)
	require.NoError(t, err)
	return path
}
