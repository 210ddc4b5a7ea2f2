package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexuslake/internal/testutil"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lakemeta.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  output: none\n"), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	a.close(&out)
	return out.String(), err
}

func TestLakemeta_EndToEnd(t *testing.T) {
	tb := testutil.NewTable(t, 2)
	tb.Commit(t, []manifest.ManifestEntry{tb.Add(1, 0, "f1"), tb.Add(2, 1, "f2")}, testutil.CommitOptions{TimeMillis: 1000})
	tb.Commit(t, []manifest.ManifestEntry{tb.Delete(1, 0, "f1"), tb.Add(1, 0, "f3")}, testutil.CommitOptions{TimeMillis: 2000})
	tb.Commit(t, []manifest.ManifestEntry{tb.Add(2, 1, "f4")}, testutil.CommitOptions{TimeMillis: 3000})
	base := []string{"--config", writeConfig(t), "--table", tb.Root}

	out, err := run(t, append(base, "snapshots")...)
	require.NoError(t, err)
	assert.Contains(t, out, "APPEND")
	assert.Equal(t, 4, bytes.Count([]byte(out), []byte("\n")), "header plus three snapshots")

	out, err = run(t, append(base, "plan", "--bucket", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "snapshot 3, mode all, 2 files")
	assert.Contains(t, out, "f2")
	assert.Contains(t, out, "f4")
	assert.NotContains(t, out, "f3")

	out, err = run(t, append(base, "plan", "--snapshot", "2", "--mode", "delta")...)
	require.NoError(t, err)
	assert.Contains(t, out, "snapshot 2, mode delta, 2 files")
	assert.Contains(t, out, "DELETE")

	_, err = run(t, append(base, "plan", "--mode", "sideways")...)
	require.Error(t, err)

	out, err = run(t, append(base, "tag", "create", "v1", "--snapshot", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "tag v1 -> snapshot 1")

	out, err = run(t, append(base, "expire", "--retain-min", "1", "--older-than", "1h", "--print-metrics")...)
	require.NoError(t, err)
	assert.Contains(t, out, "expired 2 snapshots")
	assert.Contains(t, out, "nexuslake_snapshots_expired_total")
	testutil.RequirePresent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f1"))

	out, err = run(t, append(base, "tag", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "true")

	_, err = run(t, append(base, "tag", "delete", "v1")...)
	require.NoError(t, err)
	testutil.RequireAbsent(t, tb.FIO, tb.DataFilePath(t, 1, 0, "f1"))

	ids, err := tb.Snapshots.SnapshotIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}

func TestLakemeta_MissingSchema(t *testing.T) {
	_, err := run(t, "--config", writeConfig(t), "--table", t.TempDir(), "snapshots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table schema found")
}
