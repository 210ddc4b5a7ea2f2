package testutil

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/INLOpen/nexuslake/fileio"
	"github.com/stretchr/testify/require"
)

// RequirePresent fails the test unless every path exists.
func RequirePresent(t testing.TB, fio fileio.FileIO, paths ...string) {
	t.Helper()
	for _, p := range paths {
		ok, err := fio.Exists(context.Background(), p)
		require.NoError(t, err)
		require.True(t, ok, "expected %s to exist", p)
	}
}

// RequireAbsent fails the test if any path exists.
func RequireAbsent(t testing.TB, fio fileio.FileIO, paths ...string) {
	t.Helper()
	for _, p := range paths {
		ok, err := fio.Exists(context.Background(), p)
		require.NoError(t, err)
		require.False(t, ok, "expected %s to be deleted", p)
	}
}

// ListFiles returns the sorted base names of the files directly under dir
// whose names start with prefix.
func ListFiles(t testing.TB, fio fileio.FileIO, dir, prefix string) []string {
	t.Helper()
	files, err := fio.List(context.Background(), dir)
	require.NoError(t, err)
	var out []string
	for _, f := range files {
		if f.IsDir {
			continue
		}
		name := f.Path[strings.LastIndexByte(f.Path, '/')+1:]
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
