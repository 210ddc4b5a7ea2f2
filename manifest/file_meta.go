package manifest

import (
	"fmt"

	"github.com/INLOpen/nexuslake/stats"
)

// ManifestFileMeta describes one manifest file as recorded in a manifest list.
type ManifestFileMeta struct {
	FileName        string
	FileSize        int64
	NumAddedFiles   int64
	NumDeletedFiles int64
	PartitionStats  stats.BinaryTableStats
	SchemaID        int64
}

// NumEntries is the total number of entries the file holds.
func (m ManifestFileMeta) NumEntries() int64 {
	return m.NumAddedFiles + m.NumDeletedFiles
}

func (m ManifestFileMeta) String() string {
	return fmt.Sprintf("{%s, size=%d, added=%d, deleted=%d, schema=%d}",
		m.FileName, m.FileSize, m.NumAddedFiles, m.NumDeletedFiles, m.SchemaID)
}

// FileNames returns the names of metas in order.
func FileNames(metas []ManifestFileMeta) []string {
	out := make([]string, len(metas))
	for i, m := range metas {
		out[i] = m.FileName
	}
	return out
}
