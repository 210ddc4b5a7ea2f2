package core

// File layout constants shared by the path factory, managers and cleaners.

// --- Directories ---
const (
	SnapshotDirName = "snapshot"
	ManifestDirName = "manifest"
	IndexDirName    = "index"
	SchemaDirName   = "schema"
	TagDirName      = "tag"
)

// --- File Names & Prefixes ---
const (
	SnapshotPrefix      = "snapshot-"
	SchemaPrefix        = "schema-"
	TagPrefix           = "tag-"
	ManifestPrefix      = "manifest-"
	ManifestListPrefix  = "manifest-list-"
	IndexManifestPrefix = "index-manifest-"
	IndexFilePrefix     = "index-"
	DataFilePrefix      = "data-"
	ChangelogFilePrefix = "changelog-"
	BucketDirPrefix     = "bucket-"

	// LatestHintFile holds the id of the newest snapshot.
	LatestHintFile = "LATEST"
	// EarliestHintFile holds the id of the oldest retained snapshot.
	EarliestHintFile = "EARLIEST"
)

// --- Protocol & Format Versions ---
const (
	// SnapshotVersion is the snapshot format written by this module.
	SnapshotVersion int32 = 3
	// LegacySnapshotVersion is the last format without changelog manifest lists.
	LegacySnapshotVersion int32 = 1
)

// --- Defaults ---
const (
	DefaultPartitionName = "__DEFAULT_PARTITION__"

	// HashIndexType names the bucket hash index kind.
	HashIndexType = "HASH"
)

// FormatTempFilename mirrors the temp-file naming used for atomic renames.
func FormatTempFilename(prefix, postfix string) string {
	return prefix + "." + postfix
}
