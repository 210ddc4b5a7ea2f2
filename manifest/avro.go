package manifest

import (
	"time"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/internal/avroio"
	"github.com/INLOpen/nexuslake/stats"
)

var (
	entryAvroSchema    = avroio.MustParse(manifestEntrySchema)
	fileMetaAvroSchema = avroio.MustParse(manifestFileMetaSchema)
)

// simpleStatsSchema is shared by key stats, value stats and partition stats.
const simpleStatsSchema = `{
	"type": "record",
	"name": "SimpleStats",
	"fields": [
		{"name": "_MIN_VALUES", "type": "bytes"},
		{"name": "_MAX_VALUES", "type": "bytes"},
		{"name": "_NULL_COUNTS", "type": {"type": "array", "items": "long"}}
	]
}`

// Field order of the entry record is part of the persisted layout.
const manifestEntrySchema = `{
	"type": "record",
	"name": "ManifestEntry",
	"namespace": "org.nexuslake.manifest",
	"fields": [
		{"name": "_KIND", "type": "int"},
		{"name": "_PARTITION", "type": "bytes"},
		{"name": "_BUCKET", "type": "int"},
		{"name": "_TOTAL_BUCKETS", "type": "int"},
		{"name": "_FILE", "type": {
			"type": "record",
			"name": "DataFileMeta",
			"fields": [
				{"name": "_FILE_NAME", "type": "string"},
				{"name": "_FILE_SIZE", "type": "long"},
				{"name": "_ROW_COUNT", "type": "long"},
				{"name": "_MIN_KEY", "type": "bytes"},
				{"name": "_MAX_KEY", "type": "bytes"},
				{"name": "_KEY_STATS", "type": ` + simpleStatsSchema + `},
				{"name": "_VALUE_STATS", "type": "SimpleStats"},
				{"name": "_MIN_SEQUENCE_NUMBER", "type": "long"},
				{"name": "_MAX_SEQUENCE_NUMBER", "type": "long"},
				{"name": "_SCHEMA_ID", "type": "long"},
				{"name": "_LEVEL", "type": "int"},
				{"name": "_EXTRA_FILES", "type": {"type": "array", "items": "string"}},
				{"name": "_CREATION_TIME", "type": "long"}
			]
		}}
	]
}`

// Field order of the manifest file meta record is part of the persisted layout.
const manifestFileMetaSchema = `{
	"type": "record",
	"name": "ManifestFileMeta",
	"namespace": "org.nexuslake.manifest",
	"fields": [
		{"name": "_FILE_NAME", "type": "string"},
		{"name": "_FILE_SIZE", "type": "long"},
		{"name": "_NUM_ADDED_FILES", "type": "long"},
		{"name": "_NUM_DELETED_FILES", "type": "long"},
		{"name": "_PARTITION_STATS", "type": ` + simpleStatsSchema + `},
		{"name": "_SCHEMA_ID", "type": "long"}
	]
}`

type statsAvro struct {
	MinValues  []byte  `avro:"_MIN_VALUES"`
	MaxValues  []byte  `avro:"_MAX_VALUES"`
	NullCounts []int64 `avro:"_NULL_COUNTS"`
}

type dataFileAvro struct {
	FileName          string    `avro:"_FILE_NAME"`
	FileSize          int64     `avro:"_FILE_SIZE"`
	RowCount          int64     `avro:"_ROW_COUNT"`
	MinKey            []byte    `avro:"_MIN_KEY"`
	MaxKey            []byte    `avro:"_MAX_KEY"`
	KeyStats          statsAvro `avro:"_KEY_STATS"`
	ValueStats        statsAvro `avro:"_VALUE_STATS"`
	MinSequenceNumber int64     `avro:"_MIN_SEQUENCE_NUMBER"`
	MaxSequenceNumber int64     `avro:"_MAX_SEQUENCE_NUMBER"`
	SchemaID          int64     `avro:"_SCHEMA_ID"`
	Level             int32     `avro:"_LEVEL"`
	ExtraFiles        []string  `avro:"_EXTRA_FILES"`
	CreationTime      int64     `avro:"_CREATION_TIME"`
}

type entryAvro struct {
	Kind         int32        `avro:"_KIND"`
	Partition    []byte       `avro:"_PARTITION"`
	Bucket       int32        `avro:"_BUCKET"`
	TotalBuckets int32        `avro:"_TOTAL_BUCKETS"`
	File         dataFileAvro `avro:"_FILE"`
}

type fileMetaAvro struct {
	FileName        string    `avro:"_FILE_NAME"`
	FileSize        int64     `avro:"_FILE_SIZE"`
	NumAddedFiles   int64     `avro:"_NUM_ADDED_FILES"`
	NumDeletedFiles int64     `avro:"_NUM_DELETED_FILES"`
	PartitionStats  statsAvro `avro:"_PARTITION_STATS"`
	SchemaID        int64     `avro:"_SCHEMA_ID"`
}

func toStatsAvro(s stats.BinaryTableStats) statsAvro {
	nulls := s.NullCounts
	if nulls == nil {
		nulls = []int64{}
	}
	return statsAvro{MinValues: []byte(s.Min), MaxValues: []byte(s.Max), NullCounts: nulls}
}

func fromStatsAvro(a statsAvro) stats.BinaryTableStats {
	nulls := a.NullCounts
	if nulls == nil {
		nulls = []int64{}
	}
	return stats.BinaryTableStats{
		Min:        core.BinaryRow(a.MinValues),
		Max:        core.BinaryRow(a.MaxValues),
		NullCounts: nulls,
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// rowBytes makes zero-valued rows decodable.
func rowBytes(r core.BinaryRow) []byte {
	if r == "" {
		return []byte(core.EmptyRow)
	}
	return []byte(r)
}

func toEntryAvro(e ManifestEntry) entryAvro {
	f := e.File
	extra := f.ExtraFiles
	if extra == nil {
		extra = []string{}
	}
	return entryAvro{
		Kind:         int32(e.Kind),
		Partition:    rowBytes(e.Partition),
		Bucket:       e.Bucket,
		TotalBuckets: e.TotalBuckets,
		File: dataFileAvro{
			FileName:          f.FileName,
			FileSize:          f.FileSize,
			RowCount:          f.RowCount,
			MinKey:            rowBytes(f.MinKey),
			MaxKey:            rowBytes(f.MaxKey),
			KeyStats:          toStatsAvro(f.KeyStats),
			ValueStats:        toStatsAvro(f.ValueStats),
			MinSequenceNumber: f.MinSequenceNumber,
			MaxSequenceNumber: f.MaxSequenceNumber,
			SchemaID:          f.SchemaID,
			Level:             f.Level,
			ExtraFiles:        extra,
			CreationTime:      millis(f.CreationTime),
		},
	}
}

func fromEntryAvro(a entryAvro) (ManifestEntry, error) {
	kind, err := FileKindFromByte(a.Kind)
	if err != nil {
		return ManifestEntry{}, err
	}
	f := a.File
	return ManifestEntry{
		Kind:         kind,
		Partition:    core.BinaryRow(a.Partition),
		Bucket:       a.Bucket,
		TotalBuckets: a.TotalBuckets,
		File: &DataFileMeta{
			FileName:          f.FileName,
			FileSize:          f.FileSize,
			RowCount:          f.RowCount,
			MinKey:            core.BinaryRow(f.MinKey),
			MaxKey:            core.BinaryRow(f.MaxKey),
			KeyStats:          fromStatsAvro(f.KeyStats),
			ValueStats:        fromStatsAvro(f.ValueStats),
			MinSequenceNumber: f.MinSequenceNumber,
			MaxSequenceNumber: f.MaxSequenceNumber,
			SchemaID:          f.SchemaID,
			Level:             f.Level,
			ExtraFiles:        f.ExtraFiles,
			CreationTime:      fromMillis(f.CreationTime),
		},
	}, nil
}

func toFileMetaAvro(m ManifestFileMeta) fileMetaAvro {
	return fileMetaAvro{
		FileName:        m.FileName,
		FileSize:        m.FileSize,
		NumAddedFiles:   m.NumAddedFiles,
		NumDeletedFiles: m.NumDeletedFiles,
		PartitionStats:  toStatsAvro(m.PartitionStats),
		SchemaID:        m.SchemaID,
	}
}

func fromFileMetaAvro(a fileMetaAvro) ManifestFileMeta {
	return ManifestFileMeta{
		FileName:        a.FileName,
		FileSize:        a.FileSize,
		NumAddedFiles:   a.NumAddedFiles,
		NumDeletedFiles: a.NumDeletedFiles,
		PartitionStats:  fromStatsAvro(a.PartitionStats),
		SchemaID:        a.SchemaID,
	}
}
