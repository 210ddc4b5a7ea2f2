package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/internal/avroio"
	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/hamba/avro/v2/ocf"
)

// IndexFileMeta describes one index file.
type IndexFileMeta struct {
	IndexType string
	FileName  string
	FileSize  int64
	RowCount  int64
}

// IndexManifestEntry adds or removes one index file of a bucket.
type IndexManifestEntry struct {
	Kind      manifest.FileKind
	Partition core.BinaryRow
	Bucket    int32
	IndexFile IndexFileMeta
}

const indexManifestEntrySchema = `{
	"type": "record",
	"name": "IndexManifestEntry",
	"namespace": "org.nexuslake.index",
	"fields": [
		{"name": "_KIND", "type": "int"},
		{"name": "_PARTITION", "type": "bytes"},
		{"name": "_BUCKET", "type": "int"},
		{"name": "_INDEX_TYPE", "type": "string"},
		{"name": "_FILE_NAME", "type": "string"},
		{"name": "_FILE_SIZE", "type": "long"},
		{"name": "_ROW_COUNT", "type": "long"}
	]
}`

var indexEntryAvroSchema = avroio.MustParse(indexManifestEntrySchema)

type indexEntryAvro struct {
	Kind      int32  `avro:"_KIND"`
	Partition []byte `avro:"_PARTITION"`
	Bucket    int32  `avro:"_BUCKET"`
	IndexType string `avro:"_INDEX_TYPE"`
	FileName  string `avro:"_FILE_NAME"`
	FileSize  int64  `avro:"_FILE_SIZE"`
	RowCount  int64  `avro:"_ROW_COUNT"`
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	FileIO      fileio.FileIO
	PathFactory *pathfactory.Factory
	// Compression is applied to hash index payloads.
	Compression core.CompressionType
	Codec       ocf.CodecName
	Logger      *slog.Logger
}

// Handler reads and writes index manifests and index files.
type Handler struct {
	fio         fileio.FileIO
	pathFactory *pathfactory.Factory
	compression core.CompressionType
	codec       ocf.CodecName
	logger      *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codec := opts.Codec
	if codec == "" {
		codec = ocf.ZStandard
	}
	return &Handler{
		fio:         opts.FileIO,
		pathFactory: opts.PathFactory,
		compression: opts.Compression,
		codec:       codec,
		logger:      logger.With("component", "IndexHandler"),
	}
}

// WriteManifest persists entries as a new index manifest and returns its name.
func (h *Handler) WriteManifest(ctx context.Context, entries []IndexManifestEntry) (string, error) {
	records := make([]indexEntryAvro, len(entries))
	for i, e := range entries {
		partition := e.Partition
		if partition == "" {
			partition = core.EmptyRow
		}
		records[i] = indexEntryAvro{
			Kind:      int32(e.Kind),
			Partition: []byte(partition),
			Bucket:    e.Bucket,
			IndexType: e.IndexFile.IndexType,
			FileName:  e.IndexFile.FileName,
			FileSize:  e.IndexFile.FileSize,
			RowCount:  e.IndexFile.RowCount,
		}
	}
	data, err := avroio.Encode(indexEntryAvroSchema, h.codec, records)
	if err != nil {
		return "", fmt.Errorf("failed to encode index manifest: %w", err)
	}
	name := h.pathFactory.NewIndexManifestName()
	if err := h.fio.Write(ctx, pathfactory.ManifestPath(name), data, false); err != nil {
		return "", fmt.Errorf("failed to write index manifest %s: %w", name, err)
	}
	return name, nil
}

// ReadManifest returns the entries of an index manifest.
func (h *Handler) ReadManifest(ctx context.Context, name string) ([]IndexManifestEntry, error) {
	data, err := h.fio.Read(ctx, pathfactory.ManifestPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read index manifest %s: %w", name, err)
	}
	records, err := avroio.Decode[indexEntryAvro](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode index manifest %s: %w", name, err)
	}
	entries := make([]IndexManifestEntry, len(records))
	for i, r := range records {
		kind, err := manifest.FileKindFromByte(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("index manifest %s: %w", name, err)
		}
		entries[i] = IndexManifestEntry{
			Kind:      kind,
			Partition: core.BinaryRow(r.Partition),
			Bucket:    r.Bucket,
			IndexFile: IndexFileMeta{
				IndexType: r.IndexType,
				FileName:  r.FileName,
				FileSize:  r.FileSize,
				RowCount:  r.RowCount,
			},
		}
	}
	return entries, nil
}

// ExistsManifest reports whether an index manifest is still present.
func (h *Handler) ExistsManifest(ctx context.Context, name string) (bool, error) {
	return h.fio.Exists(ctx, pathfactory.ManifestPath(name))
}

// DeleteManifest removes an index manifest. The index files it lists are untouched.
func (h *Handler) DeleteManifest(ctx context.Context, name string) error {
	if _, err := h.fio.Delete(ctx, pathfactory.ManifestPath(name), false); err != nil {
		return fmt.Errorf("failed to delete index manifest %s: %w", name, err)
	}
	return nil
}

// DeleteIndexFile removes one index file.
func (h *Handler) DeleteIndexFile(ctx context.Context, fileName string) error {
	if _, err := h.fio.Delete(ctx, pathfactory.IndexFilePath(fileName), false); err != nil {
		return fmt.Errorf("failed to delete index file %s: %w", fileName, err)
	}
	return nil
}

// WriteHashIndex writes the key hashes of one bucket to a new index file.
func (h *Handler) WriteHashIndex(ctx context.Context, hashes []int32) (IndexFileMeta, error) {
	data, err := EncodeHashIndex(hashes, h.compression)
	if err != nil {
		return IndexFileMeta{}, err
	}
	name := h.pathFactory.NewIndexFileName()
	if err := h.fio.Write(ctx, pathfactory.IndexFilePath(name), data, false); err != nil {
		return IndexFileMeta{}, fmt.Errorf("failed to write index file %s: %w", name, err)
	}
	return IndexFileMeta{
		IndexType: core.HashIndexType,
		FileName:  name,
		FileSize:  int64(len(data)),
		RowCount:  int64(len(hashes)),
	}, nil
}

// ReadHashIndex reads back a hash index file.
func (h *Handler) ReadHashIndex(ctx context.Context, meta IndexFileMeta) ([]int32, error) {
	if meta.IndexType != core.HashIndexType {
		return nil, fmt.Errorf("index file %s has type %s, not %s", meta.FileName, meta.IndexType, core.HashIndexType)
	}
	data, err := h.fio.Read(ctx, pathfactory.IndexFilePath(meta.FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read index file %s: %w", meta.FileName, err)
	}
	hashes, err := DecodeHashIndex(data)
	if err != nil {
		return nil, fmt.Errorf("index file %s: %w", meta.FileName, err)
	}
	return hashes, nil
}
