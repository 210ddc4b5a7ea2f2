package manifest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/internal/avroio"
	"github.com/INLOpen/nexuslake/pathfactory"
	"github.com/hamba/avro/v2/ocf"
)

// ManifestListOptions configures a ManifestList.
type ManifestListOptions struct {
	FileIO      fileio.FileIO
	PathFactory *pathfactory.Factory
	Codec       ocf.CodecName
	Logger      *slog.Logger
}

// ManifestList reads and writes ordered lists of ManifestFileMeta. Lists live
// next to the manifests they reference.
type ManifestList struct {
	fio         fileio.FileIO
	pathFactory *pathfactory.Factory
	codec       ocf.CodecName
	logger      *slog.Logger
}

// NewManifestList creates a manifest list codec.
func NewManifestList(opts ManifestListOptions) *ManifestList {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codec := opts.Codec
	if codec == "" {
		codec = ocf.ZStandard
	}
	return &ManifestList{
		fio:         opts.FileIO,
		pathFactory: opts.PathFactory,
		codec:       codec,
		logger:      logger.With("component", "ManifestList"),
	}
}

// Write persists metas in order under a new name and returns that name.
func (l *ManifestList) Write(ctx context.Context, metas []ManifestFileMeta) (string, error) {
	records := make([]fileMetaAvro, len(metas))
	for i, m := range metas {
		records[i] = toFileMetaAvro(m)
	}
	data, err := avroio.Encode(fileMetaAvroSchema, l.codec, records)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest list: %w", err)
	}
	name := l.pathFactory.NewManifestListName()
	if err := l.fio.Write(ctx, pathfactory.ManifestPath(name), data, false); err != nil {
		if !fileio.IsExist(err) {
			fileio.DeleteQuietly(ctx, l.fio, pathfactory.ManifestPath(name), func(path string, err error) {
				l.logger.Warn("Failed to clean up manifest list after failed write.", "manifest_list", path, "error", err)
			})
		}
		return "", fmt.Errorf("failed to write manifest list %s: %w", name, err)
	}
	return name, nil
}

// Read returns the metas of a list in their persisted order.
func (l *ManifestList) Read(ctx context.Context, name string) ([]ManifestFileMeta, error) {
	data, err := l.fio.Read(ctx, pathfactory.ManifestPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest list %s: %w", name, err)
	}
	records, err := avroio.Decode[fileMetaAvro](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest list %s: %w", name, err)
	}
	metas := make([]ManifestFileMeta, len(records))
	for i, r := range records {
		metas[i] = fromFileMetaAvro(r)
	}
	return metas, nil
}

// Delete removes a list file. The manifests it references are untouched.
func (l *ManifestList) Delete(ctx context.Context, name string) error {
	if _, err := l.fio.Delete(ctx, pathfactory.ManifestPath(name), false); err != nil {
		return fmt.Errorf("failed to delete manifest list %s: %w", name, err)
	}
	return nil
}
