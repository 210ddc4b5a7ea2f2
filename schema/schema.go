// Package schema persists table schemas and maps statistics between schema versions.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/fileio"
	"github.com/INLOpen/nexuslake/pathfactory"
)

// Option keys understood inside TableSchema.Options.
const (
	OptionBucket    = "bucket"
	OptionBucketKey = "bucket-key"
)

// TableSchema is one immutable version of a table's schema.
type TableSchema struct {
	ID            int64             `json:"id"`
	Fields        core.RowType      `json:"fields"`
	PartitionKeys []string          `json:"partitionKeys"`
	PrimaryKeys   []string          `json:"primaryKeys"`
	BucketKeys    []string          `json:"bucketKeys,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
	TimeMillis    int64             `json:"timeMillis"`
}

// LogicalRowType returns all fields.
func (s *TableSchema) LogicalRowType() core.RowType { return s.Fields }

// PartitionType returns the partition key fields in key order.
func (s *TableSchema) PartitionType() (core.RowType, error) {
	return s.Fields.Project(s.PartitionKeys)
}

// EffectiveBucketKeys returns the configured bucket keys, falling back to the
// primary keys minus partition keys, then to all non-partition fields.
func (s *TableSchema) EffectiveBucketKeys() []string {
	if len(s.BucketKeys) > 0 {
		return s.BucketKeys
	}
	partition := make(map[string]struct{}, len(s.PartitionKeys))
	for _, k := range s.PartitionKeys {
		partition[k] = struct{}{}
	}
	var out []string
	source := s.PrimaryKeys
	if len(source) == 0 {
		source = s.Fields.FieldNames()
	}
	for _, k := range source {
		if _, ok := partition[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// BucketKeyType returns the bucket key fields.
func (s *TableSchema) BucketKeyType() (core.RowType, error) {
	return s.Fields.Project(s.EffectiveBucketKeys())
}

// NumBuckets reads the bucket option; tables without it have one bucket.
func (s *TableSchema) NumBuckets() int32 {
	if v, ok := s.Options[OptionBucket]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return int32(n)
		}
	}
	return 1
}

// FieldMapping returns, for every field of s, the position of the same field id
// in old, or -1 when old did not have it.
func (s *TableSchema) FieldMapping(old *TableSchema) []int {
	positions := make(map[int]int, len(old.Fields))
	for i, f := range old.Fields {
		positions[f.ID] = i
	}
	out := make([]int, len(s.Fields))
	for i, f := range s.Fields {
		if p, ok := positions[f.ID]; ok {
			out[i] = p
		} else {
			out[i] = -1
		}
	}
	return out
}

// Provider resolves schema ids. It is safe for concurrent use.
type Provider interface {
	Schema(ctx context.Context, id int64) (*TableSchema, error)
}

// Manager reads and writes schema files.
type Manager struct {
	fio    fileio.FileIO
	logger *slog.Logger
}

var _ Provider = (*Manager)(nil)

// NewManager creates a schema manager.
func NewManager(fio fileio.FileIO, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{fio: fio, logger: logger.With("component", "SchemaManager")}
}

// Schema loads schema id.
func (m *Manager) Schema(ctx context.Context, id int64) (*TableSchema, error) {
	data, err := m.fio.Read(ctx, pathfactory.SchemaPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %d: %w", id, err)
	}
	var s TableSchema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema %d: %w", id, err)
	}
	return &s, nil
}

// Commit writes a new schema file. It fails if the id is already taken.
func (m *Manager) Commit(ctx context.Context, s *TableSchema) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema %d: %w", s.ID, err)
	}
	if err := m.fio.Write(ctx, pathfactory.SchemaPath(s.ID), data, false); err != nil {
		return fmt.Errorf("failed to write schema %d: %w", s.ID, err)
	}
	m.logger.Info("Committed schema.", "schema_id", s.ID, "fields", len(s.Fields))
	return nil
}

// Latest returns the schema with the highest id, or nil when none exist.
func (m *Manager) Latest(ctx context.Context) (*TableSchema, error) {
	files, err := m.fio.List(ctx, core.SchemaDirName)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	var ids []int64
	for _, f := range files {
		name := f.Path[len(core.SchemaDirName)+1:]
		if len(name) <= len(core.SchemaPrefix) || name[:len(core.SchemaPrefix)] != core.SchemaPrefix {
			continue
		}
		id, err := strconv.ParseInt(name[len(core.SchemaPrefix):], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return m.Schema(ctx, ids[len(ids)-1])
}
