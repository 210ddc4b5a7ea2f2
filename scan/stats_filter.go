package scan

import (
	"context"
	"fmt"

	"github.com/INLOpen/nexuslake/manifest"
	"github.com/INLOpen/nexuslake/predicate"
	"github.com/INLOpen/nexuslake/schema"
	"github.com/INLOpen/nexuslake/stats"
	"github.com/zhangyunhao116/skipmap"
)

// SchemaCache resolves the schema a data file was written with. It is filled
// lazily from concurrent manifest readers; two readers racing on the same id
// may both load it, and the first stored value wins.
type SchemaCache struct {
	provider schema.Provider
	current  *schema.TableSchema
	schemas  *skipmap.OrderedMap[int64, *schema.TableSchema]
}

// NewSchemaCache creates a cache seeded with the current table schema.
func NewSchemaCache(provider schema.Provider, current *schema.TableSchema) *SchemaCache {
	c := &SchemaCache{
		provider: provider,
		current:  current,
		schemas:  skipmap.New[int64, *schema.TableSchema](),
	}
	if current != nil {
		c.schemas.Store(current.ID, current)
	}
	return c
}

// Current returns the table schema the scan plans against.
func (c *SchemaCache) Current() *schema.TableSchema { return c.current }

// Schema returns schema id, loading it from the provider on first access.
func (c *SchemaCache) Schema(ctx context.Context, id int64) (*schema.TableSchema, error) {
	if s, ok := c.schemas.Load(id); ok {
		return s, nil
	}
	if c.provider == nil {
		return nil, fmt.Errorf("schema %d is not cached and no schema provider is configured", id)
	}
	s, err := c.provider.Schema(ctx, id)
	if err != nil {
		return nil, err
	}
	actual, _ := c.schemas.LoadOrStore(id, s)
	return actual, nil
}

// StatsFilter is the per-store statistics pushdown. Test reports whether the
// data file of e may contain rows matching the filter; false means it provably
// cannot and the file is skipped.
type StatsFilter interface {
	Test(ctx context.Context, e *manifest.ManifestEntry, schemas *SchemaCache) (bool, error)
}

// AppendOnlyStats tests a predicate over the table's value fields against the
// value statistics of each file, evolved from the file's schema to the current one.
type AppendOnlyStats struct {
	Filter predicate.Predicate
}

func (a AppendOnlyStats) Test(ctx context.Context, e *manifest.ManifestEntry, schemas *SchemaCache) (bool, error) {
	if a.Filter == nil {
		return true, nil
	}
	fields, err := e.File.ValueStats.Fields()
	if err != nil {
		return false, fmt.Errorf("failed to decode value stats of %s: %w", e.File.FileName, err)
	}
	if len(fields) == 0 {
		return true, nil
	}
	current := schemas.Current()
	if current != nil && e.File.SchemaID != current.ID {
		written, err := schemas.Schema(ctx, e.File.SchemaID)
		if err != nil {
			return false, fmt.Errorf("failed to resolve schema of %s: %w", e.File.FileName, err)
		}
		fields = stats.Evolve(fields, current.FieldMapping(written), e.File.RowCount)
	}
	return a.Filter.TestStats(e.File.RowCount, fields), nil
}

// KeyValueStats tests a predicate over the primary key fields against the key
// statistics of each file. Primary keys never change across schema versions.
type KeyValueStats struct {
	Filter predicate.Predicate
}

func (k KeyValueStats) Test(_ context.Context, e *manifest.ManifestEntry, _ *SchemaCache) (bool, error) {
	if k.Filter == nil {
		return true, nil
	}
	fields, err := e.File.KeyStats.Fields()
	if err != nil {
		return false, fmt.Errorf("failed to decode key stats of %s: %w", e.File.FileName, err)
	}
	if len(fields) == 0 {
		return true, nil
	}
	return k.Filter.TestStats(e.File.RowCount, fields), nil
}
