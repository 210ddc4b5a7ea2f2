// Package manifest models the ADD/DELETE records that describe which data files a
// snapshot contains, the files and lists they are persisted in, and the compaction
// of those files.
package manifest

import (
	"fmt"
	"time"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/stats"
)

// FileKind says whether an entry adds or deletes a data file.
type FileKind int8

const (
	KindAdd    FileKind = 0
	KindDelete FileKind = 1
)

func (k FileKind) String() string {
	switch k {
	case KindAdd:
		return "ADD"
	case KindDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int8(k))
	}
}

// FileKindFromByte validates a persisted kind.
func FileKindFromByte(b int32) (FileKind, error) {
	switch FileKind(b) {
	case KindAdd, KindDelete:
		return FileKind(b), nil
	}
	return 0, &core.CorruptionError{Message: fmt.Sprintf("Unknown file kind %d. Manifest might be corrupted.", b)}
}

// DataFileMeta describes one physical data file.
type DataFileMeta struct {
	FileName          string
	FileSize          int64
	RowCount          int64
	MinKey            core.BinaryRow
	MaxKey            core.BinaryRow
	KeyStats          stats.BinaryTableStats
	ValueStats        stats.BinaryTableStats
	MinSequenceNumber int64
	MaxSequenceNumber int64
	SchemaID          int64
	Level             int32
	ExtraFiles        []string
	CreationTime      time.Time
}

// ManifestEntry is one ADD or DELETE of one data file in one partition and bucket.
type ManifestEntry struct {
	Kind         FileKind
	Partition    core.BinaryRow
	Bucket       int32
	TotalBuckets int32
	File         *DataFileMeta
}

// Identifier names the logical slot of a data file. Entries with equal identifiers
// refer to the same file.
type Identifier struct {
	Partition core.BinaryRow
	Bucket    int32
	Level     int32
	FileName  string
}

func (id Identifier) String() string {
	return fmt.Sprintf("{partition=%s, bucket=%d, level=%d, fileName=%s}", id.Partition, id.Bucket, id.Level, id.FileName)
}

// Identifier returns the slot this entry refers to.
func (e ManifestEntry) Identifier() Identifier {
	return Identifier{Partition: e.Partition, Bucket: e.Bucket, Level: e.File.Level, FileName: e.File.FileName}
}

// EntryMap is an identifier-keyed map that iterates in first-insertion order.
// Removing and re-adding a key moves it to the end.
type EntryMap struct {
	index   map[Identifier]int
	entries []ManifestEntry
	live    []bool
	size    int
}

// NewEntryMap creates an empty map.
func NewEntryMap() *EntryMap {
	return &EntryMap{index: make(map[Identifier]int)}
}

// Len returns the number of live entries.
func (m *EntryMap) Len() int { return m.size }

// Contains reports whether id is present.
func (m *EntryMap) Contains(id Identifier) bool {
	_, ok := m.index[id]
	return ok
}

// Get returns the entry for id.
func (m *EntryMap) Get(id Identifier) (ManifestEntry, bool) {
	i, ok := m.index[id]
	if !ok {
		return ManifestEntry{}, false
	}
	return m.entries[i], true
}

func (m *EntryMap) put(id Identifier, e ManifestEntry) {
	if i, ok := m.index[id]; ok {
		m.entries[i] = e
		return
	}
	m.index[id] = len(m.entries)
	m.entries = append(m.entries, e)
	m.live = append(m.live, true)
	m.size++
}

func (m *EntryMap) remove(id Identifier) {
	i, ok := m.index[id]
	if !ok {
		return
	}
	delete(m.index, id)
	m.live[i] = false
	m.entries[i] = ManifestEntry{}
	m.size--
	if len(m.entries) > 64 && m.size < len(m.entries)/4 {
		m.compact()
	}
}

func (m *EntryMap) compact() {
	entries := make([]ManifestEntry, 0, m.size)
	live := make([]bool, 0, m.size)
	for i, e := range m.entries {
		if !m.live[i] {
			continue
		}
		m.index[e.Identifier()] = len(entries)
		entries = append(entries, e)
		live = append(live, true)
	}
	m.entries, m.live = entries, live
}

// Values returns the live entries in iteration order.
func (m *EntryMap) Values() []ManifestEntry {
	out := make([]ManifestEntry, 0, m.size)
	for i, e := range m.entries {
		if m.live[i] {
			out = append(out, e)
		}
	}
	return out
}

// Clear empties the map.
func (m *EntryMap) Clear() {
	m.index = make(map[Identifier]int)
	m.entries = nil
	m.live = nil
	m.size = 0
}

// MergeInto folds entries into m: an ADD of a present identifier is corruption, a
// DELETE cancels a present ADD and is otherwise kept so it can cancel an older ADD
// processed later.
func MergeInto(entries []ManifestEntry, m *EntryMap) error {
	for _, e := range entries {
		id := e.Identifier()
		switch e.Kind {
		case KindAdd:
			if m.Contains(id) {
				return core.NewDuplicateAddError(id.String())
			}
			m.put(id, e)
		case KindDelete:
			if m.Contains(id) {
				m.remove(id)
			} else {
				m.put(id, e)
			}
		default:
			return &core.CorruptionError{
				FileName: e.File.FileName,
				Message:  fmt.Sprintf("Unknown value kind %s", e.Kind),
			}
		}
	}
	return nil
}

// MergeEntries collapses entries into their final states, in first-insertion order.
func MergeEntries(entries []ManifestEntry) ([]ManifestEntry, error) {
	m := NewEntryMap()
	if err := MergeInto(entries, m); err != nil {
		return nil, err
	}
	return m.Values(), nil
}

// AssertNoDelete fails on the first DELETE entry.
func AssertNoDelete(entries []ManifestEntry) error {
	for _, e := range entries {
		if e.Kind == KindDelete {
			return core.NewOrphanDeleteError(e.Identifier().String())
		}
	}
	return nil
}
