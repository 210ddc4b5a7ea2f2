// Package metrics defines the Prometheus collectors of the metadata core. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. Build it once per process with New.
type Metrics struct {
	ManifestsRead      prometheus.Counter
	ManifestsWritten   prometheus.Counter
	ManifestsDeleted   prometheus.Counter
	ManifestCacheHits  prometheus.Counter
	ManifestCacheMiss  prometheus.Counter
	Compactions        *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	FilesPlanned       prometheus.Counter
	DataFilesDeleted   prometheus.Counter
	SnapshotsExpired   prometheus.Counter
	DirectoriesDeleted prometheus.Counter
}

// New registers the collectors on reg. A nil reg creates unregistered collectors,
// which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ManifestsRead: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_manifests_read_total",
			Help: "Total number of manifest files read from storage.",
		}),
		ManifestsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_manifests_written_total",
			Help: "Total number of manifest files written.",
		}),
		ManifestsDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_manifests_deleted_total",
			Help: "Total number of manifest, manifest list and index manifest files deleted.",
		}),
		ManifestCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_manifest_cache_hits_total",
			Help: "Manifest reads served from the segment cache.",
		}),
		ManifestCacheMiss: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_manifest_cache_misses_total",
			Help: "Manifest reads that missed the segment cache.",
		}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexuslake_manifest_compactions_total",
			Help: "Manifest compactions that rewrote files, by kind.",
		}, []string{"kind"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexuslake_scan_plan_duration_seconds",
			Help:    "Duration of scan planning.",
			Buckets: prometheus.DefBuckets,
		}),
		FilesPlanned: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_scan_files_planned_total",
			Help: "Total number of data files returned by scan plans.",
		}),
		DataFilesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_data_files_deleted_total",
			Help: "Total number of data and extra files deleted by garbage collection.",
		}),
		SnapshotsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_snapshots_expired_total",
			Help: "Total number of snapshots expired.",
		}),
		DirectoriesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "nexuslake_directories_deleted_total",
			Help: "Total number of empty bucket and partition directories removed.",
		}),
	}
}

func (m *Metrics) IncManifestsRead() {
	if m != nil {
		m.ManifestsRead.Inc()
	}
}

func (m *Metrics) AddManifestsWritten(n int) {
	if m != nil {
		m.ManifestsWritten.Add(float64(n))
	}
}

func (m *Metrics) IncManifestsDeleted() {
	if m != nil {
		m.ManifestsDeleted.Inc()
	}
}

func (m *Metrics) IncCacheHit() {
	if m != nil {
		m.ManifestCacheHits.Inc()
	}
}

func (m *Metrics) IncCacheMiss() {
	if m != nil {
		m.ManifestCacheMiss.Inc()
	}
}

// IncCompaction counts one compaction of kind "minor" or "full".
func (m *Metrics) IncCompaction(kind string) {
	if m != nil {
		m.Compactions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveScan(start time.Time, files int) {
	if m != nil {
		m.ScanDuration.Observe(time.Since(start).Seconds())
		m.FilesPlanned.Add(float64(files))
	}
}

func (m *Metrics) IncDataFilesDeleted() {
	if m != nil {
		m.DataFilesDeleted.Inc()
	}
}

func (m *Metrics) IncSnapshotsExpired() {
	if m != nil {
		m.SnapshotsExpired.Inc()
	}
}

func (m *Metrics) IncDirectoriesDeleted() {
	if m != nil {
		m.DirectoriesDeleted.Inc()
	}
}
