package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncManifestsRead()
	m.AddManifestsWritten(3)
	m.IncCompaction("full")
	m.IncCompaction("minor")
	m.IncCompaction("minor")
	m.ObserveScan(time.Now(), 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ManifestsRead))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ManifestsWritten))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Compactions.WithLabelValues("minor")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.FilesPlanned))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Panics(t, func() { New(reg) }, "double registration must fail loudly")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncManifestsRead()
		m.AddManifestsWritten(1)
		m.IncManifestsDeleted()
		m.IncCacheHit()
		m.IncCacheMiss()
		m.IncCompaction("minor")
		m.ObserveScan(time.Now(), 1)
		m.IncDataFilesDeleted()
		m.IncSnapshotsExpired()
		m.IncDirectoriesDeleted()
	})
}

func TestMetrics_Unregistered(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.IncDataFilesDeleted()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.DataFilesDeleted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DataFilesDeleted))
}
