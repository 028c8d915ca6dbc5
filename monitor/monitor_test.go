package monitor

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Records(t *testing.T) {
	m, err := NewMonitor("test")
	require.NoError(t, err)

	m.ObserveOperation("change_feature", "applied")
	m.ObserveOperation("change_feature", "applied")
	m.ObserveOperation("change_feature", "invalid")
	m.ObservePersist("save", time.Millisecond, errors.New("disk full"))
	m.ObservePersist("save", time.Millisecond, nil)
	m.SetGameActive(true)
	m.SetDirty(true)
	m.IncSubscribers()
	m.IncSubscribers()
	m.DecSubscribers()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.Operations.WithLabelValues("change_feature", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.PersistFailures.WithLabelValues("save")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.GameActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Dirty))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Subscribers))

	count, err := testutil.GatherAndCount(m.Gatherer(), "test_operations_total", "test_state_dirty")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMonitor_NilIsSafe(t *testing.T) {
	var m *Monitor
	m.ObserveOperation("x", "y")
	m.ObservePersist("save", time.Second, nil)
	m.SetGameActive(true)
	m.SetDirty(false)
	m.IncSubscribers()
	m.DecSubscribers()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestMonitor_Handler(t *testing.T) {
	m, err := NewMonitor("test")
	require.NoError(t, err)
	m.ObserveOperation("start_game", "applied")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_operations_total{operation="start_game",result="applied"} 1`))
}
