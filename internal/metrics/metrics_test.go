package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCycle_ConsecutiveFailures(t *testing.T) {
	m := New()
	m.RecordCycle("blog", time.Millisecond, errors.New("timeout"))
	m.RecordCycle("blog", time.Millisecond, errors.New("timeout"))

	s, ok := m.Source("blog")
	require.True(t, ok)
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.Equal(t, "timeout", s.LastError)
	assert.False(t, m.Healthy(2))
	assert.True(t, m.Healthy(3))

	m.RecordCycle("blog", time.Millisecond, nil)
	s, _ = m.Source("blog")
	assert.Zero(t, s.ConsecutiveFailures)
	assert.Empty(t, s.LastError)
	assert.True(t, m.Healthy(1))
	assert.Equal(t, int64(3), m.CyclesRun)
	assert.Equal(t, int64(2), m.CyclesFailed)
}

func TestGetStats(t *testing.T) {
	m := New()
	m.IncrementMessagesSent("blog")
	m.IncrementMessagesSent("blog")
	m.IncrementNotifyFailures()
	m.RecordCycle("blog", 10*time.Millisecond, nil)

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["messages_sent"])
	assert.Equal(t, int64(1), stats["notify_failures"])
	assert.Equal(t, int64(10), stats["last_processing_time_ms"])

	sources := stats["sources"].(map[string]interface{})
	blog := sources["blog"].(map[string]interface{})
	assert.Equal(t, int64(2), blog["items_notified"])
	assert.Equal(t, 0, blog["consecutive_failures"])

	_, ok := m.Source("missing")
	assert.False(t, ok)
}
