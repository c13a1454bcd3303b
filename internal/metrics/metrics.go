package metrics

import (
	"sort"
	"sync"
	"time"
)

// SourceStats tracks one watched source.
type SourceStats struct {
	Cycles              int64
	Failures            int64
	ConsecutiveFailures int
	ItemsNotified       int64
	LastCycle           time.Time
	LastSuccess         time.Time
	LastError           string
}

type Metrics struct {
	mu sync.RWMutex

	// Counters
	CyclesRun         int64
	CyclesFailed      int64
	NotModified       int64
	ItemsDetected     int64
	MessagesSent      int64
	NotifyFailures    int64
	PersistFailures   int64
	AlertsSent        int64
	ExportsWritten    int64
	ParseFailures     int64
	DuplicatesDropped int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	StartedAt     time.Time
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string

	sources map[string]*SourceStats
}

var Global = New()

func New() *Metrics {
	return &Metrics{StartedAt: time.Now(), sources: make(map[string]*SourceStats)}
}

func (m *Metrics) source(name string) *SourceStats {
	s, ok := m.sources[name]
	if !ok {
		s = &SourceStats{}
		m.sources[name] = s
	}
	return s
}

// RecordCycle stores the outcome of one cycle of a source.
func (m *Metrics) RecordCycle(source string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.CyclesRun++
	m.LastRunTime = now
	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++
	m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)

	s := m.source(source)
	s.Cycles++
	s.LastCycle = now
	if err != nil {
		m.CyclesFailed++
		m.LastError = source + ": " + err.Error()
		m.LastErrorTime = now
		s.Failures++
		s.ConsecutiveFailures++
		s.LastError = err.Error()
		return
	}
	s.ConsecutiveFailures = 0
	s.LastSuccess = now
	s.LastError = ""
}

func (m *Metrics) IncrementNotModified() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotModified++
}

func (m *Metrics) AddItemsDetected(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsDetected += int64(n)
}

func (m *Metrics) IncrementMessagesSent(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
	m.source(source).ItemsNotified++
}

func (m *Metrics) IncrementNotifyFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotifyFailures++
}

func (m *Metrics) IncrementPersistFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistFailures++
}

func (m *Metrics) IncrementAlertsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlertsSent++
}

func (m *Metrics) IncrementExportsWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExportsWritten++
}

func (m *Metrics) IncrementParseFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ParseFailures++
}

func (m *Metrics) AddDuplicatesDropped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesDropped += int64(n)
}

// Source returns a copy of the stats of one source.
func (m *Metrics) Source(name string) (SourceStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sources[name]
	if !ok {
		return SourceStats{}, false
	}
	return *s, true
}

// Healthy reports false when any source has failed at least threshold cycles
// in a row. A threshold <= 0 disables the check.
func (m *Metrics) Healthy(threshold int) bool {
	if threshold <= 0 {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sources {
		if s.ConsecutiveFailures >= threshold {
			return false
		}
	}
	return true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	sources := make(map[string]interface{}, len(names))
	for _, name := range names {
		s := m.sources[name]
		sources[name] = map[string]interface{}{
			"cycles":               s.Cycles,
			"failures":             s.Failures,
			"consecutive_failures": s.ConsecutiveFailures,
			"items_notified":       s.ItemsNotified,
			"last_cycle":           formatTime(s.LastCycle),
			"last_success":         formatTime(s.LastSuccess),
			"last_error":           s.LastError,
		}
	}

	return map[string]interface{}{
		"cycles_run":                 m.CyclesRun,
		"cycles_failed":              m.CyclesFailed,
		"not_modified":               m.NotModified,
		"items_detected":             m.ItemsDetected,
		"messages_sent":              m.MessagesSent,
		"notify_failures":            m.NotifyFailures,
		"persist_failures":           m.PersistFailures,
		"alerts_sent":                m.AlertsSent,
		"exports_written":            m.ExportsWritten,
		"parse_failures":             m.ParseFailures,
		"duplicates_dropped":         m.DuplicatesDropped,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"uptime_seconds":             int64(time.Since(m.StartedAt).Seconds()),
		"last_run_time":              formatTime(m.LastRunTime),
		"last_error_time":            formatTime(m.LastErrorTime),
		"last_error":                 m.LastError,
		"sources":                    sources,
	}
}
