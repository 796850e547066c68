package batch

import (
	"sync"
)

// ProcessorMetrics counts delivery outcomes. Counters may be read from other
// goroutines while the owning Processor runs.
type ProcessorMetrics struct {
	RecordsAccepted int
	RecordsSent     int
	RecordsSkipped  int
	RecordsDropped  int
	BatchesSent     int
	BatchesFailed   int
	EmptyFlushes    int
	mu              sync.RWMutex
}

func (m *ProcessorMetrics) IncRecordsAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsAccepted++
}

// IncBatchesSent records a delivered batch with sent records on the wire and
// skipped nil records left out of it.
func (m *ProcessorMetrics) IncBatchesSent(sent, skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesSent++
	m.RecordsSent += sent
	m.RecordsSkipped += skipped
}

func (m *ProcessorMetrics) IncBatchesFailed(dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesFailed++
	m.RecordsDropped += dropped
}

func (m *ProcessorMetrics) IncEmptyFlushes(skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmptyFlushes++
	m.RecordsSkipped += skipped
}

func (m *ProcessorMetrics) GetMetricsStamp() ProcessorMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ProcessorMetrics{
		RecordsAccepted: m.RecordsAccepted,
		RecordsSent:     m.RecordsSent,
		RecordsSkipped:  m.RecordsSkipped,
		RecordsDropped:  m.RecordsDropped,
		BatchesSent:     m.BatchesSent,
		BatchesFailed:   m.BatchesFailed,
		EmptyFlushes:    m.EmptyFlushes,
	}
}
