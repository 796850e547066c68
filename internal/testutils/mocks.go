package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
)

// MockSender records every payload handed to Send and returns Err.
type MockSender struct {
	Payloads []string
	mu       sync.Mutex
	Err      error
}

func (m *MockSender) Send(_ context.Context, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Payloads = append(m.Payloads, payload)
	return m.Err
}

func (m *MockSender) GetPayloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Payloads...)
}

// MockRecordSink records every group handed to Write.
type MockRecordSink struct {
	Groups     [][]*logging.Record
	mu         sync.Mutex
	ShouldFail bool
	WriteCalls int
}

func (m *MockRecordSink) Write(_ context.Context, records []*logging.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalls++
	if m.ShouldFail {
		return fmt.Errorf("mock write failed")
	}
	m.Groups = append(m.Groups, append([]*logging.Record(nil), records...))
	return nil
}

func (m *MockRecordSink) GetRecords() []*logging.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*logging.Record
	for _, g := range m.Groups {
		all = append(all, g...)
	}
	return all
}

func (m *MockRecordSink) GetStats() (records int, writeCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.Groups {
		records += len(g)
	}
	return records, m.WriteCalls
}

// MockEncoder returns Docs[value.String()] when present, otherwise a quoted
// copy of the value.
type MockEncoder struct {
	Docs map[string]string
	Err  error
}

func (m *MockEncoder) Encode(_ string, _ *logging.Schema, value logging.Value) ([]byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if doc, ok := m.Docs[value.String()]; ok {
		return []byte(doc), nil
	}
	return []byte(fmt.Sprintf("%q", value.String())), nil
}

func RawRecord(topic, value string) *logging.Record {
	return &logging.Record{Topic: topic, Value: logging.RawValue(value)}
}

func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"default_pod-1_uid123/container-1/app.log":          "log content 1\nline 2\n",
		"default_pod-1_uid123/container-2/app.log":          "log content 2\nerror log\n",
		"kube-system_pod-2_uid456/container/app.log":        "log content 3\ninfo message\n",
		"default_pod-3_uid789/container/app.log":            "log content 4\n",
		"monitoring_pod-4_uid101/grafana/grafana.log":       "grafana starting\n",
		"monitoring_pod-4_uid101/prometheus/prometheus.log": "prometheus ready\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
