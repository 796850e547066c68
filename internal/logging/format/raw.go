package format

import (
	"strings"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
)

// RawJoin joins record values with "," without brackets or metadata.
type RawJoin struct{}

func NewRawJoin() *RawJoin {
	return &RawJoin{}
}

func (f *RawJoin) Format(records []*logging.Record) (string, bool, error) {
	var sb strings.Builder
	n := 0
	for _, record := range records {
		if !sendable(record) {
			continue
		}
		if n > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(record.Value.String())
		n++
	}

	if n == 0 {
		return "", false, nil
	}
	return sb.String(), true, nil
}
