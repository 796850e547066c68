// Package format renders batches of records into request bodies for the
// Datadog logs intake.
//
// Two payload modes exist and are mutually exclusive for a given processor:
//
//   - structured: a JSON object whose "message" array holds one encoded
//     document per record, next to the ddsource/ddtags/hostname/service
//     metadata fields.
//   - raw: the natural string form of each record value joined with ",", with
//     no envelope at all.
//
// In both modes nil records and records with a nil value are skipped, and a
// batch with nothing left reports ok == false so that no request is made.
package format

import (
	"errors"
	"fmt"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
)

type Mode string

const (
	ModeStructured Mode = "structured"
	ModeRaw        Mode = "raw"
)

var ErrUnknownMode = errors.New("unknown payload mode")

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStructured, ModeRaw:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// New returns the formatter for mode. The encoder is only used by the
// structured mode.
func New(mode Mode, encoder logging.Encoder, metadata logging.Metadata) (logging.Formatter, error) {
	switch mode {
	case ModeStructured:
		return NewStructured(encoder, metadata), nil
	case ModeRaw:
		return NewRawJoin(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func sendable(record *logging.Record) bool {
	return record != nil && record.Value != nil
}
