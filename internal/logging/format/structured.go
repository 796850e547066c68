package format

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
)

// Structured builds {"message":[...],"ddsource":...,"ddtags":...,"hostname":...,"service":...}.
//
// Encoded documents are written into the message array verbatim. Malformed
// encoder output is not detected and ends up in the payload as is.
type Structured struct {
	encoder  logging.Encoder
	metadata logging.Metadata
}

func NewStructured(encoder logging.Encoder, metadata logging.Metadata) *Structured {
	return &Structured{
		encoder:  encoder,
		metadata: metadata,
	}
}

func (f *Structured) Format(records []*logging.Record) (string, bool, error) {
	documents := make([][]byte, 0, len(records))
	for _, record := range records {
		if !sendable(record) {
			continue
		}

		doc, err := f.encoder.Encode(record.Topic, record.Schema, record.Value)
		if err != nil {
			return "", false, fmt.Errorf("failed to encode record from topic %q: %w", record.Topic, err)
		}
		documents = append(documents, bytes.TrimSpace(doc))
	}

	if len(documents) == 0 {
		return "", false, nil
	}

	return f.envelope(documents), true, nil
}

func (f *Structured) envelope(documents [][]byte) string {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("message")
	stream.WriteArrayStart()
	for i, doc := range documents {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteRaw(string(doc))
	}
	stream.WriteArrayEnd()

	stream.WriteMore()
	stream.WriteObjectField("ddsource")
	stream.WriteString(f.metadata.Source)

	optional := []struct {
		key, value string
	}{
		{"ddtags", f.metadata.Tags},
		{"hostname", f.metadata.Hostname},
		{"service", f.metadata.Service},
	}
	for _, field := range optional {
		if field.value == "" {
			continue
		}
		stream.WriteMore()
		stream.WriteObjectField(field.key)
		stream.WriteString(field.value)
	}
	stream.WriteObjectEnd()

	return string(stream.Buffer())
}
