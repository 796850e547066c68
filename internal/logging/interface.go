package logging

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Record is a single unit handed over by the upstream source. A record with a
// nil Value is accepted into a batch but never transmitted.
type Record struct {
	Topic  string
	Value  Value
	Schema *Schema
}

// Value is the payload of a record. It is either a StructValue, which the
// Encoder turns into a JSON document, or a RawValue, which is shipped as is.
type Value interface {
	// String returns the natural string representation used by the raw-join
	// payload mode.
	String() string
	isValue()
}

// StructValue is a structured value with named fields.
type StructValue struct {
	Fields map[string]any
}

func (StructValue) isValue() {}

func (v StructValue) String() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v.Fields[k]))
	}
	return "Struct{" + strings.Join(parts, ",") + "}"
}

// RawValue is an unstructured string value.
type RawValue string

func (RawValue) isValue() {}

func (v RawValue) String() string { return string(v) }

// Schema describes the value of a record.
type Schema struct {
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
	Optional bool   `json:"optional"`
	Version  int    `json:"version,omitempty"`
}

// Metadata is attached to every structured payload. Empty optional fields are
// treated as absent and omitted from the payload.
type Metadata struct {
	Source   string
	Tags     string
	Hostname string
	Service  string
}

// Encoder converts a record value into a serialized document.
type Encoder interface {
	Encode(topic string, schema *Schema, value Value) ([]byte, error)
}

// Formatter renders a batch into the wire body. ok is false when the batch
// holds nothing to send.
type Formatter interface {
	Format(records []*Record) (payload string, ok bool, err error)
}

// Sender delivers a formatted payload to the ingestion endpoint.
type Sender interface {
	Send(ctx context.Context, payload string) error
}

// RecordSink accepts groups of records from an upstream source.
type RecordSink interface {
	Write(ctx context.Context, records []*Record) error
}
