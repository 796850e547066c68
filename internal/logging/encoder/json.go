package encoder

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/Chichichkin/dd-logs-sink/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONEncoder converts record values to JSON documents. With SchemasEnable
// set, each document is wrapped as {"schema": ..., "payload": ...}.
type JSONEncoder struct {
	SchemasEnable bool
}

type envelope struct {
	Schema  *logging.Schema `json:"schema"`
	Payload any             `json:"payload"`
}

func (e JSONEncoder) Encode(topic string, schema *logging.Schema, value logging.Value) ([]byte, error) {
	payload, err := toJSONValue(value)
	if err != nil {
		return nil, fmt.Errorf("topic %s: %w", topic, err)
	}

	var doc any = payload
	if e.SchemasEnable {
		doc = envelope{Schema: schema, Payload: payload}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("topic %s: failed to marshal value: %w", topic, err)
	}
	return out, nil
}

func toJSONValue(value logging.Value) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case logging.StructValue:
		return v.Fields, nil
	case logging.RawValue:
		return string(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}
