package bson

import (
	"encoding/json"
	"fmt"
)

// FromJSON decodes a JSON object into a Record. Numbers decode to
// KindFloat64 unless they are integral and fit in int64, in which case
// they decode to KindInt64 — this lets round-tripped integer IDs and
// counters stay exact instead of drifting through float64. Nested
// objects and arrays decode recursively; JSON null decodes to KindNull.
//
// This is the CLI's input path (spec section 6.8): operators pass
// record bodies as JSON on the command line or in files, and shardkeepd
// converts them to the internal Value representation before they ever
// reach pkg/collection.
func FromJSON(data []byte) (Record, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("bson: decode JSON record: %w", err)
	}
	rec := make(Record, len(raw))
	for k, v := range raw {
		rec[k] = valueFromJSON(v)
	}
	return rec, nil
}

func valueFromJSON(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		if i := int64(t); float64(i) == t {
			return Int64(i)
		}
		return Float64(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = valueFromJSON(e)
		}
		return Array(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = valueFromJSON(e)
		}
		return Object(out)
	default:
		return Null()
	}
}

// ToJSON renders a record as a standard JSON object, for display to a
// CLI operator or export. KindBytes fields render as JSON strings of
// their raw bytes reinterpreted as UTF-8 (lossy for non-text payloads,
// acceptable since the CLI is a human-facing surface, not a wire
// protocol — callers needing exact byte fidelity should use Encode).
func ToJSON(rec Record) ([]byte, error) {
	return json.MarshalIndent(valueToJSONAny(Object(rec)), "", "  ")
}

func valueToJSONAny(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt64:
		return v.Int64
	case KindFloat64:
		return v.Float64
	case KindString:
		return v.Str
	case KindBytes:
		return string(v.Bytes)
	case KindTimestamp:
		return v.Timestamp
	case KindArray:
		out := make([]interface{}, len(v.Array))
		for i, e := range v.Array {
			out[i] = valueToJSONAny(e)
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Object))
		for k, e := range v.Object {
			out[k] = valueToJSONAny(e)
		}
		return out
	default:
		return nil
	}
}
