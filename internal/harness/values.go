package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// normalize converts v to its JSON shape: maps, slices, strings, float64,
// bool and nil. Scenario values decoded from YAML and engine values then
// compare directly.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

// marshalBody encodes a scenario body. A nil body stays empty.
func marshalBody(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

// decodeBody decodes a JSON body for the trace. Invalid JSON is kept as
// a string.
func decodeBody(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// subsetMatch reports whether actual contains expected. Maps match when
// every expected key matches; a nil expectation matches an absent key.
// Everything else must be deeply equal.
func subsetMatch(actual, expected any) bool {
	expMap, ok := expected.(map[string]any)
	if !ok {
		return reflect.DeepEqual(actual, expected)
	}
	actMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, want := range expMap {
		got, exists := actMap[key]
		if want == nil {
			if exists && got != nil {
				return false
			}
			continue
		}
		if !exists || !subsetMatch(got, want) {
			return false
		}
	}
	return true
}
