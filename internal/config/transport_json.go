package config

import "encoding/json"

// transportKnownFields lists the JSON keys TransportOptions itself decodes;
// everything else lands in Extra so future transports' options round-trip
// without magg needing to know about them yet.
var transportKnownFields = map[string]bool{
	"keep_alive":       true,
	"python_cmd":       true,
	"node_cmd":         true,
	"python_version":   true,
	"with_packages":    true,
	"from_package":     true,
	"use_package_lock": true,
	"headers":          true,
	"auth":             true,
	"sse_read_timeout": true,
}

// UnmarshalJSON decodes the known transport options and stashes any
// unrecognized keys in Extra; unknown options are tolerated, never
// rejected.
func (t *TransportOptions) UnmarshalJSON(data []byte) error {
	type known TransportOptions
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*t = TransportOptions(k)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if transportKnownFields[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		if t.Extra == nil {
			t.Extra = map[string]any{}
		}
		t.Extra[key] = v
	}
	return nil
}

// MarshalJSON emits the known fields alongside any Extra entries flattened
// into the same object.
func (t TransportOptions) MarshalJSON() ([]byte, error) {
	type known TransportOptions
	base, err := json.Marshal(known(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range t.Extra {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[key] = encoded
	}
	return json.Marshal(merged)
}
