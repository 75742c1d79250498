package codec

import "encoding/json"

// JSON is the default codec. Attribute values round-trip through it as JSON
// primitives: strings, bools, float64 numbers, nil, and nested maps/slices
// thereof.
type JSON struct{}

// Marshal encodes v as JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the stable codec name.
func (JSON) Name() string { return "json" }
