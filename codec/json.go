package codec

import "encoding/json"

// JSON is the default serializer. The zero value is ready to use.
type JSON struct{}

var _ Serializer = JSON{}

func (JSON) Name() string                    { return "json" }
func (JSON) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSON) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
