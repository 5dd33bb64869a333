package codec

import (
	"encoding/json"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/cqkv/cqdb/model"
)

// ObjectCodec encodes opaque object fields into bytes.
// Implementations must be safe for concurrent use.
type ObjectCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSON is the standard-library JSON codec.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return "json" }

// GoJSON is a JSON codec backed by github.com/goccy/go-json.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }
func (GoJSON) Name() string                       { return "go-json" }

// DefaultObjectCodec is used when no codec is configured.
var DefaultObjectCodec ObjectCodec = GoJSON{}

// EncodeObject marshals v into an object value. A nil v yields null.
func EncodeObject(c ObjectCodec, v any) (model.Value, error) {
	if v == nil {
		return model.NullValue(model.TypeObject), nil
	}
	b, err := c.Marshal(v)
	if err != nil {
		return model.Value{}, fmt.Errorf("codec %s marshal failed: %w", c.Name(), err)
	}
	return model.ObjectValue(b), nil
}

// DecodeObject unmarshals an object value into out. Null leaves out untouched.
func DecodeObject(c ObjectCodec, v model.Value, out any) error {
	if v.IsNull() {
		return nil
	}
	if err := c.Unmarshal(v.Bytes(), out); err != nil {
		return fmt.Errorf("codec %s unmarshal failed: %w", c.Name(), err)
	}
	return nil
}
