package codec

import (
	"fmt"

	"github.com/cqkv/cqdb/model"
)

// FieldHeaderSize is the field number byte plus the type tag byte.
const FieldHeaderSize = 2

// EncodeField appends one field entry: number, type tag, payload.
// Values are converted to the declared field type first.
func EncodeField(w *Writer, meta model.FieldMeta, v model.Value, c Compression) error {
	v, err := model.Convert(v, meta.Type)
	if err != nil {
		return fmt.Errorf("field %d (%s): %w", meta.Number, meta.Name, err)
	}
	w.PutUint8(meta.Number)
	w.PutUint8(uint8(meta.Type))
	if !meta.Compressed {
		return EncodePayload(w, v)
	}
	if v.IsNull() {
		w.PutNullBlob()
		return nil
	}
	raw := v.Bytes()
	if meta.Type == model.TypeString {
		raw = []byte(v.String())
	}
	block, err := Compress(raw, c)
	if err != nil {
		return err
	}
	w.PutBlob(block)
	return nil
}

// DecodeFieldPayload reads the payload of a field entry whose header has
// already been consumed.
func DecodeFieldPayload(r *Reader, t model.Type, compressed bool) (model.Value, error) {
	if !compressed || !t.IsVariable() {
		return DecodePayload(r, t)
	}
	block, ok, err := r.Blob()
	if err != nil {
		return model.Value{}, err
	}
	if !ok {
		return model.NullValue(t), nil
	}
	raw, err := Decompress(block)
	if err != nil {
		return model.Value{}, err
	}
	if t == model.TypeString {
		return model.StringValue(string(raw)), nil
	}
	return model.BytesValue(raw), nil
}
