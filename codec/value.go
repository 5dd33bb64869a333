package codec

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cqkv/cqdb/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownType     = errors.New("codec: unknown type tag")
	ErrDecimalOverflow = errors.New("codec: decimal does not fit in 96 bits")
)

const maxDecimalScale = 28

type payloadCodec struct {
	encode func(w *Writer, v model.Value) error
	decode func(r *Reader, t model.Type) (model.Value, error)
}

// payloads is the dispatch table indexed by type tag.
var payloads [model.TypeObject + 1]payloadCodec

func init() {
	payloads[model.TypeBool] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutBool(v.Bool()); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			b, err := r.Bool()
			return model.BoolValue(b), err
		},
	}
	payloads[model.TypeInt8] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutUint8(uint8(v.Int())); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			b, err := r.Uint8()
			return model.Int8Value(int8(b)), err
		},
	}
	payloads[model.TypeUint8] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutUint8(uint8(v.Uint())); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			b, err := r.Uint8()
			return model.Uint8Value(b), err
		},
	}
	payloads[model.TypeInt16] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutUint16(uint16(v.Int())); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			u, err := r.Uint16()
			return model.Int16Value(int16(u)), err
		},
	}
	payloads[model.TypeUint16] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutUint16(uint16(v.Uint())); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			u, err := r.Uint16()
			return model.Uint16Value(u), err
		},
	}
	payloads[model.TypeInt32] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutInt32(int32(v.Int())); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			i, err := r.Int32()
			return model.Int32Value(i), err
		},
	}
	payloads[model.TypeUint32] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutUint32(uint32(v.Uint())); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			u, err := r.Uint32()
			return model.Uint32Value(u), err
		},
	}
	payloads[model.TypeInt64] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutInt64(v.Int()); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			i, err := r.Int64()
			return model.Int64Value(i), err
		},
	}
	payloads[model.TypeUint64] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutUint64(v.Uint()); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			u, err := r.Uint64()
			return model.Uint64Value(u), err
		},
	}
	payloads[model.TypeFloat32] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutFloat32(float32(v.Float())); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			f, err := r.Float32()
			return model.Float32Value(f), err
		},
	}
	payloads[model.TypeFloat64] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutFloat64(v.Float()); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			f, err := r.Float64()
			return model.Float64Value(f), err
		},
	}
	payloads[model.TypeDecimal] = payloadCodec{encode: encodeDecimal, decode: decodeDecimal}
	payloads[model.TypeTime] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutInt64(v.Time().UnixMicro()); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			i, err := r.Int64()
			if err != nil {
				return model.Value{}, err
			}
			return model.TimeValue(time.UnixMicro(i)), nil
		},
	}
	payloads[model.TypeUUID] = payloadCodec{
		encode: func(w *Writer, v model.Value) error { w.PutRaw(v.Bytes()); return nil },
		decode: func(r *Reader, _ model.Type) (model.Value, error) {
			b, err := r.Raw(16)
			if err != nil {
				return model.Value{}, err
			}
			u, err := uuid.FromBytes(b)
			if err != nil {
				return model.Value{}, err
			}
			return model.UUIDValue(u), nil
		},
	}
	variable := payloadCodec{encode: encodeVariable, decode: decodeVariable}
	payloads[model.TypeString] = variable
	payloads[model.TypeBytes] = variable
	payloads[model.TypeObject] = variable
}

func lookup(t model.Type) (payloadCodec, error) {
	if !t.Valid() {
		return payloadCodec{}, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	return payloads[t], nil
}

// EncodePayload writes v without any field number or type tag. Null is only
// representable for variable width types; a null scalar is written as its
// default value.
func EncodePayload(w *Writer, v model.Value) error {
	pc, err := lookup(v.Type())
	if err != nil {
		return err
	}
	if v.IsNull() && !v.Type().IsVariable() {
		v = model.Default(v.Type())
	}
	return pc.encode(w, v)
}

// DecodePayload reads a value of type t.
func DecodePayload(r *Reader, t model.Type) (model.Value, error) {
	pc, err := lookup(t)
	if err != nil {
		return model.Value{}, err
	}
	return pc.decode(r, t)
}

// SkipPayload advances past a payload of type t without decoding it.
func SkipPayload(r *Reader, t model.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	if size := t.FixedSize(); size > 0 {
		return r.Skip(size)
	}
	n, err := r.Int32()
	if err != nil || n == -1 {
		return err
	}
	return r.Skip(int(n))
}

// PayloadSize returns the encoded length of v.
func PayloadSize(v model.Value) int {
	if size := v.Type().FixedSize(); size > 0 {
		return size
	}
	if v.IsNull() {
		return 4
	}
	if v.Type() == model.TypeString {
		return 4 + len(v.String())
	}
	return 4 + len(v.Bytes())
}

func encodeVariable(w *Writer, v model.Value) error {
	switch {
	case v.IsNull():
		w.PutNullBlob()
	case v.Type() == model.TypeString:
		w.PutString(v.String())
	default:
		w.PutBlob(v.Bytes())
	}
	return nil
}

func decodeVariable(r *Reader, t model.Type) (model.Value, error) {
	b, ok, err := r.Blob()
	if err != nil {
		return model.Value{}, err
	}
	if !ok {
		return model.NullValue(t), nil
	}
	switch t {
	case model.TypeString:
		return model.StringValue(string(b)), nil
	case model.TypeBytes:
		return model.BytesValue(append([]byte{}, b...)), nil
	default:
		return model.ObjectValue(append([]byte{}, b...)), nil
	}
}

// decimal layout: lo, mid, hi 32-bit words of the unscaled magnitude followed
// by a flags word holding the scale in bits 16-23 and the sign in bit 31.
func encodeDecimal(w *Writer, v model.Value) error {
	d := v.Decimal()
	if d.Exponent() < -maxDecimalScale {
		d = d.Round(maxDecimalScale)
	}
	coef := d.Coefficient()
	scale := -d.Exponent()
	if scale < 0 {
		coef.Mul(coef, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-scale)), nil))
		scale = 0
	}
	neg := coef.Sign() < 0
	coef.Abs(coef)
	if coef.BitLen() > 96 {
		return fmt.Errorf("%w: %s", ErrDecimalOverflow, d.String())
	}
	var mag [12]byte
	coef.FillBytes(mag[:])
	w.PutRaw([]byte{mag[11], mag[10], mag[9], mag[8]})
	w.PutRaw([]byte{mag[7], mag[6], mag[5], mag[4]})
	w.PutRaw([]byte{mag[3], mag[2], mag[1], mag[0]})
	flags := uint32(scale) << 16
	if neg {
		flags |= 1 << 31
	}
	w.PutUint32(flags)
	return nil
}

func decodeDecimal(r *Reader, _ model.Type) (model.Value, error) {
	b, err := r.Raw(12)
	if err != nil {
		return model.Value{}, err
	}
	flags, err := r.Uint32()
	if err != nil {
		return model.Value{}, err
	}
	var mag [12]byte
	for i := 0; i < 12; i++ {
		mag[i] = b[11-i]
	}
	coef := new(big.Int).SetBytes(mag[:])
	if flags&(1<<31) != 0 {
		coef.Neg(coef)
	}
	scale := int32((flags >> 16) & 0xff)
	return model.DecimalValue(decimal.NewFromBigInt(coef, -scale)), nil
}
