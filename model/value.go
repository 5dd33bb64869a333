package model

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrTypeMismatch = errors.New("model: type mismatch")

// Value is a typed field or key value. A null value still carries its type.
type Value struct {
	typ  Type
	null bool
	bits uint64 // bool, integers, floats (as float64 bits), time (unix micro)
	str  string
	raw  []byte // bytes, uuid and pre-encoded object payloads
	dec  decimal.Decimal
}

func BoolValue(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{typ: TypeBool, bits: bits}
}

func Int8Value(v int8) Value     { return Value{typ: TypeInt8, bits: uint64(int64(v))} }
func Uint8Value(v uint8) Value   { return Value{typ: TypeUint8, bits: uint64(v)} }
func Int16Value(v int16) Value   { return Value{typ: TypeInt16, bits: uint64(int64(v))} }
func Uint16Value(v uint16) Value { return Value{typ: TypeUint16, bits: uint64(v)} }
func Int32Value(v int32) Value   { return Value{typ: TypeInt32, bits: uint64(int64(v))} }
func Uint32Value(v uint32) Value { return Value{typ: TypeUint32, bits: uint64(v)} }
func Int64Value(v int64) Value   { return Value{typ: TypeInt64, bits: uint64(v)} }
func Uint64Value(v uint64) Value { return Value{typ: TypeUint64, bits: v} }

func Float32Value(v float32) Value {
	return Value{typ: TypeFloat32, bits: math.Float64bits(float64(v))}
}

func Float64Value(v float64) Value {
	return Value{typ: TypeFloat64, bits: math.Float64bits(v)}
}

func DecimalValue(d decimal.Decimal) Value {
	return Value{typ: TypeDecimal, dec: d}
}

// TimeValue keeps microsecond precision, which is what the file format
// stores. Finer parts of t are dropped and the zone is normalized to UTC.
func TimeValue(t time.Time) Value {
	return Value{typ: TypeTime, bits: uint64(t.UnixMicro())}
}

func StringValue(s string) Value {
	return Value{typ: TypeString, str: s}
}

func BytesValue(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{typ: TypeBytes, raw: b}
}

func UUIDValue(u uuid.UUID) Value {
	raw := make([]byte, 16)
	copy(raw, u[:])
	return Value{typ: TypeUUID, raw: raw}
}

// ObjectValue wraps an already encoded opaque payload.
func ObjectValue(encoded []byte) Value {
	if encoded == nil {
		return NullValue(TypeObject)
	}
	return Value{typ: TypeObject, raw: encoded}
}

func NullValue(t Type) Value {
	return Value{typ: t, null: true}
}

// Default returns the value written for a field omitted on insert.
func Default(t Type) Value {
	switch t {
	case TypeBool, TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeInt32,
		TypeUint32, TypeInt64, TypeUint64:
		return Value{typ: t}
	case TypeFloat32, TypeFloat64:
		return Value{typ: t, bits: math.Float64bits(0)}
	case TypeDecimal:
		return DecimalValue(decimal.Zero)
	case TypeTime:
		return TimeValue(time.Time{})
	case TypeString:
		return StringValue("")
	case TypeBytes:
		return BytesValue(nil)
	case TypeUUID:
		return UUIDValue(uuid.Nil)
	default:
		return NullValue(t)
	}
}

func (v Value) Type() Type   { return v.typ }
func (v Value) IsNull() bool { return v.null }

func (v Value) Bool() bool { return v.bits == 1 }

// Int returns signed integer values; unsigned ones are reinterpreted.
func (v Value) Int() int64 { return int64(v.bits) }

func (v Value) Uint() uint64 { return v.bits }

func (v Value) Float() float64 { return math.Float64frombits(v.bits) }

func (v Value) Decimal() decimal.Decimal { return v.dec }

func (v Value) Time() time.Time { return time.UnixMicro(int64(v.bits)).UTC() }

func (v Value) Bytes() []byte { return v.raw }

func (v Value) UUID() uuid.UUID {
	var u uuid.UUID
	copy(u[:], v.raw)
	return u
}

// String returns the text form of v, used for LIKE matching and logs.
func (v Value) String() string {
	if v.null {
		return ""
	}
	switch v.typ {
	case TypeBool:
		return strconv.FormatBool(v.Bool())
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return strconv.FormatInt(v.Int(), 10)
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return strconv.FormatUint(v.Uint(), 10)
	case TypeFloat32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case TypeFloat64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case TypeDecimal:
		return v.dec.String()
	case TypeTime:
		return v.Time().Format(time.RFC3339Nano)
	case TypeString:
		return v.str
	case TypeBytes:
		return hex.EncodeToString(v.raw)
	case TypeUUID:
		return v.UUID().String()
	case TypeObject:
		return string(v.raw)
	}
	return ""
}

func (v Value) GoString() string {
	if v.null {
		return fmt.Sprintf("%s(null)", v.typ)
	}
	return fmt.Sprintf("%s(%s)", v.typ, v.String())
}

// Compare orders a before b. Null sorts first. Numeric values of different
// types compare by numeric value; other mixed types compare by type tag.
func Compare(a, b Value) int {
	switch {
	case a.null && b.null:
		return 0
	case a.null:
		return -1
	case b.null:
		return 1
	}
	if a.typ != b.typ {
		if a.typ.IsNumeric() && b.typ.IsNumeric() {
			return compareNumeric(a, b)
		}
		return cmpOrdered(a.typ, b.typ)
	}
	switch {
	case a.typ == TypeBool, a.typ.isUnsigned():
		return cmpOrdered(a.bits, b.bits)
	case a.typ.isSigned(), a.typ == TypeTime:
		return cmpOrdered(int64(a.bits), int64(b.bits))
	case a.typ.isFloat():
		return cmp.Compare(a.Float(), b.Float())
	case a.typ == TypeDecimal:
		return a.dec.Cmp(b.dec)
	case a.typ == TypeString:
		return strings.Compare(a.str, b.str)
	default:
		return bytes.Compare(a.raw, b.raw)
	}
}

// Equal reports whether a and b compare equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func cmpOrdered[T int64 | uint64 | Type](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareNumeric orders values of different numeric types by magnitude.
// NaN sorts before every number and equal to itself.
func compareNumeric(a, b Value) int {
	switch {
	case !a.finite() || !b.finite():
		return cmp.Compare(a.asFloat(), b.asFloat())
	case a.typ == TypeDecimal || b.typ == TypeDecimal:
		return a.asDecimal().Cmp(b.asDecimal())
	case a.typ.isFloat() || b.typ.isFloat():
		return cmp.Compare(a.asFloat(), b.asFloat())
	case a.typ.isSigned() && b.typ.isSigned():
		return cmpOrdered(a.Int(), b.Int())
	case a.typ.isUnsigned() && b.typ.isUnsigned():
		return cmpOrdered(a.Uint(), b.Uint())
	case a.typ.isSigned():
		if a.Int() < 0 {
			return -1
		}
		return cmpOrdered(uint64(a.Int()), b.Uint())
	default:
		if b.Int() < 0 {
			return 1
		}
		return cmpOrdered(a.Uint(), uint64(b.Int()))
	}
}

func (v Value) finite() bool {
	if !v.typ.isFloat() {
		return true
	}
	f := v.Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (v Value) asFloat() float64 {
	switch {
	case v.typ.isSigned():
		return float64(v.Int())
	case v.typ.isUnsigned():
		return float64(v.Uint())
	case v.typ == TypeDecimal:
		f, _ := v.dec.Float64()
		return f
	default:
		return v.Float()
	}
}

func (v Value) asDecimal() decimal.Decimal {
	switch {
	case v.typ.isSigned():
		return decimal.NewFromInt(v.Int())
	case v.typ.isUnsigned():
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v.Uint()), 0)
	case v.typ.isFloat():
		return decimal.NewFromFloat(v.Float())
	default:
		return v.dec
	}
}

// Convert coerces v to type t, typically a query constant to the type of
// the field it is compared with.
func Convert(v Value, t Type) (Value, error) {
	if v.typ == t {
		return v, nil
	}
	if v.null {
		return NullValue(t), nil
	}
	mismatch := func() (Value, error) {
		return Value{}, fmt.Errorf("%w: cannot convert %s to %s", ErrTypeMismatch, v.typ, t)
	}

	if v.typ == TypeString {
		return parseValue(v.str, t)
	}
	if !v.typ.IsNumeric() || !t.IsNumeric() {
		if t == TypeString {
			return StringValue(v.String()), nil
		}
		return mismatch()
	}

	switch t {
	case TypeFloat32:
		return Float32Value(float32(v.asFloat())), nil
	case TypeFloat64:
		return Float64Value(v.asFloat()), nil
	case TypeDecimal:
		return DecimalValue(v.asDecimal()), nil
	}

	// the value as a sign and a magnitude: i when negative, u otherwise
	var (
		i   int64
		u   uint64
		neg bool
	)
	switch {
	case v.typ.isSigned():
		i, neg = v.Int(), v.Int() < 0
		u = uint64(i)
	case v.typ.isUnsigned():
		u = v.Uint()
	case v.typ.isFloat():
		f := v.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxUint64 {
			return mismatch()
		}
		if f < 0 {
			i, neg = int64(f), true
		} else {
			u = uint64(f)
		}
	default:
		d := v.dec
		if !d.IsInteger() || d.LessThan(minInt64Decimal) || d.GreaterThan(maxUint64Decimal) {
			return mismatch()
		}
		if d.IsNegative() {
			i, neg = d.IntPart(), true
		} else {
			u = d.BigInt().Uint64()
		}
	}

	lo, hi, ok := integerRange(t)
	if !ok {
		return mismatch()
	}
	if (neg && i < lo) || (!neg && u > hi) {
		return Value{}, fmt.Errorf("%w: %s out of range for %s", ErrTypeMismatch, v.String(), t)
	}
	if !neg {
		i = int64(u)
	}
	switch t {
	case TypeInt8:
		return Int8Value(int8(i)), nil
	case TypeInt16:
		return Int16Value(int16(i)), nil
	case TypeInt32:
		return Int32Value(int32(i)), nil
	case TypeInt64:
		return Int64Value(i), nil
	case TypeUint8:
		return Uint8Value(uint8(u)), nil
	case TypeUint16:
		return Uint16Value(uint16(u)), nil
	case TypeUint32:
		return Uint32Value(uint32(u)), nil
	default:
		return Uint64Value(u), nil
	}
}

var (
	minInt64Decimal  = decimal.NewFromInt(math.MinInt64)
	maxUint64Decimal = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// integerRange returns the smallest negative and largest non-negative value
// an integer type holds.
func integerRange(t Type) (int64, uint64, bool) {
	switch t {
	case TypeInt8:
		return math.MinInt8, math.MaxInt8, true
	case TypeInt16:
		return math.MinInt16, math.MaxInt16, true
	case TypeInt32:
		return math.MinInt32, math.MaxInt32, true
	case TypeInt64:
		return math.MinInt64, math.MaxInt64, true
	case TypeUint8:
		return 0, math.MaxUint8, true
	case TypeUint16:
		return 0, math.MaxUint16, true
	case TypeUint32:
		return 0, math.MaxUint32, true
	case TypeUint64:
		return 0, math.MaxUint64, true
	}
	return 0, 0, false
}

func parseValue(s string, t Type) (Value, error) {
	wrap := func(err error) (Value, error) {
		return Value{}, fmt.Errorf("%w: parse %q as %s: %v", ErrTypeMismatch, s, t, err)
	}
	switch t {
	case TypeBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return wrap(err)
		}
		return BoolValue(b), nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		i, err := strconv.ParseInt(s, 10, t.FixedSize()*8)
		if err != nil {
			return wrap(err)
		}
		return Convert(Int64Value(i), t)
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		u, err := strconv.ParseUint(s, 10, t.FixedSize()*8)
		if err != nil {
			return wrap(err)
		}
		return Convert(Uint64Value(u), t)
	case TypeFloat32, TypeFloat64:
		f, err := strconv.ParseFloat(s, t.FixedSize()*8)
		if err != nil {
			return wrap(err)
		}
		return Convert(Float64Value(f), t)
	case TypeDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return wrap(err)
		}
		return DecimalValue(d), nil
	case TypeTime:
		tm, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return wrap(err)
		}
		return TimeValue(tm), nil
	case TypeBytes:
		return BytesValue([]byte(s)), nil
	case TypeUUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return wrap(err)
		}
		return UUIDValue(u), nil
	case TypeObject:
		return ObjectValue([]byte(s)), nil
	}
	return wrap(errors.New("unsupported target"))
}

// Normalize converts v to t and replaces a null scalar with the type default,
// giving the value exactly as it reads back from a data file.
func Normalize(v Value, t Type) (Value, error) {
	v, err := Convert(v, t)
	if err != nil {
		return Value{}, err
	}
	if v.null && !t.IsVariable() {
		return Default(t), nil
	}
	return v, nil
}

// Like reports whether the text form of v contains pattern. Null never
// matches.
func Like(v Value, pattern string) bool {
	if v.null {
		return false
	}
	return strings.Contains(v.String(), pattern)
}
