package model

import "fmt"

// Type is the tag written in front of every field payload.
// Tag values are part of the file format and must never be renumbered.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeDecimal
	TypeTime
	TypeString
	TypeBytes
	TypeUUID
	TypeObject

	typeCount
)

var typeNames = [typeCount]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt8:    "int8",
	TypeUint8:   "uint8",
	TypeInt16:   "int16",
	TypeUint16:  "uint16",
	TypeInt32:   "int32",
	TypeUint32:  "uint32",
	TypeInt64:   "int64",
	TypeUint64:  "uint64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeDecimal: "decimal",
	TypeTime:    "time",
	TypeString:  "string",
	TypeBytes:   "bytes",
	TypeUUID:    "uuid",
	TypeObject:  "object",
}

// fixedSizes holds the payload width of scalar types, 0 for variable ones.
var fixedSizes = [typeCount]int{
	TypeBool:    1,
	TypeInt8:    1,
	TypeUint8:   1,
	TypeInt16:   2,
	TypeUint16:  2,
	TypeInt32:   4,
	TypeUint32:  4,
	TypeInt64:   8,
	TypeUint64:  8,
	TypeFloat32: 4,
	TypeFloat64: 8,
	TypeDecimal: 16,
	TypeTime:    8,
	TypeUUID:    16,
}

func (t Type) String() string {
	if t < typeCount {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is a known, non-invalid tag.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < typeCount
}

// FixedSize returns the payload width of a scalar type and 0 for
// string, bytes and object payloads.
func (t Type) FixedSize() int {
	if t < typeCount {
		return fixedSizes[t]
	}
	return 0
}

// IsVariable reports whether payloads of t are length-prefixed.
func (t Type) IsVariable() bool {
	return t == TypeString || t == TypeBytes || t == TypeObject
}

func (t Type) isSigned() bool {
	return t == TypeInt8 || t == TypeInt16 || t == TypeInt32 || t == TypeInt64
}

func (t Type) isUnsigned() bool {
	return t == TypeUint8 || t == TypeUint16 || t == TypeUint32 || t == TypeUint64
}

func (t Type) isFloat() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// IsNumeric reports whether values of t compare numerically.
func (t Type) IsNumeric() bool {
	return t.isSigned() || t.isUnsigned() || t.isFloat() || t == TypeDecimal
}

// ParseType resolves a type name written by Type.String.
func ParseType(name string) (Type, error) {
	for t := TypeBool; t < typeCount; t++ {
		if typeNames[t] == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("%w: unknown type name %q", ErrTypeMismatch, name)
}
