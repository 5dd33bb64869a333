package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSchema = errors.New("model: invalid schema")
	ErrUnknownField  = errors.New("model: unknown field")
)

// FieldValue is a value addressed by its schema field number.
type FieldValue struct {
	Number uint8
	Value  Value
}

// FieldMeta describes one schema field.
type FieldMeta struct {
	Number     uint8
	Name       string
	Type       Type
	TypeName   string // go type name of object fields
	Compressed bool
}

// Schema is the immutable field layout of a collection.
type Schema struct {
	Entity      string
	KeyName     string
	KeyType     Type
	KeyTypeName string
	Fields      []FieldMeta

	byNumber map[uint8]int
}

func NewSchema(entity, keyName string, keyType Type, keyTypeName string, fields []FieldMeta) (*Schema, error) {
	if entity == "" {
		return nil, fmt.Errorf("%w: empty entity name", ErrInvalidSchema)
	}
	if !keyType.Valid() {
		return nil, fmt.Errorf("%w: invalid key type %s", ErrInvalidSchema, keyType)
	}
	s := &Schema{
		Entity:      entity,
		KeyName:     keyName,
		KeyType:     keyType,
		KeyTypeName: keyTypeName,
		Fields:      fields,
		byNumber:    make(map[uint8]int, len(fields)),
	}
	for i, f := range fields {
		if !f.Type.Valid() {
			return nil, fmt.Errorf("%w: field %d has invalid type", ErrInvalidSchema, f.Number)
		}
		if f.Compressed && f.Type != TypeString && f.Type != TypeBytes {
			return nil, fmt.Errorf("%w: field %d: only string and bytes fields can be compressed", ErrInvalidSchema, f.Number)
		}
		if _, ok := s.byNumber[f.Number]; ok {
			return nil, fmt.Errorf("%w: duplicate field number %d", ErrInvalidSchema, f.Number)
		}
		s.byNumber[f.Number] = i
	}
	return s, nil
}

// Field looks up a field by number.
func (s *Schema) Field(number uint8) (FieldMeta, bool) {
	i, ok := s.byNumber[number]
	if !ok {
		return FieldMeta{}, false
	}
	return s.Fields[i], true
}

// Numbers returns every field number in declared order.
func (s *Schema) Numbers() []uint8 {
	numbers := make([]uint8, len(s.Fields))
	for i, f := range s.Fields {
		numbers[i] = f.Number
	}
	return numbers
}

// Equal reports whether two schemas describe the same layout.
func (s *Schema) Equal(o *Schema) bool {
	if s.Entity != o.Entity || s.KeyName != o.KeyName || s.KeyType != o.KeyType ||
		s.KeyTypeName != o.KeyTypeName || len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != o.Fields[i] {
			return false
		}
	}
	return true
}

// PrimaryKey locates one record. Slot is a process-local id assigned by the keydir.
type PrimaryKey struct {
	Value       Value
	StartOffset int64
	EndOffset   int64
	FileOffset  int64
	Deleted     bool
	Slot        uint32
}

// Size is the length of the record span in the data file.
func (pk *PrimaryKey) Size() int64 {
	return pk.EndOffset - pk.StartOffset
}
