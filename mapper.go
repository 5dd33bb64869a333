package cqdb

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/cqkv/cqdb/codec"
	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/query"
)

type fieldMapping[T any] struct {
	meta model.FieldMeta
	get  func(*T) (model.Value, error)
	set  func(*T, model.Value) error
}

// IndexSpec declares an index a collection ensures when it is opened.
type IndexSpec struct {
	Name     string
	Field    uint8
	Included []uint8
}

// Mapper maps entities of type T to schema fields. Build one with NewMapper
// and chained Key and Field calls.
type Mapper[T any] struct {
	entity      string
	keyName     string
	keyType     model.Type
	getKey      func(*T) model.Value
	setKey      func(*T, model.Value)
	fields      []fieldMapping[T]
	indexes     []IndexSpec
	objectCodec codec.ObjectCodec
}

func NewMapper[T any](entity string) *Mapper[T] {
	return &Mapper[T]{entity: entity}
}

// Key maps the primary key.
func (m *Mapper[T]) Key(name string, t model.Type, get func(*T) model.Value, set func(*T, model.Value)) *Mapper[T] {
	m.keyName, m.keyType = name, t
	m.getKey, m.setKey = get, set
	return m
}

// FieldOption adjusts the metadata of a mapped field.
type FieldOption func(*model.FieldMeta)

// Compressed stores a string or bytes field compressed.
func Compressed() FieldOption {
	return func(f *model.FieldMeta) {
		f.Compressed = true
	}
}

// Field maps a schema field. Numbers identify the field on disk and must
// never be reused for another meaning. TypeTime fields are stored with
// microsecond precision in UTC, so a loaded entity may differ from the saved
// one below the microsecond.
func (m *Mapper[T]) Field(number uint8, name string, t model.Type, get func(*T) model.Value, set func(*T, model.Value), opts ...FieldOption) *Mapper[T] {
	meta := model.FieldMeta{Number: number, Name: name, Type: t}
	for _, opt := range opts {
		opt(&meta)
	}
	m.fields = append(m.fields, fieldMapping[T]{
		meta: meta,
		get:  func(e *T) (model.Value, error) { return get(e), nil },
		set: func(e *T, v model.Value) error {
			set(e, v)
			return nil
		},
	})
	return m
}

// ObjectField maps a field of any Go type, stored through the object codec
// of the database.
func ObjectField[T, F any](m *Mapper[T], number uint8, name string, get func(*T) F, set func(*T, F)) *Mapper[T] {
	meta := model.FieldMeta{
		Number:   number,
		Name:     name,
		Type:     model.TypeObject,
		TypeName: reflect.TypeFor[F]().String(),
	}
	m.fields = append(m.fields, fieldMapping[T]{
		meta: meta,
		get: func(e *T) (model.Value, error) {
			return codec.EncodeObject(m.codec(), get(e))
		},
		set: func(e *T, v model.Value) error {
			var f F
			if err := codec.DecodeObject(m.codec(), v, &f); err != nil {
				return fmt.Errorf("decode field %s: %w", name, err)
			}
			set(e, f)
			return nil
		},
	})
	return m
}

// Index declares an index on field, carrying the included fields.
func (m *Mapper[T]) Index(name string, field uint8, included ...uint8) *Mapper[T] {
	m.indexes = append(m.indexes, IndexSpec{Name: name, Field: field, Included: included})
	return m
}

func (m *Mapper[T]) codec() codec.ObjectCodec {
	if m.objectCodec == nil {
		return codec.DefaultObjectCodec
	}
	return m.objectCodec
}

// Schema builds the schema described by the mapper.
func (m *Mapper[T]) Schema() (*model.Schema, error) {
	if m.getKey == nil || m.setKey == nil {
		return nil, ErrNoPrimaryKey
	}
	metas := make([]model.FieldMeta, len(m.fields))
	for i, f := range m.fields {
		metas[i] = f.meta
	}
	return model.NewSchema(m.entity, m.keyName, m.keyType, "", metas)
}

// Ref returns the query target of the field called name, or of the primary
// key. It panics for unknown names.
func (m *Mapper[T]) Ref(name string) query.Target {
	if name == m.keyName {
		return query.Key
	}
	for _, f := range m.fields {
		if f.meta.Name == name {
			return query.Field(f.meta.Number)
		}
	}
	panic(fmt.Sprintf("cqdb: %s has no field %q", m.entity, name))
}

func (m *Mapper[T]) PrimaryKey(e *T) model.Value {
	return m.getKey(e)
}

// FieldValues extracts the fields of e. A nil subset extracts every field.
func (m *Mapper[T]) FieldValues(e *T, subset []uint8) ([]model.FieldValue, error) {
	out := make([]model.FieldValue, 0, len(m.fields))
	for _, f := range m.fields {
		if subset != nil && !slices.Contains(subset, f.meta.Number) {
			continue
		}
		v, err := f.get(e)
		if err != nil {
			return nil, err
		}
		out = append(out, model.FieldValue{Number: f.meta.Number, Value: v})
	}
	return out, nil
}

// MakeEntity builds an entity from stored values. Fields outside subset, or
// missing from fields, keep their zero value. A nil subset means every field.
func (m *Mapper[T]) MakeEntity(key model.Value, fields map[uint8]model.Value, includeKey bool, subset []uint8) (*T, error) {
	e := new(T)
	if includeKey {
		m.setKey(e, key)
	}
	for _, f := range m.fields {
		if subset != nil && !slices.Contains(subset, f.meta.Number) {
			continue
		}
		v, ok := fields[f.meta.Number]
		if !ok {
			continue
		}
		if err := f.set(e, v); err != nil {
			return nil, err
		}
	}
	return e, nil
}
