package index

import (
	"fmt"

	"github.com/cqkv/cqdb/codec"
	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/utils"
)

/*
index file:
	entity | field type name | index name | field number(1) | included count(1) | included numbers
	generation(8)
	entry count(4)
	per entry, tree pre-order: indexed value | item count(4) | per item: key | included values
	crc32(4) over everything before it
values are codec payloads, strings are int32 length + utf-8.
*/

// Marshal encodes the index stamped with the collection write
// generation gen.
func (ix *Index) Marshal(gen uint64) ([]byte, error) {
	w := codec.NewWriter(64 + ix.items*16)
	w.PutString(ix.meta.Entity)
	w.PutString(ix.meta.FieldType.String())
	w.PutString(ix.meta.Name)
	w.PutUint8(ix.meta.Field)
	w.PutUint8(uint8(len(ix.meta.Included)))
	for _, number := range ix.meta.Included {
		w.PutUint8(number)
	}

	w.PutUint64(gen)
	w.PutInt32(int32(ix.tree.Len()))
	for n := range ix.tree.PreOrder() {
		if err := codec.EncodePayload(w, n.Key); err != nil {
			return nil, err
		}
		w.PutInt32(int32(len(n.Value.Items)))
		for _, item := range n.Value.Items {
			if err := codec.EncodePayload(w, item.Key); err != nil {
				return nil, err
			}
			for _, v := range item.Included {
				if err := codec.EncodePayload(w, v); err != nil {
					return nil, err
				}
			}
		}
	}
	return utils.AppendCrc(w.Bytes()), nil
}

// Resolver maps a primary key value to its live slot.
type Resolver func(key model.Value) (uint32, bool)

// Load decodes an index written by Marshal. Items whose key no longer
// resolves are dropped.
func Load(data []byte, schema *model.Schema, resolve Resolver) (*Index, error) {
	body, ok := utils.TrimCrc(data)
	if !ok {
		return nil, ErrIndexCorrupted
	}
	r := codec.NewReader(body)
	meta, err := readMeta(r)
	if err != nil {
		return nil, err
	}
	fieldTypes, err := checkMeta(meta, schema)
	if err != nil {
		return nil, err
	}

	ix := New(meta)
	if ix.gen, err = r.Uint64(); err != nil {
		return nil, err
	}
	count, err := r.Int32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < count; i++ {
		indexed, err := codec.DecodePayload(r, meta.FieldType)
		if err != nil {
			return nil, err
		}
		items, err := r.Int32()
		if err != nil {
			return nil, err
		}
		for j := int32(0); j < items; j++ {
			key, err := codec.DecodePayload(r, schema.KeyType)
			if err != nil {
				return nil, err
			}
			included := make([]model.Value, len(fieldTypes))
			for k, t := range fieldTypes {
				if included[k], err = codec.DecodePayload(r, t); err != nil {
					return nil, err
				}
			}
			if slot, ok := resolve(key); ok {
				ix.Insert(indexed, key, slot, included)
			}
		}
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrIndexCorrupted, r.Remaining())
	}
	ix.dirty = false
	return ix, nil
}

func readMeta(r *codec.Reader) (Meta, error) {
	var (
		meta Meta
		err  error
	)
	if meta.Entity, err = r.Text(); err != nil {
		return meta, err
	}
	typeName, err := r.Text()
	if err != nil {
		return meta, err
	}
	if meta.FieldType, err = model.ParseType(typeName); err != nil {
		return meta, fmt.Errorf("%w: %v", ErrIndexMismatch, err)
	}
	if meta.Name, err = r.Text(); err != nil {
		return meta, err
	}
	if meta.Field, err = r.Uint8(); err != nil {
		return meta, err
	}
	n, err := r.Uint8()
	if err != nil {
		return meta, err
	}
	raw, err := r.Raw(int(n))
	if err != nil {
		return meta, err
	}
	meta.Included = append([]uint8{}, raw...)
	return meta, nil
}

// checkMeta validates meta against schema and returns the types of the
// included fields.
func checkMeta(meta Meta, schema *model.Schema) ([]model.Type, error) {
	if meta.Entity != schema.Entity {
		return nil, fmt.Errorf("%w: entity %q, want %q", ErrIndexMismatch, meta.Entity, schema.Entity)
	}
	f, ok := schema.Field(meta.Field)
	if !ok || f.Type != meta.FieldType {
		return nil, fmt.Errorf("%w: field %d of type %s", ErrIndexMismatch, meta.Field, meta.FieldType)
	}
	types := make([]model.Type, len(meta.Included))
	for i, number := range meta.Included {
		f, ok := schema.Field(number)
		if !ok {
			return nil, fmt.Errorf("%w: included field %d", ErrIndexMismatch, number)
		}
		types[i] = f.Type
	}
	return types, nil
}
