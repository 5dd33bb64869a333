package storage

import (
	"fmt"

	"github.com/cqkv/cqdb/codec"
	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/utils"
)

/*
meta file:
	entity | key type tag [| key type name] | key name | field count(4)
	per field: number(1) | name | type tag [| type name] | compressed(1)
	write generation(8)
	crc32(4) over everything before it
strings are int32 length + utf-8. type names are only written for object types.
*/

// WriteMeta replaces the content of the meta file with the schema and the
// write generation of the collection.
func WriteMeta(ioManager fio.IOManager, schema *model.Schema, gen uint64) error {
	w := codec.NewWriter(128)
	w.PutString(schema.Entity)
	putType(w, schema.KeyType, schema.KeyTypeName)
	w.PutString(schema.KeyName)
	w.PutInt32(int32(len(schema.Fields)))
	for _, f := range schema.Fields {
		w.PutUint8(f.Number)
		w.PutString(f.Name)
		putType(w, f.Type, f.TypeName)
		w.PutBool(f.Compressed)
	}
	w.PutUint64(gen)

	if err := ioManager.Truncate(0); err != nil {
		return err
	}
	if _, err := ioManager.Write(utils.AppendCrc(w.Bytes()), 0); err != nil {
		return err
	}
	return ioManager.Sync()
}

// ReadMeta decodes the schema and write generation saved by WriteMeta.
func ReadMeta(ioManager fio.IOManager) (*model.Schema, uint64, error) {
	size, err := ioManager.Size()
	if err != nil {
		return nil, 0, err
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err = ioManager.Read(buf, 0); err != nil {
			return nil, 0, err
		}
	}
	body, ok := utils.TrimCrc(buf)
	if !ok {
		return nil, 0, ErrMetaCorrupted
	}

	r := codec.NewReader(body)
	entity, err := r.Text()
	if err != nil {
		return nil, 0, err
	}
	keyType, keyTypeName, err := readType(r)
	if err != nil {
		return nil, 0, err
	}
	keyName, err := r.Text()
	if err != nil {
		return nil, 0, err
	}
	count, err := r.Int32()
	if err != nil {
		return nil, 0, err
	}
	fields := make([]model.FieldMeta, 0, count)
	for i := int32(0); i < count; i++ {
		var f model.FieldMeta
		if f.Number, err = r.Uint8(); err != nil {
			return nil, 0, err
		}
		if f.Name, err = r.Text(); err != nil {
			return nil, 0, err
		}
		if f.Type, f.TypeName, err = readType(r); err != nil {
			return nil, 0, err
		}
		if f.Compressed, err = r.Bool(); err != nil {
			return nil, 0, err
		}
		fields = append(fields, f)
	}
	gen, err := r.Uint64()
	if err != nil {
		return nil, 0, err
	}
	schema, err := model.NewSchema(entity, keyName, keyType, keyTypeName, fields)
	return schema, gen, err
}

func putType(w *codec.Writer, t model.Type, typeName string) {
	w.PutUint8(uint8(t))
	if t == model.TypeObject {
		w.PutString(typeName)
	}
}

func readType(r *codec.Reader) (model.Type, string, error) {
	tag, err := r.Uint8()
	if err != nil {
		return 0, "", err
	}
	t := model.Type(tag)
	if !t.Valid() {
		return 0, "", fmt.Errorf("%w: meta type tag %d", codec.ErrUnknownType, tag)
	}
	if t != model.TypeObject {
		return t, "", nil
	}
	name, err := r.Text()
	return t, name, err
}
