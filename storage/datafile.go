package storage

import (
	"fmt"

	"github.com/cqkv/cqdb/codec"
	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/model"
)

// DataFile stores records as runs of field entries. Record boundaries only
// live in the primary key file.
type DataFile struct {
	IoManager   fio.IOManager
	schema      *model.Schema
	compression codec.Compression
}

func OpenDataFile(ioManager fio.IOManager, schema *model.Schema, compression codec.Compression) *DataFile {
	return &DataFile{
		IoManager:   ioManager,
		schema:      schema,
		compression: compression,
	}
}

func (df *DataFile) Sync() error {
	return df.IoManager.Sync()
}

func (df *DataFile) Close() error {
	return df.IoManager.Close()
}

// Insert appends a full record and returns its span.
func (df *DataFile) Insert(values []model.FieldValue) (start, end int64, err error) {
	data, err := df.marshalRecord(values)
	if err != nil {
		return 0, 0, err
	}
	start, err = df.IoManager.Append(data)
	if err != nil {
		return 0, 0, err
	}
	return start, start + int64(len(data)), nil
}

// Update rewrites a full record. A record that still fits its old span is
// overwritten in place and its end offset shrinks; a larger one is appended
// and the old bytes are abandoned.
func (df *DataFile) Update(start, end int64, values []model.FieldValue) (int64, int64, error) {
	if err := df.checkSpan(start, end); err != nil {
		return 0, 0, err
	}
	data, err := df.marshalRecord(values)
	if err != nil {
		return 0, 0, err
	}
	if int64(len(data)) <= end-start {
		if _, err = df.IoManager.Write(data, start); err != nil {
			return 0, 0, err
		}
		return start, start + int64(len(data)), nil
	}
	newStart, err := df.IoManager.Append(data)
	if err != nil {
		return 0, 0, err
	}
	return newStart, newStart + int64(len(data)), nil
}

type entryPos struct {
	offset int
	size   int
}

// UpdateManual patches the given fields in place. Every new entry must have
// exactly the length of the stored one, otherwise nothing is written and
// ErrFieldSizeChanged is returned.
func (df *DataFile) UpdateManual(start, end int64, values []model.FieldValue) error {
	buf, err := df.readSpan(start, end)
	if err != nil {
		return err
	}
	positions, err := df.scanEntries(buf)
	if err != nil {
		return err
	}

	patches := make([][]byte, len(values))
	for i, fv := range values {
		meta, ok := df.schema.Field(fv.Number)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownField, fv.Number)
		}
		pos, ok := positions[fv.Number]
		if !ok {
			return fmt.Errorf("%w: field %d missing from record at %d", ErrDataFileCorrupted, fv.Number, start)
		}
		w := codec.NewWriter(pos.size)
		if err = codec.EncodeField(w, meta, fv.Value, df.compression); err != nil {
			return err
		}
		if w.Len() != pos.size {
			return fmt.Errorf("%w: field %d %d -> %d bytes", ErrFieldSizeChanged, fv.Number, pos.size, w.Len())
		}
		patches[i] = w.Bytes()
	}

	for i, fv := range values {
		if _, err = df.IoManager.Write(patches[i], start+int64(positions[fv.Number].offset)); err != nil {
			return err
		}
	}
	return nil
}

// ReadFields decodes the wanted fields of the record at [start,end) into out,
// skipping the others by their encoded width. A nil wanted reads every field.
func (df *DataFile) ReadFields(start, end int64, wanted []uint8, out map[uint8]model.Value) error {
	buf, err := df.readSpan(start, end)
	if err != nil {
		return err
	}

	var want [256]bool
	remaining := len(df.schema.Fields)
	if wanted != nil {
		remaining = 0
		for _, n := range wanted {
			if !want[n] {
				want[n] = true
				remaining++
			}
		}
	}

	r := codec.NewReader(buf)
	for r.Remaining() > 0 && remaining > 0 {
		number, tag, err := readEntryHeader(r)
		if err != nil {
			return err
		}
		meta, ok := df.schema.Field(number)
		if !ok {
			return fmt.Errorf("%w: unknown field %d at %d", ErrDataFileCorrupted, number, start)
		}
		if wanted != nil && !want[number] {
			if err = codec.SkipPayload(r, tag); err != nil {
				return fmt.Errorf("%w: %v", ErrDataFileCorrupted, err)
			}
			continue
		}
		v, err := codec.DecodeFieldPayload(r, tag, meta.Compressed)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDataFileCorrupted, err)
		}
		out[number] = v
		remaining--
	}
	return nil
}

// ReadAll decodes every field of the record.
func (df *DataFile) ReadAll(start, end int64) (map[uint8]model.Value, error) {
	out := make(map[uint8]model.Value, len(df.schema.Fields))
	return out, df.ReadFields(start, end, nil, out)
}

func (df *DataFile) marshalRecord(values []model.FieldValue) ([]byte, error) {
	byNumber := make(map[uint8]model.Value, len(values))
	for _, fv := range values {
		if _, ok := df.schema.Field(fv.Number); !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownField, fv.Number)
		}
		byNumber[fv.Number] = fv.Value
	}

	w := codec.NewWriter(64)
	for _, meta := range df.schema.Fields {
		v, ok := byNumber[meta.Number]
		if !ok {
			v = model.Default(meta.Type)
		}
		if err := codec.EncodeField(w, meta, v, df.compression); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func (df *DataFile) scanEntries(buf []byte) (map[uint8]entryPos, error) {
	positions := make(map[uint8]entryPos, len(df.schema.Fields))
	r := codec.NewReader(buf)
	for r.Remaining() > 0 {
		offset := r.Pos()
		number, tag, err := readEntryHeader(r)
		if err != nil {
			return nil, err
		}
		if err = codec.SkipPayload(r, tag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataFileCorrupted, err)
		}
		positions[number] = entryPos{offset: offset, size: r.Pos() - offset}
	}
	return positions, nil
}

func readEntryHeader(r *codec.Reader) (uint8, model.Type, error) {
	number, err := r.Uint8()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDataFileCorrupted, err)
	}
	tag, err := r.Uint8()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDataFileCorrupted, err)
	}
	return number, model.Type(tag), nil
}

func (df *DataFile) checkSpan(start, end int64) error {
	size, err := df.IoManager.Size()
	if err != nil {
		return err
	}
	if start < 0 || end < start || end > size {
		return fmt.Errorf("%w: [%d,%d) in file of %d bytes", ErrInvalidOffset, start, end, size)
	}
	return nil
}

func (df *DataFile) readSpan(start, end int64) ([]byte, error) {
	if err := df.checkSpan(start, end); err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := df.IoManager.Read(buf, start); err != nil {
		return nil, err
	}
	return buf, nil
}
