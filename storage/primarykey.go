package storage

import (
	"fmt"

	"github.com/cqkv/cqdb/codec"
	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/model"
)

/*
primary key file entry:
	flags(1) | start offset(8) | end offset(8) | key payload
flags bit0 marks a tombstone. Entries are never removed.
*/

const (
	flagsSize               = 1
	offsetSize              = 8
	pkEntryHeaderSize       = flagsSize + 2*offsetSize
	flagDeleted       uint8 = 1 << 0
)

type PrimaryKeyFile struct {
	IoManager fio.IOManager
	keyType   model.Type
}

func OpenPrimaryKeyFile(ioManager fio.IOManager, keyType model.Type) *PrimaryKeyFile {
	return &PrimaryKeyFile{IoManager: ioManager, keyType: keyType}
}

func (pf *PrimaryKeyFile) Sync() error {
	return pf.IoManager.Sync()
}

func (pf *PrimaryKeyFile) Close() error {
	return pf.IoManager.Close()
}

// Insert appends a live entry and returns the key with its file offset set.
func (pf *PrimaryKeyFile) Insert(key model.Value, start, end int64) (*model.PrimaryKey, error) {
	if key.IsNull() {
		return nil, ErrNullPrimaryKey
	}
	key, err := model.Convert(key, pf.keyType)
	if err != nil {
		return nil, err
	}

	w := codec.NewWriter(pkEntryHeaderSize + codec.PayloadSize(key))
	w.PutUint8(0)
	w.PutInt64(start)
	w.PutInt64(end)
	if err = codec.EncodePayload(w, key); err != nil {
		return nil, err
	}
	fileOffset, err := pf.IoManager.Append(w.Bytes())
	if err != nil {
		return nil, err
	}
	return &model.PrimaryKey{
		Value:       key,
		StartOffset: start,
		EndOffset:   end,
		FileOffset:  fileOffset,
	}, nil
}

// UpdateStartEndDataFileOffset rewrites both offsets, used after a record relocated.
func (pf *PrimaryKeyFile) UpdateStartEndDataFileOffset(pk *model.PrimaryKey) error {
	if err := pf.checkEntry(pk); err != nil {
		return err
	}
	w := codec.NewWriter(2 * offsetSize)
	w.PutInt64(pk.StartOffset)
	w.PutInt64(pk.EndOffset)
	_, err := pf.IoManager.Write(w.Bytes(), pk.FileOffset+flagsSize)
	return err
}

// UpdateEndDataFileOffset rewrites only the end offset, used after an in-place rewrite.
func (pf *PrimaryKeyFile) UpdateEndDataFileOffset(pk *model.PrimaryKey) error {
	if err := pf.checkEntry(pk); err != nil {
		return err
	}
	w := codec.NewWriter(offsetSize)
	w.PutInt64(pk.EndOffset)
	_, err := pf.IoManager.Write(w.Bytes(), pk.FileOffset+flagsSize+offsetSize)
	return err
}

// Delete sets the tombstone bit of the entry.
func (pf *PrimaryKeyFile) Delete(pk *model.PrimaryKey) error {
	if err := pf.checkEntry(pk); err != nil {
		return err
	}
	flags := make([]byte, flagsSize)
	if _, err := pf.IoManager.Read(flags, pk.FileOffset); err != nil {
		return err
	}
	flags[0] |= flagDeleted
	if _, err := pf.IoManager.Write(flags, pk.FileOffset); err != nil {
		return err
	}
	pk.Deleted = true
	return nil
}

// GetAllPrimaryKeys decodes every entry, tombstones included, in file order.
func (pf *PrimaryKeyFile) GetAllPrimaryKeys() ([]*model.PrimaryKey, error) {
	size, err := pf.IoManager.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err = pf.IoManager.Read(buf, 0); err != nil {
			return nil, err
		}
	}

	keys := make([]*model.PrimaryKey, 0, size/(pkEntryHeaderSize+8))
	r := codec.NewReader(buf)
	for r.Remaining() > 0 {
		pk := &model.PrimaryKey{FileOffset: int64(r.Pos())}
		flags, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		if pk.StartOffset, err = r.Int64(); err != nil {
			return nil, fmt.Errorf("%w: key entry at %d: %v", ErrDataFileCorrupted, pk.FileOffset, err)
		}
		if pk.EndOffset, err = r.Int64(); err != nil {
			return nil, fmt.Errorf("%w: key entry at %d: %v", ErrDataFileCorrupted, pk.FileOffset, err)
		}
		if pk.Value, err = codec.DecodePayload(r, pf.keyType); err != nil {
			return nil, fmt.Errorf("%w: key entry at %d: %v", ErrDataFileCorrupted, pk.FileOffset, err)
		}
		pk.Deleted = flags&flagDeleted != 0
		keys = append(keys, pk)
	}
	return keys, nil
}

func (pf *PrimaryKeyFile) checkEntry(pk *model.PrimaryKey) error {
	size, err := pf.IoManager.Size()
	if err != nil {
		return err
	}
	if pk.FileOffset < 0 || pk.FileOffset+pkEntryHeaderSize > size {
		return fmt.Errorf("%w: key entry at %d in file of %d bytes", ErrInvalidOffset, pk.FileOffset, size)
	}
	return nil
}
