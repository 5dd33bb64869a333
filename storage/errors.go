package storage

import (
	"errors"

	"github.com/cqkv/cqdb/model"
)

var (
	ErrInvalidOffset     = errors.New("storage: offset outside of file")
	ErrUnknownField      = model.ErrUnknownField
	ErrFieldSizeChanged  = errors.New("storage: field size changed, in-place patch impossible")
	ErrDataFileCorrupted = errors.New("storage: data file may be corrupted")
	ErrNullPrimaryKey    = errors.New("storage: primary key value is null")
	ErrMetaCorrupted     = errors.New("storage: meta file checksum mismatch")
)
