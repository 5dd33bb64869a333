package cqdb

import (
	"fmt"

	"github.com/cqkv/cqdb/model"
	"github.com/cqkv/cqdb/query"
	"github.com/cqkv/cqdb/storage"
)

var (
	ErrSchemaMismatch   = addPrefix("schema does not match the stored collection")
	ErrDuplicateKey     = addPrefix("primary key already exists")
	ErrDirIsUsing       = addPrefix("directory is in use by another process")
	ErrEmptyDirPath     = addPrefix("directory path is empty")
	ErrNoPrimaryKey     = addPrefix("mapper has no primary key")
	ErrCollectionExists = addPrefix("collection is already open with another schema")
	ErrIndexNotFound    = addPrefix("no index with that name")
	ErrIndexExists      = addPrefix("index name is used by another definition")
	ErrExceedMaxBatch   = addPrefix("exceed the max batch num")
	ErrClosed           = addPrefix("database is closed")

	ErrUnknownField         = model.ErrUnknownField
	ErrTypeMismatch         = model.ErrTypeMismatch
	ErrUnsupportedOperation = query.ErrUnsupportedOperation
	ErrNullPrimaryKey       = storage.ErrNullPrimaryKey
	ErrInvalidOffset        = storage.ErrInvalidOffset
	ErrDataFileCorrupted    = storage.ErrDataFileCorrupted
)

func addPrefix(errStr string) error {
	return fmt.Errorf("cqdb err: %s", errStr)
}
