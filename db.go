package cqdb

import (
	"errors"
	"sync"

	"github.com/cqkv/cqdb/fio"
	"github.com/cqkv/cqdb/model"
)

// DB is a directory of collections. Each collection keeps a data file, a
// primary key file, a meta file and one file per index.
type DB struct {
	mu sync.Mutex

	dirPath  string
	options  *options
	fileLock fio.FileLocker
	stores   map[string]*store
	closed   bool
}

// Open opens the database in dirPath, creating the directory if needed.
// On the OS file system the directory is locked for the lifetime of the DB.
func Open(dirPath string, opts ...Option) (*DB, error) {
	if dirPath == "" {
		return nil, ErrEmptyDirPath
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.fs.MkdirAll(dirPath); err != nil {
		return nil, err
	}

	db := &DB{
		dirPath: dirPath,
		options: o,
		stores:  make(map[string]*store),
	}
	if _, ok := o.fs.(fio.OSFileSystem); ok {
		fileLock := fio.NewFlock(dirPath)
		hold, err := fileLock.TryLock()
		if err != nil {
			return nil, err
		}
		if !hold {
			return nil, ErrDirIsUsing
		}
		db.fileLock = fileLock
	}
	o.logger.Info("database opened", "dir", dirPath)
	return db, nil
}

// collection returns the store of the collection described by mapper,
// opening it on first use.
func (db *DB) collection(schema schemaSource) (*store, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	sc, err := schema.Schema()
	if err != nil {
		return nil, err
	}
	if s, ok := db.stores[sc.Entity]; ok {
		if !s.schema.Equal(sc) {
			return nil, ErrCollectionExists
		}
		return s, nil
	}
	s, err := openStore(db.dirPath, db.options, sc)
	if err != nil {
		return nil, err
	}
	db.stores[sc.Entity] = s
	return s, nil
}

// Flush persists every index changed since it was last written.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var errs []error
	for _, s := range db.stores {
		s.mu.Lock()
		errs = append(errs, s.flush())
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Close flushes every collection and releases the directory lock.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error
	for _, s := range db.stores {
		s.mu.Lock()
		errs = append(errs, s.close())
		s.mu.Unlock()
	}
	db.stores = nil
	if db.fileLock != nil {
		errs = append(errs, db.fileLock.Unlock())
	}
	db.options.logger.Info("database closed", "dir", db.dirPath)
	return errors.Join(errs...)
}

type schemaSource interface {
	Schema() (*model.Schema, error)
}
