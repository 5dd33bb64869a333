package cqdb

import (
	"github.com/cqkv/cqdb/codec"
	"github.com/cqkv/cqdb/fio"
)

type options struct {
	fs           fio.FileSystem
	logger       *Logger
	compression  codec.Compression
	objectCodec  codec.ObjectCodec
	keydirDegree int
	syncWrites   bool
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		fs:           fio.NewOSFileSystem(),
		logger:       NewLogger(nil),
		compression:  codec.CompressionLZ4,
		objectCodec:  codec.DefaultObjectCodec,
		keydirDegree: 32,
	}
}

// WithFileSystem replaces the file system, e.g. with fio.NewMemFileSystem.
// The directory lock is only taken on the OS file system.
func WithFileSystem(fs fio.FileSystem) Option {
	return func(o *options) {
		o.fs = fs
	}
}

func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCompression sets the algorithm used for fields declared compressed.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithObjectCodec sets the codec used by object fields.
func WithObjectCodec(c codec.ObjectCodec) Option {
	return func(o *options) {
		o.objectCodec = c
	}
}

func WithKeydirDegree(degree int) Option {
	return func(o *options) {
		o.keydirDegree = degree
	}
}

// WithSyncWrites syncs the data and key files after every write operation.
func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}
