package fio

import "errors"

// Mode is the access mode a file is opened with for the duration of one operation.
type Mode uint8

const (
	// ReadOnly forbids any write.
	ReadOnly Mode = iota
	// Append only allows writes at the end of the file.
	Append
	// ReadWrite allows reads and positional writes.
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case Append:
		return "append"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

var (
	ErrReadOnly      = errors.New("fio: file is opened read-only")
	ErrAppendOnly    = errors.New("fio: positional write on append-only file")
	ErrClosed        = errors.New("fio: file already closed")
	ErrFileNotExists = errors.New("fio: file does not exist")
)

// IOManager can be custom in options
type IOManager interface {
	// Read reads len(buf) bytes at offset.
	Read(buf []byte, offset int64) (int, error)
	// Write overwrites bytes at offset.
	Write(data []byte, offset int64) (int, error)
	// Append writes data at the end of the file and returns the offset it was written at.
	Append(data []byte) (int64, error)
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// FileSystem opens files by name. Names are full paths.
type FileSystem interface {
	Open(name string, mode Mode) (IOManager, error)
	Exists(name string) bool
	Remove(name string) error
	Rename(oldName, newName string) error
	MkdirAll(dir string) error
}

func checkWrite(mode Mode, positional bool) error {
	switch {
	case mode == ReadOnly:
		return ErrReadOnly
	case mode == Append && positional:
		return ErrAppendOnly
	}
	return nil
}
