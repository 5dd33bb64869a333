package fio

import (
	"errors"
	"os"
)

var _ IOManager = (*FileIO)(nil)

// FileIO is the default implement for IOManager
type FileIO struct {
	fd   *os.File
	mode Mode
	size int64
}

func NewFileIO(file string, mode Mode) (*FileIO, error) {
	flag := os.O_RDWR | os.O_CREATE
	if mode == ReadOnly {
		flag = os.O_RDONLY
	}
	fd, err := os.OpenFile(file, flag, 0644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotExists
		}
		return nil, err
	}
	stat, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	return &FileIO{fd: fd, mode: mode, size: stat.Size()}, nil
}

func (fio *FileIO) Read(buf []byte, offset int64) (int, error) {
	return fio.fd.ReadAt(buf, offset)
}

func (fio *FileIO) Write(data []byte, offset int64) (int, error) {
	if err := checkWrite(fio.mode, true); err != nil {
		return 0, err
	}
	n, err := fio.fd.WriteAt(data, offset)
	if end := offset + int64(n); end > fio.size {
		fio.size = end
	}
	return n, err
}

func (fio *FileIO) Append(data []byte) (int64, error) {
	if err := checkWrite(fio.mode, false); err != nil {
		return 0, err
	}
	offset := fio.size
	n, err := fio.fd.WriteAt(data, offset)
	fio.size += int64(n)
	return offset, err
}

func (fio *FileIO) Size() (int64, error) {
	return fio.size, nil
}

func (fio *FileIO) Truncate(size int64) error {
	if err := checkWrite(fio.mode, true); err != nil {
		return err
	}
	if err := fio.fd.Truncate(size); err != nil {
		return err
	}
	fio.size = size
	return nil
}

func (fio *FileIO) Sync() error {
	if fio.mode == ReadOnly {
		return nil
	}
	return fio.fd.Sync()
}

func (fio *FileIO) Close() error {
	return fio.fd.Close()
}

// OSFileSystem opens FileIO handles on the local disk.
type OSFileSystem struct{}

func NewOSFileSystem() OSFileSystem {
	return OSFileSystem{}
}

func (OSFileSystem) Open(name string, mode Mode) (IOManager, error) {
	return NewFileIO(name, mode)
}

func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (OSFileSystem) Remove(name string) error {
	err := os.Remove(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (OSFileSystem) Rename(oldName, newName string) error {
	return os.Rename(oldName, newName)
}

func (OSFileSystem) MkdirAll(dir string) error {
	return os.MkdirAll(dir, os.ModePerm)
}
