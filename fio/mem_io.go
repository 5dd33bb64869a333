package fio

import (
	"io"
	"path/filepath"
	"sync"
)

// MemFileSystem keeps every file in memory. Used by tests and throwaway databases.
type MemFileSystem struct {
	mu    sync.Mutex
	files map[string]*memData
}

type memData struct {
	mu  sync.RWMutex
	buf []byte
}

func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string]*memData)}
}

func (fs *MemFileSystem) Open(name string, mode Mode) (IOManager, error) {
	name = filepath.Clean(name)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, ok := fs.files[name]
	if !ok {
		if mode == ReadOnly {
			return nil, ErrFileNotExists
		}
		data = &memData{}
		fs.files[name] = data
	}
	return &MemIO{data: data, mode: mode}, nil
}

func (fs *MemFileSystem) Exists(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.files[filepath.Clean(name)]
	return ok
}

func (fs *MemFileSystem) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.files, filepath.Clean(name))
	return nil
}

func (fs *MemFileSystem) Rename(oldName, newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[filepath.Clean(oldName)]
	if !ok {
		return ErrFileNotExists
	}
	delete(fs.files, filepath.Clean(oldName))
	fs.files[filepath.Clean(newName)] = data
	return nil
}

func (fs *MemFileSystem) MkdirAll(string) error {
	return nil
}

var _ IOManager = (*MemIO)(nil)

// MemIO is an IOManager over a MemFileSystem entry.
type MemIO struct {
	data   *memData
	mode   Mode
	closed bool
}

func (m *MemIO) Read(buf []byte, offset int64) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	if offset >= int64(len(m.data.buf)) {
		return 0, io.EOF
	}
	n := copy(buf, m.data.buf[offset:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemIO) Write(data []byte, offset int64) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if err := checkWrite(m.mode, true); err != nil {
		return 0, err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	m.writeAt(data, offset)
	return len(data), nil
}

func (m *MemIO) Append(data []byte) (int64, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if err := checkWrite(m.mode, false); err != nil {
		return 0, err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	offset := int64(len(m.data.buf))
	m.writeAt(data, offset)
	return offset, nil
}

func (m *MemIO) writeAt(data []byte, offset int64) {
	if end := offset + int64(len(data)); end > int64(len(m.data.buf)) {
		grown := make([]byte, end)
		copy(grown, m.data.buf)
		m.data.buf = grown
	}
	copy(m.data.buf[offset:], data)
}

func (m *MemIO) Size() (int64, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return int64(len(m.data.buf)), nil
}

func (m *MemIO) Truncate(size int64) error {
	if err := checkWrite(m.mode, true); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if size <= int64(len(m.data.buf)) {
		m.data.buf = m.data.buf[:size]
		return nil
	}
	m.writeAt(make([]byte, size-int64(len(m.data.buf))), int64(len(m.data.buf)))
	return nil
}

func (m *MemIO) Sync() error {
	return nil
}

func (m *MemIO) Close() error {
	m.closed = true
	return nil
}
