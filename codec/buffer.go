// Package codec holds the binary encodings shared by the data, key, meta and
// index files: little-endian primitives, length-prefixed strings, the per-type
// payload table and field entries.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrShortBuffer = errors.New("codec: short buffer")

// Writer appends little-endian primitives to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) PutUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) PutUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) PutUint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *Writer) PutInt32(v int32)   { w.PutUint32(uint32(v)) }
func (w *Writer) PutInt64(v int64)   { w.PutUint64(uint64(v)) }

func (w *Writer) PutFloat32(v float32) { w.PutUint32(math.Float32bits(v)) }
func (w *Writer) PutFloat64(v float64) { w.PutUint64(math.Float64bits(v)) }

// PutBlob writes an int32 length followed by the bytes.
func (w *Writer) PutBlob(b []byte) {
	w.PutInt32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutNullBlob writes the -1 length used on disk for a null variable payload.
func (w *Writer) PutNullBlob() { w.PutInt32(-1) }

func (w *Writer) PutString(s string) {
	w.PutInt32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) PutRaw(b []byte) { w.buf = append(w.buf, b...) }

// Reader decodes primitives from a byte slice.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at %d, have %d", ErrShortBuffer, n, r.pos, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) Skip(n int) error {
	_, err := r.take(n)
	return err
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.Uint8()
	return b != 0, err
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}

func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	return math.Float64frombits(v), err
}

// Blob reads a length-prefixed byte run. A -1 length yields ok == false.
// The returned slice aliases the reader's buffer.
func (r *Reader) Blob() (b []byte, ok bool, err error) {
	n, err := r.Int32()
	if err != nil {
		return nil, false, err
	}
	if n == -1 {
		return nil, false, nil
	}
	b, err = r.take(int(n))
	return b, err == nil, err
}

// Text reads a length-prefixed UTF-8 string; a null length reads as "".
func (r *Reader) Text() (string, error) {
	b, _, err := r.Blob()
	return string(b), err
}

// Raw reads n bytes without a length prefix.
func (r *Reader) Raw(n int) ([]byte, error) {
	return r.take(n)
}
