// Package wire implements the dynamic length-prefixed binary codec used for
// every MLS message type in this repository.
//
// Every field is written and read by its own Writer/Reader method, one
// method per field code:
//
//	B   a single byte
//	I   a 4-byte unsigned integer, little-endian
//	V   a length-prefixed variable-length byte string: a 4-byte
//	    little-endian length followed by that many bytes
//
// The wire format fixes every length prefix to 4 bytes, little-endian,
// rather than a platform-dependent native size, so encoded messages are
// portable between processes.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates an encoded message.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the encoded message built so far.
func (w *Writer) Bytes() []byte { return w.buf }

// PutByte appends a single byte (format 'B').
func (w *Writer) PutByte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// PutUint32 appends a 4-byte little-endian unsigned integer (format 'I').
func (w *Writer) PutUint32(v uint32) *Writer {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// PutVector appends a length-prefixed variable-length byte string (format
// 'V'): a 4-byte little-endian length followed by the bytes themselves. A
// nil or empty slice is encoded as a zero-length prefix with no payload,
// which round-trips back to an empty (non-nil) slice.
func (w *Writer) PutVector(v []byte) *Writer {
	w.PutUint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
	return w
}

// PutVectorList appends a sequence of vectors prefixed by a count, used
// for lists of byte strings. The explicit count prefix means a
// reader never has to guess when to stop.
func (w *Writer) PutVectorList(vs [][]byte) *Writer {
	w.PutUint32(uint32(len(vs)))
	for _, v := range vs {
		w.PutVector(v)
	}
	return w
}

// Reader consumes an encoded message produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for reading.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wire: short buffer: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Uint32 reads a 4-byte little-endian unsigned integer.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// Vector reads a length-prefixed variable-length byte string. It always
// returns a non-nil slice, even for a zero-length vector; a field written
// as empty and one written from nil both read back as this same empty
// slice, so callers check length rather than nilness.
func (r *Reader) Vector() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("wire: vector length: %w", err)
	}
	if err := r.need(int(n)); err != nil {
		return nil, fmt.Errorf("wire: vector payload: %w", err)
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// VectorList reads a count-prefixed sequence of vectors written by
// PutVectorList.
func (r *Reader) VectorList() ([][]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("wire: vector list count: %w", err)
	}
	out := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.Vector()
		if err != nil {
			return nil, fmt.Errorf("wire: vector list entry %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Done reports whether the entire buffer has been consumed. Callers that
// expect to have read a whole message should check this to catch trailing
// garbage bytes.
func (r *Reader) Done() bool {
	return r.Remaining() == 0
}
