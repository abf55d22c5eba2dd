package codec

import (
	"encoding/binary"
	"io"
	"math"
)

const (
	DefaultBufferSize = 64 * 1024
	// MinBufferSize fits the widest primitive.
	MinBufferSize = 8
	// MaxInitialContainerSize caps preallocation driven by counts read from a stream.
	MaxInitialContainerSize = 1024
)

// BufferedWriter batches little-endian primitives into a fixed buffer and
// flushes to the underlying writer whenever the next value would not fit.
// The first write error is kept and later writes become no-ops.
type BufferedWriter struct {
	w   io.Writer
	buf []byte
	pos int
	err error
}

func NewBufferedWriter(w io.Writer, bufferSize int) *BufferedWriter {
	if bufferSize < MinBufferSize {
		panic(ErrBufferTooSmall)
	}
	return &BufferedWriter{w: w, buf: make([]byte, bufferSize)}
}

// Err returns the first error hit while flushing.
func (b *BufferedWriter) Err() error { return b.err }

func (b *BufferedWriter) Flush() error {
	if b.err != nil {
		b.pos = 0
		return b.err
	}
	if b.pos == 0 {
		return nil
	}
	_, b.err = b.w.Write(b.buf[:b.pos])
	b.pos = 0
	return b.err
}

func (b *BufferedWriter) request(size int) []byte {
	if size > len(b.buf) {
		panic(ErrBufferTooSmall)
	}
	if b.pos+size > len(b.buf) {
		_ = b.Flush()
	}
	span := b.buf[b.pos : b.pos+size]
	b.pos += size
	return span
}

func (b *BufferedWriter) WriteUint8(v uint8) {
	b.request(1)[0] = v
}

func (b *BufferedWriter) WriteBool(v bool) {
	if v {
		b.WriteUint8(1)
	} else {
		b.WriteUint8(0)
	}
}

func (b *BufferedWriter) WriteInt8(v int8) { b.WriteUint8(uint8(v)) }
func (b *BufferedWriter) WriteInt16(v int16) { b.WriteUint16(uint16(v)) }
func (b *BufferedWriter) WriteInt32(v int32) { b.WriteUint32(uint32(v)) }
func (b *BufferedWriter) WriteInt64(v int64) { b.WriteUint64(uint64(v)) }

func (b *BufferedWriter) WriteUint16(v uint16) {
	binary.LittleEndian.PutUint16(b.request(2), v)
}

func (b *BufferedWriter) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(b.request(4), v)
}

func (b *BufferedWriter) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(b.request(8), v)
}

func (b *BufferedWriter) WriteFloat32(v float32) { b.WriteUint32(math.Float32bits(v)) }
func (b *BufferedWriter) WriteFloat64(v float64) { b.WriteUint64(math.Float64bits(v)) }

// WriteString writes a 4-byte byte count followed by the UTF-8 bytes.
// The whole string must fit in the buffer.
func (b *BufferedWriter) WriteString(s string) {
	size := 4 + len(s)
	if size > len(b.buf) {
		panic(ErrBufferTooSmall)
	}
	span := b.request(size)
	binary.LittleEndian.PutUint32(span, uint32(len(s)))
	copy(span[4:], s)
}

// WriteBlob writes a 4-byte length followed by raw bytes. Unlike strings,
// blobs may exceed the buffer; they are streamed straight through.
func (b *BufferedWriter) WriteBlob(data []byte) {
	b.WriteInt32(int32(len(data)))
	if len(data) <= len(b.buf)-b.pos {
		copy(b.request(len(data)), data)
		return
	}
	if b.Flush() != nil {
		return
	}
	_, b.err = b.w.Write(data)
}
