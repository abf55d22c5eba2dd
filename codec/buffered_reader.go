package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxBlobSize bounds blob lengths read from untrusted streams.
const MaxBlobSize = 64 << 20

// BufferedReader is the mirror of BufferedWriter. It keeps a sticky error:
// once a read fails every later read returns the zero value, and decoders
// check Err once when they are done.
type BufferedReader struct {
	r      io.Reader
	buf    []byte
	pos    int
	length int
	err    error
}

func NewBufferedReader(r io.Reader, bufferSize int) *BufferedReader {
	if bufferSize < MinBufferSize {
		panic(ErrBufferTooSmall)
	}
	return &BufferedReader{r: r, buf: make([]byte, bufferSize)}
}

func (b *BufferedReader) Err() error { return b.err }

// Fail records err unless an earlier error is already kept.
func (b *BufferedReader) Fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *BufferedReader) fill(size int) bool {
	carried := b.length - b.pos
	if carried != 0 {
		copy(b.buf, b.buf[b.pos:b.length])
	}
	b.pos = 0
	b.length = carried

	n, err := io.ReadAtLeast(b.r, b.buf[carried:], size-carried)
	b.length += n
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			b.Fail(ErrTruncated)
		} else {
			b.Fail(fmt.Errorf("%w: %v", ErrCorrupted, err))
		}
		return false
	}
	return true
}

func (b *BufferedReader) read(size int) []byte {
	if size > len(b.buf) {
		panic(ErrBufferTooSmall)
	}
	if b.err != nil {
		return nil
	}
	if b.pos+size > b.length && !b.fill(size) {
		return nil
	}
	span := b.buf[b.pos : b.pos+size]
	b.pos += size
	return span
}

func (b *BufferedReader) ReadUint8() uint8 {
	span := b.read(1)
	if span == nil {
		return 0
	}
	return span[0]
}

func (b *BufferedReader) ReadBool() bool { return b.ReadUint8() != 0 }
func (b *BufferedReader) ReadInt8() int8 { return int8(b.ReadUint8()) }
func (b *BufferedReader) ReadInt16() int16 { return int16(b.ReadUint16()) }
func (b *BufferedReader) ReadInt32() int32 { return int32(b.ReadUint32()) }
func (b *BufferedReader) ReadInt64() int64 { return int64(b.ReadUint64()) }

func (b *BufferedReader) ReadUint16() uint16 {
	span := b.read(2)
	if span == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(span)
}

func (b *BufferedReader) ReadUint32() uint32 {
	span := b.read(4)
	if span == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(span)
}

func (b *BufferedReader) ReadUint64() uint64 {
	span := b.read(8)
	if span == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(span)
}

func (b *BufferedReader) ReadFloat32() float32 { return math.Float32frombits(b.ReadUint32()) }
func (b *BufferedReader) ReadFloat64() float64 { return math.Float64frombits(b.ReadUint64()) }

// ReadString reads a length-prefixed UTF-8 string. A length that does not
// fit the buffer can only come from foreign or damaged data here, so it is
// kept as a sticky error rather than a panic.
func (b *BufferedReader) ReadString() string {
	n := b.ReadInt32()
	if b.err != nil {
		return ""
	}
	if n < 0 {
		b.Fail(fmt.Errorf("%w: negative string length %d", ErrCorrupted, n))
		return ""
	}
	if int(n) > len(b.buf) {
		b.Fail(fmt.Errorf("%w: string of %d bytes", ErrBufferTooSmall, n))
		return ""
	}
	span := b.read(int(n))
	if span == nil {
		return ""
	}
	return string(span)
}

// ReadBlob reads a length-prefixed byte slice written by WriteBlob.
func (b *BufferedReader) ReadBlob() []byte {
	n := b.ReadInt32()
	if b.err != nil {
		return nil
	}
	if n < 0 || n > MaxBlobSize {
		b.Fail(fmt.Errorf("%w: blob length %d", ErrCorrupted, n))
		return nil
	}
	out := make([]byte, n)
	copied := copy(out, b.buf[b.pos:b.length])
	b.pos += copied
	if copied < len(out) {
		if _, err := io.ReadFull(b.r, out[copied:]); err != nil {
			b.Fail(ErrTruncated)
			return nil
		}
	}
	return out
}

// ReadCount reads an int32 element count and rejects negative values.
func (b *BufferedReader) ReadCount() int {
	n := b.ReadInt32()
	if n < 0 {
		b.Fail(fmt.Errorf("%w: negative count %d", ErrCorrupted, n))
		return 0
	}
	return int(n)
}

// InitialCapacity clamps a stream-provided count for preallocation.
func InitialCapacity(count int) int {
	if count > MaxInitialContainerSize {
		return MaxInitialContainerSize
	}
	return count
}
