package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// OutputVersion is the format version stamped on every stream we write.
const OutputVersion uint32 = 0

// VersionedWriter writes the 4-byte version tag uncompressed and then
// optionally routes everything else through a DEFLATE compressor.
// Close flushes and finishes compression but never closes the target.
type VersionedWriter struct {
	*BufferedWriter
	compressor *flate.Writer
}

func NewVersionedWriter(w io.Writer, bufferSize int, compressed bool) (*VersionedWriter, error) {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], OutputVersion)
	if _, err := w.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write version: %w", err)
	}

	vw := &VersionedWriter{}
	target := w
	if compressed {
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		vw.compressor = fw
		target = fw
	}
	vw.BufferedWriter = NewBufferedWriter(target, bufferSize)
	return vw, nil
}

func (v *VersionedWriter) Close() error {
	err := v.Flush()
	if v.compressor != nil {
		if cerr := v.compressor.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// VersionedReader reads the version tag first and exposes it for
// migration dispatch, then decompresses the rest when asked to.
type VersionedReader struct {
	*BufferedReader
	version      uint32
	decompressor io.ReadCloser
}

func NewVersionedReader(r io.Reader, bufferSize int, compressed bool) (*VersionedReader, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: version header: %v", ErrTruncated, err)
	}

	vr := &VersionedReader{version: binary.LittleEndian.Uint32(header[:])}
	source := r
	if compressed {
		vr.decompressor = flate.NewReader(r)
		source = vr.decompressor
	}
	vr.BufferedReader = NewBufferedReader(source, bufferSize)
	return vr, nil
}

func (v *VersionedReader) Version() uint32 { return v.version }

func (v *VersionedReader) Close() error {
	if v.decompressor != nil {
		return v.decompressor.Close()
	}
	return nil
}

// EncodeBytes runs fn against an in-memory versioned writer and returns the bytes.
func EncodeBytes(bufferSize int, compressed bool, fn func(w *VersionedWriter)) ([]byte, error) {
	var out bytes.Buffer
	w, err := NewVersionedWriter(&out, bufferSize, compressed)
	if err != nil {
		return nil, err
	}
	fn(w)
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecodeBytes runs fn against a versioned reader over data. The reader's
// sticky error is reported when fn itself returns nil.
func DecodeBytes(data []byte, bufferSize int, compressed bool, fn func(r *VersionedReader) error) error {
	r, err := NewVersionedReader(bytes.NewReader(data), bufferSize, compressed)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := fn(r); err != nil {
		return err
	}
	return r.Err()
}
