package codec

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func Test_Codec_PrimitivesRoundTrip(t *testing.T) {
	var out bytes.Buffer
	w := NewBufferedWriter(&out, 16)
	w.WriteBool(true)
	w.WriteInt8(-5)
	w.WriteUint8(250)
	w.WriteInt16(-1234)
	w.WriteUint16(65000)
	w.WriteInt32(-7)
	w.WriteUint32(0xDEADBEEF)
	w.WriteInt64(math.MinInt64)
	w.WriteUint64(math.MaxUint64)
	w.WriteFloat32(1.5)
	w.WriteFloat64(-2.25)
	w.WriteString("héllo")
	w.WriteString("")
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	r := NewBufferedReader(bytes.NewReader(out.Bytes()), 16)
	if !r.ReadBool() || r.ReadInt8() != -5 || r.ReadUint8() != 250 {
		t.Fatalf("byte values mismatch")
	}
	if r.ReadInt16() != -1234 || r.ReadUint16() != 65000 {
		t.Fatalf("16 bit values mismatch")
	}
	if r.ReadInt32() != -7 || r.ReadUint32() != 0xDEADBEEF {
		t.Fatalf("32 bit values mismatch")
	}
	if r.ReadInt64() != math.MinInt64 || r.ReadUint64() != math.MaxUint64 {
		t.Fatalf("64 bit values mismatch")
	}
	if r.ReadFloat32() != 1.5 || r.ReadFloat64() != -2.25 {
		t.Fatalf("float values mismatch")
	}
	if s := r.ReadString(); s != "héllo" {
		t.Fatalf("string = %q", s)
	}
	if s := r.ReadString(); s != "" {
		t.Fatalf("empty string = %q", s)
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
}

func Test_Codec_LittleEndianLayout(t *testing.T) {
	var out bytes.Buffer
	w := NewBufferedWriter(&out, MinBufferSize)
	w.WriteUint32(0x01020304)
	w.WriteString("ab")
	_ = w.Flush()
	want := []byte{4, 3, 2, 1, 2, 0, 0, 0, 'a', 'b'}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("layout = %v, want %v", out.Bytes(), want)
	}
}

func Test_Codec_TruncatedIsSticky(t *testing.T) {
	r := NewBufferedReader(bytes.NewReader([]byte{1, 2, 3}), 8)
	if v := r.ReadUint32(); v != 0 {
		t.Fatalf("expected zero value, got %d", v)
	}
	if !errors.Is(r.Err(), ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", r.Err())
	}
	_ = r.ReadUint8()
	if !errors.Is(r.Err(), ErrTruncated) {
		t.Fatalf("error must stay sticky, got %v", r.Err())
	}
	if !IsCorrupt(r.Err()) {
		t.Fatalf("truncation counts as corruption")
	}
}

func Test_Codec_WriterPanicsOnOversizedString(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatalf("expected panic")
		}
		if err, ok := rec.(error); !ok || !errors.Is(err, ErrBufferTooSmall) {
			t.Fatalf("unexpected panic value %v", rec)
		}
	}()
	w := NewBufferedWriter(&bytes.Buffer{}, 8)
	w.WriteString("12345")
}

func Test_Codec_ReaderRejectsOversizedString(t *testing.T) {
	var out bytes.Buffer
	w := NewBufferedWriter(&out, 64)
	w.WriteString(strings.Repeat("x", 40))
	_ = w.Flush()

	r := NewBufferedReader(bytes.NewReader(out.Bytes()), 16)
	if s := r.ReadString(); s != "" {
		t.Fatalf("expected empty string, got %q", s)
	}
	if !errors.Is(r.Err(), ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", r.Err())
	}
}

func Test_Codec_NegativeCount(t *testing.T) {
	var out bytes.Buffer
	w := NewBufferedWriter(&out, 8)
	w.WriteInt32(-3)
	_ = w.Flush()
	r := NewBufferedReader(bytes.NewReader(out.Bytes()), 8)
	if n := r.ReadCount(); n != 0 {
		t.Fatalf("count = %d", n)
	}
	if !errors.Is(r.Err(), ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", r.Err())
	}
	if InitialCapacity(1<<20) != MaxInitialContainerSize || InitialCapacity(3) != 3 {
		t.Fatalf("InitialCapacity clamp")
	}
}

func Test_Codec_BlobLargerThanBuffer(t *testing.T) {
	blob := make([]byte, 1000)
	for i := range blob {
		blob[i] = byte(i * 7)
	}
	var out bytes.Buffer
	w := NewBufferedWriter(&out, 32)
	w.WriteUint8(9)
	w.WriteBlob(blob)
	w.WriteUint8(10)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	r := NewBufferedReader(bytes.NewReader(out.Bytes()), 32)
	if r.ReadUint8() != 9 {
		t.Fatalf("prefix byte")
	}
	got := r.ReadBlob()
	if !bytes.Equal(got, blob) {
		t.Fatalf("blob mismatch")
	}
	if r.ReadUint8() != 10 || r.Err() != nil {
		t.Fatalf("suffix byte, err=%v", r.Err())
	}
}

func Test_Codec_VersionedRoundTrip(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		data, err := EncodeBytes(DefaultBufferSize, compressed, func(w *VersionedWriter) {
			w.WriteInt32(3)
			for i := 0; i < 3; i++ {
				w.WriteString(strings.Repeat("map", i+1))
			}
		})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if data[0] != 0 || data[1] != 0 || data[2] != 0 || data[3] != 0 {
			t.Fatalf("version header must be plain zero, got %v", data[:4])
		}

		var got []string
		err = DecodeBytes(data, DefaultBufferSize, compressed, func(r *VersionedReader) error {
			if r.Version() != OutputVersion {
				t.Fatalf("version = %d", r.Version())
			}
			n := r.ReadCount()
			for i := 0; i < n; i++ {
				got = append(got, r.ReadString())
			}
			return nil
		})
		if err != nil {
			t.Fatalf("decode (compressed=%v): %v", compressed, err)
		}
		if len(got) != 3 || got[2] != "mapmapmap" {
			t.Fatalf("decoded %s", spew.Sdump(got))
		}
	}
}

func Test_Codec_VersionedTruncatedHeader(t *testing.T) {
	err := DecodeBytes([]byte{0, 0}, DefaultBufferSize, false, func(r *VersionedReader) error { return nil })
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func Test_Codec_LargeAttributeBoundaries(t *testing.T) {
	const limit = 10
	cases := []struct {
		length int
		parts  int
	}{
		{0, 1},
		{1, 1},
		{limit, 1},
		{limit + 1, 2},
		{2 * limit, 2},
		{3*limit + 4, 4},
	}
	for _, c := range cases {
		tree := NewMemoryTree()
		value := bytes.Repeat([]byte{0xAB}, c.length)
		for i := range value {
			value[i] = byte(i)
		}
		n := SetBytesLarge(tree, "chunks", value, limit)
		if n != c.parts {
			t.Fatalf("length %d: %d parts, want %d", c.length, n, c.parts)
		}
		if c.parts == 1 {
			if !tree.HasAttribute("chunks") || tree.HasAttribute("chunks_parts") {
				t.Fatalf("length %d: expected single attribute, keys %v", c.length, tree.Keys())
			}
		} else {
			parts, _ := tree.GetInt("chunks_parts")
			total, _ := tree.GetInt("chunks_totalLength")
			if parts != c.parts || total != c.length {
				t.Fatalf("length %d: header %d/%d", c.length, parts, total)
			}
		}
		got, err := GetBytesLarge(tree, "chunks")
		if err != nil {
			t.Fatalf("length %d: %v", c.length, err)
		}
		if !bytes.Equal(got, value) {
			t.Fatalf("length %d: round trip mismatch", c.length)
		}
	}
}

func Test_Codec_LargeAttributeOverwriteClearsParts(t *testing.T) {
	tree := NewMemoryTree()
	SetBytesLarge(tree, "regions", make([]byte, 35), 10)
	SetBytesLarge(tree, "regions", []byte{1, 2}, 10)
	if keys := tree.Keys(); len(keys) != 1 || keys[0] != "regions" {
		t.Fatalf("stale parts left behind: %v", keys)
	}
	got, err := GetBytesLarge(tree, "regions")
	if err != nil || !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("got %v, %v", got, err)
	}
}

func Test_Codec_LargeAttributeCorrupt(t *testing.T) {
	tree := NewMemoryTree()
	SetBytesLarge(tree, "waypoints", make([]byte, 25), 10)
	tree.RemoveAttribute("waypoints_1")
	if _, err := GetBytesLarge(tree, "waypoints"); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("missing part: expected ErrCorrupted, got %v", err)
	}

	tree = NewMemoryTree()
	SetBytesLarge(tree, "waypoints", make([]byte, 25), 10)
	tree.SetInt("waypoints_totalLength", 26)
	if _, err := GetBytesLarge(tree, "waypoints"); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("length mismatch: expected ErrCorrupted, got %v", err)
	}

	if v, err := GetBytesLarge(NewMemoryTree(), "absent"); v != nil || err != nil {
		t.Fatalf("absent key: %v %v", v, err)
	}
}
