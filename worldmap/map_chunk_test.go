package worldmap

import (
	"bytes"
	"image"
	"image/color"
	"slices"
	"testing"

	"cartograph/api/codec"
)

func gradientPixels() []uint32 {
	pixels := make([]uint32, ChunkArea)
	for i := range pixels {
		x, y := uint32(i%ChunkSize), uint32(i/ChunkSize)
		pixels[i] = 0xFF000000 | (x*8)<<16 | (y*8)<<8 | (x+y)*4
	}
	return pixels
}

func encodeChunk(t *testing.T, chunk MapChunk) []byte {
	t.Helper()
	var out bytes.Buffer
	w := codec.NewBufferedWriter(&out, 256)
	chunk.Write(w)
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return out.Bytes()
}

func Test_MapChunk_RoundTripAtStoredResolution(t *testing.T) {
	for zoom := uint8(0); zoom <= 5; zoom++ {
		pixels := ApplyBoxFilter(gradientPixels(), zoom)
		chunk := NewMapChunk(pixels, zoom, 2)
		data := encodeChunk(t, chunk)

		step := sampleStep(zoom)
		samples := (ChunkSize / step) * (ChunkSize / step)
		if len(data) != 1+4*samples {
			t.Fatalf("zoom %d encodes to %d bytes, want %d", zoom, len(data), 1+4*samples)
		}

		r := codec.NewBufferedReader(bytes.NewReader(data), 256)
		got := ReadMapChunk(r, ChunkPosition{}, nil)
		if r.Err() != nil {
			t.Fatalf("zoom %d: %v", zoom, r.Err())
		}
		if got.Zoom != zoom || got.Color != 2 || !slices.Equal(got.Pixels, pixels) {
			t.Fatalf("zoom %d: round trip mismatch", zoom)
		}
	}
}

func Test_MapChunk_BackgroundChunkStoresOnlyQuality(t *testing.T) {
	chunk := NewBackgroundChunk(ChunkPosition{X: 4, Y: 4}, 2, nil)
	data := encodeChunk(t, chunk)
	if len(data) != 1 || data[0] != uint8(NewColorAndZoom(0, 2)) {
		t.Fatalf("background chunk encodes to %v", data)
	}
	r := codec.NewBufferedReader(bytes.NewReader(data), 8)
	got := ReadMapChunk(r, ChunkPosition{X: 4, Y: 4}, nil)
	if got.Color != 0 || got.Zoom != 2 || !slices.Equal(got.Pixels, UnexploredPixels) {
		t.Fatalf("background decode mismatch")
	}
}

func Test_MapChunk_UnexploredCheckerboard(t *testing.T) {
	if UnexploredPixels[0] != 0xFF689AA8 || UnexploredPixels[4] != 0xFF98CCDC || UnexploredPixels[4*ChunkSize+4] != 0xFF689AA8 {
		t.Fatalf("checkerboard pattern")
	}
}

func Test_BoxFilter_ZoomZeroIsNoop(t *testing.T) {
	pixels := gradientPixels()
	want := slices.Clone(pixels)
	ApplyBoxFilter(pixels, 0)
	if !slices.Equal(pixels, want) {
		t.Fatalf("zoom 0 must not change pixels")
	}
}

func Test_BoxFilter_BlockAverage(t *testing.T) {
	for zoom := uint8(1); zoom <= 3; zoom++ {
		original := gradientPixels()
		pixels := ApplyBoxFilter(slices.Clone(original), zoom)
		step := 1 << zoom
		for by := 0; by < ChunkSize; by += step {
			for bx := 0; bx < ChunkSize; bx += step {
				var sum [4]uint32
				for y := by; y < by+step; y++ {
					for x := bx; x < bx+step; x++ {
						c := original[y*ChunkSize+x]
						for ch := 0; ch < 4; ch++ {
							sum[ch] += c >> (8 * ch) & 0xFF
						}
					}
				}
				var want uint32
				for ch := 0; ch < 4; ch++ {
					want |= sum[ch] / uint32(step*step) << (8 * ch)
				}
				for y := by; y < by+step; y++ {
					for x := bx; x < bx+step; x++ {
						if got := pixels[y*ChunkSize+x]; got != want {
							t.Fatalf("zoom %d block (%d,%d): %08X want %08X", zoom, bx, by, got, want)
						}
					}
				}
			}
		}
	}
}

func Test_Grayscale(t *testing.T) {
	const ocean = 0xFFB5854E
	paper := make([]uint32, ChunkArea)
	for i := range paper {
		paper[i] = 0xFF6080A0
	}
	pixels := make([]uint32, ChunkArea)
	pixels[0] = ocean
	pixels[1] = 0xFF000000
	pixels[2] = 0x00FFFFFF

	ConvertToGrayscale(pixels, paper, ocean)
	if pixels[0] != 0xFF6080A0 {
		t.Fatalf("ocean keeps the paper tint: %08X", pixels[0])
	}
	if pixels[1] != 0xFF000000 {
		t.Fatalf("black stays black: %08X", pixels[1])
	}
	if pixels[2]>>24 != 0xFF || pixels[2]&0xFF < 0x9F {
		t.Fatalf("white is close to the paper tint and opaque: %08X", pixels[2])
	}
}

func Test_MapBackground_WrapsAndScales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	bg, err := NewMapBackground(img)
	if err != nil {
		t.Fatalf("background: %v", err)
	}

	tile := bg.Pixels(ChunkPosition{X: 1, Y: 0}, 0)
	if tile[0] != 0xFF070020 {
		t.Fatalf("tile (1,0) first pixel %08X", tile[0])
	}
	if wrapped := bg.Pixels(ChunkPosition{X: -1, Y: 5}, 0); &wrapped[0] != &tile[0] {
		t.Fatalf("negative and out of range positions wrap around")
	}

	zoomed := bg.Pixels(ChunkPosition{X: 1, Y: 0}, 1)
	if zoomed[0] != zoomed[1] || zoomed[0] != zoomed[ChunkSize+1] || zoomed[0] != 0xFF070010 {
		t.Fatalf("zoom 1 tile replicates 2x2 blocks: %08X %08X", zoomed[0], zoomed[1])
	}

	if _, err := NewMapBackground(image.NewRGBA(image.Rect(0, 0, 16, 64))); err == nil {
		t.Fatalf("image narrower than a chunk must be rejected")
	}
}

func Test_MapChunks_FindBetterAndMerge(t *testing.T) {
	table := MapChunks{
		{X: 0, Y: 0}: NewMapChunk(gradientPixels(), 2, 1),
	}
	incoming := MapChunks{
		{X: 0, Y: 0}: NewMapChunk(gradientPixels(), 1, 0),
		{X: 1, Y: 0}: NewMapChunk(gradientPixels(), 3, 0),
	}
	better := table.FindBetter(incoming)
	if len(better) != 0 {
		t.Fatalf("color 0 chunks are never offered: %v", len(better))
	}

	if n := table.Merge(incoming); n != 2 {
		t.Fatalf("merged %d", n)
	}
	if table[ChunkPosition{}].Zoom != 1 {
		t.Fatalf("finer zoom wins despite lower color")
	}
	if n := table.Merge(incoming); n != 0 {
		t.Fatalf("second merge changed %d", n)
	}
}

func Test_MapChunks_BytesRoundTrip(t *testing.T) {
	chunks := MapChunks{
		{X: -4, Y: 9}:  NewMapChunk(ApplyBoxFilter(gradientPixels(), 1), 1, 3),
		{X: 12, Y: -1}: NewBackgroundChunk(ChunkPosition{X: 12, Y: -1}, 4, nil),
	}
	data, err := chunks.ToBytes(codec.DefaultBufferSize)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := MapChunksFromBytes(data, 1024, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("decoded %d chunks", len(got))
	}
	for pos, want := range chunks {
		c := got[pos]
		if c.Zoom != want.Zoom || c.Color != want.Color || !slices.Equal(c.Pixels, want.Pixels) {
			t.Fatalf("chunk %v mismatch", pos)
		}
	}

	if empty, _ := (MapChunks{}).ToBytes(codec.DefaultBufferSize); empty != nil {
		t.Fatalf("empty set encodes to nil")
	}
	if _, err := MapChunksFromBytes(data[:len(data)/2], 1024, nil); err == nil {
		t.Fatalf("truncated data must fail")
	}
}
