package worldmap

import "cartograph/api/codec"

const (
	// ChunkSize is the edge length of a chunk in pixels (and world blocks).
	ChunkSize = 32
	ChunkArea = ChunkSize * ChunkSize
)

// UnexploredPixels is the checkerboard shown where no background texture
// is available. It is shared and must not be modified.
var UnexploredPixels = func() []uint32 {
	pixels := make([]uint32, ChunkArea)
	for y, i := 0, 0; y < ChunkSize; y++ {
		for x := 0; x < ChunkSize; x, i = x+1, i+1 {
			if x/4%2 != y/4%2 {
				pixels[i] = 0xFF98CCDC
			} else {
				pixels[i] = 0xFF689AA8
			}
		}
	}
	return pixels
}()

// MapChunk is one chunk raster. Pixels are ABGR with red in the low byte.
// A chunk is replaced wholesale when a better one arrives and its pixel
// slice is never written after publication.
type MapChunk struct {
	Pixels []uint32
	Zoom   uint8
	Color  uint8
}

func NewMapChunk(pixels []uint32, zoom, color uint8) MapChunk {
	return MapChunk{Pixels: pixels, Zoom: zoom, Color: color}
}

// NewBackgroundChunk builds a color 0 chunk that shows the background
// texture (or the unexplored checkerboard) at the given zoom.
func NewBackgroundChunk(pos ChunkPosition, zoom uint8, background *MapBackground) MapChunk {
	return MapChunk{Pixels: background.Pixels(pos, zoom), Zoom: zoom}
}

func (c MapChunk) ColorAndZoom() ColorAndZoom { return NewColorAndZoom(c.Color, c.Zoom) }

// BetterThan compares the quality descriptors of two chunks.
func (c MapChunk) BetterThan(other MapChunk) bool {
	return c.ColorAndZoom().BetterThan(other.ColorAndZoom())
}

// sampleStep is the distance between stored samples at zoom. Zooms past
// the chunk edge keep a single sample.
func sampleStep(zoom uint8) int {
	if zoom >= 5 {
		return ChunkSize
	}
	return 1 << zoom
}

// Write stores the quality byte followed by one sample per 2^zoom block.
// Background chunks store nothing else.
func (c MapChunk) Write(w *codec.BufferedWriter) {
	c.ColorAndZoom().Write(w)
	if c.Color == 0 {
		return
	}
	step := sampleStep(c.Zoom)
	for y := 0; y < ChunkSize; y += step {
		row := y * ChunkSize
		for x := 0; x < ChunkSize; x += step {
			w.WriteUint32(c.Pixels[row+x])
		}
	}
}

// ReadMapChunk decodes a chunk written by Write, replicating each sample
// into its block. Color 0 chunks take their pixels from background.
func ReadMapChunk(r *codec.BufferedReader, pos ChunkPosition, background *MapBackground) MapChunk {
	cz := ReadColorAndZoom(r)
	chunk := MapChunk{Zoom: cz.Zoom(), Color: cz.Color()}
	if chunk.Color == 0 {
		chunk.Pixels = background.Pixels(pos, chunk.Zoom)
		return chunk
	}

	chunk.Pixels = make([]uint32, ChunkArea)
	step := sampleStep(chunk.Zoom)
	for y := 0; y < ChunkSize; y += step {
		for x := 0; x < ChunkSize; x += step {
			fillBlock(chunk.Pixels, x, y, step, r.ReadUint32())
		}
	}
	return chunk
}

func fillBlock(pixels []uint32, x, y, step int, pixel uint32) {
	for innerY := 0; innerY < step; innerY++ {
		row := (y+innerY)*ChunkSize + x
		for innerX := 0; innerX < step; innerX++ {
			pixels[row+innerX] = pixel
		}
	}
}
