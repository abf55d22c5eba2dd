package worldmap

import (
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"

	"cartograph/api/log"
)

// MaxZoomLevels is the number of pre-scaled background sets kept in memory.
const MaxZoomLevels = 6

var ErrBackgroundTooSmall = errors.New("worldmap: background image is smaller than one chunk")

// MapBackground holds the paper texture cut into chunk sized tiles for
// every zoom level. Chunk positions wrap around the texture grid.
type MapBackground struct {
	tiles       [MaxZoomLevels][][]uint32
	chunkCountX int
	chunkCountY int
}

// NewMapBackground cuts img into chunk tiles. Dimensions that are not a
// multiple of the chunk size are cropped.
func NewMapBackground(img image.Image) (*MapBackground, error) {
	bounds := img.Bounds()
	b := &MapBackground{
		chunkCountX: bounds.Dx() / ChunkSize,
		chunkCountY: bounds.Dy() / ChunkSize,
	}
	if b.chunkCountX == 0 || b.chunkCountY == 0 {
		return nil, ErrBackgroundTooSmall
	}
	width := b.chunkCountX * ChunkSize
	height := b.chunkCountY * ChunkSize

	source := make([]uint32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			source[y*width+x] = a>>8<<24 | bl>>8<<16 | g>>8<<8 | r>>8
		}
	}

	memory := 0
	for zoom := 0; zoom < MaxZoomLevels; zoom++ {
		scale := 1 << zoom
		tileEdge := ChunkSize / scale
		tiles := make([][]uint32, 0, b.chunkCountX*b.chunkCountY*scale*scale)
		for offsetY := 0; offsetY < height; offsetY += tileEdge {
			for offsetX := 0; offsetX < width; offsetX += tileEdge {
				pixels := make([]uint32, ChunkArea)
				for y := 0; y < tileEdge; y++ {
					row := (offsetY+y)*width + offsetX
					for x := 0; x < tileEdge; x++ {
						fillBlock(pixels, x*scale, y*scale, scale, source[row+x])
					}
				}
				tiles = append(tiles, pixels)
				memory += ChunkArea * 4
			}
		}
		b.tiles[zoom] = tiles
	}
	log.Infof("map background %dx%d chunks, estimated RAM usage %.2f MB", b.chunkCountX, b.chunkCountY, float64(memory)/1024/1024)
	return b, nil
}

// LoadMapBackground decodes a PNG texture from path.
func LoadMapBackground(path string) (*MapBackground, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return NewMapBackground(img)
}

// Pixels returns the shared background tile for pos at zoom. A nil
// background yields the unexplored checkerboard.
func (b *MapBackground) Pixels(pos ChunkPosition, zoom uint8) []uint32 {
	if b == nil {
		return UnexploredPixels
	}
	z := int(zoom)
	if z >= MaxZoomLevels {
		z = MaxZoomLevels - 1
	}
	scale := 1 << z
	countX := int32(b.chunkCountX * scale)
	countY := int32(b.chunkCountY * scale)
	return b.tiles[z][int(floorMod(pos.Y, countY))*int(countX)+int(floorMod(pos.X, countX))]
}
