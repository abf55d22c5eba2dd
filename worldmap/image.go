package worldmap

// ApplyBoxFilter averages every 2^zoom block of a chunk raster channel by
// channel (integer truncation) and writes the average back to the whole
// block. Zoom 0 leaves the raster untouched.
func ApplyBoxFilter(pixels []uint32, zoom uint8) []uint32 {
	step := sampleStep(zoom)
	if step == 1 {
		return pixels
	}
	n := uint32(step * step)
	for y := 0; y < ChunkSize; y += step {
		for x := 0; x < ChunkSize; x += step {
			var sumR, sumG, sumB, sumA uint32
			for innerY := 0; innerY < step; innerY++ {
				row := (y+innerY)*ChunkSize + x
				for innerX := 0; innerX < step; innerX++ {
					c := pixels[row+innerX]
					sumR += c & 0xFF
					sumG += c >> 8 & 0xFF
					sumB += c >> 16 & 0xFF
					sumA += c >> 24
				}
			}
			avg := sumA/n<<24 | sumB/n<<16 | sumG/n<<8 | sumR/n
			fillBlock(pixels, x, y, step, avg)
		}
	}
	return pixels
}

// Luma weights used to desaturate a rendered chunk.
const (
	lumaR = 0.29891
	lumaG = 0.58661
	lumaB = 0.11448
)

// ConvertToGrayscale turns a rendered raster into the basic color tier:
// each pixel becomes the paper pixel scaled by the source luminance.
// Pixels equal to oceanColor keep the full paper tint.
func ConvertToGrayscale(pixels, paper []uint32, oceanColor uint32) []uint32 {
	for i, c := range pixels {
		p := paper[i]
		alpha := float32(1)
		if c != oceanColor {
			alpha = (float32(c&0xFF)*lumaR + float32(c>>8&0xFF)*lumaG + float32(c>>16&0xFF)*lumaB) / 255
		}
		r := tint(alpha, p&0xFF)
		g := tint(alpha, p>>8&0xFF)
		b := tint(alpha, p>>16&0xFF)
		pixels[i] = r | g<<8 | b<<16 | 0xFF000000
	}
	return pixels
}

func tint(alpha float32, channel uint32) uint32 {
	v := alpha * float32(channel)
	if v >= 255 {
		return 255
	}
	return uint32(v)
}
