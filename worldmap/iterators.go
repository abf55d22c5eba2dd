package worldmap

import "iter"

// Circle yields center and then the rings around it from the inside out.
// Each ring of radius r starts below the top-left corner and walks the
// left side upwards, the top side rightwards, the right side downwards and
// the bottom side leftwards, 2r steps per side.
func Circle(center ChunkPosition, radius int) iter.Seq[ChunkPosition] {
	return func(yield func(ChunkPosition) bool) {
		if !yield(center) {
			return
		}
		for r := int32(1); r <= int32(radius); r++ {
			side := r * 2
			for i := int32(1); i <= side; i++ {
				if !yield(ChunkPosition{X: center.X - r, Y: center.Y + r - i}) {
					return
				}
			}
			for i := int32(1); i <= side; i++ {
				if !yield(ChunkPosition{X: center.X - r + i, Y: center.Y - r}) {
					return
				}
			}
			for i := int32(1); i <= side; i++ {
				if !yield(ChunkPosition{X: center.X + r, Y: center.Y - r + i}) {
					return
				}
			}
			for i := int32(1); i <= side; i++ {
				if !yield(ChunkPosition{X: center.X + r - i, Y: center.Y + r}) {
					return
				}
			}
		}
	}
}
