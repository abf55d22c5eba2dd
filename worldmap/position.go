package worldmap

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"cartograph/api/codec"
)

// RegionSize is the edge length of a region in chunks.
const RegionSize = 32

// ChunkPosition is a chunk grid coordinate. On the wire it is one uint64
// with X in the low 32 bits and Y in the high 32 bits.
type ChunkPosition struct {
	X, Y int32
}

func (p ChunkPosition) Pack() uint64 {
	return uint64(uint32(p.X)) | uint64(uint32(p.Y))<<32
}

func UnpackChunkPosition(v uint64) ChunkPosition {
	return ChunkPosition{X: int32(uint32(v)), Y: int32(uint32(v >> 32))}
}

func (p ChunkPosition) Write(w *codec.BufferedWriter) { w.WriteUint64(p.Pack()) }

func ReadChunkPosition(r *codec.BufferedReader) ChunkPosition {
	return UnpackChunkPosition(r.ReadUint64())
}

func (p ChunkPosition) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Region returns the region holding p. Negative coordinates floor, so
// chunk -1 belongs to region -1.
func (p ChunkPosition) Region() RegionPosition {
	return RegionPosition{X: floorDiv(p.X, RegionSize), Y: floorDiv(p.Y, RegionSize)}
}

// cellIndex is the row-major index of p inside its region.
func (p ChunkPosition) cellIndex() int {
	return int(floorMod(p.Y, RegionSize))*RegionSize + int(floorMod(p.X, RegionSize))
}

// RegionPosition addresses a 32x32 block of chunks and packs like ChunkPosition.
type RegionPosition struct {
	X, Y int32
}

func (p RegionPosition) Pack() uint64 { return ChunkPosition(p).Pack() }

func UnpackRegionPosition(v uint64) RegionPosition {
	return RegionPosition(UnpackChunkPosition(v))
}

func (p RegionPosition) Write(w *codec.BufferedWriter) { w.WriteUint64(p.Pack()) }

func ReadRegionPosition(r *codec.BufferedReader) RegionPosition {
	return UnpackRegionPosition(r.ReadUint64())
}

// Chunk returns the absolute chunk position of cell i of the region.
func (p RegionPosition) Chunk(i int) ChunkPosition {
	return ChunkPosition{
		X: p.X*RegionSize + int32(i%RegionSize),
		Y: p.Y*RegionSize + int32(i/RegionSize),
	}
}

// Vec3d is a world position. Y is height; the map plane is X/Z.
type Vec3d struct {
	X, Y, Z float64
}

// ChunkPosition projects v onto the chunk grid of the map.
func (v Vec3d) ChunkPosition() ChunkPosition {
	return ChunkPosition{
		X: int32(math.Floor(v.X / ChunkSize)),
		Y: int32(math.Floor(v.Z / ChunkSize)),
	}
}

func (v Vec3d) Write(w *codec.BufferedWriter) {
	w.WriteFloat64(v.X)
	w.WriteFloat64(v.Y)
	w.WriteFloat64(v.Z)
}

func ReadVec3d(r *codec.BufferedReader) Vec3d {
	return Vec3d{X: r.ReadFloat64(), Y: r.ReadFloat64(), Z: r.ReadFloat64()}
}

// WriteOptionalVec3d writes a presence flag followed by v when set.
func WriteOptionalVec3d(w *codec.BufferedWriter, v *Vec3d) {
	w.WriteBool(v != nil)
	if v != nil {
		v.Write(w)
	}
}

func ReadOptionalVec3d(r *codec.BufferedReader) *Vec3d {
	if !r.ReadBool() {
		return nil
	}
	v := ReadVec3d(r)
	return &v
}

// ClampPosition snaps every axis of position to the center of its
// scaleFactor sized cell so coarse maps do not leak exact coordinates.
func ClampPosition(position Vec3d, scaleFactor int) Vec3d {
	if scaleFactor <= 1 {
		return position
	}
	clamp := func(v float64) float64 {
		return float64(int(v)/scaleFactor*scaleFactor + scaleFactor/2)
	}
	return Vec3d{X: clamp(position.X), Y: clamp(position.Y), Z: clamp(position.Z)}
}

// BlockPos identifies a placed block such as a cartography table.
type BlockPos struct {
	X, Y, Z int32
}

func (b BlockPos) String() string { return fmt.Sprintf("%d,%d,%d", b.X, b.Y, b.Z) }

func (b BlockPos) Write(w *codec.BufferedWriter) {
	w.WriteInt32(b.X)
	w.WriteInt32(b.Y)
	w.WriteInt32(b.Z)
}

func ReadBlockPos(r *codec.BufferedReader) BlockPos {
	return BlockPos{X: r.ReadInt32(), Y: r.ReadInt32(), Z: r.ReadInt32()}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int32) int32 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// sortedPositions returns the keys of m ordered by their packed value so
// encoded output is deterministic.
func sortedPositions[V any](m map[ChunkPosition]V) []ChunkPosition {
	keys := make([]ChunkPosition, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b ChunkPosition) int {
		return cmp.Compare(a.Pack(), b.Pack())
	})
	return keys
}

func sortedRegions[V any](m map[RegionPosition]V) []RegionPosition {
	keys := make([]RegionPosition, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b RegionPosition) int {
		return cmp.Compare(a.Pack(), b.Pack())
	})
	return keys
}
