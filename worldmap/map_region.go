package worldmap

import "cartograph/api/codec"

const RegionArea = RegionSize * RegionSize

// MapRegion is the quality summary of a 32x32 block of chunks. It owns no
// pixels and is cheap to merge and ship.
type MapRegion struct {
	cells [RegionArea]ColorAndZoom
}

func NewMapRegion() *MapRegion {
	r := &MapRegion{}
	for i := range r.cells {
		r.cells[i] = EmptyColorAndZoom
	}
	return r
}

func (m *MapRegion) Get(pos ChunkPosition) ColorAndZoom { return m.cells[pos.cellIndex()] }

func (m *MapRegion) Zoom(pos ChunkPosition) uint8 { return m.cells[pos.cellIndex()].Zoom() }

// SetColorAndZoom updates the cell at pos and returns the zoom it ends up
// with. A strictly finer zoom replaces the whole cell. Otherwise an
// explored cell takes the new color when it is higher or force is set,
// keeping its zoom. ok is false when nothing changed.
func (m *MapRegion) SetColorAndZoom(pos ChunkPosition, color, zoom uint8, force bool) (uint8, bool) {
	i := pos.cellIndex()
	stored := m.cells[i]
	if zoom != EmptyZoom && stored.Zoom() > zoom {
		m.cells[i] = NewColorAndZoom(color, zoom)
		return zoom, true
	}
	if !stored.IsEmpty() && (force || stored.Color() < color) {
		m.cells[i] = NewColorAndZoom(color, stored.Zoom())
		return stored.Zoom(), true
	}
	return 0, false
}

// MergeFrom takes every source cell that is explored and better than the
// local one. It returns the changes keyed by absolute chunk position.
func (m *MapRegion) MergeFrom(source *MapRegion, regionPos RegionPosition) map[ChunkPosition]ColorAndZoom {
	changes := make(map[ChunkPosition]ColorAndZoom)
	for i, src := range source.cells {
		if src.IsEmpty() {
			continue
		}
		if dst := m.cells[i]; dst.IsEmpty() || src.BetterThan(dst) {
			m.cells[i] = src
			changes[regionPos.Chunk(i)] = src
		}
	}
	return changes
}

// PrepareClientRecovery resets the color of every explored cell to 0 and
// adds the cells to out. Recovery restores what was explored, never the
// color tier a client claimed.
func (m *MapRegion) PrepareClientRecovery(out map[ChunkPosition]ColorAndZoom, regionPos RegionPosition) {
	for i, cell := range m.cells {
		if cell.IsEmpty() {
			continue
		}
		m.cells[i] = NewColorAndZoom(0, cell.Zoom())
		out[regionPos.Chunk(i)] = m.cells[i]
	}
}

// ExploredCount returns the number of non-empty cells.
func (m *MapRegion) ExploredCount() int {
	n := 0
	for _, cell := range m.cells {
		if !cell.IsEmpty() {
			n++
		}
	}
	return n
}

func (m *MapRegion) Clone() *MapRegion {
	c := *m
	return &c
}

func (m *MapRegion) Write(w *codec.BufferedWriter) {
	for _, cell := range m.cells {
		cell.Write(w)
	}
}

func ReadMapRegion(r *codec.BufferedReader) *MapRegion {
	m := &MapRegion{}
	for i := range m.cells {
		m.cells[i] = ReadColorAndZoom(r)
	}
	return m
}

// Regions is a region grid keyed by region position.
type Regions map[RegionPosition]*MapRegion

// GetOrCreate returns the region at pos, adding an empty one when missing.
func (rs Regions) GetOrCreate(pos RegionPosition) *MapRegion {
	region, ok := rs[pos]
	if !ok {
		region = NewMapRegion()
		rs[pos] = region
	}
	return region
}

// MergeFrom merges every source region into rs and collects the changes.
func (rs Regions) MergeFrom(source Regions) map[ChunkPosition]ColorAndZoom {
	changes := make(map[ChunkPosition]ColorAndZoom)
	for pos, region := range source {
		for chunk, cz := range rs.GetOrCreate(pos).MergeFrom(region, pos) {
			changes[chunk] = cz
		}
	}
	return changes
}

func (rs Regions) Write(w *codec.BufferedWriter) {
	w.WriteInt32(int32(len(rs)))
	for _, pos := range sortedRegions(rs) {
		pos.Write(w)
		rs[pos].Write(w)
	}
}

func ReadRegions(r *codec.BufferedReader) Regions {
	count := r.ReadCount()
	rs := make(Regions, codec.InitialCapacity(count))
	for i := 0; i < count && r.Err() == nil; i++ {
		pos := ReadRegionPosition(r)
		rs[pos] = ReadMapRegion(r)
	}
	return rs
}
