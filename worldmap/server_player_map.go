package worldmap

import (
	"time"

	"golang.org/x/time/rate"

	"cartograph/api/codec"
)

// UnrevealedMapWarningInterval spaces out the "unexplored map" warning.
const UnrevealedMapWarningInterval = 10 * time.Second

// ServerPlayerMap is the authoritative exploration record of one player.
type ServerPlayerMap struct {
	Regions           Regions
	LastKnownPosition *Vec3d

	// not persisted
	warnings *rate.Limiter
}

func NewServerPlayerMap() *ServerPlayerMap {
	return &ServerPlayerMap{Regions: Regions{}}
}

func (p *ServerPlayerMap) Write(w *codec.BufferedWriter) {
	p.Regions.Write(w)
	WriteOptionalVec3d(w, p.LastKnownPosition)
}

func ReadServerPlayerMap(r *codec.BufferedReader) *ServerPlayerMap {
	return &ServerPlayerMap{
		Regions:           ReadRegions(r),
		LastKnownPosition: ReadOptionalVec3d(r),
	}
}

// PrepareClientRecovery collects every explored cell with its color reset.
func (p *ServerPlayerMap) PrepareClientRecovery() map[ChunkPosition]ColorAndZoom {
	out := make(map[ChunkPosition]ColorAndZoom)
	for pos, region := range p.Regions {
		region.PrepareClientRecovery(out, pos)
	}
	return out
}

// ScaleFactor returns 2^zoom of the explored chunk at pos.
func (p *ServerPlayerMap) ScaleFactor(pos ChunkPosition) (int, bool) {
	region, ok := p.Regions[pos.Region()]
	if !ok {
		return 0, false
	}
	zoom := region.Zoom(pos)
	if zoom == EmptyZoom {
		return 0, false
	}
	return 1 << zoom, true
}

// AllowUnrevealedWarning reports whether the warning may be shown now and
// consumes the allowance when it may.
func (p *ServerPlayerMap) AllowUnrevealedWarning(now time.Time) bool {
	if p.warnings == nil {
		p.warnings = rate.NewLimiter(rate.Every(UnrevealedMapWarningInterval), 1)
	}
	return p.warnings.AllowN(now, 1)
}

// ExploredChunks counts the explored cells over all regions.
func (p *ServerPlayerMap) ExploredChunks() int {
	n := 0
	for _, region := range p.Regions {
		n += region.ExploredCount()
	}
	return n
}
