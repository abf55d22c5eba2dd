package worldmap

import (
	"errors"
	"fmt"

	"cartograph/api/codec"
	"cartograph/api/log"
)

// Attribute keys of a persisted cartography table.
const (
	TableRegionsKey   = "regions"
	TableWaypointsKey = "waypoints"
	TableChunksKey    = "chunks"
	TableRevisionKey  = "lastUpdateID"
)

// CartographyTable is a shared exploration record players synchronize
// with. Revision increases whenever a synchronization changes it.
type CartographyTable struct {
	Position  BlockPos
	Regions   Regions
	Waypoints map[string]Waypoint
	Chunks    MapChunks
	Revision  int32
}

func NewCartographyTable(pos BlockPos) *CartographyTable {
	return &CartographyTable{
		Position:  pos,
		Regions:   Regions{},
		Waypoints: make(map[string]Waypoint),
		Chunks:    MapChunks{},
	}
}

// SyncResult describes one synchronization.
type SyncResult struct {
	// PlayerLearned are the region cells the player got from the table.
	PlayerLearned map[ChunkPosition]ColorAndZoom
	// TableLearned counts region cells the table got from the player.
	TableLearned      int
	UpdatedChunks     int
	UploadedWaypoints int
}

func (r SyncResult) Changed() bool {
	return r.TableLearned > 0 || r.UpdatedChunks > 0 || r.UploadedWaypoints > 0
}

// Synchronize merges a player's record into the table and the table's
// regions back into the player. Region cells, chunks and waypoints each
// keep the better or newer side.
func (t *CartographyTable) Synchronize(player *ServerPlayerMap, incoming MapChunks, playerWaypoints []Waypoint) SyncResult {
	var result SyncResult
	result.TableLearned = len(t.Regions.MergeFrom(player.Regions))
	result.PlayerLearned = player.Regions.MergeFrom(t.Regions)
	result.UpdatedChunks = t.Chunks.Merge(incoming)

	for _, wp := range playerWaypoints {
		if wp.GUID == "" {
			continue
		}
		// 只比较内容，拥有者在下载时会改写成下载者
		if existing, ok := t.Waypoints[wp.GUID]; !ok || !existing.sameContent(wp) {
			t.Waypoints[wp.GUID] = wp
			result.UploadedWaypoints++
		}
	}

	if result.Changed() {
		t.Revision++
	}
	return result
}

// Reply selects the chunks sent back after a synchronization. Without a
// request it is the whole table; otherwise only requested positions where
// the table holds something better than the stated quality.
func (t *CartographyTable) Reply(requested map[ChunkPosition]ColorAndZoom) MapChunks {
	if len(requested) == 0 {
		return t.Chunks.Clone()
	}
	out := MapChunks{}
	for pos, have := range requested {
		if chunk, ok := t.Chunks[pos]; ok && (have.IsEmpty() || chunk.ColorAndZoom().BetterThan(have)) {
			out[pos] = chunk
		}
	}
	return out
}

// SaveAttributes stores the table in tree, splitting blobs larger than
// partLimit.
func (t *CartographyTable) SaveAttributes(tree codec.AttributeTree, bufferSize, partLimit int) error {
	regions, err := codec.EncodeBytes(bufferSize, true, func(w *codec.VersionedWriter) {
		t.Regions.Write(w.BufferedWriter)
	})
	if err != nil {
		return fmt.Errorf("encode table regions: %w", err)
	}
	waypoints, err := codec.EncodeBytes(bufferSize, true, func(w *codec.VersionedWriter) {
		writeWaypoints(w.BufferedWriter, t.Waypoints)
	})
	if err != nil {
		return fmt.Errorf("encode table waypoints: %w", err)
	}
	chunks, err := t.Chunks.ToBytes(bufferSize)
	if err != nil {
		return fmt.Errorf("encode table chunks: %w", err)
	}

	tree.SetInt(TableRevisionKey, int(t.Revision))
	codec.SetBytesLarge(tree, TableRegionsKey, regions, partLimit)
	codec.SetBytesLarge(tree, TableWaypointsKey, waypoints, partLimit)
	if len(chunks) == 0 {
		codec.RemoveLarge(tree, TableChunksKey)
	} else {
		parts := codec.SetBytesLarge(tree, TableChunksKey, chunks, partLimit)
		log.Debugf("cartography table at %s saved %d chunks (%d bytes) in %d parts", t.Position, len(t.Chunks), len(chunks), parts)
	}
	return nil
}

// LoadTable restores a table saved by SaveAttributes. Each section that
// fails to decode is left empty and reported in the joined error.
func LoadTable(pos BlockPos, tree codec.AttributeTree, bufferSize int) (*CartographyTable, error) {
	t := NewCartographyTable(pos)
	if rev, ok := tree.GetInt(TableRevisionKey); ok {
		t.Revision = int32(rev)
	}

	var errs []error
	if data, err := codec.GetBytesLarge(tree, TableRegionsKey); err != nil {
		errs = append(errs, err)
	} else if len(data) > 0 {
		err = codec.DecodeBytes(data, bufferSize, true, func(r *codec.VersionedReader) error {
			t.Regions = ReadRegions(r.BufferedReader)
			return nil
		})
		if err != nil {
			t.Regions = Regions{}
			errs = append(errs, fmt.Errorf("regions: %w", err))
		}
	}

	if data, err := codec.GetBytesLarge(tree, TableWaypointsKey); err != nil {
		errs = append(errs, err)
	} else if len(data) > 0 {
		err = codec.DecodeBytes(data, bufferSize, true, func(r *codec.VersionedReader) error {
			t.Waypoints = readWaypoints(r.BufferedReader)
			return nil
		})
		if err != nil {
			t.Waypoints = make(map[string]Waypoint)
			errs = append(errs, fmt.Errorf("waypoints: %w", err))
		}
	}

	if data, err := codec.GetBytesLarge(tree, TableChunksKey); err != nil {
		errs = append(errs, err)
	} else if chunks, err := MapChunksFromBytes(data, bufferSize, nil); err != nil {
		errs = append(errs, fmt.Errorf("chunks: %w", err))
	} else {
		t.Chunks = chunks
	}

	if len(errs) > 0 {
		return t, fmt.Errorf("%w: cartography table %s: %w", ErrCorrupted, pos, errors.Join(errs...))
	}
	return t, nil
}
