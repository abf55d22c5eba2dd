package worldmap

import (
	"errors"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"cartograph/api/codec"
)

func Test_CartographyTable_MergePreference(t *testing.T) {
	pos := ChunkPosition{X: 2, Y: 3}
	table := NewCartographyTable(BlockPos{X: 10, Y: 64, Z: -5})
	table.Regions.GetOrCreate(pos.Region()).SetColorAndZoom(pos, 1, 2, false)
	table.Chunks[pos] = NewMapChunk(ApplyBoxFilter(gradientPixels(), 2), 2, 1)

	player := NewServerPlayerMap()
	player.Regions.GetOrCreate(pos.Region()).SetColorAndZoom(pos, 0, 1, false)
	other := ChunkPosition{X: 5, Y: 3}
	table.Regions.GetOrCreate(other.Region()).SetColorAndZoom(other, 2, 0, false)

	incoming := MapChunks{pos: NewMapChunk(ApplyBoxFilter(gradientPixels(), 1), 1, 0)}
	result := table.Synchronize(player, incoming, nil)

	if got := table.Regions[pos.Region()].Get(pos); got != NewColorAndZoom(0, 1) {
		t.Fatalf("table cell = %v, finer zoom must win", got)
	}
	if result.TableLearned != 1 || len(result.PlayerLearned) != 1 {
		t.Fatalf("result %s", spew.Sdump(result))
	}
	if result.PlayerLearned[other] != NewColorAndZoom(2, 0) {
		t.Fatalf("player learns the table's other cell")
	}
	if table.Chunks[pos].Zoom != 1 || result.UpdatedChunks != 1 {
		t.Fatalf("table chunk zoom %d", table.Chunks[pos].Zoom)
	}
	if table.Revision != 1 {
		t.Fatalf("revision %d", table.Revision)
	}

	again := table.Synchronize(player, incoming, nil)
	if again.Changed() || table.Revision != 1 {
		t.Fatalf("repeated sync must be a no-op: %s", spew.Sdump(again))
	}
}

func Test_CartographyTable_WaypointUpload(t *testing.T) {
	table := NewCartographyTable(BlockPos{})
	wps := []Waypoint{
		{GUID: "g1", Title: "home", Icon: DefaultWaypointIcon},
		{GUID: "g2", Title: "mine", Icon: "pick"},
		{Title: "no guid"},
	}
	if r := table.Synchronize(NewServerPlayerMap(), nil, wps); r.UploadedWaypoints != 2 {
		t.Fatalf("uploaded %d", r.UploadedWaypoints)
	}
	wps[1].Title = "deep mine"
	if r := table.Synchronize(NewServerPlayerMap(), nil, wps); r.UploadedWaypoints != 1 || table.Revision != 2 {
		t.Fatalf("edit uploaded %d revision %d", r.UploadedWaypoints, table.Revision)
	}
}

func Test_CartographyTable_SharedWaypointSettles(t *testing.T) {
	table := NewCartographyTable(BlockPos{})
	alice := []Waypoint{{GUID: "g1", Title: "camp", OwningPlayerUID: "alice"}}
	if r := table.Synchronize(NewServerPlayerMap(), nil, alice); r.UploadedWaypoints != 1 {
		t.Fatalf("alice uploaded %d", r.UploadedWaypoints)
	}
	bob, n := MergeWaypoints("bob", nil, table.Waypoints)
	if n != 1 || bob[0].OwningPlayerUID != "bob" {
		t.Fatalf("bob downloaded %s", spew.Sdump(bob))
	}
	rev := table.Revision
	for round := 0; round < 3; round++ {
		if r := table.Synchronize(NewServerPlayerMap(), nil, bob); r.UploadedWaypoints != 0 {
			t.Fatalf("round %d: bob re-uploaded %d", round, r.UploadedWaypoints)
		}
		if r := table.Synchronize(NewServerPlayerMap(), nil, alice); r.UploadedWaypoints != 0 {
			t.Fatalf("round %d: alice re-uploaded %d", round, r.UploadedWaypoints)
		}
	}
	if table.Revision != rev {
		t.Fatalf("revision moved %d -> %d without changes", rev, table.Revision)
	}

	noIcon := []Waypoint{{GUID: "g2", Title: "x"}}
	table.Synchronize(NewServerPlayerMap(), nil, noIcon)
	table.Waypoints["g2"] = Waypoint{GUID: "g2", Title: "x", Icon: DefaultWaypointIcon}
	if r := table.Synchronize(NewServerPlayerMap(), nil, noIcon); r.UploadedWaypoints != 0 {
		t.Fatalf("an empty icon equals the default icon")
	}
}

func Test_CartographyTable_Reply(t *testing.T) {
	table := NewCartographyTable(BlockPos{})
	a, b := ChunkPosition{X: 1}, ChunkPosition{X: 2}
	table.Chunks[a] = NewMapChunk(gradientPixels(), 0, 2)
	table.Chunks[b] = NewMapChunk(ApplyBoxFilter(gradientPixels(), 3), 3, 2)

	if len(table.Reply(nil)) != 2 {
		t.Fatalf("no request replies with everything")
	}
	reply := table.Reply(map[ChunkPosition]ColorAndZoom{
		a:            NewColorAndZoom(1, 1),
		b:            NewColorAndZoom(3, 1),
		{X: 3, Y: 0}: EmptyColorAndZoom,
	})
	if len(reply) != 1 {
		t.Fatalf("reply %d chunks", len(reply))
	}
	if _, ok := reply[a]; !ok {
		t.Fatalf("only the chunk better than requested is sent")
	}
}

func Test_CartographyTable_AttributesRoundTrip(t *testing.T) {
	table := NewCartographyTable(BlockPos{X: 1, Y: 2, Z: 3})
	pos := ChunkPosition{X: -40, Y: 7}
	table.Regions.GetOrCreate(pos.Region()).SetColorAndZoom(pos, 3, 0, false)
	table.Chunks[pos] = NewMapChunk(gradientPixels(), 0, 3)
	table.Waypoints["g1"] = Waypoint{GUID: "g1", Title: "camp", Position: Vec3d{X: 1, Y: 2, Z: 3}, Color: -16711936}
	table.Revision = 9

	tree := codec.NewMemoryTree()
	if err := table.SaveAttributes(tree, 0, 16); err != nil {
		t.Fatalf("save: %v", err)
	}
	parts, _ := tree.GetInt(TableChunksKey + "_parts")
	if parts < 2 {
		t.Fatalf("chunk blob split into %d parts", parts)
	}

	loaded, err := LoadTable(table.Position, tree, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Revision != 9 || loaded.Waypoints["g1"] != table.Waypoints["g1"] {
		t.Fatalf("loaded %s", spew.Sdump(loaded.Revision, loaded.Waypoints))
	}
	if *loaded.Regions[pos.Region()] != *table.Regions[pos.Region()] {
		t.Fatalf("regions mismatch")
	}
	if c := loaded.Chunks[pos]; c.Color != 3 || c.Pixels[33] != table.Chunks[pos].Pixels[33] {
		t.Fatalf("chunk mismatch")
	}

	table.Chunks = MapChunks{}
	if err := table.SaveAttributes(tree, 0, 16); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, key := range tree.Keys() {
		if strings.HasPrefix(key, TableChunksKey) {
			t.Fatalf("stale chunk attribute %q", key)
		}
	}
}

func Test_CartographyTable_LoadCorrupt(t *testing.T) {
	table := NewCartographyTable(BlockPos{})
	table.Waypoints["g1"] = Waypoint{GUID: "g1"}
	tree := codec.NewMemoryTree()
	if err := table.SaveAttributes(tree, 0, codec.DefaultPartLimit); err != nil {
		t.Fatal(err)
	}
	tree.SetBytes(TableRegionsKey, []byte{0, 0, 0, 0, 0xFF})

	loaded, err := LoadTable(BlockPos{}, tree, 0)
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
	if len(loaded.Regions) != 0 || len(loaded.Waypoints) != 1 {
		t.Fatalf("intact sections survive a corrupt one")
	}
}

func Test_MergeWaypoints(t *testing.T) {
	player := []Waypoint{
		{GUID: "a", Title: "old", OwningPlayerUID: "p1"},
		{GUID: "mine", Title: "only mine", OwningPlayerUID: "p1"},
	}
	table := map[string]Waypoint{
		"a": {GUID: "a", Title: "new", OwningPlayerUID: "p2"},
		"b": {GUID: "b", Title: "shared", OwningPlayerUID: "p2"},
	}
	merged, changes := MergeWaypoints("p1", player, table)
	if changes != 2 || len(merged) != 3 {
		t.Fatalf("merged %s", spew.Sdump(merged))
	}
	if merged[0].Title != "new" || merged[0].OwningPlayerUID != "p1" {
		t.Fatalf("existing waypoint takes table content but keeps owner")
	}
	if merged[2].GUID != "b" || merged[2].OwningPlayerUID != "p1" {
		t.Fatalf("new waypoint is owned by the player")
	}
	if player[0].Title != "old" {
		t.Fatalf("input slice must not be modified")
	}
	if _, n := MergeWaypoints("p1", merged, table); n != 0 {
		t.Fatalf("second merge changed %d", n)
	}
}

func Test_WaypointStore(t *testing.T) {
	s := NewWaypointStore()
	wp := s.Add("p1", Waypoint{Title: "x"})
	if wp.GUID == "" || wp.OwningPlayerUID != "p1" {
		t.Fatalf("add assigns guid and owner")
	}
	got := s.PlayerWaypoints("p1")
	got[0].Title = "changed"
	if s.PlayerWaypoints("p1")[0].Title != "x" {
		t.Fatalf("returned slice is a copy")
	}
	s.ReplacePlayerWaypoints("p1", nil)
	if len(s.PlayerWaypoints("p1")) != 0 {
		t.Fatalf("replace")
	}
}
