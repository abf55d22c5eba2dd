package worldmap

import (
	"slices"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"cartograph/api/codec"
)

const DefaultWaypointIcon = "circle"

// Waypoint is a player map marker. GUID identifies it across players and
// tables.
type Waypoint struct {
	GUID                string
	Title               string
	Text                string
	Icon                string
	Color               int32
	Position            Vec3d
	Pinned              bool
	ShowInWorld         bool
	OwningPlayerUID     string
	OwningPlayerGroupID int32
	Temporary           bool
}

func NewWaypointGUID() string { return uuid.NewString() }

func (wp Waypoint) Write(w *codec.BufferedWriter) {
	w.WriteString(wp.GUID)
	w.WriteString(wp.Title)
	w.WriteString(wp.Text)
	w.WriteString(wp.icon())
	w.WriteInt32(wp.Color)
	wp.Position.Write(w)
	w.WriteBool(wp.Pinned)
	w.WriteBool(wp.ShowInWorld)
	w.WriteString(wp.OwningPlayerUID)
	w.WriteInt32(wp.OwningPlayerGroupID)
	w.WriteBool(wp.Temporary)
}

func ReadWaypoint(r *codec.BufferedReader) Waypoint {
	return Waypoint{
		GUID:                r.ReadString(),
		Title:               r.ReadString(),
		Text:                r.ReadString(),
		Icon:                r.ReadString(),
		Color:               r.ReadInt32(),
		Position:            ReadVec3d(r),
		Pinned:              r.ReadBool(),
		ShowInWorld:         r.ReadBool(),
		OwningPlayerUID:     r.ReadString(),
		OwningPlayerGroupID: r.ReadInt32(),
		Temporary:           r.ReadBool(),
	}
}

func (wp Waypoint) icon() string {
	if wp.Icon == "" {
		return DefaultWaypointIcon
	}
	return wp.Icon
}

// sameContent compares the fields a table copy carries over to players.
func (wp Waypoint) sameContent(other Waypoint) bool {
	return wp.Title == other.Title && wp.Text == other.Text && wp.icon() == other.icon() &&
		wp.Color == other.Color && wp.Position == other.Position &&
		wp.Pinned == other.Pinned && wp.ShowInWorld == other.ShowInWorld
}

// MergeWaypoints reconciles a player's waypoints with a table's set. Table
// waypoints the player lacks are added under the player's ownership and
// differing copies take the table's content. The player keeps waypoints
// the table does not know. It returns the new list and the change count.
func MergeWaypoints(uid string, player []Waypoint, table map[string]Waypoint) ([]Waypoint, int) {
	merged := slices.Clone(player)
	byGUID := make(map[string]int, len(merged))
	for i, wp := range merged {
		if wp.GUID != "" {
			byGUID[wp.GUID] = i
		}
	}

	changes := 0
	for _, guid := range sortedKeys(table) {
		src := table[guid]
		if i, ok := byGUID[guid]; ok {
			if merged[i].sameContent(src) {
				continue
			}
			dst := &merged[i]
			dst.Title, dst.Text, dst.Icon, dst.Color = src.Title, src.Text, src.Icon, src.Color
			dst.Position, dst.Pinned, dst.ShowInWorld = src.Position, src.Pinned, src.ShowInWorld
			changes++
			continue
		}
		src.OwningPlayerUID = uid
		merged = append(merged, src)
		changes++
	}
	return merged, changes
}

func writeWaypoints(w *codec.BufferedWriter, waypoints map[string]Waypoint) {
	w.WriteInt32(int32(len(waypoints)))
	for _, guid := range sortedKeys(waypoints) {
		waypoints[guid].Write(w)
	}
}

func readWaypoints(r *codec.BufferedReader) map[string]Waypoint {
	count := r.ReadCount()
	out := make(map[string]Waypoint, codec.InitialCapacity(count))
	for i := 0; i < count && r.Err() == nil; i++ {
		wp := ReadWaypoint(r)
		if wp.GUID != "" {
			out[wp.GUID] = wp
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// WaypointStore keeps player waypoints in memory for hosts without their
// own waypoint layer.
type WaypointStore struct {
	mu        deadlock.RWMutex
	waypoints map[string][]Waypoint
}

func NewWaypointStore() *WaypointStore {
	return &WaypointStore{waypoints: make(map[string][]Waypoint)}
}

// Add stores wp for uid, assigning a GUID when it has none.
func (s *WaypointStore) Add(uid string, wp Waypoint) Waypoint {
	if wp.GUID == "" {
		wp.GUID = NewWaypointGUID()
	}
	wp.OwningPlayerUID = uid
	s.mu.Lock()
	s.waypoints[uid] = append(s.waypoints[uid], wp)
	s.mu.Unlock()
	return wp
}

func (s *WaypointStore) PlayerWaypoints(uid string) []Waypoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.waypoints[uid])
}

func (s *WaypointStore) ReplacePlayerWaypoints(uid string, waypoints []Waypoint) {
	s.mu.Lock()
	s.waypoints[uid] = slices.Clone(waypoints)
	s.mu.Unlock()
}
