package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	mycache "cartograph/api/cache"
	"cartograph/api/codec"
	"cartograph/api/lang"
	"cartograph/api/log"
	"cartograph/api/protocol"
	"cartograph/api/system"
	"cartograph/api/worldmap"
)

// ServerOptions 服务端地图引擎参数
type ServerOptions struct {
	Enabled            bool
	BufferSize         int
	Compress           bool
	AttributePartLimit int
	// Language is used for players whose language is unknown.
	Language string
}

// ServerDeps are the host integrations of the map server. Waypoints,
// Tables and Saver are optional.
type ServerDeps struct {
	Save      worldmap.SaveGame
	Sink      ClientSink
	Messenger Messenger
	Waypoints WaypointProvider
	Tables    TableStore
	Saver     *TableSaver
}

// MapServer is the authoritative side of the world map. All methods are
// safe for concurrent use.
type MapServer struct {
	mu sync.Mutex

	opts    ServerOptions
	deps    ServerDeps
	storage *worldmap.ServerMapStorage
	tables  map[worldmap.BlockPos]*worldmap.CartographyTable
	joining map[string]struct{}
	status  Status
	dirty   bool

	// cacheScope 回包缓存是进程级的，按引擎隔开
	cacheScope string
	now        func() time.Time
}

func NewMapServer(opts ServerOptions, deps ServerDeps) *MapServer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = codec.DefaultBufferSize
	}
	if opts.AttributePartLimit <= 0 {
		opts.AttributePartLimit = codec.DefaultPartLimit
	}
	return &MapServer{
		opts:    opts,
		deps:    deps,
		storage: worldmap.NewServerMapStorage(opts.BufferSize, opts.Compress),
		tables:  make(map[worldmap.BlockPos]*worldmap.CartographyTable),
		joining: make(map[string]struct{}),
		status:  StatusDisabled,
		now:     time.Now,

		cacheScope: uuid.NewString(),
	}
}

// Load 读取存档并决定引擎状态
func (s *MapServer) Load() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.opts.Enabled:
		s.status = StatusDisabled
		log.Warn("World map is disabled by configuration")
	case s.storage.Load(s.deps.Save):
		s.status = StatusEnabled
	default:
		s.status = StatusCorruptedData
		log.Error("Server map data is corrupted, waiting for /mapper restore")
	}
	return s.status
}

func (s *MapServer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *MapServer) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// OnGameWorldSave writes the storage when it changed since the last save.
// The dirty flag survives a failed write.
func (s *MapServer) OnGameWorldSave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.storage.Save(s.deps.Save); err != nil {
		log.Error("Failed to save map regions: ", err)
		return err
	}
	s.dirty = false
	return nil
}

func (s *MapServer) OnPlayerJoin(uid string) {
	s.mu.Lock()
	s.joining[uid] = struct{}{}
	s.mu.Unlock()
}

func (s *MapServer) OnPlayerLeave(uid string) {
	s.mu.Lock()
	delete(s.joining, uid)
	s.mu.Unlock()
}

// OnViewChanged sends the stored last known position the first time a
// joining player's view is ready.
func (s *MapServer) OnViewChanged(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joining[uid]; !ok {
		return
	}
	delete(s.joining, uid)
	if s.status != StatusEnabled {
		return
	}
	player := s.storage.GetOrCreate(uid)
	s.send(uid, &protocol.ServerToClientPacket{
		HasLastKnownPosition: true,
		LastKnownPosition:    player.LastKnownPosition,
	})
}

// OnDataFromClient handles one ClientToServerPacket. Malformed packets are
// logged and dropped.
func (s *MapServer) OnDataFromClient(data []byte) {
	packet, err := protocol.DecodeClientToServer(data)
	if err != nil {
		log.Warn("Dropped client map packet: ", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := packet.PlayerUID
	if !s.checkEnabled(uid) {
		return
	}
	switch {
	case packet.RecoverMap:
		changes := s.storage.GetOrCreate(uid).PrepareClientRecovery()
		s.dirty = true
		log.WithField("uid", uid).Infof("map recovery requested, resending %d chunks", len(changes))
		s.send(uid, &protocol.ServerToClientPacket{Changes: changes, RecoverMap: true})
	case packet.TableSync != nil:
		s.executeSyncWithTable(uid, packet.TableSync)
	case packet.HasLastKnownPosition:
		s.storage.GetOrCreate(uid).LastKnownPosition = packet.LastKnownPosition
		s.dirty = true
	}
}

// MarkChunksForRedraw reveals the chunks around center, spending
// durability per chunk by its zoom. It returns the durability left, or
// durability unchanged when the map is not enabled or color and zoom are
// out of range.
func (s *MapServer) MarkChunksForRedraw(uid string, center worldmap.ChunkPosition, radius, durability int, color, zoom uint8, force bool) int {
	if color > worldmap.MaxColor || zoom >= worldmap.EmptyZoom {
		log.WithField("uid", uid).Warnf("Ignored chunk reveal with color %d zoom %d", color, zoom)
		return durability
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkEnabled(uid) {
		return durability
	}

	player := s.storage.GetOrCreate(uid)
	changes := make(map[worldmap.ChunkPosition]worldmap.ColorAndZoom)
	for pos := range worldmap.Circle(center, radius) {
		newZoom, ok := player.Regions.GetOrCreate(pos.Region()).SetColorAndZoom(pos, color, zoom, force)
		if !ok {
			continue
		}
		changes[pos] = worldmap.NewColorAndZoom(color, newZoom)
		durability -= worldmap.ChunkArea >> (2 * newZoom)
		if durability <= 0 {
			break
		}
	}
	if len(changes) > 0 {
		s.dirty = true
		s.send(uid, &protocol.ServerToClientPacket{Changes: changes})
	}
	return durability
}

// ScaleFactor returns 2^zoom of the player's explored chunk at pos.
func (s *MapServer) ScaleFactor(uid string, pos worldmap.Vec3d) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusEnabled {
		return 0, false
	}
	player, ok := s.storage.Get(uid)
	if !ok {
		return 0, false
	}
	return player.ScaleFactor(pos.ChunkPosition())
}

// TrySendUnrevealedMapMessage warns the player at most once per interval.
func (s *MapServer) TrySendUnrevealedMapMessage(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.storage.GetOrCreate(uid).AllowUnrevealedWarning(s.now()) {
		return false
	}
	s.message(uid, lang.ErrorUnexploredMap)
	return true
}

// CheckEnabled tells the player why the map is unavailable.
func (s *MapServer) CheckEnabled(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkEnabled(uid)
}

func (s *MapServer) checkEnabled(uid string) bool {
	if s.status == StatusEnabled {
		return true
	}
	s.message(uid, s.status.errorKey(false))
	return false
}

// HandleRestoreCommand accepts the loss of corrupted server data and
// enables the map again. The reply is in langCode.
func (s *MapServer) HandleRestoreCommand(langCode string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusCorruptedData {
		return lang.Get(langCode, lang.RestoreServerError), ErrNotCorrupted
	}
	s.status = StatusEnabled
	log.Warn("Server map data restored, corrupted data discarded")
	return lang.Get(langCode, lang.RestoreServerSuccess), nil
}

// PlaceTable registers a new cartography table.
func (s *MapServer) PlaceTable(pos worldmap.BlockPos) error {
	if s.deps.Tables == nil {
		return errors.New("service: no table store configured")
	}
	return s.deps.Tables.Create(pos)
}

// RemoveTable forgets a broken cartography table.
func (s *MapServer) RemoveTable(pos worldmap.BlockPos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[pos]; ok {
		for rev := int32(0); rev <= t.Revision; rev++ {
			mycache.DropTable(s.cacheScope, pos, rev)
		}
		delete(s.tables, pos)
	}
	if s.deps.Saver != nil {
		s.deps.Saver.Forget(pos)
	}
	if s.deps.Tables == nil {
		return nil
	}
	return s.deps.Tables.Delete(pos)
}

func (s *MapServer) executeSyncWithTable(uid string, req *protocol.TableSyncData) {
	table, err := s.table(req.Position)
	if err != nil {
		if !errors.Is(err, system.ErrTableNotFound) {
			log.WithField("table", req.Position.String()).Error("load cartography table: ", err)
		}
		s.message(uid, lang.ErrorTableNotFound)
		return
	}

	incoming, err := worldmap.MapChunksFromBytes(req.UploadedChunks, s.opts.BufferSize, nil)
	if err != nil {
		log.WithField("uid", uid).Warn("Dropped table upload: ", err)
		return
	}

	player := s.storage.GetOrCreate(uid)
	var playerWaypoints []worldmap.Waypoint
	if s.deps.Waypoints != nil {
		playerWaypoints = s.deps.Waypoints.PlayerWaypoints(uid)
	}
	result := table.Synchronize(player, incoming, playerWaypoints)
	if len(result.PlayerLearned) > 0 {
		s.dirty = true
	}

	downloaded := 0
	if s.deps.Waypoints != nil {
		var merged []worldmap.Waypoint
		merged, downloaded = worldmap.MergeWaypoints(uid, playerWaypoints, table.Waypoints)
		if downloaded > 0 {
			s.deps.Waypoints.ReplacePlayerWaypoints(uid, merged)
		}
	}

	mapUploaded := result.TableLearned > 0 || result.UpdatedChunks > 0
	switch {
	case mapUploaded && result.UploadedWaypoints > 0:
		s.message(uid, lang.TableUploadedBoth, result.UploadedWaypoints)
	case mapUploaded:
		s.message(uid, lang.TableUploadedMap)
	case result.UploadedWaypoints > 0:
		s.message(uid, lang.TableUploadedWaypoints, result.UploadedWaypoints)
	default:
		s.message(uid, lang.TableUploadedNothing)
	}

	shared, err := s.tableReply(table, req.RequestedChunks)
	if err != nil {
		log.WithField("table", table.Position.String()).Error("encode table reply: ", err)
		return
	}
	packet := &protocol.ServerToClientPacket{
		SharedMapData:       shared,
		DownloadedWaypoints: int32(downloaded),
		UploadedWaypoints:   int32(result.UploadedWaypoints),
		TableUpdateID:       table.Revision,
	}
	if len(result.PlayerLearned) > 0 {
		packet.Changes = result.PlayerLearned
	}
	s.send(uid, packet)

	if result.Changed() {
		s.saveTable(table)
	}
}

// tableReply encodes the chunks sent back after a sync. The full table
// reply is cached per revision.
func (s *MapServer) tableReply(table *worldmap.CartographyTable, requested map[worldmap.ChunkPosition]worldmap.ColorAndZoom) ([]byte, error) {
	if len(requested) == 0 {
		if data, ok := mycache.GetTableReply(s.cacheScope, table.Position, table.Revision); ok {
			return data, nil
		}
	}
	data, err := table.Reply(requested).ToBytes(s.opts.BufferSize)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	if len(requested) == 0 {
		mycache.SetTableReply(s.cacheScope, table.Position, table.Revision, data)
	}
	return data, nil
}

func (s *MapServer) table(pos worldmap.BlockPos) (*worldmap.CartographyTable, error) {
	if t, ok := s.tables[pos]; ok {
		return t, nil
	}
	if s.deps.Tables == nil {
		return nil, system.ErrTableNotFound
	}
	tree, err := s.deps.Tables.Load(pos)
	if err != nil {
		return nil, err
	}
	t, err := worldmap.LoadTable(pos, tree, s.opts.BufferSize)
	if err != nil {
		// 损坏的部分已清空，其余照常使用
		log.WithField("table", pos.String()).Warn("cartography table partially lost: ", err)
	}
	s.tables[pos] = t
	return t, nil
}

func (s *MapServer) saveTable(t *worldmap.CartographyTable) {
	tree := codec.NewMemoryTree()
	if err := t.SaveAttributes(tree, s.opts.BufferSize, s.opts.AttributePartLimit); err != nil {
		log.WithField("table", t.Position.String()).Error("encode cartography table: ", err)
		return
	}
	if s.deps.Saver != nil {
		s.deps.Saver.Submit(t.Position, tree)
		return
	}
	if err := s.deps.Tables.Save(t.Position, tree); err != nil {
		log.WithField("table", t.Position.String()).Error("save cartography table: ", err)
	}
}

func (s *MapServer) send(uid string, packet *protocol.ServerToClientPacket) {
	data, err := packet.Encode()
	if err != nil {
		log.WithField("uid", uid).Error("encode map packet: ", err)
		return
	}
	if err := s.deps.Sink.SendToClient(uid, data); err != nil {
		log.WithField("uid", uid).Warn("send map packet: ", err)
	}
}

func (s *MapServer) message(uid, key string, args ...interface{}) {
	if s.deps.Messenger == nil || key == "" {
		return
	}
	code := s.deps.Messenger.Language(uid)
	if code == "" {
		code = s.opts.Language
	}
	s.deps.Messenger.SendMessage(uid, lang.Get(code, key, args...))
}

// PlayerSummary 管理接口用的玩家概况
type PlayerSummary struct {
	UID               string          `json:"uid"`
	Regions           int             `json:"regions"`
	ExploredChunks    int             `json:"exploredChunks"`
	LastKnownPosition *worldmap.Vec3d `json:"lastKnownPosition,omitempty"`
}

type ServerSummary struct {
	Status       string `json:"status"`
	Players      int    `json:"players"`
	Regions      int    `json:"regions"`
	LoadedTables int    `json:"loadedTables"`
	Dirty        bool   `json:"dirty"`
}

func (s *MapServer) Summary() ServerSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerSummary{
		Status:       s.status.String(),
		Players:      s.storage.Len(),
		Regions:      s.storage.RegionCount(),
		LoadedTables: len(s.tables),
		Dirty:        s.dirty,
	}
}

func (s *MapServer) PlayerInfo(uid string) (PlayerSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.storage.Get(uid)
	if !ok {
		return PlayerSummary{}, false
	}
	info := PlayerSummary{UID: uid, Regions: len(p.Regions), ExploredChunks: p.ExploredChunks()}
	if p.LastKnownPosition != nil {
		v := *p.LastKnownPosition
		info.LastKnownPosition = &v
	}
	return info, true
}

// LoadedTables lists the tables held in memory.
func (s *MapServer) LoadedTables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tables))
	for pos := range maps.Keys(s.tables) {
		out = append(out, pos.String())
	}
	slices.Sort(out)
	return out
}

func (s *MapServer) String() string {
	sum := s.Summary()
	return fmt.Sprintf("map server %s: %d players, %d regions", sum.Status, sum.Players, sum.Regions)
}
