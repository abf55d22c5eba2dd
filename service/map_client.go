package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cartograph/api/codec"
	"cartograph/api/lang"
	"cartograph/api/log"
	"cartograph/api/protocol"
	"cartograph/api/worldmap"
)

const (
	defaultRedrawInterval = 100 * time.Millisecond
	defaultAutosaveAfter  = 300 * time.Second
	defaultOceanColor     = 0xFFB5854E
)

// ClientOptions 客户端地图引擎参数
type ClientOptions struct {
	Enabled     bool
	PlayerUID   string
	StoragePath string
	BufferSize  int
	// RedrawInterval gates the redraw work of the off-thread tick.
	RedrawInterval time.Duration
	// AutosaveAfter is how long the cache may stay dirty before it is saved.
	AutosaveAfter time.Duration
	// OceanColor is the rendered water color that keeps the full paper tint.
	OceanColor uint32
	Language   string
}

// ClientDeps are the host integrations of the map client. Background may
// be nil.
type ClientDeps struct {
	Sink       ServerSink
	Notifier   Notifier
	Renderer   ChunkRenderer
	Display    MapDisplay
	Player     PlayerState
	Background *worldmap.MapBackground
}

// MapClient is the local side of the world map: the raster cache, the
// redraw loop and the client half of the sync protocol.
type MapClient struct {
	opts    ClientOptions
	deps    ClientDeps
	storage *worldmap.ClientMapStorage

	mu                 sync.Mutex
	status             Status
	lastKnownPosition  *worldmap.Vec3d
	// lastMappedPosition 玩家最后一次站在已探索区域的位置
	lastMappedPosition *worldmap.Vec3d

	dirty       atomic.Bool
	closing     atomic.Bool
	dirtyFor    time.Duration
	sinceRedraw time.Duration

	observerMu sync.Mutex
	observers  map[any]func(worldmap.ChunkPosition)
}

func NewMapClient(opts ClientOptions, deps ClientDeps) *MapClient {
	if opts.BufferSize <= 0 {
		opts.BufferSize = codec.DefaultBufferSize
	}
	if opts.RedrawInterval <= 0 {
		opts.RedrawInterval = defaultRedrawInterval
	}
	if opts.AutosaveAfter <= 0 {
		opts.AutosaveAfter = defaultAutosaveAfter
	}
	if opts.OceanColor == 0 {
		opts.OceanColor = defaultOceanColor
	}
	return &MapClient{
		opts:      opts,
		deps:      deps,
		storage:   worldmap.NewClientMapStorage(opts.BufferSize),
		status:    StatusDisabled,
		observers: make(map[any]func(worldmap.ChunkPosition)),
	}
}

func (c *MapClient) Storage() *worldmap.ClientMapStorage { return c.storage }

func (c *MapClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *MapClient) Dirty() bool { return c.dirty.Load() }

// Load reads the local cache and decides the engine status.
func (c *MapClient) Load() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.opts.Enabled:
		c.status = StatusDisabled
	case c.storage.Load(c.opts.StoragePath, c.deps.Background):
		c.status = StatusEnabled
	default:
		c.status = StatusCorruptedData
		log.Warn("Local map data is corrupted, waiting for /mapper restore")
	}
	return c.status
}

// Shutdown saves the cache when it has unsaved changes.
func (c *MapClient) Shutdown() error {
	c.closing.Store(true)
	if !c.dirty.Load() {
		return nil
	}
	return c.save()
}

func (c *MapClient) save() error {
	if err := c.storage.Save(c.opts.StoragePath); err != nil {
		log.Error("Failed to save client map storage: ", err)
		return err
	}
	c.dirty.Store(false)
	return nil
}

// HandleRestoreCommand asks the server for the player's exploration record
// when the local data is corrupted.
func (c *MapClient) HandleRestoreCommand() (string, error) {
	if c.Status() != StatusCorruptedData {
		return lang.Get(c.opts.Language, lang.RestoreClientError), ErrNotCorrupted
	}
	if err := c.send(&protocol.ClientToServerPacket{RecoverMap: true}); err != nil {
		return "", err
	}
	return lang.Get(c.opts.Language, lang.RestoreClientSuccess), nil
}

// SendSyncWithTableRequest uploads the shareable cache to the table at pos.
// requested may restrict what the table sends back.
func (c *MapClient) SendSyncWithTableRequest(pos worldmap.BlockPos, requested map[worldmap.ChunkPosition]worldmap.ColorAndZoom, blockUpdateID int32) error {
	if !c.CheckEnabled() {
		return nil
	}
	data, err := c.storage.SerializeForSharing()
	if err != nil {
		return err
	}
	return c.send(&protocol.ClientToServerPacket{
		TableSync: &protocol.TableSyncData{
			Position:        pos,
			UploadedChunks:  data,
			RequestedChunks: requested,
			BlockUpdateID:   blockUpdateID,
		},
	})
}

// UpdateLastKnownPosition records pos and tells the server when the
// presence of a last known position changed.
func (c *MapClient) UpdateLastKnownPosition(pos *worldmap.Vec3d) {
	c.mu.Lock()
	changed := (c.lastKnownPosition == nil) != (pos == nil)
	c.lastKnownPosition = pos
	c.mu.Unlock()
	if !changed {
		return
	}
	if err := c.send(&protocol.ClientToServerPacket{HasLastKnownPosition: true, LastKnownPosition: pos}); err != nil {
		log.Warn("send last known position: ", err)
	}
}

func (c *MapClient) HasLastKnownPosition() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKnownPosition != nil
}

// OnDataFromServer handles one ServerToClientPacket.
func (c *MapClient) OnDataFromServer(data []byte) {
	packet, err := protocol.DecodeServerToClient(data)
	if err != nil {
		log.Warn("Dropped server map packet: ", err)
		return
	}

	c.mu.Lock()
	if packet.RecoverMap {
		// 只有数据损坏时才接受恢复，重复或多余的恢复包整个丢弃
		if c.status != StatusCorruptedData {
			c.mu.Unlock()
			log.Debug("Ignored map recovery reply, local data is ", c.Status())
			return
		}
		c.storage.Clear()
		c.status = StatusEnabled
		c.dirty.Store(true)
		c.notify(lang.RestoreClientRequestResponse)
	}
	if c.status != StatusEnabled {
		c.mu.Unlock()
		return
	}
	if packet.LastKnownPosition != nil {
		c.lastKnownPosition = packet.LastKnownPosition
	}
	c.mu.Unlock()

	if packet.Changes != nil {
		c.show(c.storage.UpdateChunks(packet.Changes, c.deps.Background))
		c.dirty.Store(true)
	}

	if packet.SharedMapData == nil {
		return
	}
	merged := 0
	if len(packet.SharedMapData) > 0 {
		pieces, err := c.storage.MergeSharedData(packet.SharedMapData, c.deps.Background)
		if err != nil {
			log.Warn("Dropped shared map data: ", err)
		} else {
			merged = len(pieces)
			if merged > 0 {
				c.show(pieces)
				c.dirty.Store(true)
			}
		}
	}
	downloaded := int(packet.DownloadedWaypoints)
	switch {
	case merged > 0 && downloaded > 0:
		c.notify(lang.TableDownloadedBoth, downloaded)
	case merged > 0:
		c.notify(lang.TableDownloadedMap)
	case downloaded > 0:
		c.notify(lang.TableDownloadedWaypoints, downloaded)
	default:
		c.notify(lang.TableDownloadedNothing)
	}
}

// OnTick keeps the last known position in step with where the player
// stands: leaving the explored map records the last mapped position,
// coming back onto it clears the record.
func (c *MapClient) OnTick() {
	if c.deps.Player == nil || c.Status() != StatusEnabled {
		return
	}
	pos, ok := c.deps.Player.Position()
	if !ok {
		return
	}
	scale, ok := c.ScaleFactor(pos)
	if !ok {
		c.mu.Lock()
		last := c.lastMappedPosition
		c.mu.Unlock()
		if last == nil {
			last = &pos
		}
		c.UpdateLastKnownPosition(last)
		return
	}
	mapped := worldmap.ClampPosition(pos, scale)
	c.mu.Lock()
	c.lastMappedPosition = &mapped
	c.mu.Unlock()
	c.UpdateLastKnownPosition(nil)
}

// OnOffThreadTick drives autosave and the redraw loop. It must be called
// from a single goroutine.
func (c *MapClient) OnOffThreadTick(dt time.Duration) {
	if c.dirty.Load() {
		c.dirtyFor += dt
		if c.dirtyFor >= c.opts.AutosaveAfter {
			c.dirtyFor = 0
			_ = c.save()
		}
	} else {
		c.dirtyFor = 0
	}

	c.sinceRedraw += dt
	if c.sinceRedraw < c.opts.RedrawInterval {
		return
	}
	c.sinceRedraw = 0
	c.checkChunksToRedraw()
	c.processMappedChunks()
}

// Run ticks the off-thread loop until ctx is done, then saves.
func (c *MapClient) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.RedrawInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return c.Shutdown()
		case now := <-ticker.C:
			c.OnOffThreadTick(now.Sub(last))
			last = now
		}
	}
}

// checkChunksToRedraw renders the requests queued when the pass starts.
// Requests whose terrain is not ready go back to the tail.
func (c *MapClient) checkChunksToRedraw() {
	if c.deps.Renderer == nil {
		return
	}
	var pieces []worldmap.ReadyMapPiece
	for count := c.storage.RedrawLen(); count > 0; count-- {
		if c.closing.Load() {
			break
		}
		req, ok := c.storage.DequeueRedraw()
		if !ok {
			break
		}
		color, zoom := req.Quality.Color(), req.Quality.Zoom()
		pixels, ok := c.deps.Renderer.RenderChunk(req.Position, color == 3)
		if !ok {
			c.storage.RequeueRedraw(req)
			continue
		}
		if color == 1 {
			pixels = worldmap.ConvertToGrayscale(pixels, c.deps.Background.Pixels(req.Position, zoom), c.opts.OceanColor)
		}
		if zoom > 0 {
			pixels = worldmap.ApplyBoxFilter(pixels, zoom)
		}
		c.storage.SetChunk(req.Position, worldmap.NewMapChunk(pixels, zoom, color))
		c.dirty.Store(true)
		pieces = append(pieces, worldmap.ReadyMapPiece{Position: req.Position, Pixels: pixels})
		c.notifyObservers(req.Position)
	}
	c.show(pieces)
}

func (c *MapClient) processMappedChunks() {
	if c.deps.Display == nil {
		return
	}
	var pieces []worldmap.ReadyMapPiece
	for _, pos := range c.deps.Display.RequestedChunks() {
		if chunk, ok := c.storage.Chunk(pos); ok {
			pieces = append(pieces, worldmap.ReadyMapPiece{Position: pos, Pixels: chunk.Pixels})
		}
	}
	c.show(pieces)
}

// ScaleFactor is 2^zoom of the cached chunk at pos, capped by the scale
// of a held compass.
func (c *MapClient) ScaleFactor(pos worldmap.Vec3d) (int, bool) {
	if c.Status() != StatusEnabled {
		return 0, false
	}
	chunk, ok := c.storage.Chunk(pos.ChunkPosition())
	if !ok || chunk.Zoom == worldmap.EmptyZoom {
		return 0, false
	}
	scale := 1 << chunk.Zoom
	if c.deps.Player != nil {
		if compass, ok := c.deps.Player.CompassScale(); ok && compass < scale {
			scale = compass
		}
	}
	return scale, true
}

// GetPlayerOrLastKnownPosition returns the last known position if set,
// otherwise the player position clamped to the map's precision there.
func (c *MapClient) GetPlayerOrLastKnownPosition() (worldmap.Vec3d, bool) {
	c.mu.Lock()
	lkp := c.lastKnownPosition
	c.mu.Unlock()
	if lkp != nil {
		return *lkp, true
	}
	if c.deps.Player == nil {
		return worldmap.Vec3d{}, false
	}
	pos, ok := c.deps.Player.Position()
	if !ok {
		return worldmap.Vec3d{}, false
	}
	scale, ok := c.ScaleFactor(pos)
	if !ok {
		scale = 1
	}
	return worldmap.ClampPosition(pos, scale), true
}

// AddChunkObserver calls fn for every chunk the redraw loop commits.
func (c *MapClient) AddChunkObserver(owner any, fn func(worldmap.ChunkPosition)) {
	c.observerMu.Lock()
	c.observers[owner] = fn
	c.observerMu.Unlock()
}

func (c *MapClient) RemoveChunkObserver(owner any) {
	c.observerMu.Lock()
	delete(c.observers, owner)
	c.observerMu.Unlock()
}

func (c *MapClient) notifyObservers(pos worldmap.ChunkPosition) {
	c.observerMu.Lock()
	fns := make([]func(worldmap.ChunkPosition), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.observerMu.Unlock()
	for _, fn := range fns {
		fn(pos)
	}
}

// CheckEnabled notifies the player why the map is unavailable.
func (c *MapClient) CheckEnabled() bool {
	status := c.Status()
	if status == StatusEnabled {
		return true
	}
	c.notify(status.errorKey(true))
	return false
}

func (c *MapClient) show(pieces []worldmap.ReadyMapPiece) {
	if len(pieces) > 0 && c.deps.Display != nil {
		c.deps.Display.ShowPieces(pieces)
	}
}

func (c *MapClient) send(packet *protocol.ClientToServerPacket) error {
	packet.PlayerUID = c.opts.PlayerUID
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return c.deps.Sink.SendToServer(data)
}

func (c *MapClient) notify(key string, args ...interface{}) {
	if c.deps.Notifier == nil || key == "" {
		return
	}
	c.deps.Notifier.Notify(lang.Get(c.opts.Language, key, args...))
}
