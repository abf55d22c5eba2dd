// Package ws 地图数据的 websocket 通道：二进制帧承载封包，文本帧承载聊天与命令
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cartograph/api/api/interceptor"
	"cartograph/api/command"
	"cartograph/api/log"
	"cartograph/api/protocol"
)

const (
	maxMessageSize = 16 << 20
	writeWait      = 10 * time.Second
	// sendQueueSize 每个连接待发送的帧数上限，满了说明客户端跟不上
	sendQueueSize  = 256

	envelopeChat    = "chat"
	envelopeCommand = "command"
)

var (
	ErrNotConnected  = errors.New("ws: player not connected")
	ErrSendQueueFull  = errors.New("ws: send queue full, connection dropped")
)

// envelope is the JSON body of text frames.
type envelope struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Engine is the server map engine as seen by the hub.
type Engine interface {
	OnPlayerJoin(uid string)
	OnViewChanged(uid string)
	OnPlayerLeave(uid string)
	OnDataFromClient(data []byte)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type frame struct {
	messageType int
	data        []byte
}

// playerConn queues outgoing frames; only writePump touches the socket for
// writing, so senders never wait on the network.
type playerConn struct {
	uid        string
	language   string
	privileges []string
	conn       *websocket.Conn

	send      chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newPlayerConn(uid string, conn *websocket.Conn) *playerConn {
	return &playerConn{
		uid:  uid,
		conn: conn,
		send: make(chan frame, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (p *playerConn) enqueue(messageType int, data []byte) error {
	select {
	case <-p.done:
		return ErrNotConnected
	default:
	}
	select {
	case p.send <- frame{messageType: messageType, data: data}:
		return nil
	default:
		log.WithField("uid", p.uid).Warn("send queue full, dropping connection")
		p.close()
		return ErrSendQueueFull
	}
}

func (p *playerConn) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.conn != nil {
			_ = p.conn.Close()
		}
	})
}

func (p *playerConn) writePump() {
	for {
		select {
		case <-p.done:
			return
		case f := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(f.messageType, f.data); err != nil {
				log.WithField("uid", p.uid).Warn("map write failed: ", err)
				p.close()
				return
			}
		}
	}
}

// Hub keeps one connection per player. It is the ClientSink and the
// Messenger of the map server.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*playerConn
	engine   Engine
	commands *command.Dispatcher
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*playerConn)}
}

// Attach wires the engine and the command dispatcher. Call it before Serve.
func (h *Hub) Attach(engine Engine, commands *command.Dispatcher) {
	h.engine = engine
	h.commands = commands
}

func (h *Hub) get(uid string) (*playerConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.conns[uid]
	return p, ok
}

func (h *Hub) SendToClient(uid string, data []byte) error {
	p, ok := h.get(uid)
	if !ok {
		return ErrNotConnected
	}
	return p.enqueue(websocket.BinaryMessage, data)
}

func (h *Hub) SendMessage(uid, text string) {
	p, ok := h.get(uid)
	if !ok {
		return
	}
	data, _ := json.Marshal(envelope{Type: envelopeChat, Text: text})
	if err := p.enqueue(websocket.TextMessage, data); err != nil {
		log.WithField("uid", uid).Warn("chat write failed: ", err)
	}
}

func (h *Hub) Language(uid string) string {
	if p, ok := h.get(uid); ok {
		return p.language
	}
	return ""
}

// Online is the number of connected players.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(p *playerConn) {
	h.mu.Lock()
	old, ok := h.conns[p.uid]
	h.conns[p.uid] = p
	h.mu.Unlock()
	if ok {
		old.close()
	}
}

func (h *Hub) remove(p *playerConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[p.uid] != p {
		return false
	}
	delete(h.conns, p.uid)
	return true
}

// Serve upgrades an authenticated request. It must run behind
// interceptor.TokenInterceptor.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("ws upgrade failed: ", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	p := newPlayerConn(c.GetString(interceptor.ContextUID), conn)
	p.language = c.GetString(interceptor.ContextLanguage)
	if privs, ok := c.Get(interceptor.ContextPrivileges); ok {
		p.privileges, _ = privs.([]string)
	}
	if p.language == "" {
		p.language = c.Query("lang")
	}

	h.add(p)
	go p.writePump()
	log.WithField("uid", p.uid).Info("map connection opened")
	defer func() {
		if h.remove(p) {
			h.engine.OnPlayerLeave(p.uid)
		}
		p.close()
		log.WithField("uid", p.uid).Info("map connection closed")
	}()

	h.engine.OnPlayerJoin(p.uid)
	h.engine.OnViewChanged(p.uid)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch messageType {
		case websocket.BinaryMessage:
			h.onPacket(p, data)
		case websocket.TextMessage:
			h.onText(p, data)
		}
	}
}

func (h *Hub) onPacket(p *playerConn, data []byte) {
	packet, err := protocol.DecodeClientToServer(data)
	if err != nil {
		log.WithField("uid", p.uid).Warn("malformed map packet: ", err)
		return
	}
	// 只接受本连接玩家的封包
	if packet.PlayerUID != p.uid {
		log.WithField("uid", p.uid).Warnf("packet for %q dropped", packet.PlayerUID)
		return
	}
	h.engine.OnDataFromClient(data)
}

func (h *Hub) onText(p *playerConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != envelopeCommand || h.commands == nil {
		return
	}
	reply, err := h.commands.Execute(command.Caller{UID: p.uid, Language: p.language, Privileges: p.privileges}, env.Text)
	if err != nil {
		log.WithField("uid", p.uid).Info("command failed: ", err)
	}
	if reply != "" {
		h.SendMessage(p.uid, reply)
	}
}
