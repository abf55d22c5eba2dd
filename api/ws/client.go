package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cartograph/api/log"
)

// PacketHandler consumes ServerToClientPackets.
type PacketHandler interface {
	OnDataFromServer(data []byte)
}

// ChatHandler shows chat lines.
type ChatHandler interface {
	Notify(text string)
}

// Conn is the client end of the map channel and the ServerSink of the
// map client.
type Conn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to a hub endpoint with a player token.
func Dial(ctx context.Context, url, token string) (*Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)
	return &Conn{conn: conn}, nil
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Conn) SendToServer(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

// SendCommand runs a chat command such as "/mapper restore" on the server.
func (c *Conn) SendCommand(line string) error {
	data, err := json.Marshal(envelope{Type: envelopeCommand, Text: line})
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// Run reads until the connection fails or ctx is done.
func (c *Conn) Run(ctx context.Context, packets PacketHandler, chat ChatHandler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch messageType {
		case websocket.BinaryMessage:
			packets.OnDataFromServer(data)
		case websocket.TextMessage:
			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Warn("bad chat frame: ", err)
				continue
			}
			if env.Type == envelopeChat && chat != nil {
				chat.Notify(env.Text)
			}
		}
	}
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
