package ws

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xwordlive/xword/internal/protocol"
	"github.com/xwordlive/xword/internal/ratelimit"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 100
	messageBurst      = 200
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one participant's connection. Its identity and room
// attribute are only touched from its own read loop and under the hub
// lock, so handlers for a connection run to completion in order.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	rateLimiter *ratelimit.Limiter

	// sendMu guards closed. The hub can drop a slow client from
	// another connection's fan-out while this client's read loop is
	// still producing replies, so every send and the close itself go
	// through the same gate.
	sendMu sync.Mutex
	closed bool

	id       string
	name     string
	color    string
	roomCode string
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 512),
		rateLimiter: ratelimit.NewLimiter(messagesPerSecond, messageBurst),
		id:          uuid.NewString(),
	}

	hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			continue
		}

		msg, err := protocol.ParseClient(data)
		if err != nil {
			log.Printf("Invalid message from client %s: %v", c.id, err)
			c.sendError(err.Error())
			continue
		}

		c.dispatch(msg)
	}
}

// dispatch applies one inbound message. Failures are reported to this
// connection only; they never affect other room members.
func (c *Client) dispatch(msg *protocol.ClientMessage) {
	switch msg.Type {
	case protocol.TypeIdentify:
		c.name = msg.Name
		c.color = msg.Color

	case protocol.TypeCreateRoom:
		if err := c.hub.CreateRoom(c, msg.RoomCode, msg.PuzzleID); err != nil {
			c.reply(protocol.ServerMessage{
				Type:   protocol.TypeRoomCreateFailed,
				Reason: err.Error(),
			})
			return
		}
		c.reply(protocol.ServerMessage{Type: protocol.TypeRoomCreated, RoomCode: msg.RoomCode})

	case protocol.TypeJoinRoom:
		puzzleID, err := c.hub.JoinRoom(c, msg.RoomCode)
		if err != nil {
			c.reply(protocol.ServerMessage{
				Type:   protocol.TypeRoomJoinFailed,
				Reason: err.Error(),
			})
			return
		}
		c.reply(protocol.ServerMessage{
			Type:     protocol.TypeRoomJoined,
			RoomCode: msg.RoomCode,
			PuzzleID: puzzleID,
		})

	case protocol.TypeStatusReply:
		if err := c.hub.ForwardStatus(c, msg.TargetID, msg.Status); err != nil {
			c.sendError(err.Error())
		}

	case protocol.TypeValueUpdate:
		if err := c.hub.RelayValues(c, msg.Values); err != nil {
			c.sendError(err.Error())
		}

	case protocol.TypeSelectUpdate:
		if err := c.hub.RelaySelection(c, msg.Row, msg.Col); err != nil {
			c.sendError(err.Error())
		}
	}
}

func (c *Client) reply(msg protocol.ServerMessage) {
	c.trySend(protocol.Encode(msg))
}

func (c *Client) sendError(reason string) {
	c.reply(protocol.ServerMessage{Type: protocol.TypeError, Reason: reason})
}

// trySend queues data without blocking; a full buffer drops the message
// for this connection only. Sends after closeSend are discarded.
func (c *Client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend ends the write pump exactly once. The read loop may still
// call trySend afterwards; those sends are dropped, not panics.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
