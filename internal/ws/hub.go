package ws

import (
	"errors"
	"log"
	"sync"

	"github.com/xwordlive/xword/internal/protocol"
)

var (
	ErrRoomExists   = errors.New("room code already in use")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("connection is not in a room")
)

// room is a logical broadcast group scoping relay traffic to its members.
type room struct {
	code     string
	puzzleID string
	members  map[string]*Client
}

// Hub owns the set of active rooms and every connected client. It holds
// no board state: a late joiner reconciles peer-to-peer through
// ForwardStatus, never from the server.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	conns map[string]*Client
}

// RoomInfo is a read-only view of an active room for the HTTP API.
type RoomInfo struct {
	Code     string `json:"code"`
	PuzzleID string `json:"puzzle_id"`
	Members  int    `json:"members"`
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		conns: make(map[string]*Client),
	}
}

// Register adds a freshly upgraded connection and sends its welcome.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.conns[c.id] = c
	total := len(h.conns)
	h.mu.Unlock()

	log.Printf("Client %s connected (total: %d)", c.id, total)
	c.trySend(protocol.Encode(protocol.ServerMessage{Type: protocol.TypeWelcome, ID: c.id}))
}

// Unregister tears down a connection: remaining room members get
// peerLeft, and the room code is freed when its last member leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c.id]; !ok {
		return
	}
	delete(h.conns, c.id)
	h.leaveRoom(c)

	c.closeSend()
	log.Printf("Client %s disconnected (total: %d)", c.id, len(h.conns))
}

// leaveRoom removes a connection from its room, notifying the rest of
// the party and freeing the code when the room empties. A connection
// belongs to at most one room at a time. Callers hold h.mu for writing.
func (h *Hub) leaveRoom(c *Client) {
	r, ok := h.rooms[c.roomCode]
	c.roomCode = ""
	if !ok {
		return
	}

	delete(r.members, c.id)
	h.fanOut(r, nil, protocol.Encode(protocol.ServerMessage{
		Type: protocol.TypePeerLeft,
		ID:   c.id,
	}))
	if len(r.members) == 0 {
		delete(h.rooms, r.code)
		log.Printf("Room %s closed (empty)", r.code)
	}
}

// CreateRoom reserves a room code for the creating connection. The
// existence check and the reservation are one critical section, so two
// concurrent creates for the same code cannot both succeed.
func (h *Hub) CreateRoom(c *Client, code, puzzleID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, taken := h.rooms[code]; taken {
		return ErrRoomExists
	}
	h.leaveRoom(c)

	h.rooms[code] = &room{
		code:     code,
		puzzleID: puzzleID,
		members:  map[string]*Client{c.id: c},
	}
	c.roomCode = code

	log.Printf("Client %s created room %s (puzzle %s)", c.id, code, puzzleID)
	return nil
}

// JoinRoom adds the connection to an existing room, then starts
// reconciliation: every prior member is asked to report status to the
// joiner and told about the new peer. The joiner is excluded from both
// fan-outs. Returns the room's puzzle id.
func (h *Hub) JoinRoom(c *Client, code string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[code]
	if !ok {
		return "", ErrRoomNotFound
	}
	if c.roomCode != code {
		h.leaveRoom(c)
	}

	r.members[c.id] = c
	c.roomCode = code

	h.fanOut(r, c, protocol.Encode(protocol.ServerMessage{
		Type: protocol.TypeStatusRequested,
		ID:   c.id,
	}))
	h.fanOut(r, c, protocol.Encode(protocol.ServerMessage{
		Type:  protocol.TypePeerJoined,
		ID:    c.id,
		Color: c.color,
		Name:  c.name,
	}))

	log.Printf("Client %s joined room %s (members: %d)", c.id, code, len(r.members))
	return r.puzzleID, nil
}

// ForwardStatus routes a reconciliation payload point-to-point to the
// requesting joiner. It is never broadcast.
func (h *Hub) ForwardStatus(c *Client, targetID string, status *protocol.Status) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if c.roomCode == "" {
		return ErrNotInRoom
	}
	target, ok := h.conns[targetID]
	if !ok {
		// Joiner already gone; nothing to reconcile
		return nil
	}

	target.trySend(protocol.Encode(protocol.ServerMessage{
		Type:   protocol.TypeStatusReply,
		Status: status,
	}))
	return nil
}

// RelayValues broadcasts a full board snapshot to the sender's room.
func (h *Hub) RelayValues(c *Client, values [][]string) error {
	return h.relay(c, protocol.ServerMessage{
		Type:   protocol.TypeValueUpdate,
		Values: values,
	})
}

// RelaySelection broadcasts a selection change, tagged with the sender.
func (h *Hub) RelaySelection(c *Client, row, col int) error {
	return h.relay(c, protocol.ServerMessage{
		Type:     protocol.TypeSelectionChanged,
		Row:      row,
		Col:      col,
		SenderID: c.id,
	})
}

func (h *Hub) relay(c *Client, msg protocol.ServerMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[c.roomCode]
	if !ok {
		return ErrNotInRoom
	}
	h.fanOut(r, c, protocol.Encode(msg))
	return nil
}

// fanOut delivers data to every room member except the sender. A member
// whose send buffer is full is dropped; its write pump closes the
// connection when the channel closes. Callers hold h.mu for writing.
func (h *Hub) fanOut(r *room, sender *Client, data []byte) {
	for id, member := range r.members {
		if member == sender {
			continue
		}
		if !member.trySend(data) {
			delete(r.members, id)
			delete(h.conns, id)
			member.closeSend()
			log.Printf("Dropped slow client %s from room %s", id, r.code)
		}
	}
}

// Stats accessors for the HTTP API.

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) GetActiveRooms() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(h.rooms))
	for _, r := range h.rooms {
		infos = append(infos, RoomInfo{
			Code:     r.code,
			PuzzleID: r.puzzleID,
			Members:  len(r.members),
		})
	}
	return infos
}

// RoomExists reports whether a code is currently active.
func (h *Hub) RoomExists(code string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[code]
	return ok
}
