// Package protocol defines the wire messages exchanged between the
// relay and its clients. Every message is a tagged JSON record; payloads
// are validated here, at the boundary, before any handler sees them.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client → server message types
const (
	TypeIdentify     = "identify"
	TypeCreateRoom   = "createRoom"
	TypeJoinRoom     = "joinRoom"
	TypeStatusReply  = "statusReply"
	TypeValueUpdate  = "valueUpdate"
	TypeSelectUpdate = "selectUpdate"
)

// Server → client message types
const (
	TypeWelcome          = "welcome"
	TypeRoomCreated      = "roomCreated"
	TypeRoomCreateFailed = "roomCreateFailed"
	TypeRoomJoined       = "roomJoined"
	TypeRoomJoinFailed   = "roomJoinFailed"
	TypeStatusRequested  = "statusRequested"
	TypeSelectionChanged = "selectionChanged"
	TypePeerJoined       = "peerJoined"
	TypePeerLeft         = "peerLeft"
	TypeError            = "error"
)

// PeerCell is one peer's last known selected cell.
type PeerCell struct {
	Row int    `json:"row"`
	Col int    `json:"col"`
	ID  string `json:"id"`
}

// PeerInfo pairs a peer id with its color or name.
type PeerInfo struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Status is the reconciliation payload an existing member assembles for
// a joiner: its live board plus everything it knows about the party.
type Status struct {
	PuzzleID   string     `json:"puzzleId"`
	Board      [][]string `json:"boardSnapshot"`
	PeerCells  []PeerCell `json:"peerCells"`
	PeerColors []PeerInfo `json:"peerColors"`
	PeerNames  []PeerInfo `json:"peerNames"`
}

// ClientMessage is the client → server envelope.
type ClientMessage struct {
	Type     string     `json:"type"`
	Name     string     `json:"name,omitempty"`     // identify
	Color    string     `json:"color,omitempty"`    // identify
	RoomCode string     `json:"roomCode,omitempty"` // createRoom, joinRoom
	PuzzleID string     `json:"puzzleId,omitempty"` // createRoom
	Row      int        `json:"row,omitempty"`      // selectUpdate
	Col      int        `json:"col,omitempty"`      // selectUpdate
	Values   [][]string `json:"values,omitempty"`   // valueUpdate
	Status   *Status    `json:"status,omitempty"`   // statusReply
	TargetID string     `json:"targetId,omitempty"` // statusReply
}

// ServerMessage is the server → client envelope.
type ServerMessage struct {
	Type     string     `json:"type"`
	ID       string     `json:"id,omitempty"`       // welcome, peerJoined, peerLeft
	Color    string     `json:"color,omitempty"`    // peerJoined
	Name     string     `json:"name,omitempty"`     // peerJoined
	Reason   string     `json:"reason,omitempty"`   // roomCreateFailed, roomJoinFailed, error
	RoomCode string     `json:"roomCode,omitempty"` // roomJoined
	PuzzleID string     `json:"puzzleId,omitempty"` // roomJoined
	Row      int        `json:"row,omitempty"`      // selectionChanged
	Col      int        `json:"col,omitempty"`      // selectionChanged
	SenderID string     `json:"senderId,omitempty"` // selectionChanged
	Values   [][]string `json:"values,omitempty"`   // valueUpdate
	Status   *Status    `json:"status,omitempty"`   // statusReply
}

// ParseClient decodes and validates one inbound client message.
func ParseClient(data []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}

	switch m.Type {
	case TypeIdentify:
		if m.Name == "" {
			return nil, fmt.Errorf("protocol: identify without name")
		}
	case TypeCreateRoom:
		if m.RoomCode == "" {
			return nil, fmt.Errorf("protocol: createRoom without roomCode")
		}
	case TypeJoinRoom:
		if m.RoomCode == "" {
			return nil, fmt.Errorf("protocol: joinRoom without roomCode")
		}
	case TypeStatusReply:
		if m.Status == nil || m.TargetID == "" {
			return nil, fmt.Errorf("protocol: statusReply without status or target")
		}
	case TypeValueUpdate:
		if len(m.Values) == 0 {
			return nil, fmt.Errorf("protocol: valueUpdate without values")
		}
		for _, row := range m.Values {
			if len(row) != len(m.Values) {
				return nil, fmt.Errorf("protocol: valueUpdate board is not square")
			}
		}
	case TypeSelectUpdate:
		if m.Row < 0 || m.Col < 0 {
			return nil, fmt.Errorf("protocol: selectUpdate with negative cell")
		}
	case "":
		return nil, fmt.Errorf("protocol: missing message type")
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", m.Type)
	}
	return &m, nil
}

// ParseServer decodes one inbound server message on the client side.
func ParseServer(data []byte) (*ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("protocol: missing message type")
	}
	return &m, nil
}

// Encode marshals a message for the wire.
func Encode(m any) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// Only fails on unmarshalable payloads, which these envelopes never hold
		return []byte(`{"type":"error","reason":"encode failure"}`)
	}
	return data
}
