// Package client is a relay participant: it dials the websocket
// endpoint, keeps a session in sync with the room, and answers
// reconciliation requests from late joiners.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xwordlive/xword/internal/grid"
	"github.com/xwordlive/xword/internal/protocol"
	"github.com/xwordlive/xword/internal/puzzle"
	"github.com/xwordlive/xword/internal/session"
)

const (
	handshakeTimeout = 10 * time.Second
	replyTimeout     = 10 * time.Second
	writeWait        = 10 * time.Second
)

// ErrNoRoom is returned by board operations before a room is joined.
var ErrNoRoom = errors.New("client: not in a room")

// Source resolves puzzle ids to compiled puzzles. A joiner only learns
// the room's puzzle id from the relay; the definition comes from here.
type Source interface {
	Puzzle(ctx context.Context, id string) (*puzzle.Compiled, error)
}

// HTTPSource fetches puzzle definitions from the server's catalog API.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func (s *HTTPSource) Puzzle(ctx context.Context, id string) (*puzzle.Compiled, error) {
	httpClient := s.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/api/puzzles/"+id+"/data", nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch puzzle %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: fetch puzzle %s: status %d", id, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	p, err := puzzle.Parse(data)
	if err != nil {
		return nil, err
	}
	return puzzle.Compile(p)
}

// StaticSource serves compiled puzzles from memory, for tests and
// offline use.
type StaticSource map[string]*puzzle.Compiled

func (s StaticSource) Puzzle(_ context.Context, id string) (*puzzle.Compiled, error) {
	p, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("client: unknown puzzle %s", id)
	}
	return p, nil
}

type Client struct {
	conn   *websocket.Conn
	source Source

	id    string
	name  string
	color string

	writeMu sync.Mutex

	mu       sync.Mutex
	sess     *session.Session
	roomCode string
	backlog  []*protocol.ServerMessage

	replies chan *protocol.ServerMessage
	done    chan struct{}
	readErr error

	closeOnce sync.Once
}

// Dial connects to the relay, waits for the welcome, and identifies.
func Dial(ctx context.Context, url, name, color string, source Source) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: awaiting welcome: %w", err)
	}
	msg, err := protocol.ParseServer(data)
	if err != nil || msg.Type != protocol.TypeWelcome || msg.ID == "" {
		conn.Close()
		return nil, fmt.Errorf("client: expected welcome, got %s", data)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:    conn,
		source:  source,
		id:      msg.ID,
		name:    name,
		color:   color,
		replies: make(chan *protocol.ServerMessage, 1),
		done:    make(chan struct{}),
	}
	if err := c.write(protocol.ClientMessage{
		Type:  protocol.TypeIdentify,
		Name:  name,
		Color: color,
	}); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// ID returns the id the relay assigned at welcome.
func (c *Client) ID() string { return c.id }

// Session returns the live session, or nil before a room is joined.
func (c *Client) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// RoomCode returns the joined room's code, or "".
func (c *Client) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// CreateRoom registers a fresh room under code and starts an empty
// session for the given puzzle.
func (c *Client) CreateRoom(ctx context.Context, code string, puz *puzzle.Compiled) error {
	if err := c.write(protocol.ClientMessage{
		Type:     protocol.TypeCreateRoom,
		RoomCode: code,
		PuzzleID: puz.ID,
	}); err != nil {
		return err
	}

	msg, err := c.awaitReply(ctx)
	if err != nil {
		return err
	}
	switch msg.Type {
	case protocol.TypeRoomCreated:
		c.startSession(code, puz)
		return nil
	case protocol.TypeRoomCreateFailed:
		return fmt.Errorf("client: create room %s: %s", code, msg.Reason)
	default:
		return fmt.Errorf("client: unexpected reply %s", msg.Type)
	}
}

// JoinRoom joins an existing room, resolves its puzzle through the
// source, and waits for a reconciliation payload to arrive from a peer.
func (c *Client) JoinRoom(ctx context.Context, code string) error {
	if err := c.write(protocol.ClientMessage{
		Type:     protocol.TypeJoinRoom,
		RoomCode: code,
	}); err != nil {
		return err
	}

	msg, err := c.awaitReply(ctx)
	if err != nil {
		return err
	}
	switch msg.Type {
	case protocol.TypeRoomJoined:
		puz, err := c.source.Puzzle(ctx, msg.PuzzleID)
		if err != nil {
			return err
		}
		c.startSession(code, puz)
		return nil
	case protocol.TypeRoomJoinFailed:
		return fmt.Errorf("client: join room %s: %s", code, msg.Reason)
	default:
		return fmt.Errorf("client: unexpected reply %s", msg.Type)
	}
}

// startSession installs the session and replays room traffic that
// arrived while the puzzle was still being resolved.
func (c *Client) startSession(code string, puz *puzzle.Compiled) {
	c.mu.Lock()
	sess := session.New(puz, c.id, c.name, c.color)
	c.sess = sess
	c.roomCode = code
	backlog := c.backlog
	c.backlog = nil
	c.mu.Unlock()

	for _, msg := range backlog {
		c.apply(sess, msg)
	}
}

// Type enters a letter at the selection and relays the changes.
func (c *Client) Type(key rune) error {
	return c.input(func(s *session.Session) []session.Event { return s.Type(key) })
}

// Backspace clears the selected cell and relays the changes.
func (c *Client) Backspace() error {
	return c.input(func(s *session.Session) []session.Event { return s.Backspace() })
}

// MoveArrow moves the selection and relays it.
func (c *Client) MoveArrow(key session.Arrow) error {
	return c.input(func(s *session.Session) []session.Event { return s.MoveArrow(key) })
}

// Click selects a cell and relays the selection.
func (c *Client) Click(row, col int) error {
	return c.input(func(s *session.Session) []session.Event { return s.Click(row, col) })
}

// SelectClue activates a clue and relays any selection move.
func (c *Client) SelectClue(number int, dir grid.Direction) error {
	return c.input(func(s *session.Session) []session.Event { return s.SelectClue(number, dir) })
}

func (c *Client) input(op func(*session.Session) []session.Event) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrNoRoom
	}

	for _, ev := range op(sess) {
		var msg protocol.ClientMessage
		switch e := ev.(type) {
		case session.SelectEvent:
			msg = protocol.ClientMessage{
				Type: protocol.TypeSelectUpdate,
				Row:  e.Row,
				Col:  e.Col,
			}
		case session.ValueEvent:
			msg = protocol.ClientMessage{
				Type:   protocol.TypeValueUpdate,
				Values: e.Values,
			}
		default:
			continue
		}
		if err := c.write(msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		msg, err := protocol.ParseServer(data)
		if err != nil {
			log.Printf("Client %s: bad server message: %v", c.id, err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg *protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeRoomCreated, protocol.TypeRoomCreateFailed,
		protocol.TypeRoomJoined, protocol.TypeRoomJoinFailed:
		select {
		case c.replies <- msg:
		default:
			log.Printf("Client %s: dropped unawaited reply %s", c.id, msg.Type)
		}

	case protocol.TypeError:
		log.Printf("Client %s: server error: %s", c.id, msg.Reason)

	default:
		c.mu.Lock()
		sess := c.sess
		if sess == nil {
			// Room traffic can outrun puzzle resolution during a join;
			// hold on to it until the session exists.
			if len(c.backlog) < 256 {
				c.backlog = append(c.backlog, msg)
			}
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.apply(sess, msg)
	}
}

// apply folds one room message into the session.
func (c *Client) apply(sess *session.Session, msg *protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeValueUpdate:
		sess.ApplyValues(msg.Values)

	case protocol.TypeSelectionChanged:
		sess.ApplySelection(msg.Row, msg.Col, msg.SenderID)

	case protocol.TypePeerJoined:
		sess.ApplyPeerJoined(msg.ID, msg.Color, msg.Name)

	case protocol.TypePeerLeft:
		sess.ApplyPeerLeft(msg.ID)

	case protocol.TypeStatusRequested:
		if err := c.write(protocol.ClientMessage{
			Type:     protocol.TypeStatusReply,
			TargetID: msg.ID,
			Status:   sess.BuildStatus(),
		}); err != nil {
			log.Printf("Client %s: status reply failed: %v", c.id, err)
		}

	case protocol.TypeStatusReply:
		if msg.Status != nil {
			sess.SeedStatus(msg.Status)
		}
	}
}

func (c *Client) awaitReply(ctx context.Context) (*protocol.ServerMessage, error) {
	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()

	select {
	case msg := <-c.replies:
		return msg, nil
	case <-c.done:
		c.mu.Lock()
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = errors.New("client: connection closed")
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errors.New("client: timed out waiting for reply")
	}
}

func (c *Client) write(msg protocol.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("client: write %s: %w", msg.Type, err)
	}
	return nil
}
