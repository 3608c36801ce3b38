// Package session holds one participant's local view of a shared solve:
// the board values, the selected cell and clue, and what is known about
// the rest of the party. It is a pure state machine: input operations
// return the events the transport should emit, and inbound relay
// messages are folded in through the Apply methods.
package session

import (
	"strings"
	"sync"
	"unicode"

	"github.com/xwordlive/xword/internal/grid"
	"github.com/xwordlive/xword/internal/protocol"
	"github.com/xwordlive/xword/internal/puzzle"
)

const (
	// DefaultColor is the background of an unhighlighted cell.
	DefaultColor = "#FFFFFF"
	// ClueColor highlights the span of the selected clue.
	ClueColor = "#EEEEEE"
)

// Arrow is a cursor movement key.
type Arrow int

const (
	ArrowUp Arrow = iota
	ArrowDown
	ArrowLeft
	ArrowRight
)

// Event is an outbound delta produced by an input operation.
type Event interface{ isEvent() }

// SelectEvent reports that the local selection moved.
type SelectEvent struct {
	Row, Col int
}

// ValueEvent carries the full board snapshot after a text change.
type ValueEvent struct {
	Values [][]string
}

func (SelectEvent) isEvent() {}
func (ValueEvent) isEvent()  {}

// Clue is the currently selected clue; Number 0 means none.
type Clue struct {
	Number int
	Dir    grid.Direction
}

type Session struct {
	mu sync.Mutex

	puz   *puzzle.Compiled
	id    string
	name  string
	color string

	values [][]string

	selRow, selCol int
	clue           Clue
	clueMask       [][]bool

	peerCells  []protocol.PeerCell
	peerColors map[string]string
	peerNames  map[string]string
	friendMask [][]string

	seeded bool
}

func New(puz *puzzle.Compiled, id, name, color string) *Session {
	return &Session{
		puz:        puz,
		id:         id,
		name:       name,
		color:      color,
		values:     puz.EmptyBoard(),
		selRow:     -1,
		selCol:     -1,
		clueMask:   emptyBoolMask(puz.N),
		peerColors: make(map[string]string),
		peerNames:  make(map[string]string),
		friendMask: emptyStringMask(puz.N),
	}
}

func emptyBoolMask(n int) [][]bool {
	m := make([][]bool, n)
	for i := range m {
		m[i] = make([]bool, n)
	}
	return m
}

func emptyStringMask(n int) [][]string {
	m := make([][]string, n)
	for i := range m {
		m[i] = make([]string, n)
	}
	return m
}

func copyBoard(values [][]string) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		copy(out[i], row)
	}
	return out
}

// ID returns the session's own connection id.
func (s *Session) ID() string { return s.id }

// Selected returns the selected cell, or (-1,-1) when none.
func (s *Session) Selected() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selRow, s.selCol
}

// SelectedClue returns the active clue; Number 0 means none.
func (s *Session) SelectedClue() Clue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clue
}

// Values returns a copy of the local board snapshot.
func (s *Session) Values() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyBoard(s.values)
}

// Peer returns what this session knows about a peer.
func (s *Session) Peer(id string) (color, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerColors[id], s.peerNames[id]
}

// CellColor composites the masks for one cell. Precedence, highest
// first: own selection, a peer's selection, the selected clue's span,
// then the default background. Exactly one rule applies.
func (s *Session) CellColor(row, col int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case row == s.selRow && col == s.selCol:
		return s.color
	case s.friendMask[row][col] != "":
		return s.friendMask[row][col]
	case s.clueMask[row][col]:
		return ClueColor
	default:
		return DefaultColor
	}
}

// Type writes an uppercased letter into the selected cell and advances
// the selection along the active clue's direction, stopping at a block
// or the grid edge without wrapping into the next clue. Non-letter keys
// are ignored.
func (s *Session) Type(key rune) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selRow == -1 || !unicode.IsLetter(key) {
		return nil
	}

	row, col := s.selRow, s.selCol
	s.values[row][col] = strings.ToUpper(string(key))
	events := []Event{ValueEvent{Values: copyBoard(s.values)}}

	if s.clue.Number != 0 && s.clueMask[row][col] {
		if s.clue.Dir == grid.Across && col+1 < s.puz.N && s.puz.Squares[row][col+1] != grid.Blocked {
			events = append(events, s.moveTo(row, col+1)...)
		} else if s.clue.Dir == grid.Down && row+1 < s.puz.N && s.puz.Squares[row+1][col] != grid.Blocked {
			events = append(events, s.moveTo(row+1, col)...)
		}
	}
	return events
}

// Backspace clears the selected cell and retreats the selection along
// the active clue's direction, symmetric to Type.
func (s *Session) Backspace() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selRow == -1 {
		return nil
	}

	row, col := s.selRow, s.selCol
	s.values[row][col] = ""
	events := []Event{ValueEvent{Values: copyBoard(s.values)}}

	if s.clue.Number != 0 && s.clueMask[row][col] {
		if s.clue.Dir == grid.Across && col-1 >= 0 && s.puz.Squares[row][col-1] != grid.Blocked {
			events = append(events, s.moveTo(row, col-1)...)
		} else if s.clue.Dir == grid.Down && row-1 >= 0 && s.puz.Squares[row-1][col] != grid.Blocked {
			events = append(events, s.moveTo(row-1, col)...)
		}
	}
	return events
}

// MoveArrow moves the selection one cell, wrapping at the grid edges.
// Arrow movement ignores the selected clue.
func (s *Session) MoveArrow(key Arrow) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selRow == -1 {
		return nil
	}

	n := s.puz.N
	row, col := s.selRow, s.selCol
	switch key {
	case ArrowLeft:
		col = (col - 1 + n) % n
	case ArrowRight:
		col = (col + 1) % n
	case ArrowUp:
		row = (row - 1 + n) % n
	case ArrowDown:
		row = (row + 1) % n
	}
	return s.moveTo(row, col)
}

// Click selects a cell. Clicking the already-selected cell flips the
// active direction at that coordinate; clicking outside the current
// clue's span re-derives the clue from the cell's index in the current
// direction.
func (s *Session) Click(row, col int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.puz.Squares[row][col] == grid.Blocked {
		return nil
	}

	if row == s.selRow && col == s.selCol {
		if s.clue.Dir == grid.Across {
			s.setClue(s.puz.DownIndex[row][col], grid.Down)
		} else {
			s.setClue(s.puz.AcrossIndex[row][col], grid.Across)
		}
	} else if !s.clueMask[row][col] {
		if s.clue.Dir == grid.Across {
			s.setClue(s.puz.AcrossIndex[row][col], grid.Across)
		} else {
			s.setClue(s.puz.DownIndex[row][col], grid.Down)
		}
	}

	return s.moveTo(row, col)
}

// SelectClue activates a clue from the clue list and moves the
// selection to its start when the current selection is outside it.
func (s *Session) SelectClue(number int, dir grid.Direction) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, ok := s.puz.ClueCoords[number]
	if !ok {
		return nil
	}
	s.setClue(number, dir)

	if s.selRow == -1 || !s.clueMask[s.selRow][s.selCol] {
		return s.moveTo(start.Row, start.Col)
	}
	return nil
}

// moveTo updates the selection and reports it. Callers hold s.mu.
func (s *Session) moveTo(row, col int) []Event {
	if row == s.selRow && col == s.selCol {
		return nil
	}
	s.selRow, s.selCol = row, col
	return []Event{SelectEvent{Row: row, Col: col}}
}

// setClue rebuilds the clue mask by walking the clue's span from its
// start coordinate. Callers hold s.mu.
func (s *Session) setClue(number int, dir grid.Direction) {
	if number == 0 || (s.clue.Number == number && s.clue.Dir == dir) {
		return
	}
	start, ok := s.puz.ClueCoords[number]
	if !ok {
		return
	}

	mask := emptyBoolMask(s.puz.N)
	for _, cell := range grid.Span(s.puz.Squares, start, dir) {
		mask[cell.Row][cell.Col] = true
	}
	s.clue = Clue{Number: number, Dir: dir}
	s.clueMask = mask
}

// ApplyValues replaces the local board with a peer's snapshot. A
// snapshot that does not match the puzzle size is discarded; it can
// never leave the board smaller than the grid.
func (s *Session) ApplyValues(values [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.boardSized(values) {
		return
	}
	s.values = copyBoard(values)
}

// boardSized reports whether a snapshot is exactly n×n.
func (s *Session) boardSized(values [][]string) bool {
	if len(values) != s.puz.N {
		return false
	}
	for _, row := range values {
		if len(row) != s.puz.N {
			return false
		}
	}
	return true
}

// ApplySelection records a peer's selected cell. Later updates for the
// same coordinate override earlier ones when masks are recomposited.
func (s *Session) ApplySelection(row, col int, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.peerCells {
		if s.peerCells[i].ID == id {
			s.peerCells[i] = protocol.PeerCell{Row: row, Col: col, ID: id}
			found = true
			break
		}
	}
	if !found {
		s.peerCells = append(s.peerCells, protocol.PeerCell{Row: row, Col: col, ID: id})
	}
	s.remakeFriendMask()
}

// ApplyPeerJoined records a new peer's identity.
func (s *Session) ApplyPeerJoined(id, color, name string) {
	if id == s.id {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerColors[id] = color
	s.peerNames[id] = name
}

// ApplyPeerLeft forgets a departed peer entirely.
func (s *Session) ApplyPeerLeft(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.peerColors, id)
	delete(s.peerNames, id)

	cells := s.peerCells[:0]
	for _, pc := range s.peerCells {
		if pc.ID != id {
			cells = append(cells, pc)
		}
	}
	s.peerCells = cells
	s.remakeFriendMask()
}

// SeedStatus bootstraps the session from a reconciliation payload. Only
// the first payload is accepted; later ones are discarded. Reports
// whether the payload was applied.
func (s *Session) SeedStatus(status *protocol.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded {
		return false
	}
	s.seeded = true

	if s.boardSized(status.Board) {
		s.values = copyBoard(status.Board)
	}
	s.peerCells = nil
	for _, pc := range status.PeerCells {
		if pc.ID != s.id {
			s.peerCells = append(s.peerCells, pc)
		}
	}
	for _, pi := range status.PeerColors {
		if pi.ID != s.id {
			s.peerColors[pi.ID] = pi.Value
		}
	}
	for _, pi := range status.PeerNames {
		if pi.ID != s.id {
			s.peerNames[pi.ID] = pi.Value
		}
	}
	s.remakeFriendMask()
	return true
}

// BuildStatus assembles the reconciliation payload for a joiner: the
// local board and everything known about the party, own state included.
func (s *Session) BuildStatus() *protocol.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	cells := make([]protocol.PeerCell, len(s.peerCells))
	copy(cells, s.peerCells)
	if s.selRow != -1 {
		cells = append(cells, protocol.PeerCell{Row: s.selRow, Col: s.selCol, ID: s.id})
	}

	colors := []protocol.PeerInfo{{ID: s.id, Value: s.color}}
	for id, color := range s.peerColors {
		colors = append(colors, protocol.PeerInfo{ID: id, Value: color})
	}
	names := []protocol.PeerInfo{{ID: s.id, Value: s.name}}
	for id, name := range s.peerNames {
		names = append(names, protocol.PeerInfo{ID: id, Value: name})
	}

	return &protocol.Status{
		PuzzleID:   s.puz.ID,
		Board:      copyBoard(s.values),
		PeerCells:  cells,
		PeerColors: colors,
		PeerNames:  names,
	}
}

// remakeFriendMask rebuilds the peer color overlay. Later entries in
// the peer-cell list win at a shared coordinate, so the walk runs
// back-to-front writing only the first color seen per cell. Callers
// hold s.mu.
func (s *Session) remakeFriendMask() {
	mask := emptyStringMask(s.puz.N)
	for i := len(s.peerCells) - 1; i >= 0; i-- {
		pc := s.peerCells[i]
		if pc.Row < 0 || pc.Row >= s.puz.N || pc.Col < 0 || pc.Col >= s.puz.N {
			continue
		}
		if mask[pc.Row][pc.Col] != "" {
			continue
		}
		mask[pc.Row][pc.Col] = s.peerColors[pc.ID]
	}
	s.friendMask = mask
}
