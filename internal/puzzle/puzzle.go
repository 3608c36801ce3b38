package puzzle

import (
	"encoding/json"
	"fmt"

	"github.com/xwordlive/xword/internal/grid"
)

// Clue is one entry in a puzzle's across or down list.
type Clue struct {
	Number int    `json:"number"`
	Clue   string `json:"clue"`
}

// Puzzle is the on-disk puzzle description.
type Puzzle struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title"`
	Author  string  `json:"author"`
	Paper   string  `json:"paper"`
	Date    string  `json:"date"`
	Squares [][]int `json:"squares"`
	Across  []Clue  `json:"acrossClues"`
	Down    []Clue  `json:"downClues"`
}

// Compiled is a puzzle plus everything derived from its square matrix.
type Compiled struct {
	*Puzzle

	N           int
	ClueCount   int
	ClueNumbers [][]int
	AcrossIndex [][]int
	DownIndex   [][]int
	ClueCoords  map[int]grid.Coord
}

// Parse decodes and validates a puzzle description. A malformed puzzle
// fails here, before any room or session state exists.
func Parse(data []byte) (*Puzzle, error) {
	var p Puzzle
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("puzzle: decode: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Puzzle) validate() error {
	if p.Title == "" {
		return fmt.Errorf("puzzle: missing title")
	}
	if len(p.Squares) == 0 {
		return fmt.Errorf("puzzle: missing squares")
	}
	if err := grid.Validate(p.Squares); err != nil {
		return err
	}
	return nil
}

// Compile runs the grid derivation over a validated puzzle.
func Compile(p *Puzzle) (*Compiled, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	nums, count := grid.ClueNumbers(p.Squares)
	c := &Compiled{
		Puzzle:      p,
		N:           len(p.Squares),
		ClueCount:   count,
		ClueNumbers: nums,
		AcrossIndex: grid.DirectionIndex(p.Squares, nums, grid.Across),
		DownIndex:   grid.DirectionIndex(p.Squares, nums, grid.Down),
		ClueCoords:  grid.ClueCoords(nums),
	}

	// Every listed clue must reference a derived clue start
	for _, cl := range p.Across {
		if _, ok := c.ClueCoords[cl.Number]; !ok {
			return nil, fmt.Errorf("puzzle: across clue %d has no start cell", cl.Number)
		}
	}
	for _, cl := range p.Down {
		if _, ok := c.ClueCoords[cl.Number]; !ok {
			return nil, fmt.Errorf("puzzle: down clue %d has no start cell", cl.Number)
		}
	}
	return c, nil
}

// EmptyBoard returns an n×n matrix of empty strings for a fresh solve.
func (c *Compiled) EmptyBoard() [][]string {
	board := make([][]string, c.N)
	for i := range board {
		board[i] = make([]string, c.N)
	}
	return board
}
