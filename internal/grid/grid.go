package grid

import "fmt"

// Direction of a clue on the board
type Direction int

const (
	Across Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "across"
}

// Coord is a cell position on the board
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

const (
	Open    = 0
	Blocked = 1
)

// Validate checks that squares is a well-formed n×n matrix of 0/1 values.
func Validate(squares [][]int) error {
	n := len(squares)
	if n == 0 {
		return fmt.Errorf("grid: empty square matrix")
	}
	for i, row := range squares {
		if len(row) != n {
			return fmt.Errorf("grid: row %d has %d cells, want %d", i, len(row), n)
		}
		for j, v := range row {
			if v != Open && v != Blocked {
				return fmt.Errorf("grid: cell (%d,%d) has value %d, want 0 or 1", i, j, v)
			}
		}
	}
	return nil
}

// ClueNumbers assigns clue numbers in row-major scan order. A cell starts
// a clue iff it is playable and either sits on the top/left edge or the
// cell above/left is blocked. Returns the n×n number matrix and the total
// clue count.
func ClueNumbers(squares [][]int) ([][]int, int) {
	n := len(squares)
	nums := make([][]int, n)
	count := 0

	isStart := func(i, j int) bool {
		if squares[i][j] == Blocked {
			return false
		}
		return i == 0 || j == 0 || squares[i-1][j] == Blocked || squares[i][j-1] == Blocked
	}

	for i := 0; i < n; i++ {
		nums[i] = make([]int, n)
		for j := 0; j < n; j++ {
			if isStart(i, j) {
				count++
				nums[i][j] = count
			}
		}
	}
	return nums, count
}

// DirectionIndex propagates each clue start's number forward through its
// span. Every playable cell gets the number of the clue governing it in
// the given direction; blocked cells get 0 and reset the carry.
func DirectionIndex(squares, nums [][]int, dir Direction) [][]int {
	n := len(squares)
	idx := make([][]int, n)
	for i := range idx {
		idx[i] = make([]int, n)
	}

	if dir == Across {
		for i := 0; i < n; i++ {
			current := 0
			for j := 0; j < n; j++ {
				if squares[i][j] == Blocked {
					continue
				}
				if j == 0 || squares[i][j-1] == Blocked {
					current = nums[i][j]
				}
				idx[i][j] = current
			}
		}
		return idx
	}

	for j := 0; j < n; j++ {
		current := 0
		for i := 0; i < n; i++ {
			if squares[i][j] == Blocked {
				continue
			}
			if i == 0 || squares[i-1][j] == Blocked {
				current = nums[i][j]
			}
			idx[i][j] = current
		}
	}
	return idx
}

// ClueCoords inverts a clue-number matrix into number → start coordinate.
func ClueCoords(nums [][]int) map[int]Coord {
	coords := make(map[int]Coord)
	for i, row := range nums {
		for j, v := range row {
			if v != 0 {
				coords[v] = Coord{Row: i, Col: j}
			}
		}
	}
	return coords
}

// Span walks from a clue's start coordinate in its direction until a
// blocked cell or the grid edge, returning the cells of the clue.
func Span(squares [][]int, start Coord, dir Direction) []Coord {
	n := len(squares)
	var cells []Coord
	if dir == Across {
		for c := start.Col; c < n && squares[start.Row][c] != Blocked; c++ {
			cells = append(cells, Coord{Row: start.Row, Col: c})
		}
		return cells
	}
	for r := start.Row; r < n && squares[r][start.Col] != Blocked; r++ {
		cells = append(cells, Coord{Row: r, Col: start.Col})
	}
	return cells
}
