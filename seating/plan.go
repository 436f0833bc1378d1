package seating

import (
	"strconv"
	"strings"
)

type Candidate struct {
	ID     string `json:"identifier"`
	Branch string `json:"branch"`
}

type Layout struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (l Layout) Capacity() int {
	return l.Rows * l.Cols
}

// Room is a Rows x Cols grid; a nil cell is an empty seat.
type Room struct {
	Index int            `json:"index"`
	Grid  [][]*Candidate `json:"grid"`
}

type Seat struct {
	Room      int       `json:"room"`
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Candidate Candidate `json:"candidate"`
}

type Plan struct {
	Layout          Layout `json:"layout"`
	StudentsPerRoom int    `json:"students_per_room"`
	Rooms           []Room `json:"rooms"`
}

func newRoom(index int, layout Layout) Room {
	grid := make([][]*Candidate, layout.Rows)
	for r := range grid {
		grid[r] = make([]*Candidate, layout.Cols)
	}
	return Room{Index: index, Grid: grid}
}

// Seats lists every occupied seat in room, row, column order.
func (p *Plan) Seats() []Seat {
	var seats []Seat
	for _, room := range p.Rooms {
		seats = append(seats, room.Seats()...)
	}
	return seats
}

func (r Room) Seats() []Seat {
	var seats []Seat
	for row, cells := range r.Grid {
		for col, c := range cells {
			if c != nil {
				seats = append(seats, Seat{Room: r.Index, Row: row, Col: col, Candidate: *c})
			}
		}
	}
	return seats
}

func (r Room) Occupied() int {
	n := 0
	for _, cells := range r.Grid {
		for _, c := range cells {
			if c != nil {
				n++
			}
		}
	}
	return n
}

// BranchCounts returns how many candidates of each branch sit in the room.
func (r Room) BranchCounts() map[string]int {
	counts := map[string]int{}
	for _, cells := range r.Grid {
		for _, c := range cells {
			if c != nil {
				counts[c.Branch]++
			}
		}
	}
	return counts
}

// Violations counts horizontally or vertically adjacent seat pairs that hold
// candidates of the same branch.
func (r Room) Violations() int {
	v := 0
	for row, cells := range r.Grid {
		for col, c := range cells {
			if c == nil {
				continue
			}
			if col+1 < len(cells) && cells[col+1] != nil && cells[col+1].Branch == c.Branch {
				v++
			}
			if row+1 < len(r.Grid) && r.Grid[row+1][col] != nil && r.Grid[row+1][col].Branch == c.Branch {
				v++
			}
		}
	}
	return v
}

func (p *Plan) Len() int {
	n := 0
	for _, room := range p.Rooms {
		n += room.Occupied()
	}
	return n
}

func (p *Plan) Violations() int {
	v := 0
	for _, room := range p.Rooms {
		v += room.Violations()
	}
	return v
}

func (p *Plan) EmptySeats() int {
	return len(p.Rooms)*p.Layout.Capacity() - p.Len()
}

// Fingerprint renders the full seat assignment as a string. Two plans have
// the same fingerprint only if every seat holds the same identifier.
func (p *Plan) Fingerprint() string {
	var buf strings.Builder
	buf.WriteString(strconv.Itoa(p.Layout.Rows))
	buf.WriteByte('x')
	buf.WriteString(strconv.Itoa(p.Layout.Cols))
	for _, room := range p.Rooms {
		buf.WriteByte('|')
		for r, cells := range room.Grid {
			if r > 0 {
				buf.WriteByte(';')
			}
			for c, cand := range cells {
				if c > 0 {
					buf.WriteByte(',')
				}
				if cand != nil {
					buf.WriteString(cand.ID)
				}
			}
		}
	}
	return buf.String()
}
