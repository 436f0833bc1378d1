package seating

import (
	"errors"
	"fmt"
)

// Lookahead bounds how far ahead the first pass searches for a candidate
// that fits a seat.
const Lookahead = 20

var (
	ErrInvalidConfig    = errors.New("invalid seating configuration")
	ErrGenerationFailed = errors.New("seating plan generation failed")
)

type position struct {
	room, row, col int
}

type placer struct {
	layout Layout
	rooms  []Room
	work   []Candidate
	next   int
}

func Validate(studentsPerRoom int, layout Layout) error {
	switch {
	case studentsPerRoom < 1:
		return fmt.Errorf("%w: students per room must be at least 1, got %d", ErrInvalidConfig, studentsPerRoom)
	case layout.Rows < 1:
		return fmt.Errorf("%w: rows must be at least 1, got %d", ErrInvalidConfig, layout.Rows)
	case layout.Cols < 1:
		return fmt.Errorf("%w: cols must be at least 1, got %d", ErrInvalidConfig, layout.Cols)
	}
	return nil
}

// Place seats every candidate into rooms of the given layout, keeping
// same-branch candidates apart where it can. Candidates are expected in
// Sequence order. Every candidate is placed; when no candidate fits a seat the
// adjacency rule is relaxed rather than leaving anyone out.
func Place(candidates []Candidate, studentsPerRoom int, layout Layout) (plan *Plan, err error) {
	if err := Validate(studentsPerRoom, layout); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			plan = nil
			err = fmt.Errorf("%w: %v", ErrGenerationFailed, r)
		}
	}()

	p := &placer{
		layout: layout,
		work:   append([]Candidate(nil), candidates...),
	}

	numRooms := (len(p.work) + studentsPerRoom - 1) / studentsPerRoom
	for i := range numRooms {
		p.rooms = append(p.rooms, newRoom(i, layout))
	}

	p.snakePass()
	p.fillGaps()
	p.overflow()

	if p.next != len(p.work) {
		return nil, fmt.Errorf("%w: %d of %d candidates unplaced", ErrGenerationFailed, len(p.work)-p.next, len(p.work))
	}
	return &Plan{Layout: layout, StudentsPerRoom: studentsPerRoom, Rooms: p.rooms}, nil
}

// Generate sequences identifiers, classifies them and places them.
func Generate(identifiers []string, studentsPerRoom int, layout Layout, c *Classifier) (*Plan, error) {
	return Place(Candidates(identifiers, c), studentsPerRoom, layout)
}

func (p *placer) fits(pos position, branch string) bool {
	grid := p.rooms[pos.room].Grid
	same := func(r, c int) bool {
		if r < 0 || r >= p.layout.Rows || c < 0 || c >= p.layout.Cols {
			return false
		}
		return grid[r][c] != nil && grid[r][c].Branch == branch
	}
	return !same(pos.row, pos.col-1) && !same(pos.row, pos.col+1) &&
		!same(pos.row-1, pos.col) && !same(pos.row+1, pos.col)
}

func (p *placer) seat(pos position) {
	c := p.work[p.next]
	p.rooms[pos.room].Grid[pos.row][pos.col] = &c
	p.next++
}

// promote moves the candidate at i to the head of the unplaced queue.
func (p *placer) promote(i int) {
	p.work[p.next], p.work[i] = p.work[i], p.work[p.next]
}

func (p *placer) snakeOrder() []position {
	order := make([]position, 0, len(p.rooms)*p.layout.Capacity())
	for room := range p.rooms {
		for row := range p.layout.Rows {
			if row%2 == 0 {
				for col := 0; col < p.layout.Cols; col++ {
					order = append(order, position{room, row, col})
				}
			} else {
				for col := p.layout.Cols - 1; col >= 0; col-- {
					order = append(order, position{room, row, col})
				}
			}
		}
	}
	return order
}

func (p *placer) snakePass() {
	n := len(p.work)
	for _, pos := range p.snakeOrder() {
		if p.next >= n {
			return
		}
		if p.fits(pos, p.work[p.next].Branch) {
			p.seat(pos)
			continue
		}
		for i := p.next + 1; i < min(n, p.next+Lookahead); i++ {
			if p.fits(pos, p.work[i].Branch) {
				p.promote(i)
				p.seat(pos)
				break
			}
		}
	}
}

func (p *placer) fillGaps() {
	n := len(p.work)
	if p.next >= n {
		return
	}
	var empty []position
	for room := range p.rooms {
		for row := range p.layout.Rows {
			for col := range p.layout.Cols {
				if p.rooms[room].Grid[row][col] == nil {
					empty = append(empty, position{room, row, col})
				}
			}
		}
	}

	for _, pos := range empty {
		if p.next >= n {
			return
		}
		found := p.next
		for i := p.next; i < n; i++ {
			if p.fits(pos, p.work[i].Branch) {
				found = i
				break
			}
		}
		// no candidate fits: seat the head of the queue anyway
		p.promote(found)
		p.seat(pos)
	}
}

func (p *placer) overflow() {
	n := len(p.work)
	for p.next < n {
		room := newRoom(len(p.rooms), p.layout)
		p.rooms = append(p.rooms, room)
		for row := 0; row < p.layout.Rows && p.next < n; row++ {
			for col := 0; col < p.layout.Cols && p.next < n; col++ {
				pos := position{room.Index, row, col}
				if !p.fits(pos, p.work[p.next].Branch) {
					for i := p.next + 1; i < min(n, p.next+Lookahead); i++ {
						if p.fits(pos, p.work[i].Branch) {
							p.promote(i)
							break
						}
					}
				}
				p.seat(pos)
			}
		}
	}
}
