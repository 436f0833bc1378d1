// Package export renders a seating plan as an xlsx workbook: a summary sheet
// and one sheet per room with the seat grid and the desk allotment list.
package export

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"examseat/seating"
)

const (
	summarySheet = "Summary"
	defaultTitle = "Examination Seating Plan"
	unknownFill  = "#EEEEEE"
	gridTop      = 4
)

// BranchColors are the grid fills per branch; other branches get a grey fill.
var BranchColors = map[string]string{
	"CIVIL": "#FAD7D7",
	"EEE":   "#D6E9FF",
	"MECH":  "#D7F5DC",
	"ECE":   "#FFF8D9",
	"CSE":   "#E7E0FF",
	"IT":    "#FFE6CC",
}

var AllotmentHeader = []string{"H.T. No", "Hall Name", "Seating Allotment", "", "H.T. No", "Hall Name", "Seating Allotment"}

type Options struct {
	Title    string
	Subtitle string
}

// RoomNames returns a display name for each of n rooms, using custom[i] when
// it is set and "Room <i+1>" otherwise.
func RoomNames(n int, custom []string) []string {
	names := make([]string, n)
	for i := range names {
		if i < len(custom) && strings.TrimSpace(custom[i]) != "" {
			names[i] = strings.TrimSpace(custom[i])
		} else {
			names[i] = fmt.Sprintf("Room %d", i+1)
		}
	}
	return names
}

func DeskLabel(row, col int) string {
	return fmt.Sprintf("DESK - %d COLUMN - %d", row+1, col+1)
}

type writer struct {
	f      *excelize.File
	header int
	fills  map[string]int
}

// Workbook renders plan into xlsx bytes. names may be shorter than the room
// list; missing names fall back to the defaults from RoomNames.
func Workbook(plan *seating.Plan, names []string, opts Options) ([]byte, error) {
	if plan == nil {
		return nil, fmt.Errorf("nil plan")
	}
	if opts.Title == "" {
		opts.Title = defaultTitle
	}
	names = RoomNames(len(plan.Rooms), names)

	f := excelize.NewFile()
	w := &writer{f: f, fills: map[string]int{}}

	data, err := w.render(plan, names, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return data, nil
}

func (w *writer) render(plan *seating.Plan, names []string, opts Options) ([]byte, error) {
	header, err := w.f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	w.header = header

	if _, err := w.f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := w.f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	index, err := w.f.GetSheetIndex(summarySheet)
	if err != nil {
		return nil, fmt.Errorf("failed to locate summary sheet: %w", err)
	}
	w.f.SetActiveSheet(index)

	if err := w.summary(plan, names, opts); err != nil {
		return nil, err
	}

	used := map[string]bool{strings.ToLower(summarySheet): true}
	for i, room := range plan.Rooms {
		sheet := sheetName(names[i], i, used)
		if _, err := w.f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("failed to create sheet for room %d: %w", i+1, err)
		}
		if err := w.room(sheet, room, names[i], opts); err != nil {
			return nil, fmt.Errorf("room %d: %w", i+1, err)
		}
	}

	var buf bytes.Buffer
	if _, err := w.f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *writer) summary(plan *seating.Plan, names []string, opts Options) error {
	branchSet := map[string]bool{}
	for _, room := range plan.Rooms {
		for b := range room.BranchCounts() {
			branchSet[b] = true
		}
	}
	var branches []string
	for b := range branchSet {
		branches = append(branches, b)
	}
	slices.Sort(branches)

	if err := w.titles(summarySheet, opts); err != nil {
		return err
	}
	headers := append([]string{"Room", "Candidates", "Empty Seats", "Adjacent Same-Branch Pairs"}, branches...)
	if err := w.headerRow(summarySheet, 1, gridTop, headers); err != nil {
		return err
	}

	totals := make([]int, len(headers))
	row := gridTop + 1
	for i, room := range plan.Rooms {
		counts := room.BranchCounts()
		values := []any{names[i], room.Occupied(), plan.Layout.Capacity() - room.Occupied(), room.Violations()}
		for _, b := range branches {
			values = append(values, counts[b])
		}
		for j, v := range values[1:] {
			totals[j+1] += v.(int)
		}
		if err := w.setRow(summarySheet, row, values); err != nil {
			return err
		}
		row++
	}

	values := []any{"Total"}
	for _, t := range totals[1:] {
		values = append(values, t)
	}
	if err := w.setRow(summarySheet, row, values); err != nil {
		return err
	}
	return w.f.SetColWidth(summarySheet, "A", "A", 20)
}

func (w *writer) room(sheet string, room seating.Room, name string, opts Options) error {
	if err := w.titles(sheet, opts); err != nil {
		return err
	}
	if err := w.f.SetCellValue(sheet, "A2", "Room: "+name); err != nil {
		return err
	}

	cols := 0
	if len(room.Grid) > 0 {
		cols = len(room.Grid[0])
	}
	colHeaders := []string{""}
	for c := range cols {
		colHeaders = append(colHeaders, fmt.Sprintf("Col %d", c+1))
	}
	if err := w.headerRow(sheet, 1, gridTop, colHeaders); err != nil {
		return err
	}

	for r, cells := range room.Grid {
		row := gridTop + 1 + r
		if err := w.setCell(sheet, 1, row, fmt.Sprintf("Row %d", r+1)); err != nil {
			return err
		}
		for c, cand := range cells {
			if cand == nil {
				continue
			}
			if err := w.setCell(sheet, c+2, row, cand.ID); err != nil {
				return err
			}
			style, err := w.fill(cand.Branch)
			if err != nil {
				return err
			}
			cell, _ := excelize.CoordinatesToCellName(c+2, row)
			if err := w.f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return fmt.Errorf("failed to set seat style: %w", err)
			}
		}
	}
	if cols > 0 {
		last, _ := excelize.ColumnNumberToName(cols + 1)
		if err := w.f.SetColWidth(sheet, "B", last, 14); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	top := gridTop + len(room.Grid) + 2
	if err := w.headerRow(sheet, 1, top, AllotmentHeader); err != nil {
		return err
	}
	seats := room.Seats()
	for i, s := range seats {
		row := top + 1 + i/2
		col := 1
		if i%2 == 1 {
			col = 5
		}
		values := []any{s.Candidate.ID, name, DeskLabel(s.Row, s.Col)}
		for j, v := range values {
			if err := w.setCell(sheet, col+j, row, v); err != nil {
				return err
			}
		}
	}

	row := top + 1 + (len(seats)+1)/2 + 1
	return w.setRow(sheet, row, []any{"No of Students Allotted ::", len(seats)})
}

func (w *writer) titles(sheet string, opts Options) error {
	if err := w.f.SetCellValue(sheet, "A1", opts.Title); err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	if opts.Subtitle == "" {
		return nil
	}
	if err := w.f.SetCellValue(sheet, "A3", opts.Subtitle); err != nil {
		return fmt.Errorf("failed to set subtitle: %w", err)
	}
	return nil
}

func (w *writer) headerRow(sheet string, col, row int, headers []string) error {
	for i, h := range headers {
		if err := w.setCell(sheet, col+i, row, h); err != nil {
			return err
		}
		cell, _ := excelize.CoordinatesToCellName(col+i, row)
		if err := w.f.SetCellStyle(sheet, cell, cell, w.header); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func (w *writer) setRow(sheet string, row int, values []any) error {
	for i, v := range values {
		if err := w.setCell(sheet, i+1, row, v); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) setCell(sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := w.f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}

func (w *writer) fill(branch string) (int, error) {
	if style, ok := w.fills[branch]; ok {
		return style, nil
	}
	color, ok := BranchColors[branch]
	if !ok {
		color = unknownFill
	}
	style, err := w.f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create fill for %s: %w", branch, err)
	}
	w.fills[branch] = style
	return style, nil
}

// sheetName turns a room name into a unique, valid worksheet name.
func sheetName(name string, index int, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]'`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = fmt.Sprintf("Room %d", index+1)
	}
	if len([]rune(clean)) > 31 {
		clean = string([]rune(clean)[:31])
	}
	candidate := clean
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		base := []rune(clean)
		if len(base)+len(suffix) > 31 {
			base = base[:31-len(suffix)]
		}
		candidate = string(base) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
