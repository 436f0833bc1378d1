package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"examseat/seating"
)

func samplePlan(t *testing.T) *seating.Plan {
	t.Helper()
	var ids []string
	for _, code := range []string{"01", "05"} {
		for k := 1; k <= 5; k++ {
			ids = append(ids, fmt.Sprintf("259F1A%s%02d", code, k))
		}
	}
	plan, err := seating.Generate(ids, 6, seating.Layout{Rows: 2, Cols: 3}, nil)
	require.NoError(t, err)
	return plan
}

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, sheet, axis string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, axis)
	require.NoError(t, err)
	return v
}

func TestWorkbook_Sheets(t *testing.T) {
	plan := samplePlan(t)

	data, err := Workbook(plan, []string{"Hall A"}, Options{Title: "Mid Term"})
	require.NoError(t, err)

	f := open(t, data)
	assert.Equal(t, []string{"Summary", "Hall A", "Room 2"}, f.GetSheetList())
	assert.Equal(t, "Mid Term", cell(t, f, "Summary", "A1"))
	assert.Equal(t, "Room: Hall A", cell(t, f, "Hall A", "A2"))
}

func TestWorkbook_Summary(t *testing.T) {
	plan := samplePlan(t)

	data, err := Workbook(plan, nil, Options{})
	require.NoError(t, err)
	f := open(t, data)

	assert.Equal(t, defaultTitle, cell(t, f, "Summary", "A1"))
	assert.Equal(t, "Room", cell(t, f, "Summary", "A4"))
	assert.Equal(t, "CIVIL", cell(t, f, "Summary", "E4"))
	assert.Equal(t, "CSE", cell(t, f, "Summary", "F4"))

	assert.Equal(t, "Room 1", cell(t, f, "Summary", "A5"))
	assert.Equal(t, fmt.Sprint(plan.Rooms[0].Occupied()), cell(t, f, "Summary", "B5"))
	assert.Equal(t, "Total", cell(t, f, "Summary", "A7"))
	assert.Equal(t, "10", cell(t, f, "Summary", "B7"))
}

func TestWorkbook_GridAndAllotment(t *testing.T) {
	plan := samplePlan(t)

	data, err := Workbook(plan, nil, Options{})
	require.NoError(t, err)
	f := open(t, data)

	room := plan.Rooms[0]
	for r, cells := range room.Grid {
		for c, cand := range cells {
			axis, err := excelize.CoordinatesToCellName(c+2, gridTop+1+r)
			require.NoError(t, err)
			want := ""
			if cand != nil {
				want = cand.ID
			}
			assert.Equal(t, want, cell(t, f, "Room 1", axis))
		}
	}

	top := gridTop + len(room.Grid) + 2
	seats := room.Seats()
	assert.Equal(t, "H.T. No", cell(t, f, "Room 1", fmt.Sprintf("A%d", top)))
	assert.Equal(t, seats[0].Candidate.ID, cell(t, f, "Room 1", fmt.Sprintf("A%d", top+1)))
	assert.Equal(t, "Room 1", cell(t, f, "Room 1", fmt.Sprintf("B%d", top+1)))
	assert.Equal(t, "DESK - 1 COLUMN - 1", cell(t, f, "Room 1", fmt.Sprintf("C%d", top+1)))
	assert.Equal(t, seats[1].Candidate.ID, cell(t, f, "Room 1", fmt.Sprintf("E%d", top+1)))
	assert.Equal(t, "DESK - 1 COLUMN - 2", cell(t, f, "Room 1", fmt.Sprintf("G%d", top+1)))
}

func TestWorkbook_NilPlan(t *testing.T) {
	_, err := Workbook(nil, nil, Options{})
	assert.Error(t, err)
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, []string{"North", "Room 2", "Room 3"}, RoomNames(3, []string{" North ", "  "}))
	assert.Empty(t, RoomNames(0, []string{"ignored"}))
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{"summary": true}

	assert.Equal(t, "summary (2)", sheetName("summary", 0, used))
	assert.Equal(t, "Lab-1", sheetName("Lab/1", 1, used))
	assert.Equal(t, "Room 3", sheetName("  ", 2, used))

	long := sheetName("A very long examination hall name indeed", 3, used)
	assert.Len(t, []rune(long), 31)
	again := sheetName("A very long examination hall name indeed", 4, used)
	assert.NotEqual(t, long, again)
	assert.LessOrEqual(t, len([]rune(again)), 31)
}
