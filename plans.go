package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"examseat/export"
	"examseat/seating"
)

var errNoPlan = errors.New("no plan generated")

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type storedPlan struct {
	ID        uuid.UUID
	ExamName  string
	Plan      *seating.Plan
	Names     []string
	CreatedAt time.Time
}

type planRoom struct {
	Index      int                    `json:"index"`
	Name       string                 `json:"name"`
	Grid       [][]*seating.Candidate `json:"grid"`
	Occupied   int                    `json:"occupied"`
	Violations int                    `json:"violations"`
	Branches   map[string]int         `json:"branches"`
}

type planView struct {
	ID              uuid.UUID      `json:"id"`
	ExamID          int64          `json:"exam_id"`
	StudentsPerRoom int            `json:"students_per_room"`
	Layout          seating.Layout `json:"layout"`
	Candidates      int            `json:"candidates"`
	EmptySeats      int            `json:"empty_seats"`
	Violations      int            `json:"violations"`
	Rooms           []planRoom     `json:"rooms"`
	CreatedAt       time.Time      `json:"created_at"`
}

func newPlanView(examID int64, sp storedPlan) planView {
	names := export.RoomNames(len(sp.Plan.Rooms), sp.Names)
	v := planView{
		ID:              sp.ID,
		ExamID:          examID,
		StudentsPerRoom: sp.Plan.StudentsPerRoom,
		Layout:          sp.Plan.Layout,
		Candidates:      sp.Plan.Len(),
		EmptySeats:      sp.Plan.EmptySeats(),
		Violations:      sp.Plan.Violations(),
		Rooms:           make([]planRoom, 0, len(sp.Plan.Rooms)),
		CreatedAt:       sp.CreatedAt,
	}
	for i, room := range sp.Plan.Rooms {
		v.Rooms = append(v.Rooms, planRoom{
			Index:      room.Index,
			Name:       names[i],
			Grid:       room.Grid,
			Occupied:   room.Occupied(),
			Violations: room.Violations(),
			Branches:   room.BranchCounts(),
		})
	}
	return v
}

// savePlan replaces whatever plan the exam had with plan.
func (s *server) savePlan(ctx context.Context, examID int64, plan *seating.Plan) (storedPlan, error) {
	sp := storedPlan{ID: uuid.New(), Plan: plan}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sp, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM plans WHERE exam_id = $1", examID); err != nil {
		return sp, fmt.Errorf("failed to delete previous plan: %w", err)
	}
	err = tx.QueryRowContext(ctx,
		"INSERT INTO plans (id, exam_id, students_per_room, room_rows, room_cols) VALUES ($1, $2, $3, $4, $5) RETURNING created_at",
		sp.ID, examID, plan.StudentsPerRoom, plan.Layout.Rows, plan.Layout.Cols).Scan(&sp.CreatedAt)
	if err != nil {
		return sp, fmt.Errorf("failed to insert plan: %w", err)
	}

	sp.Names = export.RoomNames(len(plan.Rooms), nil)
	indexes := make([]int64, len(plan.Rooms))
	for i, room := range plan.Rooms {
		indexes[i] = int64(room.Index)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO plan_rooms (plan_id, room_index, name) SELECT $1, * FROM unnest($2::int[], $3::text[])",
		sp.ID, pq.Array(indexes), pq.Array(sp.Names)); err != nil {
		return sp, fmt.Errorf("failed to insert plan rooms: %w", err)
	}

	seats := plan.Seats()
	rooms := make([]int64, len(seats))
	rows := make([]int64, len(seats))
	cols := make([]int64, len(seats))
	ids := make([]string, len(seats))
	branches := make([]string, len(seats))
	for i, seat := range seats {
		rooms[i] = int64(seat.Room)
		rows[i] = int64(seat.Row)
		cols[i] = int64(seat.Col)
		ids[i] = seat.Candidate.ID
		branches[i] = seat.Candidate.Branch
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plan_seats (plan_id, room_index, row_index, col_index, identifier, branch)
		SELECT $1, * FROM unnest($2::int[], $3::int[], $4::int[], $5::text[], $6::text[])`,
		sp.ID, pq.Array(rooms), pq.Array(rows), pq.Array(cols), pq.Array(ids), pq.Array(branches)); err != nil {
		return sp, fmt.Errorf("failed to insert plan seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return sp, err
	}
	return sp, nil
}

func (s *server) loadPlan(ctx context.Context, examID int64) (storedPlan, error) {
	var sp storedPlan
	var per, numRows, numCols int
	err := s.db.QueryRowContext(ctx,
		`SELECT p.id, e.name, p.students_per_room, p.room_rows, p.room_cols, p.created_at
		FROM plans p JOIN exams e ON e.id = p.exam_id
		WHERE p.exam_id = $1`, examID).
		Scan(&sp.ID, &sp.ExamName, &per, &numRows, &numCols, &sp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sp, errNoPlan
	}
	if err != nil {
		return sp, err
	}

	layout := seating.Layout{Rows: numRows, Cols: numCols}
	sp.Plan = &seating.Plan{Layout: layout, StudentsPerRoom: per}

	rows, err := s.db.QueryContext(ctx,
		"SELECT room_index, name FROM plan_rooms WHERE plan_id = $1 ORDER BY room_index", sp.ID)
	if err != nil {
		return sp, err
	}
	defer rows.Close()
	for rows.Next() {
		var index int
		var name string
		if err := rows.Scan(&index, &name); err != nil {
			return sp, err
		}
		grid := make([][]*seating.Candidate, numRows)
		for r := range grid {
			grid[r] = make([]*seating.Candidate, numCols)
		}
		sp.Plan.Rooms = append(sp.Plan.Rooms, seating.Room{Index: index, Grid: grid})
		sp.Names = append(sp.Names, name)
	}
	if err := rows.Err(); err != nil {
		return sp, err
	}

	seatRows, err := s.db.QueryContext(ctx,
		"SELECT room_index, row_index, col_index, identifier, branch FROM plan_seats WHERE plan_id = $1", sp.ID)
	if err != nil {
		return sp, err
	}
	defer seatRows.Close()
	for seatRows.Next() {
		var room, row, col int
		var c seating.Candidate
		if err := seatRows.Scan(&room, &row, &col, &c.ID, &c.Branch); err != nil {
			return sp, err
		}
		if room < 0 || room >= len(sp.Plan.Rooms) || row < 0 || row >= numRows || col < 0 || col >= numCols {
			return sp, fmt.Errorf("plan %s has seat outside its rooms: room %d row %d col %d", sp.ID, room, row, col)
		}
		sp.Plan.Rooms[room].Grid[row][col] = &c
	}
	return sp, seatRows.Err()
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	email, ok := s.auth.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}

	var per, numRows, numCols int
	err := s.db.QueryRowContext(r.Context(),
		"SELECT students_per_room, room_rows, room_cols FROM exams WHERE id = $1", id).
		Scan(&per, &numRows, &numCols)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "exam not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), "SELECT identifier FROM candidates WHERE exam_id = $1 ORDER BY id", id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var ids []string
	for rows.Next() {
		var ident string
		if err := rows.Scan(&ident); err != nil {
			rows.Close()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		ids = append(ids, ident)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(ids) == 0 {
		http.Error(w, "exam has no candidates", http.StatusBadRequest)
		return
	}

	start := time.Now()
	plan, err := seating.Generate(ids, per, seating.Layout{Rows: numRows, Cols: numCols}, s.classifier)
	if err != nil {
		s.log.Error("seating plan generation failed", zap.Int64("exam_id", id), zap.Error(err))
		http.Error(w, seating.ErrGenerationFailed.Error(), http.StatusInternalServerError)
		return
	}

	sp, err := s.savePlan(r.Context(), id, plan)
	if err != nil {
		s.log.Error("failed to save plan", zap.Int64("exam_id", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("plan generated",
		zap.Int64("exam_id", id),
		zap.String("plan_id", sp.ID.String()),
		zap.Int("candidates", plan.Len()),
		zap.Int("rooms", len(plan.Rooms)),
		zap.Int("violations", plan.Violations()),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("by", email))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newPlanView(id, sp))
}

func (s *server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	sp, err := s.loadPlan(r.Context(), id)
	if errors.Is(err, errNoPlan) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("failed to load plan", zap.Int64("exam_id", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newPlanView(id, sp))
}

func (s *server) handleRenameRoom(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	roomIndex, err := strconv.Atoi(r.PathValue("roomIndex"))
	if err != nil || roomIndex < 0 {
		http.Error(w, "invalid room index", http.StatusBadRequest)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	result, err := s.db.ExecContext(r.Context(),
		`UPDATE plan_rooms SET name = $3 FROM plans p
		WHERE plan_rooms.plan_id = p.id AND p.exam_id = $1 AND plan_rooms.room_index = $2`,
		id, roomIndex, strings.TrimSpace(body.Name))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	sp, err := s.loadPlan(r.Context(), id)
	if errors.Is(err, errNoPlan) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := export.Workbook(sp.Plan, sp.Names, export.Options{
		Title:    sp.ExamName,
		Subtitle: "Generated " + sp.CreatedAt.Format("2006-01-02 15:04"),
	})
	if err != nil {
		s.log.Error("failed to render workbook", zap.Int64("exam_id", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filename := strings.Trim(unsafeFilename.ReplaceAllString(sp.ExamName, "_"), "_")
	if filename == "" {
		filename = "seating"
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename + "_plan.xlsx"}))
	w.Write(data)
}
