package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"examseat/config"
	"examseat/export"
	"examseat/ingest"
)

const maxUploadBytes = 32 << 20

type exam struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	StudentsPerRoom int       `json:"students_per_room"`
	Rows            int       `json:"room_rows"`
	Cols            int       `json:"room_cols"`
	Candidates      int       `json:"candidates"`
	HasPlan         bool      `json:"has_plan"`
	CreatedAt       time.Time `json:"created_at"`
}

const examColumns = `e.id, e.name, e.students_per_room, e.room_rows, e.room_cols,
	(SELECT count(*) FROM candidates c WHERE c.exam_id = e.id),
	EXISTS (SELECT 1 FROM plans p WHERE p.exam_id = e.id),
	e.created_at`

func scanExam(row interface{ Scan(...any) error }) (exam, error) {
	var e exam
	err := row.Scan(&e.ID, &e.Name, &e.StudentsPerRoom, &e.Rows, &e.Cols, &e.Candidates, &e.HasPlan, &e.CreatedAt)
	return e, err
}

func validateSettings(perRoom, rows, cols int) error {
	switch {
	case perRoom < 1 || perRoom > config.MaxStudentsPerRoom:
		return fmt.Errorf("students_per_room must be between 1 and %d", config.MaxStudentsPerRoom)
	case rows < 1 || rows > config.MaxRoomDimension:
		return fmt.Errorf("room_rows must be between 1 and %d", config.MaxRoomDimension)
	case cols < 1 || cols > config.MaxRoomDimension:
		return fmt.Errorf("room_cols must be between 1 and %d", config.MaxRoomDimension)
	}
	return nil
}

// examExists reports whether the exam is there, writing the 404 or 500 itself
// when it is not.
func examExists(w http.ResponseWriter, r *http.Request, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id int64) bool {
	var exists bool
	if err := q.QueryRowContext(r.Context(), "SELECT EXISTS (SELECT 1 FROM exams WHERE id = $1)", id).Scan(&exists); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	if !exists {
		http.Error(w, "exam not found", http.StatusNotFound)
		return false
	}
	return true
}

func examID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("examID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid exam ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *server) handleBranches(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	type branch struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Color string `json:"color,omitempty"`
	}
	var branches []branch
	table := s.classifier.Table()
	for _, name := range s.classifier.Branches() {
		b := branch{Name: name, Color: export.BranchColors[name]}
		for code, n := range table {
			if n == name && (b.Code == "" || code < b.Code) {
				b.Code = code
			}
		}
		branches = append(branches, b)
	}
	if branches == nil {
		branches = []branch{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(branches)
}

func (s *server) handleListExams(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	rows, err := s.db.QueryContext(r.Context(), "SELECT "+examColumns+" FROM exams e ORDER BY e.id")
	if err != nil {
		s.log.Error("failed to list exams", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	exams := []exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(exams)
}

func (s *server) handleGetExam(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	e, err := scanExam(s.db.QueryRowContext(r.Context(), "SELECT "+examColumns+" FROM exams e WHERE e.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "exam not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(e)
}

func (s *server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	email, ok := s.auth.requireAdmin(w, r)
	if !ok {
		return
	}
	var body struct {
		Name            string `json:"name"`
		StudentsPerRoom *int   `json:"students_per_room"`
		Rows            *int   `json:"room_rows"`
		Cols            *int   `json:"room_cols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	e := exam{
		Name:            body.Name,
		StudentsPerRoom: s.cfg.Seating.StudentsPerRoom,
		Rows:            s.cfg.Seating.Rows,
		Cols:            s.cfg.Seating.Cols,
	}
	if body.StudentsPerRoom != nil {
		e.StudentsPerRoom = *body.StudentsPerRoom
	}
	if body.Rows != nil {
		e.Rows = *body.Rows
	}
	if body.Cols != nil {
		e.Cols = *body.Cols
	}
	if err := validateSettings(e.StudentsPerRoom, e.Rows, e.Cols); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := s.db.QueryRowContext(r.Context(),
		"INSERT INTO exams (name, students_per_room, room_rows, room_cols) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		e.Name, e.StudentsPerRoom, e.Rows, e.Cols).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		s.log.Error("failed to create exam", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("exam created", zap.Int64("exam_id", e.ID), zap.String("by", email))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(e)
}

// handleUpdateExam changes the exam's name or seating settings. A change to
// the settings discards the stored plan.
func (s *server) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	var body struct {
		Name            *string `json:"name"`
		StudentsPerRoom *int    `json:"students_per_room"`
		Rows            *int    `json:"room_rows"`
		Cols            *int    `json:"room_cols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name != nil && *body.Name == "" {
		http.Error(w, "name cannot be empty", http.StatusBadRequest)
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	var cur exam
	err = tx.QueryRowContext(r.Context(),
		"SELECT students_per_room, room_rows, room_cols FROM exams WHERE id = $1 FOR UPDATE", id).
		Scan(&cur.StudentsPerRoom, &cur.Rows, &cur.Cols)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "exam not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	next := cur
	if body.StudentsPerRoom != nil {
		next.StudentsPerRoom = *body.StudentsPerRoom
	}
	if body.Rows != nil {
		next.Rows = *body.Rows
	}
	if body.Cols != nil {
		next.Cols = *body.Cols
	}
	if err := validateSettings(next.StudentsPerRoom, next.Rows, next.Cols); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, err = tx.ExecContext(r.Context(),
		"UPDATE exams SET name = COALESCE($2, name), students_per_room = $3, room_rows = $4, room_cols = $5 WHERE id = $1",
		id, body.Name, next.StudentsPerRoom, next.Rows, next.Cols)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if next.StudentsPerRoom != cur.StudentsPerRoom || next.Rows != cur.Rows || next.Cols != cur.Cols {
		if _, err := tx.ExecContext(r.Context(), "DELETE FROM plans WHERE exam_id = $1", id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	email, ok := s.auth.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	result, err := s.db.ExecContext(r.Context(), "DELETE FROM exams WHERE id = $1", id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, "exam not found", http.StatusNotFound)
		return
	}
	s.log.Info("exam deleted", zap.Int64("exam_id", id), zap.String("by", email))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	if !examExists(w, r, s.db, id) {
		return
	}
	rows, err := s.db.QueryContext(r.Context(),
		"SELECT identifier FROM candidates WHERE exam_id = $1 ORDER BY id", id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	type candidate struct {
		Identifier string `json:"identifier"`
		Branch     string `json:"branch"`
	}
	candidates := []candidate{}
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.Identifier); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		c.Branch = s.classifier.Classify(c.Identifier)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(candidates)
}

// readIdentifiers takes either a multipart "file" holding an xlsx workbook or
// a JSON body of the form {"identifiers": [...]}.
func readIdentifiers(r *http.Request) ([]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("invalid upload: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("file is required: %w", err)
		}
		defer file.Close()
		return ingest.Extract(file)
	}

	var body struct {
		Identifiers []string `json:"identifiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	ids := ingest.Unique(body.Identifiers)
	if len(ids) == 0 {
		return nil, ingest.ErrNoIdentifiers
	}
	return ids, nil
}

// handleUploadCandidates replaces the exam's candidate list and discards the
// stored plan.
func (s *server) handleUploadCandidates(w http.ResponseWriter, r *http.Request) {
	email, ok := s.auth.requireAdmin(w, r)
	if !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	ids, err := readIdentifiers(r)
	if err != nil {
		s.log.Warn("rejected candidate upload", zap.Int64("exam_id", id), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if !examExists(w, r, tx, id) {
		return
	}
	if _, err := tx.ExecContext(r.Context(), "DELETE FROM candidates WHERE exam_id = $1", id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := tx.ExecContext(r.Context(),
		"INSERT INTO candidates (exam_id, identifier) SELECT $1, unnest($2::text[])", id, pq.Array(ids)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := tx.ExecContext(r.Context(), "DELETE FROM plans WHERE exam_id = $1", id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("candidates uploaded", zap.Int64("exam_id", id), zap.Int("count", len(ids)), zap.String("by", email))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"count": len(ids), "identifiers": ids})
}

func (s *server) handleClearCandidates(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.auth.requireAdmin(w, r); !ok {
		return
	}
	id, ok := examID(w, r)
	if !ok {
		return
	}
	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if !examExists(w, r, tx, id) {
		return
	}
	if _, err := tx.ExecContext(r.Context(), "DELETE FROM candidates WHERE exam_id = $1", id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := tx.ExecContext(r.Context(), "DELETE FROM plans WHERE exam_id = $1", id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
