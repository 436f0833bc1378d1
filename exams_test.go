package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestBranches(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/branches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/branches", adminEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 6)
	assert.Equal(t, "CIVIL", got[0].Name)
	assert.Contains(t, got, struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}{"05", "CSE", "#E7E0FF"})
}

func TestCreateExam_Defaults(t *testing.T) {
	s, mock := newTestServer(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO exams").
		WithArgs("Semester End", 24, 4, 6).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	rec := do(t, s, http.MethodPost, "/api/exams", adminEmail, strings.NewReader(`{"name":"Semester End"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var e exam
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, int64(7), e.ID)
	assert.Equal(t, 24, e.StudentsPerRoom)
	assert.Equal(t, 4, e.Rows)
	assert.Equal(t, 6, e.Cols)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateExam_Invalid(t *testing.T) {
	s, mock := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{}`},
		{"too many per room", `{"name":"x","students_per_room":101}`},
		{"zero rows", `{"name":"x","room_rows":0}`},
		{"too many cols", `{"name":"x","room_cols":11}`},
		{"not json", `name=x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/exams", adminEmail, strings.NewReader(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListExams(t *testing.T) {
	s, mock := newTestServer(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM exams e ORDER BY e.id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "students_per_room", "room_rows", "room_cols", "candidates", "has_plan", "created_at"}).
			AddRow(int64(1), "Mid Term", 24, 4, 6, 48, true, created).
			AddRow(int64(2), "Lab", 30, 5, 6, 0, false, created))

	rec := do(t, s, http.MethodGet, "/api/exams", adminEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var exams []exam
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exams))
	require.Len(t, exams, 2)
	assert.Equal(t, 48, exams[0].Candidates)
	assert.True(t, exams[0].HasPlan)
	assert.Equal(t, "Lab", exams[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExam_NotFound(t *testing.T) {
	s, mock := newTestServer(t)
	mock.ExpectQuery("SELECT (.+) FROM exams e WHERE e.id").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := do(t, s, http.MethodGet, "/api/exams/9", adminEmail, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/exams/abc", adminEmail, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExam_SettingsChangeDropsPlan(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT students_per_room, room_rows, room_cols FROM exams").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"students_per_room", "room_rows", "room_cols"}).AddRow(24, 4, 6))
	mock.ExpectExec("UPDATE exams").
		WithArgs(int64(3), sqlmock.AnyArg(), 30, 5, 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM plans").WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := do(t, s, http.MethodPatch, "/api/exams/3", adminEmail, strings.NewReader(`{"students_per_room":30,"room_rows":5}`))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExam_RenameKeepsPlan(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT students_per_room, room_rows, room_cols FROM exams").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"students_per_room", "room_rows", "room_cols"}).AddRow(24, 4, 6))
	mock.ExpectExec("UPDATE exams").
		WithArgs(int64(3), "Finals", 24, 4, 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := do(t, s, http.MethodPatch, "/api/exams/3", adminEmail, strings.NewReader(`{"name":"Finals"}`))
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateExam_OutOfRange(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT students_per_room, room_rows, room_cols FROM exams").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"students_per_room", "room_rows", "room_cols"}).AddRow(24, 4, 6))
	mock.ExpectRollback()

	rec := do(t, s, http.MethodPatch, "/api/exams/3", adminEmail, strings.NewReader(`{"room_cols":12}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExam(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectExec("DELETE FROM exams").WithArgs(int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM exams").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))

	rec := do(t, s, http.MethodDelete, "/api/exams/4", adminEmail, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/exams/5", adminEmail, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCandidates_Classified(t *testing.T) {
	s, mock := newTestServer(t)

	expectExamExists(mock, 1, true)
	mock.ExpectQuery("SELECT identifier FROM candidates").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"identifier"}).
			AddRow("259F1A0501").
			AddRow("259F1A1201").
			AddRow("ROLL-77"))

	rec := do(t, s, http.MethodGet, "/api/exams/1/candidates", adminEmail, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"identifier": "259F1A0501", "branch": "CSE"},
		{"identifier": "259F1A1201", "branch": "IT"},
		{"identifier": "ROLL-77", "branch": "Unknown-77"}
	]`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectExamExists(mock sqlmock.Sqlmock, examID int64, exists bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(examID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func expectCandidateReplace(mock sqlmock.Sqlmock, examID int64) {
	mock.ExpectBegin()
	expectExamExists(mock, examID, true)
	mock.ExpectExec("DELETE FROM candidates").WithArgs(examID).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO candidates").WithArgs(examID, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM plans").WithArgs(examID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestUploadCandidates_JSON(t *testing.T) {
	s, mock := newTestServer(t)
	expectCandidateReplace(mock, 2)

	rec := do(t, s, http.MethodPost, "/api/exams/2/candidates", adminEmail,
		strings.NewReader(`{"identifiers":[" 259F1A0501","259F1A0502","259F1A0501",""]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"count": 2, "identifiers": ["259F1A0501", "259F1A0502"]}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadCandidates_Workbook(t *testing.T) {
	s, mock := newTestServer(t)
	expectCandidateReplace(mock, 2)

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Hall Ticket"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "259F1A0501"))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "21F15A0123"))
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "students.xlsx")
	require.NoError(t, err)
	_, err = part.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/exams/2/candidates", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := doRequest(t, s, req, adminEmail)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"count": 2, "identifiers": ["259F1A0501", "21F15A0123"]}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadCandidates_Rejected(t *testing.T) {
	s, mock := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/exams/2/candidates", adminEmail, strings.NewReader(`{"identifiers":["", "  "]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "students.xlsx")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a workbook"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/exams/2/candidates", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = doRequest(t, s, req, adminEmail)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadCandidates_UnknownExam(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	expectExamExists(mock, 8, false)
	mock.ExpectRollback()

	rec := do(t, s, http.MethodPost, "/api/exams/8/candidates", adminEmail, strings.NewReader(`{"identifiers":["259F1A0501"]}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearCandidates(t *testing.T) {
	s, mock := newTestServer(t)

	mock.ExpectBegin()
	expectExamExists(mock, 2, true)
	mock.ExpectExec("DELETE FROM candidates").WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec("DELETE FROM plans").WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := do(t, s, http.MethodDelete, "/api/exams/2/candidates", adminEmail, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCandidates_UnknownExam(t *testing.T) {
	s, mock := newTestServer(t)

	expectExamExists(mock, 8, false)
	mock.ExpectBegin()
	expectExamExists(mock, 8, false)
	mock.ExpectRollback()

	rec := do(t, s, http.MethodGet, "/api/exams/8/candidates", adminEmail, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/exams/8/candidates", adminEmail, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
