package main

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"examseat/config"
	"examseat/logging"
	"examseat/seating"
)

//go:embed schema.sql
var schema string

type server struct {
	db         *sql.DB
	cfg        *config.Config
	auth       *authenticator
	classifier *seating.Classifier
	log        *zap.Logger
}

func newServer(db *sql.DB, cfg *config.Config, log *zap.Logger) *server {
	return &server{
		db:         db,
		cfg:        cfg,
		auth:       newAuthenticator(cfg.Auth.ClientID, cfg.Auth.ClientSecret, cfg.Auth.Admins, log),
		classifier: cfg.Classifier(),
		log:        log,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google/callback", s.auth.handleGoogleCallback)
	mux.HandleFunc("GET /api/admin/check", s.auth.handleAdminCheck)
	mux.HandleFunc("GET /api/branches", s.handleBranches)
	mux.HandleFunc("GET /api/exams", s.handleListExams)
	mux.HandleFunc("POST /api/exams", s.handleCreateExam)
	mux.HandleFunc("GET /api/exams/{examID}", s.handleGetExam)
	mux.HandleFunc("PATCH /api/exams/{examID}", s.handleUpdateExam)
	mux.HandleFunc("DELETE /api/exams/{examID}", s.handleDeleteExam)
	mux.HandleFunc("GET /api/exams/{examID}/candidates", s.handleListCandidates)
	mux.HandleFunc("POST /api/exams/{examID}/candidates", s.handleUploadCandidates)
	mux.HandleFunc("DELETE /api/exams/{examID}/candidates", s.handleClearCandidates)
	mux.HandleFunc("POST /api/exams/{examID}/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/exams/{examID}/plan", s.handleGetPlan)
	mux.HandleFunc("PATCH /api/exams/{examID}/plan/rooms/{roomIndex}", s.handleRenameRoom)
	mux.HandleFunc("GET /api/exams/{examID}/plan/export", s.handleExport)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unhealthy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "examseat")
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	db, err := sql.Open("postgres", cfg.PGConn)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	logger.Info("connected to database")

	if _, err := db.Exec(schema); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newServer(db, cfg, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
