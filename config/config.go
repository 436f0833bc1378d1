package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"examseat/seating"
)

// Limits the settings panel has always enforced.
const (
	MaxStudentsPerRoom = 100
	MaxRoomDimension   = 10
)

type Config struct {
	ListenAddr string
	PGConn     string

	Auth struct {
		ClientID     string
		ClientSecret string
		Admins       []string
	}

	// Defaults for newly created exams.
	Seating struct {
		StudentsPerRoom int
		Rows            int
		Cols            int
	}

	Branches struct {
		Marker string
		Codes  map[string]string
	}

	Log struct {
		Level  string
		Format string
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	for _, key := range []string{"PGCONN", "CLIENT_ID", "CLIENT_SECRET", "ADMINS"} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	cfg.PGConn = os.Getenv("PGCONN")
	cfg.Auth.ClientID = os.Getenv("CLIENT_ID")
	cfg.Auth.ClientSecret = os.Getenv("CLIENT_SECRET")
	for _, a := range strings.Split(os.Getenv("ADMINS"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			cfg.Auth.Admins = append(cfg.Auth.Admins, a)
		}
	}

	var err error
	if cfg.Seating.StudentsPerRoom, err = getInt("SEATING_STUDENTS_PER_ROOM", 24, MaxStudentsPerRoom); err != nil {
		return nil, err
	}
	if cfg.Seating.Rows, err = getInt("SEATING_ROWS", 4, MaxRoomDimension); err != nil {
		return nil, err
	}
	if cfg.Seating.Cols, err = getInt("SEATING_COLS", 6, MaxRoomDimension); err != nil {
		return nil, err
	}

	cfg.Branches.Marker = getEnv("BRANCH_MARKER", seating.DefaultMarker)
	cfg.Branches.Codes = seating.DefaultBranches()
	if raw := os.Getenv("BRANCH_CODES"); raw != "" {
		codes, err := ParseBranchCodes(raw)
		if err != nil {
			return nil, err
		}
		cfg.Branches.Codes = codes
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Classifier builds the branch classifier described by the config.
func (c *Config) Classifier() *seating.Classifier {
	return seating.NewClassifier(c.Branches.Marker, c.Branches.Codes)
}

// ParseBranchCodes parses "01=CIVIL,05=CSE" into a code table.
func ParseBranchCodes(raw string) (map[string]string, error) {
	codes := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, name, ok := strings.Cut(pair, "=")
		code, name = strings.TrimSpace(code), strings.TrimSpace(name)
		if !ok || len(code) != 2 || code[0] < '0' || code[0] > '9' || code[1] < '0' || code[1] > '9' || name == "" {
			return nil, fmt.Errorf("invalid BRANCH_CODES entry %q: want two-digit code=NAME", pair)
		}
		codes[code] = name
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("BRANCH_CODES has no entries")
	}
	return codes, nil
}

func getInt(key string, def, max int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v < 1 || v > max {
		return 0, fmt.Errorf("%s must be between 1 and %d, got %d", key, max, v)
	}
	return v, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
