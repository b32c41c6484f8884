package store

import (
	"database/sql"
	"encoding/json"
	"errors"
)

// Store wraps all persistence for projects, the category catalog, and the
// template library.
type Store struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by conditional updates when the stored
	// version no longer matches the caller's snapshot.
	ErrConflict = errors.New("version conflict")
)

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
