package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Substrings the drivers emit for unique violations: postgres 23505,
// mysql 1062, sqlite 2067. gorm's TranslateError covers most paths but
// raw Exec statements still surface driver errors.
var duplicateKeyMarkers = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation
// on any supported dialect.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	for _, marker := range duplicateKeyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
