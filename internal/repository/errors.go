package repository

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a user, session or record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when a write violates a store constraint
	// (duplicate key, dangling reference, empty batch member)
	ErrInvalidInput = errors.New("invalid input")
)

// isConstraintError matches SQLite constraint failures, which the driver
// only exposes through the message text.
func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
