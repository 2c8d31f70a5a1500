package store

import "errors"

// Sentinels the sub-stores translate gorm driver errors into. Callers
// branch on these with errors.Is instead of inspecting driver codes.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
)
