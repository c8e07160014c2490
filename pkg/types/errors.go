package types

import "errors"

// Domain errors for type validation
var (
	// Input errors
	ErrMissingID = errors.New("id is required")
	ErrEmptyText = errors.New("text cannot be empty")

	// Ranked result errors
	ErrInvalidRank  = errors.New("rank must be >= 1")
	ErrInvalidScore = errors.New("score must be between 0 and 1")
)
