package posting

import "errors"

var (
	// ErrAborted means a fire stopped before any send: the post is missing
	// or inactive, it has no schedule, or no channel is assigned.
	ErrAborted = errors.New("fire aborted")

	ErrNotFound   = errors.New("not found")
	ErrLimit      = errors.New("limit reached")
	ErrInvalid    = errors.New("invalid input")
	ErrPermission = errors.New("insufficient bot rights")
)
