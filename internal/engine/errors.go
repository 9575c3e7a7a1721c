package engine

import "errors"

// Input errors are returned before any processing starts and are never
// worth retrying.
var (
	ErrEmptyStatus = errors.New("status text is empty")
	ErrMissingUser = errors.New("user id is required")
)

// IsInputError reports whether err was caused by the caller's input.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyStatus) || errors.Is(err, ErrMissingUser)
}
