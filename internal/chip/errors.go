package chip

import "errors"

// Sentinel errors for chip grids and selection sessions.
var (
	ErrInvalidGeometry = errors.New("invalid chip geometry")
	ErrInvalidAddress  = errors.New("block address outside grid")
	ErrSessionNotFound = errors.New("chip session not found")
)
