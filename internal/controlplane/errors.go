package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("resource not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrNoMenu         = errors.New("no block under pointer")
)
