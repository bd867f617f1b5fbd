// Package apperr holds the error taxonomy shared by the vault, the parser and
// the services built on top of them.
package apperr

import "errors"

var (
	// ErrNotFound reports a missing host path component, file or front-matter.
	ErrNotFound = errors.New("not found")
	// ErrMalformed reports input that exists but cannot be interpreted.
	ErrMalformed = errors.New("malformed input")
	// ErrNotDirectory reports a path that was expected to list entries.
	ErrNotDirectory  = errors.New("not a directory")
	ErrLinkCycle     = errors.New("symbolic link cycle")
	ErrInvalidPath   = errors.New("invalid path")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict reports a write whose precondition checksum is stale.
	ErrConflict = errors.New("conflict")
)
