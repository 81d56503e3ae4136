// Package apperr holds the error taxonomy shared by the services and transports.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrNoProfile is returned when a follow graph is mutated before the
	// acting origin has written its profile record.
	ErrNoProfile = errors.New("no profile record exists")

	// ErrNotIndexed is returned when writing into a replica that is not
	// registered as writable by this process.
	ErrNotIndexed = errors.New("replica is not indexed")

	// ErrInvalidInput wraps validation failures of caller-supplied fields.
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidPost = errors.New("invalid post")
	ErrInvalidVote = errors.New("invalid vote")

	// ErrThreadCycle is returned when threadParent links loop back on themselves.
	ErrThreadCycle = errors.New("thread contains a cycle")
)
