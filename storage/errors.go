package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	// ErrUnsupported is returned when a backend does not advertise the
	// capability an operation needs.
	ErrUnsupported = errors.New("storage: capability not supported")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }
