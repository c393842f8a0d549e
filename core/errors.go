package core

import "errors"

var (
	// ErrKeyNotFound is returned by Get and Delete when no live segment
	// binds the key. It is a normal outcome, not a failure.
	ErrKeyNotFound = errors.New("key not found")

	// ErrMalformedSegment reports a segment file whose contents cannot be
	// replayed, e.g. an illegal tombstone byte.
	ErrMalformedSegment = errors.New("malformed segment")

	// ErrInvalidArgument reports input the engine cannot store, e.g. an
	// empty value, or an on-disk key-length field that is not 4.
	ErrInvalidArgument = errors.New("invalid argument")
)
