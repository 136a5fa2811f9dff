package mapper

import "errors"

var (
	// ErrInvalidSizingInput is returned when the sizing heuristic is given a
	// non-positive node capacity or maps-per-node value.
	ErrInvalidSizingInput = errors.New("invalid sizing input")

	// ErrFileNotFound is returned when the input cannot be stat'ed or opened.
	ErrFileNotFound = errors.New("file not found")

	// ErrFieldIndexOutOfRange is returned when a record has too few fields
	// for the configured key or value index.
	ErrFieldIndexOutOfRange = errors.New("field index out of range")

	// ErrAbortedTimeout is returned when a run does not finish draining
	// within its timeout. Results delivered before the abort remain valid.
	ErrAbortedTimeout = errors.New("run aborted: timeout exceeded")

	// ErrWorkerPanic is returned when a tokenizer panics inside a worker.
	ErrWorkerPanic = errors.New("worker panicked")
)
