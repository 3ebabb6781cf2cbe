package memory

import "errors"

var (
	// ErrContactNotFound is returned for contact ids the store has never issued.
	ErrContactNotFound = errors.New("contact not found")

	ErrThreadNotFound = errors.New("thread not found")

	// ErrExtraction marks a recognizer failure. It is logged and counted, never
	// returned from the pipeline.
	ErrExtraction = errors.New("entity extraction failed")

	// ErrPersistence marks a long-term storage failure. Like ErrExtraction it
	// never fails a turn.
	ErrPersistence = errors.New("long-term persistence failed")

	ErrStoreClosed = errors.New("memory store closed")
	ErrQueueFull   = errors.New("memory write queue full")
	ErrBreakerOpen = errors.New("long-term store circuit open")
)
