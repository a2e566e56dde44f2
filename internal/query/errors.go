package query

import "errors"

// Sentinel errors for the QueryResultsPooler state machine (spec.md §4.4).
var (
	ErrAlreadyStarted  = errors.New("query: pooler already started")
	ErrNotStarted      = errors.New("query: pooler not started")
	ErrConnectionClosed = errors.New("query: connection closed")
)
