package ingest

import "errors"

// Domain errors. Validation errors are returned before any state is touched.
var (
	ErrEmptyBatch         = errors.New("ingest: batch contains no readings")
	ErrMixedControllers   = errors.New("ingest: batch mixes readings from more than one controller")
	ErrInvalidTime        = errors.New("ingest: reading time is not a finite number")
	ErrControllerMismatch = errors.New("ingest: topic controller does not match batch")
)
