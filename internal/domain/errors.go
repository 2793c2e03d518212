package domain

import "errors"

// Failure classes shared by the pipeline stages. Callers match them with errors.Is.
var (
	// ErrNotFound marks a missing input audio or model file.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration marks an entry that cannot be given an identifier.
	ErrConfiguration = errors.New("configuration error")
	// ErrProcessing marks a decode or denoise failure.
	ErrProcessing = errors.New("processing failure")
	// ErrIO marks a directory or document write failure in the entry store.
	ErrIO = errors.New("io failure")
)
