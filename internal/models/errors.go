package models

import "errors"

var (
	// ErrInvalidPath is returned when a file path is absolute, escapes the
	// project root or is otherwise not a clean relative path.
	ErrInvalidPath = errors.New("invalid path")

	// ErrUnknownTemplate is returned by scaffolders for unregistered template IDs.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrGenerationFault marks an unrecoverable generator failure such as
	// rejected credentials. It ends the session without further retries.
	ErrGenerationFault = errors.New("generation fault")

	// ErrTimeout marks a stage that exceeded its time limit.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled marks a session aborted by its caller.
	ErrCancelled = errors.New("cancelled")
)
