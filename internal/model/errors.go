package model

import (
	"errors"
)

var (
	// ErrConfig marks an invalid configuration or rule definition. It is fatal:
	// nothing is scanned once it is returned.
	ErrConfig = errors.New("configuration error")
	// ErrFileAccess marks a single file which could not be read. The scan of
	// other files continues.
	ErrFileAccess = errors.New("file access error")
	// ErrDetector marks a detector which failed on a file
	ErrDetector = errors.New("detector failed")
	ErrTooBig   = errors.New("file too big")
	ErrNoMatch  = errors.New("no match")
)
