package core

import "errors"

// Error kinds of the pipeline. Every stage failure wraps exactly one of
// these so callers can classify without string matching.
var (
	// ErrTool: an external tool (ffmpeg, tesseract, python helper) exited
	// non-zero or could not be started.
	ErrTool = errors.New("external tool failure")
	// ErrIO: the filesystem refused a directory or file write.
	ErrIO = errors.New("i/o failure")
	// ErrModel: a locally loaded model failed to load or generate.
	ErrModel = errors.New("model failure")
	// ErrAPI: a hosted API call failed. Single attempt, no retry.
	ErrAPI = errors.New("external api failure")
)
