package model

import "errors"

var (
	// ErrInvalidSessionData signals a malformed or empty session payload.
	ErrInvalidSessionData = errors.New("invalid session data")
	// ErrIndexOutOfRange is a programming error, correct clamping never produces it.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrEndOfStream is the expected terminal condition of a replay.
	ErrEndOfStream = errors.New("end of stream")
	// ErrAnalysisRequestFailed is returned when the analysis service is unreachable
	// or rejects the payload.
	ErrAnalysisRequestFailed = errors.New("analysis request failed")
	ErrNotVisited            = errors.New("index not visited by playback")
	ErrNoData                = errors.New("no telemetry loaded")
)
