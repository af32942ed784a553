package acquire

import "errors"

var (
	// ErrAllCandidatesFailed is returned when no download candidate produced a binary.
	ErrAllCandidatesFailed = errors.New("binary download failed: all candidates failed")

	// ErrHTTPStatus is returned for non-200 download responses.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)
