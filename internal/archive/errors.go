package archive

import "errors"

var (
	// ErrUnsupportedFormat is returned for archive suffixes the extractor does not handle.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrMaliciousEntry is returned when an entry would land outside the extraction directory.
	ErrMaliciousEntry = errors.New("archive entry escapes extraction directory")

	// ErrEmptyArchive is returned when extraction yields no regular file.
	ErrEmptyArchive = errors.New("archive contains no regular file")

	// ErrExtractionFailed wraps I/O and decoding failures during extraction.
	ErrExtractionFailed = errors.New("archive extraction failed")
)
