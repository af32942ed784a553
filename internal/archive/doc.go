// Package archive unpacks downloaded server archives.
//
// Extract picks the format from the archive's file name, unpacks it into a
// private temporary directory and copies the single largest regular file to
// the requested target path. Release archives ship one binary next to a
// handful of small text files, so "largest file" is the binary.
//
// Supported suffixes (case-insensitive): .zip, .tar.gz, .tgz, .tar, .gz.
//
// Tar headers are read directly from 512-byte blocks: the entry name is the
// NUL-terminated bytes 0-99 (joined with the ustar prefix when present) and
// the size is the octal number in bytes 124-135. An empty name ends the
// archive.
//
// Every entry path is checked against the extraction directory; entries
// that would escape it fail with ErrMaliciousEntry.
package archive
