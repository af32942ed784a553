package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const blockSize = 512

// Header field offsets within a 512-byte tar block.
const (
	nameEnd     = 100
	sizeStart   = 124
	sizeEnd     = 136
	typeFlagPos = 156
	magicStart  = 257
	magicEnd    = 262
	prefixStart = 345
	prefixEnd   = 500
)

// untar reads ustar blocks from r and writes regular files below dir.
// Extended headers, links and devices are skipped.
func untar(r io.Reader, dir string) error {
	hdr := make([]byte, blockSize)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: reading tar header: %w", ErrExtractionFailed, err)
		}

		name := cString(hdr[:nameEnd])
		if name == "" {
			return nil
		}
		if string(hdr[magicStart:magicEnd]) == "ustar" {
			if prefix := cString(hdr[prefixStart:prefixEnd]); prefix != "" {
				name = prefix + "/" + name
			}
		}

		size, err := parseSize(hdr[sizeStart:sizeEnd])
		if err != nil {
			return fmt.Errorf("%w: entry %q: %w", ErrExtractionFailed, name, err)
		}
		padding := (blockSize - size%blockSize) % blockSize

		switch typeFlag := hdr[typeFlagPos]; {
		case strings.HasSuffix(name, "/") || typeFlag == '5':
			dest, err := safeJoin(dir, name)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
			}
			if err := skip(r, size+padding); err != nil {
				return err
			}

		case typeFlag == '0' || typeFlag == 0 || typeFlag == '7':
			dest, err := safeJoin(dir, name)
			if err != nil {
				return err
			}
			if err := writeTarEntry(r, dest, size); err != nil {
				return err
			}
			if err := skip(r, padding); err != nil {
				return err
			}

		default:
			if err := skip(r, size+padding); err != nil {
				return err
			}
		}
	}
}

func writeTarEntry(r io.Reader, dest string, size int64) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // dest checked by safeJoin
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if _, err := io.CopyN(out, r, size); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: writing %s: %w", ErrExtractionFailed, filepath.Base(dest), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return nil
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("%w: truncated tar: %w", ErrExtractionFailed, err)
	}
	return nil
}

// cString returns b up to the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// parseSize reads the size field: octal ASCII padded with NULs or spaces,
// or base-256 when the high bit of the first byte is set.
func parseSize(b []byte) (int64, error) {
	if len(b) > 0 && b[0]&0x80 != 0 {
		var n int64
		for i, c := range b {
			if i == 0 {
				c &= 0x7f
			}
			n = n<<8 | int64(c)
		}
		return n, nil
	}

	s := strings.Trim(string(b), " \x00")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 8, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size field %q", s)
	}
	return n, nil
}
