package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractZip writes every zip entry below dir.
func extractZip(src, dir string) error {
	r, err := zip.OpenReader(src)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && r != nil) {
		return fmt.Errorf("%w: opening zip: %w", ErrExtractionFailed, err)
	}
	defer r.Close()

	for _, f := range r.File {
		dest, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
			}
			continue
		}

		if err := writeZipEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: opening entry %s: %w", ErrExtractionFailed, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o600) //nolint:gosec // dest checked by safeJoin
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if _, err := io.Copy(out, rc); err != nil { //nolint:gosec // archives come from a configured release URL
		_ = out.Close()
		return fmt.Errorf("%w: writing %s: %w", ErrExtractionFailed, f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return nil
}
