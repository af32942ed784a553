package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Format is an archive container type.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTarGz
	FormatTar
	FormatGzip
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTarGz:
		return "tar.gz"
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "gz"
	default:
		return "unknown"
	}
}

// DetectFormat maps a file name to its archive format by suffix.
func DetectFormat(path string) Format {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	case strings.HasSuffix(name, ".gz"):
		return FormatGzip
	default:
		return FormatUnknown
	}
}

// Extract unpacks archivePath and copies its largest regular file to
// targetPath, creating parent directories and replacing any existing file.
// It returns targetPath on success. Temporary files are always removed.
func Extract(archivePath, targetPath string) (string, error) {
	format := DetectFormat(archivePath)
	if format == FormatUnknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(archivePath))
	}

	workDir, err := os.MkdirTemp("", "natsfixture-unpack-*")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp dir: %w", ErrExtractionFailed, err)
	}
	defer os.RemoveAll(workDir)

	switch format {
	case FormatZip:
		err = extractZip(archivePath, workDir)
	case FormatTarGz:
		err = extractTarGz(archivePath, workDir)
	case FormatTar:
		err = extractTarFile(archivePath, workDir)
	case FormatGzip:
		err = extractGzip(archivePath, workDir)
	}
	if err != nil {
		return "", err
	}

	largest, err := largestFile(workDir)
	if err != nil {
		return "", err
	}

	if err := copyAtomic(largest, targetPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return targetPath, nil
}

// extractTarGz inflates to an intermediate tar file, then reads that.
func extractTarGz(src, dir string) error {
	tmp, err := os.CreateTemp("", "natsfixture-*.tar")
	if err != nil {
		return fmt.Errorf("%w: creating temp tar: %w", ErrExtractionFailed, err)
	}
	tarPath := tmp.Name()
	defer os.Remove(tarPath)

	if err := gunzipTo(src, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp tar: %w", ErrExtractionFailed, err)
	}
	return extractTarFile(tarPath, dir)
}

func extractTarFile(src, dir string) error {
	f, err := os.Open(src) //nolint:gosec // archive path is produced by the acquirer
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	defer f.Close()
	return untar(f, dir)
}

// extractGzip inflates a single-member gzip file to <name minus .gz>.
func extractGzip(src, dir string) error {
	base := filepath.Base(src)
	name := base[:len(base)-len(".gz")]
	if name == "" {
		name = "unpacked"
	}

	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	if err := gunzipTo(src, out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return nil
}

func gunzipTo(src string, w io.Writer) error {
	f, err := os.Open(src) //nolint:gosec // archive path is produced by the acquirer
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: reading gzip header: %w", ErrExtractionFailed, err)
	}
	defer zr.Close()

	if _, err := io.Copy(w, zr); err != nil { //nolint:gosec // archives come from a configured release URL
		return fmt.Errorf("%w: inflating: %w", ErrExtractionFailed, err)
	}
	return nil
}

// safeJoin resolves name inside dir and rejects anything outside it.
func safeJoin(dir, name string) (string, error) {
	dest := filepath.Join(dir, name)
	root := filepath.Clean(dir)
	if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrMaliciousEntry, name)
	}
	return dest, nil
}

// largestFile walks dir and returns the biggest regular file.
// Ties go to the first file in lexical walk order.
func largestFile(dir string) (string, error) {
	var best string
	var bestSize int64 = -1

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > bestSize {
			best, bestSize = path, info.Size()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: scanning extracted files: %w", ErrExtractionFailed, err)
	}
	if best == "" {
		return "", ErrEmptyArchive
	}
	return best, nil
}

// copyAtomic writes src to a sibling temp file of dst and renames it into
// place, so readers never observe a half-written binary.
func copyAtomic(src, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating target dir: %w", err)
	}

	in, err := os.Open(src) //nolint:gosec // src is inside our private temp dir
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp target: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copying binary: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}

	if info, statErr := in.Stat(); statErr == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm()|0o600)
	}

	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	return nil
}
