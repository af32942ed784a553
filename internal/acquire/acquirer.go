package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrad567/natsfixture/internal/archive"
)

// CandidateSuffixes are tried in order after the primary download fails.
var CandidateSuffixes = []string{".zip", ".tar.gz", ".tgz", ".tar"}

// archiveSuffixes are stripped from a URL before candidates are built.
// Longest first so ".tar.gz" wins over ".gz".
var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar", ".zip", ".gz"}

// binaryMode is applied to the binary once it is in place.
const binaryMode = 0o755

// Logger defines the logging interface for the acquirer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ExtractFunc unpacks an archive to a target binary path.
type ExtractFunc func(archivePath, targetPath string) (string, error)

// Result describes how a binary was made available.
type Result struct {
	Path       string        `json:"path"`
	Downloaded bool          `json:"downloaded"`
	SourceURL  string        `json:"source_url,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Acquirer makes sure a server binary exists on disk, downloading and
// unpacking it when needed.
type Acquirer struct {
	client  *http.Client
	extract ExtractFunc
	logger  Logger
}

// New creates an Acquirer. A nil client gets a default client that also
// understands file:// URLs.
func New(client *http.Client) *Acquirer {
	if client == nil {
		client = DefaultClient()
	}
	return &Acquirer{
		client:  client,
		extract: archive.Extract,
		logger:  noopLogger{},
	}
}

// DefaultClient returns an HTTP client with a file:// transport registered.
func DefaultClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &http.Client{Transport: t, Timeout: 5 * time.Minute}
}

// SetLogger sets the logger for the acquirer.
func (a *Acquirer) SetLogger(logger Logger) {
	a.logger = logger
}

// SetExtractor replaces the archive extractor.
func (a *Acquirer) SetExtractor(fn ExtractFunc) {
	a.extract = fn
}

// EnsureBinary returns immediately when binaryPath exists. Otherwise it
// downloads rawURL to <binaryPath>.zip and extracts it; if that fails, the
// archive suffix is stripped from the URL and each of CandidateSuffixes is
// tried in turn. Downloaded archives are removed after each attempt.
func (a *Acquirer) EnsureBinary(ctx context.Context, rawURL, binaryPath string) (Result, error) {
	if fileExists(binaryPath) {
		a.logger.Debug("binary present, skipping download", "path", binaryPath)
		return Result{Path: binaryPath}, nil
	}

	if err := os.MkdirAll(filepath.Dir(binaryPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("creating binary directory: %w", err)
	}

	start := time.Now()
	var errs []error

	source := rawURL
	err := a.attempt(ctx, rawURL, binaryPath+".zip", binaryPath)
	if err != nil {
		errs = append(errs, err)
		a.logger.Warn("primary download failed, trying alternatives", "url", rawURL, "error", err)

		base := StripArchiveSuffix(rawURL)
		for _, suffix := range CandidateSuffixes {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			candidate := base + suffix
			if err := a.attempt(ctx, candidate, binaryPath+suffix, binaryPath); err != nil {
				a.logger.Debug("download candidate failed", "url", candidate, "error", err)
				errs = append(errs, err)
				continue
			}
			source = candidate
			errs = nil
			break
		}
	}

	if !fileExists(binaryPath) {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrAllCandidatesFailed, rawURL, errors.Join(errs...))
	}

	if err := os.Chmod(binaryPath, binaryMode); err != nil {
		a.logger.Warn("failed to mark binary executable", "path", binaryPath, "error", err)
	}

	res := Result{
		Path:       binaryPath,
		Downloaded: true,
		SourceURL:  source,
		Duration:   time.Since(start),
	}
	a.logger.Info("binary downloaded", "url", source, "path", binaryPath, "duration", res.Duration)
	return res, nil
}

// attempt downloads one candidate and extracts it. The archive file is
// removed whatever the outcome.
func (a *Acquirer) attempt(ctx context.Context, rawURL, archivePath, binaryPath string) error {
	defer os.Remove(archivePath)

	if err := a.Download(ctx, rawURL, archivePath); err != nil {
		return err
	}
	if _, err := a.extract(archivePath, binaryPath); err != nil {
		return fmt.Errorf("extracting %s: %w", filepath.Base(archivePath), err)
	}
	return nil
}

// Download fetches rawURL into dest. A partially written dest is removed
// on failure.
func (a *Acquirer) Download(ctx context.Context, rawURL, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", rawURL, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrHTTPStatus, rawURL, resp.StatusCode)
	}

	f, err := os.Create(dest) //nolint:gosec // dest derives from the configured binary path
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	a.logger.Debug("download complete", "url", rawURL, "bytes", n)
	return nil
}

// StripArchiveSuffix removes one known archive suffix from a URL.
func StripArchiveSuffix(rawURL string) string {
	lower := strings.ToLower(rawURL)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s) {
			return rawURL[:len(rawURL)-len(s)]
		}
	}
	return rawURL
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
