package acquire

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Placeholders recognised in download URL templates.
const (
	VersionPlaceholder = "%NATS_VERSION%"
	SystemPlaceholder  = "%NATS_SYSTEM%"
)

// ResolveURL substitutes version and system into a download URL template.
func ResolveURL(template, version, system string) string {
	r := strings.NewReplacer(
		VersionPlaceholder, NormalizeVersion(version),
		SystemPlaceholder, system,
	)
	return r.Replace(template)
}

// NormalizeVersion adds the leading "v" release tags carry.
func NormalizeVersion(version string) string {
	v := strings.TrimSpace(version)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// DefaultSystem returns the release suffix for the running platform,
// e.g. "linux-amd64" or "darwin-arm64".
func DefaultSystem() string {
	return System(runtime.GOOS, runtime.GOARCH)
}

// System maps a Go OS/arch pair to a release suffix.
func System(goos, goarch string) string {
	if goarch == "arm" {
		goarch = "arm7"
	}
	return goos + "-" + goarch
}

// DefaultBinaryPath is where a binary for the given instance, version and
// system lives when no explicit path is configured.
func DefaultBinaryPath(root, name, version, system string) string {
	file := name + "-server-" + NormalizeVersion(version) + "-" + system
	if strings.HasPrefix(system, "windows") {
		file += ".exe"
	}
	return filepath.Join(root, name, file)
}
