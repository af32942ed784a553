package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
	body string
}

var releaseEntries = []entry{
	{name: "nats-server-v2.10.2-linux-amd64/", body: ""},
	{name: "nats-server-v2.10.2-linux-amd64/LICENSE", body: "Apache"},
	{name: "nats-server-v2.10.2-linux-amd64/README.md", body: "readme"},
	{name: "nats-server-v2.10.2-linux-amd64/nats-server", body: "#!/bin/sh\necho this is the biggest file in the archive\n"},
}

const wantBinary = "#!/bin/sh\necho this is the biggest file in the archive\n"

func writeZip(t *testing.T, path string, entries []entry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func tarBytes(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.name,
			Mode:    0o755,
			Size:    int64(len(e.body)),
			ModTime: time.Unix(1700000000, 0),
		}
		if e.name[len(e.name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
			hdr.Size = 0
		} else {
			hdr.Typeflag = tar.TypeReg
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Size > 0 {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// rawTarHeader builds a minimal header block without validating the name.
func rawTarHeader(name string, size int) []byte {
	hdr := make([]byte, blockSize)
	copy(hdr, name)
	copy(hdr[100:], "0000644\x00")
	copy(hdr[sizeStart:], fmt.Sprintf("%011o\x00", size))
	hdr[typeFlagPos] = '0'
	copy(hdr[magicStart:], "ustar\x0000")
	return hdr
}

func TestExtract_Formats(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		write func(t *testing.T, path string)
	}{
		{
			name:  "zip",
			file:  "release.zip",
			write: func(t *testing.T, p string) { writeZip(t, p, releaseEntries) },
		},
		{
			name: "tar.gz",
			file: "release.tar.gz",
			write: func(t *testing.T, p string) {
				require.NoError(t, os.WriteFile(p, gzipBytes(t, tarBytes(t, releaseEntries)), 0o600))
			},
		},
		{
			name: "tgz upper case",
			file: "RELEASE.TGZ",
			write: func(t *testing.T, p string) {
				require.NoError(t, os.WriteFile(p, gzipBytes(t, tarBytes(t, releaseEntries)), 0o600))
			},
		},
		{
			name: "tar",
			file: "release.tar",
			write: func(t *testing.T, p string) {
				require.NoError(t, os.WriteFile(p, tarBytes(t, releaseEntries), 0o600))
			},
		},
		{
			name: "gz",
			file: "nats-server.gz",
			write: func(t *testing.T, p string) {
				require.NoError(t, os.WriteFile(p, gzipBytes(t, []byte(wantBinary)), 0o600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, tt.file)
			tt.write(t, src)

			target := filepath.Join(dir, "out", "bin", "nats-server")
			got, err := Extract(src, target)
			require.NoError(t, err)
			assert.Equal(t, target, got)

			data, err := os.ReadFile(target)
			require.NoError(t, err)
			assert.Equal(t, wantBinary, string(data))
		})
	}
}

func TestExtract_OverwritesTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "release.zip")
	writeZip(t, src, releaseEntries)

	target := filepath.Join(dir, "nats-server")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o600))

	_, err := Extract(src, target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, wantBinary, string(data))
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "archive.unsupported.xyz")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o600))
	target := filepath.Join(dir, "nats-server")

	_, err := Extract(src, target)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.NoFileExists(t, target)
}

func TestExtract_ZipSlip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, []entry{
		{name: "ok.txt", body: "fine"},
		{name: "../../evil.txt", body: "pwned"},
	})

	_, err := Extract(src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrMaliciousEntry)
	assert.NoFileExists(t, filepath.Join(dir, "out"))
}

func TestExtract_TarSlip(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	buf.Write(rawTarHeader("../../evil.txt", 5))
	buf.Write(append([]byte("pwned"), make([]byte, blockSize-5)...))
	buf.Write(make([]byte, 2*blockSize))

	src := filepath.Join(dir, "evil.tar.gz")
	require.NoError(t, os.WriteFile(src, gzipBytes(t, buf.Bytes()), 0o600))

	_, err := Extract(src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrMaliciousEntry)
}

func TestExtract_HandBuiltTarPadding(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	buf.Write(rawTarHeader("small.txt", 3))
	buf.Write(append([]byte("abc"), make([]byte, blockSize-3)...))
	big := bytes.Repeat([]byte("x"), 700)
	buf.Write(rawTarHeader("big.bin", len(big)))
	buf.Write(big)
	buf.Write(make([]byte, 2*blockSize-len(big)))
	buf.Write(make([]byte, 2*blockSize))

	src := filepath.Join(dir, "hand.tar")
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o600))

	target := filepath.Join(dir, "big")
	_, err := Extract(src, target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, big, data)
}

func TestExtract_EmptyArchive(t *testing.T) {
	dir := t.TempDir()

	src := filepath.Join(dir, "empty.tar")
	require.NoError(t, os.WriteFile(src, make([]byte, 2*blockSize), 0o600))
	_, err := Extract(src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrEmptyArchive)

	zsrc := filepath.Join(dir, "dirs-only.zip")
	writeZip(t, zsrc, []entry{{name: "bin/"}})
	_, err = Extract(zsrc, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrEmptyArchive)
}

func TestExtract_CorruptArchive(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"bad.zip", "bad.tar.gz", "bad.gz"} {
		src := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(src, []byte("definitely not an archive"), 0o600))

		_, err := Extract(src, filepath.Join(dir, "out"))
		assert.ErrorIs(t, err, ErrExtractionFailed, name)
	}
}

func TestExtract_CleansTempFiles(t *testing.T) {
	dir := t.TempDir()
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	src := filepath.Join(dir, "release.tar.gz")
	require.NoError(t, os.WriteFile(src, gzipBytes(t, tarBytes(t, releaseEntries)), 0o600))

	_, err := Extract(src, filepath.Join(dir, "nats-server"))
	require.NoError(t, err)

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"a.zip":       FormatZip,
		"a.ZIP":       FormatZip,
		"a.tar.gz":    FormatTarGz,
		"a.tgz":       FormatTarGz,
		"a.tar":       FormatTar,
		"a.gz":        FormatGzip,
		"a.tar.bz2":   FormatUnknown,
		"nats-server": FormatUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, DetectFormat(in), in)
	}
}

func TestParseSize(t *testing.T) {
	n, err := parseSize([]byte("00000001750\x00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	n, err = parseSize([]byte("        \x00\x00\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = parseSize([]byte("0000000009x\x00"))
	assert.Error(t, err)
}
