package options

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// DefaultPropertyFile is read from the working directory when no
// NATS_PROPERTY_FILE is configured.
const DefaultPropertyFile = "nats.properties"

// ParseProperties reads KEY=value lines. Blank lines and lines starting with
// '#' or '!' are skipped. Keys are normalised, values trimmed and stripped
// of one pair of surrounding quotes. An unknown key fails the whole parse.
func ParseProperties(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}

		name, value, _ := strings.Cut(line, "=")
		k, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("line %d: %w: %q", lineNo, ErrUnknownKey, strings.TrimSpace(name))
		}
		out[k.Name] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading properties: %w", err)
	}
	return out, nil
}

// LoadProperties parses the property file at path. A missing file yields
// an empty map and no error.
func LoadProperties(path string) (map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from fixture configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("opening property file: %w", err)
	}
	defer f.Close()

	values, err := ParseProperties(f)
	if err != nil {
		return nil, fmt.Errorf("property file %s: %w", path, err)
	}
	return values, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
