package options

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Store holds the resolved configuration of one fixture instance.
//
// Every write goes through Value.Update, so a layer can only overwrite
// values that came from the same or a lower layer. Re-applying a layer is
// therefore idempotent.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[string]Value
}

// NewStore creates an empty store. Call ApplyDefaults to seed it.
func NewStore() *Store {
	return &Store{values: make(map[string]Value)}
}

func (s *Store) update(src Source, k Key, raw string) bool {
	if raw == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[k.Name]
	if !ok {
		s.values[k.Name] = Value{Raw: raw, Source: src}
		return true
	}
	changed := v.Update(src, raw)
	s.values[k.Name] = v
	return changed
}

// SetDefault records a DEFAULT-layer value.
func (s *Store) SetDefault(k Key, value string) bool { return s.update(SourceDefault, k, value) }

// SetFromEnv records an ENVIRONMENT-layer value.
func (s *Store) SetFromEnv(k Key, value string) bool { return s.update(SourceEnv, k, value) }

// SetFromFile records a FILE-layer value.
func (s *Store) SetFromFile(k Key, value string) bool { return s.update(SourceFile, k, value) }

// SetExplicit records an EXPLICIT-layer value. It always wins.
func (s *Store) SetExplicit(k Key, value string) bool { return s.update(SourceExplicit, k, value) }

// Set records a value for the key with the given name.
// Unknown names fail with ErrUnknownKey.
func (s *Store) Set(src Source, name, value string) error {
	k, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	s.update(src, k, value)
	return nil
}

// SetPairs records alternating name/value pairs, e.g.
// SetPairs(SourceExplicit, "port", "4223", "jetstream", "true").
// Nothing is written when any name is unknown.
func (s *Store) SetPairs(src Source, kv ...string) error {
	if len(kv)%2 != 0 {
		return fmt.Errorf("odd number of arguments: %d", len(kv))
	}
	keys := make([]Key, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := Lookup(kv[i])
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKey, kv[i])
		}
		keys = append(keys, k)
	}
	for i, k := range keys {
		s.update(src, k, kv[2*i+1])
	}
	return nil
}

// Get returns the raw value of the key.
func (s *Store) Get(k Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k.Name]
	return v.Raw, ok
}

// String returns the raw value or "" when unset.
func (s *Store) String(k Key) string {
	v, _ := s.Get(k)
	return v
}

// Source reports which layer supplied the current value.
func (s *Store) Source(k Key) (Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k.Name]
	return v.Source, ok
}

// Int returns the value parsed as a decimal integer.
func (s *Store) Int(k Key) (int, error) {
	raw, ok := s.Get(k)
	if !ok {
		return 0, fmt.Errorf("%s: %w", k.Name, ErrNotSet)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrTypeMismatch, k.Name, raw)
	}
	return n, nil
}

// Bool returns the value parsed as a boolean.
func (s *Store) Bool(k Key) (bool, error) {
	raw, ok := s.Get(k)
	if !ok {
		return false, fmt.Errorf("%s: %w", k.Name, ErrNotSet)
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrTypeMismatch, k.Name, raw)
	}
	return b, nil
}

// URL returns the value parsed as an absolute URL.
func (s *Store) URL(k Key) (*url.URL, error) {
	raw, ok := s.Get(k)
	if !ok {
		return nil, fmt.Errorf("%s: %w", k.Name, ErrNotSet)
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %s=%q is not a URL", ErrTypeMismatch, k.Name, raw)
	}
	return u, nil
}

// Typed returns the value converted to the key's declared kind:
// int, bool, *url.URL or string (for string and path keys).
func (s *Store) Typed(k Key) (any, error) {
	switch k.Kind {
	case KindInt:
		return s.Int(k)
	case KindBool:
		return s.Bool(k)
	case KindURL:
		return s.URL(k)
	default:
		raw, ok := s.Get(k)
		if !ok {
			return nil, fmt.Errorf("%s: %w", k.Name, ErrNotSet)
		}
		return raw, nil
	}
}

// ApplyDefaults writes every registered default at DEFAULT precedence.
func (s *Store) ApplyDefaults() {
	for _, k := range registry {
		s.SetDefault(k, k.Default)
	}
}

// ApplyEnv reads every key's environment variable through lookup
// (normally os.LookupEnv) at ENVIRONMENT precedence.
func (s *Store) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	for _, k := range registry {
		if v, ok := lookup(EnvName(k)); ok {
			s.SetFromEnv(k, v)
		}
	}
}

// ApplyFile writes name/value pairs at FILE precedence. Any unknown name
// fails the whole batch and nothing is written.
func (s *Store) ApplyFile(values map[string]string) error {
	resolved := make(map[Key]string, len(values))
	for name, v := range values {
		k, ok := Lookup(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKey, name)
		}
		resolved[k] = v
	}
	for k, v := range resolved {
		s.SetFromFile(k, v)
	}
	return nil
}

// Snapshot returns a copy of every stored value keyed by name.
func (s *Store) Snapshot() map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Value, len(s.values))
	for name, v := range s.values {
		out[name] = v
	}
	return out
}
