package options

import "errors"

var (
	// ErrUnknownKey is returned when a name does not match any registered key.
	ErrUnknownKey = errors.New("unknown config key")

	// ErrTypeMismatch is returned when a stored value cannot be read as the key's kind.
	ErrTypeMismatch = errors.New("config value type mismatch")

	// ErrNotSet is returned by typed getters when no layer supplied a value.
	ErrNotSet = errors.New("config value not set")
)
