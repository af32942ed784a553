package options

// Source identifies the configuration layer that supplied a value.
// Later constants take precedence over earlier ones.
type Source int

const (
	SourceDefault Source = iota
	SourceEnv
	SourceFile
	SourceExplicit
)

// String returns the upper-case layer name.
func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "DEFAULT"
	case SourceEnv:
		return "ENVIRONMENT"
	case SourceFile:
		return "FILE"
	case SourceExplicit:
		return "EXPLICIT"
	default:
		return "UNKNOWN"
	}
}

// Value is a resolved configuration value and the layer it came from.
type Value struct {
	Raw    string `json:"value"`
	Source Source `json:"source"`
}

// Update replaces the value when src has at least the precedence of the
// current source. It reports whether the value changed hands.
func (v *Value) Update(src Source, raw string) bool {
	if src < v.Source {
		return false
	}
	v.Raw = raw
	v.Source = src
	return true
}
