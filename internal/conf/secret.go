// secret.go: redacting wrapper for sensitive configuration values
package conf

import "crypto/subtle"

// Secret holds a sensitive configuration value such as an API key or token.
// It formats and JSON-marshals as a redaction marker so secrets cannot leak
// through logs or API responses by accident. YAML marshaling keeps the real
// value so saving the configuration file round-trips.
type Secret string

const redactedMarker = "[REDACTED]"

// String implements fmt.Stringer and always redacts.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redactedMarker
}

// GoString implements fmt.GoStringer so %#v also redacts.
func (s Secret) GoString() string {
	return s.String()
}

// Value returns the underlying secret for use at the call site that
// actually needs it.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a value has been configured.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON redacts the value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + redactedMarker + `"`), nil
}

// MarshalYAML returns the real value so config saves do not destroy secrets.
func (s Secret) MarshalYAML() (any, error) {
	return string(s), nil
}

// constantTimeEquals compares two strings without leaking the length of a
// common prefix through timing.
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
