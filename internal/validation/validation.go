package validation

import (
	"errors"
	"strings"
)

// MaxSourceKeyLength bounds the {source} path segment.
const MaxSourceKeyLength = 32

// ErrSourceKeyEmpty is returned when the source key is empty after trim.
var ErrSourceKeyEmpty = errors.New("source key is required")

// ErrSourceKeyTooLong is returned when the source key exceeds MaxSourceKeyLength.
var ErrSourceKeyTooLong = errors.New("source key too long")

// ErrSourceKeyInvalidChars is returned when the source key contains disallowed characters.
var ErrSourceKeyInvalidChars = errors.New("source key contains invalid characters")

// ValidateSourceKey trims and lowercases the input and restricts it to ASCII letters,
// digits, hyphen and underscore. Returns the normalized key or an error suitable for 400
// responses. Whether the key is configured is left to the service layer.
func ValidateSourceKey(input string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", ErrSourceKeyEmpty
	}
	if len(s) > MaxSourceKeyLength {
		return "", ErrSourceKeyTooLong
	}
	for _, c := range s {
		if !isAllowedKeyRune(c) {
			return "", ErrSourceKeyInvalidChars
		}
	}
	return s, nil
}

func isAllowedKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
