package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NowFunc returns the current time in UTC. Replace in tests to freeze time.
var NowFunc = func() time.Time { return time.Now().UTC() }

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// NewID returns a new random entity identifier.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether s looks like an identifier produced by NewID.
func IsID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Contains reports whether list holds s.
func Contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
