package featureflags

import (
	"os"
	"strings"
)

// Known flags.
const (
	// Registration opens POST /api/auth/register.
	Registration = "registration"
)

// Set resolves flags from a key lookup, normally the process environment.
type Set struct {
	getenv func(string) string
}

// FromEnv reads flags from env as FLAG_<NAME>=true/1/yes/on (case-insensitive).
func FromEnv() *Set {
	return &Set{getenv: os.Getenv}
}

// FromMap resolves flags from m, keyed like the environment (FLAG_<NAME>).
func FromMap(m map[string]string) *Set {
	return &Set{getenv: func(k string) string { return m[k] }}
}

// Enabled returns true if the named flag is switched on.
func (s *Set) Enabled(name string) bool {
	if s == nil {
		return false
	}
	v := s.getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Enabled returns true if a flag is enabled via environment variable.
func Enabled(name string) bool {
	return FromEnv().Enabled(name)
}
