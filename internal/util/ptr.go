package util

import "strings"

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *p, or the zero value for a nil p
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Optional trims s and returns nil when nothing is left.
// Optional listing fields (address, opening hours) are nil when not given.
func Optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
