package query

import (
	"fmt"
	"regexp"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)*$`)
var projectionRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_$]*\.)*([A-Za-z_][A-Za-z0-9_$]*|\*)$`)

// ValidIdentifier reports whether s is a plain or dotted SQL identifier safe
// to interpolate into a statement.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

func checkIdentifier(kind, s string) error {
	if !ValidIdentifier(s) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, s)
	}
	return nil
}
