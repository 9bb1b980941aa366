package common

import (
	"strings"
)

// ToLowerWithTrim normalizes user-supplied config tokens for lookup.
func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
