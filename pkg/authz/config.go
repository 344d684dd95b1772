package authz

import (
	"fmt"
	"strings"
)

// ParseType maps a configured backend name ("none", "sentry") to its Type.
// Matching is case-insensitive; an empty string selects TypeNone.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(TypeNone):
		return TypeNone, nil
	case string(TypeSentry):
		return TypeSentry, nil
	default:
		return "", fmt.Errorf("unknown authorization backend %q (expected none or sentry)", s)
	}
}
