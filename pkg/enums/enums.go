// Package enums holds the closed string sets persisted in the database and
// carried in tokens and events.
package enums

import (
	"fmt"
	"slices"
)

func known[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

func parse[T ~string](set []T, kind, value string) (T, error) {
	if v := T(value); known(set, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
