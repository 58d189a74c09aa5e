package enums

import (
	"fmt"
	"slices"
)

// member and parse back the IsValid and Parse helpers of every string enum in
// this package, so the value lists stay the single source of truth.
func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

func parse[T ~string](set []T, kind, raw string) (T, error) {
	if v := T(raw); member(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
