package domain

import "strings"

// NormalizeAddress collapses whitespace so equivalent addresses compare equal.
func NormalizeAddress(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
