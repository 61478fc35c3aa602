// Package util holds small string helpers shared across packages.
package util

// Truncate clips s to max runes and appends "..." when anything was cut.
// Counting runes instead of bytes keeps multi-byte characters intact.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// TruncateExact clips s to exactly max runes with no ellipsis. Used for
// varchar field limits, where the stored value must fit the column.
func TruncateExact(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
