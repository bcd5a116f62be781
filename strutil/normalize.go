// Package strutil holds the string normalization shared by selection and period code.
package strutil

import "strings"

// NormalizeUpper trims surrounding whitespace and converts to upper case.
// Use for period keys ("2025-q3" and "2025-Q3" name the same quarter).
func NormalizeUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// NormalizeLower trims surrounding whitespace and converts to lower case.
// Use for entity ids and enum values such as payback status.
func NormalizeLower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// FirstNonEmpty returns the first value that is not blank, trimmed.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
