// Package period orders reporting period keys and finds the comparison period.
//
// Keys are compared as calendar values when every key parses (YYYY-Qn,
// YYYY-Hn, YYYY-MM or YYYY). Mixed or unknown formats fall back to descending
// lexicographic order, which matches calendar order for zero-padded keys.
package period

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"qbrreport/strutil"
)

var keyPattern = regexp.MustCompile(`^(\d{4})(?:-?(Q[1-4]|H[12]|\d{2}))?$`)

// ParseKey converts a period key into a month ordinal (year*12 + last month
// of the period) so quarters, halves, months and years can be compared.
func ParseKey(key string) (int, bool) {
	m := keyPattern.FindStringSubmatch(strutil.NormalizeUpper(key))
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	endMonth := 12
	switch part := m[2]; {
	case part == "":
	case part[0] == 'Q':
		endMonth = int(part[1]-'0') * 3
	case part[0] == 'H':
		endMonth = int(part[1]-'0') * 6
	default:
		month, err := strconv.Atoi(part)
		if err != nil || month < 1 || month > 12 {
			return 0, false
		}
		endMonth = month
	}
	return year*12 + endMonth, true
}

// Sorted returns a copy of keys ordered most recent first.
func Sorted(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	ordinals := make(map[string]int, len(out))
	calendar := true
	for _, k := range out {
		ord, ok := ParseKey(k)
		if !ok {
			calendar = false
			break
		}
		ordinals[k] = ord
	}
	if !calendar {
		sort.Sort(sort.Reverse(sort.StringSlice(out)))
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := ordinals[out[i]], ordinals[out[j]]
		if oi != oj {
			return oi > oj
		}
		return out[i] > out[j]
	})
	return out
}

// Previous returns the key immediately preceding current. The second return
// is false when keys is empty, current is absent, or current is the oldest
// period; callers treat that as "no comparison possible".
func Previous(keys []string, current string) (string, bool) {
	want := strutil.NormalizeUpper(current)
	if want == "" {
		return "", false
	}
	sorted := Sorted(keys)
	for i, k := range sorted {
		if strutil.NormalizeUpper(k) != want {
			continue
		}
		if i+1 >= len(sorted) {
			return "", false
		}
		return sorted[i+1], true
	}
	return "", false
}

// Label renders a key for display: 2025-Q3 becomes "Q3 2025", 2025-07
// becomes "Jul 2025". Unknown formats are returned unchanged.
func Label(key string) string {
	m := keyPattern.FindStringSubmatch(strutil.NormalizeUpper(key))
	if m == nil {
		return key
	}
	switch part := m[2]; {
	case part == "":
		return m[1]
	case part[0] == 'Q' || part[0] == 'H':
		return fmt.Sprintf("%s %s", part, m[1])
	default:
		month, err := strconv.Atoi(part)
		if err != nil || month < 1 || month > 12 {
			return key
		}
		return fmt.Sprintf("%s %s", time.Month(month).String()[:3], m[1])
	}
}
