// Package strings normalizes free-text lists such as organ preferences and
// allergies before they are parsed or stored.
package strings

import (
	"strings"
)

// NormalizeList lowercases each value, collapses runs of whitespace to a
// single space and drops empties and repeats. First occurrence wins.
//
//	NormalizeList([]string{" Kidney", "kidney ", "Bone   Marrow", ""})
//	// []string{"kidney", "bone marrow"}
func NormalizeList(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.Join(strings.Fields(v), " "))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
