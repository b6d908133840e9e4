// Package strings holds small helpers for list-valued settings.
package strings

import "strings"

// SplitList splits a comma separated value, trims each entry and drops empty
// and repeated entries. The first occurrence wins, so order is kept.
//
//	SplitList(" k1:9092,k2:9092,, k1:9092")
//	// []string{"k1:9092", "k2:9092"}
func SplitList(v string) []string {
	return DedupeAndTrim(strings.Split(v, ","))
}

// DedupeAndTrim trims every element and drops empty and duplicate ones.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
