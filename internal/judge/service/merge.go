package service

import "strings"

// MergeCode wraps userCode with an optional harness. Non-empty blocks are
// trimmed and joined by one blank line in top, user, bottom order. Without
// any harness userCode is returned byte for byte.
func MergeCode(topCode, userCode, bottomCode string) string {
	top := strings.TrimSpace(topCode)
	bottom := strings.TrimSpace(bottomCode)
	if top == "" && bottom == "" {
		return userCode
	}

	parts := make([]string, 0, 3)
	for _, block := range []string{top, strings.TrimSpace(userCode), bottom} {
		if block != "" {
			parts = append(parts, block)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}
