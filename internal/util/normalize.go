package util

import (
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[\p{L}\p{M}\p{N}_.-]+@[\p{L}\p{M}\p{N}_.-]+\.[A-Za-z]+`)
	unsafeLabelCh = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// ExtractEmail pulls the first address out of a raw cell value.
// - Accepts display forms like "John <john.doe@example.com>"
// - Returns ok=false for empty input or when nothing address-like is found
// The address is returned as written; no lowercasing or alias stripping.
func ExtractEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	m := emailPattern.FindString(raw)
	if m == "" {
		return "", false
	}
	return m, true
}

// SanitizeLabel makes a label safe for use in a file name.
func SanitizeLabel(label string) string {
	return unsafeLabelCh.ReplaceAllString(label, "_")
}
