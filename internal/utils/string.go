package utils

import (
	"regexp"
	"strings"
)

// NormalizeEmailSubject removes prefixes like Re:, Fwd:, etc. from a subject
func NormalizeEmailSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	prefixRegex := regexp.MustCompile(`(?i)^(Re|Fwd|Fw)(\[\d+\])?:\s*`)
	for prefixRegex.MatchString(subject) {
		subject = prefixRegex.ReplaceAllString(subject, "")
		subject = strings.TrimSpace(subject)
	}
	return subject
}

// ExtractDisplayName pulls the display name out of "Name <addr@host>" headers
func ExtractDisplayName(address string) string {
	if idx := strings.Index(address, "<"); idx > 0 {
		return strings.TrimSpace(address[:idx])
	}
	return strings.TrimSpace(address)
}

// ExtractAddress pulls the bare address out of "Name <addr@host>" headers
func ExtractAddress(address string) string {
	start := strings.Index(address, "<")
	end := strings.Index(address, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(address[start+1 : end])
	}
	return strings.TrimSpace(address)
}
