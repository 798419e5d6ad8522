package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxIntentLength       = 64
	MaxMessageLength      = 4096
	MaxSearchLength       = 256
	MaxNameLength         = 256
	MaxProfileFieldLength = 50000 // knowledge base and instructions
)

var intentPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidIntentName checks if an intent label is safe (lowercase, digits, underscore)
func ValidIntentName(s string) bool {
	if s == "" || len(s) > MaxIntentLength {
		return false
	}
	return intentPattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

// TruncateString truncates to at most maxLen bytes without splitting a rune
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
