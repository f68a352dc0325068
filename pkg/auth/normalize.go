package auth

import (
	"regexp"
	"strings"
)

// unsafeIdentifierChars matches everything outside word characters, '@', '.' and '-'
var unsafeIdentifierChars = regexp.MustCompile(`[^\w@.\-]`)

// NormalizeIdentifier returns the canonical form of a username or email:
// trimmed, lower-cased, with unsafe characters removed.
// The same function is used at signup and login so both resolve to one key.
func NormalizeIdentifier(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	return unsafeIdentifierChars.ReplaceAllString(s, "")
}
