// Package redact masks secret-bearing header values for display.
// It never touches the values that go on the wire.
package redact

import (
	"strings"
)

const (
	mask      = "****"
	suffixLen = 4
)

// Rule masks a header value.
type Rule func(value string) string

// rules maps lower-cased header names to their masking rule.
var rules = map[string]Rule{
	"authorization": Authorization,
	"x-user-auth":   MaskToken,
}

// importantPrefixes are header-name prefixes worth highlighting in the console.
var importantPrefixes = []string{"x-user-", "x-channel-", "x-app-", "x-api-"}

// MaskToken replaces all but the last four characters with "****".
// Tokens of four characters or fewer are masked entirely.
func MaskToken(token string) string {
	r := []rune(token)
	if len(r) <= suffixLen {
		return mask
	}
	return mask + string(r[len(r)-suffixLen:])
}

// Authorization keeps the scheme and masks the credential. A value without
// a scheme is masked as a whole.
func Authorization(value string) string {
	scheme, credential, ok := strings.Cut(value, " ")
	if !ok || scheme == "" {
		return MaskToken(value)
	}
	return scheme + " " + MaskToken(credential)
}

// Header returns the display form of a header value.
func Header(name, value string) string {
	if rule, ok := rules[strings.ToLower(name)]; ok {
		return rule(value)
	}
	return value
}

// Sensitive reports whether the header has a masking rule.
func Sensitive(name string) bool {
	_, ok := rules[strings.ToLower(name)]
	return ok
}

// Important reports whether a header deserves emphasis in the console.
func Important(name string) bool {
	lower := strings.ToLower(name)
	if lower == "authorization" || lower == "content-type" {
		return true
	}
	for _, p := range importantPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
