package utils

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@]+)(@)`)

// MaskDSN hides the password segment of a connection string.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

const tokenVisiblePrefix = 4

// MaskToken keeps the first few characters of a credential so log lines can
// be correlated without leaking the value.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= tokenVisiblePrefix*2 {
		return "***"
	}
	return token[:tokenVisiblePrefix] + "***"
}
