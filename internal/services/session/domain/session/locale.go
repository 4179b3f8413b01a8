package session

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// NormalizeLanguage canonicalizes a BCP-47 language tag. Empty input is
// returned unchanged so callers can treat it as "not mentioned".
func NormalizeLanguage(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// NormalizeTimezone validates an IANA time zone name. Empty input is returned
// unchanged so callers can treat it as "not mentioned".
func NormalizeTimezone(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if _, err := time.LoadLocation(value); err != nil {
		return "", err
	}
	return value, nil
}
