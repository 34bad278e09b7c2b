package identity

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/daybook-app/daybook/internal/fault"
)

// CanonicalEmail normalizes an email address to its stored form: trimmed,
// NFC-normalized, lowercased. Two addresses that differ only in case or
// Unicode composition map to the same row.
func CanonicalEmail(raw string) (string, error) {
	email := strings.ToLower(norm.NFC.String(strings.TrimSpace(raw)))
	if email == "" {
		return "", fault.Input("email must not be empty")
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", fault.Input("malformed email %q", raw)
	}
	return email, nil
}
