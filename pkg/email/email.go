// Package email normalizes sign-in addresses and derives a fallback display
// name for principals who register without one.
package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// Normalize lowercases and trims an address. Lookups and the uniqueness
// constraint both operate on the normalized form.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValid reports whether address is a bare RFC 5322 address.
func IsValid(address string) bool {
	parsed, err := mail.ParseAddress(address)
	return err == nil && parsed.Address == address
}

// DeriveNameFromEmail builds "First Last" from the local part
// ("jane.doe@x" -> "Jane Doe").
func DeriveNameFromEmail(address string) string {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})

	if len(parts) == 0 {
		return "User"
	}

	first := capitalize(parts[0])
	if len(parts) == 1 {
		return first
	}
	return first + " " + capitalize(parts[len(parts)-1])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
