// Package phone normalizes WhatsApp sender identifiers into the single key used
// to index conversational state.
package phone

import "strings"

const brazilCountryCode = "55"

// Canonicalize returns the digits-only lookup key for a raw sender string.
//
// Brazilian numbers arrive both with and without the country code and, for
// older accounts, without the mobile "9" after the area code. All of those
// forms converge on the 11 digit national form (area code + 9 + subscriber).
// Anything else is returned as its digits.
func Canonicalize(raw string) string {
	digits := digitsOnly(raw)

	switch {
	case len(digits) == 13 && strings.HasPrefix(digits, brazilCountryCode):
		return digits[2:]
	case len(digits) == 12 && strings.HasPrefix(digits, brazilCountryCode):
		national := digits[2:]
		return national[:2] + "9" + national[2:]
	default:
		return digits
	}
}

// International renders a canonical key back into the E.164 digits expected by
// the WhatsApp Graph API.
func International(key string) string {
	if len(key) == 11 {
		return brazilCountryCode + key
	}
	return key
}

func digitsOnly(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
