package payment

import (
	"strconv"
	"strings"
)

const (
	// PhoneDigits is the exact length of a valid phone number.
	PhoneDigits = 11
	// MinAmount and MaxAmount bound a valid payment amount, inclusive.
	MinAmount = 1
	MaxAmount = 1000
)

// digitsOnly drops every rune that is not an ASCII decimal digit.
func digitsOnly(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// NormalizePhone strips non-digits and keeps at most the first 11 digits.
func NormalizePhone(raw string) string {
	d := digitsOnly(raw)
	if len(d) > PhoneDigits {
		d = d[:PhoneDigits]
	}
	return d
}

// NormalizeAmount strips non-digits. Length is not limited here; range is
// checked at submit time.
func NormalizeAmount(raw string) string {
	return digitsOnly(raw)
}

// ValidPhone reports whether phone holds exactly 11 digits once non-digits
// are removed. The leading digit is not checked.
func ValidPhone(phone string) bool {
	return len(digitsOnly(phone)) == PhoneDigits
}

// ValidAmount reports whether amount parses as a base-10 integer in
// [MinAmount, MaxAmount]. Empty input does not parse.
func ValidAmount(amount string) bool {
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		// overflow still means "too large"
		return false
	}
	return n >= MinAmount && n <= MaxAmount
}
