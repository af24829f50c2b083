package payment_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/topup/internal/payment"
)

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func TestNormalizePhoneProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("phone output is digits only and at most 11 long", prop.ForAll(
		func(raw string) bool {
			out := payment.NormalizePhone(raw)
			return isDigits(out) && len(out) <= payment.PhoneDigits
		},
		gen.AnyString(),
	))

	properties.Property("phone policy is idempotent", prop.ForAll(
		func(raw string) bool {
			once := payment.NormalizePhone(raw)
			return payment.NormalizePhone(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("phone keeps a prefix of the digits", prop.ForAll(
		func(raw string) bool {
			all := payment.NormalizeAmount(raw)
			return strings.HasPrefix(all, payment.NormalizePhone(raw))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestNormalizeAmountProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("amount output is digits only", prop.ForAll(
		func(raw string) bool {
			return isDigits(payment.NormalizeAmount(raw))
		},
		gen.AnyString(),
	))

	properties.Property("amount policy is idempotent", prop.ForAll(
		func(raw string) bool {
			once := payment.NormalizeAmount(raw)
			return payment.NormalizeAmount(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("amount digits are never truncated", prop.ForAll(
		func(digits string) bool {
			return payment.NormalizeAmount(digits) == digits
		},
		gen.NumString(),
	))

	properties.TestingRun(t)
}

func TestValidAmountRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("amount is valid iff within 1..1000", prop.ForAll(
		func(n int) bool {
			valid := payment.ValidAmount(strconv.Itoa(n))
			return valid == (n >= payment.MinAmount && n <= payment.MaxAmount)
		},
		gen.IntRange(-50, 5000),
	))

	properties.TestingRun(t)
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"":                      "",
		"+7 (999) 123-45-67":    "79991234567",
		"8 999 123 45 67 89 00": "89991234567",
		"abc":                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, payment.NormalizePhone(in), "input %q", in)
	}
}

func TestNormalizeAmount(t *testing.T) {
	assert.Equal(t, "500", payment.NormalizeAmount("5 0 0 ₽"))
	assert.Equal(t, "123456789012345", payment.NormalizeAmount("123456789012345"))
	assert.Equal(t, "", payment.NormalizeAmount("rub"))
}

func TestValidPhone(t *testing.T) {
	assert.True(t, payment.ValidPhone("71234567890"))
	assert.True(t, payment.ValidPhone("01234567890"))
	assert.False(t, payment.ValidPhone("7123"))
	assert.False(t, payment.ValidPhone(""))
	assert.False(t, payment.ValidPhone("712345678901"))
}

func TestValidAmount(t *testing.T) {
	cases := map[string]bool{
		"0":    false,
		"1":    true,
		"500":  true,
		"1000": true,
		"1001": false,
		"":     false,
		"0001": true,
		" 5":   false,
	}
	for in, want := range cases {
		assert.Equal(t, want, payment.ValidAmount(in), "input %q", in)
	}
	assert.False(t, payment.ValidAmount("99999999999999999999999"))
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, payment.OutcomeSuccess, payment.OutcomeFor(0, 0.5))
	assert.Equal(t, payment.OutcomeSuccess, payment.OutcomeFor(0.4999, 0.5))
	assert.Equal(t, payment.OutcomeFailure, payment.OutcomeFor(0.5, 0.5))
	assert.Equal(t, payment.OutcomeFailure, payment.OutcomeFor(0.99, 0.5))
}

func TestSeededSimulatorIsReproducible(t *testing.T) {
	a := payment.NewSeededSimulator(0.5, 42)
	b := payment.NewSeededSimulator(0.5, 42)
	for i := 0; i < 32; i++ {
		assert.Equal(t, a.Draw(), b.Draw())
	}
	always := payment.NewSeededSimulator(1, 7)
	never := payment.NewSeededSimulator(0, 7)
	for i := 0; i < 16; i++ {
		assert.Equal(t, payment.OutcomeSuccess, always.Draw())
		assert.Equal(t, payment.OutcomeFailure, never.Draw())
	}
}
