package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone_ShortAndMissing(t *testing.T) {
	t.Run("EmptyInput", func(t *testing.T) {
		vc := NormalizePhone("", "67")
		assert.False(t, vc.IsValid)
		assert.Equal(t, []RejectReason{ReasonMissing}, vc.RejectReasons)
	})

	t.Run("NonDigitOnlyInput", func(t *testing.T) {
		vc := NormalizePhone("abc-def", "67")
		assert.False(t, vc.IsValid)
		assert.Equal(t, []RejectReason{ReasonMissing}, vc.RejectReasons)
	})

	t.Run("TooShort", func(t *testing.T) {
		vc := NormalizePhone("123", "67")
		assert.False(t, vc.IsValid)
		assert.Equal(t, []RejectReason{ReasonTooShort}, vc.RejectReasons)
		// The would-be address is still composed for diagnostics.
		assert.Equal(t, "55123@c.us", vc.NetworkAddress)
	})

	t.Run("SevenDigitsStillTooShort", func(t *testing.T) {
		vc := NormalizePhone("9123456", "67")
		assert.False(t, vc.IsValid)
		assert.Contains(t, vc.RejectReasons, ReasonTooShort)
	})
}

func TestNormalizePhone_AreaCodeDefault(t *testing.T) {
	t.Run("EightDigitsGetAreaCode", func(t *testing.T) {
		vc := NormalizePhone("91234567", "67")
		assert.True(t, vc.IsValid)
		assert.Equal(t, "6791234567", vc.NormalizedDigits)
		assert.Equal(t, "556791234567@c.us", vc.NetworkAddress)
	})

	t.Run("NineDigitsGetAreaCodeThenMobileCollapse", func(t *testing.T) {
		// "991234567" -> "67991234567" (11 digits, index 2 is '9') -> "6791234567"
		vc := NormalizePhone("991234567", "67")
		assert.True(t, vc.IsValid)
		assert.Equal(t, "6791234567", vc.NormalizedDigits)
	})

	t.Run("TenDigitsUntouched", func(t *testing.T) {
		vc := NormalizePhone("1187654321", "67")
		assert.True(t, vc.IsValid)
		assert.Equal(t, "1187654321", vc.NormalizedDigits)
	})
}

func TestNormalizePhone_MobileNineCollapse(t *testing.T) {
	vc := NormalizePhone("11987654321", "67")
	assert.True(t, vc.IsValid)
	assert.Equal(t, "1187654321", vc.NormalizedDigits)
	assert.Equal(t, "551187654321@c.us", vc.NetworkAddress)
}

func TestNormalizePhone_DisallowedPrefix(t *testing.T) {
	t.Run("DirectTen", func(t *testing.T) {
		vc := NormalizePhone("1132654321", "67")
		assert.False(t, vc.IsValid)
		assert.Equal(t, []RejectReason{ReasonDisallowedPrefix}, vc.RejectReasons)
	})

	t.Run("AfterNineCollapse", func(t *testing.T) {
		// "11932654321" collapses to "1132654321", whose index-2 digit is '3'.
		vc := NormalizePhone("11932654321", "67")
		assert.False(t, vc.IsValid)
		assert.Equal(t, "1132654321", vc.NormalizedDigits)
		assert.Contains(t, vc.RejectReasons, ReasonDisallowedPrefix)
	})

	t.Run("AfterAreaCodePrepend", func(t *testing.T) {
		// 8 digits, "67" prepended: index 2 of "67312345 67" form is '3'.
		vc := NormalizePhone("31234567", "67")
		assert.Equal(t, "6731234567", vc.NormalizedDigits)
		assert.False(t, vc.IsValid)
		assert.Contains(t, vc.RejectReasons, ReasonDisallowedPrefix)
	})
}

func TestNormalizePhone_NonDigitStripping(t *testing.T) {
	vc := NormalizePhone("+55 (11) 98765-4321", "67")
	// Country code supplied by the caller stays in the digit string; only the
	// formatting characters are stripped.
	assert.Equal(t, "5511987654321", vc.NormalizedDigits)
}

func TestNormalizePhone_Idempotence(t *testing.T) {
	inputs := []string{"11987654321", "1187654321", "91234567", "991234567", "4499112233"}
	for _, raw := range inputs {
		first := NormalizePhone(raw, "67")
		if !first.IsValid {
			continue
		}
		again := NormalizePhone(first.NormalizedDigits, "67")
		assert.Equal(t, first.NetworkAddress, again.NetworkAddress, "re-normalizing digits of %q", raw)
	}
}

func TestNormalizePhone_AddressShape(t *testing.T) {
	vc := NormalizePhone("11987654321", "67")
	assert.True(t, strings.HasPrefix(vc.NetworkAddress, "55"))
	assert.True(t, strings.HasSuffix(vc.NetworkAddress, "@c.us"))
}
