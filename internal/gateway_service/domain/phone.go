package domain

import "strings"

const (
	countryCode         = "55"
	networkDomainSuffix = "@c.us"
)

// NormalizePhone applies the canonical phone-number normalization rules to a
// raw destination and returns the resulting ValidatedContact. It performs no
// I/O and is deterministic; re-normalizing the local digits embedded in the
// returned NetworkAddress reproduces the same address.
//
// Rules, in order:
//  1. every non-digit character is stripped;
//  2. fewer than 8 digits is rejected (too_short; empty input is "missing");
//  3. fewer than 10 digits gets defaultAreaCode prepended (a local number
//     missing its two-digit area code);
//  4. exactly 11 digits with a '9' at index 2 has that digit removed, so
//     11- and 10-digit mobile numbers converge on the same canonical form;
//  5. a '3' at index 2 of the canonical form is rejected (non-mobile range
//     for this channel);
//  6. NetworkAddress is composed regardless of validity so callers can
//     inspect the address that would have been used.
func NormalizePhone(raw, defaultAreaCode string) ValidatedContact {
	digits := stripNonDigits(raw)

	result := ValidatedContact{
		RawPhone: raw,
		IsValid:  true,
	}

	switch {
	case len(digits) == 0:
		result.Reject(ReasonMissing)
	case len(digits) < 8:
		result.Reject(ReasonTooShort)
	default:
		if len(digits) < 10 {
			digits = defaultAreaCode + digits
		}
		if len(digits) == 11 && digits[2] == '9' {
			digits = digits[:2] + digits[3:]
		}
		if len(digits) > 2 && digits[2] == '3' {
			result.Reject(ReasonDisallowedPrefix)
		}
	}

	result.NormalizedDigits = digits
	result.NetworkAddress = countryCode + digits + networkDomainSuffix
	return result
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
