package analyzer

import (
	"math/big"
	"strconv"
	"strings"
)

// luhnValid checks whether a digit string passes the Luhn algorithm
func luhnValid(number string) bool {
	n := len(number)
	if n < 13 || n > 19 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// validateIBANChecksum verifies the MOD-97 check digits per ISO 13616
func validateIBANChecksum(iban string) bool {
	if len(iban) < 5 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			digits.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			digits.WriteString(strconv.Itoa(int(ch-'A') + 10))
		default:
			return false
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// ibanLengths holds the registered IBAN length per country
var ibanLengths = map[string]int{
	"AT": 20, "BE": 16, "BG": 22, "CH": 21, "CY": 28, "CZ": 24, "DE": 22,
	"DK": 18, "EE": 20, "ES": 24, "FI": 18, "FR": 27, "GB": 22, "GR": 27,
	"HR": 21, "HU": 28, "IE": 22, "IS": 26, "IT": 27, "LI": 21, "LT": 20,
	"LU": 20, "LV": 21, "MT": 31, "NL": 18, "NO": 15, "PL": 28, "PT": 25,
	"RO": 24, "SE": 24, "SI": 19, "SK": 24,
}

// validateIBANLength checks the length registered for the country code
func validateIBANLength(iban string) bool {
	if len(iban) < 2 {
		return false
	}
	expected, ok := ibanLengths[iban[:2]]
	return ok && len(iban) == expected
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
