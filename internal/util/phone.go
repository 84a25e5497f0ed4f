package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DanielDenysevych/birthday-surprise/internal/domain"
)

var nonDigit = regexp.MustCompile(`\D`)

// NormalizePhone canonicalizes a raw phone string into dialable
// international format. A 10-digit number is assumed domestic and gets the
// default country code; an 11-digit number already starting with that code
// gets a bare "+". Deterministic, no I/O.
func NormalizePhone(raw, countryCode string) (string, error) {
	digits := nonDigit.ReplaceAllString(raw, "")
	if len(digits) < 10 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %d digits", domain.ErrInvalidPhone, len(digits))
	}

	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		return "+" + digits, nil
	}
	if len(digits) == 10 {
		return "+" + countryCode + digits, nil
	}
	if len(digits) == 11 && strings.HasPrefix(digits, countryCode) {
		return "+" + digits, nil
	}
	return "+" + digits, nil
}

// MaskPhone hides everything but the last four digits, keeping a leading
// country code visible ("+15551234567" -> "+1***4567").
func MaskPhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) < 5 {
		return "***"
	}
	last4 := digits[len(digits)-4:]
	if strings.HasPrefix(phone, "+") && len(digits) == 11 {
		return "+" + digits[:1] + "***" + last4
	}
	return "***" + last4
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}
