package util

import (
	"errors"
	"testing"

	"github.com/DanielDenysevych/birthday-surprise/internal/domain"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ten digit domestic", "5551234567", "+15551234567"},
		{"ten digit with punctuation", "(555) 123-4567", "+15551234567"},
		{"eleven digit with country code", "15551234567", "+15551234567"},
		{"already normalized", "+15551234567", "+15551234567"},
		{"plus with punctuation", "+1 555 123 4567", "+15551234567"},
		{"international twelve digit", "445551234567", "+445551234567"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.in, "1")
			if err != nil {
				t.Fatalf("normalize %q: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("normalize %q = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	first, err := NormalizePhone("555-123-4567", "1")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	second, err := NormalizePhone(first, "1")
	if err != nil {
		t.Fatalf("normalize again: %v", err)
	}
	if first != second {
		t.Fatalf("not idempotent: %q then %q", first, second)
	}
}

func TestNormalizePhoneRejectsBadLengths(t *testing.T) {
	for _, in := range []string{"", "12345", "123456789", "1234567890123456"} {
		if _, err := NormalizePhone(in, "1"); !errors.Is(err, domain.ErrInvalidPhone) {
			t.Fatalf("normalize %q: expected ErrInvalidPhone, got %v", in, err)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+15551234567"); got != "+1***4567" {
		t.Fatalf("mask = %q", got)
	}
	if got := MaskPhone("+445551234567"); got != "***4567" {
		t.Fatalf("mask international = %q", got)
	}
	if got := MaskPhone("123"); got != "***" {
		t.Fatalf("mask short = %q", got)
	}
}

func TestValidEmail(t *testing.T) {
	if !ValidEmail("ann@example.com") {
		t.Fatalf("expected valid")
	}
	for _, in := range []string{"not-an-email", "a@b", "a b@c.com"} {
		if ValidEmail(in) {
			t.Fatalf("expected %q invalid", in)
		}
	}
}
