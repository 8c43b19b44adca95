package verification_test

import (
	"testing"

	"github.com/uniconnect-lb/uniconnect/internal/verification"
)

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Lina@AUB.EDU ":  "lina@aub.edu",
		"s@mail.aub.edu":   "s@mail.aub.edu",
		"\tUPPER@LAU.edu ": "upper@lau.edu",
	}
	for in, want := range cases {
		if got := verification.NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmailDomain(t *testing.T) {
	cases := map[string]string{
		"lina@aub.edu":      "aub.edu",
		"s@Mail.AUB.edu":    "mail.aub.edu",
		"a@b@mail.aub.edu":  "mail.aub.edu", // last @ wins
		"no-at-sign":        "",
		"trailing@":         "",
		"":                  "",
	}
	for in, want := range cases {
		if got := verification.EmailDomain(in); got != want {
			t.Errorf("EmailDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
