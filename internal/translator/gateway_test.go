package translator

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidateLanguage(t *testing.T) {
	for _, ok := range []string{"hi", "kn", "pa", "zh-Hans", "pt-BR", " ta "} {
		if _, err := ValidateLanguage(ok); err != nil {
			t.Errorf("ValidateLanguage(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "hindi language", "x!", "123456789"} {
		if _, err := ValidateLanguage(bad); KindOf(err) != KindInvalidLanguage {
			t.Errorf("ValidateLanguage(%q) = %v, want invalid language", bad, err)
		}
	}
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"hi": "Hindi",
		"kn": "Kannada",
		"ta": "Tamil",
		"??": "??",
	}
	for code, want := range tests {
		if got := LanguageName(code); got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("EOF")
	err := fmt.Errorf("page 3: %w", &Error{Kind: KindRateLimited, StatusCode: 429, Message: "slow down", Cause: cause})

	if KindOf(err) != KindRateLimited {
		t.Errorf("KindOf = %s", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable")
	}
	if IsFatal(err) {
		t.Error("rate limit reported fatal")
	}
	if got := err.Error(); got != "page 3: rate_limited: slow down (status 429): EOF" {
		t.Errorf("Error() = %q", got)
	}

	if KindOf(errors.New("plain")) != KindTransient {
		t.Error("unclassified errors should be transient")
	}
	if !IsFatal(NewError(KindAuth, "denied", nil)) || !IsFatal(NewError(KindInvalidLanguage, "xx", nil)) {
		t.Error("auth and invalid language should be fatal")
	}
	if NewError(KindFailed, "x", nil).Retryable() {
		t.Error("KindFailed should not be retryable")
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  a \n b\t c ": "a b c",
		"cafe\u0301":    "caf\u00e9",
		"\u0915\u093f":  "\u0915\u093f",
		"":              "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
