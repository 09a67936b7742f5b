// Package translator sends block text to a translation provider. It holds
// the Gateway contract, the batching and retry engine, the Azure and
// OpenAI-compatible providers and a caching decorator.
package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/unicode/norm"
)

// Kind classifies a gateway failure.
type Kind int

const (
	// KindTransient covers network errors, timeouts, 408 and 5xx responses.
	KindTransient Kind = iota
	// KindRateLimited is a 429; RetryAfter carries the provider's hint.
	KindRateLimited
	// KindInvalidLanguage means the target language is not supported.
	KindInvalidLanguage
	// KindAuth means the credentials were rejected.
	KindAuth
	// KindFailed is any other non-retryable failure.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidLanguage:
		return "invalid_language"
	case KindAuth:
		return "auth"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified gateway failure.
type Error struct {
	Kind       Kind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// Fatal reports whether the failure affects every request of the run.
func (e *Error) Fatal() bool {
	return e.Kind == KindInvalidLanguage || e.Kind == KindAuth
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err. Errors that are not an *Error are
// reported as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsFatal reports whether err is an invalid-language or auth failure.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Fatal()
}

// Result is the outcome of one text of a batch.
type Result struct {
	Text string
	Err  error
}

// Gateway translates a batch of texts into lang. A whole-call failure is
// returned as error; otherwise the result slice has one entry per text, in
// order, and per-entry failures are carried in Result.Err.
type Gateway interface {
	TranslateBatch(ctx context.Context, texts []string, lang string) ([]Result, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, texts []string, lang string) ([]Result, error)

// TranslateBatch implements Gateway.
func (f GatewayFunc) TranslateBatch(ctx context.Context, texts []string, lang string) ([]Result, error) {
	return f(ctx, texts, lang)
}

// ValidateLanguage parses a BCP 47 code. Malformed codes are KindInvalidLanguage.
func ValidateLanguage(lang string) (language.Tag, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return language.Und, NewError(KindInvalidLanguage, "empty target language", nil)
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.Und, NewError(KindInvalidLanguage, fmt.Sprintf("malformed language code %q", lang), err)
	}
	return tag, nil
}

// LanguageName returns the English name of lang, or lang itself.
func LanguageName(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return lang
}

// Normalize puts translated text in NFC and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}
