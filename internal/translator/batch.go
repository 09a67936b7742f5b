package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pdf-translation/internal/logger"
)

const (
	// DefaultMaxBatchChars bounds the characters sent in one call
	DefaultMaxBatchChars = 5000
	// DefaultMaxBatchSize bounds the texts sent in one call
	DefaultMaxBatchSize = 25
	// DefaultCallTimeout is the deadline of one gateway call
	DefaultCallTimeout = 60 * time.Second
	// DefaultMaxAttempts is the number of tries per text
	DefaultMaxAttempts = 4
	// BaseRetryDelay is the first backoff delay; it doubles per attempt
	BaseRetryDelay = 2 * time.Second
	// MaxRetryDelay caps the backoff delay
	MaxRetryDelay = 30 * time.Second
)

// RetryPolicy controls retries of retryable failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the backoff before attempt+1: BaseDelay doubled per
// attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// BatchConfig configures a BatchTranslator.
type BatchConfig struct {
	MaxBatchChars int
	MaxBatchSize  int
	Timeout       time.Duration
	Retry         RetryPolicy
}

// DefaultBatchConfig returns the stock limits.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxBatchChars: DefaultMaxBatchChars,
		MaxBatchSize:  DefaultMaxBatchSize,
		Timeout:       DefaultCallTimeout,
		Retry: RetryPolicy{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   BaseRetryDelay,
			MaxDelay:    MaxRetryDelay,
		},
	}
}

// Outcome is the final state of one text. A text that could not be
// translated keeps its source text and is flagged Fallback.
type Outcome struct {
	Text     string
	Fallback bool
	Err      error
}

// Stats accumulates gateway usage of a BatchTranslator.
type Stats struct {
	Calls   int
	Retries int
	Failed  int
	Latency time.Duration
}

// BatchTranslator groups texts into batches, calls the gateway with a
// per-call timeout and retries what failed. It is safe for concurrent use.
type BatchTranslator struct {
	gateway Gateway
	cfg     BatchConfig
	sleep   func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	stats Stats
}

// NewBatchTranslator wraps gateway. Zero fields of cfg take the defaults.
func NewBatchTranslator(gateway Gateway, cfg BatchConfig) *BatchTranslator {
	def := DefaultBatchConfig()
	if cfg.MaxBatchChars <= 0 {
		cfg.MaxBatchChars = def.MaxBatchChars
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = def.Retry.MaxDelay
	}
	return &BatchTranslator{gateway: gateway, cfg: cfg, sleep: sleepContext}
}

// Config returns the effective configuration.
func (b *BatchTranslator) Config() BatchConfig { return b.cfg }

// Stats returns a snapshot of the accumulated counters.
func (b *BatchTranslator) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// MergeBatches groups the indices of texts into batches bounded by
// MaxBatchChars and MaxBatchSize. A text longer than MaxBatchChars gets a
// batch of its own. Order is preserved.
func (b *BatchTranslator) MergeBatches(texts []string, indices []int) [][]int {
	if len(indices) == 0 {
		return nil
	}

	var batches [][]int
	var current []int
	size := 0

	for _, i := range indices {
		n := len([]rune(texts[i]))
		if len(current) > 0 && (size+n > b.cfg.MaxBatchChars || len(current) >= b.cfg.MaxBatchSize) {
			batches = append(batches, current)
			current = nil
			size = 0
		}
		current = append(current, i)
		size += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Translate translates texts into lang and returns one Outcome per text in
// input order. Texts that are blank are returned unchanged without a call.
// The error is non-nil only for fatal gateway failures (invalid language,
// auth) and cancellation; every other failure ends in a fallback Outcome.
func (b *BatchTranslator) Translate(ctx context.Context, texts []string, lang string) ([]Outcome, error) {
	if _, err := ValidateLanguage(lang); err != nil {
		return nil, err
	}

	out := make([]Outcome, len(texts))
	var todo []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = Outcome{Text: t}
			continue
		}
		todo = append(todo, i)
	}

	batches := b.MergeBatches(texts, todo)
	for n, batch := range batches {
		logger.Debug("translating batch",
			logger.Int("batch", n+1),
			logger.Int("batches", len(batches)),
			logger.Int("texts", len(batch)),
			logger.String("lang", lang))

		if err := b.translateBatch(ctx, texts, batch, lang, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// translateBatch runs one batch to completion. Only entries still pending
// are resubmitted on retry.
func (b *BatchTranslator) translateBatch(ctx context.Context, texts []string, batch []int, lang string, out []Outcome) error {
	pending := batch

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := b.call(ctx, texts, pending, lang)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil && len(results) != len(pending) {
			err = NewError(KindTransient, fmt.Sprintf("gateway returned %d results for %d texts", len(results), len(pending)), nil)
		}

		var retry []int
		var lastErr error
		if err != nil {
			if IsFatal(err) {
				logger.Error("translation aborted", err, logger.String("lang", lang))
				return err
			}
			lastErr = err
			if retryable(err) {
				retry = pending
			} else {
				b.fallback(texts, pending, err, out)
			}
		} else {
			for i, r := range results {
				idx := pending[i]
				switch {
				case r.Err == nil:
					out[idx] = Outcome{Text: Normalize(r.Text)}
				case IsFatal(r.Err):
					return r.Err
				case retryable(r.Err):
					lastErr = r.Err
					retry = append(retry, idx)
				default:
					b.fallback(texts, []int{idx}, r.Err, out)
				}
			}
		}

		if len(retry) == 0 {
			return nil
		}
		if attempt >= b.cfg.Retry.MaxAttempts {
			logger.Warn("giving up on texts after retries",
				logger.Int("texts", len(retry)),
				logger.Int("attempts", attempt),
				logger.Err(lastErr))
			b.fallback(texts, retry, lastErr, out)
			return nil
		}

		delay := b.retryDelay(lastErr, attempt)
		logger.Warn("retrying translation",
			logger.Int("texts", len(retry)),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(lastErr))

		b.mu.Lock()
		b.stats.Retries++
		b.mu.Unlock()

		if err := b.sleep(ctx, delay); err != nil {
			return err
		}
		pending = retry
	}
}

// call issues one gateway call under the per-call timeout. A deadline hit
// becomes a transient error.
func (b *BatchTranslator) call(ctx context.Context, texts []string, indices []int, lang string) ([]Result, error) {
	batch := make([]string, len(indices))
	for i, idx := range indices {
		batch[i] = texts[idx]
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	start := time.Now()
	results, err := b.gateway.TranslateBatch(callCtx, batch, lang)
	elapsed := time.Since(start)

	b.mu.Lock()
	b.stats.Calls++
	b.stats.Latency += elapsed
	b.mu.Unlock()

	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = &Error{Kind: KindTransient, Message: fmt.Sprintf("call timed out after %s", b.cfg.Timeout), Cause: err}
	}
	return results, err
}

func (b *BatchTranslator) fallback(texts []string, indices []int, err error, out []Outcome) {
	for _, idx := range indices {
		out[idx] = Outcome{Text: texts[idx], Fallback: true, Err: err}
	}
	b.mu.Lock()
	b.stats.Failed += len(indices)
	b.mu.Unlock()
}

// retryDelay honours the provider's Retry-After hint over the backoff.
func (b *BatchTranslator) retryDelay(err error, attempt int) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter
	}
	return b.cfg.Retry.Delay(attempt)
}

func retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
