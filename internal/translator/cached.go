package translator

import (
	"context"
	"sync/atomic"

	"pdf-translation/internal/cache"
	"pdf-translation/internal/logger"
)

// CachedGateway answers from a cache.Store and forwards only misses.
// Successful translations are written back.
type CachedGateway struct {
	next  Gateway
	store cache.Store
	hits  atomic.Int64
}

// NewCachedGateway wraps next with store.
func NewCachedGateway(next Gateway, store cache.Store) *CachedGateway {
	return &CachedGateway{next: next, store: store}
}

// Hits returns the number of texts answered from the cache.
func (c *CachedGateway) Hits() int { return int(c.hits.Load()) }

// TranslateBatch implements Gateway.
func (c *CachedGateway) TranslateBatch(ctx context.Context, texts []string, lang string) ([]Result, error) {
	results := make([]Result, len(texts))
	var missIdx []int
	var misses []string

	for i, t := range texts {
		if tr, ok := c.store.Get(lang, t); ok {
			results[i] = Result{Text: tr}
			continue
		}
		missIdx = append(missIdx, i)
		misses = append(misses, t)
	}

	hits := int64(len(texts) - len(misses))
	if len(misses) == 0 {
		c.hits.Add(hits)
		return results, nil
	}

	fresh, err := c.next.TranslateBatch(ctx, misses, lang)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(misses) {
		return fresh, nil
	}
	c.hits.Add(hits)

	for j, r := range fresh {
		results[missIdx[j]] = r
		if r.Err != nil {
			continue
		}
		if err := c.store.Set(lang, misses[j], r.Text); err != nil {
			logger.Warn("failed to cache translation", logger.Err(err))
		}
	}
	return results, nil
}
