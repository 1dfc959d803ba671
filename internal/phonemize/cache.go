package phonemize

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoized (lang, text) entries.
const DefaultCacheSize = 4096

type cacheKey struct {
	lang string
	text string
}

// Cached memoizes a Phonemizer. Chunk planning phonemizes growing prefixes of
// the same text many times, so hits are common. Errors are not cached.
type Cached struct {
	next  Phonemizer
	cache *lru.Cache[cacheKey, string]
}

// NewCached wraps next with an LRU cache of the given size (DefaultCacheSize
// when size <= 0).
func NewCached(next Phonemizer, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("phoneme cache: %w", err)
	}
	return &Cached{next: next, cache: c}, nil
}

// Phonemize implements Phonemizer.
func (c *Cached) Phonemize(ctx context.Context, text, lang string) (string, error) {
	key := cacheKey{lang: lang, text: text}
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.next.Phonemize(ctx, text, lang)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, v)
	return v, nil
}

// Len reports the number of cached entries.
func (c *Cached) Len() int {
	return c.cache.Len()
}
