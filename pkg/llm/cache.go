package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// PromptCache is the content-addressed store behind CachedCaller. Put is
// expected to be backed by a unique index on the hash so concurrent misses
// serialize on the constraint.
type PromptCache interface {
	Get(ctx context.Context, promptHash string) (response string, ok bool, err error)
	Put(ctx context.Context, promptHash, prompt, response string) error
}

// HashPrompt returns the cache key for a prompt.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// CachedCaller memoizes LLM responses by prompt content hash. Reads go
// through the cache; on a miss the inner caller runs and the response is
// written through. Cache failures never fail the call: a read error falls
// back to the LLM and a write error is logged only.
type CachedCaller struct {
	inner  Caller
	cache  PromptCache
	logger *slog.Logger
}

func NewCachedCaller(inner Caller, cache PromptCache, logger *slog.Logger) *CachedCaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCaller{inner: inner, cache: cache, logger: logger}
}

func (c *CachedCaller) Call(ctx context.Context, prompt string, temperature float64) (string, error) {
	hash := HashPrompt(prompt)

	response, ok, err := c.cache.Get(ctx, hash)
	if err != nil {
		c.logger.Warn("prompt cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return response, nil
	}

	response, err = c.inner.Call(ctx, prompt, temperature)
	if err != nil {
		return "", err
	}

	if err := c.cache.Put(ctx, hash, prompt, response); err != nil {
		c.logger.Warn("prompt cache write failed", slog.String("error", err.Error()))
	}
	return response, nil
}
