package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/metrics"
)

const cacheKeyPrefix = "docsage:emb_cache:"

// ErrCacheMiss is returned by a KVStore when the key does not exist.
var ErrCacheMiss = errors.New("embedding cache: key not found")

// KVStore is the consumer interface for the embedding cache.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cached is a caching decorator around an Embedder. Cache failures degrade
// to the inner embedder, never to a request failure.
type Cached struct {
	inner  Embedder
	store  KVStore
	logger *zap.Logger
}

var _ Embedder = (*Cached)(nil)

func NewCached(inner Embedder, store KVStore, logger *zap.Logger) *Cached {
	return &Cached{inner: inner, store: store, logger: logger}
}

func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Embed returns a cached vector or delegates to the inner embedder.
// On a hit the token usage is zero since no provider tokens were spent.
func (c *Cached) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(text)

	if vec, ok := c.lookup(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	c.put(ctx, key, result.Embedding)
	return result, nil
}

// EmbedBatch serves what it can from the cache and embeds only the misses,
// preserving input order in the result.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]domain.EmbeddingResult, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, cacheKey(text)); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			results[i] = domain.EmbeddingResult{Embedding: vec}
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		fresh, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			results[idx] = fresh[j]
			c.put(ctx, cacheKey(missTexts[j]), fresh[j].Embedding)
		}
	}

	return results, nil
}

func (c *Cached) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *Cached) put(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
