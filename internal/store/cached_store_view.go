package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/repository"
)

const cacheKeyPrefix = "definitionstore:"

// CachedStoreView decorates a StoreViewRepository with a best-effort TTL
// read cache. Cache failures fall through to the warehouse; writes to the
// view (CreateView) invalidate everything so a load-then-query session
// always sees its own data.
type CachedStoreView struct {
	inner  repository.StoreViewRepository
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStoreView(inner repository.StoreViewRepository, kv KV, ttl time.Duration, logger *zap.Logger) *CachedStoreView {
	return &CachedStoreView{inner: inner, kv: kv, ttl: ttl, logger: logger}
}

var _ repository.StoreViewRepository = (*CachedStoreView)(nil)

func (c *CachedStoreView) CreateView(ctx context.Context, sourceTables []string) error {
	if err := c.inner.CreateView(ctx, sourceTables); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops every cached read. Best effort: a failure only means
// stale reads until the TTL expires.
func (c *CachedStoreView) Invalidate(ctx context.Context) {
	keys, err := c.kv.ScanKeys(ctx, cacheKeyPrefix+"*")
	if err != nil {
		c.logger.Warn("failed to scan store view cache keys", zap.Error(err))
		return
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		c.logger.Warn("failed to invalidate store view cache", zap.Error(err))
	}
}

// cachedRead runs one read through the cache. dest must be a pointer.
func (c *CachedStoreView) cachedRead(ctx context.Context, key string, dest any, fetch func() (any, error)) error {
	if raw, err := c.kv.Get(ctx, key); err == nil {
		if err := json.Unmarshal([]byte(raw), dest); err == nil {
			return nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	} else if err != ErrMiss {
		c.logger.Warn("store view cache read failed", zap.String("key", key), zap.Error(err))
	}

	fresh, err := fetch()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(fresh)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(encoded, dest); err != nil {
		return err
	}
	if err := c.kv.Set(ctx, key, string(encoded), c.ttl); err != nil {
		c.logger.Warn("store view cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (c *CachedStoreView) ListDefinitions(ctx context.Context) ([]repository.DefinitionSummary, error) {
	var out []repository.DefinitionSummary
	err := c.cachedRead(ctx, cacheKeyPrefix+"definitions", &out, func() (any, error) {
		return c.inner.ListDefinitions(ctx)
	})
	return out, err
}

func (c *CachedStoreView) CodesForDefinition(ctx context.Context, definitionID string) ([]repository.DefinitionCode, error) {
	var out []repository.DefinitionCode
	key := fmt.Sprintf("%scodes:%s", cacheKeyPrefix, definitionID)
	err := c.cachedRead(ctx, key, &out, func() (any, error) {
		return c.inner.CodesForDefinition(ctx, definitionID)
	})
	return out, err
}

func (c *CachedStoreView) ResolveConcept(ctx context.Context, code, vocabulary string) (repository.ConceptResolution, error) {
	var out repository.ConceptResolution
	key := fmt.Sprintf("%sconcept:%s:%s", cacheKeyPrefix, vocabulary, code)
	err := c.cachedRead(ctx, key, &out, func() (any, error) {
		return c.inner.ResolveConcept(ctx, code, vocabulary)
	})
	return out, err
}
