package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"learner-progress-service/internal/domain"
)

// CatalogLoader fetches the catalog from its source of truth.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// CatalogRepository caches the module catalog in Redis as one JSON value
// and falls back to a loader on cache miss, so several service instances
// share a single parsed copy.
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	key    string
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, prefix string, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		key:    prefix + "catalog",
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadCatalog lets the repository stand in for a loader behind the memory cache.
func (r *CatalogRepository) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	return r.GetCatalog(ctx)
}

func (r *CatalogRepository) GetCatalog(ctx context.Context) (domain.Catalog, error) {
	if c, ok := r.cached(ctx); ok {
		return c, nil
	}

	result, err, _ := r.sf.Do(r.key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if c, ok := r.cached(ctx); ok {
			return c, nil
		}

		catalog, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return domain.Catalog{}, err
		}
		if err := catalog.Validate(); err != nil {
			return domain.Catalog{}, err
		}

		raw, err := json.Marshal(catalog)
		if err != nil {
			return domain.Catalog{}, errors.Wrap(err, "marshal catalog")
		}
		// best-effort: a failed cache write only costs a reload
		_ = r.client.Set(ctx, r.key, raw, r.ttlWithJitter()).Err()
		return catalog, nil
	})
	if err != nil {
		return domain.Catalog{}, err
	}
	return result.(domain.Catalog), nil
}

func (r *CatalogRepository) cached(ctx context.Context) (domain.Catalog, bool) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		return domain.Catalog{}, false
	}
	var c domain.Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Catalog{}, false
	}
	if c.Validate() != nil {
		return domain.Catalog{}, false
	}
	return c, true
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
