package dagcache

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tas-rag-core/models"
)

const invalidateChannel = "dagcache:invalidate"

// Loader fetches the taxonomy nodes for a version from storage; implemented by
// store.TaxonomyDAO.NodesForVersion in production.
type Loader func(ctx context.Context, version string) ([]models.TaxonomyNode, error)

// Cache is the process-wide DAG cache keyed by version (spec.md §4.3). Rebuild
// is serialized per-version; invalidation is explicit, propagated across
// process instances over a Redis pub/sub channel the way the agent-builder
// teacher invalidates its document-context cache
// (services/impl/cache_service_impl.go).
type Cache struct {
	mu      sync.Map // version -> *sync.Mutex (rebuild lock)
	entries sync.Map // version -> *DAG
	load    Loader
	redis   *redis.Client
}

func New(load Loader, redisClient *redis.Client) *Cache {
	c := &Cache{load: load, redis: redisClient}
	if redisClient != nil {
		go c.listenInvalidations()
	}
	return c
}

func (c *Cache) versionLock(version string) *sync.Mutex {
	lock, _ := c.mu.LoadOrStore(version, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Get returns the cached DAG for version, building it on first use.
func (c *Cache) Get(ctx context.Context, version string) (*DAG, error) {
	if v, ok := c.entries.Load(version); ok {
		return v.(*DAG), nil
	}

	lock := c.versionLock(version)
	lock.Lock()
	defer lock.Unlock()

	if v, ok := c.entries.Load(version); ok {
		return v.(*DAG), nil
	}

	nodes, err := c.load(ctx, version)
	if err != nil {
		return nil, err
	}
	dag, err := Build(version, nodes)
	if err != nil {
		return nil, err
	}
	c.entries.Store(version, dag)
	return dag, nil
}

// Invalidate drops the cached DAG for version and notifies other instances.
func (c *Cache) Invalidate(ctx context.Context, version string) {
	c.entries.Delete(version)
	if c.redis != nil {
		c.redis.Publish(ctx, invalidateChannel, version)
	}
}

func (c *Cache) listenInvalidations() {
	ctx := context.Background()
	sub := c.redis.Subscribe(ctx, invalidateChannel)
	defer sub.Close()
	ch := sub.Channel()
	for msg := range ch {
		c.entries.Delete(msg.Payload)
	}
}
