package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect establishes a connection pool to the database and returns the pool
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	// Parse config from DSN
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Set max connections and create pool
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Ping the database to verify connection
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PoolCache maps credential hashes to established pools. It replaces the
// module-level singleton pattern: callers construct a cache explicitly and
// tests can inject isolated instances.
type PoolCache struct {
	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewPoolCache creates an empty pool cache
func NewPoolCache() *PoolCache {
	return &PoolCache{pools: make(map[string]*pgxpool.Pool)}
}

// Key returns the cache key for a DSN. The DSN itself carries credentials,
// so only its hash is ever held as a map key or logged.
func Key(dsn string) string {
	sum := sha256.Sum256([]byte(dsn))
	return hex.EncodeToString(sum[:])
}

// Get returns the pool for the given DSN, connecting on first use.
func (c *PoolCache) Get(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	key := Key(dsn)

	c.mu.Lock()
	defer c.mu.Unlock()

	if pool, ok := c.pools[key]; ok {
		return pool, nil
	}
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	c.pools[key] = pool
	return pool, nil
}

// Close closes every cached pool and empties the cache
func (c *PoolCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, pool := range c.pools {
		pool.Close()
		delete(c.pools, key)
	}
}

// Len returns the number of cached pools
func (c *PoolCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pools)
}
