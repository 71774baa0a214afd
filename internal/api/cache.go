package api

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache is a small TTL cache for read-model responses. Keys are invalidated
// when a run or a break transition changes the underlying data.
type Cache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func NewCache(maxCost int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

func (c *Cache) Get(key string) (any, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	return c.c.Get(key)
}

// Set stores val and waits for the write buffer so the next Get sees it.
func (c *Cache) Set(key string, val any) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.c.SetWithTTL(key, val, 1, c.ttl)
	c.c.Wait()
}

func (c *Cache) Del(key string) {
	if c == nil {
		return
	}
	c.c.Del(key)
}

// InvalidateReports drops the cached reports of the given trade dates
// (YYYY-MM-DD).
func (c *Cache) InvalidateReports(dates ...string) {
	for _, d := range dates {
		c.Del(reportKey(d))
	}
}

func (c *Cache) Close() {
	if c != nil {
		c.c.Close()
	}
}

func runKey(date string) string    { return "run:" + date }
func reportKey(date string) string { return "report:" + date }
