// Package cache provides a generic thread-safe LRU cache with a soft
// entry limit.
//
// When an insertion pushes the cache over its limit, the least recently
// used quarter of the entries is evicted in one batch, so a cache that
// sits at its limit does not evict on every insertion.
//
//	c := cache.New[string, *entry](64)
//	c.Set("lightmappedgeneric_ps20b", e)
//	e, ok := c.Get("lightmappedgeneric_ps20b")
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
