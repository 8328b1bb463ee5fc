package utils

import (
	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ash_cache_lookups_total",
		Help: "LRU cache lookups by cache name and result",
	},
	[]string{"name", "result"},
)

// LRU is a size-bounded, goroutine-safe cache that reports hits and misses.
type LRU[K comparable, V any] struct {
	cache *cache.Cache[K, V]
	name  string
}

func NewLRU[K comparable, V any](size int, name string) *LRU[K, V] {
	return &LRU[K, V]{
		cache: cache.New(cache.AsLRU[K, V](lru.WithCapacity(size))),
		name:  name,
	}
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheLookups.WithLabelValues(c.name, "hit").Inc()
	} else {
		cacheLookups.WithLabelValues(c.name, "miss").Inc()
	}
	return val, ok
}

func (c *LRU[K, V]) Set(key K, val V) {
	c.cache.Set(key, val)
}

func (c *LRU[K, V]) Len() int {
	return len(c.cache.Keys())
}
