// Package cache provides a bounded, TTL-expiring cache of rendered responses.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Entry is a cached HTTP response.
type Entry struct {
	Status      int
	ContentType string
	Body        []byte
}

// ResponseCache stores responses keyed by owner and request URL. Entries expire
// after the TTL and the oldest entry is evicted once MaxEntries is reached.
type ResponseCache struct {
	lru *expirable.LRU[string, Entry]
}

func New(maxEntries int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		lru: expirable.NewLRU[string, Entry](maxEntries, nil, ttl),
	}
}

func key(owner, url string) string {
	return owner + "|" + url
}

func (c *ResponseCache) Get(owner, url string) (Entry, bool) {
	return c.lru.Get(key(owner, url))
}

func (c *ResponseCache) Set(owner, url string, e Entry) {
	c.lru.Add(key(owner, url), e)
}

// InvalidateOwner drops every entry belonging to owner.
func (c *ResponseCache) InvalidateOwner(owner string) {
	prefix := owner + "|"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// Clear drops everything.
func (c *ResponseCache) Clear() {
	c.lru.Purge()
}

func (c *ResponseCache) Len() int {
	return c.lru.Len()
}
