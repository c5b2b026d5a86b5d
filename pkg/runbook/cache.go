// Package runbook fetches and caches GitHub-hosted source material for
// Agent Runners — remediation procedures, incident playbooks, design notes —
// and resolves the GitHub URL forms a registered source URL may take (spec
// §4.5, §4.11).
package runbook

import (
	"sync"
	"time"
)

// cacheEntry pairs cached document content with the time it was fetched, so
// Get can decide whether it's still within ttl.
type cacheEntry struct {
	content   string
	fetchedAt time.Time
}

// Cache is a thread-safe, in-memory TTL cache for downloaded document
// content, keyed by source URL. There's no background sweep; expiry is
// resolved the next time a caller asks for that URL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewCache builds an empty Cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached content for url, if present and not yet expired.
func (c *Cache) Get(url string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// A concurrent Set may have refreshed this entry between the RUnlock
		// above and taking the write lock here, so re-check before evicting.
		c.mu.Lock()
		if current, ok := c.entries[url]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, url)
		}
		c.mu.Unlock()
		return "", false
	}

	return entry.content, true
}

// Set records content for url, timestamped now.
func (c *Cache) Set(url string, content string) {
	c.mu.Lock()
	c.entries[url] = &cacheEntry{
		content:   content,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}
