package runbook

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetAndGet(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("https://example.com/disk-space-runbook.md", "# Disk Space Remediation")

	content, ok := cache.Get("https://example.com/disk-space-runbook.md")
	assert.True(t, ok)
	assert.Equal(t, "# Disk Space Remediation", content)
}

func TestCacheMiss(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	content, ok := cache.Get("https://example.com/nonexistent.md")
	assert.False(t, ok)
	assert.Equal(t, "", content)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)

	cache.Set("https://example.com/runbook.md", "content")

	content, ok := cache.Get("https://example.com/runbook.md")
	assert.True(t, ok)
	assert.Equal(t, "content", content)

	time.Sleep(60 * time.Millisecond)

	content, ok = cache.Get("https://example.com/runbook.md")
	assert.False(t, ok)
	assert.Equal(t, "", content)
}

func TestCacheOverwrite(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("https://example.com/runbook.md", "old content")
	cache.Set("https://example.com/runbook.md", "new content")

	content, ok := cache.Get("https://example.com/runbook.md")
	assert.True(t, ok)
	assert.Equal(t, "new content", content)
}

func TestCacheMultipleKeys(t *testing.T) {
	cache := NewCache(1 * time.Minute)

	cache.Set("url1", "content1")
	cache.Set("url2", "content2")

	c1, ok1 := cache.Get("url1")
	c2, ok2 := cache.Get("url2")

	assert.True(t, ok1)
	assert.Equal(t, "content1", c1)
	assert.True(t, ok2)
	assert.Equal(t, "content2", c2)
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := NewCache(1 * time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(_ int) {
			defer wg.Done()
			cache.Set("shared-key", "content")
		}(i)
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Get("shared-key")
		}()
	}

	wg.Wait()

	content, ok := cache.Get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "content", content)
}
