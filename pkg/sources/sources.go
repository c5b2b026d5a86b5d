// Package sources is the Source Registry (spec §4.5): a set of named
// knowledge sources (URL + fetch adapter) Agent Runners consult when
// gathering material for a cycle. The registry itself never fetches; it
// hands back a Source whose Fetch method does.
package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aion-systems/aion-core/pkg/store"
)

// Document is one fetched unit of material (spec §6.5: "Document[]").
type Document struct {
	Title   string
	URL     string
	Snippet string
}

// Source is the external collaborator contract (spec §4.5, §6.5).
type Source interface {
	Fetch(ctx context.Context, query string, timeout time.Duration) ([]Document, error)
}

// Registry holds named sources, persisting membership via Store so it
// survives process restarts (spec §6.4 `sources` table). Trust is an opaque
// boolean; untrusted sources are excluded from learning integration by
// whichever caller checks IsTrusted before handing results to the Learning
// Loop (spec §4.5, §4.9).
type Registry struct {
	store     store.Store
	factoryFn Factory

	mu      sync.RWMutex
	sources map[string]entry
}

type entry struct {
	trusted bool
	source  Source
}

// Factory builds a Source adapter for a URL, used when a source is added or
// the registry is hydrated from Store at startup. Different URL schemes map
// to different adapters (MCP-backed vs. runbook/GitHub-backed).
type Factory func(url string) (Source, error)

// New constructs an empty Registry. Call Hydrate to load persisted entries.
func New(st store.Store, factory Factory) *Registry {
	return &Registry{store: st, sources: make(map[string]entry), factoryFn: factory}
}

// Hydrate loads every persisted source record from Store and constructs its
// adapter, so a restarted process doesn't lose registered sources.
func (r *Registry) Hydrate(ctx context.Context) error {
	records, err := r.store.SourceList(ctx)
	if err != nil {
		return fmt.Errorf("sources: list: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		src, err := r.factoryFn(rec.URL)
		if err != nil {
			return fmt.Errorf("sources: build adapter for %q: %w", rec.URL, err)
		}
		r.sources[rec.URL] = entry{trusted: rec.Trusted, source: src}
	}
	return nil
}

// Add registers url (idempotent — re-adding an existing URL updates its
// trust flag but does not duplicate the entry, per spec §4.5).
func (r *Registry) Add(ctx context.Context, url string, trusted bool) error {
	src, err := r.factoryFn(url)
	if err != nil {
		return fmt.Errorf("sources: build adapter for %q: %w", url, err)
	}
	if err := r.store.SourceAdd(ctx, url, trusted); err != nil {
		return fmt.Errorf("sources: persist: %w", err)
	}
	r.mu.Lock()
	r.sources[url] = entry{trusted: trusted, source: src}
	r.mu.Unlock()
	return nil
}

// Remove unregisters url.
func (r *Registry) Remove(ctx context.Context, url string) error {
	if err := r.store.SourceRemove(ctx, url); err != nil {
		return fmt.Errorf("sources: persist removal: %w", err)
	}
	r.mu.Lock()
	delete(r.sources, url)
	r.mu.Unlock()
	return nil
}

// SourceInfo is the registry's list view.
type SourceInfo struct {
	URL     string
	Trusted bool
}

// List returns every registered source.
func (r *Registry) List() []SourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceInfo, 0, len(r.sources))
	for url, e := range r.sources {
		out = append(out, SourceInfo{URL: url, Trusted: e.trusted})
	}
	return out
}

// Fetch delegates to the named source's adapter. Returns apperr.ErrNotFound
// (via the caller's own mapping) if url isn't registered.
func (r *Registry) Fetch(ctx context.Context, url, query string, timeout time.Duration) ([]Document, error) {
	r.mu.RLock()
	e, ok := r.sources[url]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sources: %q not registered", url)
	}
	return e.source.Fetch(ctx, query, timeout)
}

// FetchAll queries every registered source for query and returns the
// concatenation of whatever each one finds (spec §4.5/§4.11: "Agent Runners
// request a fetch through a Source.fetch capability" without needing to know
// any specific source's URL up front). A single source's failure — a
// timeout, an unreachable host — is logged and skipped rather than failing
// the whole gather, since a Guardian health cycle should still proceed with
// partial material instead of none.
func (r *Registry) FetchAll(ctx context.Context, query string, timeout time.Duration) []Document {
	r.mu.RLock()
	srcs := make(map[string]Source, len(r.sources))
	for url, e := range r.sources {
		srcs[url] = e.source
	}
	r.mu.RUnlock()

	var docs []Document
	for url, src := range srcs {
		found, err := src.Fetch(ctx, query, timeout)
		if err != nil {
			slog.Warn("source fetch failed", "url", url, "error", err)
			continue
		}
		docs = append(docs, found...)
	}
	return docs
}

// IsTrusted reports whether url is a trusted source, used to gate learning
// integration (spec §4.5: "untrusted sources are excluded from learning
// integration").
func (r *Registry) IsTrusted(url string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[url].trusted
}
