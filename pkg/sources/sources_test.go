package sources_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/sources"
	"github.com/aion-systems/aion-core/pkg/store/memstore"
)

type stubSource struct {
	docs []sources.Document
	err  error
}

func (s stubSource) Fetch(ctx context.Context, query string, timeout time.Duration) ([]sources.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func TestRegistryAddListFetch(t *testing.T) {
	st := memstore.New()
	reg := sources.New(st, func(url string) (sources.Source, error) {
		return stubSource{docs: []sources.Document{{Title: "t", URL: url}}}, nil
	})
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "https://example.com/kb", true))
	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "https://example.com/kb", list[0].URL)
	assert.True(t, reg.IsTrusted("https://example.com/kb"))

	docs, err := reg.Fetch(ctx, "https://example.com/kb", "q", time.Second)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestRegistryHydrateRestoresFromStore(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	require.NoError(t, st.SourceAdd(ctx, "https://example.com/a", false))

	reg := sources.New(st, func(url string) (sources.Source, error) {
		return stubSource{}, nil
	})
	require.NoError(t, reg.Hydrate(ctx))

	assert.Len(t, reg.List(), 1)
	assert.False(t, reg.IsTrusted("https://example.com/a"))
}

func TestRegistryFetchAllAggregatesAcrossSourcesAndSkipsFailures(t *testing.T) {
	st := memstore.New()
	reg := sources.New(st, func(url string) (sources.Source, error) {
		if url == "https://bad.example.com" {
			return stubSource{err: assert.AnError}, nil
		}
		return stubSource{docs: []sources.Document{{Title: url, URL: url}}}, nil
	})
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "https://good-a.example.com", true))
	require.NoError(t, reg.Add(ctx, "https://good-b.example.com", true))
	require.NoError(t, reg.Add(ctx, "https://bad.example.com", true))

	docs := reg.FetchAll(ctx, "disk_full", time.Second)
	assert.Len(t, docs, 2)
}

func TestRegistryRemove(t *testing.T) {
	st := memstore.New()
	reg := sources.New(st, func(url string) (sources.Source, error) { return stubSource{}, nil })
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "u1", true))
	require.NoError(t, reg.Remove(ctx, "u1"))
	assert.Empty(t, reg.List())
}
