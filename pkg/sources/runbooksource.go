package sources

import (
	"context"
	"strings"
	"time"

	"github.com/aion-systems/aion-core/pkg/runbook"
)

// githubClient is the minimal surface RunbookSource needs, satisfied by
// pkg/runbook.GitHubClient (kept and adapted from the teacher — see
// DESIGN.md). Declared as an interface here so tests can stub it without
// making an HTTP call.
type githubClient interface {
	DownloadContent(ctx context.Context, rawURL string) (string, error)
	ListMarkdownFiles(ctx context.Context, repoURL string) ([]string, error)
}

// RunbookSource adapts a GitHub-hosted runbook directory into a Source,
// grounded on the teacher's pkg/runbook package (GitHubClient +
// ListMarkdownFiles + DownloadContent), generalized from tarsy's
// alert-runbook lookup into a general document-fetch capability: Fetch
// treats query as a case-insensitive substring filter over file paths, and
// returns the matching files' content as Document snippets. Fetched content
// is cached with pkg/runbook.Cache to avoid re-downloading the same file on
// every cycle.
type RunbookSource struct {
	repoURL string
	client  githubClient
	cache   *runbook.Cache
}

// NewRunbookSource constructs a Source over the markdown files found in the
// GitHub repository/directory at repoURL, caching downloaded content for 10
// minutes.
func NewRunbookSource(repoURL string, client githubClient) *RunbookSource {
	return &RunbookSource{repoURL: repoURL, client: client, cache: runbook.NewCache(10 * time.Minute)}
}

func (r *RunbookSource) Fetch(ctx context.Context, query string, timeout time.Duration) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	files, err := r.client.ListMarkdownFiles(ctx, r.repoURL)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var docs []Document
	for _, f := range files {
		if needle != "" && !strings.Contains(strings.ToLower(f), needle) {
			continue
		}
		content, ok := r.cache.Get(f)
		if !ok {
			content, err = r.client.DownloadContent(ctx, f)
			if err != nil {
				continue
			}
			r.cache.Set(f, content)
		}
		docs = append(docs, Document{Title: f, URL: f, Snippet: snippet(content, 400)})
	}
	return docs, nil
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
