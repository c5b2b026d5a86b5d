package runbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// GitHubClient downloads document content and enumerates Markdown files from
// a GitHub repository on behalf of a RunbookSource.
type GitHubClient struct {
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// NewGitHubClient builds a client for GitHub's content and contents-listing
// APIs. token may be empty for public repositories, at the cost of GitHub's
// lower unauthenticated rate limits.
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		logger:     slog.Default(),
	}
}

// DownloadContent fetches the raw text of rawURL, converting GitHub blob
// URLs to their raw.githubusercontent.com equivalent first.
func (c *GitHubClient) DownloadContent(ctx context.Context, rawURL string) (string, error) {
	downloadURL := ConvertToRawURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch document from %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub returned HTTP %d for %s", resp.StatusCode, downloadURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	return string(body), nil
}

// githubContentItem is one entry of a GitHub Contents API listing.
type githubContentItem struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Type    string `json:"type"` // "file" or "dir"
	HTMLURL string `json:"html_url"`
}

// ListMarkdownFiles walks repoURL's directory tree via the GitHub Contents
// API and returns the blob URL of every Markdown file found.
func (c *GitHubClient) ListMarkdownFiles(ctx context.Context, repoURL string) ([]string, error) {
	parts, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, fmt.Errorf("parse repo URL: %w", err)
	}

	return c.listMarkdownFilesRecursive(ctx, parts.Owner, parts.Repo, parts.Ref, parts.Path)
}

func (c *GitHubClient) listMarkdownFilesRecursive(ctx context.Context, owner, repo, ref, path string) ([]string, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s?ref=%s", owner, repo, path, ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list contents at %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned HTTP %d for path %q", resp.StatusCode, path)
	}

	var items []githubContentItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode contents response: %w", err)
	}

	var mdFiles []string
	for _, item := range items {
		switch item.Type {
		case "file":
			if strings.HasSuffix(strings.ToLower(item.Name), ".md") {
				mdFiles = append(mdFiles, item.HTMLURL)
			}
		case "dir":
			subFiles, err := c.listMarkdownFilesRecursive(ctx, owner, repo, ref, item.Path)
			if err != nil {
				c.logger.Warn("list subdirectory failed", "path", item.Path, "error", err)
				continue
			}
			mdFiles = append(mdFiles, subFiles...)
		}
	}

	return mdFiles, nil
}

func (c *GitHubClient) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
