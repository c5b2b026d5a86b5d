package runbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubClientDownloadContent(t *testing.T) {
	t.Run("successful download", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("# Disk Space Remediation\n\nStep 1: check pod evictions"))
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		content, err := client.DownloadContent(context.Background(), server.URL+"/aion/runbooks/blob/main/disk-space.md")
		require.NoError(t, err)
		assert.Equal(t, "# Disk Space Remediation\n\nStep 1: check pod evictions", content)
	})

	t.Run("authentication header sent when token present", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("content"))
		}))
		defer server.Close()

		client := newTestGitHubClient("test-token-123", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/file.md")
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token-123", gotAuth)
	})

	t.Run("no auth header when token empty", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("content"))
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/file.md")
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})

	t.Run("HTTP 404 returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/missing.md")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("HTTP 500 returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/file.md")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("content"))
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.DownloadContent(ctx, server.URL+"/file.md")
		require.Error(t, err)
	})
}

func TestGitHubClientListMarkdownFiles(t *testing.T) {
	t.Run("lists md files from flat directory", func(t *testing.T) {
		items := []githubContentItem{
			{Name: "disk-space.md", Path: "runbooks/disk-space.md", Type: "file", HTMLURL: "https://github.com/aion/runbooks/blob/main/runbooks/disk-space.md"},
			{Name: "network-partition.md", Path: "runbooks/network-partition.md", Type: "file", HTMLURL: "https://github.com/aion/runbooks/blob/main/runbooks/network-partition.md"},
			{Name: "README.txt", Path: "runbooks/README.txt", Type: "file", HTMLURL: "https://github.com/aion/runbooks/blob/main/runbooks/README.txt"},
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(items)
		}))
		defer server.Close()

		client := newTestGitHubClientWithAPIBase("", server)
		files, err := client.ListMarkdownFiles(context.Background(), "https://github.com/aion/runbooks/tree/main/runbooks")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://github.com/aion/runbooks/blob/main/runbooks/disk-space.md",
			"https://github.com/aion/runbooks/blob/main/runbooks/network-partition.md",
		}, files)
	})

	t.Run("recurses into subdirectories", func(t *testing.T) {
		callCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			callCount++
			w.Header().Set("Content-Type", "application/json")

			if callCount == 1 {
				items := []githubContentItem{
					{Name: "root.md", Path: "runbooks/root.md", Type: "file", HTMLURL: "https://github.com/aion/runbooks/blob/main/runbooks/root.md"},
					{Name: "subdir", Path: "runbooks/subdir", Type: "dir"},
				}
				_ = json.NewEncoder(w).Encode(items)
			} else {
				items := []githubContentItem{
					{Name: "nested.md", Path: "runbooks/subdir/nested.md", Type: "file", HTMLURL: "https://github.com/aion/runbooks/blob/main/runbooks/subdir/nested.md"},
				}
				_ = json.NewEncoder(w).Encode(items)
			}
		}))
		defer server.Close()

		client := newTestGitHubClientWithAPIBase("", server)
		files, err := client.ListMarkdownFiles(context.Background(), "https://github.com/aion/runbooks/tree/main/runbooks")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://github.com/aion/runbooks/blob/main/runbooks/root.md",
			"https://github.com/aion/runbooks/blob/main/runbooks/subdir/nested.md",
		}, files)
		assert.Equal(t, 2, callCount)
	})

	t.Run("empty directory returns empty slice", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]githubContentItem{})
		}))
		defer server.Close()

		client := newTestGitHubClientWithAPIBase("", server)
		files, err := client.ListMarkdownFiles(context.Background(), "https://github.com/aion/runbooks/tree/main/runbooks")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("API error returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestGitHubClientWithAPIBase("", server)
		_, err := client.ListMarkdownFiles(context.Background(), "https://github.com/aion/runbooks/tree/main/runbooks")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("invalid repo URL returns error", func(t *testing.T) {
		client := NewGitHubClient("")
		_, err := client.ListMarkdownFiles(context.Background(), "https://not-github.com/repo")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse repo URL")
	})

	t.Run("case insensitive md extension", func(t *testing.T) {
		items := []githubContentItem{
			{Name: "upper.MD", Path: "runbooks/upper.MD", Type: "file", HTMLURL: "https://github.com/aion/runbooks/blob/main/runbooks/upper.MD"},
			{Name: "mixed.Md", Path: "runbooks/mixed.Md", Type: "file", HTMLURL: "https://github.com/aion/runbooks/blob/main/runbooks/mixed.Md"},
		}

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(items)
		}))
		defer server.Close()

		client := newTestGitHubClientWithAPIBase("", server)
		files, err := client.ListMarkdownFiles(context.Background(), "https://github.com/aion/runbooks/tree/main/runbooks")
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})
}

// newTestGitHubClient points DownloadContent straight at the test server,
// for cases where the URL under test is used as-is.
func newTestGitHubClient(token string, server *httptest.Server) *GitHubClient {
	client := NewGitHubClient(token)
	client.httpClient = server.Client()
	return client
}

// newTestGitHubClientWithAPIBase reroutes api.github.com / raw.githubusercontent.com
// traffic to the test server via a custom RoundTripper.
func newTestGitHubClientWithAPIBase(token string, server *httptest.Server) *GitHubClient {
	client := NewGitHubClient(token)
	client.httpClient = &http.Client{
		Transport: &redirectingTransport{
			server:   server,
			delegate: http.DefaultTransport,
		},
	}
	return client
}

// redirectingTransport rewrites requests bound for GitHub's real hosts so
// they land on the local test server instead.
type redirectingTransport struct {
	server   *httptest.Server
	delegate http.RoundTripper
}

func (t *redirectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == "api.github.com" || req.URL.Host == "raw.githubusercontent.com" {
		parsed, _ := url.Parse(t.server.URL)
		req.URL.Scheme = parsed.Scheme
		req.URL.Host = parsed.Host
	}
	return t.delegate.RoundTrip(req)
}
