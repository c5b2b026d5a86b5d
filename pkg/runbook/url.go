package runbook

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// RepoURLParts is a GitHub tree/blob URL broken into its addressable parts.
type RepoURLParts struct {
	Owner string
	Repo  string
	Ref   string
	Path  string
}

// githubBlobTreePattern matches GitHub blob or tree URL paths:
// /{owner}/{repo}/{blob|tree}/{ref}/{path...}
var githubBlobTreePattern = regexp.MustCompile(`^/([^/]+)/([^/]+)/(blob|tree)/([^/]+)(?:/(.*))?$`)

// ConvertToRawURL rewrites a GitHub blob URL to its raw-content equivalent.
// URLs that are already raw, or aren't recognized GitHub URLs at all, pass
// through unchanged.
func ConvertToRawURL(githubURL string) string {
	parsed, err := url.Parse(githubURL)
	if err != nil {
		return githubURL
	}

	if parsed.Host == "raw.githubusercontent.com" {
		return githubURL
	}

	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return githubURL
	}

	matches := githubBlobTreePattern.FindStringSubmatch(parsed.Path)
	if matches == nil {
		return githubURL
	}

	owner := matches[1]
	repo := matches[2]
	// matches[3] is "blob" or "tree", unused beyond matching.
	ref := matches[4]
	path := matches[5]

	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/refs/heads/%s/%s", owner, repo, ref, path)
}

// ParseRepoURL splits a GitHub tree/blob URL
// (https://github.com/{owner}/{repo}/tree/{ref}/{path}) into its parts.
func ParseRepoURL(rawURL string) (*RepoURLParts, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return nil, fmt.Errorf("not a GitHub URL: %s", parsed.Host)
	}

	matches := githubBlobTreePattern.FindStringSubmatch(parsed.Path)
	if matches == nil {
		return nil, fmt.Errorf("URL does not match GitHub blob/tree pattern: %s", parsed.Path)
	}

	return &RepoURLParts{
		Owner: matches[1],
		Repo:  matches[2],
		Ref:   matches[4],
		Path:  matches[5],
	}, nil
}

// ValidateRunbookURL rejects a source URL unless it uses http(s) and, when
// allowedDomains is non-empty, its host matches one of them exactly or as a
// "www." subdomain. Used by the Source Registry's factory to keep a
// registered GitHub source from silently pointing somewhere else entirely.
func ValidateRunbookURL(rawURL string, allowedDomains []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q: only http and https allowed", parsed.Scheme)
	}

	if len(allowedDomains) > 0 {
		host := strings.ToLower(parsed.Hostname())
		allowed := false
		for _, domain := range allowedDomains {
			if host == domain || host == "www."+domain {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("domain %q not in allowed list", host)
		}
	}

	return nil
}
