package sources

import (
	"fmt"
	"strings"

	"github.com/aion-systems/aion-core/pkg/runbook"
)

// githubAllowedDomains restricts RunbookSource to github.com proper,
// rejecting lookalike hosts (spec §4.5 sources are URL-identified; nothing
// stops a registered URL from pointing somewhere other than GitHub itself
// without this check).
var githubAllowedDomains = []string{"github.com"}

// DefaultFactory builds a RunbookSource for URLs containing "github.com",
// rejecting them unless their host is github.com itself, and an MCPSource
// for every other URL. githubToken may be empty for public repositories.
func DefaultFactory(githubToken string) Factory {
	ghClient := runbook.NewGitHubClient(githubToken)
	return func(url string) (Source, error) {
		switch {
		case strings.Contains(url, "github.com"):
			if err := runbook.ValidateRunbookURL(url, githubAllowedDomains); err != nil {
				return nil, fmt.Errorf("sources: %w", err)
			}
			return NewRunbookSource(url, ghClient), nil
		default:
			return NewMCPSource(url), nil
		}
	}
}
