package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aion-systems/aion-core/pkg/version"
)

// mcpDocsTool is the conventional tool name an MCP-backed knowledge source
// is expected to expose for Fetch — a "search documents" capability.
// Grounded on the teacher's pkg/mcp.Client.CallTool usage pattern.
const mcpDocsTool = "search_documents"

// MCPSource adapts an MCP server (reached over Streamable HTTP) into a
// Source. It lazily connects on first Fetch and reuses the session
// thereafter, mirroring the teacher's pkg/mcp.Client session-caching idiom
// (adapted down from a multi-server registry to a single server per URL,
// since the Source Registry already keys by URL).
type MCPSource struct {
	endpoint string

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

// NewMCPSource constructs an MCP-backed Source talking to endpoint over
// Streamable HTTP (spec §4.5's "fetch adapter").
func NewMCPSource(endpoint string) *MCPSource {
	return &MCPSource{endpoint: endpoint}
}

func (m *MCPSource) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session, nil
	}

	transport := &mcpsdk.StreamableClientTransport{Endpoint: m.endpoint}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpsource: connect %s: %w", m.endpoint, err)
	}
	m.session = session
	return session, nil
}

// Fetch calls the server's search_documents tool with {"query": query} and
// decodes its structured content into Documents.
func (m *MCPSource) Fetch(ctx context.Context, query string, timeout time.Duration) ([]Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcpDocsTool,
		Arguments: map[string]any{"query": query},
	})
	if err != nil {
		// Session may have gone stale; drop it so the next Fetch reconnects,
		// mirroring the teacher's recreateSession-on-failure behavior.
		m.mu.Lock()
		m.session = nil
		m.mu.Unlock()
		return nil, fmt.Errorf("mcpsource: call %s: %w", mcpDocsTool, err)
	}

	return decodeDocuments(result)
}

type mcpDocumentPayload struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func decodeDocuments(result *mcpsdk.CallToolResult) ([]Document, error) {
	var docs []Document
	for _, c := range result.Content {
		tc, ok := c.(*mcpsdk.TextContent)
		if !ok {
			continue
		}
		var payload []mcpDocumentPayload
		if err := json.Unmarshal([]byte(tc.Text), &payload); err != nil {
			continue
		}
		for _, p := range payload {
			docs = append(docs, Document{Title: p.Title, URL: p.URL, Snippet: p.Snippet})
		}
	}
	return docs, nil
}
