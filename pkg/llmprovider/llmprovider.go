// Package llmprovider is the HTTP/JSON client for the external LLMProvider
// collaborator (spec §6.5). The specification is explicit (§1) that LLM
// providers are reached over HTTP only — the teacher's own gRPC-based
// `pkg/llm/client.go` cannot be regenerated here anyway, since its `.proto`
// source is absent from the pack (see DESIGN.md). This client follows the
// teacher's context-bound, structured-error HTTP call idiom found across
// `pkg/api/*.go` instead.
package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aion-systems/aion-core/pkg/apperr"
)

// Message is one turn in the prompt sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is a successful provider response (spec §6.5).
type Result struct {
	Text      string
	TokensIn  int64
	TokensOut int64
}

// Client is an LLMProvider implementation backed by a single HTTP endpoint.
// One Client is constructed per (provider, model) pair — the LLM Gateway
// holds one for Primary and one for Secondary.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New constructs a Client against baseURL, authenticating with apiKey as a
// bearer token. httpClient may be nil to use http.DefaultClient's transport
// with no client-level timeout — per-call timeouts are enforced via context,
// following the teacher's pattern of context-scoped deadlines rather than
// a fixed http.Client.Timeout.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

type callRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxOutTokens  int       `json:"max_out_tokens"`
}

type callResponse struct {
	Text  string `json:"text"`
	Usage struct {
		TokensIn  int64 `json:"tokens_in"`
		TokensOut int64 `json:"tokens_out"`
	} `json:"usage"`
	Error string `json:"error"`
}

// Call implements LLMProvider.call (spec §6.5). timeout bounds the whole
// round trip and is additionally enforced by deriving a context deadline, so
// a caller that forgets to set one on ctx still gets the contract's timeout.
func (c *Client) Call(ctx context.Context, model string, messages []Message, maxOutTokens int, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(callRequest{Model: model, Messages: messages, MaxOutTokens: maxOutTokens})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "llmprovider: marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "llmprovider: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, apperr.Wrap(apperr.KindTimeout, "llmprovider: request timed out", err)
		}
		return Result{}, apperr.Wrap(apperr.KindProviderTransport, "llmprovider: request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindProviderTransport, "llmprovider: read body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, apperr.New(apperr.KindProviderTransport, fmt.Sprintf("llmprovider: status %d: %s", resp.StatusCode, string(raw)))
	}

	var out callResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, apperr.Wrap(apperr.KindProviderTransport, "llmprovider: decode response", err)
	}
	if out.Error != "" {
		return Result{}, apperr.New(apperr.KindProviderTransport, "llmprovider: "+out.Error)
	}

	return Result{Text: out.Text, TokensIn: out.Usage.TokensIn, TokensOut: out.Usage.TokensOut}, nil
}
