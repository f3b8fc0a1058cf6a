// Package upstream performs the HTTPS calls against the antigravity
// backend: a streaming SSE call and a unary call, both returning the
// typed Delta/UnaryResult shapes instead of raw bytes, plus a structured
// error surface (status, isUpstreamApiError, rawBody) that the 429-only
// retry wrapper in internal/gateway inspects.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"

	"github.com/antigravity-gateway/gateway/internal/gwerrors"
	"github.com/antigravity-gateway/gateway/internal/resilience"
)

const (
	baseURL   = "https://daily-cloudcode-pa.sandbox.googleapis.com/v1internal"
	userAgent = "antigravity/1.0 windows/amd64"
)

// Client issues streaming and unary calls against the antigravity backend.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a Client. The HTTP client has no overall timeout: chat
// generation calls are expected to run long, and the caller's context
// plus the gateway's heartbeat are what keep the connection alive.
func New(log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Transport: resilience.SharedTransport()},
		log:        log,
	}
}

// OnDelta is invoked once per parsed upstream event, in arrival order.
type OnDelta func(Delta)

// Stream issues the streaming SSE call and invokes onDelta for every
// parsed event until EOS or error.
func (c *Client) Stream(ctx context.Context, accessToken string, body []byte, onDelta OnDelta) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+":streamGenerateContent?alt=sse", bytes.NewReader(body))
	if err != nil {
		return gwerrors.New(0, "request_error", err.Error())
	}
	c.setHeaders(req, accessToken, "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gwerrors.New(0, "transport_error", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readUpstreamError(resp)
	}

	bodyReader, err := decodeBody(resp)
	if err != nil {
		return gwerrors.New(0, "decode_error", err.Error())
	}

	scanner := bufio.NewScanner(bodyReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		delta, ok := parseDelta(payload)
		if ok {
			onDelta(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return gwerrors.New(0, "stream_read_error", err.Error())
	}
	return nil
}

// Unary issues the non-streaming call and returns the fully parsed result.
func (c *Client) Unary(ctx context.Context, accessToken string, body []byte) (*UnaryResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+":generateContent", bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.New(0, "request_error", err.Error())
	}
	c.setHeaders(req, accessToken, "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gwerrors.New(0, "transport_error", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readUpstreamError(resp)
	}

	bodyReader, err := decodeBody(resp)
	if err != nil {
		return nil, gwerrors.New(0, "decode_error", err.Error())
	}

	data, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, gwerrors.New(0, "read_error", err.Error())
	}

	return parseUnary(data), nil
}

func (c *Client) setHeaders(req *http.Request, accessToken, accept string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", userAgent)
}

// decodeBody unwraps a gzip-compressed upstream response. klauspost/compress's
// gzip reader is a drop-in for compress/gzip with a faster inflate path; the
// gateway asks for gzip on every call, since the antigravity backend's JSON
// and SSE bodies compress well.
func decodeBody(resp *http.Response) (io.Reader, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return resp.Body, nil
	}
	return gzip.NewReader(resp.Body)
}

func readUpstreamError(resp *http.Response) error {
	bodyReader, decodeErr := decodeBody(resp)
	if decodeErr != nil {
		bodyReader = resp.Body
	}
	data, _ := io.ReadAll(bodyReader)
	return gwerrors.Wrap(resp.StatusCode, extractErrorMessage(data), data)
}

func extractErrorMessage(body []byte) string {
	msg := gjson.GetBytes(body, "error.message")
	if msg.Exists() {
		return msg.String()
	}
	if len(body) == 0 {
		return "upstream error"
	}
	return fmt.Sprintf("upstream error: %s", truncate(string(body), 256))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func parseDelta(payload string) (Delta, bool) {
	root := gjson.Parse(payload)

	if usage := root.Get("usage"); usage.Exists() {
		return Delta{
			Kind: DeltaUsage,
			Usage: Usage{
				PromptTokens:     int(usage.Get("prompt_tokens").Int()),
				CompletionTokens: int(usage.Get("completion_tokens").Int()),
				TotalTokens:      int(usage.Get("total_tokens").Int()),
			},
		}, true
	}

	if toolCalls := root.Get("tool_calls"); toolCalls.Exists() && toolCalls.IsArray() {
		var calls []ToolCall
		for _, tc := range toolCalls.Array() {
			calls = append(calls, ToolCall{
				ID:               tc.Get("id").String(),
				Name:             tc.Get("function.name").String(),
				Arguments:        tc.Get("function.arguments").String(),
				ThoughtSignature: tc.Get("thoughtSignature").String(),
			})
		}
		return Delta{Kind: DeltaToolCalls, ToolCalls: calls}, true
	}

	if reasoning := root.Get("reasoning_content"); reasoning.Exists() {
		return Delta{
			Kind:             DeltaReasoning,
			ReasoningContent: reasoning.String(),
			ThoughtSignature: root.Get("thoughtSignature").String(),
		}, true
	}

	if content := root.Get("content"); content.Exists() {
		return Delta{Kind: DeltaContent, Content: content.String()}, true
	}

	return Delta{}, false
}

func parseUnary(data []byte) *UnaryResult {
	root := gjson.ParseBytes(data)

	var calls []ToolCall
	for _, tc := range root.Get("toolCalls").Array() {
		calls = append(calls, ToolCall{
			ID:               tc.Get("id").String(),
			Name:             tc.Get("function.name").String(),
			Arguments:        tc.Get("function.arguments").String(),
			ThoughtSignature: tc.Get("thoughtSignature").String(),
		})
	}

	return &UnaryResult{
		Content:            root.Get("content").String(),
		ReasoningContent:   root.Get("reasoningContent").String(),
		ReasoningSignature: root.Get("reasoningSignature").String(),
		ToolCalls:          calls,
		Usage: Usage{
			PromptTokens:     int(root.Get("usage.prompt_tokens").Int()),
			CompletionTokens: int(root.Get("usage.completion_tokens").Int()),
			TotalTokens:      int(root.Get("usage.total_tokens").Int()),
		},
	}
}

// ModelListURL is the upstream model-discovery endpoint consumed by the
// gateway's /v1/models and /v1beta/models handlers.
func ModelListURL() string { return baseURL + ":listModels" }
