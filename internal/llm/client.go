// Package llm holds the OpenAI-compatible extraction client. One call per
// chunk; transient provider failures are retried in-process with the
// pipeline backoff before the failure surfaces to the task.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/fault"
	"github.com/tenderhub/extraction-pipeline/internal/retry"
)

const systemPrompt = `You extract structured procurement data from tender documents.
Return a single JSON object mapping field names to values. Use lists for
multi-valued fields. Return {} when the text contains nothing relevant.`

type Extractor interface {
	Extract(ctx context.Context, chunkText string, sourceName string) (map[string]any, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	retryCfg   retry.Config
}

// Make sure we conform to Extractor interface
var _ Extractor = (*Client)(nil)

func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.LLM.Timeout},
		baseURL:    strings.TrimSuffix(cfg.LLM.BaseUrl, "/"),
		apiKey:     cfg.LLM.APIKey,
		model:      cfg.LLM.Model,
		retryCfg: retry.Config{
			MaxAttempts:    cfg.LLM.MaxAttempts,
			BaseDelay:      retry.DefaultBaseDelay,
			MaxDelay:       retry.DefaultMaxDelay,
			RetryableKinds: retry.DefaultRetryableKinds,
		},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Extract sends one chunk to the model and decodes the structured payload
// from the reply. Rate limits, timeouts and 5xx answers are retried with
// backoff; the last error is returned once the attempt budget is spent.
func (c *Client) Extract(ctx context.Context, chunkText string, sourceName string) (map[string]any, error) {
	var payload map[string]any

	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		extracted, err := c.extractOnce(ctx, chunkText, sourceName)
		if err != nil {
			return err
		}
		payload = extracted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) extractOnce(ctx context.Context, chunkText string, sourceName string) (map[string]any, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Document: %s\n\n%s", sourceName, chunkText)},
		},
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindLLM, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindLLM, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.KindTimeout, err)
		}
		return nil, fault.Errorf(fault.KindTimeout, "llm request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindLLM, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fault.Errorf(fault.KindRateLimit, "llm rate limited: %s", truncate(raw))
	case resp.StatusCode >= 500:
		return nil, fault.Errorf(fault.KindLLM, "llm server error %d: %s", resp.StatusCode, truncate(raw))
	case resp.StatusCode != http.StatusOK:
		return nil, fault.Errorf(fault.KindPermanent, "llm request rejected %d: %s", resp.StatusCode, truncate(raw))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fault.Wrap(fault.KindLLM, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fault.New(fault.KindLLM, "llm returned no choices")
	}

	return parsePayload(chat.Choices[0].Message.Content)
}

// parsePayload decodes the model's reply into a map. Models wrap JSON in
// prose or code fences often enough that a bracket-slice fallback is worth
// keeping.
func parsePayload(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)

	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		return payload, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fault.Errorf(fault.KindLLM, "llm reply contains no JSON object: %s", truncate([]byte(content)))
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fault.Wrap(fault.KindLLM, err)
	}
	return payload, nil
}

func truncate(raw []byte) string {
	const max = 200
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
