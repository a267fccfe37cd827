package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pulseroad/pulse/backend/internal/metrics"
)

// OllamaVLM talks to a local OpenAI-compatible chat completions endpoint
// (Ollama, llama.cpp server) hosting a vision model.
type OllamaVLM struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaVLM creates a client for an OpenAI-compatible server at url.
func NewOllamaVLM(url, model string, poolSize int, timeout time.Duration) *OllamaVLM {
	return &OllamaVLM{
		url:    url,
		model:  model,
		client: NewPooledHTTPClient(poolSize, timeout),
	}
}

// CloseIdleConnections drops pooled connections. Called via the
// pipeline's release hook once a session has no work left.
func (c *OllamaVLM) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

func (c *OllamaVLM) Assess(ctx context.Context, frames [][]byte, prompt, systemPrompt string) (string, error) {
	content := []map[string]any{{"type": "text", "text": prompt}}
	for _, frame := range frames {
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]string{
				"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
			},
		})
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": content},
		},
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal vlm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create vlm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("vlm", "http").Inc()
		return "", fmt.Errorf("vlm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("vlm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("vlm status %d: %s", resp.StatusCode, errBody)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read vlm response: %w", err)
	}

	text := gjson.GetBytes(respBody, "choices.0.message.content")
	if !text.Exists() {
		metrics.Errors.WithLabelValues("vlm", "shape").Inc()
		return "", fmt.Errorf("vlm response missing choices.0.message.content")
	}
	return text.String(), nil
}
