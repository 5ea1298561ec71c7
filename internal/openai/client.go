// Package openai is a thin client for the OpenAI REST API covering the two
// endpoints the bot uses: chat completions and image generation.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/afelu/guardian/internal/config"
)

type Client struct {
	apiKey     string
	baseURL    string
	chatModel  string
	imageSize  string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:    cfg.OpenAIAPIKey,
		baseURL:   strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		chatModel: cfg.ChatModel,
		imageSize: cfg.ImageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

const systemPrompt = "You are a helpful assistant for Ethiopian users. " +
	"If the user writes in Amharic (Ethiopic script), answer in Amharic. " +
	"Keep answers concise and practical."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletion sends a single-turn prompt and returns the assistant reply.
func (c *Client) ChatCompletion(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.chatModel,
		"messages": []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		"max_tokens": 1000,
	}

	var chatResp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", payload, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// GenerateImage returns a URL of the generated image.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"prompt": prompt,
		"n":      1,
		"size":   c.imageSize,
	}

	var imgResp struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/images/generations", payload, &imgResp); err != nil {
		return "", err
	}
	if len(imgResp.Data) == 0 || imgResp.Data[0].URL == "" {
		return "", fmt.Errorf("image generation: empty data")
	}
	return imgResp.Data[0].URL, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post openai: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		c.log.Error("openai request failed", "status", resp.StatusCode, "path", path, "body", truncateBody(rawBody))
		return fmt.Errorf("openai error: status=%d path=%s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("decode openai response: %w (body=%s)", err, truncateBody(rawBody))
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
