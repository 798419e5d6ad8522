package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"replygate/internal/config"
	"replygate/internal/interfaces"
)

// CompletionClient talks to an OpenAI-compatible chat completions endpoint
// (Groq and xAI both expose one).
type CompletionClient struct {
	profile     config.ProviderProfile
	apiKey      string
	temperature float64
	httpClient  *http.Client
}

func NewCompletionClient(profile config.ProviderProfile, apiKey string, timeout time.Duration) *CompletionClient {
	return &CompletionClient{
		profile:     profile,
		apiKey:      apiKey,
		temperature: 0.1,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

var _ interfaces.CompletionProvider = (*CompletionClient)(nil)

func (c *CompletionClient) Name() string {
	return c.profile.Name + "/" + c.profile.Model
}

type chatRequest struct {
	Model       string                   `json:"model"`
	Messages    []interfaces.ChatMessage `json:"messages"`
	Temperature float64                  `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete returns the content of the first choice.
func (c *CompletionClient) Complete(ctx context.Context, messages []interfaces.ChatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.profile.Model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.profile.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s request failed: %s: %s", c.profile.Name, resp.Status, bytes.TrimSpace(snippet))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.profile.Name)
	}
	return out.Choices[0].Message.Content, nil
}
