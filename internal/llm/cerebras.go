package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/synapse/internal/domain"
)

const (
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// CerebrasClient speaks the OpenAI-compatible chat format.
type CerebrasClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewCerebrasClient(apiKey string) *CerebrasClient {
	return &CerebrasClient{
		apiKey:     apiKey,
		url:        cerebrasAPIURL,
		httpClient: &http.Client{},
	}
}

func (c *CerebrasClient) complete(ctx context.Context, messages []chatMessage, temp float32) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       cerebrasModel,
		Messages:    messages,
		Temperature: temp,
	})
	if err != nil {
		return "", fmt.Errorf("marshal cerebras request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create cerebras request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cerebras request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read cerebras response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cerebras API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal cerebras response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("cerebras API error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("cerebras API returned no choices")
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *CerebrasClient) ProposeContinuation(ctx context.Context, prompt string, priorSteps []domain.ReasoningStep, maxAlternatives int) ([]domain.Continuation, error) {
	messages := []chatMessage{
		{Role: "system", Content: "You are a careful step-by-step reasoner. Reply with JSON only."},
		{Role: "user", Content: buildContinuationPrompt(prompt, priorSteps, maxAlternatives)},
	}

	result, err := c.complete(ctx, messages, temperatureFor(maxAlternatives))
	if err != nil {
		return nil, fmt.Errorf("propose continuation: %w", err)
	}
	return parseContinuations(result, maxAlternatives)
}

func (c *CerebrasClient) RenderAnswer(ctx context.Context, prompt string, steps []domain.ReasoningStep) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: "You answer questions plainly and briefly."},
		{Role: "user", Content: buildAnswerPrompt(prompt, steps)},
	}

	result, err := c.complete(ctx, messages, answerTemperature)
	if err != nil {
		return "", fmt.Errorf("render answer: %w", err)
	}
	return result, nil
}
