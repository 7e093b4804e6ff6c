// Package gemini wraps the Google Gemini API for JSON generation.
package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// Client generates structured text with Gemini.
type Client interface {
	// GenerateJSON sends prompt with an optional system instruction and
	// returns the model's JSON text with any markdown fences removed.
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// APIError carries the HTTP status of a failed Gemini call.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string { return e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = url
	}
}

type genaiClient struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client for model.
func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	if model == "" {
		model = defaultModel
	}
	return &genaiClient{client: client, model: model}, nil
}

func (c *genaiClient) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			err = &APIError{StatusCode: apiErr.Code, Err: err}
		}
		return "", eris.Wrap(err, "gemini: generate content")
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	return cleanJSONBlock(text), nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", eris.New("gemini: no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", eris.Errorf("gemini: empty response (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
