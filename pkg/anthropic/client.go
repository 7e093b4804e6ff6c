// Package anthropic is a small client over the Anthropic messages API for
// prompts that must answer with a single JSON document.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Anthropic API operations used by the script writer.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopMaxTokens is the stop reason reported when output hit MaxTokens.
const StopMaxTokens = "max_tokens"

// MessageRequest is one CreateMessage call.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    string
	// SystemCacheTTL marks the system prompt as a cache breakpoint ("5m" or
	// "1h"). Empty disables prompt caching.
	SystemCacheTTL string
	Messages       []Message
	Temperature    *float64
}

// Message is a single conversational turn.
type Message struct {
	Role    Role
	Content string
}

// Prefill returns a user prompt followed by a partial assistant turn. The
// model continues from prefix, so the response text omits it.
func Prefill(prompt, prefix string) []Message {
	msgs := []Message{{Role: RoleUser, Content: prompt}}
	if prefix != "" {
		msgs = append(msgs, Message{Role: RoleAssistant, Content: prefix})
	}
	return msgs
}

// MessageResponse is the flattened result of CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

// Truncated reports whether the model ran out of output tokens.
func (r *MessageResponse) Truncated() bool {
	return r.StopReason == StopMaxTokens
}

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Fields renders u as zap fields.
func (u Usage) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheWriteTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
	}
}

// APIError carries the HTTP status of a failed API call.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string { return e.Err.Error() }

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a Client backed by the official SDK with SDK retries
// disabled. Callers own retry policy.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{systemBlock(req.System, req.SystemCacheTTL)}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var sdkErr *sdk.Error
		if errors.As(err, &sdkErr) {
			err = &APIError{StatusCode: sdkErr.StatusCode, Err: err}
		}
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

func systemBlock(text, ttl string) sdk.TextBlockParam {
	block := sdk.TextBlockParam{Text: text}
	if ttl != "" {
		cc := sdk.NewCacheControlEphemeralParam()
		cc.TTL = sdk.CacheControlEphemeralTTL(ttl)
		block.CacheControl = cc
	}
	return block
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out[i] = sdk.NewAssistantMessage(block)
		} else {
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}
}
