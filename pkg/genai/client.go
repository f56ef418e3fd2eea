package genai

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client defines the generative-text operations used by the report pipeline.
// Callers never talk to it directly; every call goes through the gateway.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is our own request type for a single-prompt completion.
type GenerateRequest struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	System      string
	Prompt      string
}

// GenerateResponse is our own response type.
type GenerateResponse struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      TokenUsage
}

// TokenUsage tracks token consumption for cost logging.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// APIError carries the provider's HTTP status so the gateway can decide
// whether a failure is retryable. RetryAfter is the raw Retry-After header
// value, empty when absent.
type APIError struct {
	StatusCode int
	RetryAfter string
	Err        error
}

func (e *APIError) Error() string {
	return e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AsAPIError returns the APIError in err's chain, or nil.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new provider client backed by the SDK. The SDK's own
// retry loop is disabled: retry policy lives in the gateway.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
	}
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapSDKError(err)
	}

	return &GenerateResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       extractText(msg),
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

// wrapSDKError converts SDK failures into APIError so status-based retry
// decisions don't depend on the SDK's types.
func wrapSDKError(err error) error {
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		apiErr := &APIError{
			StatusCode: sdkErr.StatusCode,
			Err:        eris.Wrap(err, "genai: generate"),
		}
		if sdkErr.Response != nil {
			apiErr.RetryAfter = sdkErr.Response.Header.Get("Retry-After")
		}
		return apiErr
	}
	return eris.Wrap(err, "genai: generate")
}

func extractText(msg *sdk.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
