package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mpataki/foundry/internal/models"
	"github.com/mpataki/foundry/internal/stage"
)

type OpenAIOptions struct {
	// BaseURL selects an OpenAI-compatible endpoint such as Groq or a local
	// server. Empty means api.openai.com.
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	// JSONMode asks the server for a JSON object response.
	JSONMode bool
	Timeout  time.Duration
}

type OpenAIGenerator struct {
	client *openai.Client
	opts   OpenAIOptions
	logger *zap.Logger
}

func NewOpenAI(opts OpenAIOptions, logger *zap.Logger) (*OpenAIGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", models.ErrGenerationFault)
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	logger.Info("initializing OpenAI generator", zap.String("model", opts.Model), zap.String("base_url", config.BaseURL))
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		opts:   opts,
		logger: logger.Named("generator"),
	}, nil
}

// Generate implements stage.Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req stage.GenerateRequest) (models.FileSet, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model: g.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		Temperature: g.opts.Temperature,
	}
	if g.opts.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = g.opts.MaxTokens
	}
	if g.opts.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	g.logger.Debug("requesting generation",
		zap.String("model", g.opts.Model),
		zap.Int("iteration", req.Iteration),
		zap.Int("error_context", len(req.ErrorContext)))

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]
	g.logger.Debug("received generation",
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	files, err := DecodeFiles(choice.Message.Content)
	if err != nil {
		if choice.FinishReason == openai.FinishReasonLength {
			return nil, fmt.Errorf("reply truncated at the token limit: %w", err)
		}
		return nil, err
	}
	return files, nil
}

// classifyAPIError marks rejected credentials, unknown models and invalid
// requests as generation faults. Rate limits and server errors stay
// retryable.
func classifyAPIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
		return fmt.Errorf("%w: OpenAI API call failed with status %d: %v", models.ErrGenerationFault, status, err)
	}
	return fmt.Errorf("OpenAI API call failed: %w", err)
}
