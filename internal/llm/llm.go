// ABOUTME: Completer abstraction over chat-completion backends used by builtin agents
// ABOUTME: Provides the OpenAI-backed client and an offline echo client

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrEmptyCompletion is returned when the backend answers with no choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAI completes prompts with an OpenAI-compatible chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI completer. An empty baseURL uses the default
// endpoint; an empty apiKey sends unauthenticated requests, which local
// OpenAI-compatible servers accept.
func NewOpenAI(baseURL, apiKey, model string, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm")

	var options []option.RequestOption
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	if apiKey == "" {
		logger.Info("no LLM API key configured, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &OpenAI{client: &client, model: model, logger: logger}
}

// Complete sends the system and user messages and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.model,
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	o.logger.Debug("completion finished",
		"model", o.model,
		"prompt_chars", len(req.Prompt),
		"reply_chars", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}

// Echo answers with the last non-empty line of the prompt. It needs no
// network and is used for development and tests.
type Echo struct{}

// Complete returns the prompt's last line, with any "USER: " prefix removed.
func (Echo) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	last = strings.TrimPrefix(last, "USER: ")
	if last == "" {
		return "", ErrEmptyCompletion
	}
	return "echo: " + last, nil
}

// New builds the completer named by provider ("openai" or "echo").
func New(provider, baseURL, apiKey, model string, logger *slog.Logger) (Completer, error) {
	switch provider {
	case "", "openai":
		return NewOpenAI(baseURL, apiKey, model, logger), nil
	case "echo":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
