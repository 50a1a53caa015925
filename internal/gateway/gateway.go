// Package gateway sends one system prompt and one user message to an
// OpenAI-compatible chat completion endpoint and returns the reply text.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrMissingAPIKey = errors.New("completion api key is required")
	ErrNoChoices     = errors.New("completion returned no choices")
)

// Completer is what the workflow needs from the gateway.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds each call. Zero leaves only the caller's context.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Gateway struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func New(opts Options) (*Gateway, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("completion model is required")
	}
	cc := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cc.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cc.HTTPClient = opts.HTTPClient
	}
	return &Gateway{
		client:  openai.NewClientWithConfig(cc),
		model:   opts.Model,
		timeout: opts.Timeout,
	}, nil
}

func (g *Gateway) Model() string { return g.model }

// BuildRequest always yields exactly [system, user], in that order.
func BuildRequest(model, systemPrompt, userContent string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	}
}

// Complete performs a single completion call. Remote rejections, transport
// failures and empty responses are all returned as errors.
func (g *Gateway) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.client.CreateChatCompletion(ctx, BuildRequest(g.model, systemPrompt, userContent))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
