package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/revrost/go-openrouter"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
)

const DefaultModel = "openai/gpt-4.1-mini"

const DefaultSystemPrompt = "You answer questions in a chat. Reply with a short plain text answer " +
	"of at most a few sentences. For calculations, reply with the result only."

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context,
		ccr openrouter.ChatCompletionRequest) (openrouter.ChatCompletionResponse, error)
}

type OpenRouter struct {
	client       chatCompleter
	model        string
	systemPrompt string
}

func NewOpenRouter(apiKey, model, systemPrompt string) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter api key not configured")
	}

	if model == "" {
		model = DefaultModel
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	return &OpenRouter{
		model:        model,
		systemPrompt: systemPrompt,
		client: openrouter.NewClient(
			apiKey,
			openrouter.WithXTitle("tombot"),
		),
	}, nil
}

// Answer asks the model a single question without conversation history.
func (c *OpenRouter) Answer(ctx context.Context, query string) (domain.ModelResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.ModelResponse{}, domain.ErrEmptyPrompt
	}

	ccr := openrouter.ChatCompletionRequest{
		Model: c.model,
		Messages: []openrouter.ChatCompletionMessage{
			{
				Role:    openrouter.ChatMessageRoleSystem,
				Content: openrouter.Content{Text: c.systemPrompt},
			},
			{
				Role:    openrouter.ChatMessageRoleUser,
				Content: openrouter.Content{Text: query},
			},
		},
	}

	log.Debug().Str("model", c.model).Msg("sending answer request")

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return domain.ModelResponse{}, fmt.Errorf("openrouter API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return domain.ModelResponse{}, errors.New("openrouter returned no choices")
	}

	return domain.ModelResponse{
		Response: strings.TrimSpace(resp.Choices[0].Message.Content.Text),
		Metadata: domain.ResponseMetadata{
			Model: resp.Model,
		},
	}, nil
}
