package commands

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

const (
	AskUsageReply  = "Usage: ask <question>"
	AskFailedReply = "Sorry, I have no answer right now."
)

// Ask forwards questions to the knowledge-answer provider.
type Ask struct {
	answerer port.Answerer
}

func NewAsk(answerer port.Answerer) *Ask {
	return &Ask{answerer: answerer}
}

func (a *Ask) Name() string {
	return "ask"
}

func (a *Ask) Register(registry *command.Registry, _ *event.Bus) error {
	if a.answerer == nil {
		return errors.New("no answer provider configured")
	}

	registry.Register([]string{"ask", "define", "calc"}, port.CommandFunc(a.respond), command.WithCategory("knowledge"))
	return nil
}

func (a *Ask) respond(ctx context.Context, message domain.Message) (string, error) {
	query := message.Query()
	if query == "" {
		return AskUsageReply, nil
	}

	l := log.With().Str("sender", message.Sender).Logger()
	l.Info().Msg("handling request")

	resp, err := a.answerer.Answer(ctx, query)
	if errors.Is(err, domain.ErrEmptyPrompt) {
		return AskUsageReply, nil
	}
	if err != nil {
		l.Error().Err(err).Msg("failed to get answer")
		return AskFailedReply, nil
	}

	l.Debug().Str("model", resp.Metadata.Model).Msg("answer received")
	return resp.Response, nil
}
