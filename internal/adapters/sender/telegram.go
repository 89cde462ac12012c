package sender

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
)

const TelegramMessageLimit = 4096

//go:generate mockery --name TelegramBot

type TelegramBot interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

type Telegram struct {
	bot TelegramBot
}

func NewTelegram(b TelegramBot) *Telegram {
	return &Telegram{bot: b}
}

// Send delivers body to the chat with the given id, split into chunks that
// fit the message size limit.
func (s *Telegram) Send(ctx context.Context, to string, body string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", to, err)
	}

	for _, chunk := range chunks(body, TelegramMessageLimit) {
		_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		})
		if err != nil {
			log.Error().Err(err).Int64("chatID", chatID).Msg("failed to send message")
			return fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err)
		}
	}

	return nil
}

// Acknowledge shows a typing indicator in the conversation of msg.
func (s *Telegram) Acknowledge(ctx context.Context, msg domain.Message) error {
	chatID, err := strconv.ParseInt(msg.Conversation, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.Conversation, err)
	}

	log.Debug().Int64("chatID", chatID).Msg("transmitting action")
	_, err = s.bot.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	if err != nil {
		log.Err(err).Msg("error sending chat action")
		return err
	}

	return nil
}

func chunks(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var out []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}

	return out
}
