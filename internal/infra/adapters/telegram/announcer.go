// Package telegram announces new articles to a channel through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"social-pipeline/internal/domain"
	"social-pipeline/internal/domain/ports/adapter"
)

var _ adapter.Announcer = (*Announcer)(nil)

// sender is the part of *tgbotapi.BotAPI the announcer needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Announcer struct {
	bot     sender
	channel string
	chatID  int64
	log     *zerolog.Logger
}

// ValidateToken checks the BOT_ID:API_KEY shape without calling Telegram.
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("telegram bot token is empty: %w", domain.ErrInvalidArgument)
	}
	if strings.Count(token, ":") != 1 {
		return fmt.Errorf("telegram bot token must look like BOT_ID:API_KEY: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// NewAnnouncer validates the token, connects the bot and targets channel,
// which is either @name or a numeric chat id.
func NewAnnouncer(token, channel string, logger *zerolog.Logger) (*Announcer, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	a, err := newAnnouncer(bot, channel, logger)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("bot", bot.Self.UserName).Str("channel", channel).Msg("telegram bot ready")
	return a, nil
}

func newAnnouncer(bot sender, channel string, logger *zerolog.Logger) (*Announcer, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, errors.New("telegram channel is required")
	}
	l := logger.With().Str("component", "TelegramAnnouncer").Logger()
	a := &Announcer{bot: bot, log: &l}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		a.chatID = id
	} else {
		if !strings.HasPrefix(channel, "@") {
			channel = "@" + channel
		}
		a.channel = channel
	}
	return a, nil
}

// Format renders the announcement in Telegram legacy Markdown.
func Format(title, body, link string) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString("📝 *" + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title) + "*\n\n")
	}
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString(tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body) + "\n\n")
	}
	if link != "" {
		b.WriteString("🔗 [Read More](" + link + ")")
	}
	return strings.TrimSpace(b.String())
}

// Announce posts the article and returns the Telegram message id.
func (a *Announcer) Announce(ctx context.Context, title, body, link string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := Format(title, body, link)
	var msg tgbotapi.MessageConfig
	if a.channel != "" {
		msg = tgbotapi.NewMessageToChannel(a.channel, text)
	} else {
		msg = tgbotapi.NewMessage(a.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := a.bot.Send(msg)
	if err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && (tgErr.Code == 401 || tgErr.Code == 403) {
			return "", fmt.Errorf("telegram send: %w: %w", domain.ErrUnauthorized, err)
		}
		return "", fmt.Errorf("telegram send: %w", err)
	}
	a.log.Info().Int("message_id", sent.MessageID).Msg("announcement posted")
	return strconv.Itoa(sent.MessageID), nil
}
