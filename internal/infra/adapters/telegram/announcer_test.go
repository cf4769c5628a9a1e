//go:build !integration

package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/domain"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: 42}, nil
}

func newTestAnnouncer(t *testing.T, s sender, channel string) *Announcer {
	t.Helper()
	logger := zerolog.New(nil)
	a, err := newAnnouncer(s, channel, &logger)
	require.NoError(t, err)
	return a
}

func TestValidateToken(t *testing.T) {
	assert.NoError(t, ValidateToken(" 123456:ABC-def "))
	for _, bad := range []string{"", "123456", "1:2:3"} {
		assert.ErrorIs(t, ValidateToken(bad), domain.ErrInvalidArgument, bad)
	}
}

func TestAnnounce_ToChannelUsername(t *testing.T) {
	s := &fakeSender{}
	a := newTestAnnouncer(t, s, "mychannel")

	id, err := a.Announce(context.Background(), "Go 1.24", "Generic type aliases", "https://go.dev/blog")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	require.Len(t, s.sent, 1)
	msg := s.sent[0]
	assert.Equal(t, "@mychannel", msg.ChannelUsername)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Equal(t, "📝 *Go 1.24*\n\nGeneric type aliases\n\n🔗 [Read More](https://go.dev/blog)", msg.Text)
}

func TestAnnounce_ToNumericChat(t *testing.T) {
	s := &fakeSender{}
	a := newTestAnnouncer(t, s, "-1001234567890")

	_, err := a.Announce(context.Background(), "", "body", "https://x.test")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234567890), s.sent[0].ChatID)
	assert.Empty(t, s.sent[0].ChannelUsername)
}

func TestFormat_EscapesMarkdown(t *testing.T) {
	got := Format("snake_case *bold*", "", "")
	assert.Equal(t, `📝 *snake\_case \*bold\**`, got)
}

func TestAnnounce_Errors(t *testing.T) {
	a := newTestAnnouncer(t, &fakeSender{err: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot is not a member"}}, "@c")
	_, err := a.Announce(context.Background(), "t", "b", "l")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	a = newTestAnnouncer(t, &fakeSender{err: errors.New("timeout")}, "@c")
	_, err = a.Announce(context.Background(), "t", "b", "l")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)

	_, err = newAnnouncer(&fakeSender{}, " ", nil)
	assert.Error(t, err)
}
