package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelegram struct {
	params []*bot.SendMessageParams
	err    error
}

func (f *fakeTelegram) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: len(f.params)}, nil
}

func TestTelegramSenderUsesChatID(t *testing.T) {
	api := &fakeTelegram{}
	s := NewTelegramSender(api, nil)

	require.NoError(t, s.Send(context.Background(), "123456", "您好"))
	require.Len(t, api.params, 1)
	assert.Equal(t, int64(123456), api.params[0].ChatID)
	assert.Equal(t, "您好", api.params[0].Text)
}

func TestTelegramSenderRejectsNonNumericID(t *testing.T) {
	api := &fakeTelegram{}
	err := NewTelegramSender(api, nil).Send(context.Background(), "alice", "hi")
	require.Error(t, err)
	assert.Empty(t, api.params)
}

func TestTelegramSenderWrapsAPIError(t *testing.T) {
	api := &fakeTelegram{err: errors.New("forbidden: bot was blocked by the user")}
	err := NewTelegramSender(api, nil).Send(context.Background(), "1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestBuildSenderWithoutTokenIsStub(t *testing.T) {
	s, name, err := BuildSender("", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", name)
	assert.IsType(t, &StubSender{}, s)
}
