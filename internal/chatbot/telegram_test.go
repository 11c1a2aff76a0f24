package chatbot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type sentMessage struct {
	chatID any
	text   string
	markup models.ReplyMarkup
}

type fakeBot struct {
	mu       sync.Mutex
	messages []sentMessage
	answered []string
}

func (f *fakeBot) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{chatID: p.ChatID, text: p.Text, markup: p.ReplyMarkup})
	return &models.Message{}, nil
}

func (f *fakeBot) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, p.CallbackQueryID)
	return true, nil
}

func (f *fakeBot) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1]
}

func newController() (*Controller, *fakeBot, *fakeBooker) {
	flow, booker, _ := newFlow()
	api := &fakeBot{}
	c := NewController(flow, api, logging.Discard())
	c.now = func() time.Time { return time.Date(2025, 10, 13, 9, 0, 0, 0, time.UTC) }
	return c, api, booker
}

var tgUser = models.User{ID: 1001, FirstName: "Alice"}

func textUpdate(text string) *models.Update {
	return &models.Update{Message: &models.Message{From: &tgUser, Chat: models.Chat{ID: 1001}, Text: text}}
}

func callbackUpdate(data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:      "cb-" + data,
		From:    tgUser,
		Data:    data,
		Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: models.Chat{ID: 1001}}},
	}}
}

func buttons(m sentMessage) []string {
	kb, ok := m.markup.(*models.InlineKeyboardMarkup)
	if !ok {
		return nil
	}
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.CallbackData)
		}
	}
	return out
}

func TestKeywordStartsBooking(t *testing.T) {
	c, api, _ := newController()

	c.HandleUpdate(context.Background(), textUpdate("預約"))
	assert.Equal(t, []string{"svc:consultation", "svc:massage"}, buttons(api.last(t)))

	c.HandleUpdate(context.Background(), callbackUpdate("svc:massage"))
	msg := api.last(t)
	assert.Contains(t, msg.text, "10/15 (三) 休診（進修）")
	assert.Equal(t, []string{"date:massage:2025-10-14", "week:massage:1"}, buttons(msg))
	assert.Equal(t, []string{"cb-svc:massage"}, api.answered)
}

func TestCallbackFlowBooksSlot(t *testing.T) {
	c, api, booker := newController()

	c.HandleUpdate(context.Background(), callbackUpdate("date:consultation:2025-10-14"))
	assert.Equal(t, []string{"time:consultation:2025-10-14:1000", "time:consultation:2025-10-14:1415"}, buttons(api.last(t)))

	c.HandleUpdate(context.Background(), callbackUpdate("time:consultation:2025-10-14:1415"))
	msg := api.last(t)
	assert.Contains(t, msg.text, "下午 02:15")
	assert.Contains(t, buttons(msg), "ok:consultation:2025-10-14:1415")

	c.HandleUpdate(context.Background(), callbackUpdate("ok:consultation:2025-10-14:1415"))
	assert.Contains(t, api.last(t).text, "預約成功")
	require.Len(t, booker.booked, 1)
	assert.Equal(t, "14:15", booker.booked[0].Time)
	assert.Equal(t, "Alice", booker.booked[0].UserName)
}

func TestConfirmConflictRePrompts(t *testing.T) {
	c, api, booker := newController()
	booker.open["2025-10-14"] = []string{"10:00"}

	c.HandleUpdate(context.Background(), callbackUpdate("ok:consultation:2025-10-14:1415"))
	msg := api.last(t)
	assert.Contains(t, msg.text, "剛被預約")
	assert.Equal(t, []string{"time:consultation:2025-10-14:1000"}, buttons(msg))
}

func TestFullDayOffersWaitlist(t *testing.T) {
	c, api, booker := newController()
	booker.open["2025-10-14"] = nil

	c.HandleUpdate(context.Background(), callbackUpdate("date:consultation:2025-10-14"))
	assert.Equal(t, []string{"wait:2025-10-14"}, buttons(api.last(t)))

	c.HandleUpdate(context.Background(), callbackUpdate("wait:2025-10-14"))
	assert.Contains(t, api.last(t).text, "候補名單")
	require.Len(t, booker.waiting, 1)
}

func TestQueryCancelAndReply(t *testing.T) {
	c, api, _ := newController()

	c.HandleUpdate(context.Background(), textUpdate("查詢"))
	assert.Equal(t, "您目前沒有預約。", api.last(t).text)

	c.HandleUpdate(context.Background(), textUpdate("謝謝"))
	assert.Equal(t, helpText, api.last(t).text)

	c.HandleUpdate(context.Background(), callbackUpdate("ok:consultation:2025-10-14:1000"))
	c.HandleUpdate(context.Background(), textUpdate("好的"))
	assert.Equal(t, "已收到您的回覆，謝謝！", api.last(t).text)

	c.HandleUpdate(context.Background(), textUpdate("/my@clinic_bot"))
	assert.Contains(t, api.last(t).text, "上午 10:00")

	c.HandleUpdate(context.Background(), textUpdate("取消"))
	assert.Contains(t, api.last(t).text, "已取消")
}

func TestReminderCadenceCallback(t *testing.T) {
	c, api, _ := newController()

	c.HandleUpdate(context.Background(), textUpdate("/reminders"))
	assert.Equal(t, []string{"rem:daily", "rem:weekly", "rem:none"}, buttons(api.last(t)))

	c.HandleUpdate(context.Background(), callbackUpdate("rem:daily"))
	assert.Equal(t, "提醒設定已更新：每天提醒", api.last(t).text)

	c.HandleUpdate(context.Background(), callbackUpdate("rem:hourly"))
	assert.Contains(t, api.last(t).text, "無法完成")
}
