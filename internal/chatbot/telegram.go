package chatbot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// BotAPI is the slice of *bot.Bot the controller calls.
type BotAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Controller maps Telegram updates onto the Flow.
type Controller struct {
	flow   *Flow
	api    BotAPI
	logger *logging.Logger
	now    func() time.Time
}

func NewController(flow *Flow, api BotAPI, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{flow: flow, api: api, logger: logger.Component("chatbot"), now: time.Now}
}

// Register routes every text message and button press through the controller.
func (c *Controller) Register(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, c.handle)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, c.handle)
}

// SetCommands publishes the command menu.
func (c *Controller) SetCommands(ctx context.Context, b *bot.Bot) error {
	_, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: []models.BotCommand{
		{Command: "book", Description: "預約時段"},
		{Command: "my", Description: "查看我的預約"},
		{Command: "cancel", Description: "取消最近一筆預約"},
		{Command: "reminders", Description: "設定提醒頻率"},
	}})
	return err
}

func (c *Controller) handle(ctx context.Context, _ *bot.Bot, u *models.Update) {
	c.HandleUpdate(ctx, u)
}

// HandleUpdate processes one update.
func (c *Controller) HandleUpdate(ctx context.Context, u *models.Update) {
	switch {
	case u.CallbackQuery != nil:
		c.onCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		c.onText(ctx, u.Message)
	}
}

func patientOf(u models.User) Patient {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return Patient{ID: strconv.FormatInt(u.ID, 10), Name: name}
}

func (c *Controller) onText(ctx context.Context, m *models.Message) {
	p := patientOf(*m.From)
	chatID := m.Chat.ID
	text := strings.TrimSpace(m.Text)
	if i := strings.IndexByte(text, '@'); strings.HasPrefix(text, "/") && i > 0 {
		text = text[:i]
	}

	switch text {
	case "/start":
		if _, err := c.flow.Register(ctx, p); err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		c.send(ctx, chatID, "歡迎使用預約服務！\n\n"+helpText, nil)
	case "/help":
		c.send(ctx, chatID, helpText, nil)
	case "/book", "預約":
		c.send(ctx, chatID, "請選擇預約項目：", serviceKeyboard())
	case "/my", "查詢":
		appts, err := c.flow.Query(ctx, p)
		if err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		c.send(ctx, chatID, appointmentsText(appts), nil)
	case "/cancel", "取消":
		appt, err := c.flow.Cancel(ctx, p)
		if err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		c.send(ctx, chatID, cancelledText(appt), nil)
	case "/reminders":
		c.send(ctx, chatID, "請選擇提醒頻率：", cadenceKeyboard())
	default:
		appt, err := c.flow.Reply(ctx, p, text, c.now())
		if err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		if appt == nil {
			c.send(ctx, chatID, helpText, nil)
			return
		}
		c.send(ctx, chatID, "已收到您的回覆，謝謝！", nil)
	}
}

func (c *Controller) onCallback(ctx context.Context, q *models.CallbackQuery) {
	_, _ = c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: q.ID})
	if q.Message.Message == nil {
		return
	}
	chatID := q.Message.Message.Chat.ID
	p := patientOf(q.From)
	parts := strings.Split(q.Data, ":")

	switch {
	case parts[0] == cbService && len(parts) == 2:
		c.showDates(ctx, chatID, p, schedule.ServiceType(parts[1]), 0)
	case parts[0] == cbWeek && len(parts) == 3:
		offset, err := strconv.Atoi(parts[2])
		if err != nil {
			return
		}
		c.showDates(ctx, chatID, p, schedule.ServiceType(parts[1]), offset)
	case parts[0] == cbDate && len(parts) == 3:
		prompt, err := c.flow.SelectDate(ctx, p, parts[2], schedule.ServiceType(parts[1]))
		if err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		c.send(ctx, chatID, timePromptText(prompt), timeKeyboard(prompt))
	case parts[0] == cbTime && len(parts) == 4:
		sel, err := c.flow.SelectTime(ctx, p, parts[2], unpackClock(parts[3]), schedule.ServiceType(parts[1]))
		if err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		if !sel.Available {
			prompt := &TimePrompt{Date: sel.Date, ServiceType: sel.ServiceType, Times: sel.Times}
			c.send(ctx, chatID, "此時段已被預約。\n"+timePromptText(prompt), timeKeyboard(prompt))
			return
		}
		c.send(ctx, chatID, confirmText(sel), confirmKeyboard(sel))
	case parts[0] == cbConfirm && len(parts) == 4:
		c.confirm(ctx, chatID, p, parts[2], unpackClock(parts[3]), schedule.ServiceType(parts[1]))
	case parts[0] == cbWaitlist && len(parts) == 2:
		if _, err := c.flow.JoinWaitlist(ctx, p, parts[1]); err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		c.send(ctx, chatID, "已將您加入 "+dayLabel(parts[1])+" 的候補名單，有空位時診所會與您聯繫。", nil)
	case parts[0] == cbCadence && len(parts) == 2:
		cadence, err := c.flow.SetReminders(ctx, p, parts[1])
		if err != nil {
			c.fail(ctx, chatID, err)
			return
		}
		c.send(ctx, chatID, "提醒設定已更新："+cadenceLabel(string(cadence)), nil)
	default:
		c.logger.Warn("unknown callback", "data", q.Data)
	}
}

func (c *Controller) showDates(ctx context.Context, chatID int64, p Patient, service schedule.ServiceType, offset int) {
	prompt, err := c.flow.RequestBooking(ctx, p, offset)
	if err != nil {
		c.fail(ctx, chatID, err)
		return
	}
	c.send(ctx, chatID, datePromptText(service, prompt), dateKeyboard(service, prompt))
}

func (c *Controller) confirm(ctx context.Context, chatID int64, p Patient, date, clock string, service schedule.ServiceType) {
	out, err := c.flow.Confirm(ctx, p, date, clock, service)
	if err != nil {
		c.fail(ctx, chatID, err)
		return
	}
	switch {
	case out.Closed:
		c.send(ctx, chatID, dayLabel(date)+" 診所休診，請選擇其他日期。", serviceKeyboard())
	case out.Conflict:
		prompt := &TimePrompt{Date: date, ServiceType: service, Times: out.Times}
		c.send(ctx, chatID, "很抱歉，此時段剛被預約。\n"+timePromptText(prompt), timeKeyboard(prompt))
	default:
		c.send(ctx, chatID, bookedText(out.Appointment), nil)
	}
}

func cadenceLabel(c string) string {
	switch c {
	case "daily":
		return "每天提醒"
	case "weekly":
		return "每週提醒"
	case "none":
		return "不要提醒"
	}
	return c
}

func (c *Controller) fail(ctx context.Context, chatID int64, err error) {
	var text string
	switch {
	case errors.Is(err, apperrors.ErrClosedDay):
		text = "當天診所休診，請選擇其他日期。"
	case errors.Is(err, apperrors.ErrValidation):
		text = "無法完成：" + err.Error()
	case errors.Is(err, apperrors.ErrForbidden), errors.Is(err, apperrors.ErrNotFound):
		text = "找不到相關預約。"
	default:
		c.logger.Error("chat request failed", "chat_id", chatID, "error", err)
		text = "系統忙碌中，請稍後再試。"
	}
	c.send(ctx, chatID, text, nil)
}

func (c *Controller) send(ctx context.Context, chatID int64, text string, markup *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := c.api.SendMessage(ctx, params); err != nil {
		c.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
	}
}
