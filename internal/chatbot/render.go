package chatbot

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/reminders"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// Callback data prefixes.
const (
	cbService  = "svc"
	cbWeek     = "week"
	cbDate     = "date"
	cbTime     = "time"
	cbConfirm  = "ok"
	cbWaitlist = "wait"
	cbCadence  = "rem"
)

const helpText = "請選擇功能：\n" +
	"預約 或 /book：預約時段\n" +
	"查詢 或 /my：查看我的預約\n" +
	"取消 或 /cancel：取消最近一筆預約\n" +
	"/reminders：設定提醒頻率"

func callback(parts ...string) string { return strings.Join(parts, ":") }

// packClock drops the colon so times fit the ':'-separated callback format.
func packClock(clock string) string { return strings.ReplaceAll(clock, ":", "") }

func unpackClock(s string) string {
	if len(s) != 4 {
		return s
	}
	return s[:2] + ":" + s[2:]
}

func button(text, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

func keyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	var kept [][]models.InlineKeyboardButton
	for _, r := range rows {
		if len(r) > 0 {
			kept = append(kept, r)
		}
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kept}
}

func serviceKeyboard() *models.InlineKeyboardMarkup {
	row := make([]models.InlineKeyboardButton, 0, len(schedule.ServiceTypes))
	for _, s := range schedule.ServiceTypes {
		row = append(row, button(s.Label(), callback(cbService, string(s))))
	}
	return keyboard(row)
}

func dayLabel(date string) string {
	d, err := time.Parse(schedule.DateLayout, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s (%s)", d.Format("01/02"), weekdayName(d.Weekday()))
}

func weekdayName(w time.Weekday) string {
	return [...]string{"日", "一", "二", "三", "四", "五", "六"}[w]
}

func dateKeyboard(service schedule.ServiceType, p *DatePrompt) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, d := range p.Dates {
		if !d.Bookable {
			continue
		}
		row = append(row, button(dayLabel(d.Date), callback(cbDate, string(service), d.Date)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows, row)
	var nav []models.InlineKeyboardButton
	if p.HasPrev {
		nav = append(nav, button("« 上一週", callback(cbWeek, string(service), fmt.Sprint(p.Offset-1))))
	}
	if p.HasNext {
		nav = append(nav, button("下一週 »", callback(cbWeek, string(service), fmt.Sprint(p.Offset+1))))
	}
	rows = append(rows, nav)
	return keyboard(rows...)
}

func datePromptText(service schedule.ServiceType, p *DatePrompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "請選擇%s日期：", service.Label())
	for _, d := range p.Dates {
		if d.Closed {
			fmt.Fprintf(&b, "\n%s 休診", dayLabel(d.Date))
			if d.Reason != "" {
				fmt.Fprintf(&b, "（%s）", d.Reason)
			}
		}
	}
	return b.String()
}

func timeKeyboard(p *TimePrompt) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, t := range p.Times {
		row = append(row, button(reminders.FormatClock(t), callback(cbTime, string(p.ServiceType), p.Date, packClock(t))))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows, row)
	if len(p.Times) == 0 {
		rows = append(rows, []models.InlineKeyboardButton{button("加入候補", callback(cbWaitlist, p.Date))})
	}
	return keyboard(rows...)
}

func timePromptText(p *TimePrompt) string {
	if len(p.Times) == 0 {
		return fmt.Sprintf("%s 的%s時段已額滿，可加入候補名單。", dayLabel(p.Date), p.ServiceType.Label())
	}
	return fmt.Sprintf("請選擇 %s 的%s時段：", dayLabel(p.Date), p.ServiceType.Label())
}

func confirmKeyboard(s *Selection) *models.InlineKeyboardMarkup {
	return keyboard([]models.InlineKeyboardButton{
		button("確認預約", callback(cbConfirm, string(s.ServiceType), s.Date, packClock(s.Time))),
		button("重新選擇", callback(cbDate, string(s.ServiceType), s.Date)),
	})
}

func confirmText(s *Selection) string {
	return fmt.Sprintf("請確認預約：\n日期：%s\n時間：%s\n項目：%s",
		dayLabel(s.Date), reminders.FormatClock(s.Time), s.ServiceType.Label())
}

func bookedText(a *appointments.Appointment) string {
	return fmt.Sprintf("預約成功！\n日期：%s\n時間：%s\n項目：%s\n\n如需取消請輸入「取消」。",
		dayLabel(a.Date), reminders.FormatClock(a.Time), a.ServiceType.Label())
}

func appointmentsText(appts []appointments.Appointment) string {
	if len(appts) == 0 {
		return "您目前沒有預約。"
	}
	var b strings.Builder
	b.WriteString("您的預約：")
	for _, a := range appts {
		fmt.Fprintf(&b, "\n• %s %s %s", dayLabel(a.Date), reminders.FormatClock(a.Time), a.ServiceType.Label())
	}
	return b.String()
}

func cancelledText(a *appointments.Appointment) string {
	if a == nil {
		return "您目前沒有可取消的預約。"
	}
	return fmt.Sprintf("已取消 %s %s 的%s預約。", dayLabel(a.Date), reminders.FormatClock(a.Time), a.ServiceType.Label())
}

func cadenceKeyboard() *models.InlineKeyboardMarkup {
	return keyboard([]models.InlineKeyboardButton{
		button("每天提醒", callback(cbCadence, "daily")),
		button("每週提醒", callback(cbCadence, "weekly")),
		button("不要提醒", callback(cbCadence, "none")),
	})
}
