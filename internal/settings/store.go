// Package settings keeps runtime-editable reminder settings in Redis so staff
// can change them without restarting the worker.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-booking/internal/apperrors"
	"github.com/wolfman30/clinic-booking/internal/config"
)

// DefaultReminderTemplate is used when staff have not saved their own.
// Placeholders: {user_name} {date_keyword} {date} {weekday} {time_slots}.
const DefaultReminderTemplate = "您好，提醒您{date_keyword} ({date}) 有預約以下時段：\n\n{time_slots}\n\n如果需要更改或取消，請與我們聯繫，謝謝。"

// Reminders controls the automatic reminder jobs.
type Reminders struct {
	DailyEnabled  bool   `json:"daily_enabled"`
	DailyTime     string `json:"daily_time"`
	WeeklyEnabled bool   `json:"weekly_enabled"`
	WeeklyDay     string `json:"weekly_day"`
	WeeklyTime    string `json:"weekly_time"`
	Template      string `json:"template"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekday accepts three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, apperrors.Validation("unknown weekday %q", s)
	}
	return d, nil
}

// Validate checks clock formats and the weekly day.
func (r Reminders) Validate() error {
	for _, clock := range []string{r.DailyTime, r.WeeklyTime} {
		if err := validClock(clock); err != nil {
			return err
		}
	}
	if _, err := ParseWeekday(r.WeeklyDay); err != nil {
		return err
	}
	return nil
}

func validClock(s string) error {
	t, err := time.Parse("15:04", s)
	if err != nil || t.Format("15:04") != s {
		return apperrors.Validation("time %q must be HH:MM", s)
	}
	return nil
}

// TemplateOrDefault returns the saved template or the built-in one.
func (r Reminders) TemplateOrDefault() string {
	if strings.TrimSpace(r.Template) == "" {
		return DefaultReminderTemplate
	}
	return r.Template
}

// DefaultsFromConfig seeds reminder settings from the environment.
func DefaultsFromConfig(cfg *config.Config) Reminders {
	return Reminders{
		DailyEnabled:  cfg.ReminderDailyEnabled,
		DailyTime:     cfg.ReminderDailyTime,
		WeeklyEnabled: cfg.ReminderWeeklyEnabled,
		WeeklyDay:     cfg.ReminderWeeklyDay,
		WeeklyTime:    cfg.ReminderWeeklyTime,
	}
}

// Store persists reminder settings and job run-markers.
type Store struct {
	redis    *redis.Client
	defaults Reminders
}

// NewStore creates a settings store. defaults apply until staff save settings.
func NewStore(redisClient *redis.Client, defaults Reminders) *Store {
	return &Store{redis: redisClient, defaults: defaults}
}

const remindersKey = "clinic:settings:reminders"

// Reminders returns the saved settings, or the defaults when none exist.
func (s *Store) Reminders(ctx context.Context) (*Reminders, error) {
	data, err := s.redis.Get(ctx, remindersKey).Bytes()
	if err == redis.Nil {
		d := s.defaults
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get reminders: %w", err)
	}
	var r Reminders
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("settings: unmarshal reminders: %w", err)
	}
	return &r, nil
}

// SetReminders validates and saves settings.
func (s *Store) SetReminders(ctx context.Context, r Reminders) error {
	r.WeeklyDay = strings.ToLower(strings.TrimSpace(r.WeeklyDay))
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("settings: marshal reminders: %w", err)
	}
	if err := s.redis.Set(ctx, remindersKey, data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set reminders: %w", err)
	}
	return nil
}

// ClaimRun records that job ran for the given clinic date. It returns false
// when another worker already claimed it.
func (s *Store) ClaimRun(ctx context.Context, job, date string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, fmt.Sprintf("clinic:runs:%s:%s", job, date), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("settings: claim run %s: %w", job, err)
	}
	return ok, nil
}
