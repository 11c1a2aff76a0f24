package bootstrap

import (
	"context"
	"database/sql"

	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/messaging"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// BuildOutbox selects the chat transport and wraps it so every attempt is
// logged. It returns the transport name.
func BuildOutbox(cfg *appconfig.Config, db *sql.DB, metrics messaging.MetricsRecorder, logger *logging.Logger) (*messaging.Outbox, string, error) {
	if logger == nil {
		logger = logging.Default()
	}
	token := ""
	if cfg != nil {
		token = cfg.TelegramBotToken
	}
	sender, provider, err := messaging.BuildSender(token, logger)
	if err != nil {
		return nil, "", err
	}
	var log messaging.AuditLog
	if db != nil {
		log = messaging.NewMessageLog(db)
	}
	return messaging.NewOutbox(sender, log, metrics, logger), provider, nil
}

// BuildStaffNotifier wires the staff email transport.
func BuildStaffNotifier(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*notify.StaffNotifier, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		cfg = &appconfig.Config{}
	}
	email, provider := notify.BuildEmailSender(ctx, notify.ProviderConfig{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.EmailFrom,
		FromName:       cfg.EmailFromName,
		AWSRegion:      cfg.AWSRegion,
	}, logger)
	return notify.NewStaffNotifier(email, cfg.StaffEmail, cfg.ClinicName, logger), provider
}
