package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/yourusername/url-relay-go/internal/domain"
	"github.com/yourusername/url-relay-go/pkg/format"
	"github.com/yourusername/url-relay-go/pkg/logger"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// NotificationService reports finished acquisitions to the operator
type NotificationService struct {
	config *domain.NotificationConfig
	bot    *bot.Bot
	logger *zap.Logger
}

// NewNotificationService creates a new notification service. b may be nil when the
// telegram method is not used.
func NewNotificationService(config *domain.NotificationConfig, b *bot.Bot, log *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		bot:    b,
		logger: logger.OrNop(log),
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	switch n.config.Method {
	case "log", "":
		n.logger.Info(title, zap.String("message", message))
		return nil
	case "telegram":
		return n.sendTelegram(title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}
}

// sendTelegram posts the notification to the configured log channel
func (n *NotificationService) sendTelegram(title, message string) error {
	if n.bot == nil || n.config.ChatID == 0 {
		n.logger.Warn("Telegram notifications need a bot and a chat_id")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.config.ChatID,
		Text:   title + "\n" + message,
	})
	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", "telegram"),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent", zap.String("title", title))
	return nil
}

// NotifyCompleted sends a notification when an acquisition finishes
func (n *NotificationService) NotifyCompleted(userID int64, result *domain.AcquisitionResult) {
	n.Send("Acquisition Completed",
		fmt.Sprintf("User %d: %s (%s, %s)", userID, truncateString(result.Name, 60), result.Kind, format.Bytes(result.Size)))
}

// NotifyFailed sends a notification when an acquisition fails
func (n *NotificationService) NotifyFailed(userID int64, locator string, err error) {
	n.Send("Acquisition Failed",
		fmt.Sprintf("User %d: %s (%s)", userID, truncateString(locator, 60), domain.KindOf(err)))
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
