package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/yourusername/url-relay-go/internal/domain"
)

// NewTelegramBot creates a Bot API client from configuration
func NewTelegramBot(config *domain.TelegramConfig) (*bot.Bot, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram token is not configured")
	}

	b, err := bot.New(config.Token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return b, nil
}

// TelegramStatusUpdater edits one chat message in place
type TelegramStatusUpdater struct {
	bot       *bot.Bot
	chatID    int64
	messageID int
}

// NewTelegramStatusUpdater creates an updater for the message (chatID, messageID)
func NewTelegramStatusUpdater(b *bot.Bot, chatID int64, messageID int) *TelegramStatusUpdater {
	return &TelegramStatusUpdater{bot: b, chatID: chatID, messageID: messageID}
}

// Update replaces the message text
func (u *TelegramStatusUpdater) Update(ctx context.Context, text string) error {
	_, err := u.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    u.chatID,
		MessageID: u.messageID,
		Text:      text,
	})
	return mapTelegramError(err)
}

// mapTelegramError translates Bot API failures into status update outcomes.
func mapTelegramError(err error) error {
	if err == nil {
		return nil
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &domain.RateLimitedError{RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second}
	}

	if errors.Is(err, bot.ErrorBadRequest) {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "message is not modified") ||
			strings.Contains(msg, "message to edit not found") ||
			strings.Contains(msg, "message can't be edited") {
			return domain.ErrStatusRejected
		}
	}

	return err
}
